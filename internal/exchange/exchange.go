// Package exchange binds an amm.Pool to token balances in a ledger. The pool
// account holds the reserves; every trade moves tokens and reserves together
// or not at all. The pool is bound to the ledger, so any ledger revert,
// including a failed flash loan, restores the reserves as well.
package exchange

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"ammlab/internal/amm"
	"ammlab/internal/ledger"
	"ammlab/internal/observability"
)

// Config names the ledger assets traded by the pool.
type Config struct {
	Name    string
	Account common.Address
	TokenA  common.Address
	TokenB  common.Address
}

// Exchange is a pool whose reserves are mirrored by Account's balances.
type Exchange struct {
	cfg     Config
	pool    *amm.Pool
	book    *ledger.Ledger
	logger  *zap.Logger
	metrics *observability.Metrics
}

// New creates an exchange with an empty pool.
func New(cfg Config, fee amm.Fee, book *ledger.Ledger, logger *zap.Logger, metrics *observability.Metrics) (*Exchange, error) {
	if cfg.TokenA == cfg.TokenB {
		return nil, fmt.Errorf("token A and token B are the same asset")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	pool, err := amm.NewPool(fee)
	if err != nil {
		return nil, err
	}
	book.Bind(pool)
	return &Exchange{
		cfg:     cfg,
		pool:    pool,
		book:    book,
		logger:  logger.With(zap.String("exchange", cfg.Name)),
		metrics: metrics,
	}, nil
}

func (e *Exchange) Account() common.Address { return e.cfg.Account }

// Pool exposes the underlying pool for quotes and prices. Mutating it
// directly desynchronises the ledger.
func (e *Exchange) Pool() *amm.Pool { return e.pool }

// Token returns the ledger asset for one side of the pool.
func (e *Exchange) Token(side amm.Asset) common.Address {
	if side == amm.AssetA {
		return e.cfg.TokenA
	}
	return e.cfg.TokenB
}

// Side returns the pool side trading token.
func (e *Exchange) Side(token common.Address) (amm.Asset, error) {
	switch token {
	case e.cfg.TokenA:
		return amm.AssetA, nil
	case e.cfg.TokenB:
		return amm.AssetB, nil
	default:
		return 0, fmt.Errorf("%s: %w", token.Hex(), amm.ErrUnknownAsset)
	}
}

// AddLiquidity moves the used amounts from provider into the pool account.
func (e *Exchange) AddLiquidity(provider common.Address, amountA, amountB *big.Int) (r amm.LiquidityReceipt, err error) {
	err = e.atomic(func() error {
		r, err = e.pool.AddLiquidity(provider, amountA, amountB)
		if err != nil {
			return err
		}
		if err := e.book.Transfer(e.cfg.TokenA, provider, e.cfg.Account, r.AmountA); err != nil {
			return err
		}
		return e.book.Transfer(e.cfg.TokenB, provider, e.cfg.Account, r.AmountB)
	})
	if err != nil {
		return amm.LiquidityReceipt{}, err
	}
	return r, nil
}

// RemoveLiquidity burns provider's shares and pays out both assets.
func (e *Exchange) RemoveLiquidity(provider common.Address, shares *big.Int) (outA, outB *big.Int, err error) {
	err = e.atomic(func() error {
		outA, outB, err = e.pool.RemoveLiquidity(provider, shares)
		if err != nil {
			return err
		}
		if err := e.transferOut(e.cfg.TokenA, provider, outA); err != nil {
			return err
		}
		return e.transferOut(e.cfg.TokenB, provider, outB)
	})
	if err != nil {
		return nil, nil, err
	}
	return outA, outB, nil
}

// SwapExactInput sells amountIn of tokenIn from trader.
func (e *Exchange) SwapExactInput(trader, tokenIn common.Address, amountIn, minAmountOut *big.Int) (q amm.TradeQuote, err error) {
	defer func() { e.metrics.ObserveSwap("exact_input", err) }()
	side, err := e.Side(tokenIn)
	if err != nil {
		return amm.TradeQuote{}, err
	}
	err = e.atomic(func() error {
		q, err = e.pool.SwapExactInput(side, amountIn, minAmountOut)
		if err != nil {
			return err
		}
		return e.settleTrade(trader, q)
	})
	if err != nil {
		return amm.TradeQuote{}, err
	}
	e.logger.Debug("swap exact input",
		zap.String("trader", trader.Hex()),
		zap.Stringer("asset_in", side),
		zap.String("amount_in", q.AmountIn.String()),
		zap.String("amount_out", q.AmountOut.String()),
	)
	return q, nil
}

// SwapExactOutput buys amountOut of tokenOut for trader.
func (e *Exchange) SwapExactOutput(trader, tokenOut common.Address, amountOut, maxAmountIn *big.Int) (q amm.TradeQuote, err error) {
	defer func() { e.metrics.ObserveSwap("exact_output", err) }()
	side, err := e.Side(tokenOut)
	if err != nil {
		return amm.TradeQuote{}, err
	}
	err = e.atomic(func() error {
		q, err = e.pool.SwapExactOutput(side, amountOut, maxAmountIn)
		if err != nil {
			return err
		}
		return e.settleTrade(trader, q)
	})
	if err != nil {
		return amm.TradeQuote{}, err
	}
	return q, nil
}

// FlashSwapStrategy is run by FlashSwap while the borrowed tokens sit in the
// borrower's account. It settles by transferring tokens to the exchange account.
type FlashSwapStrategy func(ctx context.Context, borrowed *big.Int) error

// FlashSwap lends amountOut of tokenOut to borrower. Whatever the strategy
// transfers to the exchange account counts as payment; the pool's
// fee-adjusted invariant decides whether it is enough.
func (e *Exchange) FlashSwap(ctx context.Context, borrower, tokenOut common.Address, amountOut *big.Int, strategy FlashSwapStrategy) (res amm.FlashSwapResult, err error) {
	defer func() { e.metrics.ObserveSwap("flash", err) }()
	side, err := e.Side(tokenOut)
	if err != nil {
		return amm.FlashSwapResult{}, err
	}
	err = e.atomic(func() error {
		res, err = e.pool.FlashSwap(ctx, side, amountOut, amm.FlashSwapperFunc(func(ctx context.Context, s *amm.FlashSwap) error {
			beforeA := e.book.BalanceOf(e.cfg.TokenA, e.cfg.Account)
			beforeB := e.book.BalanceOf(e.cfg.TokenB, e.cfg.Account)
			if side == amm.AssetA {
				beforeA.Sub(beforeA, s.AmountOut)
			} else {
				beforeB.Sub(beforeB, s.AmountOut)
			}
			if err := e.transferOut(tokenOut, borrower, s.AmountOut); err != nil {
				return err
			}
			if err := strategy(ctx, s.AmountOut); err != nil {
				return err
			}
			if err := s.Pay(amm.AssetA, paid(e.book.BalanceOf(e.cfg.TokenA, e.cfg.Account), beforeA)); err != nil {
				return err
			}
			return s.Pay(amm.AssetB, paid(e.book.BalanceOf(e.cfg.TokenB, e.cfg.Account), beforeB))
		}))
		return err
	})
	if err != nil {
		return amm.FlashSwapResult{}, err
	}
	return res, nil
}

func paid(now, before *big.Int) *big.Int {
	d := new(big.Int).Sub(now, before)
	if d.Sign() < 0 {
		return new(big.Int)
	}
	return d
}

func (e *Exchange) settleTrade(trader common.Address, q amm.TradeQuote) error {
	tokenIn, tokenOut := e.Token(q.AssetIn), e.Token(q.AssetIn.Other())
	if err := e.book.Transfer(tokenIn, trader, e.cfg.Account, q.AmountIn); err != nil {
		return err
	}
	return e.transferOut(tokenOut, trader, q.AmountOut)
}

func (e *Exchange) transferOut(token, to common.Address, amount *big.Int) error {
	if amount.Sign() == 0 {
		return nil
	}
	return e.book.Transfer(token, e.cfg.Account, to, amount)
}

func (e *Exchange) atomic(fn func() error) error {
	return e.book.Atomic(fn)
}
