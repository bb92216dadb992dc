// Package lending implements a collateralised lending pool that values its
// loans from the instantaneous reserves of an exchange. No averaging is
// applied, so the price moves with every trade against the exchange.
package lending

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"ammlab/internal/amm"
	"ammlab/internal/exchange"
	"ammlab/internal/fixedpoint"
	"ammlab/internal/ledger"
)

var (
	ErrInvalidAmount          = errors.New("invalid amount")
	ErrInsufficientCollateral = errors.New("insufficient collateral")
	ErrInsufficientLiquidity  = errors.New("insufficient liquidity")
)

// Pricing selects how the oracle turns reserves into a collateral requirement.
type Pricing int

const (
	// PricingSpot requires amount * spot * multiplier / 1e18 where
	// spot = reserveCollateral*1e18/reserveToken.
	PricingSpot Pricing = iota
	// PricingQuote requires quote(amount, reserveToken, reserveCollateral) * multiplier.
	PricingQuote
)

func (p Pricing) String() string {
	switch p {
	case PricingSpot:
		return "spot"
	case PricingQuote:
		return "quote"
	default:
		return fmt.Sprintf("Pricing(%d)", int(p))
	}
}

// Config describes a lending pool.
type Config struct {
	Account    common.Address
	Token      common.Address
	Collateral common.Address
	Multiplier int64
	Pricing    Pricing
}

// Pool lends Token against Collateral.
type Pool struct {
	cfg    Config
	book   *ledger.Ledger
	oracle *exchange.Exchange
	logger *zap.Logger

	mu       sync.Mutex
	deposits map[common.Address]*big.Int
}

// New creates a lending pool priced by oracle, which must trade both Token
// and Collateral.
func New(cfg Config, book *ledger.Ledger, oracle *exchange.Exchange, logger *zap.Logger) (*Pool, error) {
	if cfg.Multiplier <= 0 {
		return nil, fmt.Errorf("multiplier must be positive")
	}
	if _, err := oracle.Side(cfg.Token); err != nil {
		return nil, fmt.Errorf("oracle token: %w", err)
	}
	if _, err := oracle.Side(cfg.Collateral); err != nil {
		return nil, fmt.Errorf("oracle collateral: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Pool{
		cfg:      cfg,
		book:     book,
		oracle:   oracle,
		logger:   logger,
		deposits: make(map[common.Address]*big.Int),
	}
	book.Bind(p)
	return p, nil
}

func (p *Pool) Account() common.Address { return p.cfg.Account }

// DepositRequired returns the collateral needed to borrow amount at the
// oracle's current reserves.
func (p *Pool) DepositRequired(amount *big.Int) (*big.Int, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	reserveToken, reserveCollateral := p.reserves()
	mult := big.NewInt(p.cfg.Multiplier)

	switch p.cfg.Pricing {
	case PricingSpot:
		spot, err := amm.SpotPrice(reserveToken, reserveCollateral, fixedpoint.WAD)
		if err != nil {
			return nil, fmt.Errorf("oracle price: %w", err)
		}
		out := new(big.Int).Mul(amount, spot)
		out.Mul(out, mult)
		return out.Quo(out, fixedpoint.WAD), nil
	case PricingQuote:
		q, err := amm.Quote(amount, reserveToken, reserveCollateral)
		if err != nil {
			return nil, fmt.Errorf("oracle quote: %w", err)
		}
		return q.Mul(q, mult), nil
	default:
		return nil, fmt.Errorf("unsupported pricing %s", p.cfg.Pricing)
	}
}

// Borrow takes the required collateral from account and sends it amount of Token.
func (p *Pool) Borrow(ctx context.Context, account common.Address, amount *big.Int) (*big.Int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	required, err := p.DepositRequired(amount)
	if err != nil {
		return nil, err
	}
	if have := p.book.BalanceOf(p.cfg.Collateral, account); have.Cmp(required) < 0 {
		return nil, fmt.Errorf("required %s, have %s: %w", required, have, ErrInsufficientCollateral)
	}
	if avail := p.book.BalanceOf(p.cfg.Token, p.cfg.Account); avail.Cmp(amount) < 0 {
		return nil, fmt.Errorf("requested %s, available %s: %w", amount, avail, ErrInsufficientLiquidity)
	}

	err = p.book.Atomic(func() error {
		if err := p.book.Transfer(p.cfg.Collateral, account, p.cfg.Account, required); err != nil {
			return fmt.Errorf("take collateral: %w", err)
		}
		if err := p.book.Transfer(p.cfg.Token, p.cfg.Account, account, amount); err != nil {
			return fmt.Errorf("send tokens: %w", err)
		}
		p.mu.Lock()
		held := p.depositOf(account)
		p.deposits[account] = held.Add(held, required)
		p.mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, err
	}

	p.logger.Debug("borrow",
		zap.String("account", account.Hex()),
		zap.String("amount", amount.String()),
		zap.String("collateral", required.String()),
		zap.Stringer("pricing", p.cfg.Pricing),
	)
	return required, nil
}

// CollateralOf returns the collateral deposited by account.
func (p *Pool) CollateralOf(account common.Address) *big.Int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.depositOf(account)
}

// Checkpoint captures the collateral book. The ledger calls it for every
// snapshot, so a reverted flash loan also forgets borrows made inside it.
func (p *Pool) Checkpoint() func() {
	p.mu.Lock()
	deposits := make(map[common.Address]*big.Int, len(p.deposits))
	for k, v := range p.deposits {
		deposits[k] = new(big.Int).Set(v)
	}
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		p.deposits = deposits
	}
}

func (p *Pool) depositOf(account common.Address) *big.Int {
	if d, ok := p.deposits[account]; ok {
		return new(big.Int).Set(d)
	}
	return new(big.Int)
}

func (p *Pool) reserves() (token, collateral *big.Int) {
	side, _ := p.oracle.Side(p.cfg.Token)
	pool := p.oracle.Pool()
	return pool.Reserve(side), pool.Reserve(side.Other())
}
