package amm

import (
	"context"
	"fmt"
	"math/big"

	"ammlab/internal/fixedpoint"
)

// FlashSwapper receives the output of a flash swap before paying for it.
type FlashSwapper interface {
	OnFlashSwap(ctx context.Context, swap *FlashSwap) error
}

// FlashSwapperFunc adapts a function to FlashSwapper.
type FlashSwapperFunc func(ctx context.Context, swap *FlashSwap) error

func (f FlashSwapperFunc) OnFlashSwap(ctx context.Context, swap *FlashSwap) error {
	return f(ctx, swap)
}

// FlashSwap is the in-flight state handed to a FlashSwapper. The borrower
// settles by calling Pay with either asset before returning.
type FlashSwap struct {
	AssetOut  Asset
	AmountOut *big.Int

	pool  *Pool
	paidA *big.Int
	paidB *big.Int
}

// Pay records amount of asset returned to the pool.
func (s *FlashSwap) Pay(asset Asset, amount *big.Int) error {
	if !asset.valid() {
		return ErrUnknownAsset
	}
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	if asset == AssetA {
		s.paidA.Add(s.paidA, amount)
	} else {
		s.paidB.Add(s.paidB, amount)
	}
	return nil
}

// Fee returns the fee of the pool being borrowed from.
func (s *FlashSwap) Fee() Fee { return s.pool.fee }

// FlashSwapResult reports what was paid back into each side.
type FlashSwapResult struct {
	AmountInA *big.Int
	AmountInB *big.Int
}

// FlashSwap sends amountOut of assetOut to borrower, runs its callback and
// then requires the fee-adjusted product of the new balances to cover the old
// product: (balA*den - inA*(den-num)) * (balB*den - inB*(den-num)) >= k*den^2.
// The pool is locked against swaps and liquidity changes while the callback
// runs; quotes remain available.
func (p *Pool) FlashSwap(ctx context.Context, assetOut Asset, amountOut *big.Int, borrower FlashSwapper) (FlashSwapResult, error) {
	if p.locked {
		return FlashSwapResult{}, ErrPoolLocked
	}
	if !assetOut.valid() {
		return FlashSwapResult{}, ErrUnknownAsset
	}
	if err := checkAmount(amountOut); err != nil {
		return FlashSwapResult{}, err
	}
	if p.reserveA.Sign() == 0 || p.reserveB.Sign() == 0 {
		return FlashSwapResult{}, ErrEmptyPool
	}
	if amountOut.Cmp(p.Reserve(assetOut)) >= 0 {
		return FlashSwapResult{}, fmt.Errorf("amount out %s: %w", amountOut, ErrInsufficientReserves)
	}
	if err := ctx.Err(); err != nil {
		return FlashSwapResult{}, err
	}

	swap := &FlashSwap{
		AssetOut:  assetOut,
		AmountOut: new(big.Int).Set(amountOut),
		pool:      p,
		paidA:     new(big.Int),
		paidB:     new(big.Int),
	}

	if err := p.runLocked(ctx, swap, borrower); err != nil {
		return FlashSwapResult{}, fmt.Errorf("flash swap callback: %w", err)
	}

	outA, outB := new(big.Int), new(big.Int)
	if assetOut == AssetA {
		outA.Set(amountOut)
	} else {
		outB.Set(amountOut)
	}
	balA := new(big.Int).Sub(p.reserveA, outA)
	balA.Add(balA, swap.paidA)
	balB := new(big.Int).Sub(p.reserveB, outB)
	balB.Add(balB, swap.paidB)

	if swap.paidA.Sign() == 0 && swap.paidB.Sign() == 0 {
		return FlashSwapResult{}, fmt.Errorf("nothing paid: %w", ErrInsufficientRepayment)
	}
	if err := fixedpoint.CheckU256(balA); err != nil {
		return FlashSwapResult{}, fmt.Errorf("balance A: %w", err)
	}
	if err := fixedpoint.CheckU256(balB); err != nil {
		return FlashSwapResult{}, fmt.Errorf("balance B: %w", err)
	}

	den := p.fee.den()
	cut := big.NewInt(p.fee.Den - p.fee.Num)
	adjA := new(big.Int).Mul(balA, den)
	adjA.Sub(adjA, new(big.Int).Mul(swap.paidA, cut))
	adjB := new(big.Int).Mul(balB, den)
	adjB.Sub(adjB, new(big.Int).Mul(swap.paidB, cut))

	lhs := new(big.Int).Mul(adjA, adjB)
	rhs := p.K()
	rhs.Mul(rhs, den)
	rhs.Mul(rhs, den)
	if lhs.Cmp(rhs) < 0 {
		return FlashSwapResult{}, fmt.Errorf("paid A %s, paid B %s: %w", swap.paidA, swap.paidB, ErrInsufficientRepayment)
	}

	p.reserveA, p.reserveB = balA, balB
	return FlashSwapResult{
		AmountInA: new(big.Int).Set(swap.paidA),
		AmountInB: new(big.Int).Set(swap.paidB),
	}, nil
}

func (p *Pool) runLocked(ctx context.Context, swap *FlashSwap, borrower FlashSwapper) error {
	p.locked = true
	defer func() { p.locked = false }()
	return borrower.OnFlashSwap(ctx, swap)
}

// FlashSwapRepayment returns the amount a borrower repaying in the borrowed
// asset must pay back: floor(amountOut*den/num) + 1.
func FlashSwapRepayment(amountOut *big.Int, fee Fee) (*big.Int, error) {
	if err := checkAmount(amountOut); err != nil {
		return nil, err
	}
	if err := fee.Validate(); err != nil {
		return nil, err
	}
	out, _ := fixedpoint.MulDivFloor(amountOut, fee.den(), fee.num())
	return out.Add(out, big.NewInt(1)), nil
}
