package amm

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"ammlab/internal/fixedpoint"
)

// LiquidityReceipt reports the outcome of AddLiquidity.
type LiquidityReceipt struct {
	Shares  *big.Int
	AmountA *big.Int
	AmountB *big.Int
}

// AddLiquidity deposits into the pool on behalf of provider.
//
// The first deposit takes both amounts as given and mints shares equal to
// amountB. Later deposits use all of amountA and derive the asset B amount
// from the current ratio, amountA*reserveB/reserveA; amountB is the most the
// provider is willing to add.
func (p *Pool) AddLiquidity(provider common.Address, amountA, amountB *big.Int) (LiquidityReceipt, error) {
	if p.locked {
		return LiquidityReceipt{}, ErrPoolLocked
	}
	if err := checkAmount(amountA); err != nil {
		return LiquidityReceipt{}, fmt.Errorf("amount A: %w", err)
	}
	if err := checkAmount(amountB); err != nil {
		return LiquidityReceipt{}, fmt.Errorf("amount B: %w", err)
	}

	if p.totalShares.Sign() == 0 {
		r := LiquidityReceipt{
			Shares:  new(big.Int).Set(amountB),
			AmountA: new(big.Int).Set(amountA),
			AmountB: new(big.Int).Set(amountB),
		}
		p.reserveA = new(big.Int).Set(amountA)
		p.reserveB = new(big.Int).Set(amountB)
		p.mint(provider, r.Shares)
		return r, nil
	}

	usedB, err := fixedpoint.MulDivFloor(amountA, p.reserveB, p.reserveA)
	if err != nil {
		return LiquidityReceipt{}, fmt.Errorf("derive amount B: %w", ErrEmptyPool)
	}
	if amountB.Cmp(usedB) < 0 {
		return LiquidityReceipt{}, fmt.Errorf("offered %s, required %s: %w", amountB, usedB, ErrInsufficientAmount)
	}
	shares, _ := fixedpoint.MulDivFloor(amountA, p.totalShares, p.reserveA)
	if shares.Sign() == 0 {
		return LiquidityReceipt{}, fmt.Errorf("deposit mints no shares: %w", ErrInvalidAmount)
	}

	newA := new(big.Int).Add(p.reserveA, amountA)
	newB := new(big.Int).Add(p.reserveB, usedB)
	if err := fixedpoint.CheckU256(newA); err != nil {
		return LiquidityReceipt{}, fmt.Errorf("reserve A: %w", err)
	}
	if err := fixedpoint.CheckU256(newB); err != nil {
		return LiquidityReceipt{}, fmt.Errorf("reserve B: %w", err)
	}

	p.reserveA, p.reserveB = newA, newB
	p.mint(provider, shares)
	return LiquidityReceipt{
		Shares:  new(big.Int).Set(shares),
		AmountA: new(big.Int).Set(amountA),
		AmountB: usedB,
	}, nil
}

// RemoveLiquidity burns shares held by provider and returns the proportional
// amounts of both assets.
func (p *Pool) RemoveLiquidity(provider common.Address, shares *big.Int) (*big.Int, *big.Int, error) {
	if p.locked {
		return nil, nil, ErrPoolLocked
	}
	if shares == nil || shares.Sign() <= 0 {
		return nil, nil, ErrInvalidAmount
	}
	held := p.SharesOf(provider)
	if shares.Cmp(held) > 0 {
		return nil, nil, fmt.Errorf("burn %s, held %s: %w", shares, held, ErrInsufficientShares)
	}

	outA, _ := fixedpoint.MulDivFloor(p.reserveA, shares, p.totalShares)
	outB, _ := fixedpoint.MulDivFloor(p.reserveB, shares, p.totalShares)

	p.reserveA = new(big.Int).Sub(p.reserveA, outA)
	p.reserveB = new(big.Int).Sub(p.reserveB, outB)
	p.totalShares = new(big.Int).Sub(p.totalShares, shares)
	remaining := held.Sub(held, shares)
	if remaining.Sign() == 0 {
		delete(p.shares, provider)
	} else {
		p.shares[provider] = remaining
	}
	return outA, outB, nil
}

func (p *Pool) mint(to common.Address, shares *big.Int) {
	p.totalShares = new(big.Int).Add(p.totalShares, shares)
	held := p.SharesOf(to)
	p.shares[to] = held.Add(held, shares)
}
