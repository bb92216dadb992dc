// Package amm implements two-asset constant-product pools in the Uniswap v1/v2
// style: quoting, swaps, liquidity provisioning and flash swaps over exact
// big-integer arithmetic.
//
// A Pool is a plain value owned by its caller and is not safe for concurrent
// use. Registry guards pools that are shared between goroutines.
package amm

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"ammlab/internal/fixedpoint"
)

// Asset selects one side of a pool.
type Asset uint8

const (
	AssetA Asset = iota
	AssetB
)

// Other returns the opposite side.
func (a Asset) Other() Asset {
	if a == AssetA {
		return AssetB
	}
	return AssetA
}

func (a Asset) valid() bool { return a == AssetA || a == AssetB }

func (a Asset) String() string {
	switch a {
	case AssetA:
		return "A"
	case AssetB:
		return "B"
	default:
		return fmt.Sprintf("Asset(%d)", uint8(a))
	}
}

// TradeQuote is the immutable result of quoting a trade against a pool.
type TradeQuote struct {
	AssetIn    Asset
	AmountIn   *big.Int
	AmountOut  *big.Int
	FeePaid    *big.Int
	ReserveIn  *big.Int // after the trade
	ReserveOut *big.Int // after the trade
}

// Pool is a constant-product market between asset A and asset B.
type Pool struct {
	reserveA    *big.Int
	reserveB    *big.Int
	fee         Fee
	totalShares *big.Int
	shares      map[common.Address]*big.Int
	locked      bool
}

// NewPool returns an empty pool. The first AddLiquidity sets both reserves.
func NewPool(fee Fee) (*Pool, error) {
	if err := fee.Validate(); err != nil {
		return nil, err
	}
	return &Pool{
		reserveA:    new(big.Int),
		reserveB:    new(big.Int),
		fee:         fee,
		totalShares: new(big.Int),
		shares:      make(map[common.Address]*big.Int),
	}, nil
}

// NewSeededPool creates a pool and performs the initial two-sided deposit
// on behalf of provider.
func NewSeededPool(provider common.Address, amountA, amountB *big.Int, fee Fee) (*Pool, error) {
	p, err := NewPool(fee)
	if err != nil {
		return nil, err
	}
	if _, err := p.AddLiquidity(provider, amountA, amountB); err != nil {
		return nil, err
	}
	return p, nil
}

// Fee returns the pool's swap fee.
func (p *Pool) Fee() Fee { return p.fee }

// Reserves returns copies of both reserves.
func (p *Pool) Reserves() (*big.Int, *big.Int) {
	return new(big.Int).Set(p.reserveA), new(big.Int).Set(p.reserveB)
}

// Reserve returns a copy of one side's reserve.
func (p *Pool) Reserve(asset Asset) *big.Int {
	if asset == AssetA {
		return new(big.Int).Set(p.reserveA)
	}
	return new(big.Int).Set(p.reserveB)
}

// K returns reserveA*reserveB.
func (p *Pool) K() *big.Int {
	return new(big.Int).Mul(p.reserveA, p.reserveB)
}

// TotalShares returns the outstanding LP share supply.
func (p *Pool) TotalShares() *big.Int {
	return new(big.Int).Set(p.totalShares)
}

// SharesOf returns the LP shares held by holder.
func (p *Pool) SharesOf(holder common.Address) *big.Int {
	if s, ok := p.shares[holder]; ok {
		return new(big.Int).Set(s)
	}
	return new(big.Int)
}

// SpotPrice returns the instantaneous price of base in units of the other
// asset, scaled by scale.
func (p *Pool) SpotPrice(base Asset, scale *big.Int) (*big.Int, error) {
	in, out := p.sides(base)
	return SpotPrice(in, out, scale)
}

// QuoteExactInput prices a trade of amountIn of assetIn without mutating the pool.
func (p *Pool) QuoteExactInput(assetIn Asset, amountIn *big.Int) (TradeQuote, error) {
	if !assetIn.valid() {
		return TradeQuote{}, ErrUnknownAsset
	}
	reserveIn, reserveOut := p.sides(assetIn)
	out, err := QuoteOutputForExactInput(reserveIn, reserveOut, amountIn, p.fee)
	if err != nil {
		return TradeQuote{}, err
	}
	return p.buildQuote(assetIn, amountIn, out)
}

// QuoteExactOutput prices a trade that yields amountOut of assetOut without
// mutating the pool.
func (p *Pool) QuoteExactOutput(assetOut Asset, amountOut *big.Int) (TradeQuote, error) {
	if !assetOut.valid() {
		return TradeQuote{}, ErrUnknownAsset
	}
	assetIn := assetOut.Other()
	reserveIn, reserveOut := p.sides(assetIn)
	in, err := QuoteInputForExactOutput(reserveIn, reserveOut, amountOut, p.fee)
	if err != nil {
		return TradeQuote{}, err
	}
	return p.buildQuote(assetIn, in, amountOut)
}

// SwapExactInput sells amountIn of assetIn. A nil minAmountOut means no bound.
func (p *Pool) SwapExactInput(assetIn Asset, amountIn, minAmountOut *big.Int) (TradeQuote, error) {
	if p.locked {
		return TradeQuote{}, ErrPoolLocked
	}
	q, err := p.QuoteExactInput(assetIn, amountIn)
	if err != nil {
		return TradeQuote{}, err
	}
	if minAmountOut != nil && q.AmountOut.Cmp(minAmountOut) < 0 {
		return TradeQuote{}, fmt.Errorf("out %s < min %s: %w", q.AmountOut, minAmountOut, ErrSlippageExceeded)
	}
	if err := p.commit(q); err != nil {
		return TradeQuote{}, err
	}
	return q, nil
}

// SwapExactOutput buys amountOut of assetOut. A nil maxAmountIn means no bound.
func (p *Pool) SwapExactOutput(assetOut Asset, amountOut, maxAmountIn *big.Int) (TradeQuote, error) {
	if p.locked {
		return TradeQuote{}, ErrPoolLocked
	}
	q, err := p.QuoteExactOutput(assetOut, amountOut)
	if err != nil {
		return TradeQuote{}, err
	}
	if maxAmountIn != nil && q.AmountIn.Cmp(maxAmountIn) > 0 {
		return TradeQuote{}, fmt.Errorf("in %s > max %s: %w", q.AmountIn, maxAmountIn, ErrSlippageExceeded)
	}
	if err := p.commit(q); err != nil {
		return TradeQuote{}, err
	}
	return q, nil
}

func (p *Pool) buildQuote(assetIn Asset, amountIn, amountOut *big.Int) (TradeQuote, error) {
	reserveIn, reserveOut := p.sides(assetIn)
	newIn := new(big.Int).Add(reserveIn, amountIn)
	if err := fixedpoint.CheckU256(newIn); err != nil {
		return TradeQuote{}, fmt.Errorf("reserve %s: %w", assetIn, err)
	}
	return TradeQuote{
		AssetIn:    assetIn,
		AmountIn:   new(big.Int).Set(amountIn),
		AmountOut:  new(big.Int).Set(amountOut),
		FeePaid:    p.fee.Charged(amountIn),
		ReserveIn:  newIn,
		ReserveOut: new(big.Int).Sub(reserveOut, amountOut),
	}, nil
}

// commit applies a quote's post-trade reserves after checking the invariant.
// Both reserves are computed in the quote before either is written.
func (p *Pool) commit(q TradeQuote) error {
	before := p.K()
	after := new(big.Int).Mul(q.ReserveIn, q.ReserveOut)
	if after.Cmp(before) < 0 {
		return fmt.Errorf("k %s -> %s: %w", before, after, ErrInvariantViolation)
	}
	in, out := new(big.Int).Set(q.ReserveIn), new(big.Int).Set(q.ReserveOut)
	if q.AssetIn == AssetA {
		p.reserveA, p.reserveB = in, out
	} else {
		p.reserveB, p.reserveA = in, out
	}
	return nil
}

// sides returns the (in, out) reserves for a trade selling assetIn. The
// returned values alias pool state and must not be mutated.
func (p *Pool) sides(assetIn Asset) (*big.Int, *big.Int) {
	if assetIn == AssetA {
		return p.reserveA, p.reserveB
	}
	return p.reserveB, p.reserveA
}
