package amm

import (
	"fmt"
	"math/big"
)

// Fee is the fraction of every input amount that counts toward the trade.
// 997/1000 charges 0.3%.
type Fee struct {
	Num int64 `json:"num" yaml:"num"`
	Den int64 `json:"den" yaml:"den"`
}

// DefaultFee is the Uniswap v1/v2 0.3% fee.
var DefaultFee = Fee{Num: 997, Den: 1000}

// Validate checks 0 < Num <= Den.
func (f Fee) Validate() error {
	if f.Den <= 0 || f.Num <= 0 || f.Num > f.Den {
		return fmt.Errorf("%d/%d: %w", f.Num, f.Den, ErrInvalidFee)
	}
	return nil
}

func (f Fee) num() *big.Int { return big.NewInt(f.Num) }
func (f Fee) den() *big.Int { return big.NewInt(f.Den) }

// Charged returns the part of amountIn kept by the pool as fee, rounded down.
func (f Fee) Charged(amountIn *big.Int) *big.Int {
	out := new(big.Int).Mul(amountIn, big.NewInt(f.Den-f.Num))
	return out.Quo(out, f.den())
}

func (f Fee) String() string {
	return fmt.Sprintf("%d/%d", f.Num, f.Den)
}
