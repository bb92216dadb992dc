package flash

import "math/big"

// FeePolicy computes the fee charged on a loan of amount drawn from a lender
// holding available.
type FeePolicy interface {
	Fee(amount, available *big.Int) *big.Int
}

// FlatFee charges the same amount on every loan, including zero-amount loans.
type FlatFee struct {
	Amount *big.Int
}

func (f FlatFee) Fee(_, _ *big.Int) *big.Int {
	if f.Amount == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(f.Amount)
}

// ProportionalFee charges floor(amount*Num/Den).
type ProportionalFee struct {
	Num int64
	Den int64
}

func (f ProportionalFee) Fee(amount, _ *big.Int) *big.Int {
	if f.Den <= 0 || f.Num <= 0 {
		return new(big.Int)
	}
	out := new(big.Int).Mul(amount, big.NewInt(f.Num))
	return out.Quo(out, big.NewInt(f.Den))
}

// MaxDrawFee is free for loans below the lender's whole balance and charges
// floor(amount*Num/Den) when the entire balance is drawn.
type MaxDrawFee struct {
	Num int64
	Den int64
}

func (f MaxDrawFee) Fee(amount, available *big.Int) *big.Int {
	if amount.Cmp(available) < 0 {
		return new(big.Int)
	}
	return ProportionalFee(f).Fee(amount, available)
}

// NoFee charges nothing.
type NoFee struct{}

func (NoFee) Fee(_, _ *big.Int) *big.Int { return new(big.Int) }
