package amm

import (
	"fmt"
	"math/big"

	"ammlab/internal/fixedpoint"
)

// QuoteOutputForExactInput returns
// floor(amountIn*num*reserveOut / (reserveIn*den + amountIn*num)).
func QuoteOutputForExactInput(reserveIn, reserveOut, amountIn *big.Int, fee Fee) (*big.Int, error) {
	if err := checkAmount(amountIn); err != nil {
		return nil, err
	}
	if err := checkReserves(reserveIn, reserveOut); err != nil {
		return nil, err
	}
	if err := fee.Validate(); err != nil {
		return nil, err
	}

	out := getAmountOut(new(big.Int), new(big.Int), new(big.Int), amountIn, reserveIn, reserveOut, fee.num(), fee.den())
	if err := fixedpoint.CheckU256(out); err != nil {
		return nil, err
	}
	return out, nil
}

// QuoteInputForExactOutput returns
// ceil(reserveIn*amountOut*den / ((reserveOut-amountOut)*num)) + 1.
// Feeding the result back into QuoteOutputForExactInput yields at least amountOut.
func QuoteInputForExactOutput(reserveIn, reserveOut, amountOut *big.Int, fee Fee) (*big.Int, error) {
	if err := checkAmount(amountOut); err != nil {
		return nil, err
	}
	if err := checkReserves(reserveIn, reserveOut); err != nil {
		return nil, err
	}
	if err := fee.Validate(); err != nil {
		return nil, err
	}
	if amountOut.Cmp(reserveOut) >= 0 {
		return nil, fmt.Errorf("amount out %s, reserve %s: %w", amountOut, reserveOut, ErrInsufficientReserves)
	}

	num := new(big.Int).Mul(reserveIn, amountOut)
	num.Mul(num, fee.den())
	den := new(big.Int).Sub(reserveOut, amountOut)
	den.Mul(den, fee.num())

	in := fixedpoint.DivCeil(num, den)
	in.Add(in, big.NewInt(1))
	if err := fixedpoint.CheckU256(in); err != nil {
		return nil, err
	}
	return in, nil
}

// Quote returns amountA*reserveB/reserveA, the Uniswap v2 library ratio quote
// with no fee.
func Quote(amountA, reserveA, reserveB *big.Int) (*big.Int, error) {
	if err := checkAmount(amountA); err != nil {
		return nil, err
	}
	if err := checkReserves(reserveA, reserveB); err != nil {
		return nil, err
	}
	return fixedpoint.MulDivFloor(amountA, reserveB, reserveA)
}

// SpotPrice returns reserveOut*scale/reserveIn, the instantaneous price of
// one unit of the input asset. No averaging is applied.
func SpotPrice(reserveIn, reserveOut, scale *big.Int) (*big.Int, error) {
	if err := checkReserves(reserveIn, reserveOut); err != nil {
		return nil, err
	}
	return fixedpoint.MulDivFloor(reserveOut, scale, reserveIn)
}

// getAmountOut writes the exact-input formula into dst using t1 and t2 as
// scratch space. None of dst, t1, t2 may alias an input.
func getAmountOut(dst, t1, t2, amountIn, reserveIn, reserveOut, feeNum, feeDen *big.Int) *big.Int {
	t1.Mul(amountIn, feeNum)
	t2.Mul(reserveIn, feeDen)
	t2.Add(t2, t1)
	dst.Mul(t1, reserveOut)
	return dst.Quo(dst, t2)
}

func checkAmount(amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if err := fixedpoint.CheckU256(amount); err != nil {
		return fmt.Errorf("amount: %w", err)
	}
	return nil
}

func checkReserves(reserveIn, reserveOut *big.Int) error {
	if reserveIn == nil || reserveOut == nil || reserveIn.Sign() <= 0 || reserveOut.Sign() <= 0 {
		return ErrEmptyPool
	}
	if err := fixedpoint.CheckU256(reserveIn); err != nil {
		return fmt.Errorf("reserve in: %w", err)
	}
	if err := fixedpoint.CheckU256(reserveOut); err != nil {
		return fmt.Errorf("reserve out: %w", err)
	}
	return nil
}
