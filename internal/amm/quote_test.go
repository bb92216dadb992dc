package amm

import (
	"math/big"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ammlab/internal/fixedpoint"
)

func TestQuoteOutputForExactInput(t *testing.T) {
	tests := []struct {
		name                  string
		reserveIn, reserveOut int64
		amountIn              int64
		want                  int64
	}{
		// floor(10*997*10 / (100*1000 + 10*997)) = floor(99700/109970)
		{name: "small pool rounds to zero", reserveIn: 100, reserveOut: 10, amountIn: 10, want: 0},
		// 997000/109970
		{name: "balanced pool", reserveIn: 100, reserveOut: 100, amountIn: 10, want: 9},
		{name: "reverse direction", reserveIn: 10, reserveOut: 100, amountIn: 10, want: 49},
		{name: "large input", reserveIn: 1_000_000, reserveOut: 2_000_000, amountIn: 1_000, want: 1992},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			out, err := QuoteOutputForExactInput(big.NewInt(tc.reserveIn), big.NewInt(tc.reserveOut), big.NewInt(tc.amountIn), DefaultFee)
			require.NoError(t, err)
			assert.Equal(t, tc.want, out.Int64())
		})
	}
}

func TestQuoteErrors(t *testing.T) {
	one := big.NewInt(1)
	zero := big.NewInt(0)

	_, err := QuoteOutputForExactInput(one, one, zero, DefaultFee)
	require.ErrorIs(t, err, ErrInvalidAmount)
	_, err = QuoteOutputForExactInput(one, one, nil, DefaultFee)
	require.ErrorIs(t, err, ErrInvalidAmount)
	_, err = QuoteOutputForExactInput(zero, one, one, DefaultFee)
	require.ErrorIs(t, err, ErrEmptyPool)
	_, err = QuoteOutputForExactInput(one, zero, one, DefaultFee)
	require.ErrorIs(t, err, ErrEmptyPool)
	_, err = QuoteOutputForExactInput(one, one, one, Fee{Num: 2, Den: 1})
	require.ErrorIs(t, err, ErrInvalidFee)

	_, err = QuoteInputForExactOutput(big.NewInt(100), big.NewInt(10), big.NewInt(10), DefaultFee)
	require.ErrorIs(t, err, ErrInsufficientReserves)
	_, err = QuoteInputForExactOutput(big.NewInt(100), big.NewInt(10), big.NewInt(11), DefaultFee)
	require.ErrorIs(t, err, ErrInsufficientReserves)
	_, err = QuoteInputForExactOutput(big.NewInt(100), big.NewInt(10), zero, DefaultFee)
	require.ErrorIs(t, err, ErrInvalidAmount)
	_, err = QuoteInputForExactOutput(zero, big.NewInt(10), one, DefaultFee)
	require.ErrorIs(t, err, ErrEmptyPool)

	huge := new(big.Int).Lsh(big.NewInt(1), 256)
	_, err = QuoteOutputForExactInput(one, one, huge, DefaultFee)
	require.ErrorIs(t, err, fixedpoint.ErrOverflow)
}

func TestQuoteInputForExactOutput(t *testing.T) {
	// ceil(100*5*1000 / (5*997)) + 1 = ceil(100.30..) + 1
	in, err := QuoteInputForExactOutput(big.NewInt(100), big.NewInt(10), big.NewInt(5), DefaultFee)
	require.NoError(t, err)
	assert.Equal(t, int64(102), in.Int64())
}

func TestQuoteInversion(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	fees := []Fee{DefaultFee, {Num: 1, Den: 1}, {Num: 9_970, Den: 10_000}, {Num: 95, Den: 100}}

	for i := 0; i < 500; i++ {
		reserveIn := new(big.Int).Rand(rng, fixedpoint.Ether(1_000_000))
		reserveIn.Add(reserveIn, big.NewInt(1))
		reserveOut := new(big.Int).Rand(rng, fixedpoint.Ether(1_000_000))
		reserveOut.Add(reserveOut, big.NewInt(2))
		amountOut := new(big.Int).Rand(rng, new(big.Int).Sub(reserveOut, big.NewInt(1)))
		amountOut.Add(amountOut, big.NewInt(1))
		fee := fees[i%len(fees)]

		in, err := QuoteInputForExactOutput(reserveIn, reserveOut, amountOut, fee)
		require.NoError(t, err)
		out, err := QuoteOutputForExactInput(reserveIn, reserveOut, in, fee)
		require.NoError(t, err)
		require.True(t, out.Cmp(amountOut) >= 0, "reserves %s/%s want %s got %s", reserveIn, reserveOut, amountOut, out)
	}
}

func TestQuoteOutputMonotonicAndBounded(t *testing.T) {
	reserveIn, reserveOut := fixedpoint.Ether(10), fixedpoint.Ether(10)
	prev := big.NewInt(0)
	for _, units := range []int64{1, 10, 100, 1_000, 1_000_000, 1_000_000_000} {
		out, err := QuoteOutputForExactInput(reserveIn, reserveOut, fixedpoint.Ether(units), DefaultFee)
		require.NoError(t, err)
		assert.True(t, out.Cmp(prev) >= 0)
		assert.True(t, out.Cmp(reserveOut) < 0)
		prev = out
	}
}

func TestQuoteAndSpotPrice(t *testing.T) {
	q, err := Quote(fixedpoint.Ether(1), fixedpoint.Ether(100), fixedpoint.Ether(10))
	require.NoError(t, err)
	assert.Equal(t, "100000000000000000", q.String())

	p, err := SpotPrice(fixedpoint.Ether(10), fixedpoint.Ether(20), fixedpoint.WAD)
	require.NoError(t, err)
	assert.Equal(t, fixedpoint.Ether(2).String(), p.String())

	_, err = SpotPrice(big.NewInt(0), big.NewInt(1), fixedpoint.WAD)
	require.ErrorIs(t, err, ErrEmptyPool)
}

func TestGetAmountOutMatchesQuote(t *testing.T) {
	amountIn, reserveIn, reserveOut := big.NewInt(1_000), big.NewInt(1_000_000), big.NewInt(2_000_000)
	got := getAmountOut(new(big.Int), new(big.Int), new(big.Int), amountIn, reserveIn, reserveOut, big.NewInt(997), big.NewInt(1000))
	want, err := QuoteOutputForExactInput(reserveIn, reserveOut, amountIn, DefaultFee)
	require.NoError(t, err)
	assert.Equal(t, want.String(), got.String())
}

func BenchmarkGetAmountOut(b *testing.B) {
	amountIn, reserveIn, reserveOut := fixedpoint.Ether(3), fixedpoint.Ether(1_000), fixedpoint.Ether(2_000)
	num, den := big.NewInt(997), big.NewInt(1000)
	dst, t1, t2 := new(big.Int), new(big.Int), new(big.Int)
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		getAmountOut(dst, t1, t2, amountIn, reserveIn, reserveOut, num, den)
	}
}
