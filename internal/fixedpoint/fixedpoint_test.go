package fixedpoint

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckU256(t *testing.T) {
	maxU256 := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

	require.NoError(t, CheckU256(big.NewInt(0)))
	require.NoError(t, CheckU256(maxU256))
	require.ErrorIs(t, CheckU256(new(big.Int).Add(maxU256, big.NewInt(1))), ErrOverflow)
	require.ErrorIs(t, CheckU256(big.NewInt(-1)), ErrNegative)
	require.ErrorIs(t, CheckU256(nil), ErrNegative)
}

func TestMulDiv(t *testing.T) {
	tests := []struct {
		name      string
		a, b, den int64
		floor     int64
		ceil      int64
	}{
		{name: "exact", a: 6, b: 4, den: 3, floor: 8, ceil: 8},
		{name: "remainder", a: 7, b: 3, den: 4, floor: 5, ceil: 6},
		{name: "zero numerator", a: 0, b: 9, den: 5, floor: 0, ceil: 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f, err := MulDivFloor(big.NewInt(tc.a), big.NewInt(tc.b), big.NewInt(tc.den))
			require.NoError(t, err)
			assert.Equal(t, tc.floor, f.Int64())

			c, err := MulDivCeil(big.NewInt(tc.a), big.NewInt(tc.b), big.NewInt(tc.den))
			require.NoError(t, err)
			assert.Equal(t, tc.ceil, c.Int64())
		})
	}

	_, err := MulDivFloor(big.NewInt(1), big.NewInt(1), big.NewInt(0))
	require.ErrorIs(t, err, ErrDivisionByZero)
}

func TestDivCeilDoesNotMutate(t *testing.T) {
	x, y := big.NewInt(10), big.NewInt(3)
	assert.Equal(t, int64(4), DivCeil(x, y).Int64())
	assert.Equal(t, int64(10), x.Int64())
	assert.Equal(t, int64(3), y.Int64())
}

func TestUnits(t *testing.T) {
	assert.Equal(t, "1.5", FormatUnits(big.NewInt(1_500_000), 6))
	assert.Equal(t, "0", FormatUnits(nil, 18))

	v, err := ParseUnits("2.25", 18)
	require.NoError(t, err)
	assert.Equal(t, "2250000000000000000", v.String())
	assert.Equal(t, Ether(1000).String(), "1000000000000000000000")

	_, err = ParseUnits("-1", 18)
	require.ErrorIs(t, err, ErrNegative)
	_, err = ParseUnits("abc", 18)
	require.Error(t, err)
}
