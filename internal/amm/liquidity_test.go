package amm

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddLiquidityFirstDepositMintsAssetB(t *testing.T) {
	p, err := NewPool(DefaultFee)
	require.NoError(t, err)

	r, err := p.AddLiquidity(alice, big.NewInt(10), big.NewInt(25))
	require.NoError(t, err)
	assert.Equal(t, int64(25), r.Shares.Int64())
	assert.Equal(t, int64(10), r.AmountA.Int64())
	assert.Equal(t, int64(25), r.AmountB.Int64())
	assert.Equal(t, int64(25), p.TotalShares().Int64())
	assert.Equal(t, int64(25), p.SharesOf(alice).Int64())
}

func TestAddLiquidityProportional(t *testing.T) {
	p := seeded(t, big.NewInt(1_000), big.NewInt(2_000))

	r, err := p.AddLiquidity(bob, big.NewInt(100), big.NewInt(500))
	require.NoError(t, err)
	assert.Equal(t, int64(200), r.AmountB.Int64())
	assert.Equal(t, int64(200), r.Shares.Int64())

	a, b := p.Reserves()
	assert.Equal(t, int64(1_100), a.Int64())
	assert.Equal(t, int64(2_200), b.Int64())
	assert.Equal(t, int64(2_200), p.TotalShares().Int64())
}

func TestAddLiquidityInsufficientAmount(t *testing.T) {
	p := seeded(t, big.NewInt(1_000), big.NewInt(2_000))
	before := p.Snapshot()

	_, err := p.AddLiquidity(bob, big.NewInt(100), big.NewInt(199))
	require.ErrorIs(t, err, ErrInsufficientAmount)
	assert.Equal(t, before, p.Snapshot())

	_, err = p.AddLiquidity(bob, big.NewInt(0), big.NewInt(199))
	require.ErrorIs(t, err, ErrInvalidAmount)
}

func TestRemoveLiquidity(t *testing.T) {
	p := seeded(t, big.NewInt(1_000), big.NewInt(2_000))
	_, err := p.AddLiquidity(bob, big.NewInt(500), big.NewInt(1_000))
	require.NoError(t, err)

	outA, outB, err := p.RemoveLiquidity(bob, big.NewInt(1_000))
	require.NoError(t, err)
	assert.Equal(t, int64(500), outA.Int64())
	assert.Equal(t, int64(1_000), outB.Int64())
	assert.Equal(t, int64(0), p.SharesOf(bob).Int64())

	_, _, err = p.RemoveLiquidity(bob, big.NewInt(1))
	require.ErrorIs(t, err, ErrInsufficientShares)
	_, _, err = p.RemoveLiquidity(alice, big.NewInt(2_001))
	require.ErrorIs(t, err, ErrInsufficientShares)
	_, _, err = p.RemoveLiquidity(alice, big.NewInt(0))
	require.ErrorIs(t, err, ErrInvalidAmount)
}

func TestRemoveAllLiquidityEmptiesPool(t *testing.T) {
	p := seeded(t, big.NewInt(1_000), big.NewInt(2_000))
	_, err := p.SwapExactInput(AssetA, big.NewInt(300), nil)
	require.NoError(t, err)
	reserveA, reserveB := p.Reserves()

	outA, outB, err := p.RemoveLiquidity(alice, p.SharesOf(alice))
	require.NoError(t, err)
	assert.Equal(t, reserveA.String(), outA.String())
	assert.Equal(t, reserveB.String(), outB.String())
	assert.Equal(t, 0, p.TotalShares().Sign())

	r, err := p.AddLiquidity(bob, big.NewInt(7), big.NewInt(3))
	require.NoError(t, err)
	assert.Equal(t, int64(3), r.Shares.Int64())
}
