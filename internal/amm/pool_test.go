package amm

import (
	"math/big"
	"math/rand"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ammlab/internal/fixedpoint"
)

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
)

func seeded(t *testing.T, a, b *big.Int) *Pool {
	t.Helper()
	p, err := NewSeededPool(alice, a, b, DefaultFee)
	require.NoError(t, err)
	return p
}

func TestSwapExactInputRegressionFixture(t *testing.T) {
	p := seeded(t, big.NewInt(100), big.NewInt(10))

	q, err := p.SwapExactInput(AssetA, big.NewInt(10), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), q.AmountOut.Int64())
	assert.Equal(t, int64(0), q.FeePaid.Int64())

	a, b := p.Reserves()
	assert.Equal(t, int64(110), a.Int64())
	assert.Equal(t, int64(10), b.Int64())
}

func TestSwapExactInputUpdatesReserves(t *testing.T) {
	p := seeded(t, big.NewInt(1_000_000), big.NewInt(2_000_000))

	q, err := p.SwapExactInput(AssetB, big.NewInt(2_000), big.NewInt(990))
	require.NoError(t, err)
	assert.Equal(t, AssetB, q.AssetIn)
	assert.Equal(t, int64(6), q.FeePaid.Int64())

	a, b := p.Reserves()
	assert.Equal(t, new(big.Int).Sub(big.NewInt(1_000_000), q.AmountOut).String(), a.String())
	assert.Equal(t, int64(2_002_000), b.Int64())
	assert.Equal(t, q.ReserveIn.String(), b.String())
	assert.Equal(t, q.ReserveOut.String(), a.String())
}

func TestSwapSlippage(t *testing.T) {
	p := seeded(t, big.NewInt(1_000), big.NewInt(1_000))
	before := p.Snapshot()

	_, err := p.SwapExactInput(AssetA, big.NewInt(100), big.NewInt(91))
	require.ErrorIs(t, err, ErrSlippageExceeded)
	assert.Equal(t, before, p.Snapshot())

	// ceil(1000*90*1000 / (910*997)) + 1
	_, err = p.SwapExactOutput(AssetB, big.NewInt(90), big.NewInt(100))
	require.ErrorIs(t, err, ErrSlippageExceeded)
	assert.Equal(t, before, p.Snapshot())

	q, err := p.SwapExactOutput(AssetB, big.NewInt(90), big.NewInt(101))
	require.NoError(t, err)
	assert.Equal(t, int64(101), q.AmountIn.Int64())
	assert.Equal(t, int64(90), q.AmountOut.Int64())
}

func TestSwapExactOutputDrainGuard(t *testing.T) {
	p := seeded(t, big.NewInt(1_000), big.NewInt(1_000))
	_, err := p.SwapExactOutput(AssetB, big.NewInt(1_000), nil)
	require.ErrorIs(t, err, ErrInsufficientReserves)
	_, err = p.SwapExactInput(Asset(7), big.NewInt(1), nil)
	require.ErrorIs(t, err, ErrUnknownAsset)
}

func TestSwapInvariantMonotonic(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	p := seeded(t, fixedpoint.Ether(500), fixedpoint.Ether(1_500))

	for i := 0; i < 1_000; i++ {
		k := p.K()
		asset := Asset(rng.Intn(2))
		amount := new(big.Int).Rand(rng, fixedpoint.Ether(50))
		amount.Add(amount, big.NewInt(1))

		var err error
		if i%3 == 0 {
			reserve := p.Reserve(asset.Other())
			want := new(big.Int).Div(reserve, big.NewInt(int64(rng.Intn(20)+2)))
			if want.Sign() == 0 {
				continue
			}
			_, err = p.SwapExactOutput(asset.Other(), want, nil)
		} else {
			_, err = p.SwapExactInput(asset, amount, nil)
		}
		require.NoError(t, err)
		require.True(t, p.K().Cmp(k) >= 0, "step %d: k decreased", i)
	}
}

func TestSpotPriceManipulation(t *testing.T) {
	p := seeded(t, fixedpoint.Ether(10), fixedpoint.Ether(10))

	before, err := p.SpotPrice(AssetA, fixedpoint.WAD)
	require.NoError(t, err)
	assert.Equal(t, fixedpoint.WAD.String(), before.String())

	_, err = p.SwapExactInput(AssetA, fixedpoint.Ether(1_000), nil)
	require.NoError(t, err)

	after, err := p.SpotPrice(AssetA, fixedpoint.WAD)
	require.NoError(t, err)
	shifted := new(big.Int).Mul(after, big.NewInt(10))
	assert.True(t, before.Cmp(shifted) > 0, "price moved from %s to %s", before, after)
}

func TestCheckpointRestores(t *testing.T) {
	p := seeded(t, big.NewInt(1_000), big.NewInt(4_000))
	restore := p.Checkpoint()

	_, err := p.SwapExactInput(AssetA, big.NewInt(500), nil)
	require.NoError(t, err)
	_, err = p.AddLiquidity(bob, big.NewInt(10), big.NewInt(1_000))
	require.NoError(t, err)

	restore()
	a, b := p.Reserves()
	assert.Equal(t, int64(1_000), a.Int64())
	assert.Equal(t, int64(4_000), b.Int64())
	assert.Equal(t, int64(0), p.SharesOf(bob).Int64())
	assert.Equal(t, int64(4_000), p.TotalShares().Int64())
}

func TestNewPoolRejectsBadFee(t *testing.T) {
	_, err := NewPool(Fee{Num: 0, Den: 1000})
	require.ErrorIs(t, err, ErrInvalidFee)
	_, err = NewPool(Fee{Num: 1, Den: 0})
	require.ErrorIs(t, err, ErrInvalidFee)
}

func TestEmptyPoolSwap(t *testing.T) {
	p, err := NewPool(DefaultFee)
	require.NoError(t, err)
	_, err = p.SwapExactInput(AssetA, big.NewInt(1), nil)
	require.ErrorIs(t, err, ErrEmptyPool)
}
