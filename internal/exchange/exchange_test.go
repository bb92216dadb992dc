package exchange

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ammlab/internal/amm"
	"ammlab/internal/fixedpoint"
	"ammlab/internal/ledger"
)

var (
	token  = common.HexToAddress("0x00000000000000000000000000000000000070c1")
	weth   = common.HexToAddress("0x000000000000000000000000000000000000e7e1")
	pair   = common.HexToAddress("0x0000000000000000000000000000000000000a1a")
	lp     = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	trader = common.HexToAddress("0x00000000000000000000000000000000000000b2")
)

func newExchange(t *testing.T) (*Exchange, *ledger.Ledger) {
	t.Helper()
	book := ledger.New()
	require.NoError(t, book.Mint(token, lp, fixedpoint.Ether(1_000)))
	require.NoError(t, book.Mint(weth, lp, fixedpoint.Ether(100)))
	ex, err := New(Config{Name: "test", Account: pair, TokenA: token, TokenB: weth}, amm.DefaultFee, book, nil, nil)
	require.NoError(t, err)
	_, err = ex.AddLiquidity(lp, fixedpoint.Ether(1_000), fixedpoint.Ether(100))
	require.NoError(t, err)
	return ex, book
}

func assertMirrored(t *testing.T, ex *Exchange, book *ledger.Ledger) {
	t.Helper()
	a, b := ex.Pool().Reserves()
	assert.Equal(t, a.String(), book.BalanceOf(token, pair).String())
	assert.Equal(t, b.String(), book.BalanceOf(weth, pair).String())
}

func TestSwapMovesTokens(t *testing.T) {
	ex, book := newExchange(t)
	require.NoError(t, book.Mint(token, trader, fixedpoint.Ether(10)))

	q, err := ex.SwapExactInput(trader, token, fixedpoint.Ether(10), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, book.BalanceOf(token, trader).Sign())
	assert.Equal(t, q.AmountOut.String(), book.BalanceOf(weth, trader).String())
	assertMirrored(t, ex, book)

	q, err = ex.SwapExactOutput(trader, token, fixedpoint.Ether(1), nil)
	require.NoError(t, err)
	assert.Equal(t, fixedpoint.Ether(1).String(), book.BalanceOf(token, trader).String())
	assertMirrored(t, ex, book)
}

func TestSwapWithoutFundsRollsBack(t *testing.T) {
	ex, book := newExchange(t)
	before := ex.Pool().Snapshot()

	_, err := ex.SwapExactInput(trader, token, fixedpoint.Ether(10), nil)
	require.ErrorIs(t, err, ledger.ErrInsufficientBalance)
	assert.Equal(t, before, ex.Pool().Snapshot())
	assertMirrored(t, ex, book)

	_, err = ex.SwapExactInput(trader, common.HexToAddress("0x01"), fixedpoint.Ether(1), nil)
	require.ErrorIs(t, err, amm.ErrUnknownAsset)
}

func TestLiquidityRoundTrip(t *testing.T) {
	ex, book := newExchange(t)
	outA, outB, err := ex.RemoveLiquidity(lp, fixedpoint.Ether(50))
	require.NoError(t, err)
	assert.Equal(t, fixedpoint.Ether(500).String(), outA.String())
	assert.Equal(t, fixedpoint.Ether(50).String(), outB.String())
	assertMirrored(t, ex, book)
}

func TestFlashSwap(t *testing.T) {
	ex, book := newExchange(t)
	require.NoError(t, book.Mint(weth, trader, fixedpoint.Ether(1)))
	borrowed := fixedpoint.Ether(5)

	_, err := ex.FlashSwap(context.Background(), trader, weth, borrowed, func(ctx context.Context, got *big.Int) error {
		assert.Equal(t, fixedpoint.Ether(6).String(), book.BalanceOf(weth, trader).String())
		repay, err := amm.FlashSwapRepayment(got, ex.Pool().Fee())
		if err != nil {
			return err
		}
		return book.Transfer(weth, trader, pair, repay)
	})
	require.NoError(t, err)
	assertMirrored(t, ex, book)
	assert.True(t, book.BalanceOf(weth, trader).Cmp(fixedpoint.Ether(1)) < 0)

	before := ex.Pool().Snapshot()
	boom := errors.New("boom")
	_, err = ex.FlashSwap(context.Background(), trader, weth, borrowed, func(ctx context.Context, got *big.Int) error {
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, before, ex.Pool().Snapshot())
	assertMirrored(t, ex, book)

	_, err = ex.FlashSwap(context.Background(), trader, weth, borrowed, func(ctx context.Context, got *big.Int) error {
		return book.Transfer(weth, trader, pair, got)
	})
	require.ErrorIs(t, err, amm.ErrInsufficientRepayment)
	assertMirrored(t, ex, book)
}

func TestLedgerRevertRestoresReserves(t *testing.T) {
	ex, book := newExchange(t)
	require.NoError(t, book.Mint(token, trader, fixedpoint.Ether(10)))
	before := ex.Pool().Snapshot()

	id := book.Snapshot()
	_, err := ex.SwapExactInput(trader, token, fixedpoint.Ether(10), nil)
	require.NoError(t, err)
	book.RevertToSnapshot(id)

	assert.Equal(t, before, ex.Pool().Snapshot())
	assertMirrored(t, ex, book)
	assert.Equal(t, fixedpoint.Ether(10).String(), book.BalanceOf(token, trader).String())
}
