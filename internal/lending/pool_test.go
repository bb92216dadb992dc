package lending

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ammlab/internal/amm"
	"ammlab/internal/exchange"
	"ammlab/internal/fixedpoint"
	"ammlab/internal/ledger"
)

var (
	token    = common.HexToAddress("0x00000000000000000000000000000000000070c1")
	weth     = common.HexToAddress("0x000000000000000000000000000000000000e7e1")
	pair     = common.HexToAddress("0x0000000000000000000000000000000000000a1a")
	lender   = common.HexToAddress("0x0000000000000000000000000000000000001e4d")
	deployer = common.HexToAddress("0x00000000000000000000000000000000000de901")
	attacker = common.HexToAddress("0x0000000000000000000000000000000000000bad")
)

func setup(t *testing.T, tokenReserve, wethReserve int64, cfg Config) (*Pool, *exchange.Exchange, *ledger.Ledger) {
	t.Helper()
	book := ledger.New()
	require.NoError(t, book.Mint(token, deployer, fixedpoint.Ether(tokenReserve)))
	require.NoError(t, book.Mint(weth, deployer, fixedpoint.Ether(wethReserve)))
	ex, err := exchange.New(exchange.Config{Account: pair, TokenA: token, TokenB: weth}, amm.DefaultFee, book, nil, nil)
	require.NoError(t, err)
	_, err = ex.AddLiquidity(deployer, fixedpoint.Ether(tokenReserve), fixedpoint.Ether(wethReserve))
	require.NoError(t, err)

	cfg.Account, cfg.Token, cfg.Collateral = lender, token, weth
	p, err := New(cfg, book, ex, nil)
	require.NoError(t, err)
	return p, ex, book
}

func TestDepositRequiredSpot(t *testing.T) {
	p, _, _ := setup(t, 10, 10, Config{Multiplier: 2, Pricing: PricingSpot})
	got, err := p.DepositRequired(fixedpoint.Ether(1))
	require.NoError(t, err)
	assert.Equal(t, fixedpoint.Ether(2).String(), got.String())
}

func TestDepositRequiredQuote(t *testing.T) {
	p, _, _ := setup(t, 100, 10, Config{Multiplier: 3, Pricing: PricingQuote})
	got, err := p.DepositRequired(fixedpoint.Ether(1))
	require.NoError(t, err)
	assert.Equal(t, "300000000000000000", got.String())
}

func TestDepositRequiredFollowsReserves(t *testing.T) {
	p, ex, book := setup(t, 10, 10, Config{Multiplier: 2, Pricing: PricingSpot})
	before, err := p.DepositRequired(fixedpoint.Ether(1))
	require.NoError(t, err)

	require.NoError(t, book.Mint(token, attacker, fixedpoint.Ether(1_000)))
	_, err = ex.SwapExactInput(attacker, token, fixedpoint.Ether(1_000), nil)
	require.NoError(t, err)

	after, err := p.DepositRequired(fixedpoint.Ether(1))
	require.NoError(t, err)
	assert.True(t, before.Cmp(new(big.Int).Mul(after, big.NewInt(10))) > 0, "before %s after %s", before, after)
}

func TestBorrow(t *testing.T) {
	p, _, book := setup(t, 10, 10, Config{Multiplier: 2, Pricing: PricingSpot})
	require.NoError(t, book.Mint(token, lender, fixedpoint.Ether(100)))
	require.NoError(t, book.Mint(weth, attacker, fixedpoint.Ether(5)))

	_, err := p.Borrow(context.Background(), attacker, fixedpoint.Ether(3))
	require.ErrorIs(t, err, ErrInsufficientCollateral)

	paid, err := p.Borrow(context.Background(), attacker, fixedpoint.Ether(2))
	require.NoError(t, err)
	assert.Equal(t, fixedpoint.Ether(4).String(), paid.String())
	assert.Equal(t, fixedpoint.Ether(2).String(), book.BalanceOf(token, attacker).String())
	assert.Equal(t, fixedpoint.Ether(1).String(), book.BalanceOf(weth, attacker).String())
	assert.Equal(t, fixedpoint.Ether(4).String(), p.CollateralOf(attacker).String())

	require.NoError(t, book.Mint(weth, attacker, fixedpoint.Ether(1_000)))
	_, err = p.Borrow(context.Background(), attacker, fixedpoint.Ether(101))
	require.ErrorIs(t, err, ErrInsufficientLiquidity)
	_, err = p.Borrow(context.Background(), attacker, fixedpoint.Ether(0))
	require.ErrorIs(t, err, ErrInvalidAmount)
}

func TestLedgerRevertForgetsBorrow(t *testing.T) {
	p, _, book := setup(t, 10, 10, Config{Multiplier: 2, Pricing: PricingSpot})
	require.NoError(t, book.Mint(token, lender, fixedpoint.Ether(100)))
	require.NoError(t, book.Mint(weth, attacker, fixedpoint.Ether(4)))

	id := book.Snapshot()
	_, err := p.Borrow(context.Background(), attacker, fixedpoint.Ether(2))
	require.NoError(t, err)
	assert.Equal(t, fixedpoint.Ether(4).String(), p.CollateralOf(attacker).String())
	book.RevertToSnapshot(id)

	assert.Equal(t, 0, p.CollateralOf(attacker).Sign())
	assert.Equal(t, fixedpoint.Ether(4).String(), book.BalanceOf(weth, attacker).String())
	assert.Equal(t, fixedpoint.Ether(100).String(), book.BalanceOf(token, lender).String())
}
