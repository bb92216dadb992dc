package scenario

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"ammlab/internal/amm"
	"ammlab/internal/exchange"
	"ammlab/internal/fixedpoint"
	"ammlab/internal/ledger"
	"ammlab/internal/lending"
)

// puppet: a lending pool prices its collateral from a thin exchange's spot
// price. Dumping tokens into the exchange makes the pool's tokens nearly free.
func puppet() Scenario {
	return Scenario{
		Name:        "puppet",
		Description: "Crash a spot-price oracle by dumping tokens into a thin exchange, then borrow the lending pool dry.",
		Defaults: Params{
			"exchange_tokens": "10",
			"exchange_eth":    "10",
			"pool_tokens":     "100000",
			"player_tokens":   "1000",
			"player_eth":      "25",
			"min_eth_out":     "9",
		},
		run: runPuppet,
	}
}

func runPuppet(ctx context.Context, env *Env) (bool, error) {
	amt, err := loadAmounts(env, "exchange_tokens", "exchange_eth", "pool_tokens", "player_tokens", "player_eth", "min_eth_out")
	if err != nil {
		return false, err
	}
	token := Address("token/DVT")
	deployer, player := Address("deployer"), Address("player")

	ex, err := newSeededExchange(env, exchange.Config{
		Name:    "puppet-exchange",
		Account: Address("puppet/exchange"),
		TokenA:  token,
		TokenB:  ledger.Native,
	}, deployer, amt["exchange_tokens"], amt["exchange_eth"])
	if err != nil {
		return false, err
	}
	lp, err := lending.New(lending.Config{
		Account:    Address("puppet/lending"),
		Token:      token,
		Collateral: ledger.Native,
		Multiplier: 2,
		Pricing:    lending.PricingSpot,
	}, env.Book, ex, env.Logger)
	if err != nil {
		return false, err
	}
	if err := env.Mint(token, lp.Account(), amt["pool_tokens"]); err != nil {
		return false, err
	}
	if err := env.Mint(token, player, amt["player_tokens"]); err != nil {
		return false, err
	}
	if err := env.Mint(ledger.Native, player, amt["player_eth"]); err != nil {
		return false, err
	}

	env.Track("lending pool", lp.Account(), "DVT", token)
	env.Track("exchange", ex.Account(), "ETH", ledger.Native)
	env.Track("player", player, "DVT", token)
	env.Track("player", player, "ETH", ledger.Native)

	if err := logPrice(env, ex, "price before"); err != nil {
		return false, err
	}
	q, err := ex.SwapExactInput(player, token, amt["player_tokens"], amt["min_eth_out"])
	if err != nil {
		return false, fmt.Errorf("dump tokens: %w", err)
	}
	env.Step("swap", "sell %s DVT for %s ETH", formatEther(q.AmountIn), formatEther(q.AmountOut))
	if err := logPrice(env, ex, "price after"); err != nil {
		return false, err
	}

	target := env.Book.BalanceOf(token, lp.Account())
	collateral, err := lp.Borrow(ctx, player, target)
	if err != nil {
		return false, fmt.Errorf("borrow: %w", err)
	}
	env.Step("borrow", "borrow %s DVT against %s ETH", formatEther(target), formatEther(collateral))

	buy, err := ex.SwapExactOutput(player, token, amt["player_tokens"], env.Book.BalanceOf(ledger.Native, player))
	if err != nil {
		return false, fmt.Errorf("buy back: %w", err)
	}
	env.Step("swap", "buy back %s DVT for %s ETH", formatEther(buy.AmountOut), formatEther(buy.AmountIn))

	return env.Book.BalanceOf(token, lp.Account()).Sign() == 0 &&
		env.Book.BalanceOf(token, player).Cmp(amt["pool_tokens"]) > 0, nil
}

// puppetV2: the same attack against a pool that prices with the pair's
// reserve ratio and asks for three times the value in WETH.
func puppetV2() Scenario {
	return Scenario{
		Name:        "puppet-v2",
		Description: "Skew a reserve-ratio oracle by dumping tokens into a pair, wrap ETH and borrow the lending pool dry.",
		Defaults: Params{
			"exchange_tokens": "100",
			"exchange_weth":   "10",
			"pool_tokens":     "1000000",
			"player_tokens":   "10000",
			"player_eth":      "20",
		},
		run: runPuppetV2,
	}
}

func runPuppetV2(ctx context.Context, env *Env) (bool, error) {
	amt, err := loadAmounts(env, "exchange_tokens", "exchange_weth", "pool_tokens", "player_tokens", "player_eth")
	if err != nil {
		return false, err
	}
	token, weth := Address("token/DVT"), Address("token/WETH")
	deployer, player := Address("deployer"), Address("player")

	ex, err := newSeededExchange(env, exchange.Config{
		Name:    "puppet-v2-pair",
		Account: Address("puppet-v2/pair"),
		TokenA:  token,
		TokenB:  weth,
	}, deployer, amt["exchange_tokens"], amt["exchange_weth"])
	if err != nil {
		return false, err
	}
	lp, err := lending.New(lending.Config{
		Account:    Address("puppet-v2/lending"),
		Token:      token,
		Collateral: weth,
		Multiplier: 3,
		Pricing:    lending.PricingQuote,
	}, env.Book, ex, env.Logger)
	if err != nil {
		return false, err
	}
	if err := env.Mint(token, lp.Account(), amt["pool_tokens"]); err != nil {
		return false, err
	}
	if err := env.Mint(token, player, amt["player_tokens"]); err != nil {
		return false, err
	}
	if err := env.Mint(ledger.Native, player, amt["player_eth"]); err != nil {
		return false, err
	}

	env.Track("lending pool", lp.Account(), "DVT", token)
	env.Track("player", player, "DVT", token)
	env.Track("player", player, "ETH", ledger.Native)
	env.Track("player", player, "WETH", weth)

	target := env.Book.BalanceOf(token, lp.Account())
	if required, err := lp.DepositRequired(target); err == nil {
		env.Step("quote", "collateral for %s DVT before: %s WETH", formatEther(target), formatEther(required))
	}

	q, err := ex.SwapExactInput(player, token, amt["player_tokens"], nil)
	if err != nil {
		return false, fmt.Errorf("dump tokens: %w", err)
	}
	env.Step("swap", "sell %s DVT for %s WETH", formatEther(q.AmountIn), formatEther(q.AmountOut))

	if err := wrap(env, weth, player, env.Book.BalanceOf(ledger.Native, player)); err != nil {
		return false, err
	}

	collateral, err := lp.Borrow(ctx, player, target)
	if err != nil {
		return false, fmt.Errorf("borrow: %w", err)
	}
	env.Step("borrow", "borrow %s DVT against %s WETH", formatEther(target), formatEther(collateral))

	return env.Book.BalanceOf(token, lp.Account()).Sign() == 0 &&
		env.Book.BalanceOf(token, player).Cmp(amt["pool_tokens"]) >= 0, nil
}

func newSeededExchange(env *Env, cfg exchange.Config, provider common.Address, amountA, amountB *big.Int) (*exchange.Exchange, error) {
	ex, err := exchange.New(cfg, amm.DefaultFee, env.Book, env.Logger, env.Metrics)
	if err != nil {
		return nil, err
	}
	if err := env.Mint(cfg.TokenA, provider, amountA); err != nil {
		return nil, err
	}
	if err := env.Mint(cfg.TokenB, provider, amountB); err != nil {
		return nil, err
	}
	if _, err := ex.AddLiquidity(provider, amountA, amountB); err != nil {
		return nil, fmt.Errorf("seed %s: %w", cfg.Name, err)
	}
	return ex, nil
}

func logPrice(env *Env, ex *exchange.Exchange, label string) error {
	price, err := ex.Pool().SpotPrice(amm.AssetA, fixedpoint.WAD)
	if err != nil {
		return fmt.Errorf("%s: %w", label, err)
	}
	env.Step("price", "%s: 1 token = %s of the other asset", label, formatEther(price))
	return nil
}

// wrap converts native ETH into WETH one to one.
func wrap(env *Env, weth, account common.Address, amount *big.Int) error {
	if amount.Sign() == 0 {
		return nil
	}
	if err := env.Book.Burn(ledger.Native, account, amount); err != nil {
		return fmt.Errorf("wrap: %w", err)
	}
	if err := env.Book.Mint(weth, account, amount); err != nil {
		return fmt.Errorf("wrap: %w", err)
	}
	env.Step("wrap", "wrap %s ETH", formatEther(amount))
	return nil
}

func unwrap(env *Env, weth, account common.Address, amount *big.Int) error {
	if err := env.Book.Burn(weth, account, amount); err != nil {
		return fmt.Errorf("unwrap: %w", err)
	}
	if err := env.Book.Mint(ledger.Native, account, amount); err != nil {
		return fmt.Errorf("unwrap: %w", err)
	}
	env.Step("unwrap", "unwrap %s WETH", formatEther(amount))
	return nil
}
