package scenario

import (
	"context"
	"fmt"
	"math/big"

	"ammlab/internal/flash"
)

// truster: the pool runs an arbitrary call as itself during a loan. Asking it
// to approve the player leaves an allowance over its whole balance.
func truster() Scenario {
	return Scenario{
		Name:        "truster",
		Description: "Make the lender approve the attacker during a zero-amount loan, then pull its tokens.",
		Defaults: Params{
			"pool_balance": "1000000",
		},
		run: runTruster,
	}
}

func runTruster(ctx context.Context, env *Env) (bool, error) {
	amt, err := loadAmounts(env, "pool_balance")
	if err != nil {
		return false, err
	}
	token := Address("token/DVT")
	player := Address("player")

	pool, err := flash.NewLender(flash.Config{
		Name:     "truster-pool",
		Account:  Address("truster/pool"),
		Asset:    token,
		Decimals: 18,
	}, env.Book, flash.WithLogger(env.Logger), flash.WithMetrics(env.Metrics))
	if err != nil {
		return false, err
	}
	if err := env.Mint(token, pool.Account(), amt["pool_balance"]); err != nil {
		return false, err
	}

	env.Track("pool", pool.Account(), "DVT", token)
	env.Track("player", player, "DVT", token)

	balance := pool.MaxFlashLoan()
	_, err = pool.FlashLoan(ctx, player, token, new(big.Int), flash.StrategyFunc(func(ctx context.Context, loan flash.Loan) error {
		// The target call executes with the lender as sender.
		return env.Book.Approve(loan.Asset, loan.Lender, player, balance)
	}))
	if err != nil {
		return false, fmt.Errorf("flash loan: %w", err)
	}
	env.Step("flash_loan", "borrow 0 DVT with an approve(player, %s) call executed by the pool", formatEther(balance))

	if err := env.Book.TransferFrom(token, player, pool.Account(), player, balance); err != nil {
		return false, fmt.Errorf("transfer from pool: %w", err)
	}
	env.Step("transfer_from", "player pulls %s DVT from the pool", formatEther(balance))

	return env.Book.BalanceOf(token, pool.Account()).Sign() == 0 &&
		env.Book.BalanceOf(token, player).Cmp(amt["pool_balance"]) == 0, nil
}
