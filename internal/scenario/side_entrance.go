package scenario

import (
	"context"
	"fmt"

	"ammlab/internal/flash"
	"ammlab/internal/ledger"
)

// sideEntrance: a lender that accepts deposits checks repayment against its
// raw balance only, so borrowed funds deposited back count as repaid and can
// be withdrawn afterwards.
func sideEntrance() Scenario {
	return Scenario{
		Name:        "side-entrance",
		Description: "Repay a flash loan by depositing it back into the lender, then withdraw the deposit.",
		Defaults: Params{
			"pool_balance":   "1000",
			"player_balance": "1",
		},
		run: runSideEntrance,
	}
}

func runSideEntrance(ctx context.Context, env *Env) (bool, error) {
	amt, err := loadAmounts(env, "pool_balance", "player_balance")
	if err != nil {
		return false, err
	}
	deployer, player := Address("deployer"), Address("player")

	pool, err := flash.NewLender(flash.Config{
		Name:    "side-entrance-pool",
		Account: Address("side-entrance/pool"),
		Asset:   ledger.Native,
	}, env.Book, flash.WithLogger(env.Logger), flash.WithMetrics(env.Metrics))
	if err != nil {
		return false, err
	}
	if err := env.Mint(ledger.Native, deployer, amt["pool_balance"]); err != nil {
		return false, err
	}
	if err := pool.Deposit(deployer, amt["pool_balance"]); err != nil {
		return false, fmt.Errorf("seed pool: %w", err)
	}
	if err := env.Mint(ledger.Native, player, amt["player_balance"]); err != nil {
		return false, err
	}

	env.Track("pool", pool.Account(), "ETH", ledger.Native)
	env.Track("player", player, "ETH", ledger.Native)

	borrow := pool.MaxFlashLoan()
	_, err = pool.FlashLoan(ctx, player, ledger.Native, borrow, flash.StrategyFunc(func(ctx context.Context, loan flash.Loan) error {
		env.Step("deposit", "deposit borrowed %s ETH back into the pool", formatEther(loan.Principal))
		return pool.Deposit(loan.Borrower, loan.Principal)
	}))
	if err != nil {
		return false, fmt.Errorf("flash loan: %w", err)
	}
	env.Step("flash_loan", "borrowed %s ETH, repayment check passed", formatEther(borrow))

	got, err := pool.Withdraw(player)
	if err != nil {
		return false, fmt.Errorf("withdraw: %w", err)
	}
	env.Step("withdraw", "withdrew %s ETH", formatEther(got))

	drained := env.Book.BalanceOf(ledger.Native, pool.Account()).Sign() == 0
	return drained, nil
}
