package scenario

import (
	"context"
	"fmt"
	"math/big"

	"ammlab/internal/flash"
	"ammlab/internal/ledger"
)

// naiveReceiver: anyone may take a loan on behalf of a receiver that always
// repays principal plus a flat fee, so repeated zero-amount loans bleed the
// receiver into the lender.
func naiveReceiver() Scenario {
	return Scenario{
		Name:        "naive-receiver",
		Description: "Drain a flash-loan receiver by borrowing on its behalf until the flat fees exhaust it.",
		Defaults: Params{
			"pool_balance":     "1000",
			"receiver_balance": "10",
			"fee":              "1",
			"loans":            "10",
		},
		run: runNaiveReceiver,
	}
}

func runNaiveReceiver(ctx context.Context, env *Env) (bool, error) {
	amt, err := loadAmounts(env, "pool_balance", "receiver_balance", "fee")
	if err != nil {
		return false, err
	}
	loans, err := env.Count("loans")
	if err != nil {
		return false, err
	}
	receiver := Address("naive-receiver/receiver")

	pool, err := flash.NewLender(flash.Config{
		Name:    "naive-receiver-pool",
		Account: Address("naive-receiver/pool"),
		Asset:   ledger.Native,
		Fee:     flash.FlatFee{Amount: amt["fee"]},
	}, env.Book, flash.WithLogger(env.Logger), flash.WithMetrics(env.Metrics))
	if err != nil {
		return false, err
	}
	if err := env.Mint(ledger.Native, pool.Account(), amt["pool_balance"]); err != nil {
		return false, err
	}
	if err := env.Mint(ledger.Native, receiver, amt["receiver_balance"]); err != nil {
		return false, err
	}

	env.Track("pool", pool.Account(), "ETH", ledger.Native)
	env.Track("receiver", receiver, "ETH", ledger.Native)

	repay := flash.StrategyFunc(func(ctx context.Context, loan flash.Loan) error {
		return env.Book.Transfer(loan.Asset, loan.Borrower, loan.Lender, loan.Repayment())
	})
	for i := 0; i < loans; i++ {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		fee, err := pool.FlashLoan(ctx, receiver, ledger.Native, new(big.Int), repay)
		if err != nil {
			return false, fmt.Errorf("loan %d: %w", i+1, err)
		}
		env.Step("flash_loan", "player borrows 0 ETH for receiver, receiver pays %s ETH fee", formatEther(fee))
	}

	return env.Book.BalanceOf(ledger.Native, receiver).Sign() == 0, nil
}
