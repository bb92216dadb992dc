package scenario

import (
	"context"
	"errors"
	"fmt"

	"ammlab/internal/flash"
)

// unstoppable: the vault refuses loans whenever its raw balance differs from
// what it has accounted for, so a plain transfer into it freezes lending.
func unstoppable() Scenario {
	return Scenario{
		Name:        "unstoppable",
		Description: "Freeze a vault that requires its balance to match its books by donating tokens to it.",
		Defaults: Params{
			"vault_balance":  "1000000",
			"player_balance": "10",
			"donation":       "1",
			"loan":           "100",
		},
		run: runUnstoppable,
	}
}

func runUnstoppable(ctx context.Context, env *Env) (bool, error) {
	amt, err := loadAmounts(env, "vault_balance", "player_balance", "donation", "loan")
	if err != nil {
		return false, err
	}
	token := Address("token/DVT")
	deployer, player, receiver := Address("deployer"), Address("player"), Address("unstoppable/receiver")

	vault, err := flash.NewLender(flash.Config{
		Name:                 "unstoppable-vault",
		Account:              Address("unstoppable/vault"),
		Asset:                token,
		Fee:                  flash.MaxDrawFee{Num: 5, Den: 100},
		RequireSyncedBalance: true,
		Decimals:             18,
	}, env.Book, flash.WithLogger(env.Logger), flash.WithMetrics(env.Metrics))
	if err != nil {
		return false, err
	}
	if err := env.Mint(token, deployer, amt["vault_balance"]); err != nil {
		return false, err
	}
	if err := vault.Deposit(deployer, amt["vault_balance"]); err != nil {
		return false, fmt.Errorf("seed vault: %w", err)
	}
	if err := env.Mint(token, player, amt["player_balance"]); err != nil {
		return false, err
	}

	env.Track("vault", vault.Account(), "DVT", token)
	env.Track("player", player, "DVT", token)

	repay := flash.StrategyFunc(func(ctx context.Context, loan flash.Loan) error {
		return env.Book.Transfer(loan.Asset, loan.Borrower, loan.Lender, loan.Repayment())
	})
	if _, err := vault.FlashLoan(ctx, receiver, token, amt["loan"], repay); err != nil {
		return false, fmt.Errorf("loan before donation: %w", err)
	}
	env.Step("flash_loan", "receiver borrows %s DVT while the vault is in sync", formatEther(amt["loan"]))

	if err := env.Book.Transfer(token, player, vault.Account(), amt["donation"]); err != nil {
		return false, fmt.Errorf("donate: %w", err)
	}
	env.Step("transfer", "player sends %s DVT straight to the vault", formatEther(amt["donation"]))

	_, err = vault.FlashLoan(ctx, receiver, token, amt["loan"], repay)
	switch {
	case errors.Is(err, flash.ErrBalanceMismatch):
		env.Step("flash_loan", "receiver loan refused: %v", err)
		return true, nil
	case err != nil:
		return false, fmt.Errorf("loan after donation: %w", err)
	default:
		env.Step("flash_loan", "receiver loan still served")
		return false, nil
	}
}
