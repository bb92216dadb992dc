package scenario

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"ammlab/internal/flash"
	"ammlab/internal/fixedpoint"
	"ammlab/internal/ledger"
)

var errZeroDeposit = errors.New("deposit must be positive")

// rewarder pays a fixed reward per round, split by the accounting balances
// recorded when the round opened. A deposit opens the round if it is due,
// after minting the depositor's accounting tokens, so a balance that exists
// only for one call is still recorded.
type rewarder struct {
	book       *ledger.Ledger
	account    common.Address
	liquidity  common.Address
	accounting common.Address
	reward     common.Address
	rewards    *big.Int
	roundSpan  time.Duration

	now            time.Time
	round          int
	lastSnapshotAt time.Time
	snapshot       map[common.Address]*big.Int
	snapshotSupply *big.Int
	lastRewardAt   map[common.Address]time.Time
	holders        map[common.Address]struct{}
}

func newRewarder(book *ledger.Ledger, account, liquidity common.Address, rewards *big.Int, roundSpan time.Duration) *rewarder {
	r := &rewarder{
		book:           book,
		account:        account,
		liquidity:      liquidity,
		accounting:     Address("token/rToken"),
		reward:         Address("token/RWT"),
		rewards:        rewards,
		roundSpan:      roundSpan,
		now:            time.Unix(1_700_000_000, 0).UTC(),
		snapshot:       make(map[common.Address]*big.Int),
		snapshotSupply: new(big.Int),
		lastRewardAt:   make(map[common.Address]time.Time),
		holders:        make(map[common.Address]struct{}),
	}
	r.recordSnapshot()
	book.Bind(r)
	return r
}

func (r *rewarder) advance(d time.Duration) { r.now = r.now.Add(d) }

// deposit takes amount of the liquidity token and mints as many accounting
// tokens, collecting any reward due.
func (r *rewarder) deposit(account common.Address, amount *big.Int) error {
	if amount.Sign() <= 0 {
		return errZeroDeposit
	}
	return r.book.Atomic(func() error {
		if err := r.book.Mint(r.accounting, account, amount); err != nil {
			return err
		}
		r.holders[account] = struct{}{}
		if _, err := r.distribute(account); err != nil {
			return err
		}
		return r.book.Transfer(r.liquidity, account, r.account, amount)
	})
}

func (r *rewarder) withdraw(account common.Address, amount *big.Int) error {
	return r.book.Atomic(func() error {
		if err := r.book.Burn(r.accounting, account, amount); err != nil {
			return err
		}
		return r.book.Transfer(r.liquidity, r.account, account, amount)
	})
}

// distribute opens a new round when due and mints account's share of the
// round's rewards once. It returns the amount minted.
func (r *rewarder) distribute(account common.Address) (*big.Int, error) {
	if !r.now.Before(r.lastSnapshotAt.Add(r.roundSpan)) {
		r.recordSnapshot()
	}
	held, ok := r.snapshot[account]
	if !ok || held.Sign() == 0 || r.snapshotSupply.Sign() == 0 || r.retrieved(account) {
		return new(big.Int), nil
	}
	out, err := fixedpoint.MulDivFloor(held, r.rewards, r.snapshotSupply)
	if err != nil {
		return nil, err
	}
	if out.Sign() == 0 {
		return out, nil
	}
	if err := r.book.Mint(r.reward, account, out); err != nil {
		return nil, err
	}
	r.lastRewardAt[account] = r.now
	return out, nil
}

func (r *rewarder) retrieved(account common.Address) bool {
	at, ok := r.lastRewardAt[account]
	if !ok {
		return false
	}
	return !at.Before(r.lastSnapshotAt) && !at.After(r.lastSnapshotAt.Add(r.roundSpan))
}

func (r *rewarder) recordSnapshot() {
	r.snapshot = make(map[common.Address]*big.Int, len(r.holders))
	for h := range r.holders {
		r.snapshot[h] = r.book.BalanceOf(r.accounting, h)
	}
	r.snapshotSupply = r.book.TotalSupply(r.accounting)
	r.lastSnapshotAt = r.now
	r.round++
}

// Checkpoint captures the round state; the ledger restores it on revert.
func (r *rewarder) Checkpoint() func() {
	round, lastSnapshotAt := r.round, r.lastSnapshotAt
	snapshot := copyAmounts(r.snapshot)
	supply := new(big.Int).Set(r.snapshotSupply)
	lastRewardAt := make(map[common.Address]time.Time, len(r.lastRewardAt))
	for k, v := range r.lastRewardAt {
		lastRewardAt[k] = v
	}
	holders := make(map[common.Address]struct{}, len(r.holders))
	for k := range r.holders {
		holders[k] = struct{}{}
	}
	return func() {
		r.round, r.lastSnapshotAt = round, lastSnapshotAt
		r.snapshot, r.snapshotSupply = snapshot, supply
		r.lastRewardAt, r.holders = lastRewardAt, holders
	}
}

func copyAmounts(m map[common.Address]*big.Int) map[common.Address]*big.Int {
	out := make(map[common.Address]*big.Int, len(m))
	for k, v := range m {
		out[k] = new(big.Int).Set(v)
	}
	return out
}

// theRewarder: rewards are split by balances recorded when a round opens,
// and a deposit opens the round. A flash-loaned deposit made at the start of
// a round takes almost the whole reward and is withdrawn in the same loan.
func theRewarder() Scenario {
	return Scenario{
		Name:        "the-rewarder",
		Description: "Deposit a flash loan into the rewarder as a round opens, collect the round's rewards, withdraw and repay.",
		Defaults: Params{
			"lender_balance": "1000000",
			"user_deposit":   "100",
			"users":          "4",
			"rewards":        "100",
			"round_days":     "5",
		},
		run: runTheRewarder,
	}
}

func runTheRewarder(ctx context.Context, env *Env) (bool, error) {
	amt, err := loadAmounts(env, "lender_balance", "user_deposit", "rewards")
	if err != nil {
		return false, err
	}
	users, err := env.Count("users")
	if err != nil {
		return false, err
	}
	days, err := env.Count("round_days")
	if err != nil {
		return false, err
	}
	roundSpan := time.Duration(days) * 24 * time.Hour
	dvt := Address("token/DVT")
	player := Address("player")

	lender, err := flash.NewLender(flash.Config{
		Name:     "flash-loaner-pool",
		Account:  Address("the-rewarder/lender"),
		Asset:    dvt,
		Decimals: 18,
	}, env.Book, flash.WithLogger(env.Logger), flash.WithMetrics(env.Metrics))
	if err != nil {
		return false, err
	}
	if err := env.Mint(dvt, lender.Account(), amt["lender_balance"]); err != nil {
		return false, err
	}
	pool := newRewarder(env.Book, Address("the-rewarder/pool"), dvt, amt["rewards"], roundSpan)

	depositors := make([]common.Address, users)
	for i := range depositors {
		depositors[i] = Address(fmt.Sprintf("user-%d", i))
		if err := env.Mint(dvt, depositors[i], amt["user_deposit"]); err != nil {
			return false, err
		}
		if err := pool.deposit(depositors[i], amt["user_deposit"]); err != nil {
			return false, fmt.Errorf("user %d deposit: %w", i, err)
		}
	}
	pool.advance(roundSpan)
	for i, u := range depositors {
		if _, err := pool.distribute(u); err != nil {
			return false, fmt.Errorf("user %d rewards: %w", i, err)
		}
	}
	env.Step("setup", "%d users deposited %s DVT each; round %d paid out", users, formatEther(amt["user_deposit"]), pool.round)

	env.Track("lender", lender.Account(), "DVT", dvt)
	env.Track("player", player, "DVT", dvt)
	env.Track("player", player, "RWT", pool.reward)
	for i, u := range depositors {
		env.Track(fmt.Sprintf("user-%d", i), u, "RWT", pool.reward)
	}

	pool.advance(roundSpan)
	env.Step("advance", "waited %d days for the next round", days)

	borrow := lender.MaxFlashLoan()
	_, err = lender.FlashLoan(ctx, player, dvt, borrow, flash.StrategyFunc(func(ctx context.Context, loan flash.Loan) error {
		if err := pool.deposit(loan.Borrower, loan.Principal); err != nil {
			return fmt.Errorf("deposit: %w", err)
		}
		env.Step("deposit", "deposited %s borrowed DVT, opening round %d", formatEther(loan.Principal), pool.round)
		if err := pool.withdraw(loan.Borrower, loan.Principal); err != nil {
			return fmt.Errorf("withdraw: %w", err)
		}
		return env.Book.Transfer(dvt, loan.Borrower, loan.Lender, loan.Repayment())
	}))
	if err != nil {
		return false, fmt.Errorf("flash loan: %w", err)
	}
	playerRewards := env.Book.BalanceOf(pool.reward, player)
	env.Step("flash_loan", "borrowed %s DVT, collected %s RWT", formatEther(borrow), formatEther(playerRewards))

	perUser := new(big.Int).Quo(amt["rewards"], big.NewInt(int64(max(users, 1))))
	usersShortchanged := true
	for i, u := range depositors {
		if _, err := pool.distribute(u); err != nil {
			return false, fmt.Errorf("user %d rewards: %w", i, err)
		}
		delta := new(big.Int).Sub(env.Book.BalanceOf(pool.reward, u), perUser)
		if delta.Cmp(big.NewInt(1e16)) >= 0 {
			usersShortchanged = false
		}
	}

	missed := new(big.Int).Sub(amt["rewards"], playerRewards)
	return pool.round == 3 &&
		usersShortchanged &&
		playerRewards.Sign() > 0 &&
		missed.Cmp(big.NewInt(1e17)) < 0 &&
		env.Book.BalanceOf(dvt, player).Sign() == 0 &&
		env.Book.BalanceOf(dvt, lender.Account()).Cmp(amt["lender_balance"]) == 0, nil
}
