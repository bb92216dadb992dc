// Package flash issues and settles flash loans against a ledger account.
//
// A loan moves the principal to the borrower, runs the borrower's Strategy,
// and then requires the lender's raw balance to be back at its pre-loan level
// plus the fee. Any failure reverts the ledger, which restores the lender's
// own books and everything else bound to it (exchange pools, lending pools),
// and restores every participant attached to the lender.
package flash

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"ammlab/internal/ledger"
	"ammlab/internal/observability"
)

var (
	ErrInvalidAmount         = errors.New("invalid amount")
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")
	ErrLoanNotRepaid         = errors.New("flash loan not repaid")
	ErrBalanceMismatch       = errors.New("balance does not match accounted assets")
	ErrUnknownAsset          = errors.New("unknown asset")
	ErrNothingToWithdraw     = errors.New("nothing to withdraw")
)

// Checkpointer is state outside the ledger that must roll back with a failed
// loan, such as a bare amm.Pool. Checkpoint captures the current state and
// returns a function that restores it.
type Checkpointer interface {
	Checkpoint() (restore func())
}

// Loan describes an in-flight loan as seen by the borrower's strategy.
type Loan struct {
	Lender    common.Address
	Asset     common.Address
	Borrower  common.Address
	Principal *big.Int
	Fee       *big.Int
}

// Repayment is the amount that must reach the lender before the strategy returns.
func (l Loan) Repayment() *big.Int {
	return new(big.Int).Add(l.Principal, l.Fee)
}

// Strategy is the borrower's callback. It runs while the principal sits in
// the borrower's account and may call back into the lender or any pool.
type Strategy interface {
	OnFlashLoan(ctx context.Context, loan Loan) error
}

// StrategyFunc adapts a function to Strategy.
type StrategyFunc func(ctx context.Context, loan Loan) error

func (f StrategyFunc) OnFlashLoan(ctx context.Context, loan Loan) error { return f(ctx, loan) }

// Config describes a lender.
type Config struct {
	Name    string
	Account common.Address
	Asset   common.Address
	Fee     FeePolicy
	// RequireSyncedBalance refuses loans while the account's raw balance
	// differs from the amount accounted for through Deposit, Withdraw and fees.
	RequireSyncedBalance bool
	// Decimals of Asset, used for logs and metrics only.
	Decimals uint8
}

// Lender lends Config.Asset held by Config.Account in a ledger.
type Lender struct {
	cfg     Config
	book    *ledger.Ledger
	logger  *zap.Logger
	metrics *observability.Metrics

	mu           sync.Mutex
	deposits     map[common.Address]*big.Int
	accounted    *big.Int
	participants []Checkpointer
}

// Option configures a Lender.
type Option func(*Lender)

func WithLogger(logger *zap.Logger) Option {
	return func(l *Lender) {
		if logger != nil {
			l.logger = logger
		}
	}
}

func WithMetrics(m *observability.Metrics) Option {
	return func(l *Lender) { l.metrics = m }
}

func NewLender(cfg Config, book *ledger.Ledger, opts ...Option) (*Lender, error) {
	if book == nil {
		return nil, fmt.Errorf("ledger is nil")
	}
	if cfg.Fee == nil {
		cfg.Fee = NoFee{}
	}
	if cfg.Name == "" {
		cfg.Name = cfg.Account.Hex()
	}
	l := &Lender{
		cfg:       cfg,
		book:      book,
		logger:    zap.NewNop(),
		deposits:  make(map[common.Address]*big.Int),
		accounted: new(big.Int),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.With(zap.String("lender", cfg.Name))
	book.Bind(l)
	return l, nil
}

func (l *Lender) Account() common.Address { return l.cfg.Account }
func (l *Lender) Asset() common.Address   { return l.cfg.Asset }

// Attach registers participants that are not bound to the ledger but must
// roll back with a failed loan.
func (l *Lender) Attach(participants ...Checkpointer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.participants = append(l.participants, participants...)
}

// MaxFlashLoan returns the lender's raw balance.
func (l *Lender) MaxFlashLoan() *big.Int {
	return l.book.BalanceOf(l.cfg.Asset, l.cfg.Account)
}

// FlashFee quotes the fee for a loan of amount at the current balance.
func (l *Lender) FlashFee(amount *big.Int) *big.Int {
	return l.cfg.Fee.Fee(amount, l.MaxFlashLoan())
}

// Accounted returns the balance the lender accounts for.
func (l *Lender) Accounted() *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return new(big.Int).Set(l.accounted)
}

// FlashLoan lends amount of asset to borrower and runs strategy. Zero-amount
// loans are allowed. The borrower need not be the caller; the fee is owed by
// whoever repays. It returns the fee collected.
func (l *Lender) FlashLoan(ctx context.Context, borrower, asset common.Address, amount *big.Int, strategy Strategy) (fee *big.Int, err error) {
	defer func() {
		l.metrics.ObserveFlashLoan(l.cfg.Name, units(fee, l.cfg.Decimals), err)
	}()

	if asset != l.cfg.Asset {
		return nil, fmt.Errorf("%s: %w", asset.Hex(), ErrUnknownAsset)
	}
	if amount == nil || amount.Sign() < 0 {
		return nil, ErrInvalidAmount
	}
	if strategy == nil {
		return nil, fmt.Errorf("nil strategy: %w", ErrInvalidAmount)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	before := l.book.BalanceOf(l.cfg.Asset, l.cfg.Account)
	if amount.Cmp(before) > 0 {
		return nil, fmt.Errorf("requested %s, available %s: %w", amount, before, ErrInsufficientLiquidity)
	}
	if l.cfg.RequireSyncedBalance {
		if accounted := l.Accounted(); accounted.Cmp(before) != 0 {
			return nil, fmt.Errorf("balance %s, accounted %s: %w", before, accounted, ErrBalanceMismatch)
		}
	}

	loan := Loan{
		Lender:    l.cfg.Account,
		Asset:     l.cfg.Asset,
		Borrower:  borrower,
		Principal: new(big.Int).Set(amount),
		Fee:       l.cfg.Fee.Fee(amount, before),
	}

	var settled *big.Int
	err = l.book.Atomic(func() error {
		restore := l.checkpointAttached()
		var err error
		if settled, err = l.settle(ctx, loan, before, strategy); err != nil {
			restore()
		}
		return err
	})
	if err != nil {
		l.logger.Debug("flash loan rolled back",
			zap.String("borrower", borrower.Hex()),
			zap.String("amount", amount.String()),
			zap.Error(err),
		)
		return nil, err
	}

	l.logger.Debug("flash loan settled",
		zap.String("borrower", borrower.Hex()),
		zap.String("amount", amount.String()),
		zap.String("fee", settled.String()),
	)
	return settled, nil
}

func (l *Lender) settle(ctx context.Context, loan Loan, before *big.Int, strategy Strategy) (*big.Int, error) {
	if err := l.book.Transfer(l.cfg.Asset, l.cfg.Account, loan.Borrower, loan.Principal); err != nil {
		return nil, fmt.Errorf("send principal: %w", err)
	}
	if err := strategy.OnFlashLoan(ctx, loan); err != nil {
		return nil, fmt.Errorf("borrower strategy: %w", err)
	}

	after := l.book.BalanceOf(l.cfg.Asset, l.cfg.Account)
	owed := new(big.Int).Add(before, loan.Fee)
	if after.Cmp(owed) < 0 {
		return nil, fmt.Errorf("balance %s, owed %s: %w", after, owed, ErrLoanNotRepaid)
	}

	l.mu.Lock()
	l.accounted = new(big.Int).Add(l.accounted, loan.Fee)
	l.mu.Unlock()
	return new(big.Int).Set(loan.Fee), nil
}

// checkpointAttached captures every attached participant. The returned
// function restores them in reverse order.
func (l *Lender) checkpointAttached() func() {
	l.mu.Lock()
	participants := append([]Checkpointer(nil), l.participants...)
	l.mu.Unlock()

	restores := make([]func(), 0, len(participants))
	for _, p := range participants {
		restores = append(restores, p.Checkpoint())
	}
	return func() {
		for i := len(restores) - 1; i >= 0; i-- {
			restores[i]()
		}
	}
}

// Checkpoint captures the lender's deposit book. The ledger calls it for
// every snapshot.
func (l *Lender) Checkpoint() func() {
	l.mu.Lock()
	deposits := make(map[common.Address]*big.Int, len(l.deposits))
	for k, v := range l.deposits {
		deposits[k] = new(big.Int).Set(v)
	}
	accounted := new(big.Int).Set(l.accounted)
	l.mu.Unlock()

	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.deposits = deposits
		l.accounted = accounted
	}
}

func units(v *big.Int, decimals uint8) float64 {
	if v == nil {
		return 0
	}
	return decimal.NewFromBigInt(v, -int32(decimals)).InexactFloat64()
}
