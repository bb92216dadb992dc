package flash

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// Deposit moves amount from account into the lender and credits it to
// account's deposit balance. It may be called from inside a Strategy.
func (l *Lender) Deposit(account common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if err := l.book.Transfer(l.cfg.Asset, account, l.cfg.Account, amount); err != nil {
		return fmt.Errorf("deposit: %w", err)
	}

	l.mu.Lock()
	held := l.depositOf(account)
	l.deposits[account] = held.Add(held, amount)
	l.accounted = new(big.Int).Add(l.accounted, amount)
	l.mu.Unlock()

	l.logger.Debug("deposit", zap.String("account", account.Hex()), zap.String("amount", amount.String()))
	return nil
}

// Withdraw pays account its whole deposit balance and returns the amount.
func (l *Lender) Withdraw(account common.Address) (*big.Int, error) {
	l.mu.Lock()
	amount := l.depositOf(account)
	if amount.Sign() == 0 {
		l.mu.Unlock()
		return nil, ErrNothingToWithdraw
	}
	delete(l.deposits, account)
	l.accounted = new(big.Int).Sub(l.accounted, amount)
	l.mu.Unlock()

	if err := l.book.Transfer(l.cfg.Asset, l.cfg.Account, account, amount); err != nil {
		l.mu.Lock()
		l.deposits[account] = amount
		l.accounted = new(big.Int).Add(l.accounted, amount)
		l.mu.Unlock()
		return nil, fmt.Errorf("withdraw: %w", err)
	}

	l.logger.Debug("withdraw", zap.String("account", account.Hex()), zap.String("amount", amount.String()))
	return amount, nil
}

// DepositOf returns account's deposit balance.
func (l *Lender) DepositOf(account common.Address) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.depositOf(account)
}

// depositOf returns a copy; l.mu must be held.
func (l *Lender) depositOf(account common.Address) *big.Int {
	if d, ok := l.deposits[account]; ok {
		return new(big.Int).Set(d)
	}
	return new(big.Int)
}
