// Package ledger is an in-memory token book: balances and allowances per
// (asset, account), with a journal that supports nested snapshots in the
// manner of go-ethereum's StateDB.
package ledger

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"ammlab/internal/fixedpoint"
)

var (
	ErrInvalidAmount         = errors.New("invalid amount")
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
)

// Native identifies the chain's native currency in the book.
var Native = common.Address{}

type balanceKey struct {
	asset   common.Address
	account common.Address
}

type allowanceKey struct {
	asset   common.Address
	owner   common.Address
	spender common.Address
}

// Ledger serialises individual calls; each one is atomic on its own.
// Snapshots are not isolated per caller: a revert undoes every change made
// since the snapshot, whoever made it, so multi-call sequences must not
// interleave across goroutines.
type Ledger struct {
	mu         sync.Mutex
	balances   map[balanceKey]*big.Int
	allowances map[allowanceKey]*big.Int
	supply     map[common.Address]*big.Int

	journal        journal
	validRevisions []revision
	nextRevisionID int
	participants   []Participant
}

func New() *Ledger {
	return &Ledger{
		balances:   make(map[balanceKey]*big.Int),
		allowances: make(map[allowanceKey]*big.Int),
		supply:     make(map[common.Address]*big.Int),
	}
}

// BalanceOf returns a copy of account's balance of asset.
func (l *Ledger) BalanceOf(asset, account common.Address) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return fixedpoint.Copy(l.balance(balanceKey{asset, account}))
}

// TotalSupply returns the minted minus burned amount of asset.
func (l *Ledger) TotalSupply(asset common.Address) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if s, ok := l.supply[asset]; ok {
		return new(big.Int).Set(s)
	}
	return new(big.Int)
}

// Allowance returns how much spender may move from owner's balance of asset.
func (l *Ledger) Allowance(asset, owner, spender common.Address) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if a, ok := l.allowances[allowanceKey{asset, owner, spender}]; ok {
		return new(big.Int).Set(a)
	}
	return new(big.Int)
}

// Mint credits amount of asset to account.
func (l *Ledger) Mint(asset, to common.Address, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	k := balanceKey{asset, to}
	next := new(big.Int).Add(l.balance(k), amount)
	supply := new(big.Int).Add(l.supplyOf(asset), amount)
	if err := fixedpoint.CheckU256(supply); err != nil {
		return fmt.Errorf("mint %s: %w", asset.Hex(), err)
	}
	l.setBalance(k, next)
	l.setSupply(asset, supply)
	return nil
}

// Burn debits amount of asset from account.
func (l *Ledger) Burn(asset, from common.Address, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	k := balanceKey{asset, from}
	cur := l.balance(k)
	if cur.Cmp(amount) < 0 {
		return fmt.Errorf("burn %s from %s (has %s): %w", amount, from.Hex(), cur, ErrInsufficientBalance)
	}
	l.setBalance(k, new(big.Int).Sub(cur, amount))
	l.setSupply(asset, new(big.Int).Sub(l.supplyOf(asset), amount))
	return nil
}

// Transfer moves amount of asset from one account to another.
func (l *Ledger) Transfer(asset, from, to common.Address, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.transfer(asset, from, to, amount)
}

// Approve sets spender's allowance over owner's balance of asset.
func (l *Ledger) Approve(asset, owner, spender common.Address, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.setAllowance(allowanceKey{asset, owner, spender}, new(big.Int).Set(amount))
	return nil
}

// TransferFrom moves amount of owner's asset to to, spending spender's allowance.
func (l *Ledger) TransferFrom(asset, spender, owner, to common.Address, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	ak := allowanceKey{asset, owner, spender}
	allowed := new(big.Int)
	if a, ok := l.allowances[ak]; ok {
		allowed.Set(a)
	}
	if allowed.Cmp(amount) < 0 {
		return fmt.Errorf("spend %s of %s allowance: %w", amount, allowed, ErrInsufficientAllowance)
	}
	if err := l.transfer(asset, owner, to, amount); err != nil {
		return err
	}
	l.setAllowance(ak, allowed.Sub(allowed, amount))
	return nil
}

func (l *Ledger) transfer(asset, from, to common.Address, amount *big.Int) error {
	fk, tk := balanceKey{asset, from}, balanceKey{asset, to}
	cur := l.balance(fk)
	if cur.Cmp(amount) < 0 {
		return fmt.Errorf("transfer %s from %s (has %s): %w", amount, from.Hex(), cur, ErrInsufficientBalance)
	}
	if from == to {
		return nil
	}
	l.setBalance(fk, new(big.Int).Sub(cur, amount))
	l.setBalance(tk, new(big.Int).Add(l.balance(tk), amount))
	return nil
}

func (l *Ledger) balance(k balanceKey) *big.Int {
	if b, ok := l.balances[k]; ok {
		return b
	}
	return new(big.Int)
}

func (l *Ledger) supplyOf(asset common.Address) *big.Int {
	if s, ok := l.supply[asset]; ok {
		return s
	}
	return new(big.Int)
}

func (l *Ledger) setBalance(k balanceKey, v *big.Int) {
	prev, ok := l.balances[k]
	l.record(balanceChange{key: k, prev: prev, existed: ok})
	l.balances[k] = v
}

func (l *Ledger) setAllowance(k allowanceKey, v *big.Int) {
	prev, ok := l.allowances[k]
	l.record(allowanceChange{key: k, prev: prev, existed: ok})
	l.allowances[k] = v
}

func (l *Ledger) setSupply(asset common.Address, v *big.Int) {
	prev, ok := l.supply[asset]
	l.record(supplyChange{asset: asset, prev: prev, existed: ok})
	l.supply[asset] = v
}

// record journals e while a snapshot is live.
func (l *Ledger) record(e journalEntry) {
	if len(l.validRevisions) > 0 {
		l.journal.append(e)
	}
}

func checkAmount(amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	if err := fixedpoint.CheckU256(amount); err != nil {
		return fmt.Errorf("amount: %w", err)
	}
	return nil
}
