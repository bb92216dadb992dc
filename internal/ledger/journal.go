package ledger

import (
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
)

// journalEntry is a modification that can be undone.
type journalEntry interface {
	revert(*Ledger)
}

type journal struct {
	entries []journalEntry
}

func (j *journal) append(e journalEntry) { j.entries = append(j.entries, e) }
func (j *journal) length() int          { return len(j.entries) }
func (j *journal) reset()               { j.entries = nil }

// revert undoes entries down to snapshot, newest first.
func (j *journal) revert(l *Ledger, snapshot int) {
	for i := len(j.entries) - 1; i >= snapshot; i-- {
		j.entries[i].revert(l)
	}
	j.entries = j.entries[:snapshot]
}

type (
	balanceChange struct {
		key     balanceKey
		prev    *big.Int
		existed bool
	}
	allowanceChange struct {
		key     allowanceKey
		prev    *big.Int
		existed bool
	}
	supplyChange struct {
		asset   common.Address
		prev    *big.Int
		existed bool
	}
)

func (c balanceChange) revert(l *Ledger) {
	if c.existed {
		l.balances[c.key] = c.prev
	} else {
		delete(l.balances, c.key)
	}
}

func (c allowanceChange) revert(l *Ledger) {
	if c.existed {
		l.allowances[c.key] = c.prev
	} else {
		delete(l.allowances, c.key)
	}
}

func (c supplyChange) revert(l *Ledger) {
	if c.existed {
		l.supply[c.asset] = c.prev
	} else {
		delete(l.supply, c.asset)
	}
}

// Participant is state kept outside the book that must move with it, such
// as pool reserves mirrored by balances. Checkpoint captures the current
// state and returns a function that restores it. It must not call back into
// the ledger.
type Participant interface {
	Checkpoint() (restore func())
}

type revision struct {
	id           int
	journalIndex int
	restores     []func()
}

// Bind registers participants captured by every later snapshot.
func (l *Ledger) Bind(participants ...Participant) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.participants = append(l.participants, participants...)
}

// Snapshot returns an identifier for the current revision of the book and
// of every bound participant.
func (l *Ledger) Snapshot() int {
	l.mu.Lock()
	participants := append([]Participant(nil), l.participants...)
	l.mu.Unlock()

	restores := make([]func(), 0, len(participants))
	for _, p := range participants {
		restores = append(restores, p.Checkpoint())
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	id := l.nextRevisionID
	l.nextRevisionID++
	l.validRevisions = append(l.validRevisions, revision{id, l.journal.length(), restores})
	return id
}

// RevertToSnapshot undoes every change made since the given snapshot was
// taken. Snapshots taken after it become invalid.
func (l *Ledger) RevertToSnapshot(revid int) {
	restores := l.revertJournal(revid)
	for i := len(restores) - 1; i >= 0; i-- {
		restores[i]()
	}
}

func (l *Ledger) revertJournal(revid int) []func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	idx := l.revisionIndex(revid)
	rev := l.validRevisions[idx]
	l.journal.revert(l, rev.journalIndex)
	l.release(idx)
	return rev.restores
}

// DiscardSnapshot keeps every change made since the given snapshot and
// forgets it, together with any snapshot taken after it. Once no snapshot
// is live the journal is dropped.
func (l *Ledger) DiscardSnapshot(revid int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.release(l.revisionIndex(revid))
}

// Atomic runs fn and reverts the book and its participants if fn fails.
func (l *Ledger) Atomic(fn func() error) error {
	id := l.Snapshot()
	if err := fn(); err != nil {
		l.RevertToSnapshot(id)
		return err
	}
	l.DiscardSnapshot(id)
	return nil
}

// JournalLen reports how many undo entries are retained.
func (l *Ledger) JournalLen() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.journal.length()
}

// revisionIndex panics on an unknown id; l.mu must be held.
func (l *Ledger) revisionIndex(revid int) int {
	idx := sort.Search(len(l.validRevisions), func(i int) bool {
		return l.validRevisions[i].id >= revid
	})
	if idx == len(l.validRevisions) || l.validRevisions[idx].id != revid {
		panic(fmt.Errorf("revision id %v is not live", revid))
	}
	return idx
}

func (l *Ledger) release(idx int) {
	l.validRevisions = l.validRevisions[:idx]
	if len(l.validRevisions) == 0 {
		l.journal.reset()
	}
}
