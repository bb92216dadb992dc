package amm

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// State is a deep copy of a pool's mutable fields.
type State struct {
	ReserveA    *big.Int
	ReserveB    *big.Int
	TotalShares *big.Int
	Shares      map[common.Address]*big.Int
}

// Snapshot captures the pool's reserves and share book.
func (p *Pool) Snapshot() State {
	st := State{
		ReserveA:    new(big.Int).Set(p.reserveA),
		ReserveB:    new(big.Int).Set(p.reserveB),
		TotalShares: new(big.Int).Set(p.totalShares),
		Shares:      make(map[common.Address]*big.Int, len(p.shares)),
	}
	for holder, s := range p.shares {
		st.Shares[holder] = new(big.Int).Set(s)
	}
	return st
}

// Restore overwrites the pool with a previously captured State.
func (p *Pool) Restore(st State) {
	p.reserveA = new(big.Int).Set(st.ReserveA)
	p.reserveB = new(big.Int).Set(st.ReserveB)
	p.totalShares = new(big.Int).Set(st.TotalShares)
	p.shares = make(map[common.Address]*big.Int, len(st.Shares))
	for holder, s := range st.Shares {
		p.shares[holder] = new(big.Int).Set(s)
	}
}

// Checkpoint snapshots the pool and returns a function that restores it.
func (p *Pool) Checkpoint() func() {
	st := p.Snapshot()
	return func() { p.Restore(st) }
}
