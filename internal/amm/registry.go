package amm

import (
	"fmt"
	"math/big"
	"sort"
	"sync"
)

// PoolID identifies a pool held by a Registry. Locks are taken in ascending
// PoolID order.
type PoolID uint64

type registryEntry struct {
	mu   sync.Mutex
	pool *Pool
}

// Registry owns a set of pools shared between goroutines. Every operation
// holds the mutex of each pool it touches for its whole duration.
type Registry struct {
	mu     sync.RWMutex
	pools  map[PoolID]*registryEntry
	nextID PoolID
}

func NewRegistry() *Registry {
	return &Registry{pools: make(map[PoolID]*registryEntry)}
}

// Add hands ownership of p to the registry and returns its id.
func (r *Registry) Add(p *Pool) PoolID {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	r.pools[r.nextID] = &registryEntry{pool: p}
	return r.nextID
}

// Len returns the number of pools held.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.pools)
}

// View runs fn with the pool locked. Changes made by fn are kept even if it
// returns an error; use Atomic for all-or-nothing updates.
func (r *Registry) View(id PoolID, fn func(*Pool) error) error {
	e, err := r.entry(id)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return fn(e.pool)
}

// Atomic locks every pool in ids in ascending id order, snapshots them and
// runs fn with the pools in the order given. If fn returns an error every
// pool is restored before the locks are released.
func (r *Registry) Atomic(ids []PoolID, fn func(pools []*Pool) error) error {
	entries := make(map[PoolID]*registryEntry, len(ids))
	for _, id := range ids {
		e, err := r.entry(id)
		if err != nil {
			return err
		}
		entries[id] = e
	}

	order := make([]PoolID, 0, len(entries))
	for id := range entries {
		order = append(order, id)
	}
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })

	restores := make([]func(), 0, len(order))
	for _, id := range order {
		e := entries[id]
		e.mu.Lock()
		defer e.mu.Unlock()
		restores = append(restores, e.pool.Checkpoint())
	}

	pools := make([]*Pool, len(ids))
	for i, id := range ids {
		pools[i] = entries[id].pool
	}
	if err := fn(pools); err != nil {
		for i := len(restores) - 1; i >= 0; i-- {
			restores[i]()
		}
		return err
	}
	return nil
}

// Hop is one leg of a route: sell AssetIn into pool Pool.
type Hop struct {
	Pool    PoolID
	AssetIn Asset
}

// RouteExactInput swaps amountIn through every hop in order, feeding each
// output into the next hop. All pools are updated or none are.
func (r *Registry) RouteExactInput(hops []Hop, amountIn, minAmountOut *big.Int) ([]TradeQuote, error) {
	if len(hops) == 0 {
		return nil, fmt.Errorf("empty route: %w", ErrInvalidAmount)
	}
	ids := make([]PoolID, len(hops))
	for i, h := range hops {
		ids[i] = h.Pool
	}

	var trades []TradeQuote
	err := r.Atomic(ids, func(pools []*Pool) error {
		trades = make([]TradeQuote, 0, len(hops))
		amount := amountIn
		for i, h := range hops {
			q, err := pools[i].SwapExactInput(h.AssetIn, amount, nil)
			if err != nil {
				return fmt.Errorf("hop %d (pool %d): %w", i, h.Pool, err)
			}
			trades = append(trades, q)
			amount = q.AmountOut
		}
		if minAmountOut != nil && amount.Cmp(minAmountOut) < 0 {
			return fmt.Errorf("route out %s < min %s: %w", amount, minAmountOut, ErrSlippageExceeded)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return trades, nil
}

func (r *Registry) entry(id PoolID) (*registryEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.pools[id]
	if !ok {
		return nil, fmt.Errorf("pool %d: %w", id, ErrUnknownPool)
	}
	return e, nil
}
