package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"ammlab/internal/amm"
	"ammlab/internal/model"
)

var ErrNoPoolState = errors.New("pool state not found")

// PoolStateFile persists a single pool as JSON. Writes go through a temporary
// file and a rename so a crash never leaves a half-written state.
type PoolStateFile struct {
	path string
}

func NewPoolStateFile(path string) *PoolStateFile {
	return &PoolStateFile{path: path}
}

func (f *PoolStateFile) Path() string { return f.path }

// Load reads the stored pool. It returns ErrNoPoolState when the file does
// not exist.
func (f *PoolStateFile) Load() (model.PoolState, error) {
	stat, err := os.Stat(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return model.PoolState{}, ErrNoPoolState
		}
		return model.PoolState{}, fmt.Errorf("stat pool state: %w", err)
	}
	if stat.IsDir() {
		return model.PoolState{}, fmt.Errorf("pool state path is a directory")
	}

	data, err := os.ReadFile(f.path)
	if err != nil {
		return model.PoolState{}, fmt.Errorf("read pool state: %w", err)
	}
	var st model.PoolState
	if err := json.Unmarshal(data, &st); err != nil {
		return model.PoolState{}, fmt.Errorf("parse pool state: %w", err)
	}
	return st, nil
}

// Save writes st, replacing any previous state.
func (f *PoolStateFile) Save(st model.PoolState) error {
	dir := filepath.Dir(f.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create pool state dir: %w", err)
		}
	}

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal pool state: %w", err)
	}

	tmpPath := f.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write pool state tmp: %w", err)
	}
	if err := os.Rename(tmpPath, f.path); err != nil {
		return fmt.Errorf("rename pool state: %w", err)
	}
	return nil
}

// EncodePool converts a pool into its persisted form.
func EncodePool(name string, p *amm.Pool) model.PoolState {
	snap := p.Snapshot()
	fee := p.Fee()
	st := model.PoolState{
		Name:        name,
		FeeNum:      fee.Num,
		FeeDen:      fee.Den,
		ReserveA:    snap.ReserveA.String(),
		ReserveB:    snap.ReserveB.String(),
		TotalShares: snap.TotalShares.String(),
		UpdatedAt:   time.Now().UTC().Format(time.RFC3339Nano),
	}
	if len(snap.Shares) > 0 {
		st.Shares = make(map[string]string, len(snap.Shares))
		for holder, s := range snap.Shares {
			st.Shares[holder.Hex()] = s.String()
		}
	}
	return st
}

// DecodePool rebuilds a pool from its persisted form.
func DecodePool(st model.PoolState) (*amm.Pool, error) {
	p, err := amm.NewPool(amm.Fee{Num: st.FeeNum, Den: st.FeeDen})
	if err != nil {
		return nil, err
	}

	snap := amm.State{Shares: make(map[common.Address]*big.Int, len(st.Shares))}
	if snap.ReserveA, err = parseAmount("reserve_a", st.ReserveA); err != nil {
		return nil, err
	}
	if snap.ReserveB, err = parseAmount("reserve_b", st.ReserveB); err != nil {
		return nil, err
	}
	if snap.TotalShares, err = parseAmount("total_shares", st.TotalShares); err != nil {
		return nil, err
	}

	sum := new(big.Int)
	for holder, raw := range st.Shares {
		if !common.IsHexAddress(holder) {
			return nil, fmt.Errorf("invalid share holder %q", holder)
		}
		s, err := parseAmount("shares of "+holder, raw)
		if err != nil {
			return nil, err
		}
		snap.Shares[common.HexToAddress(holder)] = s
		sum.Add(sum, s)
	}
	if sum.Cmp(snap.TotalShares) != 0 {
		return nil, fmt.Errorf("shares sum to %s, total is %s", sum, snap.TotalShares)
	}
	if (snap.ReserveA.Sign() == 0) != (snap.ReserveB.Sign() == 0) {
		return nil, fmt.Errorf("one-sided reserves %s/%s", snap.ReserveA, snap.ReserveB)
	}

	p.Restore(snap)
	return p, nil
}

func parseAmount(field, raw string) (*big.Int, error) {
	if raw == "" {
		return new(big.Int), nil
	}
	v, ok := new(big.Int).SetString(raw, 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("invalid %s %q", field, raw)
	}
	return v, nil
}
