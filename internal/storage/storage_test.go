package storage

import (
	"bufio"
	"encoding/json"
	"errors"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ammlab/internal/amm"
	"ammlab/internal/model"
)

func TestJsonlStorageAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "reports.jsonl")
	s := NewJsonlStorage(path)

	now := time.Now()
	require.NoError(t, s.PutReportBatch([]model.ScenarioReport{
		{RunID: "a", Scenario: "truster", StartedAt: now, FinishedAt: now, Succeeded: true},
	}))
	require.NoError(t, s.PutReportBatch(nil))
	require.NoError(t, s.PutReportBatch([]model.ScenarioReport{
		{RunID: "b", Scenario: "puppet", StartedAt: now, FinishedAt: now, Error: "borrow: insufficient collateral"},
	}))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var ids []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var r model.ScenarioReport
		require.NoError(t, json.Unmarshal(sc.Bytes(), &r))
		ids = append(ids, r.RunID)
	}
	require.NoError(t, sc.Err())
	assert.Equal(t, []string{"a", "b"}, ids)
}

func TestPoolStateRoundTrip(t *testing.T) {
	alice := common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	pool, err := amm.NewSeededPool(alice, big.NewInt(1_000), big.NewInt(4_000), amm.DefaultFee)
	require.NoError(t, err)
	_, err = pool.SwapExactInput(amm.AssetA, big.NewInt(100), nil)
	require.NoError(t, err)

	file := NewPoolStateFile(filepath.Join(t.TempDir(), "pool.json"))
	_, err = file.Load()
	assert.True(t, errors.Is(err, ErrNoPoolState))

	require.NoError(t, file.Save(EncodePool("dvt-eth", pool)))
	st, err := file.Load()
	require.NoError(t, err)
	assert.Equal(t, "dvt-eth", st.Name)
	assert.Equal(t, "1100", st.ReserveA)

	restored, err := DecodePool(st)
	require.NoError(t, err)
	a, b := restored.Reserves()
	wantA, wantB := pool.Reserves()
	assert.Zero(t, a.Cmp(wantA))
	assert.Zero(t, b.Cmp(wantB))
	assert.Zero(t, restored.SharesOf(alice).Cmp(pool.SharesOf(alice)))
	assert.Equal(t, pool.Fee(), restored.Fee())

	_, err = os.Stat(file.Path() + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestDecodePoolRejectsBadState(t *testing.T) {
	base := model.PoolState{
		FeeNum: 997, FeeDen: 1000,
		ReserveA: "10", ReserveB: "10", TotalShares: "10",
		Shares: map[string]string{"0x00000000000000000000000000000000000a11ce": "10"},
	}

	cases := map[string]func(*model.PoolState){
		"bad fee":      func(s *model.PoolState) { s.FeeNum = 1001 },
		"negative":     func(s *model.PoolState) { s.ReserveA = "-1" },
		"not a number": func(s *model.PoolState) { s.ReserveB = "ten" },
		"share sum":    func(s *model.PoolState) { s.TotalShares = "11" },
		"holder":       func(s *model.PoolState) { s.Shares = map[string]string{"alice": "10"} },
		"one-sided":    func(s *model.PoolState) { s.ReserveB = "0" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			st := base
			st.Shares = map[string]string{}
			for k, v := range base.Shares {
				st.Shares[k] = v
			}
			mutate(&st)
			_, err := DecodePool(st)
			assert.Error(t, err)
		})
	}

	_, err := DecodePool(base)
	assert.NoError(t, err)
}
