package postgres

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ammlab/internal/model"
)

func TestScenarioRunArgs(t *testing.T) {
	started := time.Date(2024, 3, 1, 12, 0, 0, 0, time.FixedZone("CET", 3600))
	r := model.ScenarioReport{
		RunID:      "3f0c8a0e-8d47-4c55-9a43-1c3c0f1f2f77",
		Scenario:   "truster",
		Succeeded:  true,
		Params:     map[string]string{"pool_balance": "1000000"},
		StartedAt:  started,
		FinishedAt: started.Add(time.Second),
		Balances:   []model.BalanceChange{{Account: "pool", Asset: "DVT", Before: "1000000", After: "0"}},
	}

	args, err := scenarioRunArgs(r)
	require.NoError(t, err)
	require.Len(t, args, 9)
	assert.Equal(t, r.RunID, args[0])
	assert.Equal(t, `{"pool_balance":"1000000"}`, args[4])
	assert.Equal(t, "[]", args[5])

	var balances []model.BalanceChange
	require.NoError(t, json.Unmarshal([]byte(args[6].(string)), &balances))
	assert.Equal(t, r.Balances, balances)
	assert.Equal(t, time.UTC, args[7].(time.Time).Location())
}

func TestScenarioRunArgsRequiresRunID(t *testing.T) {
	_, err := scenarioRunArgs(model.ScenarioReport{Scenario: "puppet"})
	assert.Error(t, err)
}

func TestJSONValueEmpty(t *testing.T) {
	var shares map[string]string
	got, err := jsonValue(shares, "{}")
	require.NoError(t, err)
	assert.Equal(t, "{}", got)
}
