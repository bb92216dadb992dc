package model

import (
	"encoding/json"
	"time"
)

// ScenarioReport is the outcome of one scenario run.
type ScenarioReport struct {
	RunID       string            `json:"run_id"`
	Scenario    string            `json:"scenario"`
	Description string            `json:"description"`
	Params      map[string]string `json:"params,omitempty"`
	StartedAt   time.Time         `json:"started_at"`
	FinishedAt  time.Time         `json:"finished_at"`
	Succeeded   bool              `json:"succeeded"`
	Error       string            `json:"error,omitempty"`
	Steps       []ScenarioStep    `json:"steps"`
	Balances    []BalanceChange   `json:"balances"`
}

// ScenarioStep is one engine call made by a scenario.
type ScenarioStep struct {
	Action string `json:"action"`
	Detail string `json:"detail,omitempty"`
}

// BalanceChange records an account's holding of an asset before and after a
// run. Amounts are decimal strings in whole units.
type BalanceChange struct {
	Account string `json:"account"`
	Asset   string `json:"asset"`
	Before  string `json:"before"`
	After   string `json:"after"`
}

// Duration returns the wall time of the run.
func (r ScenarioReport) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// MarshalJSON encodes timestamps in UTC.
func (r ScenarioReport) MarshalJSON() ([]byte, error) {
	type Alias ScenarioReport
	a := Alias(r)
	a.StartedAt = a.StartedAt.UTC()
	a.FinishedAt = a.FinishedAt.UTC()
	return json.Marshal(a)
}
