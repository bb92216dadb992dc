package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"ammlab/internal/model"
)

// Schema creates the tables used by Store.
const Schema = `
CREATE TABLE IF NOT EXISTS scenario_runs (
	run_id      UUID PRIMARY KEY,
	scenario    TEXT NOT NULL,
	succeeded   BOOLEAN NOT NULL,
	error       TEXT NOT NULL DEFAULT '',
	params      JSONB NOT NULL,
	steps       JSONB NOT NULL,
	balances    JSONB NOT NULL,
	started_at  TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS scenario_runs_scenario_idx ON scenario_runs (scenario, started_at);

CREATE TABLE IF NOT EXISTS pool_states (
	name         TEXT PRIMARY KEY,
	fee_num      BIGINT NOT NULL,
	fee_den      BIGINT NOT NULL,
	reserve_a    NUMERIC(78, 0) NOT NULL,
	reserve_b    NUMERIC(78, 0) NOT NULL,
	total_shares NUMERIC(78, 0) NOT NULL,
	shares       JSONB NOT NULL,
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// Store provides Postgres persistence for scenario runs and pool states.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Migrate applies Schema.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, Schema)
	return err
}

// InsertScenarioRuns stores reports; a report whose run id already exists is ignored.
func (s *Store) InsertScenarioRuns(ctx context.Context, reports []model.ScenarioReport) error {
	if len(reports) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, r := range reports {
		args, err := scenarioRunArgs(r)
		if err != nil {
			return err
		}
		batch.Queue(`
			INSERT INTO scenario_runs (
				run_id, scenario, succeeded, error, params, steps, balances, started_at, finished_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (run_id) DO NOTHING
		`, args...)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range reports {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

func scenarioRunArgs(r model.ScenarioReport) ([]any, error) {
	if r.RunID == "" {
		return nil, fmt.Errorf("report for %s has no run id", r.Scenario)
	}
	params, err := jsonValue(r.Params, "{}")
	if err != nil {
		return nil, fmt.Errorf("marshal params: %w", err)
	}
	steps, err := jsonValue(r.Steps, "[]")
	if err != nil {
		return nil, fmt.Errorf("marshal steps: %w", err)
	}
	balances, err := jsonValue(r.Balances, "[]")
	if err != nil {
		return nil, fmt.Errorf("marshal balances: %w", err)
	}
	return []any{
		r.RunID,
		r.Scenario,
		r.Succeeded,
		r.Error,
		params,
		steps,
		balances,
		r.StartedAt.UTC(),
		r.FinishedAt.UTC(),
	}, nil
}

// jsonValue marshals v, substituting empty for a nil map or slice.
func jsonValue(v any, empty string) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	if string(data) == "null" {
		return empty, nil
	}
	return string(data), nil
}

// UpsertPoolState inserts or replaces a named pool.
func (s *Store) UpsertPoolState(ctx context.Context, st model.PoolState) error {
	if st.Name == "" {
		return fmt.Errorf("pool name required")
	}
	shares, err := jsonValue(st.Shares, "{}")
	if err != nil {
		return fmt.Errorf("marshal shares: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO pool_states (name, fee_num, fee_den, reserve_a, reserve_b, total_shares, shares, updated_at)
		VALUES ($1, $2, $3, $4::numeric, $5::numeric, $6::numeric, $7, now())
		ON CONFLICT (name) DO UPDATE SET
			fee_num = EXCLUDED.fee_num,
			fee_den = EXCLUDED.fee_den,
			reserve_a = EXCLUDED.reserve_a,
			reserve_b = EXCLUDED.reserve_b,
			total_shares = EXCLUDED.total_shares,
			shares = EXCLUDED.shares,
			updated_at = now()
	`, st.Name, st.FeeNum, st.FeeDen, st.ReserveA, st.ReserveB, st.TotalShares, shares)
	return err
}

// LoadPoolState returns the named pool and whether it exists.
func (s *Store) LoadPoolState(ctx context.Context, name string) (model.PoolState, bool, error) {
	if name == "" {
		return model.PoolState{}, false, fmt.Errorf("pool name required")
	}
	st := model.PoolState{Name: name}
	var shares []byte
	row := s.pool.QueryRow(ctx, `
		SELECT fee_num, fee_den, reserve_a::text, reserve_b::text, total_shares::text, shares,
			to_char(updated_at AT TIME ZONE 'UTC', 'YYYY-MM-DD"T"HH24:MI:SS.US"Z"')
		FROM pool_states WHERE name=$1
	`, name)
	if err := row.Scan(&st.FeeNum, &st.FeeDen, &st.ReserveA, &st.ReserveB, &st.TotalShares, &shares, &st.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.PoolState{}, false, nil
		}
		return model.PoolState{}, false, err
	}
	if err := json.Unmarshal(shares, &st.Shares); err != nil {
		return model.PoolState{}, false, fmt.Errorf("parse shares: %w", err)
	}
	return st, true, nil
}

// ReportSink adapts Store to the storage.Storage interface.
type ReportSink struct {
	ctx   context.Context
	store *Store
}

func NewReportSink(ctx context.Context, store *Store) *ReportSink {
	return &ReportSink{ctx: ctx, store: store}
}

func (r *ReportSink) PutReportBatch(reports []model.ScenarioReport) error {
	return r.store.InsertScenarioRuns(r.ctx, reports)
}
