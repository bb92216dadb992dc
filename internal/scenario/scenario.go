// Package scenario replays the flash-loan and price-oracle exploits the engine
// is built to model. Each scenario assembles its own ledger, pools and lenders
// from Params, drives the exploit through the engine API and reports the
// resulting balances.
package scenario

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"ammlab/internal/fixedpoint"
	"ammlab/internal/ledger"
	"ammlab/internal/model"
	"ammlab/internal/observability"
)

var (
	ErrUnknownScenario = errors.New("unknown scenario")
	ErrUnknownParam    = errors.New("unknown parameter")
)

// Params are scenario inputs keyed by name. Amounts are decimal strings in
// whole token units ("1000", "0.5"); counts are plain integers.
type Params map[string]string

// Scenario is one replayable exploit.
type Scenario struct {
	Name        string
	Description string
	Defaults    Params
	// run performs setup and the exploit and reports whether the exploit's
	// goal was reached.
	run func(ctx context.Context, env *Env) (bool, error)
}

// Env is the state shared by a scenario run.
type Env struct {
	Book    *ledger.Ledger
	Logger  *zap.Logger
	Metrics *observability.Metrics

	params  Params
	steps   []model.ScenarioStep
	tracked []tracked
}

type tracked struct {
	account     string
	asset       string
	accountAddr common.Address
	assetAddr   common.Address
	before      *big.Int
}

// Amount parses the named parameter into 18-decimal smallest units.
func (e *Env) Amount(key string) (*big.Int, error) {
	raw, ok := e.params[key]
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, ErrUnknownParam)
	}
	v, err := fixedpoint.ParseUnits(raw, 18)
	if err != nil {
		return nil, fmt.Errorf("param %s: %w", key, err)
	}
	return v, nil
}

// Count parses the named parameter as a non-negative integer.
func (e *Env) Count(key string) (int, error) {
	raw, ok := e.params[key]
	if !ok {
		return 0, fmt.Errorf("%s: %w", key, ErrUnknownParam)
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("param %s: invalid count %q", key, raw)
	}
	return n, nil
}

// Step records an engine call in the report.
func (e *Env) Step(action, format string, args ...any) {
	detail := fmt.Sprintf(format, args...)
	e.steps = append(e.steps, model.ScenarioStep{Action: action, Detail: detail})
	e.Logger.Debug("step", zap.String("action", action), zap.String("detail", detail))
}

// Track adds an (account, asset) balance to the report, capturing its
// current value as the starting balance.
func (e *Env) Track(accountLabel string, account common.Address, assetLabel string, asset common.Address) {
	e.tracked = append(e.tracked, tracked{
		account:     accountLabel,
		asset:       assetLabel,
		accountAddr: account,
		assetAddr:   asset,
		before:      e.Book.BalanceOf(asset, account),
	})
}

// Mint funds account during setup.
func (e *Env) Mint(asset, account common.Address, amount *big.Int) error {
	if amount.Sign() == 0 {
		return nil
	}
	return e.Book.Mint(asset, account, amount)
}

// Address derives a stable account or token address from a label.
func Address(label string) common.Address {
	return common.BytesToAddress(crypto.Keccak256([]byte(label))[12:])
}

func formatEther(v *big.Int) string {
	return fixedpoint.FormatUnits(v, 18)
}

// Runner executes registered scenarios.
type Runner struct {
	logger    *zap.Logger
	metrics   *observability.Metrics
	scenarios map[string]Scenario
}

// NewRunner returns a runner holding every built-in scenario.
func NewRunner(logger *zap.Logger, metrics *observability.Metrics) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Runner{logger: logger, metrics: metrics, scenarios: make(map[string]Scenario)}
	for _, s := range builtins() {
		r.scenarios[s.Name] = s
	}
	return r
}

func builtins() []Scenario {
	return []Scenario{
		sideEntrance(),
		naiveReceiver(),
		unstoppable(),
		truster(),
		puppet(),
		puppetV2(),
		freeRider(),
		theRewarder(),
	}
}

// Names lists the registered scenarios in order.
func (r *Runner) Names() []string {
	names := make([]string, 0, len(r.scenarios))
	for name := range r.scenarios {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup returns a registered scenario.
func (r *Runner) Lookup(name string) (Scenario, bool) {
	s, ok := r.scenarios[name]
	return s, ok
}

// Run executes the named scenario with overrides applied to its defaults.
// A failed exploit is reported through the returned report; an error is
// returned only when the scenario cannot be started.
func (r *Runner) Run(ctx context.Context, name string, overrides Params) (*model.ScenarioReport, error) {
	s, ok := r.scenarios[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrUnknownScenario)
	}
	params := make(Params, len(s.Defaults))
	for k, v := range s.Defaults {
		params[k] = v
	}
	for k, v := range overrides {
		if _, ok := s.Defaults[k]; !ok {
			return nil, fmt.Errorf("%s.%s: %w", name, k, ErrUnknownParam)
		}
		params[k] = v
	}

	runID := uuid.NewString()
	logger := r.logger.With(zap.String("scenario", name), zap.String("run_id", runID))
	env := &Env{
		Book:    ledger.New(),
		Logger:  logger,
		Metrics: r.metrics,
		params:  params,
	}

	report := &model.ScenarioReport{
		RunID:       runID,
		Scenario:    name,
		Description: s.Description,
		Params:      params,
		StartedAt:   time.Now(),
	}
	succeeded, err := s.run(ctx, env)
	report.FinishedAt = time.Now()
	report.Succeeded = succeeded && err == nil
	if err != nil {
		report.Error = err.Error()
	}
	report.Steps = env.steps
	for _, t := range env.tracked {
		report.Balances = append(report.Balances, model.BalanceChange{
			Account: t.account,
			Asset:   t.asset,
			Before:  formatEther(t.before),
			After:   formatEther(env.Book.BalanceOf(t.assetAddr, t.accountAddr)),
		})
	}

	r.metrics.ObserveScenario(name, report.Succeeded, report.Duration())
	logger.Info("scenario finished",
		zap.Bool("succeeded", report.Succeeded),
		zap.Int("steps", len(report.Steps)),
		zap.Duration("elapsed", report.Duration()),
		zap.String("error", report.Error),
	)
	return report, nil
}

// ParamsFile is the YAML layout of a parameter override file:
//
//	scenarios:
//	  puppet:
//	    player_tokens: "1000"
type ParamsFile struct {
	Scenarios map[string]Params `yaml:"scenarios"`
}

// LoadParamsFile reads per-scenario overrides from a YAML file.
func LoadParamsFile(path string) (map[string]Params, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read params file: %w", err)
	}
	var f ParamsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse params file: %w", err)
	}
	return f.Scenarios, nil
}

func loadAmounts(env *Env, keys ...string) (map[string]*big.Int, error) {
	out := make(map[string]*big.Int, len(keys))
	for _, k := range keys {
		v, err := env.Amount(k)
		if err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, nil
}
