package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadScenarioFlagsAndEnv(t *testing.T) {
	t.Setenv("AMMLAB_PG_DSN", "postgres://localhost/ammlab")
	t.Setenv("AMMLAB_RUN", "puppet, truster,,")

	flags := pflag.NewFlagSet("scenario", pflag.ContinueOnError)
	flags.String("out", "./data/scenario_runs.jsonl", "")
	flags.String("log-level", "info", "")
	require.NoError(t, flags.Parse([]string{"--out", "/tmp/runs.jsonl", "--log-level", "debug"}))

	cfg, err := LoadScenario("", flags)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/runs.jsonl", cfg.Out)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "postgres://localhost/ammlab", cfg.PGDSN)
	assert.Equal(t, []string{"puppet", "truster"}, cfg.Scenarios)
}

func TestLoadServeFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ammlab.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
addr: ":9090"
rpc: "http://localhost:8545"
fee-num: 9970
fee-den: 10000
retry-backoff: 2s
`), 0o644))

	cfg, err := LoadServe(path, nil)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, "http://localhost:8545", cfg.RPCURL)
	assert.Equal(t, int64(9970), cfg.FeeNum)
	assert.Equal(t, int64(10000), cfg.FeeDen)
	assert.Equal(t, 2*time.Second, cfg.RetryBackoff)
	assert.Equal(t, 5, cfg.MaxRetries)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadPoolDefaults(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	cfg, err := LoadPool("", nil)
	require.NoError(t, err)
	assert.Equal(t, "./data/pool.json", cfg.StateFile)
	assert.Equal(t, "default", cfg.Name)
	assert.Equal(t, int64(997), cfg.FeeNum)
}

func TestLoadMissingConfigFile(t *testing.T) {
	_, err := LoadFetch(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	assert.Error(t, err)
}
