package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "AMMLAB"

// newViper merges defaults, environment variables, flags and an optional
// config file. Without cfgFile, ./config.{yaml,json,toml} is read if present.
func newViper(cfgFile string, flags *pflag.FlagSet, defaults map[string]any) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("log-level", "info")
	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}
	return v, nil
}

// ChainConfig holds JSON-RPC settings shared by commands that read chain state.
type ChainConfig struct {
	RPCURL       string
	MaxRetries   int
	RetryBackoff time.Duration
}

var chainDefaults = map[string]any{
	"max-retries":   5,
	"retry-backoff": 500 * time.Millisecond,
}

func loadChain(v *viper.Viper) ChainConfig {
	return ChainConfig{
		RPCURL:       v.GetString("rpc"),
		MaxRetries:   v.GetInt("max-retries"),
		RetryBackoff: v.GetDuration("retry-backoff"),
	}
}

// ScenarioConfig holds configuration for the scenario command.
type ScenarioConfig struct {
	Scenarios  []string
	ParamsFile string
	Out        string
	PGDSN      string
	Migrate    bool
	LogLevel   string
}

// LoadScenario merges config file, environment variables, and flags into ScenarioConfig.
func LoadScenario(cfgFile string, flags *pflag.FlagSet) (ScenarioConfig, error) {
	v, err := newViper(cfgFile, flags, map[string]any{
		"out": "./data/scenario_runs.jsonl",
	})
	if err != nil {
		return ScenarioConfig{}, err
	}
	return ScenarioConfig{
		Scenarios:  getStringSlice(v, "run"),
		ParamsFile: v.GetString("params"),
		Out:        v.GetString("out"),
		PGDSN:      v.GetString("pg-dsn"),
		Migrate:    v.GetBool("migrate"),
		LogLevel:   v.GetString("log-level"),
	}, nil
}

// FetchConfig holds configuration for the fetch command.
type FetchConfig struct {
	ChainConfig
	Pair      string
	Block     uint64
	Out       string
	PoolState string
	LogLevel  string
}

// LoadFetch merges config file, environment variables, and flags into FetchConfig.
func LoadFetch(cfgFile string, flags *pflag.FlagSet) (FetchConfig, error) {
	v, err := newViper(cfgFile, flags, chainDefaults)
	if err != nil {
		return FetchConfig{}, err
	}
	return FetchConfig{
		ChainConfig: loadChain(v),
		Pair:        v.GetString("pair"),
		Block:       v.GetUint64("block"),
		Out:         v.GetString("out"),
		PoolState:   v.GetString("pool-state"),
		LogLevel:    v.GetString("log-level"),
	}, nil
}

// ServeConfig holds configuration for the serve command.
type ServeConfig struct {
	ChainConfig
	Addr     string
	FeeNum   int64
	FeeDen   int64
	LogLevel string
}

// LoadServe merges config file, environment variables, and flags into ServeConfig.
func LoadServe(cfgFile string, flags *pflag.FlagSet) (ServeConfig, error) {
	defaults := map[string]any{
		"addr":    ":8080",
		"fee-num": int64(997),
		"fee-den": int64(1000),
	}
	for k, val := range chainDefaults {
		defaults[k] = val
	}
	v, err := newViper(cfgFile, flags, defaults)
	if err != nil {
		return ServeConfig{}, err
	}
	return ServeConfig{
		ChainConfig: loadChain(v),
		Addr:        v.GetString("addr"),
		FeeNum:      v.GetInt64("fee-num"),
		FeeDen:      v.GetInt64("fee-den"),
		LogLevel:    v.GetString("log-level"),
	}, nil
}

// PoolConfig holds configuration for the pool commands.
type PoolConfig struct {
	StateFile string
	PGDSN     string
	Name      string
	FeeNum    int64
	FeeDen    int64
	LogLevel  string
}

// LoadPool merges config file, environment variables, and flags into PoolConfig.
func LoadPool(cfgFile string, flags *pflag.FlagSet) (PoolConfig, error) {
	v, err := newViper(cfgFile, flags, map[string]any{
		"state":   "./data/pool.json",
		"name":    "default",
		"fee-num": int64(997),
		"fee-den": int64(1000),
	})
	if err != nil {
		return PoolConfig{}, err
	}
	return PoolConfig{
		StateFile: v.GetString("state"),
		PGDSN:     v.GetString("pg-dsn"),
		Name:      v.GetString("name"),
		FeeNum:    v.GetInt64("fee-num"),
		FeeDen:    v.GetInt64("fee-den"),
		LogLevel:  v.GetString("log-level"),
	}, nil
}

func getStringSlice(v *viper.Viper, key string) []string {
	if !v.IsSet(key) {
		return nil
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case []string:
		return cleanStrings(typed)
	case string:
		return splitAndClean(typed)
	case []interface{}:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			items = append(items, fmt.Sprintf("%v", item))
		}
		return cleanStrings(items)
	default:
		return nil
	}
}

func splitAndClean(input string) []string {
	if input == "" {
		return nil
	}
	return cleanStrings(strings.Split(input, ","))
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}
