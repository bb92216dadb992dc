package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	root := &cobra.Command{
		Use:          "ammlab",
		Short:        "Constant-product AMM and flash-loan engine",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	quoteCmd := &cobra.Command{
		Use:   "quote",
		Short: "Quote a swap against given reserves",
		RunE:  runQuote,
	}
	quoteCmd.Flags().String("reserve-in", "", "input asset reserve (smallest units)")
	quoteCmd.Flags().String("reserve-out", "", "output asset reserve (smallest units)")
	quoteCmd.Flags().String("amount-in", "", "exact input amount")
	quoteCmd.Flags().String("amount-out", "", "exact output amount; quotes the required input instead")
	quoteCmd.Flags().Int64("fee-num", 997, "fee numerator")
	quoteCmd.Flags().Int64("fee-den", 1000, "fee denominator")
	root.AddCommand(quoteCmd)

	scenarioCmd := &cobra.Command{
		Use:   "scenario [name...]",
		Short: "Replay exploit scenarios and record reports",
		RunE:  runScenario,
	}
	scenarioCmd.Flags().StringSlice("run", nil, "scenarios to run (comma-separated); all when empty")
	scenarioCmd.Flags().Bool("list", false, "list scenarios and their parameters")
	scenarioCmd.Flags().String("params", "", "YAML file with parameter overrides")
	scenarioCmd.Flags().StringToString("set", nil, "parameter overrides for a single scenario (key=value)")
	scenarioCmd.Flags().String("out", "./data/scenario_runs.jsonl", "output JSONL path, empty to disable")
	scenarioCmd.Flags().String("pg-dsn", "", "Postgres DSN for the scenario_runs table")
	scenarioCmd.Flags().Bool("migrate", false, "create tables before writing")
	scenarioCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	root.AddCommand(scenarioCmd)

	fetchCmd := &cobra.Command{
		Use:   "fetch",
		Short: "Read a Uniswap v2 pair from chain",
		RunE:  runFetch,
	}
	fetchCmd.Flags().String("rpc", "", "JSON-RPC URL")
	fetchCmd.Flags().String("pair", "", "pair address")
	fetchCmd.Flags().Uint64("block", 0, "block number, 0 means latest")
	fetchCmd.Flags().String("out", "", "write the pair state JSON to this path")
	fetchCmd.Flags().String("pool-state", "", "seed a local pool state file from the pair reserves")
	fetchCmd.Flags().Int("max-retries", 5, "maximum retry attempts")
	fetchCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	fetchCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	root.AddCommand(fetchCmd)

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP quote API and metrics",
		RunE:  runServe,
	}
	serveCmd.Flags().String("addr", ":8080", "listen address")
	serveCmd.Flags().String("rpc", "", "JSON-RPC URL for pair quotes (optional)")
	serveCmd.Flags().Int64("fee-num", 997, "pair quote fee numerator")
	serveCmd.Flags().Int64("fee-den", 1000, "pair quote fee denominator")
	serveCmd.Flags().Int("max-retries", 5, "maximum retry attempts")
	serveCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	serveCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	root.AddCommand(serveCmd)

	root.AddCommand(newPoolCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
