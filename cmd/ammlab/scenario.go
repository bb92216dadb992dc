package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ammlab/internal/config"
	"ammlab/internal/model"
	"ammlab/internal/scenario"
	"ammlab/internal/storage"
	"ammlab/internal/storage/postgres"
)

func runScenario(cmd *cobra.Command, args []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadScenario(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	runner := scenario.NewRunner(logger, nil)

	if list, _ := cmd.Flags().GetBool("list"); list {
		for _, name := range runner.Names() {
			s, _ := runner.Lookup(name)
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", s.Name, s.Description)
			keys := make([]string, 0, len(s.Defaults))
			for k := range s.Defaults {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s=%s\n", k, s.Defaults[k])
			}
		}
		return nil
	}

	names := append(cfg.Scenarios, args...)
	if len(names) == 0 {
		names = runner.Names()
	}

	overrides := map[string]scenario.Params{}
	if cfg.ParamsFile != "" {
		if overrides, err = scenario.LoadParamsFile(cfg.ParamsFile); err != nil {
			return err
		}
	}
	if set, _ := cmd.Flags().GetStringToString("set"); len(set) > 0 {
		if len(names) != 1 {
			return fmt.Errorf("--set needs exactly one scenario, got %d", len(names))
		}
		if overrides == nil {
			overrides = map[string]scenario.Params{}
		}
		merged := scenario.Params{}
		for k, v := range overrides[names[0]] {
			merged[k] = v
		}
		for k, v := range set {
			merged[k] = v
		}
		overrides[names[0]] = merged
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var sinks []storage.Storage
	if cfg.Out != "" {
		sinks = append(sinks, storage.NewJsonlStorage(cfg.Out))
	}
	if cfg.PGDSN != "" {
		store, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer store.Close()
		if cfg.Migrate {
			if err := store.Migrate(ctx); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
		}
		sinks = append(sinks, postgres.NewReportSink(ctx, store))
	}

	logger.Info("scenario start",
		zap.Strings("scenarios", names),
		zap.String("params", cfg.ParamsFile),
		zap.String("out", cfg.Out),
		zap.Bool("postgres", cfg.PGDSN != ""),
	)

	reports := make([]model.ScenarioReport, 0, len(names))
	failed := 0
	for _, name := range names {
		report, err := runner.Run(ctx, name, overrides[name])
		if err != nil {
			return err
		}
		reports = append(reports, *report)
		status := "ok"
		if !report.Succeeded {
			status = "FAILED"
			failed++
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%-16s %-6s %s %s\n", report.Scenario, status, report.RunID, report.Error)
		for _, b := range report.Balances {
			fmt.Fprintf(cmd.OutOrStdout(), "    %-14s %-5s %s -> %s\n", b.Account, b.Asset, b.Before, b.After)
		}
	}

	for _, sink := range sinks {
		if err := sink.PutReportBatch(reports); err != nil {
			return fmt.Errorf("store reports: %w", err)
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d scenarios failed", failed, len(reports))
	}
	return nil
}
