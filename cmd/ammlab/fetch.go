package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ammlab/internal/amm"
	"ammlab/internal/chain"
	"ammlab/internal/config"
	"ammlab/internal/dex"
	"ammlab/internal/storage"
)

func runFetch(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadFetch(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if !common.IsHexAddress(cfg.Pair) {
		return fmt.Errorf("invalid pair address %q", cfg.Pair)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chainClient, err := chain.NewClient(ctx, cfg.RPCURL,
		chain.WithRetry(cfg.MaxRetries, cfg.RetryBackoff),
		chain.WithLogger(logger),
	)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer chainClient.Close()

	reader := dex.NewPairReader(chainClient, dex.NewTokenMetaCache(), logger)
	st, err := reader.FetchPair(ctx, common.HexToAddress(cfg.Pair), cfg.Block)
	if err != nil {
		return err
	}

	if cfg.Out != "" {
		data, err := json.MarshalIndent(st, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal pair: %w", err)
		}
		if dir := filepath.Dir(cfg.Out); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create output dir: %w", err)
			}
		}
		if err := os.WriteFile(cfg.Out, data, 0o644); err != nil {
			return fmt.Errorf("write pair: %w", err)
		}
	}

	if cfg.PoolState != "" {
		pool, err := dex.PoolFromPair(st, common.HexToAddress(st.Pair), amm.DefaultFee)
		if err != nil {
			return fmt.Errorf("seed pool: %w", err)
		}
		name := fmt.Sprintf("%s/%s", st.Token0.Label(), st.Token1.Label())
		if err := storage.NewPoolStateFile(cfg.PoolState).Save(storage.EncodePool(name, pool)); err != nil {
			return err
		}
		logger.Info("pool state seeded", zap.String("path", cfg.PoolState), zap.String("name", name))
	}

	return printJSON(cmd.OutOrStdout(), st)
}
