package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ammlab/internal/amm"
	"ammlab/internal/chain"
	"ammlab/internal/config"
	"ammlab/internal/dex"
	"ammlab/internal/handler"
	"ammlab/internal/observability"
	"ammlab/internal/service"
)

func runServe(cmd *cobra.Command, _ []string) error {
	_ = godotenv.Load()

	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadServe(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	fee := amm.Fee{Num: cfg.FeeNum, Den: cfg.FeeDen}
	if err := fee.Validate(); err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(reg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var pairs service.PairFetcher
	if cfg.RPCURL != "" {
		chainClient, err := chain.NewClient(ctx, cfg.RPCURL,
			chain.WithRetry(cfg.MaxRetries, cfg.RetryBackoff),
			chain.WithLogger(logger),
			chain.WithMetrics(metrics),
		)
		if err != nil {
			return fmt.Errorf("connect rpc: %w", err)
		}
		defer chainClient.Close()
		pairs = dex.NewPairReader(chainClient, dex.NewTokenMetaCache(), logger)
	}

	app := fiber.New()
	handler.NewQuoteHandler(logger, metrics, service.NewQuoteService(logger, pairs, fee)).Register(app)
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	logger.Info("serve start",
		zap.String("addr", cfg.Addr),
		zap.Bool("chain", pairs != nil),
		zap.Stringer("fee", fee),
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(cfg.Addr)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Warn("shutdown", zap.Error(err))
	}
	return nil
}
