package main

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ammlab/internal/amm"
	"ammlab/internal/config"
	"ammlab/internal/model"
	"ammlab/internal/storage"
	"ammlab/internal/storage/postgres"
)

func newPoolCmd() *cobra.Command {
	poolCmd := &cobra.Command{
		Use:   "pool",
		Short: "Operate on a pool persisted in a state file",
	}
	poolCmd.PersistentFlags().String("state", "./data/pool.json", "pool state file")
	poolCmd.PersistentFlags().String("pg-dsn", "", "also upsert the pool into Postgres")
	poolCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Create a pool with an initial two-sided deposit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withPool(cmd, true, func(p *amm.Pool) (any, error) {
				provider, err := addressFlag(cmd, "provider")
				if err != nil {
					return nil, err
				}
				a, err := bigFlag(cmd, "amount-a")
				if err != nil {
					return nil, err
				}
				b, err := bigFlag(cmd, "amount-b")
				if err != nil {
					return nil, err
				}
				return p.AddLiquidity(provider, a, b)
			})
		},
	}
	initCmd.Flags().String("name", "default", "pool name")
	initCmd.Flags().Int64("fee-num", 997, "fee numerator")
	initCmd.Flags().Int64("fee-den", 1000, "fee denominator")
	initCmd.Flags().String("provider", "", "liquidity provider address")
	initCmd.Flags().String("amount-a", "", "asset A deposit")
	initCmd.Flags().String("amount-b", "", "asset B deposit")

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the pool state and spot prices",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withPool(cmd, false, func(p *amm.Pool) (any, error) {
				scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
				out := map[string]string{"k": p.K().String()}
				if price, err := p.SpotPrice(amm.AssetA, scale); err == nil {
					out["price_a_in_b_wad"] = price.String()
				}
				if price, err := p.SpotPrice(amm.AssetB, scale); err == nil {
					out["price_b_in_a_wad"] = price.String()
				}
				return out, nil
			})
		},
	}

	swapCmd := &cobra.Command{
		Use:   "swap",
		Short: "Swap against the pool, exact input or exact output",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withPool(cmd, false, func(p *amm.Pool) (any, error) {
				raw, _ := cmd.Flags().GetString("in")
				assetIn, err := parseAsset(raw)
				if err != nil {
					return nil, err
				}
				limit, err := optionalBigFlag(cmd, "limit")
				if err != nil {
					return nil, err
				}
				if out, _ := cmd.Flags().GetString("amount-out"); out != "" {
					amountOut, err := bigFlag(cmd, "amount-out")
					if err != nil {
						return nil, err
					}
					return p.SwapExactOutput(assetIn.Other(), amountOut, limit)
				}
				amountIn, err := bigFlag(cmd, "amount-in")
				if err != nil {
					return nil, err
				}
				return p.SwapExactInput(assetIn, amountIn, limit)
			})
		},
	}
	swapCmd.Flags().String("in", "a", "asset sold: a or b")
	swapCmd.Flags().String("amount-in", "", "exact input amount")
	swapCmd.Flags().String("amount-out", "", "exact output amount")
	swapCmd.Flags().String("limit", "", "minimum output (exact input) or maximum input (exact output)")

	addCmd := &cobra.Command{
		Use:   "add",
		Short: "Add liquidity",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withPool(cmd, false, func(p *amm.Pool) (any, error) {
				provider, err := addressFlag(cmd, "provider")
				if err != nil {
					return nil, err
				}
				a, err := bigFlag(cmd, "amount-a")
				if err != nil {
					return nil, err
				}
				b, err := bigFlag(cmd, "amount-b")
				if err != nil {
					return nil, err
				}
				return p.AddLiquidity(provider, a, b)
			})
		},
	}
	addCmd.Flags().String("provider", "", "liquidity provider address")
	addCmd.Flags().String("amount-a", "", "asset A deposit")
	addCmd.Flags().String("amount-b", "", "maximum asset B deposit")

	removeCmd := &cobra.Command{
		Use:   "remove",
		Short: "Burn shares and withdraw both assets",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withPool(cmd, false, func(p *amm.Pool) (any, error) {
				provider, err := addressFlag(cmd, "provider")
				if err != nil {
					return nil, err
				}
				shares, err := bigFlag(cmd, "shares")
				if err != nil {
					return nil, err
				}
				a, b, err := p.RemoveLiquidity(provider, shares)
				if err != nil {
					return nil, err
				}
				return map[string]string{"amount_a": a.String(), "amount_b": b.String()}, nil
			})
		},
	}
	removeCmd.Flags().String("provider", "", "liquidity provider address")
	removeCmd.Flags().String("shares", "", "shares to burn")

	poolCmd.AddCommand(initCmd, showCmd, swapCmd, addCmd, removeCmd)
	return poolCmd
}

type poolOutput struct {
	Result any             `json:"result,omitempty"`
	Pool   model.PoolState `json:"pool"`
}

// withPool loads the pool, applies op and saves the result. With create set
// the pool must not exist yet.
func withPool(cmd *cobra.Command, create bool, op func(*amm.Pool) (any, error)) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadPool(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	file := storage.NewPoolStateFile(cfg.StateFile)
	st, err := file.Load()
	var pool *amm.Pool
	switch {
	case create && err == nil:
		return fmt.Errorf("pool state %s already exists", cfg.StateFile)
	case create && errors.Is(err, storage.ErrNoPoolState):
		if pool, err = amm.NewPool(amm.Fee{Num: cfg.FeeNum, Den: cfg.FeeDen}); err != nil {
			return err
		}
		st.Name = cfg.Name
	case err != nil:
		return err
	default:
		if pool, err = storage.DecodePool(st); err != nil {
			return fmt.Errorf("decode %s: %w", cfg.StateFile, err)
		}
	}

	result, err := op(pool)
	if err != nil {
		return err
	}
	next := storage.EncodePool(st.Name, pool)
	if err := file.Save(next); err != nil {
		return err
	}

	if cfg.PGDSN != "" {
		ctx := context.Background()
		store, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer store.Close()
		if err := store.UpsertPoolState(ctx, next); err != nil {
			return fmt.Errorf("upsert pool: %w", err)
		}
	}

	logger.Debug("pool updated",
		zap.String("name", next.Name),
		zap.String("reserve_a", next.ReserveA),
		zap.String("reserve_b", next.ReserveB),
	)
	return printJSON(cmd.OutOrStdout(), poolOutput{Result: result, Pool: next})
}

func parseAsset(raw string) (amm.Asset, error) {
	switch strings.ToLower(raw) {
	case "a":
		return amm.AssetA, nil
	case "b":
		return amm.AssetB, nil
	default:
		return 0, fmt.Errorf("asset must be a or b, got %q", raw)
	}
}

func addressFlag(cmd *cobra.Command, name string) (common.Address, error) {
	raw, _ := cmd.Flags().GetString(name)
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("--%s: invalid address %q", name, raw)
	}
	return common.HexToAddress(raw), nil
}

func optionalBigFlag(cmd *cobra.Command, name string) (*big.Int, error) {
	if raw, _ := cmd.Flags().GetString(name); raw == "" {
		return nil, nil
	}
	return bigFlag(cmd, name)
}
