package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"fileswap/internal/engine"
)

// withEngine handles the shared lifecycle of every subcommand: config, logger,
// signal-aware context, and engine construction.
func withEngine(cmd *cobra.Command, fn func(ctx context.Context, eng *engineHandle) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eng, cleanup, err := buildEngine(ctx, cfg, logger)
	if err != nil {
		logger.Error("engine init failed", zap.Error(err))
		return err
	}
	defer cleanup()

	return fn(ctx, &engineHandle{Engine: eng, flags: cmd})
}

type engineHandle struct {
	*engine.Engine
	flags *cobra.Command
}

func (h *engineHandle) str(name string) string {
	v, _ := h.flags.Flags().GetString(name)
	return v
}

func (h *engineHandle) amount(name string) (decimal.Decimal, error) {
	raw, _ := h.flags.Flags().GetString(name)
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("flag --%s: %w", name, err)
	}
	return v, nil
}

func runQuote(cmd *cobra.Command, _ []string) error {
	return withEngine(cmd, func(ctx context.Context, h *engineHandle) error {
		amountIn, err := h.amount("amount-in")
		if err != nil {
			return err
		}
		quote, err := h.Quote(ctx, h.str("token-in"), h.str("token-out"), amountIn)
		if err != nil {
			return err
		}
		return printJSON(quote)
	})
}

func runSwap(cmd *cobra.Command, _ []string) error {
	return withEngine(cmd, func(ctx context.Context, h *engineHandle) error {
		amountIn, err := h.amount("amount-in")
		if err != nil {
			return err
		}
		minOut, err := h.amount("min-amount-out")
		if err != nil {
			return err
		}
		trade, err := h.ExecuteSwap(ctx, h.str("token-in"), h.str("token-out"), amountIn, minOut, h.str("trader"))
		if err != nil {
			return err
		}
		return printJSON(trade)
	})
}

func runAddLiquidity(cmd *cobra.Command, _ []string) error {
	return withEngine(cmd, func(ctx context.Context, h *engineHandle) error {
		amountA, err := h.amount("amount-a")
		if err != nil {
			return err
		}
		amountB, err := h.amount("amount-b")
		if err != nil {
			return err
		}
		res, err := h.AddLiquidity(ctx, h.str("token-a"), h.str("token-b"), amountA, amountB, h.str("provider"))
		if err != nil {
			return err
		}
		return printJSON(res)
	})
}

func runRemoveLiquidity(cmd *cobra.Command, _ []string) error {
	return withEngine(cmd, func(ctx context.Context, h *engineHandle) error {
		units, err := h.amount("units")
		if err != nil {
			return err
		}
		res, err := h.RemoveLiquidity(ctx, h.str("token-a"), h.str("token-b"), units, h.str("provider"))
		if err != nil {
			return err
		}
		return printJSON(res)
	})
}

func runPoolInfo(cmd *cobra.Command, _ []string) error {
	return withEngine(cmd, func(ctx context.Context, h *engineHandle) error {
		pool, err := h.PoolInfo(ctx, h.str("token-a"), h.str("token-b"))
		if err != nil {
			return err
		}
		return printJSON(pool)
	})
}

func runPools(cmd *cobra.Command, _ []string) error {
	return withEngine(cmd, func(ctx context.Context, h *engineHandle) error {
		pools, err := h.ListPools(ctx)
		if err != nil {
			return err
		}
		return printJSON(pools)
	})
}

func runTrades(cmd *cobra.Command, _ []string) error {
	return withEngine(cmd, func(ctx context.Context, h *engineHandle) error {
		limit, _ := h.flags.Flags().GetInt("limit")

		tokenA, tokenB, trader := h.str("token-a"), h.str("token-b"), h.str("trader")
		switch {
		case tokenA != "" || tokenB != "":
			trades, err := h.TradesForPool(ctx, tokenA, tokenB, limit)
			if err != nil {
				return err
			}
			return printJSON(trades)
		case trader != "":
			trades, err := h.TradesForTrader(ctx, trader, limit)
			if err != nil {
				return err
			}
			return printJSON(trades)
		default:
			trades, err := h.RecentTrades(ctx, limit)
			if err != nil {
				return err
			}
			return printJSON(trades)
		}
	})
}

func runPositions(cmd *cobra.Command, _ []string) error {
	return withEngine(cmd, func(ctx context.Context, h *engineHandle) error {
		positions, err := h.PositionsForProvider(ctx, h.str("provider"))
		if err != nil {
			return err
		}
		return printJSON(positions)
	})
}

func runVolume(cmd *cobra.Command, _ []string) error {
	return withEngine(cmd, func(ctx context.Context, h *engineHandle) error {
		volume, err := h.PoolVolume(ctx, h.str("token-a"), h.str("token-b"))
		if err != nil {
			return err
		}
		return printJSON(volume)
	})
}
