package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"fileswap/internal/config"
	"fileswap/internal/engine"
	"fileswap/internal/settlement"
	"fileswap/internal/storage"
	"fileswap/internal/storage/memory"
	"fileswap/internal/storage/postgres"
)

func main() {
	root := &cobra.Command{
		Use:          "engine",
		Short:        "AMM pricing and reserve-management engine",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	quoteCmd := &cobra.Command{
		Use:   "quote",
		Short: "Price a swap against the current pool snapshot (advisory)",
		RunE:  runQuote,
	}
	quoteCmd.Flags().String("token-in", "", "input token identifier")
	quoteCmd.Flags().String("token-out", "", "output token identifier")
	quoteCmd.Flags().String("amount-in", "", "input amount")
	addEngineFlags(quoteCmd)
	root.AddCommand(quoteCmd)

	swapCmd := &cobra.Command{
		Use:   "swap",
		Short: "Execute a swap with slippage protection",
		RunE:  runSwap,
	}
	swapCmd.Flags().String("token-in", "", "input token identifier")
	swapCmd.Flags().String("token-out", "", "output token identifier")
	swapCmd.Flags().String("amount-in", "", "input amount")
	swapCmd.Flags().String("min-amount-out", "0", "minimum acceptable output amount")
	swapCmd.Flags().String("trader", "", "trader identifier")
	addEngineFlags(swapCmd)
	root.AddCommand(swapCmd)

	addLiquidityCmd := &cobra.Command{
		Use:   "add-liquidity",
		Short: "Deposit funds into a pool, creating it on first use",
		RunE:  runAddLiquidity,
	}
	addLiquidityCmd.Flags().String("token-a", "", "first token identifier")
	addLiquidityCmd.Flags().String("token-b", "", "second token identifier")
	addLiquidityCmd.Flags().String("amount-a", "", "deposit amount of token A")
	addLiquidityCmd.Flags().String("amount-b", "", "deposit amount of token B")
	addLiquidityCmd.Flags().String("provider", "", "liquidity provider identifier")
	addEngineFlags(addLiquidityCmd)
	root.AddCommand(addLiquidityCmd)

	removeLiquidityCmd := &cobra.Command{
		Use:   "remove-liquidity",
		Short: "Burn liquidity units for a proportional payout",
		RunE:  runRemoveLiquidity,
	}
	removeLiquidityCmd.Flags().String("token-a", "", "first token identifier")
	removeLiquidityCmd.Flags().String("token-b", "", "second token identifier")
	removeLiquidityCmd.Flags().String("units", "", "liquidity units to burn")
	removeLiquidityCmd.Flags().String("provider", "", "liquidity provider identifier")
	addEngineFlags(removeLiquidityCmd)
	root.AddCommand(removeLiquidityCmd)

	poolInfoCmd := &cobra.Command{
		Use:   "pool-info",
		Short: "Show a pool's reserves and outstanding liquidity units",
		RunE:  runPoolInfo,
	}
	poolInfoCmd.Flags().String("token-a", "", "first token identifier")
	poolInfoCmd.Flags().String("token-b", "", "second token identifier")
	addEngineFlags(poolInfoCmd)
	root.AddCommand(poolInfoCmd)

	poolsCmd := &cobra.Command{
		Use:   "pools",
		Short: "List all pools",
		RunE:  runPools,
	}
	addEngineFlags(poolsCmd)
	root.AddCommand(poolsCmd)

	tradesCmd := &cobra.Command{
		Use:   "trades",
		Short: "List executed trades, most recent first",
		RunE:  runTrades,
	}
	tradesCmd.Flags().String("token-a", "", "filter by pool: first token")
	tradesCmd.Flags().String("token-b", "", "filter by pool: second token")
	tradesCmd.Flags().String("trader", "", "filter by trader")
	tradesCmd.Flags().Int("limit", 50, "maximum trades to return")
	addEngineFlags(tradesCmd)
	root.AddCommand(tradesCmd)

	positionsCmd := &cobra.Command{
		Use:   "positions",
		Short: "List a provider's liquidity positions",
		RunE:  runPositions,
	}
	positionsCmd.Flags().String("provider", "", "liquidity provider identifier")
	addEngineFlags(positionsCmd)
	root.AddCommand(positionsCmd)

	volumeCmd := &cobra.Command{
		Use:   "volume",
		Short: "Show aggregate executed flow for a pool",
		RunE:  runVolume,
	}
	volumeCmd.Flags().String("token-a", "", "first token identifier")
	volumeCmd.Flags().String("token-b", "", "second token identifier")
	addEngineFlags(volumeCmd)
	root.AddCommand(volumeCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func addEngineFlags(cmd *cobra.Command) {
	cmd.Flags().String("store", "postgres", "store backend (postgres, memory)")
	cmd.Flags().String("pg-dsn", "", "Postgres DSN")
	cmd.Flags().Int64("fee-bps", 30, "swap fee in basis points")
	cmd.Flags().String("audit-out", "", "optional JSONL trade audit path")
	cmd.Flags().String("settlement", "noop", "settlement mode (noop, evm)")
	cmd.Flags().String("eth-rpc", "", "Ethereum RPC URL (evm settlement)")
	cmd.Flags().String("eth-key", "", "settlement signing key hex (evm settlement)")
	cmd.Flags().String("settlement-addr", "", "settlement contract address (evm settlement)")
	cmd.Flags().Int("max-retries", 5, "maximum settlement retry attempts")
	cmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial settlement retry backoff")
	cmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
}

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	return config.Load(cfgFile, cmd.Flags())
}

// buildEngine wires the store and settler selected by config.
func buildEngine(ctx context.Context, cfg config.Config, logger *zap.Logger) (*engine.Engine, func(), error) {
	var store storage.Store
	cleanup := func() {}

	switch cfg.Store {
	case "memory":
		logger.Warn("memory store holds no state across invocations")
		store = memory.NewStore()
	default:
		pg, err := postgres.NewStore(ctx, cfg.PgDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open store: %w", err)
		}
		if err := pg.EnsureSchema(ctx); err != nil {
			pg.Close()
			return nil, nil, err
		}
		store = pg
	}

	var settler settlement.Settler = settlement.Noop{}
	if cfg.Settlement == "evm" {
		evm, err := settlement.NewEVM(ctx, settlement.EVMConfig{
			RPCURL:         cfg.EthRPC,
			PrivateKeyHex:  cfg.EthKey,
			SettlementAddr: cfg.SettlementAddr,
			MaxRetries:     cfg.MaxRetries,
			RetryBackoff:   cfg.RetryBackoff,
		}, logger)
		if err != nil {
			store.Close()
			return nil, nil, fmt.Errorf("open settler: %w", err)
		}
		settler = evm
		cleanup = evm.Close
	}

	var audit *storage.JsonlAuditLog
	if cfg.AuditOut != "" {
		audit = storage.NewJsonlAuditLog(cfg.AuditOut)
	}

	eng, err := engine.New(engine.Config{FeeRateBps: cfg.FeeRateBps}, store, settler, audit, logger)
	if err != nil {
		cleanup()
		store.Close()
		return nil, nil, err
	}

	storeCleanup := cleanup
	return eng, func() {
		storeCleanup()
		store.Close()
	}, nil
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

func printJSON(value any) error {
	out, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	fmt.Println(string(out))
	return nil
}
