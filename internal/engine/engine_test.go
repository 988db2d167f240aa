package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"

	"fileswap/internal/model"
	"fileswap/internal/settlement"
	"fileswap/internal/storage/memory"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func newTestEngine(t *testing.T, feeBps int64) (*Engine, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	eng, err := New(Config{FeeRateBps: feeBps}, store, settlement.Noop{}, nil, nil)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return eng, store
}

// seedPool deposits (1000, 4000) into a fresh TOKA/TOKB pool.
func seedPool(t *testing.T, eng *Engine) {
	t.Helper()
	result, err := eng.AddLiquidity(context.Background(), "TOKA", "TOKB", dec("1000"), dec("4000"), "lp-1")
	if err != nil {
		t.Fatalf("seed pool: %v", err)
	}
	if !result.MintedUnits.Equal(dec("2000")) {
		t.Fatalf("first deposit minted %s, want 2000", result.MintedUnits)
	}
}

type failSettler struct{}

func (failSettler) Settle(context.Context, settlement.Transfer) (string, error) {
	return "", fmt.Errorf("settlement unavailable")
}

func TestFirstDepositCreatesPool(t *testing.T) {
	eng, _ := newTestEngine(t, 30)
	seedPool(t, eng)

	pool, err := eng.PoolInfo(context.Background(), "TOKB", "TOKA")
	if err != nil {
		t.Fatalf("pool info: %v", err)
	}
	if !pool.ReserveA.Equal(dec("1000")) || !pool.ReserveB.Equal(dec("4000")) {
		t.Fatalf("reserves mismatch: (%s, %s)", pool.ReserveA, pool.ReserveB)
	}
	if !pool.TotalLiquidityUnits.Equal(dec("2000")) {
		t.Fatalf("total units mismatch: %s", pool.TotalLiquidityUnits)
	}
}

func TestQuoteIsAdvisoryAndSideEffectFree(t *testing.T) {
	eng, _ := newTestEngine(t, 30)
	seedPool(t, eng)
	ctx := context.Background()

	first, err := eng.Quote(ctx, "TOKA", "TOKB", dec("100"))
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	second, err := eng.Quote(ctx, "TOKA", "TOKB", dec("100"))
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if !first.AmountOut.Equal(second.AmountOut) {
		t.Fatalf("repeated quotes diverged: %s != %s", first.AmountOut, second.AmountOut)
	}
	if !first.ReserveIn.Equal(dec("1000")) || !first.ReserveOut.Equal(dec("4000")) {
		t.Fatalf("snapshot reserves mismatch: (%s, %s)", first.ReserveIn, first.ReserveOut)
	}

	pool, err := eng.PoolInfo(ctx, "TOKA", "TOKB")
	if err != nil {
		t.Fatalf("pool info: %v", err)
	}
	if !pool.ReserveA.Equal(dec("1000")) {
		t.Fatalf("quote mutated reserves: %s", pool.ReserveA)
	}
}

func TestQuoteDrainedPool(t *testing.T) {
	eng, _ := newTestEngine(t, 30)
	seedPool(t, eng)
	ctx := context.Background()

	if _, err := eng.RemoveLiquidity(ctx, "TOKA", "TOKB", dec("2000"), "lp-1"); err != nil {
		t.Fatalf("drain: %v", err)
	}

	// The drained pool persists but cannot price anything.
	_, err := eng.Quote(ctx, "TOKA", "TOKB", dec("100"))
	if !errors.Is(err, model.ErrInsufficientLiquidity) {
		t.Fatalf("expected insufficient liquidity on drained pool, got %v", err)
	}
}

func TestExecuteSwapScenario(t *testing.T) {
	eng, _ := newTestEngine(t, 30)
	seedPool(t, eng)
	ctx := context.Background()

	trade, err := eng.ExecuteSwap(ctx, "TOKA", "TOKB", dec("100"), dec("300"), "trader-1")
	if err != nil {
		t.Fatalf("execute swap: %v", err)
	}

	if !trade.AmountOut.Truncate(4).Equal(dec("362.6443")) {
		t.Fatalf("amount out mismatch: %s", trade.AmountOut)
	}
	if !trade.Fee.Equal(dec("0.3")) {
		t.Fatalf("fee mismatch: %s", trade.Fee)
	}
	if trade.SettlementRef == "" {
		t.Fatalf("missing settlement ref")
	}

	pool, err := eng.PoolInfo(ctx, "TOKA", "TOKB")
	if err != nil {
		t.Fatalf("pool info: %v", err)
	}
	if !pool.ReserveA.Equal(dec("1100")) {
		t.Fatalf("reserve A mismatch: %s", pool.ReserveA)
	}
	if !pool.ReserveB.Equal(dec("4000").Sub(trade.AmountOut)) {
		t.Fatalf("reserve B mismatch: %s", pool.ReserveB)
	}
	if pool.Product().LessThan(dec("4000000")) {
		t.Fatalf("product decreased: %s", pool.Product())
	}
	if !pool.FeesA.Equal(dec("0.3")) {
		t.Fatalf("collected fees mismatch: %s", pool.FeesA)
	}
}

func TestExecuteSwapSlippageRejected(t *testing.T) {
	eng, _ := newTestEngine(t, 30)
	seedPool(t, eng)
	ctx := context.Background()

	_, err := eng.ExecuteSwap(ctx, "TOKA", "TOKB", dec("100"), dec("400"), "trader-1")
	if !errors.Is(err, model.ErrSlippageExceeded) {
		t.Fatalf("expected slippage error, got %v", err)
	}

	pool, err := eng.PoolInfo(ctx, "TOKA", "TOKB")
	if err != nil {
		t.Fatalf("pool info: %v", err)
	}
	if !pool.ReserveA.Equal(dec("1000")) || !pool.ReserveB.Equal(dec("4000")) {
		t.Fatalf("rejected swap mutated reserves: (%s, %s)", pool.ReserveA, pool.ReserveB)
	}

	trades, err := eng.RecentTrades(ctx, 10)
	if err != nil {
		t.Fatalf("recent trades: %v", err)
	}
	if len(trades) != 0 {
		t.Fatalf("rejected swap recorded a trade")
	}
}

func TestExecuteSwapRecomputesUnderLock(t *testing.T) {
	eng, _ := newTestEngine(t, 30)
	seedPool(t, eng)
	ctx := context.Background()

	quote, err := eng.Quote(ctx, "TOKA", "TOKB", dec("100"))
	if err != nil {
		t.Fatalf("quote: %v", err)
	}

	// Another trade moves the price between quote and execution.
	if _, err := eng.ExecuteSwap(ctx, "TOKA", "TOKB", dec("500"), decimal.Zero, "trader-2"); err != nil {
		t.Fatalf("interleaved swap: %v", err)
	}

	// Holding execution to the stale quoted output must now fail.
	_, err = eng.ExecuteSwap(ctx, "TOKA", "TOKB", dec("100"), quote.AmountOut, "trader-1")
	if !errors.Is(err, model.ErrSlippageExceeded) {
		t.Fatalf("expected slippage error on stale quote, got %v", err)
	}
}

func TestExecuteSwapSettlementFailureLeavesState(t *testing.T) {
	store := memory.NewStore()
	eng, err := New(Config{FeeRateBps: 30}, store, settlement.Noop{}, nil, nil)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	seedPool(t, eng)

	failing, err := New(Config{FeeRateBps: 30}, store, failSettler{}, nil, nil)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	ctx := context.Background()
	if _, err := failing.ExecuteSwap(ctx, "TOKA", "TOKB", dec("100"), decimal.Zero, "trader-1"); err == nil {
		t.Fatalf("expected settlement failure")
	}

	pool, err := eng.PoolInfo(ctx, "TOKA", "TOKB")
	if err != nil {
		t.Fatalf("pool info: %v", err)
	}
	if !pool.ReserveA.Equal(dec("1000")) || !pool.ReserveB.Equal(dec("4000")) {
		t.Fatalf("failed settlement mutated reserves: (%s, %s)", pool.ReserveA, pool.ReserveB)
	}
}

func TestExecuteSwapUnknownPool(t *testing.T) {
	eng, _ := newTestEngine(t, 30)
	_, err := eng.ExecuteSwap(context.Background(), "TOKA", "TOKB", dec("100"), decimal.Zero, "trader-1")
	if !errors.Is(err, model.ErrPoolNotFound) {
		t.Fatalf("expected pool not found, got %v", err)
	}
}

func TestTradeQueries(t *testing.T) {
	eng, _ := newTestEngine(t, 30)
	seedPool(t, eng)
	ctx := context.Background()

	if _, err := eng.ExecuteSwap(ctx, "TOKA", "TOKB", dec("10"), decimal.Zero, "trader-1"); err != nil {
		t.Fatalf("swap: %v", err)
	}
	if _, err := eng.ExecuteSwap(ctx, "TOKB", "TOKA", dec("50"), decimal.Zero, "trader-2"); err != nil {
		t.Fatalf("swap: %v", err)
	}
	if _, err := eng.ExecuteSwap(ctx, "TOKA", "TOKB", dec("20"), decimal.Zero, "trader-1"); err != nil {
		t.Fatalf("swap: %v", err)
	}

	recent, err := eng.RecentTrades(ctx, 10)
	if err != nil {
		t.Fatalf("recent trades: %v", err)
	}
	if len(recent) != 3 {
		t.Fatalf("expected 3 trades, got %d", len(recent))
	}
	if !recent[0].AmountIn.Equal(dec("20")) {
		t.Fatalf("trades not ordered most recent first: %s", recent[0].AmountIn)
	}

	mine, err := eng.TradesForTrader(ctx, "trader-1", 10)
	if err != nil {
		t.Fatalf("trades for trader: %v", err)
	}
	if len(mine) != 2 {
		t.Fatalf("expected 2 trades for trader-1, got %d", len(mine))
	}

	volume, err := eng.PoolVolume(ctx, "TOKA", "TOKB")
	if err != nil {
		t.Fatalf("pool volume: %v", err)
	}
	if volume.TradeCount != 3 {
		t.Fatalf("expected 3 counted trades, got %d", volume.TradeCount)
	}
	if !volume.VolumeA.IsPositive() || !volume.VolumeB.IsPositive() {
		t.Fatalf("volumes not positive: (%s, %s)", volume.VolumeA, volume.VolumeB)
	}
}
