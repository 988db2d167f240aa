package memory

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"fileswap/internal/model"
	"fileswap/internal/storage"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// seedStore creates a TOKA/TOKB pool holding (5, 10) with 7 units.
func seedStore(t *testing.T, store *Store) model.PairKey {
	t.Helper()
	err := store.WithPoolCreateLock(context.Background(), "TOKA", "TOKB",
		func(pool model.Pool, _ storage.PoolTx) (model.Pool, error) {
			pool.ReserveA = dec("5")
			pool.ReserveB = dec("10")
			pool.TotalLiquidityUnits = dec("7")
			return pool, nil
		})
	if err != nil {
		t.Fatalf("seed store: %v", err)
	}
	return model.PairKey("TOKA/TOKB")
}

func TestWithPoolCreateLockIdempotent(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	key := seedStore(t, store)

	// A second create, with the tokens reversed, sees the existing pool.
	err := store.WithPoolCreateLock(ctx, "TOKB", "TOKA",
		func(pool model.Pool, _ storage.PoolTx) (model.Pool, error) {
			if !pool.ReserveA.Equal(dec("5")) {
				t.Fatalf("create lock reset existing pool: %s", pool.ReserveA)
			}
			return pool, nil
		})
	if err != nil {
		t.Fatalf("create again: %v", err)
	}

	pool, err := store.GetPool(ctx, key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if pool.PairKey != "TOKA/TOKB" {
		t.Fatalf("unexpected pair key: %s", pool.PairKey)
	}
}

func TestWithPoolCreateLockErrorCreatesNothing(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	wantErr := fmt.Errorf("deposit rejected")
	err := store.WithPoolCreateLock(ctx, "TOKA", "TOKB",
		func(pool model.Pool, _ storage.PoolTx) (model.Pool, error) {
			return model.Pool{}, wantErr
		})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected fn error, got %v", err)
	}

	// A failed first deposit must not leave an empty pool behind.
	if _, err := store.GetPool(ctx, "TOKA/TOKB"); !errors.Is(err, model.ErrPoolNotFound) {
		t.Fatalf("expected pool not found after failed create, got %v", err)
	}
}

func TestWithPoolLockErrorDiscardsStagedWrites(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	key := seedStore(t, store)

	wantErr := fmt.Errorf("boom")
	err := store.WithPoolLock(ctx, key, func(pool model.Pool, tx storage.PoolTx) (model.Pool, error) {
		pool.ReserveA = dec("999")
		tx.Record(model.Trade{ID: "t-1", PairKey: key, Trader: "trader-1"})
		tx.Credit("lp-1", dec("50"))
		return pool, wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected fn error, got %v", err)
	}

	got, err := store.GetPool(ctx, key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.ReserveA.Equal(dec("5")) {
		t.Fatalf("failed mutation persisted: %s", got.ReserveA)
	}
	trades, err := store.RecentTrades(ctx, 10)
	if err != nil {
		t.Fatalf("recent trades: %v", err)
	}
	if len(trades) != 0 {
		t.Fatalf("staged trade survived a failed mutation")
	}
	balance, err := store.Balance(ctx, key, "lp-1")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if !balance.IsZero() {
		t.Fatalf("staged credit survived a failed mutation: %s", balance)
	}
}

func TestWithPoolLockCommitsPoolAndLedgerTogether(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	key := seedStore(t, store)

	err := store.WithPoolLock(ctx, key, func(pool model.Pool, tx storage.PoolTx) (model.Pool, error) {
		pool.ReserveA = dec("6")
		tx.Record(model.Trade{ID: "t-1", PairKey: key, Trader: "trader-1", AmountIn: dec("1")})
		return pool, nil
	})
	if err != nil {
		t.Fatalf("mutate: %v", err)
	}

	pool, err := store.GetPool(ctx, key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !pool.ReserveA.Equal(dec("6")) {
		t.Fatalf("pool update lost: %s", pool.ReserveA)
	}
	trades, err := store.TradesForPool(ctx, key, 10)
	if err != nil {
		t.Fatalf("trades: %v", err)
	}
	if len(trades) != 1 || trades[0].ID != "t-1" {
		t.Fatalf("staged trade not committed: %+v", trades)
	}
}

func TestWithPoolLockUnknownPool(t *testing.T) {
	store := NewStore()
	err := store.WithPoolLock(context.Background(), "TOKA/TOKB",
		func(pool model.Pool, _ storage.PoolTx) (model.Pool, error) {
			return pool, nil
		})
	if !errors.Is(err, model.ErrPoolNotFound) {
		t.Fatalf("expected pool not found, got %v", err)
	}
}

func TestWithPoolLockWaiterCancelled(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	key := seedStore(t, store)

	holding := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = store.WithPoolLock(ctx, key, func(pool model.Pool, _ storage.PoolTx) (model.Pool, error) {
			close(holding)
			<-release
			return pool, nil
		})
	}()
	<-holding

	waitCtx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	err := store.WithPoolLock(waitCtx, key, func(pool model.Pool, _ storage.PoolTx) (model.Pool, error) {
		return pool, nil
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	close(release)
}

func TestStagedPositionWrites(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	key := seedStore(t, store)

	credit := func(units string) error {
		return store.WithPoolLock(ctx, key, func(pool model.Pool, tx storage.PoolTx) (model.Pool, error) {
			tx.Credit("lp-1", dec(units))
			return pool, nil
		})
	}
	debit := func(units string) error {
		return store.WithPoolLock(ctx, key, func(pool model.Pool, tx storage.PoolTx) (model.Pool, error) {
			tx.Debit("lp-1", dec(units))
			return pool, nil
		})
	}

	if err := credit("100"); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if err := debit("40"); err != nil {
		t.Fatalf("debit: %v", err)
	}

	balance, err := store.Balance(ctx, key, "lp-1")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if !balance.Equal(dec("60")) {
		t.Fatalf("balance mismatch: %s", balance)
	}

	if err := debit("61"); !errors.Is(err, model.ErrInsufficientPosition) {
		t.Fatalf("expected insufficient position, got %v", err)
	}
	balance, err = store.Balance(ctx, key, "lp-1")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if !balance.Equal(dec("60")) {
		t.Fatalf("failed debit changed the balance: %s", balance)
	}
}
