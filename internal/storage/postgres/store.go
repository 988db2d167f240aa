// Package postgres provides the durable Store backed by pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"fileswap/internal/model"
	"fileswap/internal/storage"
)

// Store provides Postgres persistence for pools, trades, and positions.
type Store struct {
	pool  *pgxpool.Pool
	locks *storage.KeyedLock
}

var _ storage.Store = (*Store)(nil)

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool, locks: storage.NewKeyedLock()}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// EnsureSchema creates the engine tables if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS pools (
			pair_key TEXT PRIMARY KEY,
			token_a TEXT NOT NULL,
			token_b TEXT NOT NULL,
			reserve_a NUMERIC NOT NULL,
			reserve_b NUMERIC NOT NULL,
			total_liquidity_units NUMERIC NOT NULL,
			fees_a NUMERIC NOT NULL,
			fees_b NUMERIC NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);
		CREATE TABLE IF NOT EXISTS trades (
			id TEXT PRIMARY KEY,
			pair_key TEXT NOT NULL,
			token_in TEXT NOT NULL,
			token_out TEXT NOT NULL,
			amount_in NUMERIC NOT NULL,
			amount_out NUMERIC NOT NULL,
			fee NUMERIC NOT NULL,
			price NUMERIC NOT NULL,
			trader TEXT NOT NULL,
			settlement_ref TEXT NOT NULL,
			executed_at TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS trades_pair_key_idx ON trades (pair_key, executed_at DESC);
		CREATE INDEX IF NOT EXISTS trades_trader_idx ON trades (trader, executed_at DESC);
		CREATE TABLE IF NOT EXISTS positions (
			pair_key TEXT NOT NULL,
			provider TEXT NOT NULL,
			units NUMERIC NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (pair_key, provider)
		);
	`)
	if err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

const poolColumns = `pair_key, token_a, token_b, reserve_a::text, reserve_b::text,
	total_liquidity_units::text, fees_a::text, fees_b::text, created_at, updated_at`

// GetPool returns a read-only snapshot of the pool.
func (s *Store) GetPool(ctx context.Context, key model.PairKey) (model.Pool, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+poolColumns+` FROM pools WHERE pair_key=$1`, string(key))
	pool, err := scanPool(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Pool{}, fmt.Errorf("%w: %s", model.ErrPoolNotFound, key)
		}
		return model.Pool{}, fmt.Errorf("get pool %s: %w", key, err)
	}
	return pool, nil
}

// ListPools returns snapshots of every pool.
func (s *Store) ListPools(ctx context.Context) ([]model.Pool, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+poolColumns+` FROM pools ORDER BY pair_key`)
	if err != nil {
		return nil, fmt.Errorf("list pools: %w", err)
	}
	defer rows.Close()

	var pools []model.Pool
	for rows.Next() {
		pool, err := scanPool(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pool: %w", err)
		}
		pools = append(pools, pool)
	}
	return pools, rows.Err()
}

// WithPoolLock serializes mutations per pool key. The row is re-read inside
// a transaction under FOR UPDATE; fn's pool and staged ledger writes commit
// together, and only then is the lock released.
func (s *Store) WithPoolLock(ctx context.Context, key model.PairKey, fn func(model.Pool, storage.PoolTx) (model.Pool, error)) error {
	if err := s.locks.Acquire(ctx, key); err != nil {
		return fmt.Errorf("acquire pool lock %s: %w", key, err)
	}
	defer s.locks.Release(key)

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin pool tx %s: %w", key, err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `SELECT `+poolColumns+` FROM pools WHERE pair_key=$1 FOR UPDATE`, string(key))
	pool, err := scanPool(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: %s", model.ErrPoolNotFound, key)
		}
		return fmt.Errorf("lock pool %s: %w", key, err)
	}

	return s.mutate(ctx, tx, key, pool, fn)
}

// WithPoolCreateLock is WithPoolLock for a pool that may not exist. The
// zero-reserve row is inserted inside the transaction, so a failing fn
// rolls the creation back along with everything else.
func (s *Store) WithPoolCreateLock(ctx context.Context, tokenA, tokenB string, fn func(model.Pool, storage.PoolTx) (model.Pool, error)) error {
	fresh, err := model.NewPool(tokenA, tokenB, time.Now().UTC())
	if err != nil {
		return err
	}
	key := fresh.PairKey

	if err := s.locks.Acquire(ctx, key); err != nil {
		return fmt.Errorf("acquire pool lock %s: %w", key, err)
	}
	defer s.locks.Release(key)

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin pool tx %s: %w", key, err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO pools (
			pair_key, token_a, token_b, reserve_a, reserve_b,
			total_liquidity_units, fees_a, fees_b, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (pair_key) DO NOTHING
	`,
		string(key),
		fresh.TokenA,
		fresh.TokenB,
		fresh.ReserveA.String(),
		fresh.ReserveB.String(),
		fresh.TotalLiquidityUnits.String(),
		fresh.FeesA.String(),
		fresh.FeesB.String(),
		fresh.CreatedAt,
		fresh.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create pool %s: %w", key, err)
	}

	row := tx.QueryRow(ctx, `SELECT `+poolColumns+` FROM pools WHERE pair_key=$1 FOR UPDATE`, string(key))
	pool, err := scanPool(row)
	if err != nil {
		return fmt.Errorf("lock pool %s: %w", key, err)
	}

	return s.mutate(ctx, tx, key, pool, fn)
}

func (s *Store) mutate(ctx context.Context, tx pgx.Tx, key model.PairKey, pool model.Pool, fn func(model.Pool, storage.PoolTx) (model.Pool, error)) error {
	buf := &storage.TxBuffer{}
	updated, err := fn(pool, buf)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		UPDATE pools SET
			reserve_a = $2,
			reserve_b = $3,
			total_liquidity_units = $4,
			fees_a = $5,
			fees_b = $6,
			updated_at = $7
		WHERE pair_key = $1
	`,
		string(key),
		updated.ReserveA.String(),
		updated.ReserveB.String(),
		updated.TotalLiquidityUnits.String(),
		updated.FeesA.String(),
		updated.FeesB.String(),
		updated.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("persist pool %s: %w", key, err)
	}

	if err := flush(ctx, tx, key, buf); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit pool %s: %w", key, err)
	}
	return nil
}

// flush writes the staged ledger mutations on the pool's open transaction.
func flush(ctx context.Context, tx pgx.Tx, key model.PairKey, buf *storage.TxBuffer) error {
	for _, trade := range buf.Trades {
		_, err := tx.Exec(ctx, `
			INSERT INTO trades (
				id, pair_key, token_in, token_out, amount_in, amount_out,
				fee, price, trader, settlement_ref, executed_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		`,
			trade.ID,
			string(trade.PairKey),
			trade.TokenIn,
			trade.TokenOut,
			trade.AmountIn.String(),
			trade.AmountOut.String(),
			trade.Fee.String(),
			trade.Price.String(),
			trade.Trader,
			trade.SettlementRef,
			trade.ExecutedAt,
		)
		if err != nil {
			return fmt.Errorf("record trade %s: %w", trade.ID, err)
		}
	}

	for _, credit := range buf.Credits {
		_, err := tx.Exec(ctx, `
			INSERT INTO positions (pair_key, provider, units, updated_at)
			VALUES ($1, $2, $3, now())
			ON CONFLICT (pair_key, provider) DO UPDATE
			SET units = positions.units + EXCLUDED.units, updated_at = now()
		`, string(key), credit.Provider, credit.Units.String())
		if err != nil {
			return fmt.Errorf("credit position %s/%s: %w", key, credit.Provider, err)
		}
	}

	for _, debit := range buf.Debits {
		tag, err := tx.Exec(ctx, `
			UPDATE positions
			SET units = units - $3, updated_at = now()
			WHERE pair_key = $1 AND provider = $2 AND units >= $3
		`, string(key), debit.Provider, debit.Units.String())
		if err != nil {
			return fmt.Errorf("debit position %s/%s: %w", key, debit.Provider, err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: provider %s cannot cover %s on %s",
				model.ErrInsufficientPosition, debit.Provider, debit.Units, key)
		}
	}
	return nil
}

const tradeColumns = `id, pair_key, token_in, token_out, amount_in::text, amount_out::text,
	fee::text, price::text, trader, settlement_ref, executed_at`

// RecentTrades returns up to limit trades, most recent first.
func (s *Store) RecentTrades(ctx context.Context, limit int) ([]model.Trade, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+tradeColumns+` FROM trades ORDER BY executed_at DESC, id LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent trades: %w", err)
	}
	return collectTrades(rows)
}

// TradesForPool returns the pool's trades, most recent first.
func (s *Store) TradesForPool(ctx context.Context, key model.PairKey, limit int) ([]model.Trade, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+tradeColumns+` FROM trades WHERE pair_key=$1 ORDER BY executed_at DESC, id LIMIT $2`,
		string(key), limit)
	if err != nil {
		return nil, fmt.Errorf("trades for pool %s: %w", key, err)
	}
	return collectTrades(rows)
}

// TradesForTrader returns the trader's trades, most recent first.
func (s *Store) TradesForTrader(ctx context.Context, trader string, limit int) ([]model.Trade, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+tradeColumns+` FROM trades WHERE trader=$1 ORDER BY executed_at DESC, id LIMIT $2`,
		trader, limit)
	if err != nil {
		return nil, fmt.Errorf("trades for trader %s: %w", trader, err)
	}
	return collectTrades(rows)
}

// PoolVolume sums executed flow for the pool in its own tokens.
func (s *Store) PoolVolume(ctx context.Context, key model.PairKey) (storage.PoolVolume, error) {
	tokenA, _ := key.Tokens()
	row := s.pool.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN token_in = $2 THEN amount_in ELSE amount_out END), 0)::text,
			COALESCE(SUM(CASE WHEN token_in = $2 THEN amount_out ELSE amount_in END), 0)::text
		FROM trades WHERE pair_key = $1
	`, string(key), tokenA)

	var volumeA, volumeB string
	volume := storage.PoolVolume{PairKey: key}
	if err := row.Scan(&volume.TradeCount, &volumeA, &volumeB); err != nil {
		return storage.PoolVolume{}, fmt.Errorf("pool volume %s: %w", key, err)
	}

	var err error
	if volume.VolumeA, err = decimal.NewFromString(volumeA); err != nil {
		return storage.PoolVolume{}, fmt.Errorf("parse volume a: %w", err)
	}
	if volume.VolumeB, err = decimal.NewFromString(volumeB); err != nil {
		return storage.PoolVolume{}, fmt.Errorf("parse volume b: %w", err)
	}
	return volume, nil
}

// Balance returns the provider's liquidity units for the pool.
func (s *Store) Balance(ctx context.Context, key model.PairKey, provider string) (decimal.Decimal, error) {
	var units string
	row := s.pool.QueryRow(ctx,
		`SELECT units::text FROM positions WHERE pair_key=$1 AND provider=$2`, string(key), provider)
	if err := row.Scan(&units); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, nil
		}
		return decimal.Zero, fmt.Errorf("position balance %s/%s: %w", key, provider, err)
	}
	return decimal.NewFromString(units)
}

// PositionsForProvider lists the provider's non-zero positions.
func (s *Store) PositionsForProvider(ctx context.Context, provider string) ([]model.LiquidityPosition, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT pair_key, units::text FROM positions
		WHERE provider = $1 AND units > 0
		ORDER BY pair_key
	`, provider)
	if err != nil {
		return nil, fmt.Errorf("positions for provider %s: %w", provider, err)
	}
	defer rows.Close()

	var out []model.LiquidityPosition
	for rows.Next() {
		var key, units string
		if err := rows.Scan(&key, &units); err != nil {
			return nil, fmt.Errorf("scan position: %w", err)
		}
		parsed, err := decimal.NewFromString(units)
		if err != nil {
			return nil, fmt.Errorf("parse units: %w", err)
		}
		out = append(out, model.LiquidityPosition{
			PairKey:  model.PairKey(key),
			Provider: provider,
			Units:    parsed,
		})
	}
	return out, rows.Err()
}

func scanPool(row pgx.Row) (model.Pool, error) {
	var pool model.Pool
	var key, reserveA, reserveB, totalUnits, feesA, feesB string

	err := row.Scan(&key, &pool.TokenA, &pool.TokenB, &reserveA, &reserveB,
		&totalUnits, &feesA, &feesB, &pool.CreatedAt, &pool.UpdatedAt)
	if err != nil {
		return model.Pool{}, err
	}

	pool.PairKey = model.PairKey(key)
	if pool.ReserveA, err = decimal.NewFromString(reserveA); err != nil {
		return model.Pool{}, fmt.Errorf("parse reserve a: %w", err)
	}
	if pool.ReserveB, err = decimal.NewFromString(reserveB); err != nil {
		return model.Pool{}, fmt.Errorf("parse reserve b: %w", err)
	}
	if pool.TotalLiquidityUnits, err = decimal.NewFromString(totalUnits); err != nil {
		return model.Pool{}, fmt.Errorf("parse liquidity units: %w", err)
	}
	if pool.FeesA, err = decimal.NewFromString(feesA); err != nil {
		return model.Pool{}, fmt.Errorf("parse fees a: %w", err)
	}
	if pool.FeesB, err = decimal.NewFromString(feesB); err != nil {
		return model.Pool{}, fmt.Errorf("parse fees b: %w", err)
	}
	return pool, nil
}

func collectTrades(rows pgx.Rows) ([]model.Trade, error) {
	defer rows.Close()

	var trades []model.Trade
	for rows.Next() {
		var trade model.Trade
		var key, amountIn, amountOut, fee, price string

		err := rows.Scan(&trade.ID, &key, &trade.TokenIn, &trade.TokenOut, &amountIn, &amountOut,
			&fee, &price, &trade.Trader, &trade.SettlementRef, &trade.ExecutedAt)
		if err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}

		trade.PairKey = model.PairKey(key)
		if trade.AmountIn, err = decimal.NewFromString(amountIn); err != nil {
			return nil, fmt.Errorf("parse amount in: %w", err)
		}
		if trade.AmountOut, err = decimal.NewFromString(amountOut); err != nil {
			return nil, fmt.Errorf("parse amount out: %w", err)
		}
		if trade.Fee, err = decimal.NewFromString(fee); err != nil {
			return nil, fmt.Errorf("parse fee: %w", err)
		}
		if trade.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("parse price: %w", err)
		}
		trades = append(trades, trade)
	}
	return trades, rows.Err()
}
