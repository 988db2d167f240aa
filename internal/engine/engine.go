// Package engine orchestrates quotes, swaps, and liquidity changes against
// the pool store. Every mutation goes through the store's per-pool lock and
// recomputes its quote from the live reserves read under that lock.
package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"fileswap/internal/pricing"
	"fileswap/internal/settlement"
	"fileswap/internal/storage"
)

// Config holds engine parameters.
type Config struct {
	// FeeRateBps is the swap fee in basis points, retained in the pool.
	FeeRateBps int64
}

// Engine executes the exchange operation surface.
type Engine struct {
	cfg     Config
	store   storage.Store
	settler settlement.Settler
	audit   *storage.JsonlAuditLog
	logger  *zap.Logger

	now   func() time.Time
	newID func() string
}

// New builds an Engine. audit may be nil to disable the JSONL trade log.
func New(cfg Config, store storage.Store, settler settlement.Settler, audit *storage.JsonlAuditLog, logger *zap.Logger) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("store is nil")
	}
	if settler == nil {
		return nil, fmt.Errorf("settler is nil")
	}
	if cfg.FeeRateBps < 0 || cfg.FeeRateBps > pricing.MaxFeeRateBps {
		return nil, fmt.Errorf("fee rate out of range: %d bps", cfg.FeeRateBps)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Engine{
		cfg:     cfg,
		store:   store,
		settler: settler,
		audit:   audit,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
		newID:   uuid.NewString,
	}, nil
}

// normalizeToken trims the identifier the same way NewPairKey does, so
// reserve orientation never depends on caller whitespace.
func normalizeToken(token string) string {
	return strings.TrimSpace(token)
}
