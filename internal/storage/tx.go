package storage

import (
	"github.com/shopspring/decimal"

	"fileswap/internal/model"
)

// PositionDelta is one staged change to a provider's liquidity units.
type PositionDelta struct {
	Provider string
	Units    decimal.Decimal
}

// TxBuffer is the PoolTx handed to mutation callbacks. It only collects;
// the backend flushes the buffer atomically with the pool update.
type TxBuffer struct {
	Trades  []model.Trade
	Credits []PositionDelta
	Debits  []PositionDelta
}

var _ PoolTx = (*TxBuffer)(nil)

func (b *TxBuffer) Record(trade model.Trade) {
	b.Trades = append(b.Trades, trade)
}

func (b *TxBuffer) Credit(provider string, units decimal.Decimal) {
	b.Credits = append(b.Credits, PositionDelta{Provider: provider, Units: units})
}

func (b *TxBuffer) Debit(provider string, units decimal.Decimal) {
	b.Debits = append(b.Debits, PositionDelta{Provider: provider, Units: units})
}
