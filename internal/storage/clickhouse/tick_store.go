package clickhouse

import (
	"context"
	"fmt"
	"time"

	"token-exchange-engine/internal/domain"
	"token-exchange-engine/internal/storage"
)

// TickStore implements storage.TickStore using ClickHouse. Market ticks are
// best-effort analytics; losing a batch degrades a display, never the ledger.
type TickStore struct {
	conn *Conn
}

// NewTickStore creates a new TickStore.
func NewTickStore(conn *Conn) *TickStore {
	return &TickStore{conn: conn}
}

// Compile-time interface check.
var _ storage.TickStore = (*TickStore)(nil)

// InsertBatch appends ticks.
func (s *TickStore) InsertBatch(ctx context.Context, ticks []*domain.MarketTick) error {
	if len(ticks) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO market_ticks (pair, side, price, base_amount, timestamp_ms)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, t := range ticks {
		err = batch.Append(t.Pair, t.Side, t.Price, t.BaseAmount, uint64(t.TimestampMs))
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// Stats24h aggregates the trailing 24 hours for a pair.
func (s *TickStore) Stats24h(ctx context.Context, pair string) (*storage.PairStats, error) {
	if pair == "" {
		return nil, storage.ErrInvalidInput
	}

	cutoff := uint64(time.Now().Add(-24 * time.Hour).UnixMilli())

	query := `
		SELECT
			argMax(price, timestamp_ms) AS last_price,
			max(price)                  AS high_price,
			min(price)                  AS low_price,
			sum(base_amount)            AS base_volume,
			count()                     AS trade_count
		FROM market_ticks
		WHERE pair = ? AND timestamp_ms >= ?
	`

	stats := &storage.PairStats{Pair: pair}
	row := s.conn.QueryRow(ctx, query, pair, cutoff)
	var tradeCount uint64
	err := row.Scan(&stats.LastPrice, &stats.HighPrice, &stats.LowPrice, &stats.BaseVolume, &tradeCount)
	if err != nil {
		return nil, fmt.Errorf("query 24h stats: %w", err)
	}
	stats.TradeCount = int64(tradeCount)
	return stats, nil
}
