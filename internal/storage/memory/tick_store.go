package memory

import (
	"context"
	"sync"
	"time"

	"token-exchange-engine/internal/domain"
	"token-exchange-engine/internal/storage"
)

// TickStore is an in-memory implementation of storage.TickStore, used when
// the server runs without ClickHouse.
type TickStore struct {
	mu    sync.RWMutex
	ticks []*domain.MarketTick
}

// NewTickStore creates a new in-memory tick store.
func NewTickStore() *TickStore {
	return &TickStore{}
}

// Compile-time interface check.
var _ storage.TickStore = (*TickStore)(nil)

// InsertBatch appends ticks.
func (s *TickStore) InsertBatch(_ context.Context, ticks []*domain.MarketTick) error {
	if len(ticks) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range ticks {
		copy := *t
		s.ticks = append(s.ticks, &copy)
	}
	return nil
}

// Stats24h aggregates the trailing 24 hours for a pair.
func (s *TickStore) Stats24h(_ context.Context, pair string) (*storage.PairStats, error) {
	if pair == "" {
		return nil, storage.ErrInvalidInput
	}

	cutoff := time.Now().Add(-24 * time.Hour).UnixMilli()

	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &storage.PairStats{Pair: pair}
	var lastTs int64
	for _, t := range s.ticks {
		if t.Pair != pair || t.TimestampMs < cutoff {
			continue
		}
		stats.TradeCount++
		stats.BaseVolume += t.BaseAmount
		if stats.LowPrice == 0 || t.Price < stats.LowPrice {
			stats.LowPrice = t.Price
		}
		if t.Price > stats.HighPrice {
			stats.HighPrice = t.Price
		}
		if t.TimestampMs >= lastTs {
			lastTs = t.TimestampMs
			stats.LastPrice = t.Price
		}
	}
	return stats, nil
}
