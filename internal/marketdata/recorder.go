// Package marketdata mirrors settled-trade ticks into the analytics store.
// Writes are batched and best-effort: a full queue or a failed insert costs
// analytics rows, never a trade.
package marketdata

import (
	"context"
	"log"
	"sync"
	"time"

	"token-exchange-engine/internal/domain"
	"token-exchange-engine/internal/storage"
)

// RecorderConfig configures batching behavior.
type RecorderConfig struct {
	// QueueSize is the inbound tick buffer. Record drops when full.
	QueueSize int
	// BatchSize triggers a flush once this many ticks are buffered.
	BatchSize int
	// FlushInterval flushes a partial batch after this long.
	FlushInterval time.Duration
	// FlushTimeout bounds one insert call.
	FlushTimeout time.Duration
}

// DefaultRecorderConfig returns default recorder configuration.
func DefaultRecorderConfig() RecorderConfig {
	return RecorderConfig{
		QueueSize:     1024,
		BatchSize:     100,
		FlushInterval: 5 * time.Second,
		FlushTimeout:  10 * time.Second,
	}
}

// Recorder batches market ticks into a TickStore.
type Recorder struct {
	config RecorderConfig
	store  storage.TickStore
	logger *log.Logger

	queue chan *domain.MarketTick
	done  chan struct{}
	wg    sync.WaitGroup

	closeOnce sync.Once
}

// NewRecorder creates a Recorder and starts its flush loop.
// A nil config uses defaults.
func NewRecorder(store storage.TickStore, config *RecorderConfig, logger *log.Logger) *Recorder {
	cfg := DefaultRecorderConfig()
	if config != nil {
		cfg = *config
	}
	r := &Recorder{
		config: cfg,
		store:  store,
		logger: logger,
		queue:  make(chan *domain.MarketTick, cfg.QueueSize),
		done:   make(chan struct{}),
	}

	r.wg.Add(1)
	go r.flushLoop()
	return r
}

// Record enqueues one tick. Never blocks: when the queue is full the tick
// is dropped and counted in the log.
func (r *Recorder) Record(tick *domain.MarketTick) {
	if tick == nil {
		return
	}
	select {
	case r.queue <- tick:
	default:
		r.logger.Printf("tick queue full, dropping %s tick", tick.Pair)
	}
}

// Stats24h returns the trailing 24h aggregate for a pair.
func (r *Recorder) Stats24h(ctx context.Context, pair string) (*storage.PairStats, error) {
	return r.store.Stats24h(ctx, pair)
}

// Close flushes buffered ticks and stops the loop.
func (r *Recorder) Close() {
	r.closeOnce.Do(func() {
		close(r.done)
	})
	r.wg.Wait()
}

func (r *Recorder) flushLoop() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.config.FlushInterval)
	defer ticker.Stop()

	batch := make([]*domain.MarketTick, 0, r.config.BatchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), r.config.FlushTimeout)
		if err := r.store.InsertBatch(ctx, batch); err != nil {
			r.logger.Printf("insert %d ticks: %v", len(batch), err)
		}
		cancel()
		batch = batch[:0]
	}

	for {
		select {
		case tick := <-r.queue:
			batch = append(batch, tick)
			if len(batch) >= r.config.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-r.done:
			// Drain whatever is queued, then flush once more.
			for {
				select {
				case tick := <-r.queue:
					batch = append(batch, tick)
				default:
					flush()
					return
				}
			}
		}
	}
}
