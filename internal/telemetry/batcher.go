// Pulse - Real-time Notification and Activity Pipeline Agent
// Copyright 2026 PropDesk Engineering
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/propdesk/pulse

// Package telemetry buffers local user-activity records and ships them to
// the console's activity-log endpoint. Delivery is at-most-once and
// best-effort: the queue is cleared when a flush starts, failed records
// are never retried, and delivery errors never reach the caller.
package telemetry

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/propdesk/pulse/internal/logging"
	"github.com/propdesk/pulse/internal/metrics"
	"github.com/propdesk/pulse/internal/models"
)

// drainTimeout bounds how long Destroy waits for in-flight deliveries.
const drainTimeout = 2 * time.Second

// SendFunc delivers one activity record.
type SendFunc func(ctx context.Context, rec models.ActivityRecord) error

// Config controls the flush triggers.
type Config struct {
	// BatchSize is the soft queue cap; reaching it flushes immediately.
	BatchSize int
	// FlushInterval is the fixed cadence for flushing whatever is queued.
	FlushInterval time.Duration
}

// DefaultConfig returns the production batching parameters.
func DefaultConfig() Config {
	return Config{BatchSize: 50, FlushInterval: 5 * time.Second}
}

// Batcher is a bounded in-memory activity queue with cap-triggered and
// interval-triggered flushes.
type Batcher struct {
	cfg       Config
	send      SendFunc
	sessionID string

	mu        sync.Mutex
	queue     []models.ActivityRecord
	destroyed bool
	stopChan  chan struct{}

	loopWG   sync.WaitGroup
	inflight sync.WaitGroup
	failures atomic.Uint64
}

// NewBatcher creates a Batcher that delivers records via send, stamping
// each tracked action with sessionID.
func NewBatcher(send SendFunc, sessionID string, cfg Config) *Batcher {
	def := DefaultConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = def.FlushInterval
	}
	b := &Batcher{
		cfg:       cfg,
		send:      send,
		sessionID: sessionID,
		stopChan:  make(chan struct{}),
	}
	b.loopWG.Add(1)
	go b.intervalLoop()
	return b
}

// Track builds an activity record for one user action and enqueues it.
func (b *Batcher) Track(actionType, route string, extra map[string]string) {
	b.Enqueue(models.ActivityRecord{
		ID:         uuid.New().String(),
		ActionType: actionType,
		Route:      route,
		Timestamp:  time.Now(),
		SessionID:  b.sessionID,
		Context:    extra,
	})
}

// Enqueue adds one record to the queue, flushing immediately when the
// queue reaches the cap.
func (b *Batcher) Enqueue(rec models.ActivityRecord) {
	b.mu.Lock()
	if b.destroyed {
		b.mu.Unlock()
		return
	}
	b.queue = append(b.queue, rec)
	full := len(b.queue) >= b.cfg.BatchSize
	b.mu.Unlock()

	metrics.TelemetryQueued.Inc()
	if full {
		b.Flush("cap")
	}
}

// Flush takes everything currently queued and delivers each record as its
// own concurrent request, so one record's failure cannot sink the rest.
// The queue is cleared as the flush starts; records in a failed delivery
// are dropped, not requeued. An empty queue is a no-op.
func (b *Batcher) Flush(trigger string) {
	b.mu.Lock()
	batch := b.queue
	b.queue = nil
	b.mu.Unlock()

	if len(batch) == 0 {
		return
	}
	metrics.TelemetryFlushes.WithLabelValues(trigger).Inc()
	logging.Debug().Str("trigger", trigger).Int("records", len(batch)).Msg("flushing activity batch")

	for _, rec := range batch {
		rec := rec
		b.inflight.Add(1)
		go func() {
			defer b.inflight.Done()
			if err := b.send(context.Background(), rec); err != nil {
				b.failures.Add(1)
				metrics.TelemetryDelivered.WithLabelValues("failure").Inc()
				logging.Debug().Err(err).Str("action", rec.ActionType).Msg("activity record dropped")
				return
			}
			metrics.TelemetryDelivered.WithLabelValues("success").Inc()
		}()
	}
}

// Pending reports how many records are queued for the next flush.
func (b *Batcher) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

// Failures reports how many records were dropped on delivery failure.
func (b *Batcher) Failures() uint64 {
	return b.failures.Load()
}

// Destroy stops the interval timer, performs one final flush, and waits a
// bounded time for in-flight deliveries. Safe to call more than once.
func (b *Batcher) Destroy() {
	b.mu.Lock()
	if b.destroyed {
		b.mu.Unlock()
		return
	}
	b.destroyed = true
	close(b.stopChan)
	b.mu.Unlock()

	b.loopWG.Wait()
	b.Flush("destroy")

	done := make(chan struct{})
	go func() {
		b.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(drainTimeout):
		logging.Warn().Msg("activity flush drain timed out, abandoning in-flight deliveries")
	}
}

func (b *Batcher) intervalLoop() {
	defer b.loopWG.Done()

	ticker := time.NewTicker(b.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			b.Flush("interval")
		case <-b.stopChan:
			return
		}
	}
}
