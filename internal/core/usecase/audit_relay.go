package usecase

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/atvirokodosprendimai/precheck/internal/core/domain"
	"github.com/atvirokodosprendimai/precheck/internal/core/ports"
	"github.com/atvirokodosprendimai/precheck/internal/telemetry"
)

// RelayConfig tunes how often the relay polls and how hard it retries.
type RelayConfig struct {
	Interval    time.Duration
	BatchSize   int
	MaxAttempts int
}

// RelayStats counts relay outcomes since start.
type RelayStats struct {
	Delivered    int64
	Retried      int64
	DeadLettered int64
}

// AuditRelay pushes audit events that were queued alongside their audit rows
// to subscribers. An event is retried with growing delays and parked as dead
// once MaxAttempts deliveries have failed.
type AuditRelay struct {
	queue     ports.OutboxRepository
	publisher ports.EventPublisher
	cfg       RelayConfig
	metrics   *telemetry.Metrics
	logger    *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup

	delivered    atomic.Int64
	retried      atomic.Int64
	deadLettered atomic.Int64
}

func NewAuditRelay(queue ports.OutboxRepository, publisher ports.EventPublisher, cfg RelayConfig, metrics *telemetry.Metrics, logger *slog.Logger) *AuditRelay {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	return &AuditRelay{
		queue:     queue,
		publisher: publisher,
		cfg:       cfg,
		metrics:   metrics,
		logger:    logger.With("component", "audit_relay"),
	}
}

// Start polls in the background until Close or until parent is cancelled.
// Calling it twice is a no-op.
func (r *AuditRelay) Start(parent context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(parent)
	r.cancel = cancel
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.poll(ctx)
	}()
}

func (r *AuditRelay) Close() error {
	r.mu.Lock()
	cancel := r.cancel
	r.cancel = nil
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	r.wg.Wait()
	return nil
}

func (r *AuditRelay) poll(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()
	for {
		if err := r.relayDue(ctx); err != nil && ctx.Err() == nil {
			r.logger.Error("audit relay pass failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// relayDue delivers one batch of due events. Errors from the queue itself
// abort the pass; delivery failures are recorded per event.
func (r *AuditRelay) relayDue(ctx context.Context) error {
	due, err := r.queue.FetchPending(ctx, r.cfg.BatchSize)
	if err != nil {
		return err
	}
	for _, ev := range due {
		var env domain.EventEnvelope
		if err := json.Unmarshal(ev.PayloadJSON, &env); err != nil {
			// A payload that does not decode will never publish.
			if err := r.park(ctx, ev, ev.Attempts+1, "decode payload: "+err.Error()); err != nil {
				return err
			}
			continue
		}
		if err := r.publisher.Publish(ctx, ev.Topic, env); err != nil {
			if err := r.deliveryFailed(ctx, ev, env, err); err != nil {
				return err
			}
			continue
		}
		if err := r.queue.MarkDispatched(ctx, ev.ID); err != nil {
			return err
		}
		r.delivered.Add(1)
		r.metrics.RecordAuditDelivery("delivered")
	}
	return nil
}

func (r *AuditRelay) deliveryFailed(ctx context.Context, ev domain.OutboxEvent, env domain.EventEnvelope, cause error) error {
	attempts := ev.Attempts + 1
	if attempts >= r.cfg.MaxAttempts {
		return r.park(ctx, ev, attempts, cause.Error())
	}
	next := time.Now().UTC().Add(retryDelay(attempts)).Format(time.RFC3339Nano)
	if err := r.queue.MarkFailed(ctx, ev.ID, attempts, next, cause.Error()); err != nil {
		return err
	}
	r.retried.Add(1)
	r.metrics.RecordAuditDelivery("retry")
	r.logger.Debug("audit event delivery deferred",
		"event_id", ev.EventID, "tenant_id", env.TenantID, "action", env.EventType,
		"attempts", attempts, "error", cause)
	return nil
}

func (r *AuditRelay) park(ctx context.Context, ev domain.OutboxEvent, attempts int, reason string) error {
	if err := r.queue.MarkDead(ctx, ev.ID, attempts, reason); err != nil {
		return err
	}
	r.deadLettered.Add(1)
	r.metrics.RecordAuditDelivery("dead")
	r.logger.Warn("audit event parked", "event_id", ev.EventID, "topic", ev.Topic, "attempts", attempts, "reason", reason)
	return nil
}

func (r *AuditRelay) Stats() RelayStats {
	return RelayStats{
		Delivered:    r.delivered.Load(),
		Retried:      r.retried.Load(),
		DeadLettered: r.deadLettered.Load(),
	}
}

// retryDelay grows quadratically with the attempt number, capped at five
// minutes.
func retryDelay(attempt int) time.Duration {
	if attempt <= 1 {
		return time.Second
	}
	return min(time.Duration(attempt*attempt)*time.Second, 5*time.Minute)
}
