// Package events delivers audit outbox events to their subscribers.
package events

import (
	"context"
	"log/slog"

	"github.com/atvirokodosprendimai/precheck/internal/core/domain"
)

// LogPublisher writes each event to the log. It is the default when no
// webhook is configured.
type LogPublisher struct {
	logger *slog.Logger
}

func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogPublisher{logger: logger.With("component", "events")}
}

func (p *LogPublisher) Publish(ctx context.Context, topic string, event domain.EventEnvelope) error {
	p.logger.InfoContext(ctx, "audit event",
		"topic", topic,
		"event_id", event.EventID,
		"event_type", event.EventType,
		"tenant_id", event.TenantID,
		"entity", event.EntityType+"/"+event.EntityID,
		"actor", event.Actor,
	)
	return nil
}
