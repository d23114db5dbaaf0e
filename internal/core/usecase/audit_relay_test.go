package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/atvirokodosprendimai/precheck/internal/core/domain"
)

// memoryOutbox keeps queued audit events in a slice and records every mark.
type memoryOutbox struct {
	events []domain.OutboxEvent

	limits    []int
	retries   []relayMark
	parked    []relayMark
	delivered []int64
}

type relayMark struct {
	id       int64
	attempts int
	next     string
	reason   string
}

func (q *memoryOutbox) FetchPending(_ context.Context, limit int) ([]domain.OutboxEvent, error) {
	q.limits = append(q.limits, limit)
	now := time.Now().UTC()
	var due []domain.OutboxEvent
	for _, e := range q.events {
		if e.Status == "pending" && !e.NextAttemptAt.After(now) && len(due) < limit {
			due = append(due, e)
		}
	}
	return due, nil
}

func (q *memoryOutbox) find(id int64) (*domain.OutboxEvent, error) {
	for i := range q.events {
		if q.events[i].ID == id {
			return &q.events[i], nil
		}
	}
	return nil, errors.New("unknown outbox id")
}

func (q *memoryOutbox) MarkDispatched(_ context.Context, id int64) error {
	e, err := q.find(id)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	e.Status, e.DispatchedAt = "dispatched", &now
	q.delivered = append(q.delivered, id)
	return nil
}

func (q *memoryOutbox) MarkFailed(_ context.Context, id int64, attempts int, next string, reason string) error {
	e, err := q.find(id)
	if err != nil {
		return err
	}
	at, err := time.Parse(time.RFC3339Nano, next)
	if err != nil {
		return err
	}
	e.Attempts, e.NextAttemptAt, e.LastError = attempts, at, reason
	q.retries = append(q.retries, relayMark{id: id, attempts: attempts, next: next, reason: reason})
	return nil
}

func (q *memoryOutbox) MarkDead(_ context.Context, id int64, attempts int, reason string) error {
	e, err := q.find(id)
	if err != nil {
		return err
	}
	e.Status, e.Attempts, e.LastError = "dead", attempts, reason
	q.parked = append(q.parked, relayMark{id: id, attempts: attempts, reason: reason})
	return nil
}

type recordingPublisher struct {
	failFor map[string]error
	topics  []string
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, env domain.EventEnvelope) error {
	p.topics = append(p.topics, topic)
	return p.failFor[env.EventID]
}

func queuedAudit(t *testing.T, id int64, eventID, action string, attempts int) domain.OutboxEvent {
	t.Helper()
	payload, err := json.Marshal(domain.EventEnvelope{EventID: eventID, EventType: action, TenantID: "district-1", SchemaVersion: domain.CurrentEventSchemaVersion})
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return domain.OutboxEvent{
		ID:            id,
		EventID:       eventID,
		Topic:         "audit.district-1." + action,
		Status:        "pending",
		Attempts:      attempts,
		NextAttemptAt: time.Now().UTC().Add(-time.Second),
		PayloadJSON:   payload,
	}
}

func TestAuditRelayDeliversDueEvents(t *testing.T) {
	q := &memoryOutbox{events: []domain.OutboxEvent{queuedAudit(t, 1, "e1", domain.ActionExceptionCreate, 0)}}
	pub := &recordingPublisher{}
	r := NewAuditRelay(q, pub, RelayConfig{BatchSize: 10}, nil, nil)

	if err := r.relayDue(context.Background()); err != nil {
		t.Fatalf("relay: %v", err)
	}
	if len(q.limits) != 1 || q.limits[0] != 10 {
		t.Fatalf("expected batch size 10, got %v", q.limits)
	}
	if len(pub.topics) != 1 || pub.topics[0] != "audit.district-1."+domain.ActionExceptionCreate {
		t.Fatalf("unexpected topics %v", pub.topics)
	}
	if len(q.delivered) != 1 || q.delivered[0] != 1 || len(q.retries) != 0 || len(q.parked) != 0 {
		t.Fatalf("unexpected marks delivered=%v retries=%v parked=%v", q.delivered, q.retries, q.parked)
	}
}

func TestAuditRelaySchedulesRetryOnPublishFailure(t *testing.T) {
	q := &memoryOutbox{events: []domain.OutboxEvent{queuedAudit(t, 2, "e2", domain.ActionExceptionUpdate, 0)}}
	pub := &recordingPublisher{failFor: map[string]error{"e2": errors.New("webhook down")}}
	r := NewAuditRelay(q, pub, RelayConfig{}, nil, nil)

	before := time.Now().UTC()
	if err := r.relayDue(context.Background()); err != nil {
		t.Fatalf("relay: %v", err)
	}
	if len(q.retries) != 1 || q.retries[0].attempts != 1 || q.retries[0].reason != "webhook down" {
		t.Fatalf("unexpected retries %+v", q.retries)
	}
	if !q.events[0].NextAttemptAt.After(before) {
		t.Fatalf("expected next attempt in the future, got %v", q.events[0].NextAttemptAt)
	}
	if len(q.delivered) != 0 || len(q.parked) != 0 {
		t.Fatalf("unexpected marks delivered=%v parked=%v", q.delivered, q.parked)
	}
	if got := r.Stats(); got != (RelayStats{Retried: 1}) {
		t.Fatalf("unexpected stats %+v", got)
	}
}

func TestAuditRelayParksAfterMaxAttempts(t *testing.T) {
	q := &memoryOutbox{events: []domain.OutboxEvent{queuedAudit(t, 3, "e3", domain.ActionExceptionUpdate, 2)}}
	pub := &recordingPublisher{failFor: map[string]error{"e3": errors.New("still down")}}
	r := NewAuditRelay(q, pub, RelayConfig{MaxAttempts: 3}, nil, nil)

	if err := r.relayDue(context.Background()); err != nil {
		t.Fatalf("relay: %v", err)
	}
	if len(q.parked) != 1 || q.parked[0].attempts != 3 {
		t.Fatalf("expected event parked on third attempt, got %+v", q.parked)
	}
	if len(q.retries) != 0 {
		t.Fatalf("expected no retry once parked, got %+v", q.retries)
	}
}

func TestAuditRelayResumesAfterRestart(t *testing.T) {
	q := &memoryOutbox{events: []domain.OutboxEvent{
		queuedAudit(t, 4, "e4", domain.ActionExceptionCreate, 0),
		queuedAudit(t, 5, "e5", domain.ActionExceptionUpdate, 0),
	}}
	pub := &recordingPublisher{failFor: map[string]error{"e4": errors.New("transient")}}
	if err := NewAuditRelay(q, pub, RelayConfig{}, nil, nil).relayDue(context.Background()); err != nil {
		t.Fatalf("first pass: %v", err)
	}
	if len(q.delivered) != 1 || q.delivered[0] != 5 {
		t.Fatalf("expected only e5 delivered, got %v", q.delivered)
	}

	q.events[0].NextAttemptAt = time.Now().UTC().Add(-time.Second)
	pub.failFor = nil
	if err := NewAuditRelay(q, pub, RelayConfig{}, nil, nil).relayDue(context.Background()); err != nil {
		t.Fatalf("second pass: %v", err)
	}
	if len(q.delivered) != 2 || q.delivered[1] != 4 {
		t.Fatalf("expected e4 delivered after restart, got %v", q.delivered)
	}
}

func TestAuditRelayParksUndecodablePayload(t *testing.T) {
	bad := queuedAudit(t, 7, "e7", domain.ActionEvidencePacketCreate, 0)
	bad.PayloadJSON = []byte("{not json")
	q := &memoryOutbox{events: []domain.OutboxEvent{
		queuedAudit(t, 6, "e6", domain.ActionEvidencePacketCreate, 0),
		bad,
	}}
	r := NewAuditRelay(q, &recordingPublisher{}, RelayConfig{}, nil, nil)

	if err := r.relayDue(context.Background()); err != nil {
		t.Fatalf("relay: %v", err)
	}
	if got := r.Stats(); got != (RelayStats{Delivered: 1, DeadLettered: 1}) {
		t.Fatalf("unexpected stats %+v", got)
	}
	if len(q.parked) != 1 || q.parked[0].id != 7 || q.parked[0].attempts != 1 {
		t.Fatalf("expected e7 parked on first attempt, got %+v", q.parked)
	}
}

func TestAuditRelayStartAndClose(t *testing.T) {
	q := &memoryOutbox{events: []domain.OutboxEvent{queuedAudit(t, 8, "e8", domain.ActionRuleRunTrigger, 0)}}
	r := NewAuditRelay(q, &recordingPublisher{}, RelayConfig{Interval: time.Hour}, nil, nil)
	r.Start(context.Background())
	r.Start(context.Background())

	deadline := time.Now().Add(2 * time.Second)
	for r.Stats().Delivered == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if got := r.Stats().Delivered; got != 1 {
		t.Fatalf("expected first poll to deliver, got %d", got)
	}
}

func TestRetryDelayCapped(t *testing.T) {
	cases := map[int]time.Duration{1: time.Second, 3: 9 * time.Second, 100: 5 * time.Minute}
	for attempt, want := range cases {
		if got := retryDelay(attempt); got != want {
			t.Fatalf("attempt %d: expected %v, got %v", attempt, want, got)
		}
	}
}
