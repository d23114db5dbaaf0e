package events

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/atvirokodosprendimai/precheck/internal/core/domain"
)

func TestWebhookPublisherSuccess(t *testing.T) {
	var gotBody []byte
	var gotHeaders http.Header

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header.Clone()
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	secret := "test-secret"
	pub := NewWebhookPublisher(srv.URL, secret, 5*time.Second)

	event := domain.EventEnvelope{
		EventID:       "evt-1",
		EventType:     domain.ActionExceptionApprove,
		TenantID:      "district-1",
		EntityType:    "ExceptionRecord",
		EntityID:      "e1",
		SchemaVersion: 1,
		Payload:       json.RawMessage(`{"audit_id":"7","metadata":{}}`),
	}

	topic := "audit.district-1." + domain.ActionExceptionApprove
	if err := pub.Publish(context.Background(), topic, event); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if ct := gotHeaders.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	if got := gotHeaders.Get("X-Precheck-Topic"); got != topic {
		t.Errorf("X-Precheck-Topic = %q, want %s", got, topic)
	}
	if got := gotHeaders.Get("X-Precheck-Event-Id"); got != "evt-1" {
		t.Errorf("X-Precheck-Event-Id = %q, want evt-1", got)
	}
	if got := gotHeaders.Get("X-Precheck-Event-Type"); got != domain.ActionExceptionApprove {
		t.Errorf("X-Precheck-Event-Type = %q", got)
	}
	if got := gotHeaders.Get("X-Precheck-Tenant"); got != "district-1" {
		t.Errorf("X-Precheck-Tenant = %q, want district-1", got)
	}

	sig := gotHeaders.Get("X-Hub-Signature-256")
	if !strings.HasPrefix(sig, "sha256=") {
		t.Fatalf("signature header missing or malformed: %q", sig)
	}
	if !Verify([]byte(secret), gotBody, sig) {
		t.Error("signature does not verify against the body")
	}
	if Verify([]byte("other"), gotBody, sig) {
		t.Error("signature should not verify with another secret")
	}

	var decoded domain.EventEnvelope
	if err := json.Unmarshal(gotBody, &decoded); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if decoded.EventID != event.EventID || decoded.EntityID != "e1" {
		t.Errorf("unexpected body %+v", decoded)
	}
}

func TestWebhookPublisherNon2xxReturnsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	pub := NewWebhookPublisher(srv.URL, "secret", 5*time.Second)
	event := domain.EventEnvelope{EventID: "evt-2", EventType: domain.ActionRuleRunTrigger, SchemaVersion: 1}

	err := pub.Publish(context.Background(), "audit.t."+domain.ActionRuleRunTrigger, event)
	if err == nil {
		t.Fatal("expected error for 500 response, got nil")
	}
	if !strings.Contains(err.Error(), "500") {
		t.Errorf("error should mention status code 500, got: %v", err)
	}
}

func TestWebhookPublisherContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	pub := NewWebhookPublisher(srv.URL, "secret", 5*time.Second)
	event := domain.EventEnvelope{EventID: "evt-3", EventType: domain.ActionStudentImport, SchemaVersion: 1}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := pub.Publish(ctx, "audit.t."+domain.ActionStudentImport, event)
	if err == nil {
		t.Fatal("expected error for cancelled context, got nil")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected error to wrap context.Canceled, got: %v", err)
	}
}

func TestWebhookPublisherZeroTimeoutUsesDefault(t *testing.T) {
	pub := NewWebhookPublisher("http://localhost:9", "s", 0)
	if pub.client.Timeout != defaultWebhookTimeout {
		t.Errorf("timeout = %v, want %v", pub.client.Timeout, defaultWebhookTimeout)
	}
}

func TestLogPublisherNeverFails(t *testing.T) {
	if err := NewLogPublisher(nil).Publish(context.Background(), "audit.t.X", domain.EventEnvelope{EventID: "e"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
