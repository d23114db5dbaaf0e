package telemetry

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.RecordRun("success", time.Second)
	m.RecordDispatch("rules.process_run", "inline")
	m.RecordImportRow("csv", "ok")
	m.RecordPacket()
	m.RecordAuditDelivery("delivered")
}

func TestDispatchCounterAndHandler(t *testing.T) {
	m := NewMetrics()
	m.RecordDispatch("rules.process_run", "inline")
	m.RecordDispatch("rules.process_run", "inline")
	m.RecordDispatch("rules.process_run", "queued")

	if got := testutil.ToFloat64(m.dispatchTotal.WithLabelValues("rules.process_run", "inline")); got != 2 {
		t.Fatalf("expected 2 inline dispatches, got %v", got)
	}

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "precheck_task_dispatch_total") {
		t.Fatalf("metrics output missing dispatch counter")
	}
}

func TestAuditDeliveryCounter(t *testing.T) {
	m := NewMetrics()
	m.RecordAuditDelivery("delivered")
	m.RecordAuditDelivery("dead")
	m.RecordAuditDelivery("delivered")

	if got := testutil.ToFloat64(m.auditDeliveries.WithLabelValues("delivered")); got != 2 {
		t.Fatalf("expected 2 deliveries, got %v", got)
	}
	if got := testutil.ToFloat64(m.auditDeliveries.WithLabelValues("dead")); got != 1 {
		t.Fatalf("expected 1 dead letter, got %v", got)
	}
}
