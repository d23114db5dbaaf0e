package rulefile

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/atvirokodosprendimai/precheck/internal/core/usecase"
)

type syncerStub struct {
	mu    sync.Mutex
	calls [][]usecase.RuleVersionInput
	err   error
}

func (s *syncerStub) SyncGlobal(_ context.Context, inputs []usecase.RuleVersionInput) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, inputs)
	return len(inputs), s.err
}

func (s *syncerStub) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestLoadDirectory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "b.yml"), `
- code: ACTIVE
  description: Enrollment active
  dsl: {type: enrollment_status}
  enabled: false
`)
	writeFile(t, filepath.Join(dir, "a.yaml"), `
- code: GRADE_RANGE
  title: Grade range
  severity: warning
  dsl: {type: grade_range, min: 1, max: 8}
`)
	writeFile(t, filepath.Join(dir, "notes.txt"), "ignored")
	writeFile(t, filepath.Join(dir, ".hidden.yaml"), "not: [valid")

	inputs, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(inputs) != 2 {
		t.Fatalf("expected 2 rules, got %d", len(inputs))
	}
	first, second := inputs[0], inputs[1]
	if first.Code != "GRADE_RANGE" || first.Severity != "warning" {
		t.Fatalf("unexpected first rule %+v", first)
	}
	var dsl map[string]any
	if err := json.Unmarshal(first.DSL, &dsl); err != nil {
		t.Fatalf("dsl json: %v", err)
	}
	if dsl["type"] != "grade_range" || dsl["max"] != float64(8) {
		t.Fatalf("unexpected dsl %v", dsl)
	}
	if second.Title != "Enrollment active" || second.Severity != "error" || second.Enabled == nil || *second.Enabled {
		t.Fatalf("unexpected second rule %+v", second)
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	writeFile(t, path, "code: [unterminated")
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected stat error")
	}
}

func TestSyncReportsSyncerError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	writeFile(t, path, "- {code: X, title: x, dsl: {type: grade_range}}\n")
	stub := &syncerStub{err: errors.New("db locked")}
	loaded, _, err := Sync(context.Background(), path, stub)
	if err == nil || loaded != 1 {
		t.Fatalf("expected error after loading 1 rule, got loaded=%d err=%v", loaded, err)
	}
}

func TestWatcherReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.yaml")
	writeFile(t, path, "- {code: X, title: x, dsl: {type: grade_range}}\n")

	stub := &syncerStub{}
	w := NewWatcher(dir, stub, 20*time.Millisecond, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	deadline := time.Now().Add(5 * time.Second)
	for stub.count() == 0 && time.Now().Before(deadline) {
		// Rewrite until the watcher has registered and picked up a change.
		writeFile(t, path, "- {code: X, title: changed, dsl: {type: grade_range}}\n")
		time.Sleep(50 * time.Millisecond)
	}
	if stub.count() == 0 {
		t.Fatal("expected a reload after the file changed")
	}
}
