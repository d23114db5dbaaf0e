package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/atvirokodosprendimai/precheck/internal/adapters/sqlite"
	"github.com/atvirokodosprendimai/precheck/internal/adapters/sqlite/gormsqlite"
	"github.com/atvirokodosprendimai/precheck/internal/core/domain"
	"github.com/atvirokodosprendimai/precheck/internal/core/ports"
	"github.com/atvirokodosprendimai/precheck/internal/testkit"
)

const testTenant = "district-1"

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type memArtifacts struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
	deleted []string
}

func newMemArtifacts() *memArtifacts {
	return &memArtifacts{objects: map[string][]byte{}}
}

func (m *memArtifacts) Put(_ context.Context, key string, data []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return "", m.putErr
	}
	uri := "mem://" + key
	m.objects[uri] = append([]byte(nil), data...)
	return uri, nil
}

func (m *memArtifacts) Get(_ context.Context, uri string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[uri]
	if !ok {
		return nil, errors.New("no such artifact")
	}
	return data, nil
}

func (m *memArtifacts) Delete(_ context.Context, uri string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, uri)
	m.deleted = append(m.deleted, uri)
	return nil
}

type fixture struct {
	db         *gormsqlite.DB
	store      ports.Store
	catalog    *CatalogService
	runs       *RunOrchestrator
	exceptions *ExceptionService
	evidence   *EvidenceService
	directory  *DirectoryService
	reports    *ReportService
	audit      *AuditService
	artifacts  *memArtifacts
}

// newFixture wires the services over a fresh database with tenant
// district-1. Runs are not dispatched; tests call Process themselves.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testkit.OpenDB(t)
	testkit.SeedTenant(t, db, testTenant)
	store := sqlite.NewStore(db)
	clock := testkit.Clock(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))

	f := &fixture{
		db:         db,
		store:      store,
		catalog:    NewCatalogService(store),
		runs:       NewRunOrchestrator(store, nil, nil, quietLogger),
		exceptions: NewExceptionService(store),
		artifacts:  newMemArtifacts(),
		directory:  NewDirectoryService(store),
		reports:    NewReportService(store),
		audit:      NewAuditService(store),
	}
	f.evidence = NewEvidenceService(store, f.artifacts, nil, quietLogger)
	f.catalog.now = clock
	f.runs.now = clock
	f.exceptions.now = clock
	f.evidence.now = clock
	f.directory.now = clock
	f.reports.now = clock
	return f
}

func (f *fixture) student(t *testing.T, sis string, grade int, school string) domain.Student {
	t.Helper()
	st, _, err := f.directory.UpsertStudent(context.Background(), testTenant, domain.StudentInput{
		SISID:      sis,
		FirstName:  "First " + sis,
		LastName:   "Last " + sis,
		GradeLevel: grade,
		SchoolName: school,
	})
	if err != nil {
		t.Fatalf("upsert student %s: %v", sis, err)
	}
	return st
}

func (f *fixture) gradeRule(t *testing.T, code string, severity domain.Severity) domain.RuleVersion {
	t.Helper()
	v, err := f.catalog.Create(context.Background(), testTenant, testkit.Actor, RuleVersionInput{
		Code:     code,
		Title:    "Grade level in range",
		Severity: string(severity),
		DSL:      json.RawMessage(`{"type":"grade_range","min":0,"max":12}`),
	})
	if err != nil {
		t.Fatalf("create rule %s: %v", code, err)
	}
	return v
}

// rawRule stores a version without authoring validation, as an older or
// hand-edited catalog row would be.
func (f *fixture) rawRule(t *testing.T, code, dsl string) domain.RuleVersion {
	t.Helper()
	v := domain.RuleVersion{
		ID:        domain.NewID(),
		TenantID:  testTenant,
		Code:      code,
		Title:     code,
		Severity:  domain.SeverityError,
		AppliesTo: domain.EntityStudent,
		DSL:       json.RawMessage(dsl),
		Enabled:   true,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	err := f.store.Write(context.Background(), func(tx ports.Tx) error { return tx.Rules().Create(v) })
	if err != nil {
		t.Fatalf("store rule %s: %v", code, err)
	}
	return v
}

func (f *fixture) run(t *testing.T, ruleVersionID string) (domain.RuleRun, domain.RunOutcome, error) {
	t.Helper()
	ctx := context.Background()
	run, err := f.runs.Trigger(ctx, testTenant, testkit.Actor, ruleVersionID, nil)
	if err != nil {
		t.Fatalf("trigger: %v", err)
	}
	outcome, err := f.runs.Process(ctx, testTenant, run.ID)
	return run, outcome, err
}

func (f *fixture) results(t *testing.T, runID string) []domain.RuleResult {
	t.Helper()
	out, err := f.runs.Results(context.Background(), domain.ResultFilter{TenantID: testTenant, RuleRunID: runID})
	if err != nil {
		t.Fatalf("results: %v", err)
	}
	return out
}

func (f *fixture) auditActions(t *testing.T) []string {
	t.Helper()
	entries, err := f.audit.List(context.Background(), domain.AuditFilter{TenantID: testTenant})
	if err != nil {
		t.Fatalf("audit list: %v", err)
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Action)
	}
	return out
}
