package usecase

import (
	"bytes"
	"context"
	"encoding/csv"
	"testing"

	"github.com/atvirokodosprendimai/precheck/internal/core/domain"
	"github.com/atvirokodosprendimai/precheck/internal/testkit"
)

func TestReadinessScoresOpenResultsPerSchool(t *testing.T) {
	f := newFixture(t)
	f.student(t, "N-1", 14, "North High School")
	f.student(t, "N-2", 15, "North High School")
	f.student(t, "S-1", 13, "South Middle School")
	f.gradeRule(t, "GRADE_ERR", domain.SeverityError)
	f.gradeRule(t, "GRADE_WARN", domain.SeverityWarning)
	if _, _, err := f.run(t, ""); err != nil {
		t.Fatalf("process: %v", err)
	}

	items, err := f.reports.Readiness(context.Background(), testTenant)
	if err != nil {
		t.Fatalf("readiness: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 schools, got %+v", items)
	}
	north, south := items[0], items[1]
	if north.SchoolName != "North High School" || north.OpenErrors != 2 || north.OpenWarnings != 2 || north.Score != 40 {
		t.Fatalf("unexpected north %+v", north)
	}
	if south.SchoolName != "South Middle School" || south.Score != 70 || south.Category != "Overall" {
		t.Fatalf("unexpected south %+v", south)
	}
}

func TestReadinessFloorsAtZero(t *testing.T) {
	f := newFixture(t)
	for _, sis := range []string{"A", "B", "C", "D", "E", "F"} {
		f.student(t, sis, 20, "North High School")
	}
	f.gradeRule(t, "GRADE_ERR", domain.SeverityError)
	if _, _, err := f.run(t, ""); err != nil {
		t.Fatalf("process: %v", err)
	}
	items, err := f.reports.Readiness(context.Background(), testTenant)
	if err != nil {
		t.Fatalf("readiness: %v", err)
	}
	if len(items) != 1 || items[0].Score != 0 || items[0].OpenErrors != 6 {
		t.Fatalf("unexpected readiness %+v", items)
	}
}

func TestExportExceptionsCSV(t *testing.T) {
	f := newFixture(t)
	res := openResult(t, f, "S-1")
	ctx := context.Background()
	exc, err := f.exceptions.Create(ctx, testTenant, testkit.Actor, ExceptionInput{RuleResultID: res.ID, Rationale: "late, transfer"})
	if err != nil {
		t.Fatalf("create exception: %v", err)
	}

	data, rows, err := f.reports.ExportExceptions(ctx, testTenant, testkit.Actor)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if rows != 1 {
		t.Fatalf("expected 1 row, got %d", rows)
	}
	records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	if err != nil {
		t.Fatalf("parse export: %v", err)
	}
	if len(records) != 2 || records[0][0] != "exception_id" || records[0][6] != "rule_message" {
		t.Fatalf("unexpected export %v", records)
	}
	got := records[1]
	if got[0] != exc.ID || got[1] != res.ID || got[2] != "open" || got[3] != "late, transfer" || got[4] != "" || got[5] != "error" {
		t.Fatalf("unexpected row %v", got)
	}
	if got[6] != "Grade level 15 outside configured range" {
		t.Fatalf("unexpected message %q", got[6])
	}

	entries, err := f.audit.List(ctx, domain.AuditFilter{TenantID: testTenant, Action: domain.ActionExportExceptions})
	if err != nil {
		t.Fatalf("audit: %v", err)
	}
	if len(entries) != 1 || string(entries[0].Metadata) != `{"rows":1}` {
		t.Fatalf("unexpected audit entries %+v", entries)
	}
}
