package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/atvirokodosprendimai/precheck/internal/core/domain"
	"github.com/atvirokodosprendimai/precheck/internal/testkit"
)

func TestCatalogCreateValidates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cases := []struct {
		name string
		in   RuleVersionInput
	}{
		{"missing code", RuleVersionInput{Title: "x", Severity: "error", DSL: json.RawMessage(`{"type":"grade_range"}`)}},
		{"bad severity", RuleVersionInput{Code: "X", Title: "x", Severity: "fatal", DSL: json.RawMessage(`{"type":"grade_range"}`)}},
		{"bad applies_to", RuleVersionInput{Code: "X", Title: "x", Severity: "error", AppliesTo: "School", DSL: json.RawMessage(`{"type":"grade_range"}`)}},
		{"non integer bound", RuleVersionInput{Code: "X", Title: "x", Severity: "error", DSL: json.RawMessage(`{"type":"grade_range","min":1.5}`)}},
		{"non string status", RuleVersionInput{Code: "X", Title: "x", Severity: "error", DSL: json.RawMessage(`{"type":"enrollment_status","required":1}`)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.catalog.Create(ctx, testTenant, testkit.Actor, tc.in)
			if !errors.Is(err, domain.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestCatalogCodeUniqueWithinTenant(t *testing.T) {
	f := newFixture(t)
	f.gradeRule(t, "GRADE_RANGE", domain.SeverityError)
	_, err := f.catalog.Create(context.Background(), testTenant, testkit.Actor, RuleVersionInput{
		Code:     "GRADE_RANGE",
		Title:    "Again",
		Severity: "error",
		DSL:      json.RawMessage(`{"type":"grade_range"}`),
	})
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestCatalogSyncGlobal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inputs := []RuleVersionInput{
		{Code: "ENROLLED", Title: "Active enrollment", Severity: "warning", DSL: json.RawMessage(`{"type":"enrollment_status"}`)},
		{Code: "GRADE_RANGE", Title: "Grade range", Severity: "error", DSL: json.RawMessage(`{"type":"grade_range","min":0,"max":12}`)},
	}
	created, err := f.catalog.SyncGlobal(ctx, inputs)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if created != 2 {
		t.Fatalf("expected 2 created, got %d", created)
	}

	inputs[1].Title = "Grade range (K-12)"
	created, err = f.catalog.SyncGlobal(ctx, inputs)
	if err != nil {
		t.Fatalf("resync: %v", err)
	}
	if created != 0 {
		t.Fatalf("resync should only update, created %d", created)
	}

	visible, err := f.catalog.List(ctx, testTenant)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(visible) != 2 || visible[0].Code != "ENROLLED" || visible[1].Title != "Grade range (K-12)" || !visible[1].Global() {
		t.Fatalf("unexpected catalog %+v", visible)
	}

	_, err = f.catalog.SyncGlobal(ctx, append(inputs, inputs[0]))
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected duplicate code rejection, got %v", err)
	}
}
