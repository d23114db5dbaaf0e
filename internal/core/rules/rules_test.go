package rules

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"github.com/atvirokodosprendimai/precheck/internal/core/domain"
)

func mustCompile(t *testing.T, raw string) Predicate {
	t.Helper()
	body, err := Parse(json.RawMessage(raw))
	if err != nil {
		t.Fatalf("parse %s: %v", raw, err)
	}
	pred, err := Compile(body)
	if err != nil {
		t.Fatalf("compile %s: %v", raw, err)
	}
	return pred
}

func TestGradeRangePredicate(t *testing.T) {
	pred := mustCompile(t, `{"type":"grade_range","min":0,"max":12}`)
	cases := []struct {
		name  string
		grade any
		want  bool
	}{
		{"lower bound", 0, true},
		{"upper bound", 12, true},
		{"inside", 7, true},
		{"above", 15, false},
		{"below", -1, false},
		{"missing", nil, false},
		{"json number", float64(9), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := Record{"id": "s1"}
			if tc.grade != nil {
				r["grade_level"] = tc.grade
			}
			if got := pred.Passes(r); got != tc.want {
				t.Fatalf("grade %v: expected %v, got %v", tc.grade, tc.want, got)
			}
		})
	}
}

func TestGradeRangeDefaults(t *testing.T) {
	body, err := Parse(json.RawMessage(`{"type":"grade_range"}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	gr, ok := body.(GradeRange)
	if !ok {
		t.Fatalf("expected GradeRange, got %T", body)
	}
	if gr.Min != 0 || gr.Max != 12 {
		t.Fatalf("expected defaults 0..12, got %d..%d", gr.Min, gr.Max)
	}
}

func TestEnrollmentStatusPredicate(t *testing.T) {
	pred := mustCompile(t, `{"type":"enrollment_status"}`)
	if !pred.Passes(Record{"enrollment_status": "active"}) {
		t.Fatal("active should pass default rule")
	}
	if pred.Passes(Record{"enrollment_status": "withdrawn"}) {
		t.Fatal("withdrawn should fail default rule")
	}
	if pred.Passes(Record{}) {
		t.Fatal("missing status should fail")
	}

	custom := mustCompile(t, `{"type":"enrollment_status","required":"enrolled"}`)
	if !custom.Passes(Record{"enrollment_status": "enrolled"}) {
		t.Fatal("custom required status should pass")
	}
}

func TestUnknownTypePassesEverything(t *testing.T) {
	for _, raw := range []string{`{}`, `{"type":"attendance"}`, `null`} {
		pred := mustCompile(t, raw)
		if !pred.Passes(Record{"grade_level": 99}) {
			t.Fatalf("%s: unknown rule type must pass", raw)
		}
	}
}

func TestParseRejectsMalformedBodies(t *testing.T) {
	for _, raw := range []string{
		`{"type":"grade_range","min":"zero"}`,
		`{"type":"grade_range","max":3.5}`,
		`{"type":"enrollment_status","required":5}`,
		`[1,2]`,
	} {
		_, err := Parse(json.RawMessage(raw))
		if !errors.Is(err, domain.ErrValidation) {
			t.Fatalf("%s: expected validation error, got %v", raw, err)
		}
	}
}

func TestCheckAppliesSchema(t *testing.T) {
	if _, err := Check(json.RawMessage(`{"type":"grade_range","min":1,"max":5}`)); err != nil {
		t.Fatalf("valid body rejected: %v", err)
	}
	_, err := Check(json.RawMessage(`{"type":"grade_range","min":"1"}`))
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	_, err = Check(json.RawMessage(`"grade_range"`))
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error for non-object, got %v", err)
	}
}

func TestEvaluateIsReproducible(t *testing.T) {
	pred := mustCompile(t, `{"type":"grade_range","min":0,"max":12}`)
	records := []Record{
		{"id": "a", "school_id": "s1", "grade_level": 3},
		{"id": "b", "school_id": "s1", "grade_level": 15},
		{"id": "c", "school_id": "s2"},
	}

	first := Evaluate(pred, records)
	second := Evaluate(pred, records)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("evaluation not reproducible: %+v vs %+v", first, second)
	}
	if len(first) != 2 || first[0].EntityID != "b" || first[1].EntityID != "c" {
		t.Fatalf("unexpected violations: %+v", first)
	}
	if first[0].SchoolID != "s1" || first[1].SchoolID != "s2" {
		t.Fatalf("school ids not carried: %+v", first)
	}
}

func TestDescribe(t *testing.T) {
	gr := GradeRange{Min: 0, Max: 12}
	if got := Describe(gr, Record{"grade_level": 15}, "t"); got != "Grade level 15 outside configured range" {
		t.Fatalf("unexpected message %q", got)
	}
	if got := Describe(gr, Record{}, "t"); got != "Grade level missing" {
		t.Fatalf("unexpected message %q", got)
	}
	es := EnrollmentStatus{Required: "active"}
	if got := Describe(es, Record{"enrollment_status": "withdrawn"}, "t"); got != "Unexpected enrollment status: withdrawn" {
		t.Fatalf("unexpected message %q", got)
	}
	if got := Describe(Unknown{Type: "x"}, Record{}, "Rule title"); got != "Rule title" {
		t.Fatalf("unexpected fallback %q", got)
	}
}
