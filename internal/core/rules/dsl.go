// Package rules compiles declarative rule bodies into predicates and applies
// them to entity populations.
package rules

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/atvirokodosprendimai/precheck/internal/core/domain"
)

// Kind is the DSL discriminator stored under "type".
type Kind string

const (
	KindGradeRange       Kind = "grade_range"
	KindEnrollmentStatus Kind = "enrollment_status"
)

const (
	defaultMinGrade       = 0
	defaultMaxGrade       = 12
	defaultRequiredStatus = "active"
)

// Body is a parsed rule body. The set of implementations is closed.
type Body interface {
	Kind() Kind
	isBody()
}

type GradeRange struct {
	Min int
	Max int
}

type EnrollmentStatus struct {
	Required string
}

// Unknown is any body whose type is absent or not recognised. It compiles to
// a predicate that passes every record.
type Unknown struct {
	Type string
}

func (GradeRange) Kind() Kind       { return KindGradeRange }
func (EnrollmentStatus) Kind() Kind { return KindEnrollmentStatus }
func (u Unknown) Kind() Kind        { return Kind(u.Type) }

func (GradeRange) isBody()       {}
func (EnrollmentStatus) isBody() {}
func (Unknown) isBody()          {}

// Parse decodes a stored DSL document into its typed variant. Shape errors in
// recognised variants are validation errors; unrecognised types are not.
func Parse(raw json.RawMessage) (Body, error) {
	fields := map[string]any{}
	if len(bytes.TrimSpace(raw)) > 0 && !bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		if err := dec.Decode(&fields); err != nil {
			return nil, domain.WrapInvalid("rule dsl must be a json object", err)
		}
	}

	typ, _ := fields["type"].(string)
	switch Kind(typ) {
	case KindGradeRange:
		lo, err := intField(fields, "min", defaultMinGrade)
		if err != nil {
			return nil, err
		}
		hi, err := intField(fields, "max", defaultMaxGrade)
		if err != nil {
			return nil, err
		}
		return GradeRange{Min: lo, Max: hi}, nil
	case KindEnrollmentStatus:
		required := defaultRequiredStatus
		if v, ok := fields["required"]; ok && v != nil {
			s, ok := v.(string)
			if !ok {
				return nil, domain.Invalid("enrollment_status.required must be a string")
			}
			required = s
		}
		return EnrollmentStatus{Required: required}, nil
	}
	return Unknown{Type: typ}, nil
}

func intField(fields map[string]any, name string, def int) (int, error) {
	v, ok := fields[name]
	if !ok || v == nil {
		return def, nil
	}
	n, ok := v.(json.Number)
	if !ok {
		return 0, domain.Invalid("grade_range.%s must be a number, got %v", name, v)
	}
	if i, err := strconv.Atoi(n.String()); err == nil {
		return i, nil
	}
	f, err := n.Float64()
	if err != nil || f != math.Trunc(f) {
		return 0, domain.Invalid("grade_range.%s must be an integer, got %s", name, n)
	}
	return int(f), nil
}

func (b GradeRange) String() string {
	return fmt.Sprintf("grade_range[%d..%d]", b.Min, b.Max)
}
