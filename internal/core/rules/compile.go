package rules

import (
	"fmt"
	"strconv"
	"strings"
)

// Record is one entity snapshot as seen by a predicate.
type Record map[string]any

// Predicate reports whether a record passes a rule.
type Predicate struct {
	body Body
	test func(Record) bool
}

func (p Predicate) Body() Body { return p.body }

func (p Predicate) Passes(r Record) bool {
	if p.test == nil {
		return true
	}
	return p.test(r)
}

// Compile turns a parsed body into an executable predicate.
func Compile(b Body) (Predicate, error) {
	switch body := b.(type) {
	case GradeRange:
		return Predicate{body: body, test: func(r Record) bool {
			grade, ok := r.Int("grade_level")
			return ok && body.Min <= grade && grade <= body.Max
		}}, nil
	case EnrollmentStatus:
		return Predicate{body: body, test: func(r Record) bool {
			s, _ := r["enrollment_status"].(string)
			return s == body.Required
		}}, nil
	case Unknown:
		return Predicate{body: body, test: func(Record) bool { return true }}, nil
	case nil:
		return Predicate{}, fmt.Errorf("compile: nil rule body")
	default:
		return Predicate{}, fmt.Errorf("compile: unsupported rule body %T", b)
	}
}

// Int reads an integer field, accepting the numeric shapes a snapshot can hold.
func (r Record) Int(key string) (int, bool) {
	switch v := r[key].(type) {
	case int:
		return v, true
	case *int:
		if v == nil {
			return 0, false
		}
		return *v, true
	case int64:
		return int(v), true
	case float64:
		if v != float64(int(v)) {
			return 0, false
		}
		return int(v), true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		return n, err == nil
	}
	return 0, false
}

// Text returns a field formatted for messages. Absent values render empty.
func (r Record) Text(key string) string {
	switch v := r[key].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		if n, ok := r.Int(key); ok {
			return strconv.Itoa(n)
		}
		return fmt.Sprint(v)
	}
}
