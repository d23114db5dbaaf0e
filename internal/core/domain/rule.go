package domain

import (
	"encoding/json"
	"strings"
	"time"
)

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

func ParseSeverity(s string) (Severity, error) {
	switch v := Severity(strings.TrimSpace(s)); v {
	case SeverityError, SeverityWarning, SeverityInfo:
		return v, nil
	}
	return "", Invalid("unknown severity %q", s)
}

// EntityKind names the population a rule applies to.
type EntityKind string

const EntityStudent EntityKind = "Student"

func ParseEntityKind(s string) (EntityKind, error) {
	switch k := EntityKind(strings.TrimSpace(s)); k {
	case EntityStudent:
		return k, nil
	}
	return "", Invalid("unsupported entity kind %q", s)
}

// RuleVersion is one versioned compliance rule. An empty TenantID marks a
// global rule visible to every tenant.
type RuleVersion struct {
	ID          string
	TenantID    string
	Code        string
	Title       string
	Severity    Severity
	AppliesTo   EntityKind
	DSL         json.RawMessage
	Remediation string
	Enabled     bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (r RuleVersion) Global() bool {
	return r.TenantID == ""
}

func (r RuleVersion) Validate() error {
	if strings.TrimSpace(r.Code) == "" {
		return Invalid("rule code is required")
	}
	if len(r.Code) > 64 {
		return Invalid("rule code must be at most 64 characters")
	}
	if strings.TrimSpace(r.Title) == "" {
		return Invalid("rule title is required")
	}
	if _, err := ParseSeverity(string(r.Severity)); err != nil {
		return err
	}
	if _, err := ParseEntityKind(string(r.AppliesTo)); err != nil {
		return err
	}
	if len(r.DSL) == 0 || !json.Valid(r.DSL) {
		return Invalid("rule dsl must be a json object")
	}
	return nil
}
