package domain

import (
	"encoding/json"
	"strings"
	"time"
)

type RunStatus string

const (
	RunPending RunStatus = "pending"
	RunRunning RunStatus = "running"
	RunSuccess RunStatus = "success"
	RunFailed  RunStatus = "failed"
)

func ParseRunStatus(s string) (RunStatus, error) {
	switch v := RunStatus(strings.TrimSpace(s)); v {
	case RunPending, RunRunning, RunSuccess, RunFailed:
		return v, nil
	}
	return "", Invalid("unknown rule run status %q", s)
}

func (s RunStatus) Terminal() bool {
	switch s {
	case RunSuccess, RunFailed:
		return true
	case RunPending, RunRunning:
		return false
	}
	return false
}

type RuleRun struct {
	ID            string
	TenantID      string
	RuleVersionID string
	InitiatedBy   string
	Status        RunStatus
	Scope         json.RawMessage
	Violations    int
	LastError     string
	StartedAt     *time.Time
	FinishedAt    *time.Time
	CreatedAt     time.Time
}

type ResultStatus string

const (
	ResultOpen     ResultStatus = "open"
	ResultResolved ResultStatus = "resolved"
	ResultDeferred ResultStatus = "deferred"
	ResultAccepted ResultStatus = "accepted"
)

func ParseResultStatus(s string) (ResultStatus, error) {
	switch v := ResultStatus(strings.TrimSpace(s)); v {
	case ResultOpen, ResultResolved, ResultDeferred, ResultAccepted:
		return v, nil
	}
	return "", Invalid("unknown rule result status %q", s)
}

// RuleResult is one persisted violation found by a run.
type RuleResult struct {
	ID         string
	RuleRunID  string
	TenantID   string
	SchoolID   string
	RuleCode   string
	EntityType EntityKind
	EntityID   string
	Severity   Severity
	Status     ResultStatus
	Message    string
	Details    json.RawMessage
	CreatedAt  time.Time
}

type ResultFilter struct {
	TenantID  string
	RuleRunID string
	Status    ResultStatus
	Limit     int
}

// RunOutcome summarises one processed run.
type RunOutcome struct {
	RunID      string
	Status     RunStatus
	Rules      int
	Violations int
}
