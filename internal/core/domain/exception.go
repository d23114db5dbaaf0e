package domain

import (
	"strings"
	"time"
)

type ExceptionStatus string

const (
	ExceptionOpen     ExceptionStatus = "open"
	ExceptionInReview ExceptionStatus = "in_review"
	ExceptionResolved ExceptionStatus = "resolved"
	ExceptionWontFix  ExceptionStatus = "wont_fix"
)

func ParseExceptionStatus(s string) (ExceptionStatus, error) {
	switch v := ExceptionStatus(strings.TrimSpace(s)); v {
	case ExceptionOpen, ExceptionInReview, ExceptionResolved, ExceptionWontFix:
		return v, nil
	}
	return "", Invalid("invalid status value %q", s)
}

func (s ExceptionStatus) Terminal() bool {
	switch s {
	case ExceptionResolved, ExceptionWontFix:
		return true
	case ExceptionOpen, ExceptionInReview:
		return false
	}
	return false
}

// CanTransition reports whether an explicit status change from s to next is
// allowed. Approval bypasses this table and always lands on resolved.
func (s ExceptionStatus) CanTransition(next ExceptionStatus) bool {
	if s == next {
		return true
	}
	switch s {
	case ExceptionOpen:
		return next == ExceptionInReview
	case ExceptionInReview:
		return next == ExceptionResolved || next == ExceptionWontFix
	case ExceptionResolved, ExceptionWontFix:
		return false
	}
	return false
}

type ExceptionRecord struct {
	ID           string
	TenantID     string
	RuleResultID string
	OwnerUserID  string
	Status       ExceptionStatus
	Rationale    string
	DueDate      *time.Time
	ApprovedBy   string
	ApprovedAt   *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ExceptionUpdate carries a partial update. Nil fields are left unchanged.
type ExceptionUpdate struct {
	Status      *string
	OwnerUserID *string
	Rationale   *string
	DueDate     *time.Time
	Approved    bool
}

type ExceptionMemo struct {
	ID          int64
	TenantID    string
	ExceptionID string
	Title       string
	BodyMD      string
	GeneratedBy string
	CreatedAt   time.Time
}
