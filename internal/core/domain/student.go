package domain

import (
	"strings"
	"time"
)

type School struct {
	ID        string
	TenantID  string
	Name      string
	CreatedAt time.Time
}

type Student struct {
	ID               string
	TenantID         string
	SchoolID         string
	SISID            string
	FirstName        string
	LastName         string
	GradeLevel       *int
	EnrollmentStatus string
	ELLStatus        bool
	IDEAFlag         bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// StudentInput is the upsert payload shared by CSV import, connector sync
// and the students endpoint. Nil flags leave existing values untouched.
type StudentInput struct {
	SISID            string
	FirstName        string
	LastName         string
	GradeLevel       int
	EnrollmentStatus string
	SchoolName       string
	ELLStatus        *bool
	IDEAFlag         *bool
}

func (in StudentInput) Validate() error {
	if strings.TrimSpace(in.SISID) == "" {
		return Invalid("sis_id is required")
	}
	if strings.TrimSpace(in.SchoolName) == "" {
		return Invalid("school_name is required")
	}
	return nil
}

// StudentMapping maps student fields to CSV column names.
type StudentMapping struct {
	SISID            string `json:"sis_id"`
	FirstName        string `json:"first_name"`
	LastName         string `json:"last_name"`
	GradeLevel       string `json:"grade_level"`
	SchoolName       string `json:"school_name"`
	EnrollmentStatus string `json:"enrollment_status,omitempty"`
	ELLStatus        string `json:"ell_status,omitempty"`
	IDEAFlag         string `json:"idea_flag,omitempty"`
}

// Columns returns the configured column names in a stable order.
func (m StudentMapping) Columns() []string {
	cols := []string{m.SISID, m.FirstName, m.LastName, m.GradeLevel, m.SchoolName, m.EnrollmentStatus, m.ELLStatus, m.IDEAFlag}
	out := make([]string, 0, len(cols))
	for _, c := range cols {
		if c != "" {
			out = append(out, c)
		}
	}
	return out
}

type IngestSource string

const (
	IngestCSV         IngestSource = "csv"
	IngestPowerSchool IngestSource = "powerschool"
)

type IngestStatus string

const (
	IngestPending IngestStatus = "pending"
	IngestSuccess IngestStatus = "success"
	IngestFailed  IngestStatus = "failed"
)

func ParseIngestStatus(s string) (IngestStatus, error) {
	switch v := IngestStatus(strings.TrimSpace(s)); v {
	case IngestPending, IngestSuccess, IngestFailed:
		return v, nil
	}
	return "", Invalid("unknown ingest status %q", s)
}

type IngestBatch struct {
	ID           string
	TenantID     string
	Source       IngestSource
	Status       IngestStatus
	RowsIngested int
	Errors       []string
	CreatedAt    time.Time
	FinishedAt   *time.Time
}

// ImportResult reports one ingestion batch back to the caller.
type ImportResult struct {
	BatchID         string   `json:"ingest_batch_id"`
	RowsProcessed   int      `json:"rows_processed"`
	StudentsCreated int      `json:"students_created"`
	StudentsUpdated int      `json:"students_updated"`
	Errors          []string `json:"errors"`
}

// ReadinessDetail is the per-school readiness score.
type ReadinessDetail struct {
	SchoolID     string `json:"school_id,omitempty"`
	SchoolName   string `json:"school_name"`
	Category     string `json:"category"`
	Score        int    `json:"score"`
	OpenErrors   int    `json:"open_errors"`
	OpenWarnings int    `json:"open_warnings"`
}
