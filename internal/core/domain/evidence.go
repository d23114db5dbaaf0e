package domain

import (
	"strings"
	"time"
)

type EvidenceKind string

const (
	EvidenceCSV        EvidenceKind = "csv"
	EvidenceScreenshot EvidenceKind = "screenshot"
	EvidencePolicy     EvidenceKind = "policy"
	EvidenceExport     EvidenceKind = "export"
)

func ParseEvidenceKind(s string) (EvidenceKind, error) {
	switch k := EvidenceKind(strings.TrimSpace(s)); k {
	case EvidenceCSV, EvidenceScreenshot, EvidencePolicy, EvidenceExport:
		return k, nil
	}
	return "", Invalid("unknown evidence kind %q", s)
}

type EvidencePacket struct {
	ID          string
	TenantID    string
	Name        string
	Description string
	ArchiveURI  string
	SHA256      string
	CreatedBy   string
	CreatedAt   time.Time
	Items       []EvidenceItem
}

type EvidenceItem struct {
	ID          string
	TenantID    string
	PacketID    string
	ExceptionID string
	Kind        EvidenceKind
	Title       string
	URI         string
	CreatedAt   time.Time
}

// PacketSummary is the document stored inside an evidence archive.
type PacketSummary struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	GeneratedAt string            `json:"generated_at"`
	Exceptions  []PacketException `json:"exceptions"`
}

type PacketException struct {
	ID           string  `json:"id"`
	RuleResultID string  `json:"rule_result_id"`
	Status       string  `json:"status"`
	Rationale    string  `json:"rationale"`
	DueDate      *string `json:"due_date"`
}

type PacketVerification struct {
	PacketID string `json:"packet_id"`
	Stored   string `json:"stored_sha256"`
	Computed string `json:"computed_sha256"`
	Match    bool   `json:"match"`
}
