package domain

import (
	"encoding/json"
	"strconv"
	"time"
)

// Audit actions recorded by the workflows.
const (
	ActionRuleVersionCreate    = "RULE_VERSION_CREATE"
	ActionRuleRunTrigger       = "RULE_RUN_TRIGGER"
	ActionExceptionCreate      = "EXCEPTION_CREATE"
	ActionExceptionUpdate      = "EXCEPTION_UPDATE"
	ActionExceptionApprove     = "EXCEPTION_APPROVE"
	ActionExceptionMemoCreate  = "EXCEPTION_MEMO_CREATE"
	ActionEvidencePacketCreate = "EVIDENCE_PACKET_CREATE"
	ActionExportExceptions     = "EXPORT_EXCEPTIONS"
	ActionConnectorSync        = "CONNECTOR_SYNC_TRIGGER"
	ActionStudentImport        = "STUDENT_IMPORT"
)

// AuditEntry is one append-only audit record.
type AuditEntry struct {
	ID         int64           `json:"id"`
	TenantID   string          `json:"tenant_id"`
	Actor      string          `json:"actor,omitempty"`
	ActorUser  string          `json:"actor_user_id,omitempty"`
	Action     string          `json:"action"`
	EntityType string          `json:"entity_type,omitempty"`
	EntityID   string          `json:"entity_id,omitempty"`
	Metadata   json.RawMessage `json:"metadata,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
}

type AuditFilter struct {
	TenantID   string
	EntityType string
	EntityID   string
	Action     string
	BeforeID   int64
	Limit      int
}

// Envelope renders an audit entry as the event published for it.
func (e AuditEntry) Envelope(eventID string) EventEnvelope {
	meta := e.Metadata
	if len(meta) == 0 {
		meta = json.RawMessage(`{}`)
	}
	payload, _ := json.Marshal(struct {
		AuditID  string          `json:"audit_id"`
		Metadata json.RawMessage `json:"metadata"`
	}{strconv.FormatInt(e.ID, 10), meta})
	return EventEnvelope{
		EventID:       eventID,
		EventType:     e.Action,
		SchemaVersion: CurrentEventSchemaVersion,
		TenantID:      e.TenantID,
		EntityType:    e.EntityType,
		EntityID:      e.EntityID,
		OccurredAt:    e.OccurredAt,
		Actor:         e.Actor,
		Payload:       payload,
	}
}
