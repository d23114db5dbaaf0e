package sqlite

import (
	"encoding/json"
	"fmt"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/atvirokodosprendimai/precheck/internal/core/domain"
)

type auditRepo struct{ tx *gorm.DB }

// Append writes the audit row and its outbox event in the caller's transaction.
func (r auditRepo) Append(e domain.AuditEntry) (domain.AuditEntry, error) {
	e.OccurredAt = e.OccurredAt.UTC()
	if len(e.Metadata) == 0 {
		e.Metadata = json.RawMessage(`{}`)
	}
	m := auditLogModel{
		TenantID:   e.TenantID,
		Actor:      e.Actor,
		ActorUser:  nullable(e.ActorUser),
		Action:     e.Action,
		EntityType: e.EntityType,
		EntityID:   e.EntityID,
		Metadata:   datatypes.JSON(e.Metadata),
		OccurredAt: e.OccurredAt,
	}
	if err := r.tx.Create(&m).Error; err != nil {
		return domain.AuditEntry{}, fmt.Errorf("insert audit log: %w", err)
	}
	e.ID = m.ID

	envelope := e.Envelope(domain.NewID())
	payload, err := json.Marshal(envelope)
	if err != nil {
		return domain.AuditEntry{}, fmt.Errorf("marshal outbox payload: %w", err)
	}

	outbox := outboxEventModel{
		EventID:       envelope.EventID,
		TenantID:      e.TenantID,
		Topic:         "audit." + e.TenantID + "." + e.Action,
		PayloadJSON:   string(payload),
		Status:        "pending",
		NextAttemptAt: e.OccurredAt,
		CreatedAt:     e.OccurredAt,
	}
	if err := r.tx.Create(&outbox).Error; err != nil {
		return domain.AuditEntry{}, fmt.Errorf("insert outbox event: %w", err)
	}
	return e, nil
}

func (r auditRepo) List(filter domain.AuditFilter) ([]domain.AuditEntry, error) {
	var rows []auditLogModel
	q := r.tx.Model(&auditLogModel{}).Where("tenant_id = ?", filter.TenantID)
	if filter.EntityType != "" {
		q = q.Where("entity_type = ?", filter.EntityType)
	}
	if filter.EntityID != "" {
		q = q.Where("entity_id = ?", filter.EntityID)
	}
	if filter.Action != "" {
		q = q.Where("action = ?", filter.Action)
	}
	if filter.BeforeID > 0 {
		q = q.Where("id < ?", filter.BeforeID)
	}
	q = q.Order("id DESC")
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list audit logs: %w", err)
	}

	out := make([]domain.AuditEntry, 0, len(rows))
	for _, m := range rows {
		out = append(out, domain.AuditEntry{
			ID:         m.ID,
			TenantID:   m.TenantID,
			Actor:      m.Actor,
			ActorUser:  deref(m.ActorUser),
			Action:     m.Action,
			EntityType: m.EntityType,
			EntityID:   m.EntityID,
			Metadata:   json.RawMessage(m.Metadata),
			OccurredAt: m.OccurredAt,
		})
	}
	return out, nil
}
