package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/atvirokodosprendimai/precheck/internal/core/domain"
	"github.com/atvirokodosprendimai/precheck/internal/core/ports"
)

type AuditService struct {
	store ports.Store
}

func NewAuditService(store ports.Store) *AuditService {
	return &AuditService{store: store}
}

// List returns entries most recent first.
func (s *AuditService) List(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditEntry, error) {
	if err := domain.ValidateID("tenant", filter.TenantID); err != nil {
		return nil, err
	}
	if filter.Limit <= 0 {
		filter.Limit = 100
	}
	if filter.Limit > 1000 {
		filter.Limit = 1000
	}
	var out []domain.AuditEntry
	err := s.store.Read(ctx, func(tx ports.Tx) error {
		var err error
		out, err = tx.Audit().List(filter)
		return err
	})
	return out, err
}

// appendAudit records one mutating action inside the caller's transaction.
func appendAudit(tx ports.Tx, tenantID string, actor domain.Actor, action, entityType, entityID string, metadata map[string]any, at time.Time) error {
	raw := json.RawMessage(`{}`)
	if metadata != nil {
		b, err := json.Marshal(metadata)
		if err != nil {
			return fmt.Errorf("marshal audit metadata: %w", err)
		}
		raw = b
	}
	_, err := tx.Audit().Append(domain.AuditEntry{
		TenantID:   tenantID,
		Actor:      actor.Label(),
		ActorUser:  actor.UserID,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Metadata:   raw,
		OccurredAt: at,
	})
	return err
}
