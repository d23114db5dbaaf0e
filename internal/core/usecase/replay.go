package usecase

import (
	"context"
	"fmt"
	"strconv"

	"github.com/atvirokodosprendimai/precheck/internal/core/domain"
)

type ReplayEvent struct {
	Envelope domain.EventEnvelope `json:"envelope"`
	AuditID  int64                `json:"audit_id"`
}

// ReplayAudit walks a tenant's audit trail newest first in pages of
// batchSize and hands each entry to applyFn as an envelope upgraded to the current schema.
// Event ids are derived from the audit id so repeated replays agree.
func ReplayAudit(ctx context.Context, audit *AuditService, upgrader *EnvelopeUpgrader, filter domain.AuditFilter, batchSize int, applyFn func(ReplayEvent) error) error {
	if batchSize <= 0 {
		batchSize = 100
	}
	filter.Limit = batchSize
	for {
		entries, err := audit.List(ctx, filter)
		if err != nil {
			return fmt.Errorf("list audit entries: %w", err)
		}
		if len(entries) == 0 {
			return nil
		}

		for _, e := range entries {
			eventID := "audit-" + strconv.FormatInt(e.ID, 10)
			normalized, err := upgrader.Upgrade(e.Envelope(eventID))
			if err != nil {
				return fmt.Errorf("normalize audit entry %d: %w", e.ID, err)
			}
			if err := applyFn(ReplayEvent{Envelope: normalized, AuditID: e.ID}); err != nil {
				return fmt.Errorf("apply audit entry %d: %w", e.ID, err)
			}
			filter.BeforeID = e.ID
		}
		if len(entries) < batchSize {
			return nil
		}
	}
}
