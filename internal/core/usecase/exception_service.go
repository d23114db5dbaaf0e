package usecase

import (
	"context"
	"strings"
	"time"

	"github.com/atvirokodosprendimai/precheck/internal/core/domain"
	"github.com/atvirokodosprendimai/precheck/internal/core/ports"
)

type ExceptionInput struct {
	RuleResultID string
	OwnerUserID  string
	Rationale    string
	DueDate      *time.Time
}

type MemoInput struct {
	Title       string
	BodyMD      string
	GeneratedBy string
}

type ExceptionService struct {
	store ports.Store
	now   func() time.Time
}

func NewExceptionService(store ports.Store) *ExceptionService {
	return &ExceptionService{store: store, now: time.Now}
}

// Create opens an exception for a rule result. The owner defaults to the
// acting user.
func (s *ExceptionService) Create(ctx context.Context, tenantID string, actor domain.Actor, in ExceptionInput) (domain.ExceptionRecord, error) {
	if strings.TrimSpace(in.RuleResultID) == "" {
		return domain.ExceptionRecord{}, domain.Invalid("rule_result_id is required")
	}
	owner := in.OwnerUserID
	if owner == "" {
		owner = actor.UserID
	}
	now := s.now().UTC()
	rec := domain.ExceptionRecord{
		ID:           domain.NewID(),
		TenantID:     tenantID,
		RuleResultID: in.RuleResultID,
		OwnerUserID:  owner,
		Status:       domain.ExceptionOpen,
		Rationale:    in.Rationale,
		DueDate:      utcPtr(in.DueDate),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err := s.store.Write(ctx, func(tx ports.Tx) error {
		if _, err := tx.Results().Get(tenantID, in.RuleResultID); err != nil {
			return err
		}
		exists, err := tx.Exceptions().ExistsForResult(in.RuleResultID)
		if err != nil {
			return err
		}
		if exists {
			return domain.Conflict("Exception already exists for this result")
		}
		if owner != "" {
			if err := checkOwner(tx, tenantID, owner); err != nil {
				return err
			}
		}
		if err := tx.Exceptions().Create(rec); err != nil {
			return err
		}
		return appendAudit(tx, tenantID, actor, domain.ActionExceptionCreate, "ExceptionRecord", rec.ID,
			map[string]any{"rule_result_id": rec.RuleResultID}, now)
	})
	if err != nil {
		return domain.ExceptionRecord{}, err
	}
	return rec, nil
}

// Update applies a partial update. Approval forces the status to resolved and
// stamps the approving user; it is rejected once the exception is terminal
// and when the actor is not a user.
func (s *ExceptionService) Update(ctx context.Context, tenantID string, actor domain.Actor, id string, upd domain.ExceptionUpdate) (domain.ExceptionRecord, error) {
	if upd.Approved && actor.UserID == "" {
		return domain.ExceptionRecord{}, domain.Invalid("Approval requires an API key bound to a user")
	}
	var next *domain.ExceptionStatus
	if upd.Status != nil {
		st, err := domain.ParseExceptionStatus(*upd.Status)
		if err != nil {
			return domain.ExceptionRecord{}, domain.Invalid("Invalid status value")
		}
		next = &st
	}

	var rec domain.ExceptionRecord
	err := s.store.Write(ctx, func(tx ports.Tx) error {
		var err error
		rec, err = tx.Exceptions().Get(tenantID, id)
		if err != nil {
			return err
		}
		now := s.now().UTC()
		prev := rec.Status
		changed := []string{}

		// Approval overrides any status in the same update.
		if next != nil && !upd.Approved && *next != rec.Status {
			if !rec.Status.CanTransition(*next) {
				return domain.Conflict("Exception cannot move from %s to %s", rec.Status, *next)
			}
			rec.Status = *next
			changed = append(changed, "status")
		}
		if upd.OwnerUserID != nil {
			owner := strings.TrimSpace(*upd.OwnerUserID)
			if owner != "" {
				if err := checkOwner(tx, tenantID, owner); err != nil {
					return err
				}
			}
			rec.OwnerUserID = owner
			changed = append(changed, "owner_user_id")
		}
		if upd.Rationale != nil {
			rec.Rationale = *upd.Rationale
			changed = append(changed, "rationale")
		}
		if upd.DueDate != nil {
			rec.DueDate = utcPtr(upd.DueDate)
			changed = append(changed, "due_date")
		}

		action := domain.ActionExceptionUpdate
		if upd.Approved {
			if prev.Terminal() {
				return domain.Conflict("Exception is already %s", prev)
			}
			rec.Status = domain.ExceptionResolved
			rec.ApprovedBy = actor.UserID
			rec.ApprovedAt = &now
			action = domain.ActionExceptionApprove
			changed = append(changed, "approval")
		}

		rec.UpdatedAt = now
		if err := tx.Exceptions().Update(rec); err != nil {
			return err
		}
		return appendAudit(tx, tenantID, actor, action, "ExceptionRecord", rec.ID,
			map[string]any{"changed": changed, "status": rec.Status}, now)
	})
	if err != nil {
		return domain.ExceptionRecord{}, err
	}
	return rec, nil
}

func (s *ExceptionService) Get(ctx context.Context, tenantID, id string) (domain.ExceptionRecord, error) {
	var rec domain.ExceptionRecord
	err := s.store.Read(ctx, func(tx ports.Tx) error {
		var err error
		rec, err = tx.Exceptions().Get(tenantID, id)
		return err
	})
	return rec, err
}

// List returns exceptions newest first.
func (s *ExceptionService) List(ctx context.Context, tenantID string, limit int) ([]domain.ExceptionRecord, error) {
	if limit <= 0 || limit > 1000 {
		limit = 1000
	}
	var out []domain.ExceptionRecord
	err := s.store.Read(ctx, func(tx ports.Tx) error {
		var err error
		out, err = tx.Exceptions().List(tenantID, limit)
		return err
	})
	return out, err
}

func (s *ExceptionService) AddMemo(ctx context.Context, tenantID string, actor domain.Actor, exceptionID string, in MemoInput) (domain.ExceptionMemo, error) {
	if strings.TrimSpace(in.Title) == "" {
		return domain.ExceptionMemo{}, domain.Invalid("memo title is required")
	}
	generatedBy := strings.TrimSpace(in.GeneratedBy)
	if generatedBy == "" {
		generatedBy = "user"
	}

	var memo domain.ExceptionMemo
	err := s.store.Write(ctx, func(tx ports.Tx) error {
		if _, err := tx.Exceptions().Get(tenantID, exceptionID); err != nil {
			return err
		}
		now := s.now().UTC()
		var err error
		memo, err = tx.Exceptions().AddMemo(domain.ExceptionMemo{
			TenantID:    tenantID,
			ExceptionID: exceptionID,
			Title:       in.Title,
			BodyMD:      in.BodyMD,
			GeneratedBy: generatedBy,
			CreatedAt:   now,
		})
		if err != nil {
			return err
		}
		return appendAudit(tx, tenantID, actor, domain.ActionExceptionMemoCreate, "ExceptionRecord", exceptionID,
			map[string]any{"memo_id": memo.ID, "generated_by": generatedBy}, now)
	})
	if err != nil {
		return domain.ExceptionMemo{}, err
	}
	return memo, nil
}

// ListMemos returns memos most recent first.
func (s *ExceptionService) ListMemos(ctx context.Context, tenantID, exceptionID string) ([]domain.ExceptionMemo, error) {
	var out []domain.ExceptionMemo
	err := s.store.Read(ctx, func(tx ports.Tx) error {
		if _, err := tx.Exceptions().Get(tenantID, exceptionID); err != nil {
			return err
		}
		var err error
		out, err = tx.Exceptions().ListMemos(tenantID, exceptionID)
		return err
	})
	return out, err
}

func checkOwner(tx ports.Tx, tenantID, userID string) error {
	if err := domain.ValidateID("user", userID); err != nil {
		return domain.NotFound("Owner not found")
	}
	if _, err := tx.Users().Get(tenantID, userID); err != nil {
		if domain.CodeOf(err) == domain.CodeNotFound {
			return domain.NotFound("Owner not found")
		}
		return err
	}
	return nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
