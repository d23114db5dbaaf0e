package sqlite

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/atvirokodosprendimai/precheck/internal/core/domain"
)

type exceptionRepo struct{ tx *gorm.DB }

func (r exceptionRepo) Create(e domain.ExceptionRecord) error {
	m := fromException(e)
	if err := r.tx.Create(&m).Error; err != nil {
		if isUniqueViolation(err) {
			return domain.Conflict("Exception already exists for this result")
		}
		return fmt.Errorf("create exception: %w", err)
	}
	return nil
}

func (r exceptionRepo) Get(tenantID, id string) (domain.ExceptionRecord, error) {
	var m exceptionModel
	if err := r.tx.Where("tenant_id = ? AND id = ?", tenantID, id).First(&m).Error; err != nil {
		return domain.ExceptionRecord{}, notFound(err, "Exception not found")
	}
	return toException(m)
}

func (r exceptionRepo) GetMany(tenantID string, ids []string) ([]domain.ExceptionRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []exceptionModel
	if err := r.tx.Where("tenant_id = ? AND id IN ?", tenantID, ids).Order("id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load exceptions: %w", err)
	}
	return toExceptions(rows)
}

func (r exceptionRepo) ExistsForResult(resultID string) (bool, error) {
	var n int64
	if err := r.tx.Model(&exceptionModel{}).Where("rule_result_id = ?", resultID).Count(&n).Error; err != nil {
		return false, fmt.Errorf("check exception: %w", err)
	}
	return n > 0, nil
}

func (r exceptionRepo) Update(e domain.ExceptionRecord) error {
	res := r.tx.Model(&exceptionModel{}).Where("tenant_id = ? AND id = ?", e.TenantID, e.ID).Updates(map[string]any{
		"owner_user_id": nullable(e.OwnerUserID),
		"status":        string(e.Status),
		"rationale":     e.Rationale,
		"due_date":      e.DueDate,
		"approved_by":   nullable(e.ApprovedBy),
		"approved_at":   e.ApprovedAt,
		"updated_at":    e.UpdatedAt.UTC(),
	})
	if res.Error != nil {
		return fmt.Errorf("update exception: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.NotFound("Exception not found")
	}
	return nil
}

func (r exceptionRepo) List(tenantID string, limit int) ([]domain.ExceptionRecord, error) {
	var rows []exceptionModel
	q := r.tx.Where("tenant_id = ?", tenantID).Order("created_at DESC").Order("rowid DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list exceptions: %w", err)
	}
	return toExceptions(rows)
}

func (r exceptionRepo) AddMemo(memo domain.ExceptionMemo) (domain.ExceptionMemo, error) {
	m := exceptionMemoModel{
		TenantID:    memo.TenantID,
		ExceptionID: memo.ExceptionID,
		Title:       memo.Title,
		BodyMD:      memo.BodyMD,
		GeneratedBy: memo.GeneratedBy,
		CreatedAt:   memo.CreatedAt.UTC(),
	}
	if err := r.tx.Create(&m).Error; err != nil {
		return domain.ExceptionMemo{}, fmt.Errorf("create exception memo: %w", err)
	}
	memo.ID = m.ID
	return memo, nil
}

func (r exceptionRepo) ListMemos(tenantID, exceptionID string) ([]domain.ExceptionMemo, error) {
	var rows []exceptionMemoModel
	err := r.tx.Where("tenant_id = ? AND exception_id = ?", tenantID, exceptionID).
		Order("id DESC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list exception memos: %w", err)
	}
	out := make([]domain.ExceptionMemo, 0, len(rows))
	for _, m := range rows {
		out = append(out, domain.ExceptionMemo{
			ID:          m.ID,
			TenantID:    m.TenantID,
			ExceptionID: m.ExceptionID,
			Title:       m.Title,
			BodyMD:      m.BodyMD,
			GeneratedBy: m.GeneratedBy,
			CreatedAt:   m.CreatedAt,
		})
	}
	return out, nil
}

func fromException(e domain.ExceptionRecord) exceptionModel {
	return exceptionModel{
		ID:           e.ID,
		TenantID:     e.TenantID,
		RuleResultID: e.RuleResultID,
		OwnerUserID:  nullable(e.OwnerUserID),
		Status:       string(e.Status),
		Rationale:    e.Rationale,
		DueDate:      e.DueDate,
		ApprovedBy:   nullable(e.ApprovedBy),
		ApprovedAt:   e.ApprovedAt,
		CreatedAt:    e.CreatedAt.UTC(),
		UpdatedAt:    e.UpdatedAt.UTC(),
	}
}

func toExceptions(rows []exceptionModel) ([]domain.ExceptionRecord, error) {
	out := make([]domain.ExceptionRecord, 0, len(rows))
	for _, m := range rows {
		e, err := toException(m)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func toException(m exceptionModel) (domain.ExceptionRecord, error) {
	status, err := domain.ParseExceptionStatus(m.Status)
	if err != nil {
		return domain.ExceptionRecord{}, fmt.Errorf("load exception %s: %w", m.ID, err)
	}
	return domain.ExceptionRecord{
		ID:           m.ID,
		TenantID:     m.TenantID,
		RuleResultID: m.RuleResultID,
		OwnerUserID:  deref(m.OwnerUserID),
		Status:       status,
		Rationale:    m.Rationale,
		DueDate:      m.DueDate,
		ApprovedBy:   deref(m.ApprovedBy),
		ApprovedAt:   m.ApprovedAt,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}, nil
}
