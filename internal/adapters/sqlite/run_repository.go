package sqlite

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/atvirokodosprendimai/precheck/internal/core/domain"
)

type runRepo struct{ tx *gorm.DB }

func (r runRepo) Create(run domain.RuleRun) error {
	m := ruleRunModel{
		ID:            run.ID,
		TenantID:      run.TenantID,
		RuleVersionID: nullable(run.RuleVersionID),
		InitiatedBy:   run.InitiatedBy,
		Status:        string(run.Status),
		Scope:         datatypes.JSON(run.Scope),
		CreatedAt:     run.CreatedAt.UTC(),
	}
	if err := r.tx.Create(&m).Error; err != nil {
		return fmt.Errorf("create rule run: %w", err)
	}
	return nil
}

func (r runRepo) Get(tenantID, id string) (domain.RuleRun, error) {
	var m ruleRunModel
	if err := r.tx.Where("tenant_id = ? AND id = ?", tenantID, id).First(&m).Error; err != nil {
		return domain.RuleRun{}, notFound(err, "Rule run not found")
	}
	return toRuleRun(m)
}

func (r runRepo) List(tenantID string, limit int) ([]domain.RuleRun, error) {
	var rows []ruleRunModel
	q := r.tx.Where("tenant_id = ?", tenantID).Order("created_at DESC").Order("rowid DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list rule runs: %w", err)
	}
	out := make([]domain.RuleRun, 0, len(rows))
	for _, m := range rows {
		run, err := toRuleRun(m)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, nil
}

func (r runRepo) MarkRunning(id string, at time.Time) error {
	at = at.UTC()
	res := r.tx.Model(&ruleRunModel{}).Where("id = ?", id).Updates(map[string]any{
		"status":     string(domain.RunRunning),
		"started_at": &at,
	})
	if res.Error != nil {
		return fmt.Errorf("mark rule run running: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.NotFound("Rule run not found")
	}
	return nil
}

func (r runRepo) Finish(id string, status domain.RunStatus, at time.Time, violations int, lastError string) error {
	at = at.UTC()
	res := r.tx.Model(&ruleRunModel{}).Where("id = ?", id).Updates(map[string]any{
		"status":      string(status),
		"finished_at": &at,
		"violations":  violations,
		"last_error":  lastError,
	})
	if res.Error != nil {
		return fmt.Errorf("finish rule run: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.NotFound("Rule run not found")
	}
	return nil
}

func toRuleRun(m ruleRunModel) (domain.RuleRun, error) {
	status, err := domain.ParseRunStatus(m.Status)
	if err != nil {
		return domain.RuleRun{}, fmt.Errorf("load rule run %s: %w", m.ID, err)
	}
	return domain.RuleRun{
		ID:            m.ID,
		TenantID:      m.TenantID,
		RuleVersionID: deref(m.RuleVersionID),
		InitiatedBy:   m.InitiatedBy,
		Status:        status,
		Scope:         json.RawMessage(m.Scope),
		Violations:    m.Violations,
		LastError:     m.LastError,
		StartedAt:     m.StartedAt,
		FinishedAt:    m.FinishedAt,
		CreatedAt:     m.CreatedAt,
	}, nil
}

type resultRepo struct{ tx *gorm.DB }

func (r resultRepo) Insert(results []domain.RuleResult) error {
	if len(results) == 0 {
		return nil
	}
	rows := make([]ruleResultModel, 0, len(results))
	for _, res := range results {
		rows = append(rows, ruleResultModel{
			ID:         res.ID,
			RuleRunID:  res.RuleRunID,
			TenantID:   res.TenantID,
			SchoolID:   nullable(res.SchoolID),
			RuleCode:   res.RuleCode,
			EntityType: string(res.EntityType),
			EntityID:   res.EntityID,
			Severity:   string(res.Severity),
			Status:     string(res.Status),
			Message:    res.Message,
			Details:    datatypes.JSON(res.Details),
			CreatedAt:  res.CreatedAt.UTC(),
		})
	}
	if err := r.tx.CreateInBatches(rows, 200).Error; err != nil {
		return fmt.Errorf("insert rule results: %w", err)
	}
	return nil
}

func (r resultRepo) Get(tenantID, id string) (domain.RuleResult, error) {
	var m ruleResultModel
	if err := r.tx.Where("tenant_id = ? AND id = ?", tenantID, id).First(&m).Error; err != nil {
		return domain.RuleResult{}, notFound(err, "Rule result not found")
	}
	return toRuleResult(m)
}

func (r resultRepo) GetMany(tenantID string, ids []string) (map[string]domain.RuleResult, error) {
	out := make(map[string]domain.RuleResult, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []ruleResultModel
	if err := r.tx.Where("tenant_id = ? AND id IN ?", tenantID, ids).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load rule results: %w", err)
	}
	for _, m := range rows {
		res, err := toRuleResult(m)
		if err != nil {
			return nil, err
		}
		out[res.ID] = res
	}
	return out, nil
}

func (r resultRepo) List(filter domain.ResultFilter) ([]domain.RuleResult, error) {
	var rows []ruleResultModel
	q := r.tx.Where("tenant_id = ?", filter.TenantID)
	if filter.RuleRunID != "" {
		q = q.Where("rule_run_id = ?", filter.RuleRunID)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", string(filter.Status))
	}
	q = q.Order("created_at DESC").Order("rowid DESC")
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list rule results: %w", err)
	}
	out := make([]domain.RuleResult, 0, len(rows))
	for _, m := range rows {
		res, err := toRuleResult(m)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, nil
}

func toRuleResult(m ruleResultModel) (domain.RuleResult, error) {
	sev, err := domain.ParseSeverity(m.Severity)
	if err != nil {
		return domain.RuleResult{}, fmt.Errorf("load rule result %s: %w", m.ID, err)
	}
	status, err := domain.ParseResultStatus(m.Status)
	if err != nil {
		return domain.RuleResult{}, fmt.Errorf("load rule result %s: %w", m.ID, err)
	}
	kind, err := domain.ParseEntityKind(m.EntityType)
	if err != nil {
		return domain.RuleResult{}, fmt.Errorf("load rule result %s: %w", m.ID, err)
	}
	return domain.RuleResult{
		ID:         m.ID,
		RuleRunID:  m.RuleRunID,
		TenantID:   m.TenantID,
		SchoolID:   deref(m.SchoolID),
		RuleCode:   m.RuleCode,
		EntityType: kind,
		EntityID:   m.EntityID,
		Severity:   sev,
		Status:     status,
		Message:    m.Message,
		Details:    json.RawMessage(m.Details),
		CreatedAt:  m.CreatedAt,
	}, nil
}
