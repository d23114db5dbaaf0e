package sqlite

import (
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/atvirokodosprendimai/precheck/internal/core/domain"
)

type ruleRepo struct{ tx *gorm.DB }

func (r ruleRepo) Create(v domain.RuleVersion) error {
	m := fromRuleVersion(v)
	if err := r.tx.Create(&m).Error; err != nil {
		if isUniqueViolation(err) {
			return domain.Conflict("Rule version %s already exists", v.Code)
		}
		return fmt.Errorf("create rule version: %w", err)
	}
	return nil
}

func (r ruleRepo) Get(id string) (domain.RuleVersion, error) {
	var m ruleVersionModel
	if err := r.tx.Where("id = ?", id).First(&m).Error; err != nil {
		return domain.RuleVersion{}, notFound(err, "Rule version not found")
	}
	return toRuleVersion(m)
}

func (r ruleRepo) Visible(tenantID string) ([]domain.RuleVersion, error) {
	var rows []ruleVersionModel
	err := r.tx.Where("tenant_id = ? OR tenant_id IS NULL", tenantID).
		Order("code ASC").
		Order("tenant_id IS NULL ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list rule versions: %w", err)
	}
	out := make([]domain.RuleVersion, 0, len(rows))
	for _, m := range rows {
		v, err := toRuleVersion(m)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (r ruleRepo) UpsertGlobal(v domain.RuleVersion) (bool, error) {
	var existing ruleVersionModel
	err := r.tx.Where("tenant_id IS NULL AND code = ?", v.Code).First(&existing).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		m := fromRuleVersion(v)
		m.TenantID = nil
		if err := r.tx.Create(&m).Error; err != nil {
			return false, fmt.Errorf("create global rule version: %w", err)
		}
		return true, nil
	case err != nil:
		return false, fmt.Errorf("find global rule version: %w", err)
	}

	err = r.tx.Model(&ruleVersionModel{}).Where("id = ?", existing.ID).Updates(map[string]any{
		"title":       v.Title,
		"severity":    string(v.Severity),
		"applies_to":  string(v.AppliesTo),
		"dsl":         datatypes.JSON(v.DSL),
		"remediation": v.Remediation,
		"enabled":     v.Enabled,
		"updated_at":  v.UpdatedAt.UTC(),
	}).Error
	if err != nil {
		return false, fmt.Errorf("update global rule version: %w", err)
	}
	return false, nil
}

func fromRuleVersion(v domain.RuleVersion) ruleVersionModel {
	return ruleVersionModel{
		ID:          v.ID,
		TenantID:    nullable(v.TenantID),
		Code:        v.Code,
		Title:       v.Title,
		Severity:    string(v.Severity),
		AppliesTo:   string(v.AppliesTo),
		DSL:         datatypes.JSON(v.DSL),
		Remediation: v.Remediation,
		Enabled:     v.Enabled,
		CreatedAt:   v.CreatedAt.UTC(),
		UpdatedAt:   v.UpdatedAt.UTC(),
	}
}

func toRuleVersion(m ruleVersionModel) (domain.RuleVersion, error) {
	sev, err := domain.ParseSeverity(m.Severity)
	if err != nil {
		return domain.RuleVersion{}, fmt.Errorf("load rule version %s: %w", m.ID, err)
	}
	kind, err := domain.ParseEntityKind(m.AppliesTo)
	if err != nil {
		return domain.RuleVersion{}, fmt.Errorf("load rule version %s: %w", m.ID, err)
	}
	return domain.RuleVersion{
		ID:          m.ID,
		TenantID:    deref(m.TenantID),
		Code:        m.Code,
		Title:       m.Title,
		Severity:    sev,
		AppliesTo:   kind,
		DSL:         json.RawMessage(m.DSL),
		Remediation: m.Remediation,
		Enabled:     m.Enabled,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}, nil
}
