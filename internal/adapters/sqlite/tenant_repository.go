package sqlite

import (
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/atvirokodosprendimai/precheck/internal/core/domain"
)

type tenantRepo struct{ tx *gorm.DB }

func (r tenantRepo) Ensure(t domain.Tenant) error {
	if t.Timezone == "" {
		t.Timezone = "UTC"
	}
	model := tenantModel{ID: t.ID, Name: t.Name, Timezone: t.Timezone, CreatedAt: t.CreatedAt.UTC()}
	if err := r.tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&model).Error; err != nil {
		return fmt.Errorf("ensure tenant: %w", err)
	}
	return nil
}

func (r tenantRepo) Get(id string) (domain.Tenant, error) {
	var m tenantModel
	if err := r.tx.Where("id = ?", id).First(&m).Error; err != nil {
		return domain.Tenant{}, notFound(err, "Tenant not found")
	}
	return domain.Tenant{ID: m.ID, Name: m.Name, Timezone: m.Timezone, CreatedAt: m.CreatedAt}, nil
}

type userRepo struct{ tx *gorm.DB }

func (r userRepo) Create(u domain.User) error {
	model := userModel{
		ID:          u.ID,
		TenantID:    u.TenantID,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		Role:        string(u.Role),
		CreatedAt:   u.CreatedAt.UTC(),
	}
	if err := r.tx.Create(&model).Error; err != nil {
		if isUniqueViolation(err) {
			return domain.Conflict("User with email %s already exists", u.Email)
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (r userRepo) Get(tenantID, id string) (domain.User, error) {
	var m userModel
	if err := r.tx.Where("tenant_id = ? AND id = ?", tenantID, id).First(&m).Error; err != nil {
		return domain.User{}, notFound(err, "User not found")
	}
	return toUser(m)
}

func (r userRepo) List(tenantID string) ([]domain.User, error) {
	var rows []userModel
	if err := r.tx.Where("tenant_id = ?", tenantID).Order("email ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	out := make([]domain.User, 0, len(rows))
	for _, m := range rows {
		u, err := toUser(m)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, nil
}

func toUser(m userModel) (domain.User, error) {
	role, err := domain.ParseRole(m.Role)
	if err != nil {
		return domain.User{}, fmt.Errorf("load user %s: %w", m.ID, err)
	}
	return domain.User{
		ID:          m.ID,
		TenantID:    m.TenantID,
		Email:       m.Email,
		DisplayName: m.DisplayName,
		Role:        role,
		CreatedAt:   m.CreatedAt,
	}, nil
}
