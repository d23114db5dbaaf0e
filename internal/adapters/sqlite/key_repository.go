package sqlite

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/atvirokodosprendimai/precheck/internal/adapters/sqlite/gormsqlite"
	"github.com/atvirokodosprendimai/precheck/internal/core/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type districtKeyRow struct {
	TokenHash string    `gorm:"column:token_hash;primaryKey"`
	TenantID  string    `gorm:"column:tenant_id;not null"`
	Name      string    `gorm:"column:name;not null"`
	UserID    *string   `gorm:"column:user_id"`
	Active    bool      `gorm:"column:active;not null"`
	CreatedAt time.Time `gorm:"column:created_at;not null"`
}

func (districtKeyRow) TableName() string { return "api_keys" }

// KeyRepository stores district API keys by token digest. Lookups run outside
// the unit of work because every authenticated request performs one.
type KeyRepository struct {
	db *gormsqlite.DB
}

func NewKeyRepository(db *gormsqlite.DB) *KeyRepository {
	return &KeyRepository{db: db}
}

func (r *KeyRepository) FindByTokenHash(ctx context.Context, tokenHash string) (domain.APIKey, error) {
	var row districtKeyRow
	err := r.db.ReadTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Where("token_hash = ?", tokenHash).Take(&row).Error
	})
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return domain.APIKey{}, domain.ErrNotFound
	case err != nil:
		return domain.APIKey{}, fmt.Errorf("look up district key: %w", err)
	}
	return row.toDomain(), nil
}

// Upsert issues or reissues a key. A key bound to a user must name a user of
// the same district, otherwise role lookups would resolve across tenants.
func (r *KeyRepository) Upsert(ctx context.Context, key domain.APIKey) error {
	row := districtKeyRow{
		TokenHash: key.TokenHash,
		TenantID:  key.TenantID,
		Name:      key.Name,
		UserID:    nullable(key.UserID),
		Active:    key.Active,
		CreatedAt: key.CreatedAt,
	}
	return r.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		if row.UserID != nil {
			var n int64
			if err := tx.Model(&userModel{}).Where("id = ? AND tenant_id = ?", *row.UserID, row.TenantID).Count(&n).Error; err != nil {
				return fmt.Errorf("check key user: %w", err)
			}
			if n == 0 {
				return domain.Invalid("user %q is not a member of district %q", *row.UserID, row.TenantID)
			}
		}
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "token_hash"}},
			DoUpdates: clause.AssignmentColumns([]string{"tenant_id", "name", "user_id", "active"}),
		}).Create(&row).Error
		if err != nil {
			return fmt.Errorf("store district key: %w", err)
		}
		return nil
	})
}

func (m districtKeyRow) toDomain() domain.APIKey {
	return domain.APIKey{
		TokenHash: m.TokenHash,
		TenantID:  m.TenantID,
		Name:      m.Name,
		UserID:    deref(m.UserID),
		Active:    m.Active,
		CreatedAt: m.CreatedAt,
	}
}
