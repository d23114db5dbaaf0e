package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/atvirokodosprendimai/precheck/internal/core/domain"
	"github.com/atvirokodosprendimai/precheck/internal/core/ports"
	"github.com/atvirokodosprendimai/precheck/internal/core/rules"
)

// RuleVersionInput is the authoring payload for a rule version.
type RuleVersionInput struct {
	Code        string
	Title       string
	Severity    string
	AppliesTo   string
	DSL         json.RawMessage
	Remediation string
	Enabled     *bool
}

// CatalogService owns rule versions: tenant authoring, visibility and the
// file-backed global catalog.
type CatalogService struct {
	store ports.Store
	now   func() time.Time
}

func NewCatalogService(store ports.Store) *CatalogService {
	return &CatalogService{store: store, now: time.Now}
}

func (s *CatalogService) Create(ctx context.Context, tenantID string, actor domain.Actor, in RuleVersionInput) (domain.RuleVersion, error) {
	if err := domain.ValidateID("tenant", tenantID); err != nil {
		return domain.RuleVersion{}, err
	}
	v, err := s.build(in)
	if err != nil {
		return domain.RuleVersion{}, err
	}
	v.TenantID = tenantID

	err = s.store.Write(ctx, func(tx ports.Tx) error {
		if err := tx.Rules().Create(v); err != nil {
			return err
		}
		return appendAudit(tx, tenantID, actor, domain.ActionRuleVersionCreate, "RuleVersion", v.ID,
			map[string]any{"code": v.Code, "severity": v.Severity}, v.CreatedAt)
	})
	if err != nil {
		return domain.RuleVersion{}, err
	}
	return v, nil
}

// List returns the versions visible to tenantID, ordered by code.
func (s *CatalogService) List(ctx context.Context, tenantID string) ([]domain.RuleVersion, error) {
	if err := domain.ValidateID("tenant", tenantID); err != nil {
		return nil, err
	}
	var out []domain.RuleVersion
	err := s.store.Read(ctx, func(tx ports.Tx) error {
		var err error
		out, err = tx.Rules().Visible(tenantID)
		return err
	})
	return out, err
}

// SyncGlobal upserts global versions keyed by code. It returns how many
// codes were newly created.
func (s *CatalogService) SyncGlobal(ctx context.Context, inputs []RuleVersionInput) (int, error) {
	versions := make([]domain.RuleVersion, 0, len(inputs))
	seen := make(map[string]bool, len(inputs))
	for _, in := range inputs {
		v, err := s.build(in)
		if err != nil {
			return 0, fmt.Errorf("rule %s: %w", in.Code, err)
		}
		if seen[v.Code] {
			return 0, domain.Invalid("duplicate rule code %s in catalog", v.Code)
		}
		seen[v.Code] = true
		versions = append(versions, v)
	}

	created := 0
	err := s.store.Write(ctx, func(tx ports.Tx) error {
		for _, v := range versions {
			ok, err := tx.Rules().UpsertGlobal(v)
			if err != nil {
				return err
			}
			if ok {
				created++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return created, nil
}

func (s *CatalogService) build(in RuleVersionInput) (domain.RuleVersion, error) {
	now := s.now().UTC()
	enabled := true
	if in.Enabled != nil {
		enabled = *in.Enabled
	}
	applies := in.AppliesTo
	if strings.TrimSpace(applies) == "" {
		applies = string(domain.EntityStudent)
	}
	v := domain.RuleVersion{
		ID:          domain.NewID(),
		Code:        strings.TrimSpace(in.Code),
		Title:       strings.TrimSpace(in.Title),
		Severity:    domain.Severity(strings.TrimSpace(in.Severity)),
		AppliesTo:   domain.EntityKind(applies),
		DSL:         in.DSL,
		Remediation: in.Remediation,
		Enabled:     enabled,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := v.Validate(); err != nil {
		return domain.RuleVersion{}, err
	}
	if _, err := rules.Check(v.DSL); err != nil {
		return domain.RuleVersion{}, err
	}
	return v, nil
}
