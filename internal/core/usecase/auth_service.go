package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/atvirokodosprendimai/precheck/internal/core/domain"
	"github.com/atvirokodosprendimai/precheck/internal/core/ports"
)

var ErrUnauthorized = errors.New("unauthorized")

type AuthService struct {
	repo    ports.APIKeyRepository
	tenants ports.Store
}

func NewAuthService(repo ports.APIKeyRepository, tenants ports.Store) *AuthService {
	return &AuthService{repo: repo, tenants: tenants}
}

func (s *AuthService) Authenticate(ctx context.Context, token string) (domain.APIKey, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.APIKey{}, ErrUnauthorized
	}

	hash := HashToken(token)
	apiKey, err := s.repo.FindByTokenHash(ctx, hash)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.APIKey{}, ErrUnauthorized
		}
		return domain.APIKey{}, err
	}
	if !apiKey.Active {
		return domain.APIKey{}, ErrUnauthorized
	}
	return apiKey, nil
}

// Issue stores a new key for tenantID, creating the tenant row when missing.
func (s *AuthService) Issue(ctx context.Context, token string, key domain.APIKey) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.Invalid("api key token is required")
	}
	if err := domain.ValidateID("tenant", key.TenantID); err != nil {
		return err
	}
	key.TokenHash = HashToken(token)
	if key.CreatedAt.IsZero() {
		key.CreatedAt = time.Now().UTC()
	}
	if s.tenants != nil {
		if err := s.tenants.Write(ctx, func(tx ports.Tx) error {
			return tx.Tenants().Ensure(domain.Tenant{ID: key.TenantID, Name: key.TenantID, CreatedAt: key.CreatedAt})
		}); err != nil {
			return fmt.Errorf("ensure tenant: %w", err)
		}
	}
	return s.repo.Upsert(ctx, key)
}

// ActorFor maps an authenticated key to the identity recorded in audit rows.
func ActorFor(key domain.APIKey) domain.Actor {
	return domain.Actor{Name: key.Name, UserID: key.UserID}
}

func HashToken(token string) string {
	digest := sha256.Sum256([]byte(token))
	return hex.EncodeToString(digest[:])
}
