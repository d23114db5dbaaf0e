package domain

import (
	"strings"
	"time"
)

type APIKey struct {
	TokenHash string
	TenantID  string
	Name      string
	UserID    string
	Active    bool
	CreatedAt time.Time
}

// Actor identifies who performed a mutating action. UserID is empty for
// API keys that are not bound to a user account.
type Actor struct {
	Name   string
	UserID string
}

func (a Actor) Label() string {
	if a.Name == "" {
		return "api"
	}
	return a.Name
}

type Role string

const (
	RoleAdmin    Role = "admin"
	RoleReviewer Role = "reviewer"
	RoleViewer   Role = "viewer"
)

func ParseRole(s string) (Role, error) {
	switch r := Role(strings.TrimSpace(s)); r {
	case RoleAdmin, RoleReviewer, RoleViewer:
		return r, nil
	}
	return "", Invalid("unknown role %q", s)
}

type Tenant struct {
	ID        string
	Name      string
	Timezone  string
	CreatedAt time.Time
}

type User struct {
	ID          string
	TenantID    string
	Email       string
	DisplayName string
	Role        Role
	CreatedAt   time.Time
}

func (u User) Validate() error {
	if err := ValidateID("tenant", u.TenantID); err != nil {
		return err
	}
	if !strings.Contains(u.Email, "@") {
		return Invalid("email must be a valid address")
	}
	if _, err := ParseRole(string(u.Role)); err != nil {
		return err
	}
	return nil
}
