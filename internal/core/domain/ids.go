package domain

import (
	"regexp"

	"github.com/google/uuid"
)

var tenantPattern = regexp.MustCompile(`^[a-zA-Z0-9._:-]+$`)

func NewID() string {
	return uuid.NewString()
}

// ValidateID checks an entity identifier. Tenants may use readable slugs;
// every other entity uses UUIDs.
func ValidateID(kind, id string) error {
	if kind == "tenant" {
		if id == "" || len(id) > 128 || !tenantPattern.MatchString(id) {
			return Invalid("invalid tenant id")
		}
		return nil
	}
	if _, err := uuid.Parse(id); err != nil {
		return Invalid("invalid %s id %q", kind, id)
	}
	return nil
}
