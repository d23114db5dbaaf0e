package usecase

import (
	"encoding/json"
	"fmt"

	"github.com/atvirokodosprendimai/precheck/internal/core/domain"
)

// UpgradeStep rewrites an audit payload from schema version From to From+1.
type UpgradeStep struct {
	From  int
	Apply func(payload json.RawMessage) (json.RawMessage, error)
}

// WrapBareMetadata lifts version 0 payloads, which carried the audit metadata
// object directly, into the {"audit_id","metadata"} shape of version 1.
var WrapBareMetadata = UpgradeStep{
	From: 0,
	Apply: func(payload json.RawMessage) (json.RawMessage, error) {
		if len(payload) == 0 {
			payload = json.RawMessage(`{}`)
		}
		return json.Marshal(struct {
			AuditID  string          `json:"audit_id"`
			Metadata json.RawMessage `json:"metadata"`
		}{Metadata: payload})
	},
}

// EnvelopeUpgrader brings stored audit envelopes up to the schema version
// subscribers expect before they are replayed.
type EnvelopeUpgrader struct {
	steps map[int]UpgradeStep
}

func NewEnvelopeUpgrader(steps ...UpgradeStep) *EnvelopeUpgrader {
	u := &EnvelopeUpgrader{steps: make(map[int]UpgradeStep, len(steps))}
	for _, s := range steps {
		u.steps[s.From] = s
	}
	return u
}

// Upgrade applies steps until env reaches domain.CurrentEventSchemaVersion.
// Envelopes written by a newer release are refused rather than guessed at.
func (u *EnvelopeUpgrader) Upgrade(env domain.EventEnvelope) (domain.EventEnvelope, error) {
	if env.SchemaVersion > domain.CurrentEventSchemaVersion {
		return domain.EventEnvelope{}, fmt.Errorf("audit event %s has schema version %d, this build reads up to %d",
			env.EventID, env.SchemaVersion, domain.CurrentEventSchemaVersion)
	}
	for env.SchemaVersion < domain.CurrentEventSchemaVersion {
		step, ok := u.steps[env.SchemaVersion]
		if !ok {
			return domain.EventEnvelope{}, fmt.Errorf("no upgrade from audit schema version %d", env.SchemaVersion)
		}
		payload, err := step.Apply(env.Payload)
		if err != nil {
			return domain.EventEnvelope{}, fmt.Errorf("upgrade audit event %s from version %d: %w", env.EventID, step.From, err)
		}
		env.Payload = payload
		env.SchemaVersion++
	}
	return env, nil
}
