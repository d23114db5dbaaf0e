package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/atvirokodosprendimai/precheck/internal/adapters/sqlite/gormsqlite"
	"github.com/atvirokodosprendimai/precheck/internal/core/domain"
	"github.com/atvirokodosprendimai/precheck/internal/core/ports"
)

// Store implements ports.Store over the gormsqlite read/write pools.
type Store struct {
	db *gormsqlite.DB
}

func NewStore(db *gormsqlite.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Read(ctx context.Context, fn func(ports.Tx) error) error {
	return s.db.ReadTX(ctx, func(tx *gormsqlite.Tx) error {
		return fn(&txRepos{tx: tx.DB})
	})
}

func (s *Store) Write(ctx context.Context, fn func(ports.Tx) error) error {
	return s.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		return fn(&txRepos{tx: tx.DB})
	})
}

type txRepos struct {
	tx *gorm.DB
}

func (t *txRepos) Tenants() ports.TenantRepository       { return tenantRepo{t.tx} }
func (t *txRepos) Users() ports.UserRepository           { return userRepo{t.tx} }
func (t *txRepos) Schools() ports.SchoolRepository       { return schoolRepo{t.tx} }
func (t *txRepos) Students() ports.StudentRepository     { return studentRepo{t.tx} }
func (t *txRepos) Rules() ports.RuleRepository           { return ruleRepo{t.tx} }
func (t *txRepos) Runs() ports.RunRepository             { return runRepo{t.tx} }
func (t *txRepos) Results() ports.ResultRepository       { return resultRepo{t.tx} }
func (t *txRepos) Exceptions() ports.ExceptionRepository { return exceptionRepo{t.tx} }
func (t *txRepos) Evidence() ports.EvidenceRepository    { return evidenceRepo{t.tx} }
func (t *txRepos) Audit() ports.AuditRepository          { return auditRepo{t.tx} }
func (t *txRepos) Ingest() ports.IngestRepository        { return ingestRepo{t.tx} }

var (
	_ ports.Store = (*Store)(nil)
	_ ports.Tx    = (*txRepos)(nil)
)

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

// notFound maps gorm's missing-row error to a domain NotFound with msg.
func notFound(err error, msg string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.NotFound("%s", msg)
	}
	return err
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func mustJSON(v any) datatypes.JSON {
	b, _ := json.Marshal(v)
	return datatypes.JSON(b)
}
