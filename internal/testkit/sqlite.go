// Package testkit opens migrated databases for package tests.
package testkit

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/atvirokodosprendimai/precheck/internal/adapters/sqlite/gormsqlite"
	"github.com/atvirokodosprendimai/precheck/internal/core/domain"
	"github.com/atvirokodosprendimai/precheck/migrations"
)

// OpenDB returns a migrated database in a temp dir, closed on cleanup.
func OpenDB(t testing.TB) *gormsqlite.DB {
	t.Helper()
	db, err := gormsqlite.Open(filepath.Join(t.TempDir(), "precheck.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	sqlDB, err := db.WriteSQLDB()
	if err != nil {
		t.Fatalf("write sql db: %v", err)
	}
	if err := migrations.Up(context.Background(), sqlDB); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// SeedTenant inserts a tenant row directly.
func SeedTenant(t testing.TB, db *gormsqlite.DB, id string) {
	t.Helper()
	err := db.WriteTX(context.Background(), func(tx *gormsqlite.Tx) error {
		return tx.Exec("INSERT INTO tenants (id, name, timezone, created_at) VALUES (?, ?, 'UTC', ?)",
			id, id, time.Now().UTC()).Error
	})
	if err != nil {
		t.Fatalf("seed tenant %s: %v", id, err)
	}
}

// Clock returns a deterministic clock that advances one second per call.
func Clock(start time.Time) func() time.Time {
	now := start.Add(-time.Second)
	return func() time.Time {
		now = now.Add(time.Second)
		return now
	}
}

// Actor is a convenience API actor without a bound user.
var Actor = domain.Actor{Name: "test"}
