package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/atvirokodosprendimai/precheck/internal/adapters/sqlite/gormsqlite"
	"github.com/atvirokodosprendimai/precheck/internal/core/domain"
	"github.com/atvirokodosprendimai/precheck/internal/core/ports"
	"github.com/atvirokodosprendimai/precheck/internal/testkit"
)

func newRule(tenantID, code string, now time.Time) domain.RuleVersion {
	return domain.RuleVersion{
		ID:        domain.NewID(),
		TenantID:  tenantID,
		Code:      code,
		Title:     code + " title",
		Severity:  domain.SeverityError,
		AppliesTo: domain.EntityStudent,
		DSL:       json.RawMessage(`{"type":"grade_range","min":0,"max":12}`),
		Enabled:   true,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestRuleVisibilityAndScopedUniqueness(t *testing.T) {
	db := testkit.OpenDB(t)
	testkit.SeedTenant(t, db, "district-a")
	testkit.SeedTenant(t, db, "district-b")
	store := NewStore(db)
	ctx := context.Background()
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	err := store.Write(ctx, func(tx ports.Tx) error {
		if err := tx.Rules().Create(newRule("district-a", "B-RULE", now)); err != nil {
			return err
		}
		if err := tx.Rules().Create(newRule("district-b", "B-RULE", now)); err != nil {
			return err
		}
		_, err := tx.Rules().UpsertGlobal(newRule("", "A-GLOBAL", now))
		return err
	})
	if err != nil {
		t.Fatalf("seed rules: %v", err)
	}

	err = store.Write(ctx, func(tx ports.Tx) error {
		return tx.Rules().Create(newRule("district-a", "B-RULE", now))
	})
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict for duplicate tenant code, got %v", err)
	}

	var visible []domain.RuleVersion
	if err := store.Read(ctx, func(tx ports.Tx) error {
		var err error
		visible, err = tx.Rules().Visible("district-a")
		return err
	}); err != nil {
		t.Fatalf("visible: %v", err)
	}
	if len(visible) != 2 || visible[0].Code != "A-GLOBAL" || visible[1].Code != "B-RULE" {
		t.Fatalf("unexpected visible rules: %+v", visible)
	}
	if !visible[0].Global() || visible[1].TenantID != "district-a" {
		t.Fatalf("unexpected ownership: %+v", visible)
	}
}

func TestUpsertGlobalRefreshesExistingCode(t *testing.T) {
	db := testkit.OpenDB(t)
	store := NewStore(db)
	ctx := context.Background()
	now := time.Now().UTC()

	var created []bool
	for _, title := range []string{"first", "second"} {
		r := newRule("", "G-1", now)
		r.Title = title
		err := store.Write(ctx, func(tx ports.Tx) error {
			ok, err := tx.Rules().UpsertGlobal(r)
			created = append(created, ok)
			return err
		})
		if err != nil {
			t.Fatalf("upsert %s: %v", title, err)
		}
	}
	if !created[0] || created[1] {
		t.Fatalf("expected create then update, got %v", created)
	}

	testkit.SeedTenant(t, db, "district-a")
	var visible []domain.RuleVersion
	_ = store.Read(ctx, func(tx ports.Tx) error {
		var err error
		visible, err = tx.Rules().Visible("district-a")
		return err
	})
	if len(visible) != 1 || visible[0].Title != "second" {
		t.Fatalf("expected refreshed global rule, got %+v", visible)
	}
}

func TestDeletingTenantDetachesRuleVersions(t *testing.T) {
	db := testkit.OpenDB(t)
	testkit.SeedTenant(t, db, "district-a")
	store := NewStore(db)
	ctx := context.Background()
	rule := newRule("district-a", "LOCAL", time.Now())

	if err := store.Write(ctx, func(tx ports.Tx) error { return tx.Rules().Create(rule) }); err != nil {
		t.Fatalf("create rule: %v", err)
	}
	if err := db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Exec("DELETE FROM tenants WHERE id = ?", "district-a").Error
	}); err != nil {
		t.Fatalf("delete tenant: %v", err)
	}

	var got domain.RuleVersion
	if err := store.Read(ctx, func(tx ports.Tx) error {
		var err error
		got, err = tx.Rules().Get(rule.ID)
		return err
	}); err != nil {
		t.Fatalf("get rule: %v", err)
	}
	if !got.Global() {
		t.Fatalf("expected rule to become global, got tenant %q", got.TenantID)
	}
}

func TestDeletingTenantDropsRulesShadowedByGlobal(t *testing.T) {
	db := testkit.OpenDB(t)
	testkit.SeedTenant(t, db, "district-a")
	store := NewStore(db)
	ctx := context.Background()
	now := time.Now()
	local := newRule("district-a", "GRADE_RANGE", now)
	unique := newRule("district-a", "LOCAL_ONLY", now)

	err := store.Write(ctx, func(tx ports.Tx) error {
		if err := tx.Rules().Create(local); err != nil {
			return err
		}
		if err := tx.Rules().Create(unique); err != nil {
			return err
		}
		_, err := tx.Rules().UpsertGlobal(newRule("", "GRADE_RANGE", now))
		return err
	})
	if err != nil {
		t.Fatalf("seed rules: %v", err)
	}

	if err := db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Exec("DELETE FROM tenants WHERE id = ?", "district-a").Error
	}); err != nil {
		t.Fatalf("delete tenant: %v", err)
	}

	err = store.Read(ctx, func(tx ports.Tx) error {
		if _, err := tx.Rules().Get(local.ID); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected shadowed rule to be dropped, got %v", err)
		}
		got, err := tx.Rules().Get(unique.ID)
		if err != nil {
			return err
		}
		if !got.Global() {
			t.Fatalf("expected rule to become global, got tenant %q", got.TenantID)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("read rules: %v", err)
	}
}

func TestStudentUpsertAndSchoolMatching(t *testing.T) {
	db := testkit.OpenDB(t)
	testkit.SeedTenant(t, db, "district-a")
	store := NewStore(db)
	ctx := context.Background()
	now := time.Now().UTC()

	var createdFirst, createdSecond bool
	err := store.Write(ctx, func(tx ports.Tx) error {
		school, err := tx.Schools().FindOrCreate("district-a", "North High", now)
		if err != nil {
			return err
		}
		_, createdFirst, err = tx.Students().Upsert("district-a", school.ID, domain.StudentInput{SISID: "S1", GradeLevel: 9, SchoolName: "North High"}, now)
		if err != nil {
			return err
		}
		again, err := tx.Schools().FindOrCreate("district-a", "north high", now)
		if err != nil {
			return err
		}
		if again.ID != school.ID {
			t.Errorf("expected case-insensitive school match")
		}
		_, createdSecond, err = tx.Students().Upsert("district-a", school.ID, domain.StudentInput{SISID: "S1", GradeLevel: 10, SchoolName: "North High"}, now)
		return err
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if !createdFirst || createdSecond {
		t.Fatalf("expected create then update, got %v %v", createdFirst, createdSecond)
	}

	var students []domain.Student
	_ = store.Read(ctx, func(tx ports.Tx) error {
		var err error
		students, err = tx.Students().List("district-a", 0)
		return err
	})
	if len(students) != 1 || students[0].GradeLevel == nil || *students[0].GradeLevel != 10 {
		t.Fatalf("unexpected students: %+v", students)
	}
	if students[0].EnrollmentStatus != "active" {
		t.Fatalf("expected default enrollment status, got %q", students[0].EnrollmentStatus)
	}
}

func TestAuditAppendQueuesOutboxEvent(t *testing.T) {
	db := testkit.OpenDB(t)
	testkit.SeedTenant(t, db, "district-a")
	store := NewStore(db)
	ctx := context.Background()

	err := store.Write(ctx, func(tx ports.Tx) error {
		_, err := tx.Audit().Append(domain.AuditEntry{
			TenantID:   "district-a",
			Actor:      "tester",
			Action:     domain.ActionRuleRunTrigger,
			EntityType: "RuleRun",
			EntityID:   "run-1",
			Metadata:   json.RawMessage(`{"k":"v"}`),
			OccurredAt: time.Now().Add(-time.Second),
		})
		return err
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	outbox := NewOutboxRepository(db)
	pending, err := outbox.FetchPending(ctx, 10)
	if err != nil {
		t.Fatalf("fetch pending: %v", err)
	}
	if len(pending) != 1 || pending[0].Topic != "audit.district-a.RULE_RUN_TRIGGER" {
		t.Fatalf("unexpected outbox rows: %+v", pending)
	}
	if err := outbox.MarkDead(ctx, pending[0].ID, 5, "boom"); err != nil {
		t.Fatalf("mark dead: %v", err)
	}
	n, err := outbox.Pending(ctx)
	if err != nil || n != 0 {
		t.Fatalf("expected no pending rows, got %d (%v)", n, err)
	}

	var entries []domain.AuditEntry
	_ = store.Read(ctx, func(tx ports.Tx) error {
		var err error
		entries, err = tx.Audit().List(domain.AuditFilter{TenantID: "district-a", Limit: 10})
		return err
	})
	if len(entries) != 1 || string(entries[0].Metadata) != `{"k":"v"}` {
		t.Fatalf("unexpected audit entries: %+v", entries)
	}
}

func TestWriteRollsBackOnError(t *testing.T) {
	db := testkit.OpenDB(t)
	testkit.SeedTenant(t, db, "district-a")
	store := NewStore(db)
	ctx := context.Background()
	boom := errors.New("boom")

	err := store.Write(ctx, func(tx ports.Tx) error {
		if _, err := tx.Audit().Append(domain.AuditEntry{TenantID: "district-a", Action: "X", OccurredAt: time.Now()}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	var entries []domain.AuditEntry
	_ = store.Read(ctx, func(tx ports.Tx) error {
		var err error
		entries, err = tx.Audit().List(domain.AuditFilter{TenantID: "district-a"})
		return err
	})
	if len(entries) != 0 {
		t.Fatalf("expected rollback, got %d entries", len(entries))
	}
}

func TestKeyRepositoryBindsOnlyDistrictUsers(t *testing.T) {
	db := testkit.OpenDB(t)
	testkit.SeedTenant(t, db, "district-a")
	testkit.SeedTenant(t, db, "district-b")
	store := NewStore(db)
	keys := NewKeyRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	err := store.Write(ctx, func(tx ports.Tx) error {
		return tx.Users().Create(domain.User{ID: "u-1", TenantID: "district-a", Email: "a@district.test", Role: domain.RoleReviewer, CreatedAt: now})
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	err = keys.Upsert(ctx, domain.APIKey{TokenHash: "h-b", TenantID: "district-b", Name: "stray", UserID: "u-1", Active: true, CreatedAt: now})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error for cross-district user, got %v", err)
	}
	if _, err := keys.FindByTokenHash(ctx, "h-b"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected rejected key to be absent, got %v", err)
	}

	if err := keys.Upsert(ctx, domain.APIKey{TokenHash: "h-a", TenantID: "district-a", Name: "reviewer", UserID: "u-1", Active: true, CreatedAt: now}); err != nil {
		t.Fatalf("issue key: %v", err)
	}
	if err := keys.Upsert(ctx, domain.APIKey{TokenHash: "h-a", TenantID: "district-a", Name: "reviewer", UserID: "u-1", Active: false, CreatedAt: now}); err != nil {
		t.Fatalf("reissue key: %v", err)
	}
	got, err := keys.FindByTokenHash(ctx, "h-a")
	if err != nil {
		t.Fatalf("find key: %v", err)
	}
	if got.UserID != "u-1" || got.TenantID != "district-a" || got.Active {
		t.Fatalf("unexpected key %+v", got)
	}
}
