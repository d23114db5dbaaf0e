package gormsqlite

import (
	"context"
	"strings"
	"testing"
)

func TestBuildDSNIncludesPerConnectionPragmas(t *testing.T) {
	reader := buildDSN("./db.sqlite", true)
	writer := buildDSN("./db.sqlite", false)

	checks := []string{
		"_pragma=journal_mode(WAL)",
		"_pragma=synchronous(NORMAL)",
		"_pragma=foreign_keys(1)",
		"_pragma=busy_timeout(5000)",
		"_pragma=trusted_schema(OFF)",
	}
	for _, c := range checks {
		if !strings.Contains(reader, c) {
			t.Fatalf("reader dsn missing %q: %s", c, reader)
		}
		if !strings.Contains(writer, c) {
			t.Fatalf("writer dsn missing %q: %s", c, writer)
		}
	}

	if !strings.Contains(reader, "_pragma=query_only(1)") {
		t.Fatalf("reader dsn missing query_only(1): %s", reader)
	}
	if !strings.Contains(writer, "_pragma=query_only(0)") {
		t.Fatalf("writer dsn missing query_only(0): %s", writer)
	}
}

func TestBuildDSNAppendsToExistingQuery(t *testing.T) {
	dsn := buildDSN("file:test.db?mode=rwc", false)
	if !strings.HasPrefix(dsn, "file:test.db?mode=rwc&") {
		t.Fatalf("expected existing query to be preserved: %s", dsn)
	}
	if !strings.Contains(dsn, "_time_format=sqlite") {
		t.Fatalf("dsn missing time format: %s", dsn)
	}
}

func TestOpenAndWriteTX(t *testing.T) {
	db, err := Open(t.TempDir() + "/gorm.db")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	if err := db.WriteTX(ctx, func(tx *Tx) error {
		return tx.Exec("CREATE TABLE t (v INTEGER)").Error
	}); err != nil {
		t.Fatalf("create table: %v", err)
	}
	if err := db.WriteTX(ctx, func(tx *Tx) error {
		return tx.Exec("INSERT INTO t (v) VALUES (1)").Error
	}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	err = db.ReadTX(ctx, func(tx *Tx) error {
		return tx.Exec("INSERT INTO t (v) VALUES (2)").Error
	})
	if err == nil {
		t.Fatal("expected read pool to reject writes")
	}

	var n int64
	if err := db.ReadTX(ctx, func(tx *Tx) error {
		return tx.Raw("SELECT COUNT(*) FROM t").Scan(&n).Error
	}); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 row, got %d", n)
	}
}
