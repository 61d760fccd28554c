package db

import (
	"context"
	"testing"
)

func TestMigrate_AppliesOnce(t *testing.T) {
	sqlDB, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer sqlDB.Close()

	ctx := context.Background()
	n, err := Migrate(ctx, sqlDB)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if n == 0 {
		t.Error("expected at least one migration applied")
	}

	// Second run is a no-op.
	n, err = Migrate(ctx, sqlDB)
	if err != nil {
		t.Fatalf("second migrate: %v", err)
	}
	if n != 0 {
		t.Errorf("expected 0 migrations on rerun, got %d", n)
	}

	// Core tables exist.
	for _, table := range []string{"secure_links", "patient_authorizations", "audit_log", "users"} {
		var name string
		err := sqlDB.QueryRow(
			`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
		if err != nil {
			t.Errorf("table %s missing: %v", table, err)
		}
	}
}

func TestStatus_ReportsApplied(t *testing.T) {
	sqlDB, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer sqlDB.Close()

	ctx := context.Background()
	statuses, err := Status(ctx, sqlDB)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	for _, s := range statuses {
		if s.Applied {
			t.Errorf("migration %s reported applied before migrate", s.Name)
		}
	}

	if _, err := Migrate(ctx, sqlDB); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	statuses, err = Status(ctx, sqlDB)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	for _, s := range statuses {
		if !s.Applied {
			t.Errorf("migration %s not applied", s.Name)
		}
		if s.AppliedAt == nil {
			t.Errorf("migration %s missing applied_at", s.Name)
		}
	}
}

func TestHealth(t *testing.T) {
	sqlDB, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer sqlDB.Close()

	if err := Health(context.Background(), sqlDB); err != nil {
		t.Errorf("unexpected health error: %v", err)
	}
}
