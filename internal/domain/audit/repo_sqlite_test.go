package audit

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/impilo-health/impilo/internal/platform/db"
)

func testDB(t *testing.T) *sql.DB {
	t.Helper()
	sqlDB, err := db.Open(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() })
	if _, err := db.Migrate(context.Background(), sqlDB); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return sqlDB
}

func TestRepoInsertAndGet(t *testing.T) {
	repo := NewRepoSQLite(testDB(t))
	ctx := context.Background()

	e := &Entry{
		ID:                 "e1",
		ActorID:            "user-1",
		ActorType:          "user",
		Action:             "link_created",
		ResourceType:       "secure_link",
		ResourceID:         "link_abc",
		Details:            "{}",
		ComplianceCategory: CategoryDataSharing,
		RecordedAt:         time.Now().UTC(),
	}
	if err := repo.Insert(ctx, e); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	got, err := repo.GetByID(ctx, "e1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Action != "link_created" || got.ActorID != "user-1" {
		t.Errorf("unexpected entry: %+v", got)
	}
}

func TestRepoSearchWithFilters(t *testing.T) {
	repo := NewRepoSQLite(testDB(t))
	ctx := context.Background()
	now := time.Now().UTC()

	seed := []*Entry{
		{ID: "e1", ActorID: "a", Action: "login", Details: "{}", ComplianceCategory: CategoryAuth, RecordedAt: now.Add(-2 * time.Hour)},
		{ID: "e2", ActorID: "a", Action: "link_created", Details: "{}", ComplianceCategory: CategoryDataSharing, RecordedAt: now.Add(-time.Hour)},
		{ID: "e3", ActorID: "b", Action: "login", Details: "{}", ComplianceCategory: CategoryAuth, RecordedAt: now},
	}
	for _, e := range seed {
		if err := repo.Insert(ctx, e); err != nil {
			t.Fatalf("Insert %s: %v", e.ID, err)
		}
	}

	items, total, err := repo.Search(ctx, SearchFilters{Action: "login"}, 10, 0)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if total != 2 || len(items) != 2 {
		t.Fatalf("got %d items (total %d), want 2", len(items), total)
	}
	// Most recent first.
	if items[0].ID != "e3" {
		t.Errorf("first item = %s, want e3", items[0].ID)
	}

	from := now.Add(-30 * time.Minute)
	items, total, err = repo.Search(ctx, SearchFilters{From: &from}, 10, 0)
	if err != nil {
		t.Fatalf("Search with from: %v", err)
	}
	if total != 1 || items[0].ID != "e3" {
		t.Errorf("from filter: got total %d, want 1 (e3)", total)
	}
}

func TestRepoStats(t *testing.T) {
	repo := NewRepoSQLite(testDB(t))
	ctx := context.Background()
	now := time.Now().UTC()

	for _, e := range []*Entry{
		{ID: "e1", ActorID: "a", Action: "login", Details: "{}", ComplianceCategory: CategoryAuth, RecordedAt: now},
		{ID: "e2", ActorID: "a", Action: "login", Details: "{}", ComplianceCategory: CategoryAuth, RecordedAt: now},
		{ID: "e3", ActorID: "b", Action: "link_created", Details: "{}", ComplianceCategory: CategoryDataSharing, RecordedAt: now},
	} {
		if err := repo.Insert(ctx, e); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	stats, err := repo.Stats(ctx, SearchFilters{})
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.TotalEntries != 3 {
		t.Errorf("total = %d, want 3", stats.TotalEntries)
	}
	if stats.DistinctActors != 2 {
		t.Errorf("distinct actors = %d, want 2", stats.DistinctActors)
	}
	if stats.ByAction["login"] != 2 {
		t.Errorf("login count = %d, want 2", stats.ByAction["login"])
	}
	if stats.ByCategory[CategoryDataSharing] != 1 {
		t.Errorf("data sharing count = %d, want 1", stats.ByCategory[CategoryDataSharing])
	}
}
