package docstore

import (
	"context"
	"fmt"
	"testing"

	"github.com/lumasites/lumasites-backend/pkg/db"
	pkgerrors "github.com/lumasites/lumasites-backend/pkg/errors"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestStore(t *testing.T) *GormStore {
	t.Helper()

	// A named per-test database: "file::memory:?cache=shared" is one
	// process-wide DB, so rows created by one test leak into the next.
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=busy_timeout(5000)", t.Name())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := conn.AutoMigrate(&record{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	store, err := NewGormStore(db.NewWithConn(conn))
	if err != nil {
		t.Fatalf("NewGormStore: %v", err)
	}
	return store
}

func TestCreateAndGetRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	ref := Ref{SiteKey: "demo", Kind: "product", ID: "p1"}

	doc := Document{
		"title":      "Espresso",
		"mediaItems": []any{map[string]any{"url": "https://cdn/x.jpg", "type": "image"}},
	}
	if err := store.Create(ctx, ref, doc); err != nil {
		t.Fatalf("Create: %v", err)
	}

	loaded, err := store.Get(ctx, ref)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if loaded["title"] != "Espresso" {
		t.Fatalf("unexpected title %v", loaded["title"])
	}
	items, ok := loaded["mediaItems"].([]any)
	if !ok || len(items) != 1 {
		t.Fatalf("mediaItems not preserved: %v", loaded["mediaItems"])
	}
}

func TestGetMissingReturnsNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Get(context.Background(), Ref{SiteKey: "demo", Kind: "product", ID: "missing"})
	if !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestApplyMergesAndDeletesFields(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	ref := Ref{SiteKey: "demo", Kind: "product", ID: "p1"}

	if err := store.Create(ctx, ref, Document{"title": "Old", "stale": true}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	patch := Document{
		"title":     "New",
		"mediaURL":  "https://cdn/a.jpg",
		"mediaType": "image",
		"stale":     nil,
	}
	if err := store.Apply(ctx, ref, patch); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	loaded, err := store.Get(ctx, ref)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if loaded["title"] != "New" || loaded["mediaURL"] != "https://cdn/a.jpg" {
		t.Fatalf("patch not applied: %v", loaded)
	}
	if _, exists := loaded["stale"]; exists {
		t.Fatal("nil patch value should delete the field")
	}
}

func TestApplyMissingDocumentFails(t *testing.T) {
	store := newTestStore(t)

	err := store.Apply(context.Background(), Ref{SiteKey: "demo", Kind: "product", ID: "nope"}, Document{"a": 1})
	if !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestDeleteReturnsLastContents(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	ref := Ref{SiteKey: "demo", Kind: "hero", ID: "main"}

	if err := store.Create(ctx, ref, Document{"mediaPaths": []any{"sites/demo/hero/main/0.jpg"}}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	deleted, err := store.Delete(ctx, ref)
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	paths, ok := deleted["mediaPaths"].([]any)
	if !ok || len(paths) != 1 {
		t.Fatalf("expected deleted doc to carry mediaPaths: %v", deleted)
	}

	if _, err := store.Get(ctx, ref); !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
}

func TestListScopedBySiteAndKind(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	refs := []Ref{
		{SiteKey: "demo", Kind: "staff", ID: "a"},
		{SiteKey: "demo", Kind: "staff", ID: "b"},
		{SiteKey: "other", Kind: "staff", ID: "c"},
		{SiteKey: "demo", Kind: "product", ID: "d"},
	}
	for _, ref := range refs {
		if err := store.Create(ctx, ref, Document{"name": ref.ID}); err != nil {
			t.Fatalf("Create %s: %v", ref, err)
		}
	}

	entries, err := store.List(ctx, "demo", "staff")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	for _, entry := range entries {
		if entry.Ref.SiteKey != "demo" || entry.Ref.Kind != "staff" {
			t.Fatalf("entry out of scope: %v", entry.Ref)
		}
	}
}
