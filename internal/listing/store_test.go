package listing

import (
	"context"
	"errors"
	"testing"

	"github.com/alanchelmickjr/price-is-right-sub000/internal/shared"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	store := NewStore(db)
	if err := store.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return store
}

func TestStore_CreateDefaults(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	l := &Listing{OwnerID: "user-1", Title: "Desk Lamp", PriceCents: 2500}
	if err := store.Create(ctx, l); err != nil {
		t.Fatalf("create: %v", err)
	}
	if l.ID == "" {
		t.Error("listing should get an id")
	}
	if l.Status != shared.ListingStatusDraft {
		t.Errorf("expected draft status, got %s", l.Status)
	}
	if l.Currency != "USD" {
		t.Errorf("expected USD default, got %s", l.Currency)
	}
}

func TestStore_GetByID(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	l := &Listing{OwnerID: "user-1", Title: "Chair", Tags: shared.StringSlice{"vintage", "oak"}}
	if err := store.Create(ctx, l); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := store.GetByID(ctx, l.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Title != "Chair" {
		t.Errorf("expected Chair, got %s", got.Title)
	}
	if len(got.Tags) != 2 || got.Tags[0] != "vintage" {
		t.Errorf("tags lost in round trip: %v", got.Tags)
	}

	if _, err := store.GetByID(ctx, "missing"); !errors.Is(err, shared.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStore_ListByOwner(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		store.Create(ctx, &Listing{OwnerID: "user-1", Title: "Item"})
	}
	store.Create(ctx, &Listing{OwnerID: "user-2", Title: "Other"})

	listings, err := store.ListByOwner(ctx, "user-1", 10, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(listings) != 3 {
		t.Errorf("expected 3 listings, got %d", len(listings))
	}
}

func TestStore_Delete(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	l := &Listing{OwnerID: "user-1", Title: "Gone"}
	store.Create(ctx, l)

	if err := store.Delete(ctx, l.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := store.Delete(ctx, l.ID); !errors.Is(err, shared.ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}
}
