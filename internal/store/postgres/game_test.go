package postgres_test

import (
	"context"
	"errors"
	"testing"

	"github.com/MitchForest/settlers-sub000/internal/clock"
	"github.com/MitchForest/settlers-sub000/internal/store"
	"github.com/MitchForest/settlers-sub000/internal/store/postgres"
)

func TestGameRepo_CreateAndGet(t *testing.T) {
	db := newTestDB(t)
	repo := postgres.NewGameRepo(db, clock.Real{})
	ctx := context.Background()

	g := &store.Game{Code: "ABCD", HostID: "host-1", Status: "created", Substatus: "awaiting_host"}
	if err := repo.Create(ctx, g); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if g.ID == "" {
		t.Fatal("Create did not assign an id")
	}

	byID, err := repo.GetByID(ctx, g.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if byID.Code != "ABCD" {
		t.Errorf("Code = %q, want ABCD", byID.Code)
	}

	byCode, err := repo.GetByCode(ctx, "ABCD")
	if err != nil {
		t.Fatalf("GetByCode: %v", err)
	}
	if byCode.ID != g.ID {
		t.Errorf("GetByCode id = %q, want %q", byCode.ID, g.ID)
	}
}

func TestGameRepo_DuplicateCode(t *testing.T) {
	db := newTestDB(t)
	repo := postgres.NewGameRepo(db, clock.Real{})
	ctx := context.Background()

	if err := repo.Create(ctx, &store.Game{Code: "ABCD", HostID: "h", Status: "created", Substatus: "awaiting_host"}); err != nil {
		t.Fatalf("first Create: %v", err)
	}
	err := repo.Create(ctx, &store.Game{Code: "ABCD", HostID: "h2", Status: "created", Substatus: "awaiting_host"})
	if err == nil {
		t.Fatal("expected error for duplicate game code")
	}
}

func TestGameRepo_UpdateStatus(t *testing.T) {
	db := newTestDB(t)
	repo := postgres.NewGameRepo(db, clock.Real{})
	ctx := context.Background()

	g := &store.Game{Code: "ABCD", HostID: "h", Status: "created", Substatus: "awaiting_host"}
	if err := repo.Create(ctx, g); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := repo.UpdateStatus(ctx, g.ID, "active", "roll"); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}

	got, err := repo.GetByID(ctx, g.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != "active" || got.Substatus != "roll" {
		t.Errorf("status = %s/%s, want active/roll", got.Status, got.Substatus)
	}

	if err := repo.UpdateStatus(ctx, "missing", "active", "roll"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("UpdateStatus(missing) error = %v, want ErrNotFound", err)
	}
}

func TestGameRepo_ListActive(t *testing.T) {
	db := newTestDB(t)
	repo := postgres.NewGameRepo(db, clock.Real{})
	ctx := context.Background()

	for _, g := range []*store.Game{
		{Code: "AAAA", HostID: "h", Status: "active", Substatus: "roll"},
		{Code: "BBBB", HostID: "h", Status: "ended", Substatus: "completed"},
		{Code: "CCCC", HostID: "h", Status: "lobby", Substatus: "open"},
	} {
		if err := repo.Create(ctx, g); err != nil {
			t.Fatalf("Create(%s): %v", g.Code, err)
		}
	}

	active, err := repo.ListActive(ctx)
	if err != nil {
		t.Fatalf("ListActive: %v", err)
	}
	if len(active) != 2 {
		t.Errorf("ListActive returned %d games, want 2", len(active))
	}
}
