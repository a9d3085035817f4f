package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func TestKeyValueRepository_Integration_UpsertAndDelete(t *testing.T) {
	store := openMigratedStore(t)
	repo := NewKeyValueRepository(store, "agent-a")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := repo.Get(ctx, "cart"); !errors.Is(err, domain.ErrKeyNotFound) {
		t.Fatalf("expected ErrKeyNotFound, got %v", err)
	}

	if err := repo.Set(ctx, "cart", []byte(`[{"id":1,"quantity":2}]`)); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := repo.Set(ctx, "cart", []byte(`[{"id":1,"quantity":3}]`)); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err := repo.Get(ctx, "cart")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	// JSONB переформатирует документ, сравниваем по содержимому.
	var lines []struct {
		ID       int `json:"id"`
		Quantity int `json:"quantity"`
	}
	if err := json.Unmarshal(got, &lines); err != nil {
		t.Fatalf("decode stored value: %v", err)
	}
	if len(lines) != 1 || lines[0].ID != 1 || lines[0].Quantity != 3 {
		t.Fatalf("unexpected value: %s", got)
	}

	if err := repo.Delete(ctx, "cart"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := repo.Get(ctx, "cart"); !errors.Is(err, domain.ErrKeyNotFound) {
		t.Fatalf("expected ErrKeyNotFound after delete, got %v", err)
	}
}

func TestKeyValueRepository_Integration_NamespacesAreIsolated(t *testing.T) {
	store := openMigratedStore(t)
	a := NewKeyValueRepository(store, "agent-a")
	b := NewKeyValueRepository(store, "agent-b")
	ctx := context.Background()

	if err := a.Set(ctx, "username", []byte(`"johnd"`)); err != nil {
		t.Fatalf("set a: %v", err)
	}
	if _, err := b.Get(ctx, "username"); !errors.Is(err, domain.ErrKeyNotFound) {
		t.Fatalf("namespace b must not see a's key, got %v", err)
	}
}

func TestKeyValueRepository_Integration_RejectsInvalidJSON(t *testing.T) {
	store := openMigratedStore(t)
	repo := NewKeyValueRepository(store, "agent-a")

	if err := repo.Set(context.Background(), "cart", []byte("not-json")); err == nil {
		t.Fatal("expected error for invalid json")
	}
}

func TestMigrator_Integration_UpDownStatus(t *testing.T) {
	store := openStore(t)
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := store.MigrateUp(ctx, 0); err != nil {
		t.Fatalf("migrate up: %v", err)
	}
	version, count, err := store.MigrationStatus(ctx)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if version != 2 || count != 2 {
		t.Fatalf("unexpected status after up: version=%d count=%d", version, count)
	}

	if err := store.MigrateDown(ctx, 1); err != nil {
		t.Fatalf("migrate down: %v", err)
	}
	version, _, err = store.MigrationStatus(ctx)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if version != 1 {
		t.Fatalf("expected version 1 after rollback, got %d", version)
	}

	if err := store.MigrateUp(ctx, 0); err != nil {
		t.Fatalf("migrate up again: %v", err)
	}
}
