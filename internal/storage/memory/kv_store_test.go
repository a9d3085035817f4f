package memory_test

import (
	"context"
	"errors"
	"testing"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

func TestKeyValueStore_SetGetDelete(t *testing.T) {
	ctx := context.Background()
	store := memory.NewKeyValueStore()

	if _, err := store.Get(ctx, "cart"); !errors.Is(err, domain.ErrKeyNotFound) {
		t.Fatalf("expected ErrKeyNotFound, got %v", err)
	}

	buf := []byte(`[{"id":1}]`)
	if err := store.Set(ctx, "cart", buf); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	buf[0] = 'x'

	got, err := store.Get(ctx, "cart")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if string(got) != `[{"id":1}]` {
		t.Fatalf("stored value must not alias caller buffer, got %s", got)
	}

	if err := store.Delete(ctx, "cart"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if err := store.Delete(ctx, "cart"); err != nil {
		t.Fatalf("second delete must be a no-op, got %v", err)
	}
	if store.Keys() != 0 {
		t.Fatalf("expected empty store, got %d keys", store.Keys())
	}
}
