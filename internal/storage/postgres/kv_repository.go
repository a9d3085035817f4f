package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const opTimeout = 5 * time.Second

// kvRepository хранит значения в таблице kv_store в разрезе namespace
// (например, отдельный namespace на инсталляцию агента).
type kvRepository struct {
	db        *sql.DB
	namespace string
}

// NewKeyValueRepository создаёт PostgreSQL-реализацию KeyValueStore.
func NewKeyValueRepository(store *Store, namespace string) domain.KeyValueStore {
	return &kvRepository{db: store.DB(), namespace: namespace}
}

func (r *kvRepository) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var value []byte
	err := r.db.QueryRowContext(ctx, `
		SELECT value
		FROM kv_store
		WHERE namespace = $1 AND key = $2
	`, r.namespace, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrKeyNotFound
		}
		return nil, fmt.Errorf("select kv %q: %w", key, err)
	}
	return value, nil
}

// Set делает upsert. Значение обязано быть валидным JSON (колонка JSONB).
func (r *kvRepository) Set(ctx context.Context, key string, value []byte) error {
	if !json.Valid(value) {
		return fmt.Errorf("kv %q: value is not valid json", key)
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO kv_store (namespace, key, value, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (namespace, key)
		DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at
	`, r.namespace, key, value); err != nil {
		return fmt.Errorf("upsert kv %q: %w", key, err)
	}
	return nil
}

func (r *kvRepository) Delete(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if _, err := r.db.ExecContext(ctx, `
		DELETE FROM kv_store WHERE namespace = $1 AND key = $2
	`, r.namespace, key); err != nil {
		return fmt.Errorf("delete kv %q: %w", key, err)
	}
	return nil
}

var _ domain.KeyValueStore = (*kvRepository)(nil)
