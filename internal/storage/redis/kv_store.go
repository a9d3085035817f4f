// Package redis реализует key-value хранилище корзины поверх Redis.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const (
	defaultKeyPrefix   = "storefront:"
	defaultDialTimeout = 5 * time.Second
)

// Config задаёт подключение к Redis.
type Config struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
	// TTL > 0 ограничивает время жизни ключей (брошенные корзины истекают сами).
	TTL time.Duration
}

// Store хранит значения под ключами `<prefix><key>`.
type Store struct {
	client    *goredis.Client
	keyPrefix string
	ttl       time.Duration
}

// Open подключается к Redis и проверяет соединение.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis addr is required")
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: defaultDialTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, defaultDialTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return NewWithClient(client, cfg.KeyPrefix, cfg.TTL), nil
}

// NewWithClient создаёт хранилище поверх готового клиента.
func NewWithClient(client *goredis.Client, keyPrefix string, ttl time.Duration) *Store {
	if keyPrefix == "" {
		keyPrefix = defaultKeyPrefix
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Store{client: client, keyPrefix: keyPrefix, ttl: ttl}
}

// Get читает значение; redis.Nil превращается в ErrKeyNotFound.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := s.client.Get(ctx, s.keyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, domain.ErrKeyNotFound
		}
		return nil, fmt.Errorf("redis get %q: %w", key, err)
	}
	return value, nil
}

// Set пишет значение с TTL хранилища (0 — без истечения).
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	if err := s.client.Set(ctx, s.keyPrefix+key, value, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %q: %w", key, err)
	}
	return nil
}

// Delete удаляет ключ.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("redis del %q: %w", key, err)
	}
	return nil
}

// Ping проверяет доступность Redis (для health-check).
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close закрывает клиент.
func (s *Store) Close() error {
	return s.client.Close()
}

var _ domain.KeyValueStore = (*Store)(nil)
