// Package postgres хранит состояние корзины в PostgreSQL (таблица kv_store, JSONB).
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

var errNotInitialized = errors.New("postgres store is not initialized")

// poolConfig — параметры пула database/sql.
type poolConfig struct {
	connTimeout     time.Duration
	maxOpenConns    int
	maxIdleConns    int
	connMaxLifetime time.Duration
	connMaxIdleTime time.Duration
}

// Агенту корзины нужен маленький пул: запись идёт одним процессом.
func defaultPoolConfig() poolConfig {
	return poolConfig{
		connTimeout:     5 * time.Second,
		maxOpenConns:    4,
		maxIdleConns:    2,
		connMaxLifetime: 30 * time.Minute,
		connMaxIdleTime: 5 * time.Minute,
	}
}

// Option настраивает пул подключений.
type Option func(*poolConfig)

// WithMaxOpenConns ограничивает число открытых подключений.
func WithMaxOpenConns(n int) Option {
	return func(c *poolConfig) {
		if n > 0 {
			c.maxOpenConns = n
			if c.maxIdleConns > n {
				c.maxIdleConns = n
			}
		}
	}
}

// WithConnTimeout задаёт таймаут проверки подключения.
func WithConnTimeout(timeout time.Duration) Option {
	return func(c *poolConfig) {
		if timeout > 0 {
			c.connTimeout = timeout
		}
	}
}

// Store оборачивает SQL-подключение к PostgreSQL.
type Store struct {
	db          *sql.DB
	connTimeout time.Duration
}

// Open открывает подключение через pgx stdlib-драйвер и проверяет доступность базы.
func Open(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	cfg := defaultPoolConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}
	db.SetMaxOpenConns(cfg.maxOpenConns)
	db.SetMaxIdleConns(cfg.maxIdleConns)
	db.SetConnMaxLifetime(cfg.connMaxLifetime)
	db.SetConnMaxIdleTime(cfg.connMaxIdleTime)

	store := &Store{db: db, connTimeout: cfg.connTimeout}
	if err := store.Ping(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return store, nil
}

// DB возвращает raw SQL DB.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Ping проверяет доступность подключения (используется health-check агента).
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errNotInitialized
	}

	pingCtx, cancel := context.WithTimeout(ctx, s.connTimeout)
	defer cancel()
	return s.db.PingContext(pingCtx)
}

// Close закрывает подключение к БД.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
