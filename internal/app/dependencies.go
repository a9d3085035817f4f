package app

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/fakestore"
	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/storage"
	"github.com/vladislavdragonenkov/storefront/internal/storage/file"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
	"github.com/vladislavdragonenkov/storefront/internal/storage/postgres"
	"github.com/vladislavdragonenkov/storefront/internal/storage/redis"
)

// Dependencies содержит инфраструктуру агента, созданную по конфигурации.
type Dependencies struct {
	KV        domain.KeyValueStore
	Persister *storage.Persister
	Client    *fakestore.Client

	// OutboxRepo и Producer заданы только при настроенной Kafka.
	OutboxRepo domain.OutboxRepository
	Producer   *kafka.Producer

	CartMetrics   *metrics.CartMetrics
	OutboxMetrics *metrics.OutboxMetrics

	// StoragePing — проверка бэкенда для health; nil для memory.
	StoragePing func(ctx context.Context) error

	closers []func() error
	logger  *log.Entry
}

// kafkaProducerFactory подменяется в тестах.
var kafkaProducerFactory = kafka.NewProducer

// initRuntimeDependencies открывает хранилище, создаёт API-клиент и опционально producer Kafka.
// Ошибка Kafka не фатальна: агент работает без публикации событий.
func initRuntimeDependencies(ctx context.Context, cfg Config, registerer prometheus.Registerer, logger *log.Entry) (*Dependencies, error) {
	if logger == nil {
		logger = log.WithField("component", "app")
	}
	deps := &Dependencies{
		CartMetrics:   metrics.NewCartMetricsWithRegisterer(registerer),
		OutboxMetrics: metrics.NewOutboxMetricsWithRegisterer(registerer),
		logger:        logger,
	}

	kv, err := deps.openKeyValueStore(ctx, cfg)
	if err != nil {
		deps.release()
		return nil, err
	}
	deps.KV = kv
	deps.Persister = storage.NewPersister(kv, logger.WithField("layer", "storage"))

	client, err := fakestore.NewClient(cfg.apiConfig(),
		fakestore.WithLogger(logger.WithField("layer", "fakestore")),
		fakestore.WithMetrics(metrics.NewAPIMetricsWithRegisterer(registerer)),
	)
	if err != nil {
		deps.release()
		return nil, fmt.Errorf("create api client: %w", err)
	}
	deps.Client = client

	if brokers := cfg.Brokers(); len(brokers) > 0 {
		producer, err := kafkaProducerFactory(brokers)
		if err != nil {
			logger.WithError(err).Warn("failed to create kafka producer, continuing without cart events")
		} else {
			deps.Producer = producer
			deps.OutboxRepo = memory.NewOutboxRepository(cfg.OutboxMaxPending)
			deps.closers = append(deps.closers, producer.Close)
			logger.WithField("brokers", brokers).Info("kafka producer initialized")
		}
	}

	return deps, nil
}

func (d *Dependencies) openKeyValueStore(ctx context.Context, cfg Config) (domain.KeyValueStore, error) {
	switch cfg.StorageDriver {
	case StorageDriverMemory, "":
		return memory.NewKeyValueStore(), nil
	case StorageDriverFile:
		store, err := file.Open(cfg.StorageDir)
		if err != nil {
			return nil, err
		}
		d.StoragePing = func(context.Context) error {
			_, err := os.Stat(store.Dir())
			return err
		}
		return store, nil
	case StorageDriverRedis:
		store, err := redis.Open(ctx, redis.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			TTL:      cfg.RedisTTL,
		})
		if err != nil {
			return nil, err
		}
		d.StoragePing = store.Ping
		d.closers = append(d.closers, store.Close)
		return store, nil
	case StorageDriverPostgres:
		store, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		d.closers = append(d.closers, store.Close)
		if cfg.PostgresAutoMigrate {
			if err := store.MigrateUp(ctx, 0); err != nil {
				return nil, fmt.Errorf("apply postgres migrations: %w", err)
			}
		}
		d.StoragePing = store.Ping
		return postgres.NewKeyValueRepository(store, cfg.PostgresNamespace), nil
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}
}

// release закрывает частично собранные зависимости на пути ошибки.
// Ошибка закрытия только логируется: вызывающему важнее исходная причина.
func (d *Dependencies) release() {
	if err := d.Close(); err != nil {
		d.logger.WithError(err).Warn("failed to release dependencies")
	}
}

// Close освобождает ресурсы в обратном порядке создания.
func (d *Dependencies) Close() error {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	d.closers = nil
	return errors.Join(errs...)
}
