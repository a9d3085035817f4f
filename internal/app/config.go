package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/fakestore"
	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
)

// Драйверы хранилища локального состояния.
const (
	StorageDriverMemory   = "memory"
	StorageDriverFile     = "file"
	StorageDriverRedis    = "redis"
	StorageDriverPostgres = "postgres"
)

// Config описывает настройки запуска агента корзины.
type Config struct {
	APIBaseURL       string
	APITimeout       time.Duration
	APIRateLimit     float64
	APIRateBurst     int
	APIRetryAttempts int

	StorageDriver       string
	StorageDir          string
	RedisAddr           string
	RedisPassword       string
	RedisDB             int
	RedisTTL            time.Duration
	PostgresDSN         string
	PostgresNamespace   string
	PostgresAutoMigrate bool

	// KafkaBrokers — список брокеров через запятую; пусто отключает публикацию событий.
	KafkaBrokers       string
	KafkaTopic         string
	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxMaxAttempts  int
	OutboxRetryDelay   time.Duration
	OutboxMaxPending   int

	GRPCAddr    string
	MetricsAddr string

	// Username/Password используются для входа, если сохранённой сессии нет.
	Username string
	Password string

	SyncConcurrency   int
	SyncTimeout       time.Duration
	LookupConcurrency int
}

// DefaultConfig возвращает конфигурацию по умолчанию.
func DefaultConfig() Config {
	api := fakestore.DefaultConfig()
	return Config{
		APIBaseURL:       api.BaseURL,
		APITimeout:       api.Timeout,
		APIRateLimit:     api.RateLimit,
		APIRateBurst:     api.RateBurst,
		APIRetryAttempts: api.Retry.MaxAttempts,

		StorageDriver:       StorageDriverMemory,
		StorageDir:          ".storefront",
		RedisAddr:           "localhost:6379",
		PostgresNamespace:   "default",
		PostgresAutoMigrate: true,

		KafkaTopic:         kafka.TopicCartEvents,
		OutboxPollInterval: time.Second,
		OutboxBatchSize:    50,
		OutboxMaxAttempts:  3,
		OutboxRetryDelay:   100 * time.Millisecond,
		OutboxMaxPending:   10000,

		GRPCAddr:    ":50051",
		MetricsAddr: ":9090",

		SyncConcurrency:   4,
		SyncTimeout:       30 * time.Second,
		LookupConcurrency: 8,
	}
}

// Validate проверяет согласованность настроек перед запуском.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.APIBaseURL) == "" {
		errs = append(errs, errors.New("api base url is required"))
	}
	switch c.StorageDriver {
	case StorageDriverMemory:
	case StorageDriverFile:
		if strings.TrimSpace(c.StorageDir) == "" {
			errs = append(errs, errors.New("storage dir is required for file driver"))
		}
	case StorageDriverRedis:
		if strings.TrimSpace(c.RedisAddr) == "" {
			errs = append(errs, errors.New("redis addr is required for redis driver"))
		}
	case StorageDriverPostgres:
		if strings.TrimSpace(c.PostgresDSN) == "" {
			errs = append(errs, errors.New("postgres dsn is required for postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported storage driver %q", c.StorageDriver))
	}
	if (c.Username == "") != (c.Password == "") {
		errs = append(errs, errors.New("username and password must be set together"))
	}
	return errors.Join(errs...)
}

// Brokers разбирает KafkaBrokers.
func (c Config) Brokers() []string {
	var brokers []string
	for _, broker := range strings.Split(c.KafkaBrokers, ",") {
		if broker = strings.TrimSpace(broker); broker != "" {
			brokers = append(brokers, broker)
		}
	}
	return brokers
}

func (c Config) apiConfig() fakestore.Config {
	api := fakestore.DefaultConfig()
	api.BaseURL = c.APIBaseURL
	api.Timeout = c.APITimeout
	api.RateLimit = c.APIRateLimit
	api.RateBurst = c.APIRateBurst
	api.Retry.MaxAttempts = c.APIRetryAttempts
	return api
}
