package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/vladislavdragonenkov/storefront/internal/app"
)

const (
	envAPIBaseURL          = "STOREFRONT_API_BASE_URL"
	envAPITimeout          = "STOREFRONT_API_TIMEOUT"
	envAPIRateLimit        = "STOREFRONT_API_RATE_LIMIT"
	envAPIRateBurst        = "STOREFRONT_API_RATE_BURST"
	envAPIRetryAttempts    = "STOREFRONT_API_RETRY_ATTEMPTS"
	envStorageDriver       = "STOREFRONT_STORAGE_DRIVER"
	envStorageDir          = "STOREFRONT_STORAGE_DIR"
	envRedisAddr           = "STOREFRONT_REDIS_ADDR"
	envRedisPassword       = "STOREFRONT_REDIS_PASSWORD"
	envRedisDB             = "STOREFRONT_REDIS_DB"
	envRedisTTL            = "STOREFRONT_REDIS_TTL"
	envPostgresDSN         = "STOREFRONT_POSTGRES_DSN"
	envPostgresNamespace   = "STOREFRONT_POSTGRES_NAMESPACE"
	envPostgresAutoMigrate = "STOREFRONT_POSTGRES_AUTO_MIGRATE"
	envKafkaBrokers        = "STOREFRONT_KAFKA_BROKERS"
	envKafkaTopic          = "STOREFRONT_KAFKA_TOPIC"
	envOutboxPollInterval  = "STOREFRONT_OUTBOX_POLL_INTERVAL"
	envOutboxBatchSize     = "STOREFRONT_OUTBOX_BATCH_SIZE"
	envOutboxMaxAttempts   = "STOREFRONT_OUTBOX_MAX_ATTEMPTS"
	envOutboxRetryDelay    = "STOREFRONT_OUTBOX_RETRY_DELAY"
	envOutboxMaxPending    = "STOREFRONT_OUTBOX_MAX_PENDING"
	envGRPCAddr            = "STOREFRONT_GRPC_ADDR"
	envMetricsAddr         = "STOREFRONT_METRICS_ADDR"
	envUsername            = "STOREFRONT_USERNAME"
	envPassword            = "STOREFRONT_PASSWORD"
	envSyncConcurrency     = "STOREFRONT_SYNC_CONCURRENCY"
	envSyncTimeout         = "STOREFRONT_SYNC_TIMEOUT"
	envLookupConcurrency   = "STOREFRONT_LOOKUP_CONCURRENCY"
)

type envLookup func(key string) (string, bool)

// configWarning — значение, которое не удалось применить; остаётся предыдущее.
type configWarning struct {
	key   string
	value string
	err   error
}

func (w configWarning) String() string {
	return fmt.Sprintf("%s=%q ignored: %v", w.key, w.value, w.err)
}

func positiveInt(v int) bool    { return v > 0 }
func nonNegativeInt(v int) bool { return v >= 0 }

func positiveDuration(v time.Duration) bool    { return v > 0 }
func nonNegativeDuration(v time.Duration) bool { return v >= 0 }

// readConfigFromEnv накладывает переменные окружения на конфигурацию по умолчанию.
func readConfigFromEnv(lookup envLookup) (app.Config, []configWarning) {
	return applyEnv(app.DefaultConfig(), lookup)
}

// applyEnv накладывает переменные окружения на base. Невалидные значения дают предупреждение.
func applyEnv(cfg app.Config, lookup envLookup) (app.Config, []configWarning) {
	var warnings []configWarning
	warn := func(key, value string, err error) {
		warnings = append(warnings, configWarning{key: key, value: value, err: err})
	}

	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	integer := func(key string, dst *int, valid func(int) bool, rule string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			parsed, err := parseInt(v, valid, rule)
			if err != nil {
				warn(key, v, err)
				return
			}
			*dst = parsed
		}
	}
	duration := func(key string, dst *time.Duration, valid func(time.Duration) bool, rule string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			parsed, err := parseDuration(v, valid, rule)
			if err != nil {
				warn(key, v, err)
				return
			}
			*dst = parsed
		}
	}

	str(envAPIBaseURL, &cfg.APIBaseURL)
	duration(envAPITimeout, &cfg.APITimeout, positiveDuration, "must be > 0")
	if v, ok := lookup(envAPIRateLimit); ok && strings.TrimSpace(v) != "" {
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		switch {
		case err != nil:
			warn(envAPIRateLimit, v, err)
		case parsed < 0:
			warn(envAPIRateLimit, v, fmt.Errorf("must be >= 0"))
		default:
			cfg.APIRateLimit = parsed
		}
	}
	integer(envAPIRateBurst, &cfg.APIRateBurst, positiveInt, "must be > 0")
	integer(envAPIRetryAttempts, &cfg.APIRetryAttempts, positiveInt, "must be > 0")

	if v, ok := lookup(envStorageDriver); ok && strings.TrimSpace(v) != "" {
		driver := strings.ToLower(strings.TrimSpace(v))
		switch driver {
		case app.StorageDriverMemory, app.StorageDriverFile, app.StorageDriverRedis, app.StorageDriverPostgres:
			cfg.StorageDriver = driver
		default:
			warn(envStorageDriver, v, fmt.Errorf("must be one of memory|file|redis|postgres"))
		}
	}
	str(envStorageDir, &cfg.StorageDir)
	str(envRedisAddr, &cfg.RedisAddr)
	str(envRedisPassword, &cfg.RedisPassword)
	integer(envRedisDB, &cfg.RedisDB, nonNegativeInt, "must be >= 0")
	duration(envRedisTTL, &cfg.RedisTTL, nonNegativeDuration, "must be >= 0")
	str(envPostgresDSN, &cfg.PostgresDSN)
	str(envPostgresNamespace, &cfg.PostgresNamespace)
	if v, ok := lookup(envPostgresAutoMigrate); ok && strings.TrimSpace(v) != "" {
		parsed, err := parseBool(v)
		if err != nil {
			warn(envPostgresAutoMigrate, v, err)
		} else {
			cfg.PostgresAutoMigrate = parsed
		}
	}

	str(envKafkaBrokers, &cfg.KafkaBrokers)
	str(envKafkaTopic, &cfg.KafkaTopic)
	duration(envOutboxPollInterval, &cfg.OutboxPollInterval, positiveDuration, "must be > 0")
	integer(envOutboxBatchSize, &cfg.OutboxBatchSize, positiveInt, "must be > 0")
	integer(envOutboxMaxAttempts, &cfg.OutboxMaxAttempts, positiveInt, "must be > 0")
	duration(envOutboxRetryDelay, &cfg.OutboxRetryDelay, nonNegativeDuration, "must be >= 0")
	integer(envOutboxMaxPending, &cfg.OutboxMaxPending, nonNegativeInt, "must be >= 0")

	str(envGRPCAddr, &cfg.GRPCAddr)
	str(envMetricsAddr, &cfg.MetricsAddr)
	str(envUsername, &cfg.Username)
	if v, ok := lookup(envPassword); ok && v != "" {
		cfg.Password = v
	}

	integer(envSyncConcurrency, &cfg.SyncConcurrency, positiveInt, "must be > 0")
	duration(envSyncTimeout, &cfg.SyncTimeout, positiveDuration, "must be > 0")
	integer(envLookupConcurrency, &cfg.LookupConcurrency, positiveInt, "must be > 0")

	return cfg, warnings
}

// loadConfigFile читает YAML/TOML/JSON файл через viper и накладывает его на base.
// Ключи файла повторяют имена переменных окружения без префикса в нижнем регистре
// (например, api_base_url, storage_driver).
func loadConfigFile(path string, base app.Config) (app.Config, []configWarning, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return base, nil, fmt.Errorf("read config file %s: %w", path, err)
	}

	values := make(map[string]string)
	for _, key := range v.AllKeys() {
		envKey := "STOREFRONT_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		values[envKey] = v.GetString(key)
	}

	cfg, warnings := applyEnv(base, func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	})
	return cfg, warnings, nil
}

func parseBool(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid bool value %q", raw)
	}
}

func parseInt(raw string, valid func(int) bool, rule string) (int, error) {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, err
	}
	if valid != nil && !valid(value) {
		return 0, fmt.Errorf("%d %s", value, rule)
	}
	return value, nil
}

func parseDuration(raw string, valid func(time.Duration) bool, rule string) (time.Duration, error) {
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, err
	}
	if valid != nil && !valid(value) {
		return 0, fmt.Errorf("%s %s", value, rule)
	}
	return value, nil
}
