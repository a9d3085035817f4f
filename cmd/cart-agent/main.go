package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/app"
	"github.com/vladislavdragonenkov/storefront/internal/version"
)

// setupLogger настраивает формат и уровень логирования для агента.
func setupLogger() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(log.InfoLevel)
	if level, err := log.ParseLevel(os.Getenv("STOREFRONT_LOG_LEVEL")); err == nil {
		log.SetLevel(level)
	}
}

// readConfig: значения по умолчанию, затем файл (-config), затем окружение.
func readConfig(configPath string) (app.Config, error) {
	cfg := app.DefaultConfig()
	var warnings []configWarning

	if configPath != "" {
		fromFile, fileWarnings, err := loadConfigFile(configPath, cfg)
		if err != nil {
			return cfg, err
		}
		cfg = fromFile
		warnings = append(warnings, fileWarnings...)
	}

	cfg, envWarnings := applyEnv(cfg, os.LookupEnv)
	warnings = append(warnings, envWarnings...)
	for _, w := range warnings {
		log.WithField("key", w.key).Warn(w.String())
	}
	return cfg, nil
}

func main() {
	configPath := flag.String("config", "", "path to config file (yaml, toml or json)")
	flag.Parse()

	setupLogger()
	cfg, err := readConfig(*configPath)
	if err != nil {
		log.WithError(err).Fatal("не удалось прочитать конфигурацию")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(log.Fields{
		"version":        version.GetVersion(),
		"api_base_url":   cfg.APIBaseURL,
		"storage_driver": cfg.StorageDriver,
		"grpc_addr":      cfg.GRPCAddr,
		"metrics_addr":   cfg.MetricsAddr,
		"kafka_enabled":  cfg.KafkaBrokers != "",
	}).Info("запускаем cart agent")

	if err := app.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("агент завершился с ошибкой")
	}

	log.Info("cart agent остановлен")
}
