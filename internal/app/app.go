package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	promgrpc "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/vladislavdragonenkov/storefront/internal/cart"
	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/fakestore"
	healthcheck "github.com/vladislavdragonenkov/storefront/internal/health"
	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/storefront/internal/service/dispatch"
	"github.com/vladislavdragonenkov/storefront/internal/service/events"
	"github.com/vladislavdragonenkov/storefront/internal/service/outbox"
	"github.com/vladislavdragonenkov/storefront/internal/session"
	"github.com/vladislavdragonenkov/storefront/internal/version"
)

const shutdownTimeout = 5 * time.Second

// Agent — собранный агент корзины: локальный store, движок синхронизации и сессия.
type Agent struct {
	Store      *cart.Store
	Engine     *cart.Engine
	Session    *session.Manager
	Client     *fakestore.Client
	Dispatcher *dispatch.Dispatcher
	Health     *healthcheck.Handler

	worker *outbox.Worker
	deps   *Dependencies
	logger *log.Entry
}

// NewAgent собирает агента по конфигурации. Метрики регистрируются в registerer.
func NewAgent(ctx context.Context, cfg Config, registerer prometheus.Registerer, logger *log.Entry) (*Agent, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = log.WithField("component", "app")
	}

	deps, err := initRuntimeDependencies(ctx, cfg, registerer, logger)
	if err != nil {
		return nil, err
	}

	dispatcher := dispatch.New(
		dispatch.WithConcurrency(cfg.SyncConcurrency),
		dispatch.WithTaskTimeout(cfg.SyncTimeout),
		dispatch.WithLogger(logger.WithField("layer", "dispatch")),
	)

	var publisher domain.EventPublisher = events.Noop{}
	var worker *outbox.Worker
	if deps.Producer != nil {
		publisher = events.NewOutboxPublisher(deps.OutboxRepo, logger.WithField("layer", "events"))
		worker = outbox.NewWorker(
			deps.OutboxRepo,
			kafka.NewOutboxPublisher(deps.Producer, cfg.KafkaTopic),
			outbox.WithDLQPublisher(kafka.NewOutboxPublisher(deps.Producer, kafka.TopicDeadLetterQueue)),
			outbox.WithLogger(logger.WithField("layer", "outbox")),
			outbox.WithMetrics(deps.OutboxMetrics),
			outbox.WithPollInterval(cfg.OutboxPollInterval),
			outbox.WithBatchSize(cfg.OutboxBatchSize),
			outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
			outbox.WithRetryBaseDelay(cfg.OutboxRetryDelay),
		)
	}

	store := cart.NewStore(deps.Persister,
		cart.WithStoreLogger(logger.WithField("layer", "cart-store")),
		cart.WithStoreMetrics(deps.CartMetrics),
	)
	engine := cart.NewEngine(store, deps.Client, deps.Client,
		cart.WithDispatcher(dispatcher),
		cart.WithEventPublisher(publisher),
		cart.WithMetrics(deps.CartMetrics),
		cart.WithLogger(logger.WithField("layer", "cart-engine")),
		cart.WithLookupConcurrency(cfg.LookupConcurrency),
	)
	sess := session.NewManager(deps.Client, engine, deps.Persister,
		session.WithLogger(logger.WithField("layer", "session")),
	)
	deps.Client.SetTokenSource(sess)

	healthHandler := healthcheck.NewHandler(version.GetVersion())
	if deps.StoragePing != nil {
		healthHandler.RegisterChecker("storage", healthcheck.NewSimpleChecker("storage", deps.StoragePing))
	}
	client := deps.Client
	healthHandler.RegisterChecker("remote_api", healthcheck.NewOptionalChecker("remote_api", func(context.Context) error {
		if state := client.BreakerState(); state == fakestore.CircuitOpen {
			return domain.ErrCircuitOpen
		}
		return nil
	}))

	return &Agent{
		Store:      store,
		Engine:     engine,
		Session:    sess,
		Client:     client,
		Dispatcher: dispatcher,
		Health:     healthHandler,
		worker:     worker,
		deps:       deps,
		logger:     logger,
	}, nil
}

// Start восстанавливает сессию, а при её отсутствии входит по учётным данным из конфигурации.
func (a *Agent) Start(ctx context.Context, cfg Config) {
	if a.Session.Init(ctx) {
		return
	}
	if cfg.Username == "" {
		a.logger.Info("no stored session and no credentials, cart stays local")
		return
	}
	if _, err := a.Session.Login(ctx, cfg.Username, cfg.Password); err != nil {
		a.logger.WithError(err).Warn("automatic login failed, cart stays local")
	}
}

// Close дожидается фоновых синхронизаций, отправляет оставшиеся события и закрывает инфраструктуру.
// Вызывается после остановки цикла outbox worker.
func (a *Agent) Close(ctx context.Context) error {
	var errs []error
	if err := a.Dispatcher.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("drain sync tasks: %w", err))
	}
	if a.worker != nil {
		a.worker.ProcessOnce(ctx)
	}
	if err := a.deps.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Run запускает агента, HTTP метрики/health и gRPC health до отмены ctx.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")

	agent, err := NewAgent(ctx, cfg, prometheus.DefaultRegisterer, logger)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := agent.Close(closeCtx); err != nil {
			logger.WithError(err).Warn("agent shutdown with error")
		}
	}()

	agent.Start(ctx, cfg)
	logger.WithFields(log.Fields{
		"authenticated": agent.Session.IsAuthenticated(),
		"user_id":       agent.Session.UserID(),
		"cart_lines":    agent.Store.UniqueItemsCount(),
		"cart_items":    agent.Store.TotalItems(),
	}).Info("cart agent started")

	var workerWG sync.WaitGroup
	workerCtx, stopWorker := context.WithCancel(ctx)
	defer func() {
		stopWorker()
		workerWG.Wait()
	}()
	if agent.worker != nil {
		workerWG.Add(1)
		go func() {
			defer workerWG.Done()
			agent.worker.Run(workerCtx)
		}()
	}

	grpcMetrics := promgrpc.NewServerMetrics()
	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(grpcMetrics.UnaryServerInterceptor()))
	if err := prometheus.Register(grpcMetrics); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok2 := are.ExistingCollector.(*promgrpc.ServerMetrics); ok2 {
				grpcMetrics = existing
			}
		} else {
			logger.WithError(err).Warn("failed to register grpc metrics")
		}
	}

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	grpcMetrics.InitializeMetrics(grpcServer)
	reflection.Register(grpcServer)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	metricsSrv, err := startMetricsServer(ctx, cfg.MetricsAddr, logger, agent.Health)
	if err != nil {
		return err
	}

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		shutdownHTTP(metricsSrv, logger)
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("gRPC health слушает %s", lis.Addr())
		errCh <- grpcServer.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем агента")
		healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
		stoppedCh := make(chan struct{})
		go func() {
			grpcServer.GracefulStop()
			close(stoppedCh)
		}()
		select {
		case <-stoppedCh:
		case <-time.After(shutdownTimeout):
			logger.Warn("graceful stop превысил таймаут, принудительно останавливаем")
			grpcServer.Stop()
		}
		shutdownHTTP(metricsSrv, logger)
		return ctx.Err()
	case err := <-errCh:
		shutdownHTTP(metricsSrv, logger)
		if errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return err
	}
}

// newHTTPMux собирает /metrics и пробы здоровья.
func newHTTPMux(healthHandler *healthcheck.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)
	return mux
}

// startMetricsServer занимает адрес синхронно, чтобы ошибка bind вернулась вызывающему.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, healthHandler *healthcheck.Handler) (*http.Server, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen metrics addr: %w", err)
	}

	srv := &http.Server{Handler: newHTTPMux(healthHandler), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", lis.Addr())
		logger.Infof("health checks: %s/healthz, %s/livez, %s/readyz", lis.Addr(), lis.Addr(), lis.Addr())
		if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, logger)
	}()

	return srv, nil
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("metrics shutdown with error")
	}
}
