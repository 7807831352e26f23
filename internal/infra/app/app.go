package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/arklim/tenant-access/internal/core/domain"
	"github.com/arklim/tenant-access/internal/core/port"
	"github.com/arklim/tenant-access/internal/infra/audit"
	"github.com/arklim/tenant-access/internal/infra/config"
	"github.com/arklim/tenant-access/internal/infra/database"
	kafkainfra "github.com/arklim/tenant-access/internal/infra/kafka"
	"github.com/arklim/tenant-access/internal/infra/logger"
	redisinfra "github.com/arklim/tenant-access/internal/infra/redis"
	"github.com/arklim/tenant-access/internal/infra/security"
	"github.com/arklim/tenant-access/internal/infra/telemetry"
	postgresrepo "github.com/arklim/tenant-access/internal/repository/postgres"
	redisrepo "github.com/arklim/tenant-access/internal/repository/redis"
	"github.com/arklim/tenant-access/internal/transport/http/middleware"
	"github.com/arklim/tenant-access/internal/transport/http/routes"
	"github.com/arklim/tenant-access/internal/usecase"
)

const (
	accessFallbackKID  = "dev-access"
	refreshFallbackKID = "dev-refresh"
	shutdownTimeout    = 10 * time.Second
)

// Application is the HTTP API process.
type Application struct {
	cfg       *config.AppConfig
	engine    *gin.Engine
	logger    *zap.Logger
	pool      *pgxpool.Pool
	redis     *redisinfra.Client
	telemetry *telemetry.Provider
}

func New(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	tel, err := telemetry.Attach(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	pool, err := database.NewPostgresPool(ctx, cfg.Postgres, log)
	if err != nil {
		return nil, fmt.Errorf("init postgres: %w", err)
	}

	partitions, err := tenantPartitions(cfg.Postgres)
	if err != nil {
		pool.Close()
		return nil, err
	}
	if err := database.EnsureSchemas(ctx, pool, postgresrepo.CatalogSchema, cfg.Postgres.SPDSchema, cfg.Postgres.SISSchema); err != nil {
		pool.Close()
		return nil, err
	}
	repos := postgresrepo.NewRepositories(pool, partitions)

	redisClient, err := redisinfra.NewClient(ctx, cfg.Redis, log)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("init redis: %w", err)
	}
	permissionCache := redisrepo.NewPermissionCache(redisClient.Client(), cfg.Redis.CachePrefix)

	accessKeys, err := security.NewKeyProvider(cfg.App.Env, cfg.JWT.AccessKeyDirectory, accessFallbackKID)
	if err != nil {
		closeAll(pool, redisClient)
		return nil, fmt.Errorf("init access key provider: %w", err)
	}
	refreshKeys, err := security.NewKeyProvider(cfg.App.Env, cfg.JWT.RefreshKeyDirectory, refreshFallbackKID)
	if err != nil {
		closeAll(pool, redisClient)
		return nil, fmt.Errorf("init refresh key provider: %w", err)
	}
	accessJWT := security.NewJWTManager(accessKeys).WithIssuer(cfg.JWT.Issuer)
	refreshJWT := security.NewJWTManager(refreshKeys).WithIssuer(cfg.JWT.Issuer)

	hasher, err := security.NewArgon2Hasher(security.Argon2Config{
		Memory:      cfg.Argon2.Memory,
		Iterations:  cfg.Argon2.Iterations,
		Parallelism: cfg.Argon2.Parallelism,
		SaltLength:  cfg.Argon2.SaltLength,
		KeyLength:   cfg.Argon2.KeyLength,
	})
	if err != nil {
		closeAll(pool, redisClient)
		return nil, fmt.Errorf("configure argon2: %w", err)
	}

	auditSink := audit.NewZapSink(log)
	outbox := usecase.NewEventOutbox(cfg.App.Name, cfg.App.Env)
	resolver := usecase.NewPermissionResolver(repos.Catalog, repos.Roles)

	sessions := usecase.NewSessionService(accessJWT, refreshJWT, repos.Tx, repos.Tokens, resolver, permissionCache, usecase.SessionConfig{
		AccessTTL:   cfg.JWT.AccessTokenTTL,
		RefreshTTL:  cfg.JWT.RefreshTokenTTL,
		LookupLimit: cfg.JWT.RefreshLookupLimit,
	}, log).WithAudit(auditSink)
	authService := usecase.NewAuthService(repos.Tx, repos.Users, repos.Roles, hasher, sessions, outbox, log).WithAudit(auditSink)
	roleService := usecase.NewRoleService(repos.Tx, repos.Roles, repos.Catalog, outbox, log).WithAudit(auditSink)
	catalogService := usecase.NewCatalogService(repos.Catalog, log).WithAudit(auditSink)
	authorizer := usecase.NewAuthorizer(repos.Roles, permissionCache, log)

	httpMetrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{Registerer: prometheus.DefaultRegisterer})
	if err != nil {
		closeAll(pool, redisClient)
		return nil, fmt.Errorf("init http metrics: %w", err)
	}

	throttleTTL := cfg.RateLimit.CredentialWindow * 2
	attempts := redisrepo.NewAttemptWindow(redisClient.Client(), cfg.RateLimit.KeyPrefix, throttleTTL)

	engine := routes.Register(routes.Dependencies{
		Config:   cfg,
		Logger:   log,
		Metrics:  httpMetrics,
		Throttle: middleware.NewThrottle(attempts, log),
		Burst:    middleware.NewBurstGuard(cfg.RateLimit.PerSecond, cfg.RateLimit.Burst),
		Tracing: middleware.Tracing(middleware.TracingOptions{
			Service:   cfg.Telemetry.ServiceName,
			SkipPaths: []string{"/healthz", "/readyz", "/metrics"},
		}),
		Services: routes.ServiceSet{
			Auth:     authService,
			Accounts: authService,
			Roles:    roleService,
			Catalog:  catalogService,
		},
		Verifier:   sessions,
		Authorizer: authorizer,
		Keys:       accessJWT,
		Database:   pool,
		Cache:      redisClient,
	})

	return &Application{
		cfg:       cfg,
		engine:    engine,
		logger:    log,
		pool:      pool,
		redis:     redisClient,
		telemetry: tel,
	}, nil
}

func (a *Application) Run(ctx context.Context) error {
	defer func() {
		_ = a.logger.Sync()
	}()
	defer closeAll(a.pool, a.redis)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := a.telemetry.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.cfg.App.Host, a.cfg.App.Port),
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.logger.Info("starting access API",
		zap.String("env", a.cfg.App.Env),
		zap.String("address", srv.Addr),
	)

	return serveUntilDone(ctx, srv)
}

// Relay is the outbox publisher process. It owns no HTTP API beyond the metrics endpoint.
type Relay struct {
	cfg       *config.AppConfig
	logger    *zap.Logger
	pool      *pgxpool.Pool
	publisher *usecase.OutboxPublisher
	channel   port.OutboxChannel
	metrics   *http.Server
}

func NewRelay(ctx context.Context, cfg *config.AppConfig) (*Relay, error) {
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	pool, err := database.NewPostgresPool(ctx, cfg.Postgres, log)
	if err != nil {
		return nil, fmt.Errorf("init postgres: %w", err)
	}

	partitions, err := tenantPartitions(cfg.Postgres)
	if err != nil {
		pool.Close()
		return nil, err
	}

	var channel port.OutboxChannel
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := kafkainfra.NewProducer(cfg.Kafka, log)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("init kafka producer: %w", err)
		}
		channel = producer
		log.Info("kafka outbox channel initialized", zap.Strings("brokers", cfg.Kafka.Brokers))
	} else {
		log.Warn("kafka brokers not configured, envelopes are logged and acknowledged without delivery")
		channel = kafkainfra.NewStubChannel(log)
	}

	registry := prometheus.NewRegistry()
	outboxMetrics, err := telemetry.NewOutboxMetrics(registry)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("init outbox metrics: %w", err)
	}

	publisher := usecase.NewOutboxPublisher(
		postgresrepo.NewOutboxRepository(pool, partitions),
		channel,
		outboxMetrics,
		cfg.Outbox.BatchSize,
		log,
	)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	return &Relay{
		cfg:       cfg,
		logger:    log,
		pool:      pool,
		publisher: publisher,
		channel:   channel,
		metrics: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Telemetry.MetricsPort),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}, nil
}

func (r *Relay) Run(ctx context.Context) error {
	defer func() {
		_ = r.logger.Sync()
	}()
	defer r.pool.Close()
	defer func() {
		if closer, ok := r.channel.(interface{ Close() error }); ok {
			if err := closer.Close(); err != nil {
				r.logger.Warn("close outbox channel", zap.Error(err))
			}
		}
	}()

	metricsErr := make(chan error, 1)
	go func() {
		metricsErr <- serveUntilDone(ctx, r.metrics)
	}()

	r.logger.Info("starting outbox relay",
		zap.Duration("interval", r.cfg.Outbox.Interval),
		zap.Int("batch_size", r.cfg.Outbox.BatchSize),
		zap.String("metrics_address", r.metrics.Addr),
	)

	if err := r.publisher.Run(ctx, r.cfg.Outbox.Interval); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("run outbox publisher: %w", err)
	}
	return <-metricsErr
}

// serveUntilDone runs srv until ctx is cancelled, then drains it.
func serveUntilDone(ctx context.Context, srv *http.Server) error {
	serverErrCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- fmt.Errorf("run server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	case err := <-serverErrCh:
		return err
	}
}

func tenantPartitions(cfg config.PostgresSettings) (postgresrepo.Partitions, error) {
	partitions, err := postgresrepo.NewPartitions(map[domain.Tenant]string{
		domain.TenantSPD: cfg.SPDSchema,
		domain.TenantSIS: cfg.SISSchema,
	})
	if err != nil {
		return postgresrepo.Partitions{}, fmt.Errorf("tenant partitions: %w", err)
	}
	return partitions, nil
}

func closeAll(pool *pgxpool.Pool, redis *redisinfra.Client) {
	if pool != nil {
		pool.Close()
	}
	if redis != nil {
		_ = redis.Close()
	}
}
