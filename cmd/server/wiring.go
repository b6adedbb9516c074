package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	appevent "github.com/mandi/backend/internal/application/event"
	ledgerapp "github.com/mandi/backend/internal/application/ledger"
	"github.com/mandi/backend/internal/application/notification"
	"github.com/mandi/backend/internal/application/payment"
	"github.com/mandi/backend/internal/domain/ledger"
	"github.com/mandi/backend/internal/domain/shared"
	"github.com/mandi/backend/internal/infrastructure/auth"
	"github.com/mandi/backend/internal/infrastructure/cache"
	"github.com/mandi/backend/internal/infrastructure/config"
	"github.com/mandi/backend/internal/infrastructure/event"
	"github.com/mandi/backend/internal/infrastructure/logger"
	"github.com/mandi/backend/internal/infrastructure/notify"
	"github.com/mandi/backend/internal/infrastructure/persistence"
	"github.com/mandi/backend/internal/infrastructure/scheduler"
	"github.com/mandi/backend/internal/infrastructure/storage"
	"github.com/mandi/backend/internal/infrastructure/telemetry"
	"github.com/mandi/backend/internal/interfaces/http/handler"
	"github.com/mandi/backend/internal/interfaces/http/middleware"
	"github.com/mandi/backend/internal/interfaces/http/router"
)

// app owns every long lived component of the server
type app struct {
	log    *zap.Logger
	engine *gin.Engine

	// closers run in reverse order on shutdown
	closers []func(context.Context) error
}

func (a *app) onClose(fn func(context.Context) error) {
	a.closers = append(a.closers, fn)
}

func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			a.log.Error("Shutdown step failed", zap.Error(err))
		}
	}
	_ = a.log.Sync()
}

func newApp(ctx context.Context, cfg *config.Config, baseLog *zap.Logger) (*app, error) {
	a := &app{log: baseLog}
	ok := false
	defer func() {
		if !ok {
			a.close()
		}
	}()

	meter, err := a.setupTelemetry(ctx, cfg)
	if err != nil {
		return nil, err
	}
	log := a.log
	log.Info("Starting mandi backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
	)

	db, err := persistence.NewDatabase(&cfg.Database, log, logger.MapGormLogLevel(cfg.Log.GormLog))
	if err != nil {
		return nil, err
	}
	a.onClose(func(context.Context) error { return db.Close() })
	if err := telemetry.RegisterDBTracing(db.DB, telemetry.DBTracingConfig{
		Enabled:         cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled,
		LogFullSQL:      cfg.Telemetry.DBLogFullSQL,
		SlowQueryThresh: cfg.Telemetry.DBSlowQueryThresh,
		DBName:          cfg.Database.DBName,
	}, log); err != nil {
		return nil, err
	}
	log.Info("Database connected")

	var ledgerMetrics *telemetry.LedgerMetrics
	if meter != nil {
		if ledgerMetrics, err = telemetry.NewLedgerMetrics(meter); err != nil {
			return nil, err
		}
	}

	serializer := event.NewEventSerializer()
	event.RegisterLedgerEvents(serializer)
	outboxRepo := persistence.NewGormOutboxRepository(db.DB)
	txManager := persistence.NewTransactionManager(db.DB, persistence.TxOptions{
		Isolation:    cfg.Payment.IsolationLevel(),
		MaxRetries:   cfg.Payment.MaxRetries,
		RetryBackoff: cfg.Payment.RetryBackoff,
	})
	recorder := payment.NewRecorder(
		txManager,
		persistence.NewTenantGuard(db.DB),
		persistence.NewGormPaymentRepository(db.DB),
		persistence.NewGormPaymentRequestRepository(db.DB),
		event.NewOutboxPublisher(outboxRepo, serializer),
		[]payment.PartyLedger{persistence.NewVendorLedger(db.DB), persistence.NewRetailerLedger(db.DB)},
		payment.WithMetrics(ledgerMetrics),
		payment.WithIsolation(cfg.Payment.IsolationLevel()),
	)

	store := cache.NewIdempotencyStore(ctx, cache.RedisConfig{
		Enabled:  cfg.Redis.Enabled,
		Host:     cfg.Redis.Host,
		Port:     cfg.Redis.Port,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}, log)
	a.onClose(func(context.Context) error { return store.Close() })

	if err := a.startNotifications(ctx, cfg, outboxRepo, serializer, store, ledgerMetrics); err != nil {
		return nil, err
	}

	projection := persistence.NewGormLedgerProjection(db.DB)
	if err := a.startAuditTrigger(ctx, cfg, projection); err != nil {
		return nil, err
	}

	checks := map[string]handler.Pinger{
		"database": handler.PingFunc(func(ctx context.Context) error {
			sqlDB, err := db.DB.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		}),
	}
	if p, isPinger := store.(handler.Pinger); isPinger {
		checks["redis"] = p
	}

	var limiter *middleware.RateLimiter
	if cfg.HTTP.PaymentRateLimit > 0 {
		limiter = middleware.NewRateLimiter(cfg.HTTP.PaymentRateLimit, cfg.HTTP.PaymentRateWindow)
		a.onClose(func(context.Context) error { limiter.Stop(); return nil })
	}

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	engine, err := router.NewEngine(router.Options{
		Logger:           log,
		HTTP:             cfg.HTTP,
		ServiceName:      cfg.Telemetry.ServiceName,
		TracingEnabled:   cfg.Telemetry.Enabled,
		ProfilingEnabled: cfg.Telemetry.ProfilingEnabled,
		Meter:            meter,
		Metrics:          ledgerMetrics,
		Tokens:           auth.NewJWTService(cfg.JWT),
		PaymentLimiter:   limiter,
	}, router.Handlers{
		Payments: handler.NewPaymentHandler(recorder),
		Ledger:   handler.NewLedgerHandler(ledgerapp.NewQueryService(projection)),
		Outbox:   handler.NewOutboxHandler(appevent.NewOutboxService(outboxRepo)),
		Health:   handler.NewHealthHandler(version, checks),
	})
	if err != nil {
		return nil, err
	}
	a.engine = engine
	ok = true
	return a, nil
}

// setupTelemetry installs the tracer, meter and log providers and the
// profiler. It returns a nil meter when metrics are off.
func (a *app) setupTelemetry(ctx context.Context, cfg *config.Config) (metric.Meter, error) {
	t := cfg.Telemetry
	log := a.log

	tp, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           t.Enabled,
		CollectorEndpoint: t.CollectorEndpoint,
		SamplingRatio:     t.SamplingRatio,
		ServiceName:       t.ServiceName,
		Insecure:          t.Insecure,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("tracer provider: %w", err)
	}
	a.onClose(tp.Shutdown)

	lp, err := telemetry.NewLoggerProvider(ctx, telemetry.LogsConfig{
		Enabled:           t.Enabled && t.LogsEnabled,
		CollectorEndpoint: t.CollectorEndpoint,
		ServiceName:       t.ServiceName,
		Insecure:          t.Insecure,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("logger provider: %w", err)
	}
	a.onClose(lp.Shutdown)
	if lp.IsEnabled() {
		a.log = telemetry.NewBridgedLogger(log, telemetry.NewZapOTELCore(t.ServiceName, lp, logger.ParseLevel(cfg.Log.Level)))
	}

	profiler, err := telemetry.NewProfiler(telemetry.ProfilerConfig{
		Enabled:         t.ProfilingEnabled,
		ServerAddress:   t.PyroscopeAddress,
		ApplicationName: t.ServiceName,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("profiler: %w", err)
	}
	a.onClose(func(context.Context) error { return profiler.Stop() })
	if profiler.IsEnabled() && tp.IsEnabled() {
		tp.EnableSpanProfiles()
	}

	if !t.Enabled || !t.MetricsEnabled {
		return nil, nil
	}
	mp, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           true,
		CollectorEndpoint: t.CollectorEndpoint,
		ServiceName:       t.ServiceName,
		Insecure:          t.Insecure,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("meter provider: %w", err)
	}
	a.onClose(mp.Shutdown)
	return mp.Meter(t.ServiceName), nil
}

// startAuditTrigger schedules the daily balance audit. Reports go to the
// bucket when storage is enabled and are only logged otherwise.
func (a *app) startAuditTrigger(ctx context.Context, cfg *config.Config, projection *persistence.GormLedgerProjection) error {
	if !cfg.Audit.Enabled {
		return nil
	}
	var opts []ledgerapp.AuditOption
	if cfg.Storage.Enabled {
		archive, err := storage.NewS3ReportArchive(&cfg.Storage, storage.WithLogger(a.log))
		if err != nil {
			return fmt.Errorf("audit archive: %w", err)
		}
		if err := archive.EnsureBucket(ctx); err != nil {
			return fmt.Errorf("audit archive: %w", err)
		}
		opts = append(opts, ledgerapp.WithArchive(archive))
	}
	trigger := scheduler.NewAuditTrigger(scheduler.AuditTriggerConfig{
		Hour:          cfg.Audit.Hour,
		Minute:        cfg.Audit.Minute,
		CheckInterval: cfg.Audit.CheckInterval,
	}, projection, ledgerapp.NewAuditService(projection, opts...), a.log)
	if err := trigger.Start(context.WithoutCancel(ctx)); err != nil {
		return err
	}
	a.onClose(trigger.Stop)
	return nil
}

// startNotifications subscribes the PaymentRecorded notifier behind the
// idempotency guard and starts the outbox processor that feeds it.
func (a *app) startNotifications(
	ctx context.Context,
	cfg *config.Config,
	outboxRepo shared.OutboxRepository,
	serializer *event.EventSerializer,
	store shared.IdempotencyStore,
	metrics *telemetry.LedgerMetrics,
) error {
	log := a.log
	bus := event.NewInMemoryEventBus(log)

	if cfg.Notification.Enabled {
		notifier, err := newNotifier(cfg.Notification, log)
		if err != nil {
			return err
		}
		channel, err := notification.ParseChannel(cfg.Notification.Channel)
		if err != nil {
			return err
		}
		h := notification.NewPaymentRecordedHandler(notifier, notification.NewFormatter(cfg.Notification.Locale), channel, metrics)
		idem := shared.DefaultIdempotencyConfig()
		if cfg.Event.IdempotencyTTL > 0 {
			idem.TTL = cfg.Event.IdempotencyTTL
		}
		bus.Subscribe(event.NewIdempotentHandler(h, store, idem, log), ledger.EventTypePaymentRecorded)
		log.Info("Payment notifications enabled",
			zap.String("channel", string(channel)),
			zap.String("notifier", cfg.Notification.Notifier),
		)
	}

	if err := bus.Start(ctx); err != nil {
		return err
	}
	a.onClose(bus.Stop)

	if !cfg.Event.ProcessorEnabled {
		log.Warn("Outbox processor disabled; PaymentRecorded events stay queued")
		return nil
	}
	processor := event.NewOutboxProcessor(outboxRepo, bus, serializer, event.OutboxProcessorConfig{
		BatchSize:        cfg.Event.BatchSize,
		PollInterval:     cfg.Event.PollInterval,
		CleanupEnabled:   cfg.Event.CleanupEnabled,
		CleanupRetention: cfg.Event.CleanupRetention,
		CleanupInterval:  event.DefaultOutboxProcessorConfig().CleanupInterval,
	}, log)
	if err := processor.Start(context.WithoutCancel(ctx)); err != nil {
		return err
	}
	a.onClose(processor.Stop)
	return nil
}

func newNotifier(cfg config.NotificationConfig, log *zap.Logger) (notification.Notifier, error) {
	switch strings.ToLower(cfg.Notifier) {
	case "", "log":
		return notify.NewLogNotifier(log), nil
	case "webhook":
		return notify.NewWebhookNotifier(cfg.WebhookURL, cfg.WebhookSecret, cfg.WebhookTimeout)
	default:
		return nil, errors.New("unknown notifier " + cfg.Notifier + ", want log or webhook")
	}
}
