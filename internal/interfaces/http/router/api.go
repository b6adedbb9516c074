package router

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/mandi/backend/internal/infrastructure/auth"
	"github.com/mandi/backend/internal/infrastructure/config"
	"github.com/mandi/backend/internal/infrastructure/logger"
	"github.com/mandi/backend/internal/infrastructure/telemetry"
	"github.com/mandi/backend/internal/interfaces/http/handler"
	"github.com/mandi/backend/internal/interfaces/http/middleware"
)

// Handlers are the endpoint implementations mounted by NewEngine
type Handlers struct {
	Payments *handler.PaymentHandler
	Ledger   *handler.LedgerHandler
	Outbox   *handler.OutboxHandler
	Health   *handler.HealthHandler
}

// Options configure the middleware chain
type Options struct {
	Logger           *zap.Logger
	HTTP             config.HTTPConfig
	ServiceName      string
	TracingEnabled   bool
	ProfilingEnabled bool
	Meter            metric.Meter
	Metrics          *telemetry.LedgerMetrics
	Tokens           middleware.TokenValidator
	// PaymentLimiter throttles payment writes per tenant; nil disables it
	PaymentLimiter *middleware.RateLimiter
}

// NewEngine builds the gin engine with the full middleware chain and every
// ledger route under /api/v1. /health stays outside authentication.
func NewEngine(opts Options, h Handlers) (*gin.Engine, error) {
	if opts.Tokens == nil {
		return nil, fmt.Errorf("router: token validator is required")
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if err := middleware.SetupValidator(); err != nil {
		return nil, fmt.Errorf("router: %w", err)
	}

	engine := gin.New()
	if err := engine.SetTrustedProxies(opts.HTTP.TrustedProxies); err != nil {
		return nil, fmt.Errorf("router: trusted proxies: %w", err)
	}

	cors := middleware.DefaultCORSConfig()
	cors.AllowOrigins = opts.HTTP.CORSAllowOrigins

	engine.Use(
		middleware.Tracing(opts.ServiceName, opts.TracingEnabled),
		logger.Recovery(log),
		middleware.RequestID(),
		logger.GinMiddleware(log),
		middleware.Secure(),
		middleware.CORS(cors),
		middleware.BodyLimit(opts.HTTP.MaxBodySize),
		middleware.HTTPMetrics(opts.Meter),
	)

	if h.Health != nil {
		engine.GET("/health", h.Health.Health)
	}

	r := NewRouter(engine,
		WithAPIVersion("v1"),
		WithGroupMiddleware(
			middleware.JWTAuth(opts.Tokens),
			middleware.TenantScope(opts.Metrics),
			middleware.SpanEnricher(),
			middleware.Profiling(opts.ProfilingEnabled),
		),
	)
	for _, g := range domainGroups(h, opts.PaymentLimiter) {
		r.Register(g)
	}
	r.Setup()
	return engine, nil
}

func domainGroups(h Handlers, limiter *middleware.RateLimiter) []*DomainGroup {
	var groups []*DomainGroup
	clerk := middleware.RequireRole(auth.RoleClerk)
	throttle := middleware.TenantRateLimit(limiter)

	vendors := NewDomainGroup("vendors", "/vendors").Use(clerk)
	retailers := NewDomainGroup("retailers", "/retailers").Use(clerk)
	groups = append(groups, vendors, retailers)

	if h.Payments != nil {
		vendors.POST("/:id/payments", throttle, h.Payments.RecordVendorPayment)
		retailers.POST("/:id/payments", throttle, h.Payments.RecordRetailerPayment)
		batches := NewDomainGroup("payments", "/payments").Use(clerk)
		batches.GET("/batches/:batchId", h.Payments.GetBatch)
		groups = append(groups, batches)
	}

	if h.Ledger != nil {
		vendors.GET("/:id/statement", h.Ledger.VendorStatement)
		retailers.GET("/:id/statement", h.Ledger.RetailerStatement)
		books := NewDomainGroup("ledger", "/ledger").Use(clerk)
		books.GET("/cashbook", h.Ledger.Cashbook)
		books.GET("/bankbook/:bankAccountId", h.Ledger.Bankbook)
		groups = append(groups, books)
	}

	if h.Outbox != nil {
		system := NewDomainGroup("system", "/system").Use(middleware.RequireRole(auth.RoleAdmin))
		outbox := system.Group("outbox", "/outbox")
		outbox.GET("/dead", h.Outbox.GetDeadLetterEntries)
		outbox.GET("/stats", h.Outbox.GetStats)
		outbox.POST("/retry-all", h.Outbox.RetryAllDeadEntries)
		outbox.POST("/:id/retry", h.Outbox.RetryDeadEntry)
		groups = append(groups, system)
	}
	return groups
}
