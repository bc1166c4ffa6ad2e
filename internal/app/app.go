package app

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"go.uber.org/zap"

	infraevents "github.com/squirrelhq/billing-service/internal/infra/events"
	"github.com/squirrelhq/billing-service/internal/module/billing"
	sharedcache "github.com/squirrelhq/billing-service/internal/shared/cache"
	"github.com/squirrelhq/billing-service/internal/shared/config"
	"github.com/squirrelhq/billing-service/internal/shared/database"
	"github.com/squirrelhq/billing-service/internal/shared/logger"
	"github.com/squirrelhq/billing-service/internal/shared/metrics"
	"github.com/squirrelhq/billing-service/internal/shared/middleware"
)

// App represents the application.
type App struct {
	config    *config.Config
	db        *gorm.DB
	redis     redis.UniversalClient
	router    *gin.Engine
	logger    *logger.Logger
	zapLogger *zap.Logger
	metrics   *metrics.Metrics

	// Event infrastructure
	eventBus *infraevents.Bus
	bridge   *billing.Bridge

	// Billing module
	catalog        *billing.Catalog
	billingRepo    billing.Repository
	ledger         *billing.Ledger
	plans          *billing.Plans
	gate           *billing.Gate
	paynow         *billing.PayNow
	billingHandler *billing.Handler
}

// New creates a new application instance.
func New(cfg *config.Config) (*App, error) {
	log := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})

	zapLog, err := logger.NewZapLogger(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
	if err != nil {
		return nil, fmt.Errorf("init zap logger: %w", err)
	}

	app := &App{
		config:    cfg,
		logger:    log,
		zapLogger: zapLog,
		metrics:   metrics.New("billing"),
	}

	db, err := database.New(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}
	app.db = db

	if err := database.Migrate(db,
		&billing.Plan{},
		&billing.AccountState{},
		&billing.UsageEvent{},
	); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	redisClient, err := sharedcache.NewRedisClient(&cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("init redis: %w", err)
	}
	app.redis = redisClient

	if err := app.initBillingModule(); err != nil {
		return nil, fmt.Errorf("init billing module: %w", err)
	}

	app.router = app.setupRouter()

	if err := app.startModules(context.Background()); err != nil {
		return nil, fmt.Errorf("start modules: %w", err)
	}

	return app, nil
}

// initBillingModule wires the billing services together.
func (a *App) initBillingModule() error {
	a.eventBus = infraevents.NewBus(a.zapLogger)

	a.catalog = billing.NewCatalog(a.db, a.zapLogger)
	a.billingRepo = billing.NewRepository(a.db)
	a.ledger = billing.NewLedger(a.billingRepo, a.config.Billing, a.metrics, a.zapLogger)
	a.plans = billing.NewPlans(a.catalog, a.ledger, a.billingRepo, a.eventBus, a.config.Billing, a.zapLogger)
	a.gate = billing.NewGate(a.billingRepo, a.zapLogger)
	a.paynow = billing.NewPayNow(a.ledger, a.plans, a.zapLogger)
	a.billingHandler = billing.NewHandler(a.catalog, a.ledger, a.plans, a.gate, a.paynow)

	a.bridge = billing.NewBridge(a.redis, a.ledger, a.config.Billing, a.metrics, a.zapLogger)

	// Outbound notifications flow from the in-process bus onto Redis.
	a.eventBus.Register(billing.NewEventHandler(a.redis, a.config.Billing, a.zapLogger))

	return nil
}

// startModules seeds the catalog and starts background consumers.
func (a *App) startModules(ctx context.Context) error {
	if err := a.catalog.Seed(ctx); err != nil {
		return fmt.Errorf("seed plan catalog: %w", err)
	}
	if err := a.bridge.Start(ctx); err != nil {
		return fmt.Errorf("start usage bridge: %w", err)
	}
	return nil
}

// setupRouter creates and configures the Gin router.
func (a *App) setupRouter() *gin.Engine {
	if a.config.Log.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	r.Use(middleware.Recovery(a.logger))
	r.Use(middleware.RequestID())
	r.Use(middleware.Logging(a.logger))
	r.Use(middleware.Metrics(a.metrics))
	r.Use(middleware.CORS(middleware.DefaultCORSConfig()))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	validator := middleware.NewJWTValidator(a.config.Auth.JWTSecret)
	v1 := r.Group("/v1")
	v1.Use(middleware.RequireAuth(validator))
	a.billingHandler.RegisterRoutes(v1)

	return r
}

// Router returns the configured HTTP router.
func (a *App) Router() *gin.Engine {
	return a.router
}

// Stop gracefully shuts down background work and closes connections.
func (a *App) Stop() {
	a.bridge.Stop()
	if a.redis != nil {
		if err := sharedcache.Close(a.redis); err != nil {
			a.zapLogger.Warn("close redis", zap.Error(err))
		}
	}
	if a.db != nil {
		if err := database.Close(a.db); err != nil {
			a.zapLogger.Warn("close database", zap.Error(err))
		}
	}
	_ = a.zapLogger.Sync()
}
