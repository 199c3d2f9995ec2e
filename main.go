// Package main provides the main entry point for the Cotizabot lead intake and broker billing service
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cotizabot/cotizabot/app/handlers"
	"github.com/cotizabot/cotizabot/app/router"
	"github.com/cotizabot/cotizabot/app/scheduler"
	"github.com/cotizabot/cotizabot/app/services"
	businessflow "github.com/cotizabot/cotizabot/business_flow"
	"github.com/cotizabot/cotizabot/config"
	"github.com/cotizabot/cotizabot/migrations"
	"github.com/cotizabot/cotizabot/repository"
	"github.com/cotizabot/cotizabot/utils"
	"github.com/gofiber/fiber/v3"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Application represents the main application structure
type Application struct {
	router    router.Router
	config    *config.ProductionConfig
	server    *fiber.App
	logger    *slog.Logger
	stopFuncs []func()
}

func main() {
	cfg, err := config.LoadProductionConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := utils.NewLogger(utils.LoggerOptions{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		FilePath:   cfg.Logging.FilePath,
		MaxSize:    cfg.Logging.MaxSize,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAge:     cfg.Logging.MaxAge,
		Compress:   cfg.Logging.Compress,
	})
	slog.SetDefault(logger)
	logger.Info("Starting Cotizabot application")

	app, err := initializeApplication(cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize application", "error", err)
		os.Exit(1)
	}

	app.router.SetupRoutes()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		address := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		if err := app.router.Start(address); err != nil {
			logger.Error("Failed to start server", "error", err)
			os.Exit(1)
		}
	}()

	<-sigChan
	logger.Info("Shutting down gracefully")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := app.server.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", "error", err)
	}

	// Stop background workers after the server stops accepting requests
	for _, fn := range app.stopFuncs {
		fn()
	}

	logger.Info("Server stopped")
}

// initializeDatabase initializes the database connection with connection pooling
func initializeDatabase(cfg config.DatabaseConfig, logger *slog.Logger) (*gorm.DB, error) {
	gormCfg := &gorm.Config{TranslateError: true}
	if cfg.SlowQueryLog {
		gormCfg.Logger = gormlogger.New(log.New(os.Stdout, "\r\n", log.LstdFlags), gormlogger.Config{
			SlowThreshold:             cfg.SlowQueryTime,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		})
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN()), gormCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if cfg.AutoMigrate {
		if err := migrations.Up(cfg.URL()); err != nil {
			return nil, err
		}
		logger.Info("Database migrations applied")
	}

	logger.Info("Database connection established", "max_open_conns", cfg.MaxOpenConns, "max_idle_conns", cfg.MaxIdleConns)

	return db, nil
}

// initializeCache initializes the Cache client and verifies connectivity
func initializeCache(cfg config.CacheConfig, logger *slog.Logger) (*redis.Client, error) {
	if !cfg.Enabled || cfg.Provider != "redis" {
		return nil, nil
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	opt.DB = cfg.RedisDB

	rc := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rc.Ping(ctx).Err(); err != nil {
		_ = rc.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("Redis connection established", "db", cfg.RedisDB)
	return rc, nil
}

// startCacheHealthMonitor periodically pings Redis so connectivity loss shows up in the logs.
// The returned cancel function stops the monitor.
func startCacheHealthMonitor(parent context.Context, client *redis.Client, interval time.Duration, logger *slog.Logger) func() {
	monitorCtx, cancel := context.WithCancel(parent)
	if interval <= 0 {
		interval = 30 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-monitorCtx.Done():
				return
			case <-ticker.C:
				ctx, c := context.WithTimeout(context.Background(), 3*time.Second)
				if err := client.Ping(ctx).Err(); err != nil {
					logger.Warn("Redis healthcheck failed", "error", err)
				}
				c()
			}
		}
	}()
	return cancel
}

// initializeNotificationService picks the WhatsApp provider and makes delivery asynchronous
func initializeNotificationService(cfg *config.ProductionConfig, logger *slog.Logger) *services.AsyncNotifier {
	var provider services.MessageProvider
	switch cfg.WhatsApp.Provider {
	case "mock", "":
		provider = services.NewMockMessageProvider(logger)
	default:
		provider = services.NewWhatsAppProvider(&cfg.WhatsApp)
	}

	return services.NewAsyncNotifier(services.NewNotificationService(provider), cfg.WhatsApp.SendTimeout, logger)
}

func initializeEventPublisher(cfg config.KafkaConfig, logger *slog.Logger) services.EventPublisher {
	if !cfg.Enabled || len(cfg.Brokers) == 0 {
		return services.NoopEventPublisher{}
	}
	return services.NewKafkaEventPublisher(cfg, logger)
}

func initializeStatementStore(cfg config.StorageConfig, logger *slog.Logger) (services.StatementStore, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store, err := services.NewS3StatementStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize statement store: %w", err)
	}
	logger.Info("Statement archive enabled", "bucket", cfg.Bucket)
	return store, nil
}

func initializeApplication(cfg *config.ProductionConfig, logger *slog.Logger) (*Application, error) {
	var stopFuncs []func()

	db, err := initializeDatabase(cfg.Database, logger)
	if err != nil {
		return nil, err
	}

	rc, err := initializeCache(cfg.Cache, logger)
	if err != nil {
		return nil, err
	}
	if rc != nil {
		stopFuncs = append(stopFuncs, startCacheHealthMonitor(context.Background(), rc, cfg.Cache.CleanupInterval, logger))
	}

	store, err := initializeStatementStore(cfg.Storage, logger)
	if err != nil {
		return nil, err
	}

	brokerRepo := repository.NewBrokerRepository(db)
	leadRepo := repository.NewLeadRepository(db)
	snapshotRepo := repository.NewLeadQuoteSnapshotRepository(db)
	insurerRepo := repository.NewCachedInsurerRepository(
		repository.NewInsurerRepository(db), rc, cfg.Cache.Key(utils.InsurerCatalogCacheKey), cfg.Quote.CatalogCacheTTL, logger)
	blacklistRepo := repository.NewInsurabilityBlacklistRepository(db)
	planRepo := repository.NewSubscriptionPlanRepository(db)
	accountRepo := repository.NewBrokerAccountRepository(db)
	txRepo := repository.NewBrokerTransactionRepository(db)
	seqRepo := repository.NewSequenceCounterRepository(db)
	auditRepo := repository.NewAuditLogRepository(db)
	transactor := repository.NewTransactor(db)

	notifier := initializeNotificationService(cfg, logger)
	publisher := initializeEventPublisher(cfg.Kafka, logger)

	quoteFlow := businessflow.NewQuoteFlow(insurerRepo, blacklistRepo, cfg.Quote.MaxResults, cfg.Quote.MaxInsuredValue, logger)

	assignmentFlow := businessflow.NewAssignmentFlow(
		leadRepo,
		brokerRepo,
		auditRepo,
		transactor,
		notifier,
		publisher,
		cfg.Assignment,
		logger,
	)

	leadFlow := businessflow.NewLeadFlow(
		leadRepo,
		snapshotRepo,
		auditRepo,
		transactor,
		quoteFlow,
		assignmentFlow,
		cfg.Quote.MaxInsuredValue,
		logger,
	)

	billingFlow := businessflow.NewBillingFlow(
		brokerRepo,
		planRepo,
		accountRepo,
		txRepo,
		seqRepo,
		auditRepo,
		transactor,
		notifier,
		publisher,
		store,
		cfg.Billing,
		cfg.Scheduler.JobParallelism,
		logger,
	)

	appRouter := router.NewFiberRouter(cfg, router.Handlers{
		Health:  handlers.NewHealthHandler(db, rc, utils.Version, logger),
		Quote:   handlers.NewQuoteHandler(quoteFlow, logger),
		Lead:    handlers.NewLeadHandler(leadFlow, assignmentFlow, logger),
		Billing: handlers.NewBillingHandler(billingFlow, assignmentFlow, logger),
	}, logger)

	if cfg.Scheduler.BillingEnabled {
		sched := scheduler.NewBillingScheduler(billingFlow, rc, cfg.Cache, cfg.Scheduler, cfg.Billing, logger)
		stopFuncs = append(stopFuncs, sched.Start(context.Background()))
	}

	// Drain outbound side effects last, after the scheduler has stopped producing them
	stopFuncs = append(stopFuncs, func() {
		notifier.Wait()
		if err := publisher.Close(); err != nil {
			logger.Warn("Failed to close event publisher", "error", err)
		}
		if rc != nil {
			_ = rc.Close()
		}
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	return &Application{
		router:    appRouter,
		config:    cfg,
		server:    appRouter.GetApp(),
		logger:    logger,
		stopFuncs: stopFuncs,
	}, nil
}
