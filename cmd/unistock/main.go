package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/unistock-erp/unistock-erp/internal/app"
	"github.com/unistock-erp/unistock-erp/internal/catalog"
	"github.com/unistock-erp/unistock-erp/internal/observability"
	"github.com/unistock-erp/unistock-erp/internal/opname"
	"github.com/unistock-erp/unistock-erp/internal/platform/cache"
	"github.com/unistock-erp/unistock-erp/internal/platform/db"
	"github.com/unistock-erp/unistock-erp/internal/procurement"
	"github.com/unistock-erp/unistock-erp/internal/reporting"
	"github.com/unistock-erp/unistock-erp/internal/requests"
	"github.com/unistock-erp/unistock-erp/internal/shared"
	"github.com/unistock-erp/unistock-erp/internal/stock"
	"github.com/unistock-erp/unistock-erp/internal/usage"
	"github.com/unistock-erp/unistock-erp/jobs"
	"github.com/unistock-erp/unistock-erp/migrations"
)

func runMigrations(dsn string) error {
	sqlDB, err := goose.OpenDBWithDriver("pgx", dsn)
	if err != nil {
		return err
	}
	defer func() { _ = sqlDB.Close() }()
	goose.SetBaseFS(migrations.FS)
	return goose.Up(sqlDB, ".")
}

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	if err := runMigrations(cfg.PGDSN); err != nil {
		logger.Error("run migrations", slog.Any("error", err))
		os.Exit(1)
	}

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		// Reports fall back to direct queries when Redis is unavailable.
		logger.Warn("redis unavailable, report caching disabled", slog.Any("error", err))
		if redisClient != nil {
			_ = redisClient.Close()
		}
		redisClient = nil
	}
	if redisClient != nil {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	validate := validator.New()
	engine := stock.NewEngine()

	auditLogger := shared.NewAuditLogger(pool)
	idempotencyStore := shared.NewIdempotencyStore(pool)

	stockRepo := stock.NewRepository(pool)

	reportingRepo := reporting.NewRepository(pool)
	reportingCache := reporting.NewCache(redisClient, cfg.ReportCacheTTL)
	reportingService := reporting.NewService(reportingRepo, reportingCache, logger)
	reportingHandler := reporting.NewHandler(logger, reportingService)

	requestsRepo := requests.NewRepository(pool, logger)
	requestsService := requests.NewService(requestsRepo, stockRepo, engine, idempotencyStore, reportingService, logger)
	requestsHandler := requests.NewHandler(logger, requestsService, validate)

	procurementRepo := procurement.NewRepository(pool, logger)
	procurementService := procurement.NewService(procurementRepo, engine, idempotencyStore, reportingService, logger)
	procurementHandler := procurement.NewHandler(logger, procurementService, validate)

	usageRepo := usage.NewRepository(pool)
	usageService := usage.NewService(usageRepo, engine, reportingService, logger)
	usageHandler := usage.NewHandler(logger, usageService, validate)

	opnameService := opname.NewService(stockRepo, engine, reportingService, logger)
	opnameHandler := opname.NewHandler(logger, opnameService, validate)

	catalogRepo := catalog.NewRepository(pool)
	catalogService := catalog.NewService(catalogRepo, auditLogger, logger)
	catalogHandler := catalog.NewHandler(logger, catalogService, validate)

	metrics := observability.NewMetrics()

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, jobClient, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		RequestsHandler:    requestsHandler,
		ProcurementHandler: procurementHandler,
		UsageHandler:       usageHandler,
		OpnameHandler:      opnameHandler,
		CatalogHandler:     catalogHandler,
		ReportingHandler:   reportingHandler,
		JobHandler:         jobHandler,
		Metrics:            metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
