package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dbmend/dbmend/internal/adapter/remedy"
	"github.com/dbmend/dbmend/internal/adapter/rules"
	"github.com/dbmend/dbmend/internal/adapter/store"
	"github.com/dbmend/dbmend/internal/handler"
	"github.com/dbmend/dbmend/internal/metrics"
	"github.com/dbmend/dbmend/internal/middleware"
	"github.com/dbmend/dbmend/internal/service"
	"github.com/dbmend/dbmend/internal/worker"
	"github.com/dbmend/dbmend/pkg/config"
)

const version = "1.0.0"

func main() {
	// ── Load .env file ───────────────────────────────────────────────────
	_ = godotenv.Load() // silently ignore if .env doesn't exist

	// ── Configuration ────────────────────────────────────────────────────
	cfg := config.Load()

	slog.Info("🚀 Starting dbmend",
		"port", cfg.Port,
		"store_driver", cfg.StoreDriver,
		"workers", cfg.WorkerCount,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ── Store ────────────────────────────────────────────────────────────
	db, err := store.Open(cfg.StoreDriver, cfg.DSN())
	if err != nil {
		slog.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// ── Curated inputs ───────────────────────────────────────────────────
	if err := rules.SeedCatalog(ctx, cfg.CatalogPath, db, slog.Default()); err != nil {
		slog.Error("failed to seed action catalog", "error", err)
		os.Exit(1)
	}
	rulebook, err := rules.NewRulebook(cfg.RulebookPath, slog.Default())
	if err != nil {
		slog.Error("failed to load rulebook", "error", err)
		os.Exit(1)
	}

	// ── Services ─────────────────────────────────────────────────────────
	ingestService := service.NewIngestService(db)
	analysisService := service.NewAnalysisService(db)
	decisionService := service.NewDecisionService(db, rulebook)
	approvalService := service.NewApprovalService(db)
	executionService := service.NewExecutionService(db)
	learningService := service.NewLearningService(db)
	catalogService := service.NewCatalogService(db)

	// ── Execution workers ────────────────────────────────────────────────
	executor := remedy.NewSimulator(cfg.SimulatedDelay)
	runner := worker.NewRunner(db, executor, cfg.WorkerCount, cfg.PollInterval, slog.Default())
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		if err := runner.Start(ctx); err != nil {
			slog.Error("worker pool failed", "error", err)
		}
	}()

	// ── Fiber App ────────────────────────────────────────────────────────
	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: []string{cfg.FrontendURL},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", middleware.ActorHeader},
		AllowMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
	}))

	// Audit middleware (logs all requests)
	app.Use(middleware.AuditMiddleware(db))

	// ── Observability ────────────────────────────────────────────────────
	handler.NewHealthHandler(db, version).Register(app)
	if cfg.MetricsEnabled {
		if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
			slog.Error("failed to register metrics", "error", err)
			os.Exit(1)
		}
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
	}

	// ── Routes ───────────────────────────────────────────────────────────
	api := app.Group("/api/v1")

	handler.NewDetectionHandler(ingestService, analysisService).Register(api)
	handler.NewDecisionHandler(decisionService, approvalService).Register(api)
	handler.NewExecutionHandler(executionService).Register(api)
	handler.NewLearningHandler(learningService).Register(api)
	handler.NewActionHandler(catalogService).Register(api)
	handler.NewStatsHandler(db).Register(api)

	// Shut the listener down when the signal context fires
	go func() {
		<-ctx.Done()
		_ = app.ShutdownWithTimeout(10 * time.Second)
	}()

	// ── Start ────────────────────────────────────────────────────────────
	slog.Info("🌐 Fiber listening", "port", cfg.Port)
	if err := app.Listen(":" + cfg.Port); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}

	stop()
	<-workerDone
	slog.Info("shutdown complete")
}
