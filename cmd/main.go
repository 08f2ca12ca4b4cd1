package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kkkkikiki/contest/internal/api"
	"github.com/kkkkikiki/contest/internal/codegen"
	"github.com/kkkkikiki/contest/internal/config"
	"github.com/kkkkikiki/contest/internal/database"
	"github.com/kkkkikiki/contest/internal/decider"
	"github.com/kkkkikiki/contest/internal/logger"
	"github.com/kkkkikiki/contest/internal/notify"
	"github.com/kkkkikiki/contest/internal/rpc"
	"github.com/kkkkikiki/contest/internal/service"
	"github.com/kkkkikiki/contest/internal/telemetry"
)

// devCodeSecret keys code generation outside production when none is configured
const devCodeSecret = "development-only-code-secret"

func main() {
	ctx := context.Background()

	// Load configuration from environment variables
	cfg, err := config.Load(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Initialize(logger.Config{
		Debug:     cfg.App.Debug,
		Level:     cfg.App.LogLevel,
		SentryDSN: cfg.App.SentryDSN,
		Tags:      map[string]string{"environment": cfg.App.Environment},
	}); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync(2 * time.Second)

	logger.Info("Starting contest service", zap.String("environment", cfg.App.Environment))

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		logger.Fatal("Failed to set up tracing", zap.Error(err))
	}

	// Initialize database connection and schema
	db, err := database.NewDB(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error(err, zap.String("message", "Error closing database connection"))
		}
	}()

	publisher, err := notify.NewPublisher(cfg.Notify)
	if err != nil {
		logger.Fatal("Failed to set up award notifications", zap.Error(err))
	}

	secret := cfg.App.CodeSecret
	if secret == "" {
		logger.Warn("APP_CODE_SECRET not set, using development code secret")
		secret = devCodeSecret
	}

	contestService := service.NewContestService(db, codegen.New(secret))
	engine := service.NewAllocationEngine(db, decider.New(nil), publisher, cfg.Allocation)

	if cfg.App.AdminToken == "" {
		logger.Warn("APP_ADMIN_TOKEN not set, contest administration is unauthenticated")
	}

	if !cfg.App.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	// Create HTTP mux
	mux := http.NewServeMux()

	// Register connect service handlers
	mux.Handle(rpc.NewContestServiceHandler(rpc.NewContestServer(contestService), cfg.App.AdminToken))
	mux.Handle(rpc.NewVerificationServiceHandler(rpc.NewVerificationServer(engine)))

	// Public REST API for the verification page
	mux.Handle("/api/", api.NewRouter(api.NewHandler(engine, contestService), cfg.RateLimit))

	// Add health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		hostname, _ := os.Hostname()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"status":"ok","service":"contest-service","hostname":"%s"}`, hostname)
	})

	// Add database health check endpoint
	mux.HandleFunc("/health/db", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := db.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprintf(w, `{"status":"error","message":"%s unavailable"}`, db.Dialect)
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"status":"ok","%s":"connected"}`, db.Dialect)
	})

	// Add Prometheus metrics endpoint
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:           cfg.Server.GetServerAddr(),
		ReadTimeout:    time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout:   time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20, // 1MB
		// Use h2c so we can serve HTTP/2 without TLS
		Handler: h2c.NewHandler(mux, &http2.Server{
			MaxConcurrentStreams: 1000,
		}),
	}

	// Start server in goroutine
	go func() {
		logger.Info("Listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error(err, zap.String("message", "Server forced to shutdown"))
	}

	// Drain queued notifications once no request can enqueue more
	publisher.Close()

	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Error(err, zap.String("message", "Failed to flush traces"))
	}

	logger.Info("Server exited gracefully")
}
