package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/riandyrn/otelchi"

	"github.com/Krutik090/phishing-backend/internal/adapter/fsm"
	handler "github.com/Krutik090/phishing-backend/internal/adapter/http"
	otelhelper "github.com/Krutik090/phishing-backend/internal/adapter/otel"
	riveradapter "github.com/Krutik090/phishing-backend/internal/adapter/river"
	"github.com/Krutik090/phishing-backend/internal/adapter/sqlite"
	"github.com/Krutik090/phishing-backend/internal/app"
	"github.com/Krutik090/phishing-backend/internal/config"
	"github.com/Krutik090/phishing-backend/internal/domain"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	configPath := envOrDefault("CONFIG_PATH", "config.yaml")
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx := context.Background()

	// --- Telemetry ---
	providers, err := otelhelper.Setup(ctx, otelhelper.Config{
		ServiceName:    cfg.Otel.ServiceName,
		ServiceVersion: cfg.Otel.ServiceVersion,
		Environment:    cfg.Otel.Environment,
		Exporter:       cfg.Otel.Exporter,
		Insecure:       cfg.Otel.Environment == "development",
	})
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}

	// --- Adapters (out) ---
	if err := ensureDirs(cfg); err != nil {
		return err
	}

	openRegistry := func(ctx context.Context) (domain.Registry, error) {
		db, err := otelhelper.OpenDB(cfg.Registry.DSN)
		if err != nil {
			return nil, err
		}
		reg, err := sqlite.NewFromDB(db)
		if err != nil {
			db.Close()
			return nil, err
		}
		return otelhelper.NewTracingRegistry(reg), nil
	}

	// The registry DB is shared with the job queue, so open it once here
	// and hand the raw handle to River.
	registryDB, err := otelhelper.OpenDB(cfg.Registry.DSN)
	if err != nil {
		return fmt.Errorf("registry database: %w", err)
	}
	registry, err := sqlite.NewFromDB(registryDB)
	if err != nil {
		return fmt.Errorf("registry schema: %w", err)
	}

	riverClient, err := riveradapter.Setup(ctx, registryDB)
	if err != nil {
		return fmt.Errorf("job queue: %w", err)
	}
	if err := riverClient.Start(ctx); err != nil {
		return fmt.Errorf("starting job queue: %w", err)
	}

	opener := sqlite.NewOpener(cfg.Stores.PathTemplate, cfg.Stores.MaxConns)

	// --- Application ---
	conns := app.NewConnManager(app.ConnManagerConfig{
		Registry:       otelhelper.NewTracingRegistry(registry),
		Opener:         opener,
		Logger:         logger,
		ReopenRegistry: openRegistry,
		Capacity:       cfg.Cache.Capacity,
		TrialLength:    cfg.Trial.Length(),
		ConnectTimeout: cfg.Cache.ConnectTimeout,
		CloseTimeout:   cfg.Cache.CloseTimeout,
	})

	notifier := riveradapter.NewNotifier(riverClient)
	prov := app.NewProvisioner(conns, notifier, logger)
	lifecycle := app.NewLifecycleService(conns, fsm.New(), logger)

	// --- Adapters (in) ---
	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(otelchi.Middleware(cfg.Otel.ServiceName, otelchi.WithChiRoutes(router)))

	api := humachi.New(router, huma.DefaultConfig("phishing-backend", cfg.Otel.ServiceVersion))
	handler.Register(api, prov, lifecycle, conns)

	// --- Server ---
	srv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: %w", err)
	case sig := <-done:
		logger.Info("shutting down", "signal", sig.String())
	}

	// Drain order: stop accepting requests, stop the job queue, close
	// tenant handles and the registry, flush telemetry.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}
	if err := riverClient.Stop(shutdownCtx); err != nil {
		logger.Warn("job queue shutdown", "error", err)
	}
	conns.CloseAll(shutdownCtx)
	if err := providers.Shutdown(shutdownCtx); err != nil {
		logger.Warn("telemetry shutdown", "error", err)
	}

	logger.Info("stopped")
	return nil
}

// ensureDirs creates the data directories the registry and tenant stores
// live in.
func ensureDirs(cfg *config.Config) error {
	for _, dir := range []string{
		filepath.Dir(cfg.Registry.DSN),
		filepath.Dir(fmt.Sprintf(cfg.Stores.PathTemplate, "x")),
	} {
		if dir == "." || dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating data directory %s: %w", dir, err)
		}
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
