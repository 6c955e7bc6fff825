package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/p-n-ai/apprend-go/internal/ai"
	"github.com/p-n-ai/apprend-go/internal/analytics"
	"github.com/p-n-ai/apprend-go/internal/api"
	"github.com/p-n-ai/apprend-go/internal/catalog"
	"github.com/p-n-ai/apprend-go/internal/platform/cache"
	"github.com/p-n-ai/apprend-go/internal/platform/config"
	"github.com/p-n-ai/apprend-go/internal/platform/database"
	"github.com/p-n-ai/apprend-go/internal/portal"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to read .env", "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	slog.SetDefault(newLogger(cfg.Log))

	// Graceful shutdown on SIGTERM/SIGINT.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	courses, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		return err
	}
	slog.Info("catalog loaded", "courses", courses.Len(), "path", cfg.CatalogPath)

	checks := map[string]healthChecker{}

	var googleOpts []ai.GoogleOption
	if cfg.AI.Google.BaseURL != "" {
		googleOpts = append(googleOpts, ai.WithGoogleBaseURL(cfg.AI.Google.BaseURL))
	}
	if !cfg.HasAIKey() {
		slog.Warn("APPREND_AI_GOOGLE_API_KEY is not set; tutor and quiz requests will fail")
	}
	provider := ai.NewGoogleProvider(cfg.AI.Google.APIKey, googleOpts...)

	gwOpts := []ai.GatewayOption{
		ai.WithModel(cfg.AI.Model),
		ai.WithTimeout(cfg.AI.Timeout),
	}
	if cfg.AI.BudgetTokens > 0 {
		budget, closeBudget, err := newBudget(ctx, cfg, checks)
		if err != nil {
			return err
		}
		defer closeBudget()
		gwOpts = append(gwOpts, ai.WithBudget(budget))
	}
	gateway := ai.NewGateway(provider, gwOpts...)

	var events analytics.EventLogger = analytics.NopEventLogger{}
	if cfg.AnalyticsEnabled() {
		db, err := database.New(ctx, cfg.Database.URL, cfg.Database.MaxConns, cfg.Database.MinConns)
		if err != nil {
			return fmt.Errorf("analytics database: %w", err)
		}
		defer db.Close()

		logger := analytics.NewPostgresEventLogger(db.Pool)
		if err := logger.EnsureSchema(ctx); err != nil {
			return err
		}
		events = logger
		checks["database"] = db
	}

	app := portal.NewApp(courses, gateway, gateway, portal.WithEventLogger(events))

	mux := newMux(checks)
	mux.Handle("/api/", api.NewHandler(app, courses, cfg.Server.AllowedOrigins))

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
		// No WriteTimeout: replies stream over long-lived connections and every AI
		// call is bounded by the gateway timeout.
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	app.Logout()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
	return nil
}

// newBudget returns the Redis-backed budget when a cache is configured and an
// in-process one otherwise.
func newBudget(ctx context.Context, cfg *config.Config, checks map[string]healthChecker) (ai.BudgetChecker, func(), error) {
	limit := int64(cfg.AI.BudgetTokens)
	if cfg.Cache.URL == "" {
		slog.Info("token budget enabled", "store", "memory", "tokens", limit)
		return ai.NewInMemoryBudget(limit), func() {}, nil
	}

	c, err := cache.New(ctx, cfg.Cache.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("budget cache: %w", err)
	}
	checks["cache"] = c
	slog.Info("token budget enabled", "store", "redis", "tokens", limit)
	return ai.NewRedisBudget(c.Client, limit), func() {
		if err := c.Close(); err != nil {
			slog.Warn("failed to close cache", "error", err)
		}
	}, nil
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

type healthChecker interface {
	HealthCheck(ctx context.Context) error
}

// newMux creates the HTTP router with health check endpoints.
func newMux(checks map[string]healthChecker) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealthz)
	mux.HandleFunc("GET /readyz", handleReadyz(checks))
	return mux
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

func handleReadyz(checks map[string]healthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		w.Header().Set("Content-Type", "application/json")
		for name, c := range checks {
			if err := c.HealthCheck(ctx); err != nil {
				slog.Warn("readiness check failed", "dependency", name, "error", err)
				w.WriteHeader(http.StatusServiceUnavailable)
				fmt.Fprintf(w, `{"status":"unavailable","dependency":%q}`, name)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ready"}`))
	}
}
