package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/p-n-ai/apprend-go/internal/platform/config"
)

type stubCheck struct{ err error }

func (s stubCheck) HealthCheck(context.Context) error { return s.err }

func TestHealthEndpoints(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		checks     map[string]healthChecker
		wantStatus int
		wantBody   string
	}{
		{
			name:       "healthz returns 200",
			path:       "/healthz",
			wantStatus: http.StatusOK,
			wantBody:   `{"status":"ok"}`,
		},
		{
			name:       "readyz without dependencies returns 200",
			path:       "/readyz",
			wantStatus: http.StatusOK,
			wantBody:   `{"status":"ready"}`,
		},
		{
			name:       "readyz with healthy database returns 200",
			path:       "/readyz",
			checks:     map[string]healthChecker{"database": stubCheck{}},
			wantStatus: http.StatusOK,
			wantBody:   `{"status":"ready"}`,
		},
		{
			name:       "readyz with failing cache returns 503",
			path:       "/readyz",
			checks:     map[string]healthChecker{"cache": stubCheck{err: errors.New("connection refused")}},
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   `{"status":"unavailable","dependency":"cache"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := newMux(tt.checks)
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			rec := httptest.NewRecorder()

			mux.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if rec.Body.String() != tt.wantBody {
				t.Errorf("body = %q, want %q", rec.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name      string
		cfg       config.LogConfig
		wantDebug bool
		wantInfo  bool
	}{
		{"debug json", config.LogConfig{Level: "debug", Format: "json"}, true, true},
		{"warn text", config.LogConfig{Level: "warn", Format: "text"}, false, false},
		{"invalid level falls back to info", config.LogConfig{Level: "loud", Format: "json"}, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := newLogger(tt.cfg)
			ctx := context.Background()
			if got := logger.Enabled(ctx, slog.LevelDebug); got != tt.wantDebug {
				t.Errorf("debug enabled = %v, want %v", got, tt.wantDebug)
			}
			if got := logger.Enabled(ctx, slog.LevelInfo); got != tt.wantInfo {
				t.Errorf("info enabled = %v, want %v", got, tt.wantInfo)
			}
		})
	}
}

func TestNewBudget_InMemoryWithoutCache(t *testing.T) {
	cfg := &config.Config{AI: config.AIConfig{BudgetTokens: 100}}
	checks := map[string]healthChecker{}

	budget, closeFn, err := newBudget(context.Background(), cfg, checks)
	if err != nil {
		t.Fatalf("newBudget() error = %v", err)
	}
	defer closeFn()

	ok, err := budget.Check(context.Background(), "etudiant123")
	if err != nil || !ok {
		t.Errorf("Check() = %v, %v; want fresh budget available", ok, err)
	}
	if len(checks) != 0 {
		t.Errorf("checks = %v, want none for the in-memory budget", checks)
	}
}
