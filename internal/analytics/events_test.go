package analytics_test

import (
	"testing"

	"github.com/p-n-ai/apprend-go/internal/analytics"
)

func TestMemoryEventLogger_LogEvent(t *testing.T) {
	logger := analytics.NewMemoryEventLogger()

	err := logger.LogEvent(analytics.Event{
		SessionID: "session-1",
		Username:  "etudiant123",
		EventType: analytics.EventCourseOpened,
		Data: map[string]any{
			"course_id": "l1-andromaque",
		},
	})
	if err != nil {
		t.Fatalf("LogEvent() error = %v", err)
	}

	events := logger.Events()
	if len(events) != 1 {
		t.Fatalf("len(events) = %d, want 1", len(events))
	}
	if events[0].EventType != analytics.EventCourseOpened {
		t.Errorf("EventType = %q, want course_opened", events[0].EventType)
	}
	if events[0].CreatedAt.IsZero() {
		t.Error("CreatedAt should be set")
	}
}

func TestMemoryEventLogger_RejectsUntyped(t *testing.T) {
	logger := analytics.NewMemoryEventLogger()
	if err := logger.LogEvent(analytics.Event{Username: "x"}); err == nil {
		t.Fatal("expected error for missing event type")
	}
	if len(logger.Events()) != 0 {
		t.Error("rejected event should not be stored")
	}
}

func TestMemoryEventLogger_OfType(t *testing.T) {
	logger := analytics.NewMemoryEventLogger()
	for _, typ := range []string{analytics.EventLogin, analytics.EventQuizFailed, analytics.EventLogin} {
		_ = logger.LogEvent(analytics.Event{EventType: typ})
	}
	if got := len(logger.OfType(analytics.EventLogin)); got != 2 {
		t.Errorf("OfType(login) = %d, want 2", got)
	}
	if got := len(logger.OfType(analytics.EventChatError)); got != 0 {
		t.Errorf("OfType(chat_error) = %d, want 0", got)
	}
}

func TestPostgresEventLogger_LogEvent_NilPool(t *testing.T) {
	logger := analytics.NewPostgresEventLogger(nil)

	err := logger.LogEvent(analytics.Event{
		SessionID: "session-1",
		EventType: analytics.EventLogin,
	})
	if err == nil {
		t.Fatal("expected error for nil pool")
	}
	if err := logger.EnsureSchema(t.Context()); err == nil {
		t.Fatal("expected EnsureSchema error for nil pool")
	}
}
