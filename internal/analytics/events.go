// Package analytics records portal usage events. Logging is best effort: callers
// log failures and carry on.
package analytics

import (
	"fmt"
	"sync"
	"time"
)

// Event types emitted by the portal.
const (
	EventLogin         = "login"
	EventCourseOpened  = "course_opened"
	EventChatError     = "chat_error"
	EventQuizGenerated = "quiz_generated"
	EventQuizFailed    = "quiz_failed"
	EventQuizCompleted = "quiz_completed"
)

// Event is one analytics record.
type Event struct {
	SessionID string
	Username  string
	EventType string
	Data      map[string]any
	CreatedAt time.Time
}

// EventLogger defines event logging behavior.
type EventLogger interface {
	LogEvent(event Event) error
}

// NopEventLogger ignores all events.
type NopEventLogger struct{}

func (NopEventLogger) LogEvent(Event) error {
	return nil
}

// MemoryEventLogger stores events in memory for tests.
type MemoryEventLogger struct {
	mu     sync.Mutex
	events []Event
}

func NewMemoryEventLogger() *MemoryEventLogger {
	return &MemoryEventLogger{
		events: []Event{},
	}
}

func (l *MemoryEventLogger) LogEvent(event Event) error {
	if event.EventType == "" {
		return fmt.Errorf("event_type is required")
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	l.mu.Lock()
	l.events = append(l.events, event)
	l.mu.Unlock()

	return nil
}

func (l *MemoryEventLogger) Events() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Event{}, l.events...)
}

// OfType returns the recorded events with the given type, in order.
func (l *MemoryEventLogger) OfType(eventType string) []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Event
	for _, e := range l.events {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}
