package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/p-n-ai/apprend-go/internal/platform/database"
)

const dbTimeout = 5 * time.Second

var schema = []string{
	`CREATE TABLE IF NOT EXISTS portal_events (
	id          uuid PRIMARY KEY,
	session_id  text,
	username    text,
	event_type  text NOT NULL,
	data        jsonb NOT NULL DEFAULT '{}'::jsonb,
	created_at  timestamptz NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS portal_events_type_created_idx ON portal_events (event_type, created_at)`,
}

// PostgresEventLogger inserts events into the portal_events table.
type PostgresEventLogger struct {
	pool *pgxpool.Pool
}

func NewPostgresEventLogger(pool *pgxpool.Pool) *PostgresEventLogger {
	return &PostgresEventLogger{pool: pool}
}

// EnsureSchema creates the events table if it does not exist.
func (l *PostgresEventLogger) EnsureSchema(ctx context.Context) error {
	if l == nil || l.pool == nil {
		return fmt.Errorf("event logger pool is nil")
	}
	return database.Migrate(ctx, l.pool, "portal_events", schema...)
}

func (l *PostgresEventLogger) LogEvent(event Event) error {
	if l == nil || l.pool == nil {
		return fmt.Errorf("event logger pool is nil")
	}
	if event.EventType == "" {
		return fmt.Errorf("event_type is required")
	}

	payload := event.Data
	if payload == nil {
		payload = map[string]any{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}

	createdAt := event.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	ctx, cancel := context.WithTimeout(context.Background(), dbTimeout)
	defer cancel()

	_, err = l.pool.Exec(ctx,
		`INSERT INTO portal_events (id, session_id, username, event_type, data, created_at)
		 VALUES ($1, $2, $3, $4, $5::jsonb, $6)`,
		uuid.New(),
		nullIfEmpty(event.SessionID),
		nullIfEmpty(event.Username),
		event.EventType,
		string(data),
		createdAt,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}

	slog.Debug("event logged",
		"type", event.EventType,
		"session_id", event.SessionID,
		"username", event.Username,
	)
	return nil
}

// CountByType returns how many events of each type have been recorded.
func (l *PostgresEventLogger) CountByType(ctx context.Context) (map[string]int, error) {
	if l == nil || l.pool == nil {
		return nil, fmt.Errorf("event logger pool is nil")
	}

	rows, err := l.pool.Query(ctx,
		`SELECT event_type, count(*) FROM portal_events GROUP BY event_type`)
	if err != nil {
		return nil, fmt.Errorf("count events: %w", err)
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var eventType string
		var n int
		if err := rows.Scan(&eventType, &n); err != nil {
			return nil, fmt.Errorf("scan event count: %w", err)
		}
		counts[eventType] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate event counts: %w", err)
	}
	return counts, nil
}

func nullIfEmpty(v string) any {
	if v == "" {
		return nil
	}
	return v
}
