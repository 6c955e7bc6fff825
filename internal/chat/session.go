// Package chat runs the tutor conversation attached to an open course.
package chat

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"

	"github.com/p-n-ai/apprend-go/internal/ai"
	"github.com/p-n-ai/apprend-go/internal/analytics"
)

const (
	// Greeting is always the first turn of a transcript.
	Greeting = "Bonjour ! Je suis votre tuteur virtuel pour ce cours. Avez-vous des questions sur le texte ou les concepts ?"
	// Apology is appended as an error turn when a reply fails.
	Apology = "Désolé, j'ai rencontré une erreur de connexion."
)

// Turn is one entry of the transcript.
type Turn struct {
	Role    ai.Role `json:"role"`
	Text    string  `json:"text"`
	IsError bool    `json:"isError,omitempty"`
}

// Streamer produces a streamed tutor reply.
type Streamer interface {
	StreamTutorReply(ctx context.Context, history []ai.Message, newMessage, courseContext string) (<-chan ai.StreamChunk, error)
}

// Option configures a Session.
type Option func(*Session)

// WithEventLogger reports failed replies to an analytics logger.
func WithEventLogger(l analytics.EventLogger) Option {
	return func(s *Session) {
		if l != nil {
			s.events = l
		}
	}
}

// WithUsername tags analytics events and budget accounting with the student's name.
func WithUsername(username string) Option {
	return func(s *Session) {
		s.username = username
	}
}

// WithCourseID tags analytics events with the course being discussed.
func WithCourseID(id string) Option {
	return func(s *Session) {
		s.courseID = id
	}
}

// Session holds the transcript of one mounted course view. At most one reply is
// in flight at a time.
type Session struct {
	id       string
	streamer Streamer
	course   string
	courseID string
	username string
	events   analytics.EventLogger

	life  context.Context
	close context.CancelFunc

	mu         sync.Mutex
	transcript []Turn
	awaiting   bool
}

// NewSession creates a session grounded in courseContent. The transcript starts with
// the greeting.
func NewSession(streamer Streamer, courseContent string, opts ...Option) *Session {
	life, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:         uuid.NewString(),
		streamer:   streamer,
		course:     courseContent,
		events:     analytics.NopEventLogger{},
		life:       life,
		close:      cancel,
		transcript: []Turn{{Role: ai.RoleAssistant, Text: Greeting}},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ID identifies the session in logs and analytics.
func (s *Session) ID() string { return s.id }

// Submit sends text to the tutor and blocks until the reply is complete, failed or
// cancelled. onUpdate, if set, is called with the index and content of every turn
// that is added or changed. It returns false without doing anything when text is
// blank, a reply is already in flight, or the session is closed.
func (s *Session) Submit(ctx context.Context, text string, onUpdate func(index int, t Turn)) bool {
	text = norm.NFC.String(strings.TrimSpace(text))
	if text == "" {
		return false
	}
	if onUpdate == nil {
		onUpdate = func(int, Turn) {}
	}

	s.mu.Lock()
	if s.awaiting || s.life.Err() != nil {
		s.mu.Unlock()
		return false
	}
	history := make([]ai.Message, 0, len(s.transcript))
	for _, t := range s.transcript {
		history = append(history, ai.Message{Role: t.Role, Content: t.Text})
	}
	s.transcript = append(s.transcript, Turn{Role: ai.RoleUser, Text: text})
	userIdx := len(s.transcript) - 1
	s.transcript = append(s.transcript, Turn{Role: ai.RoleAssistant})
	replyIdx := len(s.transcript) - 1
	s.awaiting = true
	s.mu.Unlock()

	onUpdate(userIdx, Turn{Role: ai.RoleUser, Text: text})
	onUpdate(replyIdx, Turn{Role: ai.RoleAssistant})

	callCtx, cancel := context.WithCancel(ai.WithUser(ctx, s.username))
	defer cancel()
	stop := context.AfterFunc(s.life, cancel)
	defer stop()

	err := s.stream(callCtx, history, text, replyIdx, onUpdate)

	s.mu.Lock()
	s.awaiting = false
	if err == nil || callCtx.Err() != nil {
		s.mu.Unlock()
		if err != nil {
			slog.Debug("tutor reply cancelled", "session_id", s.id)
		}
		return true
	}
	s.transcript = append(s.transcript, Turn{Role: ai.RoleAssistant, Text: Apology, IsError: true})
	apologyIdx := len(s.transcript) - 1
	s.mu.Unlock()

	slog.Error("tutor reply failed", "session_id", s.id, "course_id", s.courseID, "error", err)
	if logErr := s.events.LogEvent(analytics.Event{
		SessionID: s.id,
		Username:  s.username,
		EventType: analytics.EventChatError,
		Data:      map[string]any{"course_id": s.courseID, "error": err.Error()},
	}); logErr != nil {
		slog.Warn("failed to log chat error event", "error", logErr)
	}
	onUpdate(apologyIdx, Turn{Role: ai.RoleAssistant, Text: Apology, IsError: true})
	return true
}

// stream folds the reply fragments into the placeholder turn at idx.
func (s *Session) stream(ctx context.Context, history []ai.Message, text string, idx int, onUpdate func(int, Turn)) error {
	chunks, err := s.streamer.StreamTutorReply(ctx, history, text, s.course)
	if err != nil {
		return err
	}

	var reply strings.Builder
	for c := range chunks {
		if c.Error != nil {
			return c.Error
		}
		if c.Content == "" {
			continue
		}
		reply.WriteString(c.Content)
		turn := Turn{Role: ai.RoleAssistant, Text: reply.String()}

		s.mu.Lock()
		s.transcript[idx] = turn
		s.mu.Unlock()
		onUpdate(idx, turn)
	}
	return ctx.Err()
}

// Transcript returns a copy of the turns so far.
func (s *Session) Transcript() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Turn(nil), s.transcript...)
}

// Awaiting reports whether a reply is in flight.
func (s *Session) Awaiting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.awaiting
}

// Close cancels any in-flight reply. Later submissions are ignored.
func (s *Session) Close() {
	s.close()
}
