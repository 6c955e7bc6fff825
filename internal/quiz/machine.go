package quiz

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// State is the phase of a quiz attempt.
type State string

const (
	StateIdle      State = "idle"
	StateLoading   State = "loading"
	StateAnswering State = "answering"
	StateRevealed  State = "revealed"
	StateCompleted State = "completed"
	StateError     State = "error"
)

// ErrSuperseded is returned by Request when the quiz was closed or re-requested
// before the generation finished. The late result is dropped.
var ErrSuperseded = errors.New("quiz request superseded")

// Generator produces quiz data from course content.
type Generator interface {
	GenerateQuiz(ctx context.Context, courseContent string) (Data, error)
}

// Option configures a Machine.
type Option func(*Machine)

// WithOnComplete registers a hook called once per finished attempt.
func WithOnComplete(fn func(Summary)) Option {
	return func(m *Machine) {
		m.onComplete = fn
	}
}

// WithOnError registers a hook called when generation fails.
func WithOnError(fn func(error)) Option {
	return func(m *Machine) {
		m.onError = fn
	}
}

// WithClock overrides the completion timestamp source (for testing).
func WithClock(now func() time.Time) Option {
	return func(m *Machine) {
		m.now = now
	}
}

// Machine plays one quiz at a time: loading, answering, revealing and scoring.
type Machine struct {
	gen Generator

	mu       sync.Mutex
	state    State
	data     *Data
	index    int
	selected int // -1 when nothing is highlighted
	score    int
	err      error
	summary  *Summary
	attempt  uint64

	onComplete func(Summary)
	onError    func(error)
	now        func() time.Time
}

// NewMachine creates an idle quiz machine.
func NewMachine(gen Generator, opts ...Option) *Machine {
	m := &Machine{
		gen:      gen,
		state:    StateIdle,
		selected: -1,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Request discards any current quiz and generates a new one from the course content.
// It blocks for the whole generation round trip.
func (m *Machine) Request(ctx context.Context, courseContent string) error {
	m.mu.Lock()
	m.attempt++
	attempt := m.attempt
	m.resetLocked()
	m.state = StateLoading
	m.mu.Unlock()

	data, err := m.gen.GenerateQuiz(ctx, courseContent)
	if err == nil {
		err = data.Validate()
	}

	m.mu.Lock()
	if attempt != m.attempt {
		m.mu.Unlock()
		slog.Debug("dropping superseded quiz result", "attempt", attempt)
		return ErrSuperseded
	}
	if err != nil {
		m.state = StateError
		m.err = err
		m.mu.Unlock()

		slog.Error("quiz generation failed", "error", err)
		if m.onError != nil {
			m.onError(err)
		}
		return err
	}
	m.data = &data
	m.state = StateAnswering
	m.mu.Unlock()

	slog.Info("quiz ready", "title", data.Title, "questions", len(data.Questions))
	return nil
}

// Select highlights an option of the current question. It is ignored unless answering.
func (m *Machine) Select(idx int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateAnswering {
		return false
	}
	if idx < 0 || idx >= len(m.data.Questions[m.index].Options) {
		return false
	}
	m.selected = idx
	return true
}

// Validate reveals the current question and scores the selection. It scores each
// question at most once.
func (m *Machine) Validate() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateAnswering || m.selected < 0 {
		return false
	}
	if m.selected == m.data.Questions[m.index].CorrectAnswerIndex {
		m.score++
	}
	m.state = StateRevealed
	return true
}

// Advance moves to the next question, or completes the attempt after the last one.
// The summary is returned only on completion; the quiz data is discarded then.
func (m *Machine) Advance() (Summary, bool) {
	m.mu.Lock()

	if m.state != StateRevealed {
		m.mu.Unlock()
		return Summary{}, false
	}

	if m.index < len(m.data.Questions)-1 {
		m.index++
		m.selected = -1
		m.state = StateAnswering
		m.mu.Unlock()
		return Summary{}, false
	}

	// validate() already counted the last answer.
	summary := Summary{
		Title:       m.data.Title,
		Score:       m.score,
		Total:       len(m.data.Questions),
		CompletedAt: m.now(),
	}
	m.resetLocked()
	m.state = StateCompleted
	m.summary = &summary
	m.mu.Unlock()

	slog.Info("quiz completed", "score", summary.Score, "total", summary.Total)
	if m.onComplete != nil {
		m.onComplete(summary)
	}
	return summary, true
}

// Close dismisses the quiz view. Any in-flight generation result is dropped.
func (m *Machine) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.attempt++
	m.resetLocked()
	m.state = StateIdle
}

// State returns the current phase.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Score returns the score of the current attempt.
func (m *Machine) Score() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.score
}

func (m *Machine) resetLocked() {
	m.data = nil
	m.index = 0
	m.selected = -1
	m.score = 0
	m.err = nil
	m.summary = nil
}

// QuestionView is a question as shown to the student. The answer and explanation
// stay hidden until the question is revealed.
type QuestionView struct {
	Question           string   `json:"question"`
	Options            []string `json:"options"`
	CorrectAnswerIndex *int     `json:"correctAnswerIndex,omitempty"`
	Explanation        string   `json:"explanation,omitempty"`
}

// Snapshot is a read-only copy of the machine state.
type Snapshot struct {
	State         State         `json:"state"`
	Title         string        `json:"title,omitempty"`
	QuestionIndex int           `json:"questionIndex"`
	QuestionCount int           `json:"questionCount"`
	Question      *QuestionView `json:"question,omitempty"`
	Selected      *int          `json:"selected"`
	Correct       *bool         `json:"correct,omitempty"`
	Score         int           `json:"score"`
	Summary       *Summary      `json:"summary,omitempty"`
	Error         string        `json:"error,omitempty"`
}

// Snapshot returns the current state for rendering.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Snapshot{
		State:         m.state,
		QuestionIndex: m.index,
		Score:         m.score,
		Summary:       m.summary,
	}
	if m.err != nil {
		s.Error = m.err.Error()
	}
	if m.selected >= 0 {
		sel := m.selected
		s.Selected = &sel
	}
	if m.data == nil {
		return s
	}

	s.Title = m.data.Title
	s.QuestionCount = len(m.data.Questions)

	q := m.data.Questions[m.index]
	view := &QuestionView{
		Question: q.Question,
		Options:  append([]string(nil), q.Options...),
	}
	if m.state == StateRevealed {
		correctIdx := q.CorrectAnswerIndex
		correct := m.selected == correctIdx
		view.CorrectAnswerIndex = &correctIdx
		view.Explanation = q.Explanation
		s.Correct = &correct
	}
	s.Question = view
	return s
}
