// Package portal owns the student's session: who is logged in, which level and
// course are open, and the chat and quiz mounted on the open course.
package portal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/p-n-ai/apprend-go/internal/ai"
	"github.com/p-n-ai/apprend-go/internal/analytics"
	"github.com/p-n-ai/apprend-go/internal/catalog"
	"github.com/p-n-ai/apprend-go/internal/chat"
	"github.com/p-n-ai/apprend-go/internal/quiz"
)

var (
	ErrNotAuthenticated   = errors.New("not authenticated")
	ErrMissingCredentials = errors.New("username and password are required")
	ErrCourseNotFound     = errors.New("course not found")
	ErrNoCourseOpen       = errors.New("no course is open")
	ErrNoLevelSelected    = errors.New("no year level selected")
)

// View is the screen the student is on.
type View string

const (
	ViewLogin        View = "login"
	ViewDashboard    View = "dashboard"
	ViewLevelCourses View = "level_courses"
	ViewCourse       View = "course"
)

// User is the logged-in student. No credential is checked or kept.
type User struct {
	Username string            `json:"username"`
	Year     catalog.YearLevel `json:"year"`
}

// Option configures an App.
type Option func(*App)

// WithEventLogger records portal activity.
func WithEventLogger(l analytics.EventLogger) Option {
	return func(a *App) {
		if l != nil {
			a.events = l
		}
	}
}

// App is the portal state for a single student.
type App struct {
	catalog *catalog.Catalog
	tutor   chat.Streamer
	quizGen quiz.Generator
	events  analytics.EventLogger

	mu      sync.Mutex
	user    *User
	view    View
	level   catalog.YearLevel
	course  *catalog.Course
	chat    *chat.Session
	quiz    *quiz.Machine
	results []quiz.Summary
}

// NewApp creates a logged-out portal over the catalog.
func NewApp(cat *catalog.Catalog, tutor chat.Streamer, quizGen quiz.Generator, opts ...Option) *App {
	a := &App{
		catalog: cat,
		tutor:   tutor,
		quizGen: quizGen,
		events:  analytics.NopEventLogger{},
		view:    ViewLogin,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Login starts a session for username. Any non-empty password is accepted.
func (a *App) Login(username, password string) (User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return User{}, ErrMissingCredentials
	}

	a.mu.Lock()
	a.resetLocked()
	a.user = &User{Username: username, Year: catalog.L1}
	a.view = ViewDashboard
	u := *a.user
	a.mu.Unlock()

	slog.Info("student logged in", "username", username)
	a.logEvent(analytics.Event{Username: username, EventType: analytics.EventLogin})
	return u, nil
}

// Logout ends the session and unmounts everything.
func (a *App) Logout() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.user != nil {
		slog.Info("student logged out", "username", a.user.Username)
	}
	a.resetLocked()
}

// SelectLevel shows the courses of a year level.
func (a *App) SelectLevel(level catalog.YearLevel) ([]catalog.Course, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.user == nil {
		return nil, ErrNotAuthenticated
	}
	if _, err := catalog.ParseYearLevel(string(level)); err != nil {
		return nil, err
	}
	a.unmountLocked()
	a.level = level
	a.view = ViewLevelCourses
	return a.catalog.ByYear(level), nil
}

// OpenCourse shows a course and mounts a fresh chat session and quiz on it.
func (a *App) OpenCourse(id string) (catalog.Course, error) {
	a.mu.Lock()
	if a.user == nil {
		a.mu.Unlock()
		return catalog.Course{}, ErrNotAuthenticated
	}
	course, ok := a.catalog.Course(id)
	if !ok {
		a.mu.Unlock()
		return catalog.Course{}, fmt.Errorf("%w: %s", ErrCourseNotFound, id)
	}

	a.unmountLocked()
	username := a.user.Username
	a.level = course.Year
	a.course = &course
	a.view = ViewCourse
	a.chat = chat.NewSession(a.tutor, course.Content,
		chat.WithEventLogger(a.events),
		chat.WithUsername(username),
		chat.WithCourseID(course.ID),
	)
	a.quiz = a.newQuizLocked(username, course.ID)
	sessionID := a.chat.ID()
	a.mu.Unlock()

	a.logEvent(analytics.Event{
		SessionID: sessionID,
		Username:  username,
		EventType: analytics.EventCourseOpened,
		Data:      map[string]any{"course_id": course.ID},
	})
	return course, nil
}

func (a *App) newQuizLocked(username, courseID string) *quiz.Machine {
	return quiz.NewMachine(a.quizGen,
		quiz.WithOnComplete(func(s quiz.Summary) {
			a.mu.Lock()
			a.results = append(a.results, s)
			a.mu.Unlock()

			a.logEvent(analytics.Event{
				Username:  username,
				EventType: analytics.EventQuizCompleted,
				Data: map[string]any{
					"course_id": courseID,
					"title":     s.Title,
					"score":     s.Score,
					"total":     s.Total,
				},
			})
		}),
		quiz.WithOnError(func(err error) {
			a.logEvent(analytics.Event{
				Username:  username,
				EventType: analytics.EventQuizFailed,
				Data: map[string]any{
					"course_id": courseID,
					"error":     err.Error(),
					"schema":    errors.Is(err, ai.ErrSchema),
				},
			})
		}),
	)
}

// BackToLevels returns to the dashboard.
func (a *App) BackToLevels() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.user == nil {
		return ErrNotAuthenticated
	}
	a.unmountLocked()
	a.level = ""
	a.view = ViewDashboard
	return nil
}

// BackToCourseList leaves the open course for the course list of its level.
func (a *App) BackToCourseList() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.user == nil {
		return ErrNotAuthenticated
	}
	if a.level == "" {
		return ErrNoLevelSelected
	}
	a.unmountLocked()
	a.view = ViewLevelCourses
	return nil
}

// Courses lists the courses of the selected level.
func (a *App) Courses() ([]catalog.Course, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.user == nil {
		return nil, ErrNotAuthenticated
	}
	if a.level == "" {
		return nil, ErrNoLevelSelected
	}
	return a.catalog.ByYear(a.level), nil
}

// Course returns the open course.
func (a *App) Course() (catalog.Course, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.user == nil {
		return catalog.Course{}, ErrNotAuthenticated
	}
	if a.course == nil {
		return catalog.Course{}, ErrNoCourseOpen
	}
	return *a.course, nil
}

// Chat returns the chat session of the open course.
func (a *App) Chat() (*chat.Session, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.user == nil {
		return nil, ErrNotAuthenticated
	}
	if a.chat == nil {
		return nil, ErrNoCourseOpen
	}
	return a.chat, nil
}

// Quiz returns the quiz machine of the open course.
func (a *App) Quiz() (*quiz.Machine, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.user == nil {
		return nil, ErrNotAuthenticated
	}
	if a.quiz == nil {
		return nil, ErrNoCourseOpen
	}
	return a.quiz, nil
}

// RequestQuiz generates a new quiz from the open course and blocks until it is
// ready or has failed.
func (a *App) RequestQuiz(ctx context.Context) error {
	a.mu.Lock()
	if a.user == nil {
		a.mu.Unlock()
		return ErrNotAuthenticated
	}
	if a.quiz == nil || a.course == nil {
		a.mu.Unlock()
		return ErrNoCourseOpen
	}
	m, content, courseID, username := a.quiz, a.course.Content, a.course.ID, a.user.Username
	a.mu.Unlock()

	if err := m.Request(ai.WithUser(ctx, username), content); err != nil {
		return err
	}
	a.logEvent(analytics.Event{
		Username:  username,
		EventType: analytics.EventQuizGenerated,
		Data:      map[string]any{"course_id": courseID},
	})
	return nil
}

// Results returns the summaries of quizzes completed this session, oldest first.
func (a *App) Results() (string, []quiz.Summary, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.user == nil {
		return "", nil, ErrNotAuthenticated
	}
	return a.user.Username, append([]quiz.Summary(nil), a.results...), nil
}

// Snapshot is the navigation state for rendering.
type Snapshot struct {
	View     View              `json:"view"`
	User     *User             `json:"user,omitempty"`
	Level    catalog.YearLevel `json:"level,omitempty"`
	CourseID string            `json:"courseId,omitempty"`
	Results  int               `json:"completedQuizzes"`
}

// Snapshot returns the current navigation state.
func (a *App) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	s := Snapshot{
		View:    a.view,
		Level:   a.level,
		Results: len(a.results),
	}
	if a.user != nil {
		u := *a.user
		s.User = &u
	}
	if a.course != nil {
		s.CourseID = a.course.ID
	}
	return s
}

// unmountLocked closes the chat and quiz of the open course.
func (a *App) unmountLocked() {
	if a.chat != nil {
		a.chat.Close()
		a.chat = nil
	}
	if a.quiz != nil {
		a.quiz.Close()
		a.quiz = nil
	}
	a.course = nil
}

func (a *App) resetLocked() {
	a.unmountLocked()
	a.user = nil
	a.level = ""
	a.results = nil
	a.view = ViewLogin
}

func (a *App) logEvent(e analytics.Event) {
	if err := a.events.LogEvent(e); err != nil {
		slog.Warn("failed to log event", "type", e.EventType, "error", err)
	}
}
