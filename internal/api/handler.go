// Package api exposes the portal over JSON/HTTP and streams tutor replies over a websocket.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/cors"

	"github.com/p-n-ai/apprend-go/internal/ai"
	"github.com/p-n-ai/apprend-go/internal/catalog"
	"github.com/p-n-ai/apprend-go/internal/chat"
	"github.com/p-n-ai/apprend-go/internal/portal"
	"github.com/p-n-ai/apprend-go/internal/quiz"
	"github.com/p-n-ai/apprend-go/internal/report"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 64 << 10

var errBadLevel = errors.New("unknown year level")

// Handler serves the portal API for one student session.
type Handler struct {
	app            *portal.App
	catalog        *catalog.Catalog
	allowedOrigins []string
}

// NewHandler returns the API routes wrapped in CORS for the given origins.
func NewHandler(app *portal.App, cat *catalog.Catalog, allowedOrigins []string) http.Handler {
	h := &Handler{app: app, catalog: cat, allowedOrigins: allowedOrigins}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/login", h.Login)
	mux.HandleFunc("POST /api/logout", h.Logout)
	mux.HandleFunc("GET /api/state", h.State)

	mux.HandleFunc("GET /api/levels", h.Levels)
	mux.HandleFunc("POST /api/levels/{level}", h.SelectLevel)
	mux.HandleFunc("GET /api/courses", h.Courses)
	mux.HandleFunc("POST /api/courses/{id}", h.OpenCourse)
	mux.HandleFunc("POST /api/navigation/levels", h.BackToLevels)
	mux.HandleFunc("POST /api/navigation/courses", h.BackToCourseList)

	mux.HandleFunc("GET /api/chat", h.Chat)
	mux.HandleFunc("POST /api/chat", h.SubmitChat)
	mux.HandleFunc("GET /api/chat/ws", h.ChatWebSocket)

	mux.HandleFunc("GET /api/quiz", h.Quiz)
	mux.HandleFunc("POST /api/quiz", h.RequestQuiz)
	mux.HandleFunc("DELETE /api/quiz", h.CloseQuiz)
	mux.HandleFunc("POST /api/quiz/select", h.SelectOption)
	mux.HandleFunc("POST /api/quiz/validate", h.ValidateAnswer)
	mux.HandleFunc("POST /api/quiz/advance", h.Advance)

	mux.HandleFunc("GET /api/reports/quiz.xlsx", h.QuizReport)

	c := cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: true,
	})
	return c.Handler(mux)
}

func jsonResponse(w http.ResponseWriter, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Debug("failed to encode response", "error", err)
	}
}

func errorResponse(w http.ResponseWriter, message string, status int) {
	jsonResponse(w, map[string]string{"error": message}, status)
}

// statusFor maps domain errors onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, portal.ErrNotAuthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, portal.ErrMissingCredentials), errors.Is(err, errBadLevel):
		return http.StatusBadRequest
	case errors.Is(err, portal.ErrCourseNotFound):
		return http.StatusNotFound
	case errors.Is(err, portal.ErrNoCourseOpen),
		errors.Is(err, portal.ErrNoLevelSelected),
		errors.Is(err, quiz.ErrSuperseded):
		return http.StatusConflict
	case errors.Is(err, ai.ErrBudgetExceeded):
		return http.StatusTooManyRequests
	case errors.Is(err, ai.ErrConfiguration):
		return http.StatusServiceUnavailable
	case errors.Is(err, ai.ErrTransport), errors.Is(err, ai.ErrSchema):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "error", err)
	}
	errorResponse(w, err.Error(), status)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		errorResponse(w, "invalid JSON body", http.StatusBadRequest)
		return false
	}
	return true
}

// === Session ===

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if _, err := h.app.Login(req.Username, req.Password); err != nil {
		writeError(w, err)
		return
	}
	jsonResponse(w, h.app.Snapshot(), http.StatusOK)
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	h.app.Logout()
	jsonResponse(w, h.app.Snapshot(), http.StatusOK)
}

func (h *Handler) State(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, h.app.Snapshot(), http.StatusOK)
}

// === Navigation ===

type levelView struct {
	Code    catalog.YearLevel `json:"code"`
	Label   string            `json:"label"`
	Courses int               `json:"courses"`
}

func (h *Handler) Levels(w http.ResponseWriter, r *http.Request) {
	levels := make([]levelView, 0, len(catalog.Levels))
	for _, l := range catalog.Levels {
		levels = append(levels, levelView{Code: l, Label: l.Label(), Courses: len(h.catalog.ByYear(l))})
	}
	jsonResponse(w, levels, http.StatusOK)
}

func (h *Handler) SelectLevel(w http.ResponseWriter, r *http.Request) {
	level, err := catalog.ParseYearLevel(r.PathValue("level"))
	if err != nil {
		writeError(w, fmt.Errorf("%w: %q", errBadLevel, r.PathValue("level")))
		return
	}
	courses, err := h.app.SelectLevel(level)
	if err != nil {
		writeError(w, err)
		return
	}
	jsonResponse(w, courses, http.StatusOK)
}

func (h *Handler) Courses(w http.ResponseWriter, r *http.Request) {
	courses, err := h.app.Courses()
	if err != nil {
		writeError(w, err)
		return
	}
	jsonResponse(w, courses, http.StatusOK)
}

type courseView struct {
	Course catalog.Course  `json:"course"`
	Blocks []catalog.Block `json:"blocks"`
}

func (h *Handler) OpenCourse(w http.ResponseWriter, r *http.Request) {
	course, err := h.app.OpenCourse(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	jsonResponse(w, courseView{Course: course, Blocks: catalog.ParseContent(course.Content)}, http.StatusOK)
}

func (h *Handler) BackToLevels(w http.ResponseWriter, r *http.Request) {
	if err := h.app.BackToLevels(); err != nil {
		writeError(w, err)
		return
	}
	jsonResponse(w, h.app.Snapshot(), http.StatusOK)
}

func (h *Handler) BackToCourseList(w http.ResponseWriter, r *http.Request) {
	if err := h.app.BackToCourseList(); err != nil {
		writeError(w, err)
		return
	}
	jsonResponse(w, h.app.Snapshot(), http.StatusOK)
}

// === Chat ===

type chatView struct {
	SessionID  string      `json:"sessionId"`
	Awaiting   bool        `json:"awaiting"`
	Transcript []chat.Turn `json:"transcript"`
}

func viewOf(s *chat.Session) chatView {
	return chatView{SessionID: s.ID(), Awaiting: s.Awaiting(), Transcript: s.Transcript()}
}

func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	session, err := h.app.Chat()
	if err != nil {
		writeError(w, err)
		return
	}
	jsonResponse(w, viewOf(session), http.StatusOK)
}

type chatMessage struct {
	Text string `json:"text"`
}

// SubmitChat sends a message and answers with the transcript once the reply is complete.
func (h *Handler) SubmitChat(w http.ResponseWriter, r *http.Request) {
	session, err := h.app.Chat()
	if err != nil {
		writeError(w, err)
		return
	}
	var msg chatMessage
	if !decodeJSON(w, r, &msg) {
		return
	}
	if !session.Submit(r.Context(), msg.Text, nil) {
		jsonResponse(w, viewOf(session), http.StatusConflict)
		return
	}
	jsonResponse(w, viewOf(session), http.StatusOK)
}

// === Quiz ===

type quizAction struct {
	Applied bool          `json:"applied"`
	Quiz    quiz.Snapshot `json:"quiz"`
}

func (h *Handler) Quiz(w http.ResponseWriter, r *http.Request) {
	m, err := h.app.Quiz()
	if err != nil {
		writeError(w, err)
		return
	}
	jsonResponse(w, m.Snapshot(), http.StatusOK)
}

// RequestQuiz blocks until the quiz is generated. Generation failures answer with
// the quiz snapshot, which is then in the error state.
func (h *Handler) RequestQuiz(w http.ResponseWriter, r *http.Request) {
	err := h.app.RequestQuiz(r.Context())
	if errors.Is(err, portal.ErrNotAuthenticated) || errors.Is(err, portal.ErrNoCourseOpen) {
		writeError(w, err)
		return
	}
	m, qerr := h.app.Quiz()
	if qerr != nil {
		writeError(w, qerr)
		return
	}
	status := http.StatusOK
	if err != nil {
		status = statusFor(err)
	}
	jsonResponse(w, m.Snapshot(), status)
}

func (h *Handler) CloseQuiz(w http.ResponseWriter, r *http.Request) {
	m, err := h.app.Quiz()
	if err != nil {
		writeError(w, err)
		return
	}
	m.Close()
	jsonResponse(w, m.Snapshot(), http.StatusOK)
}

type selectRequest struct {
	Index *int `json:"index"`
}

func (h *Handler) SelectOption(w http.ResponseWriter, r *http.Request) {
	m, err := h.app.Quiz()
	if err != nil {
		writeError(w, err)
		return
	}
	var req selectRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Index == nil {
		errorResponse(w, "index is required", http.StatusBadRequest)
		return
	}
	applied := m.Select(*req.Index)
	jsonResponse(w, quizAction{Applied: applied, Quiz: m.Snapshot()}, http.StatusOK)
}

func (h *Handler) ValidateAnswer(w http.ResponseWriter, r *http.Request) {
	m, err := h.app.Quiz()
	if err != nil {
		writeError(w, err)
		return
	}
	applied := m.Validate()
	jsonResponse(w, quizAction{Applied: applied, Quiz: m.Snapshot()}, http.StatusOK)
}

func (h *Handler) Advance(w http.ResponseWriter, r *http.Request) {
	m, err := h.app.Quiz()
	if err != nil {
		writeError(w, err)
		return
	}
	before := m.Snapshot()
	_, _ = m.Advance()
	after := m.Snapshot()
	applied := before.State == quiz.StateRevealed
	jsonResponse(w, quizAction{Applied: applied, Quiz: after}, http.StatusOK)
}

// === Reports ===

func (h *Handler) QuizReport(w http.ResponseWriter, r *http.Request) {
	username, results, err := h.app.Results()
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", report.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="quiz-results.xlsx"`)
	if err := report.WriteQuizResults(w, username, results); err != nil {
		slog.Error("failed to write quiz report", "error", err)
	}
}

// originPatterns turns allowed origins into host patterns for the websocket handshake.
func originPatterns(origins []string) []string {
	patterns := make([]string, 0, len(origins))
	for _, o := range origins {
		if o == "*" {
			return []string{"*"}
		}
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			patterns = append(patterns, u.Host)
			continue
		}
		patterns = append(patterns, strings.TrimSuffix(o, "/"))
	}
	return patterns
}
