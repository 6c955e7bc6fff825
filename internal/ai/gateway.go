package ai

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

const (
	defaultTimeout   = 60 * time.Second
	tutorTemperature = 0.7
	quizTemperature  = 0.5
)

// Gateway exposes the two AI capabilities of the portal: a streamed tutor reply grounded
// in the course text, and a structured quiz generated from it.
type Gateway struct {
	provider Provider
	model    string
	timeout  time.Duration
	budget   BudgetChecker
}

// GatewayOption configures a Gateway.
type GatewayOption func(*Gateway)

// WithModel overrides the provider default model.
func WithModel(model string) GatewayOption {
	return func(g *Gateway) {
		g.model = model
	}
}

// WithTimeout bounds every provider call. Non-positive values keep the default.
func WithTimeout(d time.Duration) GatewayOption {
	return func(g *Gateway) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// WithBudget enables per-user token accounting.
func WithBudget(b BudgetChecker) GatewayOption {
	return func(g *Gateway) {
		g.budget = b
	}
}

// NewGateway creates a gateway over the given provider.
func NewGateway(provider Provider, opts ...GatewayOption) *Gateway {
	g := &Gateway{
		provider: provider,
		timeout:  defaultTimeout,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// StreamTutorReply asks the tutor to answer newMessage given the prior history and the
// course text. Errors raised before the first fragment are returned; later failures
// arrive as a chunk with Error set. Cancelling ctx aborts the provider call.
func (g *Gateway) StreamTutorReply(ctx context.Context, history []Message, newMessage, courseContext string) (<-chan StreamChunk, error) {
	user := UserFromContext(ctx)
	if err := g.checkBudget(ctx, user); err != nil {
		return nil, err
	}

	messages := make([]Message, 0, len(history)+1)
	messages = append(messages, history...)
	messages = append(messages, Message{Role: RoleUser, Content: newMessage})

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	src, err := g.provider.StreamComplete(callCtx, CompletionRequest{
		System:      tutorInstruction(courseContext),
		Messages:    messages,
		Model:       g.model,
		Temperature: tutorTemperature,
		Task:        TaskTutoring,
	})
	if err != nil {
		err = classify(callCtx, g.timeout, err)
		cancel()
		return nil, err
	}

	out := make(chan StreamChunk)
	go func() {
		defer close(out)
		defer cancel()

		// Sends only give up when the caller itself went away.
		forward := func(c StreamChunk) bool {
			select {
			case out <- c:
				return true
			case <-ctx.Done():
				return false
			}
		}

		finished := false
		for c := range src {
			if c.Error != nil {
				c.Error = classify(callCtx, g.timeout, c.Error)
				finished = true
			}
			if c.Done {
				finished = true
				g.recordUsage(ctx, user, c.InputTokens+c.OutputTokens)
			}
			if !forward(c) {
				return
			}
		}
		if !finished {
			err := callCtx.Err()
			if err == nil {
				err = fmt.Errorf("stream closed without completion")
			}
			forward(StreamChunk{Error: classify(callCtx, g.timeout, err)})
		}
	}()
	return out, nil
}

func (g *Gateway) checkBudget(ctx context.Context, user string) error {
	if g.budget == nil || user == "" {
		return nil
	}
	ok, err := g.budget.Check(ctx, user)
	if err != nil {
		// Accounting outages do not block students.
		slog.Warn("budget check failed", "user", user, "error", err)
		return nil
	}
	if !ok {
		return fmt.Errorf("%w for user %s", ErrBudgetExceeded, user)
	}
	return nil
}

func (g *Gateway) recordUsage(ctx context.Context, user string, tokens int) {
	if g.budget == nil || user == "" || tokens <= 0 {
		return
	}
	if err := g.budget.Record(context.WithoutCancel(ctx), user, tokens); err != nil {
		slog.Warn("failed to record token usage", "user", user, "error", err)
	}
}

func tutorInstruction(courseContext string) string {
	return `Tu es un professeur expert en Lettres Modernes à l'université.
Tu es pédagogue, précis, et encourageant.

Le contexte du cours actuel est le suivant :
---
` + courseContext + `
---

Réponds aux questions de l'étudiant en te basant sur ce cours.
Si la question sort du cours, utilise tes connaissances générales en littérature mais précise que ce n'est pas dans l'extrait ci-dessus.
Sois concis mais complet. Utilise le formatage Markdown pour la clarté.`
}
