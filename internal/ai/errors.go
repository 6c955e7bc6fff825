package ai

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrConfiguration means the provider cannot be used at all, e.g. a missing API key.
	ErrConfiguration = errors.New("ai configuration error")
	// ErrTransport covers network, provider and timeout failures.
	ErrTransport = errors.New("ai transport error")
	// ErrSchema means a structured response did not match the declared shape.
	ErrSchema = errors.New("ai schema error")
	// ErrBudgetExceeded means the user has spent their token budget.
	ErrBudgetExceeded = errors.New("ai token budget exceeded")
	// ErrEmptyResponse is returned by providers when a response carries no text.
	ErrEmptyResponse = errors.New("empty response from provider")
)

// classify maps a provider error onto the gateway error taxonomy. Errors that already
// belong to it pass through untouched.
func classify(ctx context.Context, timeout time.Duration, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrConfiguration),
		errors.Is(err, ErrTransport),
		errors.Is(err, ErrSchema),
		errors.Is(err, ErrBudgetExceeded):
		return err
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%w: no answer within %s: %w", ErrTransport, timeout, err)
	default:
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}
}
