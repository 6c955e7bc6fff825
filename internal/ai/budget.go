package ai

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/p-n-ai/apprend-go/internal/platform/cache"
)

// BudgetChecker checks and records token usage against per-user budgets.
type BudgetChecker interface {
	// Check returns true if the user has budget remaining.
	Check(ctx context.Context, userID string) (bool, error)
	// Record records token usage for a user.
	Record(ctx context.Context, userID string, tokens int) error
	// Usage returns current usage and limit for a user. A limit of 0 means unlimited.
	Usage(ctx context.Context, userID string) (used int64, budget int64, err error)
}

type userKey struct{}

// WithUser attaches the acting username to ctx for budget accounting.
func WithUser(ctx context.Context, username string) context.Context {
	return context.WithValue(ctx, userKey{}, username)
}

// UserFromContext returns the username set by WithUser, or "".
func UserFromContext(ctx context.Context) string {
	u, _ := ctx.Value(userKey{}).(string)
	return u
}

// InMemoryBudget is an in-memory budget tracker for single-process use.
type InMemoryBudget struct {
	mu           sync.RWMutex
	defaultLimit int64
	budgets      map[string]int64 // user -> budget limit
	usage        map[string]int64 // user -> tokens used
}

// NewInMemoryBudget creates a tracker where every user gets defaultLimit tokens.
// A defaultLimit of 0 means unlimited unless SetBudget is called.
func NewInMemoryBudget(defaultLimit int64) *InMemoryBudget {
	return &InMemoryBudget{
		defaultLimit: defaultLimit,
		budgets:      make(map[string]int64),
		usage:        make(map[string]int64),
	}
}

// SetBudget sets the token budget for a user.
func (b *InMemoryBudget) SetBudget(userID string, tokens int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.budgets[userID] = tokens
}

func (b *InMemoryBudget) limit(userID string) int64 {
	if l, ok := b.budgets[userID]; ok {
		return l
	}
	return b.defaultLimit
}

func (b *InMemoryBudget) Check(_ context.Context, userID string) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	budget := b.limit(userID)
	if budget <= 0 {
		return true, nil
	}
	return b.usage[userID] < budget, nil
}

func (b *InMemoryBudget) Record(_ context.Context, userID string, tokens int) error {
	if tokens < 0 {
		return fmt.Errorf("tokens must be non-negative, got %d", tokens)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.usage[userID] += int64(tokens)
	return nil
}

func (b *InMemoryBudget) Usage(_ context.Context, userID string) (int64, int64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.usage[userID], b.limit(userID), nil
}

// RedisBudget tracks usage in Redis/Dragonfly so it survives restarts.
type RedisBudget struct {
	client *redis.Client
	limit  int64
}

// NewRedisBudget creates a Redis-backed tracker with the same limit for every user.
func NewRedisBudget(client *redis.Client, limit int64) *RedisBudget {
	return &RedisBudget{client: client, limit: limit}
}

func redisBudgetKey(userID string) string {
	return cache.Key("budget", userID)
}

func (b *RedisBudget) used(ctx context.Context, userID string) (int64, error) {
	used, err := b.client.Get(ctx, redisBudgetKey(userID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading token usage: %w", err)
	}
	return used, nil
}

func (b *RedisBudget) Check(ctx context.Context, userID string) (bool, error) {
	if b.limit <= 0 {
		return true, nil
	}
	used, err := b.used(ctx, userID)
	if err != nil {
		return false, err
	}
	return used < b.limit, nil
}

func (b *RedisBudget) Record(ctx context.Context, userID string, tokens int) error {
	if tokens < 0 {
		return fmt.Errorf("tokens must be non-negative, got %d", tokens)
	}
	if err := b.client.IncrBy(ctx, redisBudgetKey(userID), int64(tokens)).Err(); err != nil {
		return fmt.Errorf("recording token usage: %w", err)
	}
	return nil
}

func (b *RedisBudget) Usage(ctx context.Context, userID string) (int64, int64, error) {
	used, err := b.used(ctx, userID)
	if err != nil {
		return 0, 0, err
	}
	return used, b.limit, nil
}
