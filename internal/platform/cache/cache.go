// Package cache provides the Dragonfly/Redis client that backs shared token budgets.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// ClientName identifies portal connections in CLIENT LIST.
const ClientName = "apprend"

// KeyPrefix namespaces every key the portal writes, so one Dragonfly instance can be
// shared with other services.
const KeyPrefix = "apprend"

var keyEscaper = strings.NewReplacer("%", "%25", ":", "%3A")

// Key builds a namespaced key such as "apprend:budget:alice". Parts are escaped so
// the ':' separator stays unambiguous whatever a username contains.
func Key(parts ...string) string {
	escaped := make([]string, 0, len(parts)+1)
	escaped = append(escaped, KeyPrefix)
	for _, p := range parts {
		escaped = append(escaped, keyEscaper.Replace(p))
	}
	return strings.Join(escaped, ":")
}

// Cache wraps a Redis/Dragonfly client.
type Cache struct {
	Client *redis.Client
}

// ParseURL validates a Redis connection URL.
func ParseURL(url string) (*redis.Options, error) {
	if url == "" {
		return nil, fmt.Errorf("cache URL is empty")
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid cache URL: %w", err)
	}
	if opts.ClientName == "" {
		opts.ClientName = ClientName
	}
	return opts, nil
}

// New creates a cache client and checks it with a ping.
func New(ctx context.Context, url string) (*Cache, error) {
	opts, err := ParseURL(url)
	if err != nil {
		return nil, err
	}

	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("pinging cache: %w", err)
	}

	slog.Info("cache connected", "addr", opts.Addr, "db", opts.DB)
	return &Cache{Client: client}, nil
}

// Close shuts down the cache client.
func (c *Cache) Close() error {
	return c.Client.Close()
}

// HealthCheck verifies the cache connection is alive.
func (c *Cache) HealthCheck(ctx context.Context) error {
	if err := c.Client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("cache %s: %w", c.Client.Options().Addr, err)
	}
	return nil
}
