package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Client wraps Redis operations for leases, caches and admin sessions.
type Client struct {
	rdb *redis.Client
}

// Config holds Redis connection configuration.
type Config struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
}

// NewClient creates a new Redis client.
func NewClient(cfg Config) (*Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	rdb := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping checks connectivity for health reporting.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Key helpers
func leaseKey(recordID string) string {
	return fmt.Sprintf("burnrelay:lease:%s", recordID)
}

func classificationKey(key string) string {
	return fmt.Sprintf("burnrelay:classification:%s", key)
}

func revokedKey(sessionID string) string {
	return fmt.Sprintf("burnrelay:revoked:%s", sessionID)
}

// Only the owner may extend or drop a lease.
var (
	refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)

	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)
)

// AcquireLease attempts to take the execution lease of a record for owner.
func (c *Client) AcquireLease(ctx context.Context, recordID, owner string, ttl time.Duration) (bool, error) {
	ok, err := c.rdb.SetNX(ctx, leaseKey(recordID), owner, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("setnx failed: %w", err)
	}
	return ok, nil
}

// RefreshLease extends the TTL of a lease still held by owner.
func (c *Client) RefreshLease(ctx context.Context, recordID, owner string, ttl time.Duration) (bool, error) {
	n, err := refreshScript.Run(ctx, c.rdb, []string{leaseKey(recordID)}, owner, ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("refresh lease failed: %w", err)
	}
	return n == 1, nil
}

// ReleaseLease drops a lease held by owner.
func (c *Client) ReleaseLease(ctx context.Context, recordID, owner string) error {
	if err := releaseScript.Run(ctx, c.rdb, []string{leaseKey(recordID)}, owner).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release lease failed: %w", err)
	}
	return nil
}

// LeaseHeld reports whether any process holds the lease of a record.
func (c *Client) LeaseHeld(ctx context.Context, recordID string) (bool, error) {
	n, err := c.rdb.Exists(ctx, leaseKey(recordID)).Result()
	if err != nil {
		return false, fmt.Errorf("exists failed: %w", err)
	}
	return n > 0, nil
}
