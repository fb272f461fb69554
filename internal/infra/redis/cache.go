package redis

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vietddude/burnrelay/internal/core/domain"
)

// ClassificationCache stores token classifications shared across instances.
type ClassificationCache struct {
	rdb *redis.Client
}

func NewClassificationCache(client *Client) *ClassificationCache {
	return &ClassificationCache{rdb: client.rdb}
}

// Get returns a cached classification. Redis errors count as a miss.
func (c *ClassificationCache) Get(ctx context.Context, key string) (domain.TokenClassification, bool) {
	data, err := c.rdb.Get(ctx, classificationKey(key)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			slog.Warn("Classification cache read failed", "key", key, "error", err)
		}
		return domain.TokenClassification{}, false
	}

	var tc domain.TokenClassification
	if err := json.Unmarshal(data, &tc); err != nil {
		slog.Warn("Dropping undecodable classification", "key", key, "error", err)
		return domain.TokenClassification{}, false
	}
	return tc, true
}

// Set stores a classification for ttl.
func (c *ClassificationCache) Set(ctx context.Context, key string, tc domain.TokenClassification, ttl time.Duration) {
	data, err := json.Marshal(tc)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, classificationKey(key), data, ttl).Err(); err != nil {
		slog.Warn("Classification cache write failed", "key", key, "error", err)
	}
}
