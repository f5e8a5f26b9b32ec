package assistant

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// AnalysisCache memoizes successful search analyses per normalized query.
type AnalysisCache interface {
	Get(ctx context.Context, query string) (Analysis, bool)
	Set(ctx context.Context, query string, a Analysis)
}

type RedisCache struct {
	rdb    redis.UniversalClient
	ttl    time.Duration
	logger *slog.Logger
}

func NewRedisCache(rdb redis.UniversalClient, ttl time.Duration, logger *slog.Logger) *RedisCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RedisCache{rdb: rdb, ttl: ttl, logger: logger}
}

func (c *RedisCache) Get(ctx context.Context, query string) (Analysis, bool) {
	raw, err := c.rdb.Get(ctx, cacheKey(query)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("analysis cache read failed", "err", err)
		}
		return Analysis{}, false
	}
	var a Analysis
	if err := json.Unmarshal(raw, &a); err != nil {
		return Analysis{}, false
	}
	return a, true
}

func (c *RedisCache) Set(ctx context.Context, query string, a Analysis) {
	raw, err := json.Marshal(a)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, cacheKey(query), raw, c.ttl).Err(); err != nil {
		c.logger.Warn("analysis cache write failed", "err", err)
	}
}

func cacheKey(query string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(query)), " ")
	sum := sha256.Sum256([]byte(normalized))
	return "search:analysis:" + hex.EncodeToString(sum[:])
}
