package workspace

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/ilyra-ai/december/internal/metrics"
)

const cacheKeyPrefix = "december:context:"

// Fetcher produces the serialized context tree for a container, with an
// optional Redis read-through cache in front of the filesystem walk. A nil
// Redis client disables caching.
type Fetcher struct {
	builder *TreeBuilder
	redis   *redis.Client
	ttl     time.Duration
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

func NewFetcher(builder *TreeBuilder, rdb *redis.Client, ttl time.Duration, logger zerolog.Logger, m *metrics.Metrics) *Fetcher {
	if m == nil {
		m = metrics.Global()
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Fetcher{builder: builder, redis: rdb, ttl: ttl, logger: logger, metrics: m}
}

// ContextJSON returns the serialized tree for the container. Cache failures
// are logged and fall back to a fresh walk; build failures propagate.
func (f *Fetcher) ContextJSON(ctx context.Context, containerID string) (string, error) {
	key := cacheKeyPrefix + containerID

	if f.redis != nil {
		cached, err := f.redis.Get(ctx, key).Result()
		if err == nil {
			f.metrics.ContextHits.Inc()
			return cached, nil
		}
		if !errors.Is(err, redis.Nil) {
			f.logger.Warn().Err(err).Str("container_id", containerID).Msg("context cache read failed")
		}
	}
	f.metrics.ContextMisses.Inc()

	tree, err := f.builder.Build(ctx, containerID)
	if err != nil {
		return "", fmt.Errorf("build context tree: %w", err)
	}
	serialized, err := json.MarshalIndent(tree, "", "  ")
	if err != nil {
		return "", fmt.Errorf("serialize context tree: %w", err)
	}

	if f.redis != nil {
		if err := f.redis.Set(ctx, key, serialized, f.ttl).Err(); err != nil {
			f.logger.Warn().Err(err).Str("container_id", containerID).Msg("context cache write failed")
		}
	}
	return string(serialized), nil
}

// SystemPrompt builds the full system prompt for a container's current state.
func (f *Fetcher) SystemPrompt(ctx context.Context, containerID string) (string, error) {
	contextJSON, err := f.ContextJSON(ctx, containerID)
	if err != nil {
		return "", err
	}
	return promptTemplate + "\n\nCurrent codebase state:\n" + contextJSON, nil
}
