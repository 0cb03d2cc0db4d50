package external

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/trial-eligibility-server/internal/domain"
)

// CriteriaCacheClient is the Redis tier of the criteria cache. It
// implements domain.CriteriaCache.
type CriteriaCacheClient struct {
	redis      *redis.Client
	defaultTTL time.Duration
}

// NewCriteriaCacheClient creates a Redis-backed criteria cache and
// verifies connectivity.
func NewCriteriaCacheClient(config domain.CacheConfig) (*CriteriaCacheClient, error) {
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	if config.PoolSize > 0 {
		opts.PoolSize = config.PoolSize
	}
	if config.PoolTimeout > 0 {
		opts.PoolTimeout = config.PoolTimeout
	}
	if config.MaxRetries > 0 {
		opts.MaxRetries = config.MaxRetries
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	ttl := config.DefaultTTL
	if ttl == 0 {
		ttl = 24 * time.Hour
	}

	return &CriteriaCacheClient{
		redis:      client,
		defaultTTL: ttl,
	}, nil
}

// cachedCriteria wraps a criterion set with cache metadata.
type cachedCriteria struct {
	Criteria  []*domain.Criterion `json:"criteria"`
	CachedAt  time.Time           `json:"cached_at"`
	ExpiresAt time.Time           `json:"expires_at"`
}

// GetCriteria retrieves the cached criteria for a trial.
func (c *CriteriaCacheClient) GetCriteria(ctx context.Context, trialID string) ([]*domain.Criterion, bool, error) {
	key := criteriaKey(trialID)

	val, err := c.redis.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get criteria cache: %w", err)
	}

	var cached cachedCriteria
	if err := json.Unmarshal([]byte(val), &cached); err != nil {
		// Corrupted entry, drop it and treat as a miss.
		c.redis.Del(ctx, key)
		return nil, false, nil
	}

	if time.Now().After(cached.ExpiresAt) {
		c.redis.Del(ctx, key)
		return nil, false, nil
	}

	return cached.Criteria, true, nil
}

// SetCriteria caches the criteria for a trial at the default TTL.
func (c *CriteriaCacheClient) SetCriteria(ctx context.Context, trialID string, criteria []*domain.Criterion) error {
	cached := cachedCriteria{
		Criteria:  criteria,
		CachedAt:  time.Now(),
		ExpiresAt: time.Now().Add(c.defaultTTL),
	}

	data, err := json.Marshal(cached)
	if err != nil {
		return fmt.Errorf("failed to marshal criteria cache data: %w", err)
	}

	return c.redis.Set(ctx, criteriaKey(trialID), data, c.defaultTTL).Err()
}

// InvalidateCriteria removes a trial's cached criteria.
func (c *CriteriaCacheClient) InvalidateCriteria(ctx context.Context, trialID string) error {
	return c.redis.Del(ctx, criteriaKey(trialID)).Err()
}

// Ping checks if the Redis connection is alive.
func (c *CriteriaCacheClient) Ping(ctx context.Context) error {
	return c.redis.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *CriteriaCacheClient) Close() error {
	return c.redis.Close()
}

func criteriaKey(trialID string) string {
	return fmt.Sprintf("criteria:trial:%s", trialID)
}
