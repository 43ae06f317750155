package reasoningbank

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ringmaster-dev/ringmaster/internal/config"
	"github.com/ringmaster-dev/ringmaster/internal/logging"
)

// RedisRateCache is a RateCache backed by Redis, letting several
// ringmasterd replicas share one success-rate rollup instead of each
// recomputing it from task_outcomes on every scheduling decision.
// Entries are stored as "<rate>:<samples>" strings under
// "ringmaster:ratecache:<project>:<model>" with a TTL.
type RedisRateCache struct {
	client *redis.Client
	ttl    time.Duration
	log    *logging.Logger
}

// NewRedisRateCache connects to the configured Redis instance. The
// connection is not verified here; a dead Redis simply makes every Get a
// cache miss, never an error the caller has to handle.
func NewRedisRateCache(cfg config.ReasoningBankConfig) (*RedisRateCache, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("reasoningbank: parse redis url: %w", err)
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &RedisRateCache{
		client: redis.NewClient(opts),
		ttl:    ttl,
		log:    logging.For("reasoningbank.redis"),
	}, nil
}

func (c *RedisRateCache) key(projectID, modelUsed string) string {
	return "ringmaster:ratecache:" + projectID + ":" + modelUsed
}

// Get returns a cached rate/sample pair; ok is false on a miss or a
// Redis error, which callers treat identically (fall through to repo).
func (c *RedisRateCache) Get(projectID, modelUsed string) (float64, int, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	val, err := c.client.Get(ctx, c.key(projectID, modelUsed)).Result()
	if err != nil {
		if err != redis.Nil {
			c.log.Warn("rate cache get %s/%s: %v", projectID, modelUsed, err)
		}
		return 0, 0, false
	}
	rate, samples, ok := decodeRate(val)
	return rate, samples, ok
}

// Set stores a rate/sample pair with the configured TTL. Errors are
// logged, not returned: a failed cache write degrades to a cache miss
// next time, never a correctness problem.
func (c *RedisRateCache) Set(projectID, modelUsed string, rate float64, samples int) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := c.client.Set(ctx, c.key(projectID, modelUsed), encodeRate(rate, samples), c.ttl).Err(); err != nil {
		c.log.Warn("rate cache set %s/%s: %v", projectID, modelUsed, err)
	}
}

// Close releases the underlying Redis connection pool.
func (c *RedisRateCache) Close() error {
	return c.client.Close()
}

func encodeRate(rate float64, samples int) string {
	return strconv.FormatFloat(rate, 'f', -1, 64) + ":" + strconv.Itoa(samples)
}

func decodeRate(val string) (float64, int, bool) {
	parts := strings.SplitN(val, ":", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	rate, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return 0, 0, false
	}
	samples, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, false
	}
	return rate, samples, true
}
