package consol

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const cacheVersionKey = "consol:cache:version"

// CachedRun is the cached outcome of a consolidation keyed by workbook digest.
type CachedRun struct {
	RunID    string  `json:"run_id"`
	Result   *Result `json:"result"`
	Workbook []byte  `json:"workbook"`
}

// ResultCache wraps Redis based caching of consolidation outcomes with
// versioned keys. A nil cache or client disables caching.
type ResultCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewResultCache instantiates the cache helper.
func NewResultCache(client *redis.Client, ttl time.Duration) *ResultCache {
	return &ResultCache{client: client, ttl: ttl}
}

// Version returns the current cache version, initialising when missing.
func (c *ResultCache) Version(ctx context.Context) (int64, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	ver, err := c.client.Get(ctx, cacheVersionKey).Int64()
	if errors.Is(err, redis.Nil) {
		if err := c.client.Set(ctx, cacheVersionKey, 1, 0).Err(); err != nil {
			return 0, err
		}
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	if ver <= 0 {
		ver = 1
		if err := c.client.Set(ctx, cacheVersionKey, ver, 0).Err(); err != nil {
			return 0, err
		}
	}
	return ver, nil
}

// Bump invalidates every cached run by incrementing the version.
func (c *ResultCache) Bump(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Incr(ctx, cacheVersionKey).Err()
}

func (c *ResultCache) key(ctx context.Context, digest string) (string, error) {
	ver, err := c.Version(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:%d", strings.Join([]string{"consol", "run", digest}, ":"), ver), nil
}

// Load returns the cached run for digest. The boolean is false on a miss.
func (c *ResultCache) Load(ctx context.Context, digest string) (CachedRun, bool, error) {
	if c == nil || c.client == nil {
		return CachedRun{}, false, nil
	}
	key, err := c.key(ctx, digest)
	if err != nil {
		return CachedRun{}, false, err
	}
	payload, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return CachedRun{}, false, nil
	}
	if err != nil {
		return CachedRun{}, false, err
	}
	var run CachedRun
	if err := json.Unmarshal(payload, &run); err != nil {
		return CachedRun{}, false, err
	}
	return run, true, nil
}

// Store caches run under digest for the configured TTL.
func (c *ResultCache) Store(ctx context.Context, digest string, run CachedRun) error {
	if c == nil || c.client == nil {
		return nil
	}
	key, err := c.key(ctx, digest)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(run)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, raw, c.ttl).Err()
}
