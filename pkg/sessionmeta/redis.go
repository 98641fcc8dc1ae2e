package sessionmeta

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/scanauth/pkg/session"
)

// RedisCache stores the breadcrumb under a single key whose TTL equals the
// configured max age.
type RedisCache struct {
	client redis.UniversalClient
	key    string
	opts   options
}

// NewRedisCache returns a RedisCache using key.
func NewRedisCache(client redis.UniversalClient, key string, opts ...Option) *RedisCache {
	return &RedisCache{client: client, key: key, opts: newOptions(opts)}
}

func (c *RedisCache) Store(ctx context.Context, s *session.Session) error {
	if s == nil {
		return nil
	}
	data, err := json.Marshal(Metadata{HadSession: true, CapturedAt: c.opts.now().UTC()})
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, c.key, data, c.opts.maxAge).Err(); err != nil {
		return errors.Join(ErrUnavailable, err)
	}
	return nil
}

func (c *RedisCache) Clear(ctx context.Context) error {
	if err := c.client.Del(ctx, c.key).Err(); err != nil {
		return errors.Join(ErrUnavailable, err)
	}
	return nil
}

func (c *RedisCache) HadRecentSession(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, c.opts.lookupTimeout)
	defer cancel()

	data, err := c.client.Get(ctx, c.key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.opts.warn(ctx, "session metadata unavailable, skipping recovery", err)
		}
		return false
	}
	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		c.opts.warn(ctx, "session metadata corrupt, skipping recovery", errors.Join(ErrCorrupt, err))
		return false
	}
	return meta.recent(c.opts.now(), c.opts.maxAge)
}
