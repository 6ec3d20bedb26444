package http

import (
	"context"
	"log/slog"
	"time"

	"github.com/couchcryptid/disaster-report-server/internal/cache"
	json "github.com/goccy/go-json"
)

// SharedStore is a response cache tier shared between server instances.
// A ttl of 0 stores without expiry. Get reports the entry's remaining ttl.
type SharedStore interface {
	Get(ctx context.Context, key string) ([]byte, time.Duration, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// responseCache serves rendered responses from process memory first, then
// from the shared store, and only then runs the loader. Failures of the
// shared store degrade to a miss.
type responseCache struct {
	local  *cache.Cache[Response]
	shared SharedStore
	logger *slog.Logger
}

func (c *responseCache) getOrLoad(ctx context.Context, key cache.Key, exp cache.Expiry, load func(context.Context) (Response, error)) (Response, error) {
	return c.local.GetOrLoadWithExpiry(ctx, key, func(ctx context.Context) (Response, cache.Expiry, error) {
		if resp, ttl, ok := c.sharedGet(ctx, key); ok {
			return resp, localExpiry(exp, ttl), nil
		}
		resp, err := load(ctx)
		if err != nil {
			return resp, exp, err
		}
		c.sharedSet(ctx, key, resp, exp)
		return resp, exp, nil
	})
}

// localExpiry keeps a response taken from the shared tier no longer than the
// shared tier would have kept it.
func localExpiry(exp cache.Expiry, remaining time.Duration) cache.Expiry {
	if remaining > 0 && (exp.Policy == cache.Permanent || remaining < exp.TTL) {
		return cache.For(remaining)
	}
	return exp
}

func (c *responseCache) sharedGet(ctx context.Context, key cache.Key) (Response, time.Duration, bool) {
	if c.shared == nil {
		return Response{}, 0, false
	}
	b, ttl, ok, err := c.shared.Get(ctx, key.String())
	if err != nil {
		c.logger.Warn("shared cache read failed", "key", key.String(), "error", err)
		return Response{}, 0, false
	}
	if !ok {
		return Response{}, 0, false
	}
	var resp Response
	if err := json.Unmarshal(b, &resp); err != nil {
		c.logger.Warn("shared cache entry unreadable", "key", key.String(), "error", err)
		return Response{}, 0, false
	}
	return resp, ttl, true
}

func (c *responseCache) sharedSet(ctx context.Context, key cache.Key, resp Response, exp cache.Expiry) {
	if c.shared == nil {
		return
	}
	var ttl time.Duration
	if exp.Policy == cache.Temporary {
		if exp.TTL <= 0 {
			return
		}
		ttl = exp.TTL
	}
	b, err := json.Marshal(resp)
	if err != nil {
		c.logger.Warn("shared cache encode failed", "key", key.String(), "error", err)
		return
	}
	if err := c.shared.Set(ctx, key.String(), b, ttl); err != nil {
		c.logger.Warn("shared cache write failed", "key", key.String(), "error", err)
	}
}
