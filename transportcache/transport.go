package transportcache

import (
	"context"
	"io"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/goliatone/go-entity-cache/cache"
	"github.com/goliatone/go-entity-cache/dispatch"
	"github.com/goliatone/go-entity-cache/internal/telemetry"
	"github.com/sirupsen/logrus"
)

var _ dispatch.Transport = (*CachedTransport)(nil)

// CachedTransport decorates a base transport with read caching.
type CachedTransport struct {
	base          dispatch.Transport
	cache         cache.CacheService
	keySerializer cache.KeySerializer
	keyRegistry   *sync.Map // keys stored through this transport, for prefix invalidation
	logger        logrus.FieldLogger
	metrics       *telemetry.Metrics
}

// Option configures a CachedTransport.
type Option func(*CachedTransport)

// WithLogger sets the logger used to report failed invalidations.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(c *CachedTransport) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(c *CachedTransport) {
		c.metrics = m
	}
}

// New wraps base with the given cache.
func New(base dispatch.Transport, cacheService cache.CacheService, keySerializer cache.KeySerializer, opts ...Option) *CachedTransport {
	discard := logrus.New()
	discard.SetOutput(io.Discard)

	c := &CachedTransport{
		base:          base,
		cache:         cacheService,
		keySerializer: keySerializer,
		keyRegistry:   &sync.Map{},
		logger:        discard,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Do serves reads from the cache and invalidates after successful writes.
func (c *CachedTransport) Do(ctx context.Context, req *dispatch.Request) (*dispatch.Response, error) {
	if !req.IsRead() {
		resp, err := c.base.Do(ctx, req)
		if err == nil && resp != nil && dispatch.CheckStatus(resp) == nil {
			c.invalidateAfterWrite(ctx, req)
		}
		return resp, err
	}

	if bypassed(ctx) {
		c.metrics.ObserveResponseCache("bypass")
		return c.base.Do(ctx, req)
	}

	key := c.Key(req)
	c.trackKey(key)

	var fetched atomic.Bool
	resp, err := cache.GetOrFetch(ctx, c.cache, key, func(ctx context.Context) (*dispatch.Response, error) {
		fetched.Store(true)
		resp, err := c.base.Do(ctx, req)
		if err != nil {
			return nil, err
		}
		if resp == nil {
			return nil, nil
		}
		// non 2xx responses must reach the pipeline but never the cache
		if err := dispatch.CheckStatus(resp); err != nil {
			return nil, err
		}
		return resp, nil
	})
	if fetched.Load() {
		c.metrics.ObserveResponseCache("miss")
	} else {
		c.metrics.ObserveResponseCache("hit")
	}
	if err != nil {
		return nil, err
	}
	return copyResponse(resp), nil
}

// Key returns the cache key of a read request.
func (c *CachedTransport) Key(req *dispatch.Request) string {
	return c.keySerializer.SerializeKey(req.Path, req.Query, req.Body)
}

// Invalidate drops every cached read whose key starts with prefix.
func (c *CachedTransport) Invalidate(ctx context.Context, prefix string) error {
	return c.invalidateByPrefix(ctx, prefix)
}

// trackKey registers a cache key in the key registry for later invalidation
func (c *CachedTransport) trackKey(key string) {
	c.keyRegistry.Store(key, struct{}{})
}

// invalidateByPrefix removes all cached keys that start with the given prefix
func (c *CachedTransport) invalidateByPrefix(ctx context.Context, prefix string) error {
	var keysToDelete []string
	c.keyRegistry.Range(func(k, v any) bool {
		if key, ok := k.(string); ok && strings.HasPrefix(key, prefix) {
			keysToDelete = append(keysToDelete, key)
		}
		return true
	})

	var firstErr error
	for _, key := range keysToDelete {
		if err := c.cache.Delete(ctx, key); err != nil {
			c.logger.WithError(err).WithField("key", key).Warn("response cache delete failed")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		c.keyRegistry.Delete(key)
		c.metrics.ObserveResponseCache("invalidate")
	}
	return firstErr
}

// invalidateAfterWrite drops the reads of the written resource and any
// prefixes attached to ctx.
func (c *CachedTransport) invalidateAfterWrite(ctx context.Context, req *dispatch.Request) {
	prefixes := append(invalidationFromContext(ctx), resourcePrefix(req.Path))
	for _, prefix := range prefixes {
		if prefix == "" {
			continue
		}
		_ = c.invalidateByPrefix(ctx, prefix)
	}
}

// resourcePrefix returns the first path segment: "/idea/idea-1/vote" gives
// "/idea".
func resourcePrefix(path string) string {
	trimmed := strings.TrimPrefix(path, "/")
	if trimmed == "" {
		return ""
	}
	if i := strings.IndexByte(trimmed, '/'); i >= 0 {
		trimmed = trimmed[:i]
	}
	return "/" + trimmed
}

func copyResponse(resp *dispatch.Response) *dispatch.Response {
	if resp == nil {
		return nil
	}
	out := *resp
	out.Header = resp.Header.Clone()
	return &out
}
