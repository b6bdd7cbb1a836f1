// Package transportcache decorates a dispatch.Transport with a read response
// cache.
//
// Reads (GET, HEAD and requests flagged ReadOnly) are served through a
// cache.CacheService keyed by path, query and body. Concurrent identical reads
// share one upstream call and only successful responses are stored. Writes
// pass through untouched and, once they succeed, drop every cached read under
// the written resource:
//
//	PATCH /idea/idea-1/vote   invalidates   /idea...
//	POST  /comment            invalidates   /comment...
//
// Additional prefixes can be attached to a write with WithInvalidation, and a
// single read can skip the cache with WithBypass.
//
// Usage:
//
//	svc, err := cache.NewCacheService(cache.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	cached := transportcache.New(httpTransport, svc, cache.NewDefaultKeySerializer())
//	pipeline := dispatch.New(cached)
package transportcache
