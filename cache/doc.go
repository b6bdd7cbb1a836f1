// Package cache provides the key canonicalization and read-through caching
// contracts shared by the entity store and the transport decorators.
//
// # Search keys
//
// SearchKey turns a structured query into a stable string so that equivalent
// queries hit the same search cache entry regardless of field order:
//
//	a := cache.SearchKey(map[string]any{"sortBy": "new", "filterTagIds": []string{"t1"}})
//	b := cache.SearchKey(map[string]any{"filterTagIds": []string{"t1"}, "sortBy": "new"})
//	// a == b == `["filterTagIds=[\"t1\"]","sortBy=\"new\""]`
//
// Queries may be maps with string keys or structs. Struct fields are named by
// their json tag, `json:"-"` fields are skipped and zero values of omitempty
// fields are treated as absent. nil values of any kind are absent too, so a
// query that sets a field to nil and one that never mentions it share a key.
// The empty query maps to EmptySearchKey, never to "".
//
// # Request keys
//
// KeySerializer builds keys for the response cache from an operation name and
// its arguments:
//
//	serializer := cache.NewDefaultKeySerializer()
//	key := serializer.SerializeKey("ideaSearch", projectID, query)
//	// ideaSearch::proj-1::["sortBy=\"new\""]
//
// The first segment is the operation so that writes can invalidate every
// cached read of an operation with a single prefix.
//
// # Read-through
//
// CacheService is the minimal read-through contract. GetOrFetch is the typed
// wrapper callers use:
//
//	page, err := cache.GetOrFetch(ctx, svc, key, func(ctx context.Context) (*Page, error) {
//		return fetchPage(ctx)
//	})
//
// The default implementation lives in internal/cacheinfra and is backed by
// sturdyc, which also collapses concurrent fetches of the same key into one.
package cache
