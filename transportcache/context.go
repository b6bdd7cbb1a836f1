package transportcache

import (
	"context"
	"slices"
)

type invalidationContextKey struct{}

type bypassContextKey struct{}

// WithInvalidation attaches extra key prefixes that a successful write made
// with ctx invalidates, on top of the written resource.
func WithInvalidation(ctx context.Context, prefixes ...string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if len(prefixes) == 0 {
		return ctx
	}

	combined := append(invalidationFromContext(ctx), prefixes...)
	slices.Sort(combined)
	combined = slices.Compact(combined)

	return context.WithValue(ctx, invalidationContextKey{}, combined)
}

func invalidationFromContext(ctx context.Context) []string {
	if ctx == nil {
		return nil
	}
	if prefixes, ok := ctx.Value(invalidationContextKey{}).([]string); ok {
		return append([]string(nil), prefixes...)
	}
	return nil
}

// WithBypass makes reads issued with ctx skip the cache. The fresh response
// is not stored either.
func WithBypass(ctx context.Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, bypassContextKey{}, true)
}

func bypassed(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	v, _ := ctx.Value(bypassContextKey{}).(bool)
	return v
}
