package mutation

import (
	"context"

	"github.com/goliatone/go-query-cache/cache"
)

type invalidateKey struct{}

// WithInvalidate attaches extra keys to invalidate once the next mutation run
// with ctx succeeds. It makes call-site scope widening explicit and visible.
func WithInvalidate(ctx context.Context, keys ...cache.Key) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if len(keys) == 0 {
		return ctx
	}
	existing := InvalidateFromContext(ctx)
	combined := make([]cache.Key, 0, len(existing)+len(keys))
	combined = append(combined, existing...)
	combined = append(combined, keys...)
	return context.WithValue(ctx, invalidateKey{}, cache.UniqueKeys(combined))
}

// InvalidateFromContext returns the extra keys attached with WithInvalidate.
func InvalidateFromContext(ctx context.Context) []cache.Key {
	if ctx == nil {
		return nil
	}
	if keys, ok := ctx.Value(invalidateKey{}).([]cache.Key); ok {
		return keys
	}
	return nil
}
