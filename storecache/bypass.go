package storecache

import (
	"context"
)

type bypassContextKey struct{}

// WithBypass marks ctx so reads on a caching store go straight to the
// delegate. The caches are neither consulted nor populated.
func WithBypass(ctx context.Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, bypassContextKey{}, true)
}

// IsBypassed reports whether ctx was marked with WithBypass.
func IsBypassed(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	bypass, _ := ctx.Value(bypassContextKey{}).(bool)
	return bypass
}
