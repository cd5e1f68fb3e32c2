package methodcache

import "context"

type refreshContextKey struct{}

// WithRefresh marks reads made with the returned context as explicit
// refreshes: cacheable members are recomputed and their entry overwritten.
func WithRefresh(ctx context.Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, refreshContextKey{}, true)
}

func refreshRequested(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	refresh, _ := ctx.Value(refreshContextKey{}).(bool)
	return refresh
}
