package cacheinfra

import (
	"context"

	"golang.org/x/sync/singleflight"
)

// flightGroup collapses concurrent misses for the same key into a single
// computation. The computation is detached from the first caller's
// cancellation; a caller whose context ends just stops waiting.
type flightGroup struct {
	group singleflight.Group
}

func (f *flightGroup) do(ctx context.Context, key string, fn func(context.Context) (Entry, error)) (Entry, error) {
	ch := f.group.DoChan(key, func() (any, error) {
		return fn(context.WithoutCancel(ctx))
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return Entry{}, res.Err
		}
		return res.Val.(Entry), nil
	case <-ctx.Done():
		return Entry{}, ctx.Err()
	}
}
