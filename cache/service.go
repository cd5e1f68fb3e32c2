package cache

import (
	"context"
	"fmt"

	"github.com/goliatone/go-method-cache/internal/cacheinfra"
)

// Key is a cache key derived from a member and its arguments.
type Key string

// KeyBuilder derives a cache key from a member descriptor and the call
// arguments. Implementations must be pure: equal inputs, equal keys.
type KeyBuilder interface {
	BuildKey(member MemberDescriptor, args ...any) (Key, error)
	// MemberPrefix returns the prefix shared by all keys of member, as
	// expected by Store.DeleteByMember.
	MemberPrefix(member MemberDescriptor) string
}

// KeyComponent can be implemented by argument types that know their own
// stable identity better than the reflection walk does.
type KeyComponent interface {
	CacheKeyComponent() (string, error)
}

// Entry is what a Store keeps for each key: the computed value and its
// creation time.
type Entry = cacheinfra.Entry

// FetchFn is the function signature Store expects when computing a missing value.
type FetchFn[T any] func(ctx context.Context) (T, error)

// Store is the thread-safe key to entry mapping behind the engine.
//
// GetOrFetch runs fetchFn at most once per key under contention and never
// stores a value when fetchFn fails. All delete operations are idempotent.
type Store interface {
	GetOrFetch(ctx context.Context, key string, fetchFn any) (any, error)
	Peek(ctx context.Context, key string) (Entry, bool, error)
	Set(ctx context.Context, key string, value any) error
	Delete(ctx context.Context, key string) error
	DeleteByPrefix(ctx context.Context, prefix string) error
	DeleteByMember(ctx context.Context, memberPrefix string) error
	InvalidateKeys(ctx context.Context, keys []string) error
}

// GetOrFetch is a type-safe wrapper function that provides generic support for Store.
func GetOrFetch[T any](ctx context.Context, store Store, key string, fetchFn FetchFn[T]) (T, error) {
	var zero T

	result, err := store.GetOrFetch(ctx, key, fetchFn)
	if err != nil {
		return zero, err
	}

	// a nil interface is the zero value for interface, pointer, map and slice types
	if result == nil {
		return zero, nil
	}

	typed, ok := result.(T)
	if !ok {
		return zero, fmt.Errorf("%w: key %q holds %T", ErrInvalidResultType, key, result)
	}
	return typed, nil
}
