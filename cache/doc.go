// Package cache provides the contracts and the key builder behind member caching.
//
// # Overview
//
// This package exports the building blocks the methodcache engine is made of:
//
//   - MemberDescriptor: identifies a cacheable member (type, member name, kind)
//   - KeyBuilder: derives a stable cache key from a member and its arguments
//   - Store: a thread-safe read-through store with per-key deduplication
//   - Config: store configuration, NewStore builds the configured backend
//
// # Keys
//
// The default key builder produces keys shaped as
//
//	Type::Member::kind[::arg::arg...]
//
// Arguments are encoded by value and tagged with their Go type, so int 1,
// int64 1 and "1" are three different keys. Strings are quoted, which keeps
// separators inside values from forging collisions.
//
//	builder := cache.NewDefaultKeyBuilder()
//	key, err := builder.BuildKey(cache.Method("Pricing", "Quote"), "EUR", 3)
//	// Pricing::Quote::method::string:"EUR"::int:3
//
// Pointers are dereferenced, maps are encoded in sorted order and struct
// fields (exported or not) are walked recursively. Values implementing
// KeyComponent or encoding.TextMarshaler use that representation instead.
//
// Functions, channels and unsafe pointers only have identity, not a value:
// BuildKey rejects them with an *UnsupportedKeyArgumentError that matches
// ErrUnsupportedKeyArgument.
//
// # Stores
//
// Two backends are available, sturdyc (default) and otter:
//
//	store, err := cache.NewStore(cache.DefaultConfig())
//	value, err := cache.GetOrFetch(ctx, store, string(key), func(ctx context.Context) (int, error) {
//		return compute(ctx)
//	})
//
// A failed fetch is never stored. DeleteByMember removes every key built for
// a member, whatever the arguments.
package cache
