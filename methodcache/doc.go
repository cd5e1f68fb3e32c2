// Package methodcache caches the results of methods and properties behind an
// explicit interception boundary.
//
// # Overview
//
// Whatever intercepts calls (generated wrappers, hand-written decorators,
// registration at call sites) hands each call to an Engine as a member
// descriptor, the ordered arguments and a thunk running the real member.
// The Engine consults a Policy and either serves the call from the store or
// runs the thunk:
//
//  1. Classify the member (Cacheable, WriteOnly, NotCacheable)
//  2. Build the cache key from the member and its arguments
//  3. On a hit, return the stored value
//  4. On a miss, run the real member once, even under contention
//  5. Store the result, unless the member failed, and return it
//
// # Policy
//
// A Policy replaces caching attributes with an explicit table:
//
//	policy := methodcache.NewPolicy()
//	policy.Register(cache.Getter("Profile", "DisplayName"))
//	policy.Register(cache.Property("Profile", "Score"))
//	policy.Register(cache.Setter("Profile", "Avatar"),
//		methodcache.Invalidates(cache.Getter("Profile", "AvatarURL")))
//	policy.RegisterType("Catalog")                     // every member of Catalog
//	policy.Exclude(cache.Method("Catalog", "Now"))      // except this one
//
// The same table can be loaded from YAML with LoadPolicy or LoadPolicyFile.
//
// # Member kinds
//
//   - Getters and methods are cached per argument list
//   - Read/write properties are cached when read (no arguments); writing
//     (one argument, the new value) invalidates the cached read first
//   - Setters of set-only properties are WriteOnly: they never touch the
//     store, except to invalidate the targets declared with Invalidates
//   - Members that are not registered always call through
//
// # Invalidation
//
// Engine implements Remover, the capability business code receives to drop
// entries explicitly:
//
//	type Profile struct {
//		cache methodcache.Remover
//	}
//
//	func (p *Profile) Reload(ctx context.Context) error {
//		return p.cache.RemoveAll(ctx, cache.Getter("Profile", "DisplayName"))
//	}
//
// Removing an entry that does not exist is not an error.
//
// # Concurrency
//
// Engines are safe for concurrent use. Concurrent misses on one key run the
// real member once and every caller receives the same result. Writes lock
// the affected members exclusively while they invalidate and apply, so once
// a write returns no reader observes the value from before it. A real thunk
// must not call back into the write path of the member being read: it would
// wait on its own lock.
package methodcache
