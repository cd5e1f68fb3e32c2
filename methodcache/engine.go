package methodcache

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/brunoga/deep"
	"github.com/goliatone/go-method-cache/cache"
	"github.com/rs/zerolog"
)

// RealFn invokes the real, undecorated member.
type RealFn func(ctx context.Context) (any, error)

// Remover is the invalidation capability handed to business code.
type Remover interface {
	// Remove drops the entry cached for member called with args.
	Remove(ctx context.Context, member cache.MemberDescriptor, args ...any) error
	// RemoveAll drops every entry cached for member.
	RemoveAll(ctx context.Context, member cache.MemberDescriptor) error
}

// Interface assertion to ensure Engine can be injected as a Remover
var _ Remover = (*Engine)(nil)

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger used for hit/miss/invalidation events.
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithCopyOnRead makes the engine hand out deep copies of cached values.
func WithCopyOnRead(enabled bool) Option {
	return func(e *Engine) {
		e.copyOnRead = enabled
	}
}

// Engine decides, per intercepted call, whether to serve a cached value or
// run the real member, and exposes explicit invalidation.
type Engine struct {
	policy     Classifier
	keys       cache.KeyBuilder
	store      cache.Store
	guards     *guards
	logger     zerolog.Logger
	copyOnRead bool
}

// New creates an Engine over store. Several engines may share one store.
func New(store cache.Store, keys cache.KeyBuilder, policy Classifier, opts ...Option) *Engine {
	e := &Engine{
		policy: policy,
		keys:   keys,
		store:  store,
		guards: newGuards(),
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Invoke handles one intercepted call of member with args. real runs the
// undecorated member.
//
// A read/write property is read when called without arguments and written
// when called with its new value.
func (e *Engine) Invoke(ctx context.Context, member cache.MemberDescriptor, args []any, real RealFn) (any, error) {
	switch e.policy.Classify(member) {
	case WriteOnly:
		return e.write(ctx, member, real, false)

	case Cacheable:
		if member.Kind == cache.KindReadWriteProperty {
			switch len(args) {
			case 0:
			case 1:
				return e.write(ctx, member, real, true)
			default:
				return nil, fmt.Errorf("%w: property %s called with %d arguments", cache.ErrInvalidInvocation, member, len(args))
			}
		}
		if refreshRequested(ctx) {
			return e.Refresh(ctx, member, args, real)
		}
		return e.read(ctx, member, args, real)

	default:
		e.logger.Debug().Stringer("member", member).Msg("member not cacheable, calling through")
		return real(ctx)
	}
}

// Invoke is the typed form of Engine.Invoke.
func Invoke[T any](ctx context.Context, e *Engine, member cache.MemberDescriptor, args []any, real func(context.Context) (T, error)) (T, error) {
	var zero T

	value, err := e.Invoke(ctx, member, args, func(ctx context.Context) (any, error) {
		return real(ctx)
	})
	if err != nil {
		return zero, err
	}

	if value == nil {
		return zero, nil
	}

	typed, ok := value.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %s returned %T", cache.ErrInvalidResultType, member, value)
	}
	return typed, nil
}

// Refresh recomputes member for args and overwrites the stored entry. A
// failed computation leaves the previous entry in place.
func (e *Engine) Refresh(ctx context.Context, member cache.MemberDescriptor, args []any, real RealFn) (any, error) {
	switch e.policy.Classify(member) {
	case NotCacheable:
		return real(ctx)
	case WriteOnly:
		return nil, fmt.Errorf("%w: %s has no read path to refresh", cache.ErrInvalidInvocation, member)
	}

	if member.Kind == cache.KindReadWriteProperty && len(args) > 0 {
		return nil, fmt.Errorf("%w: property %s is refreshed without arguments", cache.ErrInvalidInvocation, member)
	}

	key, err := e.keys.BuildKey(member, args...)
	if err != nil {
		return nil, err
	}

	unlock := e.guards.lockShared(member)
	defer unlock()

	value, err := real(ctx)
	if err != nil {
		return nil, err
	}

	if err := e.store.Set(ctx, string(key), value); err != nil {
		return nil, fmt.Errorf("store refreshed value: %w", err)
	}

	e.logger.Debug().Stringer("member", member).Str("key", string(key)).Msg("cache entry refreshed")
	return e.copyValue(value), nil
}

// Remove implements Remover. Removing an absent entry is a no-op.
func (e *Engine) Remove(ctx context.Context, member cache.MemberDescriptor, args ...any) error {
	key, err := e.keys.BuildKey(member, args...)
	if err != nil {
		return err
	}

	if err := e.store.Delete(ctx, string(key)); err != nil {
		return fmt.Errorf("remove %s: %w", key, err)
	}

	e.logger.Debug().Stringer("member", member).Str("key", string(key)).Msg("cache entry removed")
	return nil
}

// RemoveAll implements Remover.
func (e *Engine) RemoveAll(ctx context.Context, member cache.MemberDescriptor) error {
	if err := member.Validate(); err != nil {
		return err
	}
	return e.invalidate(ctx, member)
}

func (e *Engine) read(ctx context.Context, member cache.MemberDescriptor, args []any, real RealFn) (any, error) {
	key, err := e.keys.BuildKey(member, args...)
	if err != nil {
		return nil, err
	}

	var computed atomic.Bool
	value, err := e.populate(ctx, member, key, func(ctx context.Context) (any, error) {
		computed.Store(true)
		return real(ctx)
	})
	if err != nil {
		return nil, err
	}

	if computed.Load() {
		e.logger.Debug().Stringer("member", member).Str("key", string(key)).Msg("cache miss")
	} else {
		e.logger.Debug().Stringer("member", member).Str("key", string(key)).Msg("cache hit")
	}

	return e.copyValue(value), nil
}

type fetchResult struct {
	value any
	err   error
}

// populate runs the store lookup under the member's shared guard. The guard
// is held until the lookup, and any computation it started, has finished,
// even when the caller stops waiting first: a write cannot slip in between
// a computation reading the old state and its result being stored.
func (e *Engine) populate(ctx context.Context, member cache.MemberDescriptor, key cache.Key, fetch RealFn) (any, error) {
	if ctx.Done() == nil {
		unlock := e.guards.lockShared(member)
		defer unlock()
		return e.store.GetOrFetch(ctx, string(key), fetch)
	}

	done := make(chan fetchResult, 1)
	go func() {
		unlock := e.guards.lockShared(member)
		defer unlock()

		if err := ctx.Err(); err != nil {
			done <- fetchResult{err: err}
			return
		}

		value, err := e.store.GetOrFetch(context.WithoutCancel(ctx), string(key), fetch)
		done <- fetchResult{value: value, err: err}
	}()

	select {
	case res := <-done:
		return res.value, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// write runs a write path. Entries of the member itself (read/write
// properties) and of its declared targets are dropped before real runs,
// with every affected member locked exclusively.
func (e *Engine) write(ctx context.Context, member cache.MemberDescriptor, real RealFn, invalidateSelf bool) (any, error) {
	targets := e.policy.Invalidations(member)
	if invalidateSelf {
		targets = append([]cache.MemberDescriptor{member}, targets...)
	}

	if len(targets) == 0 {
		e.logger.Debug().Stringer("member", member).Msg("write-only member, bypassing cache")
		return real(ctx)
	}

	unlock := e.guards.lockExclusive(targets)
	defer unlock()

	if err := e.invalidate(ctx, targets...); err != nil {
		return nil, err
	}

	return real(ctx)
}

func (e *Engine) invalidate(ctx context.Context, members ...cache.MemberDescriptor) error {
	for _, m := range members {
		prefix := e.keys.MemberPrefix(m)
		if err := e.store.DeleteByMember(ctx, prefix); err != nil {
			return fmt.Errorf("invalidate %s: %w", m, err)
		}
		e.logger.Debug().Stringer("member", m).Msg("cache entries invalidated")
	}
	return nil
}

func (e *Engine) copyValue(value any) any {
	if !e.copyOnRead || value == nil {
		return value
	}

	copied, err := deep.Copy(value)
	if err != nil {
		e.logger.Debug().Err(err).Str("type", fmt.Sprintf("%T", value)).Msg("value cannot be copied, returning shared instance")
		return value
	}
	return copied
}
