package cacheinfra

import (
	"context"
	"strings"
	"time"
)

// KeySeparator defines the delimiter used between cache key segments.
const KeySeparator = "::"

// Entry is a stored value plus the metadata needed by eviction policies.
type Entry struct {
	Value     any
	CreatedAt time.Time
}

// Service is implemented by every store backend in this package.
type Service interface {
	GetOrFetch(ctx context.Context, key string, fetchFn any) (any, error)
	Peek(ctx context.Context, key string) (Entry, bool, error)
	Set(ctx context.Context, key string, value any) error
	Delete(ctx context.Context, key string) error
	DeleteByPrefix(ctx context.Context, prefix string) error
	DeleteByMember(ctx context.Context, memberPrefix string) error
	InvalidateKeys(ctx context.Context, keys []string) error
}

// NewStore builds the backend selected by cfg.Backend, wrapped with
// metrics when cfg.Instrumented is set.
func NewStore(cfg Config) (Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var (
		svc Service
		err error
	)

	backend := cfg.Backend
	switch backend {
	case BackendOtter:
		svc, err = NewOtterService(cfg)
	default:
		backend = BackendSturdyc
		svc, err = NewSturdycService(cfg)
	}
	if err != nil {
		return nil, err
	}

	if cfg.Instrumented {
		return NewInstrumented(svc, backend), nil
	}
	return svc, nil
}

// belongsToMember reports whether key was derived from the member owning
// memberPrefix: either the bare prefix (no arguments) or prefix + "::" + args.
func belongsToMember(key, memberPrefix string) bool {
	if key == memberPrefix {
		return true
	}
	return strings.HasPrefix(key, memberPrefix+KeySeparator)
}
