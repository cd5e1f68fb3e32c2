package cacheinfra

import (
	"context"
	"strings"
	"time"

	"github.com/maypok86/otter/v2"
)

// otterService is a store backed by otter. TTL counts from creation, so a
// cached member result is never kept alive just by being read.
type otterService struct {
	cache  *otter.Cache[string, Entry]
	flight flightGroup
	now    func() time.Time
}

// NewOtterService creates a new otter store from cfg. NumShards,
// EvictionPercentage and EvictionInterval do not apply to otter.
func NewOtterService(cfg Config) (*otterService, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := otter.Must(&otter.Options[string, Entry]{
		MaximumSize:      cfg.Capacity,
		ExpiryCalculator: otter.ExpiryCreating[string, Entry](cfg.TTL),
	})

	return &otterService{cache: c, now: time.Now}, nil
}

// GetOrFetch returns the stored value for key or runs fetchFn to compute it.
func (s *otterService) GetOrFetch(ctx context.Context, key string, fetchFn any) (any, error) {
	if err := validateFetchFn(fetchFn); err != nil {
		return nil, err
	}

	loader := otter.LoaderFunc[string, Entry](func(ctx context.Context, key string) (Entry, error) {
		value, err := callFetchFunction(ctx, fetchFn)
		if err != nil {
			return Entry{}, err
		}
		return Entry{Value: value, CreatedAt: s.now()}, nil
	})

	entry, err := s.flight.do(ctx, key, func(ctx context.Context) (Entry, error) {
		return s.cache.Get(ctx, key, loader)
	})
	if err != nil {
		return nil, err
	}

	return entry.Value, nil
}

// Peek returns the entry for key without computing it.
func (s *otterService) Peek(ctx context.Context, key string) (Entry, bool, error) {
	entry, ok := s.cache.GetIfPresent(key)
	return entry, ok, nil
}

// Set overwrites the entry for key.
func (s *otterService) Set(ctx context.Context, key string, value any) error {
	s.cache.Set(key, Entry{Value: value, CreatedAt: s.now()})
	return nil
}

// Delete removes the entry for key.
func (s *otterService) Delete(ctx context.Context, key string) error {
	s.cache.Invalidate(key)
	return nil
}

// DeleteByPrefix removes all entries with keys starting with prefix.
func (s *otterService) DeleteByPrefix(ctx context.Context, prefix string) error {
	return s.deleteMatching(func(key string) bool {
		return strings.HasPrefix(key, prefix)
	})
}

// DeleteByMember removes every entry derived from the member owning memberPrefix.
func (s *otterService) DeleteByMember(ctx context.Context, memberPrefix string) error {
	return s.deleteMatching(func(key string) bool {
		return belongsToMember(key, memberPrefix)
	})
}

// InvalidateKeys removes multiple entries in a single call.
func (s *otterService) InvalidateKeys(ctx context.Context, keys []string) error {
	for _, key := range keys {
		s.cache.Invalidate(key)
	}
	return nil
}

func (s *otterService) deleteMatching(match func(string) bool) error {
	var matched []string
	for key := range s.cache.Keys() {
		if match(key) {
			matched = append(matched, key)
		}
	}

	for _, key := range matched {
		s.cache.Invalidate(key)
	}
	return nil
}
