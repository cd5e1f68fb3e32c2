package cacheinfra

import (
	"context"
	"strings"
	"time"

	"github.com/viccon/sturdyc"
)

// sturdycService wraps a sturdyc client providing caching behaviour.
type sturdycService struct {
	client *sturdyc.Client[Entry]
	flight flightGroup
	now    func() time.Time
}

// NewSturdycService creates a new sturdyc store.
// It validates the configuration and initializes a sturdyc client with the provided settings:
// Capacity, NumShards, TTL, EvictionPercentage are passed to sturdyc.New(),
// other options are applied via ToSturdycOptions().
func NewSturdycService(cfg Config) (*sturdycService, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client := sturdyc.New[Entry](
		cfg.Capacity,
		cfg.NumShards,
		cfg.TTL,
		cfg.EvictionPercentage,
		cfg.ToSturdycOptions()...,
	)

	return &sturdycService{client: client, now: time.Now}, nil
}

// GetOrFetch returns the stored value for key or runs fetchFn, a
// func(context.Context) (T, error), to compute it. Concurrent misses for
// the same key share one call; a failed call stores nothing.
func (s *sturdycService) GetOrFetch(ctx context.Context, key string, fetchFn any) (any, error) {
	if err := validateFetchFn(fetchFn); err != nil {
		return nil, err
	}

	entry, err := s.flight.do(ctx, key, func(ctx context.Context) (Entry, error) {
		return s.client.GetOrFetch(ctx, key, func(ctx context.Context) (Entry, error) {
			value, err := callFetchFunction(ctx, fetchFn)
			if err != nil {
				return Entry{}, err
			}
			return Entry{Value: value, CreatedAt: s.now()}, nil
		})
	})
	if err != nil {
		return nil, err
	}

	return entry.Value, nil
}

// Peek returns the entry for key without computing it.
func (s *sturdycService) Peek(ctx context.Context, key string) (Entry, bool, error) {
	entry, ok := s.client.Get(key)
	return entry, ok, nil
}

// Set overwrites the entry for key.
func (s *sturdycService) Set(ctx context.Context, key string, value any) error {
	s.client.Set(key, Entry{Value: value, CreatedAt: s.now()})
	return nil
}

// Delete removes a single entry from the cache using the provided key.
func (s *sturdycService) Delete(ctx context.Context, key string) error {
	s.client.Delete(key)
	return nil
}

// DeleteByPrefix removes all entries with keys starting with the given prefix.
func (s *sturdycService) DeleteByPrefix(ctx context.Context, prefix string) error {
	for _, key := range s.client.ScanKeys() {
		if strings.HasPrefix(key, prefix) {
			s.client.Delete(key)
		}
	}
	return nil
}

// DeleteByMember removes every entry derived from the member owning
// memberPrefix, whatever its arguments.
func (s *sturdycService) DeleteByMember(ctx context.Context, memberPrefix string) error {
	for _, key := range s.client.ScanKeys() {
		if belongsToMember(key, memberPrefix) {
			s.client.Delete(key)
		}
	}
	return nil
}

// InvalidateKeys removes multiple entries in a single call.
func (s *sturdycService) InvalidateKeys(ctx context.Context, keys []string) error {
	for _, key := range keys {
		s.client.Delete(key)
	}
	return nil
}
