package cacheinfra

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// storeMetrics holds the instruments shared by every instrumented store
// built from the same meter.
type storeMetrics struct {
	operations metric.Int64Counter
	duration   metric.Float64Histogram
}

func newStoreMetrics(meter metric.Meter) (*storeMetrics, error) {
	operations, err := meter.Int64Counter(
		"methodcache.store.operations",
		metric.WithDescription("Total store operations"),
	)
	if err != nil {
		return nil, err
	}

	duration, err := meter.Float64Histogram(
		"methodcache.store.operation.duration",
		metric.WithDescription("Store operation duration"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &storeMetrics{operations: operations, duration: duration}, nil
}

var (
	globalMetricsOnce sync.Once
	globalMetrics     *storeMetrics
)

func defaultStoreMetrics() *storeMetrics {
	globalMetricsOnce.Do(func() {
		m, err := newStoreMetrics(otel.Meter("github.com/goliatone/go-method-cache/internal/cacheinfra"))
		if err != nil {
			otel.Handle(err)
			return
		}
		globalMetrics = m
	})
	return globalMetrics
}

// Instrumented wraps a Service with OpenTelemetry metrics.
type Instrumented struct {
	wrapped Service
	backend string
	metrics *storeMetrics
}

// NewInstrumented creates an instrumented store wrapper reporting to the
// global meter provider.
func NewInstrumented(svc Service, backend string) *Instrumented {
	return &Instrumented{wrapped: svc, backend: backend, metrics: defaultStoreMetrics()}
}

// NewInstrumentedWithMeter is NewInstrumented with an explicit meter.
func NewInstrumentedWithMeter(svc Service, backend string, meter metric.Meter) (*Instrumented, error) {
	m, err := newStoreMetrics(meter)
	if err != nil {
		return nil, err
	}
	return &Instrumented{wrapped: svc, backend: backend, metrics: m}, nil
}

// GetOrFetch records "hit" when the value came from the store and "miss"
// when fetchFn ran.
func (i *Instrumented) GetOrFetch(ctx context.Context, key string, fetchFn any) (any, error) {
	if err := validateFetchFn(fetchFn); err != nil {
		return nil, err
	}

	start := time.Now()

	var fetched atomic.Bool
	value, err := i.wrapped.GetOrFetch(ctx, key, func(ctx context.Context) (any, error) {
		fetched.Store(true)
		return callFetchFunction(ctx, fetchFn)
	})

	status := "hit"
	switch {
	case err != nil:
		status = "error"
	case fetched.Load():
		status = "miss"
	}
	i.record(ctx, "get_or_fetch", status, time.Since(start))

	return value, err
}

// Peek records "hit" or "miss".
func (i *Instrumented) Peek(ctx context.Context, key string) (Entry, bool, error) {
	start := time.Now()

	entry, found, err := i.wrapped.Peek(ctx, key)

	status := "miss"
	if err != nil {
		status = "error"
	} else if found {
		status = "hit"
	}
	i.record(ctx, "peek", status, time.Since(start))

	return entry, found, err
}

// Set stores a value.
func (i *Instrumented) Set(ctx context.Context, key string, value any) error {
	start := time.Now()
	err := i.wrapped.Set(ctx, key, value)
	i.record(ctx, "set", statusOf(err), time.Since(start))
	return err
}

// Delete removes a single key.
func (i *Instrumented) Delete(ctx context.Context, key string) error {
	start := time.Now()
	err := i.wrapped.Delete(ctx, key)
	i.record(ctx, "delete", statusOf(err), time.Since(start))
	return err
}

// DeleteByPrefix removes keys by prefix.
func (i *Instrumented) DeleteByPrefix(ctx context.Context, prefix string) error {
	start := time.Now()
	err := i.wrapped.DeleteByPrefix(ctx, prefix)
	i.record(ctx, "delete_by_prefix", statusOf(err), time.Since(start))
	return err
}

// DeleteByMember removes every key of a member.
func (i *Instrumented) DeleteByMember(ctx context.Context, memberPrefix string) error {
	start := time.Now()
	err := i.wrapped.DeleteByMember(ctx, memberPrefix)
	i.record(ctx, "delete_by_member", statusOf(err), time.Since(start))
	return err
}

// InvalidateKeys removes a batch of keys.
func (i *Instrumented) InvalidateKeys(ctx context.Context, keys []string) error {
	start := time.Now()
	err := i.wrapped.InvalidateKeys(ctx, keys)
	i.record(ctx, "invalidate_keys", statusOf(err), time.Since(start))
	return err
}

func (i *Instrumented) record(ctx context.Context, operation, status string, duration time.Duration) {
	if i.metrics == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("methodcache.backend", i.backend),
		attribute.String("methodcache.operation", operation),
		attribute.String("methodcache.status", status),
	)
	i.metrics.operations.Add(ctx, 1, attrs)
	i.metrics.duration.Record(ctx, duration.Seconds(), attrs)
}

func statusOf(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
