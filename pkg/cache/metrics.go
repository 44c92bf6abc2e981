package cache

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var meter = otel.Meter("solidcsg.cache")

var (
	cacheHits      metric.Int64Counter
	cacheMisses    metric.Int64Counter
	cacheInserts   metric.Int64Counter
	cacheRejects   metric.Int64Counter
	cacheEvictions metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics creates the counters on first use. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		counters := []struct {
			dst  *metric.Int64Counter
			name string
			desc string
		}{
			{&cacheHits, "geometry_cache_hits_total", "Total number of geometry cache hits"},
			{&cacheMisses, "geometry_cache_misses_total", "Total number of geometry cache misses"},
			{&cacheInserts, "geometry_cache_inserts_total", "Total number of geometry cache inserts"},
			{&cacheRejects, "geometry_cache_rejects_total", "Total number of entries too large to cache"},
			{&cacheEvictions, "geometry_cache_evictions_total", "Total number of LRU evictions"},
		}
		for _, c := range counters {
			var err error
			*c.dst, err = meter.Int64Counter(c.name, metric.WithDescription(c.desc))
			if err != nil {
				metricsErr = err
				return
			}
		}
	})
	return metricsErr
}

func storeAttr(s Store) metric.AddOption {
	return metric.WithAttributes(attribute.String("store", s.String()))
}

func recordHit(ctx context.Context, s Store) {
	if err := initMetrics(); err != nil {
		return
	}
	cacheHits.Add(ctx, 1, storeAttr(s))
}

func recordMiss(ctx context.Context) {
	if err := initMetrics(); err != nil {
		return
	}
	cacheMisses.Add(ctx, 1)
}

func recordInsert(ctx context.Context, s Store) {
	if err := initMetrics(); err != nil {
		return
	}
	cacheInserts.Add(ctx, 1, storeAttr(s))
}

func recordReject(ctx context.Context, s Store) {
	if err := initMetrics(); err != nil {
		return
	}
	cacheRejects.Add(ctx, 1, storeAttr(s))
}

func recordEvictions(ctx context.Context, s Store, n int) {
	if err := initMetrics(); err != nil {
		return
	}
	cacheEvictions.Add(ctx, int64(n), storeAttr(s))
}
