package cache

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

type cacheMetrics struct {
	hits      prometheus.Counter
	misses    prometheus.Counter
	evictions prometheus.Counter
	size      prometheus.Gauge
}

func newCacheMetrics(reg prometheus.Registerer) (*cacheMetrics, error) {
	m := &cacheMetrics{
		hits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "airrelay",
			Subsystem: "directory_cache",
			Name:      "hits_total",
			Help:      "Reads answered from the directory cache.",
		}),
		misses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "airrelay",
			Subsystem: "directory_cache",
			Name:      "misses_total",
			Help:      "Reads that fell through to the durable store.",
		}),
		evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "airrelay",
			Subsystem: "directory_cache",
			Name:      "evictions_total",
			Help:      "Entries evicted to respect the cache capacity.",
		}),
		size: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "airrelay",
			Subsystem: "directory_cache",
			Name:      "entries",
			Help:      "Entries currently held by the directory cache.",
		}),
	}

	for _, c := range []prometheus.Collector{m.hits, m.misses, m.evictions, m.size} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("registering cache metrics: %w", err)
		}
	}
	return m, nil
}
