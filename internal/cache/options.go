package cache

import "github.com/prometheus/client_golang/prometheus"

// Option configures a Cache.
type Option func(*options)

type options struct {
	registerer prometheus.Registerer
}

// WithMetrics exports hit, miss and eviction counters plus a size gauge
// through reg. A nil registerer is ignored.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(o *options) {
		if reg != nil {
			o.registerer = reg
		}
	}
}
