package client

import (
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type requestMetrics struct {
	total    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// newRequestMetrics registers the request collectors on reg. Clients sharing a
// registerer share collectors; a nil reg keeps them unregistered.
func newRequestMetrics(reg prometheus.Registerer) *requestMetrics {
	m := &requestMetrics{
		total: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "conso_requests_total",
				Help: "Total number of Conso API requests by data type and outcome.",
			},
			[]string{"data_type", "status"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "conso_request_duration_seconds",
				Help:    "Conso API request latency in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"data_type"},
		),
	}
	if reg == nil {
		return m
	}

	m.total = register(reg, m.total)
	m.duration = register(reg, m.duration)
	return m
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing
			}
		}
		// incompatible collector under the same name; record locally only
	}
	return c
}

// observe records one exchange; status 0 means the transport failed
func (m *requestMetrics) observe(dataType string, status int, dur time.Duration) {
	label := "transport_error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	m.total.WithLabelValues(dataType, label).Inc()
	m.duration.WithLabelValues(dataType).Observe(dur.Seconds())
}
