// Package metrics defines telemetry primitives to use across components. It uses the prometheus format.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// Namespace is the basic namespace where all metrics are defined under.
	Namespace = "chronosync"
)

// NewCounter creates a Counter metrics under the global namespace.
func NewCounter(name, subsystem, help string, labels []string) *prometheus.CounterVec {
	return promauto.NewCounterVec(prometheus.CounterOpts{Namespace: Namespace, Subsystem: subsystem, Name: name, Help: help}, labels)
}

// NewGauge creates a Gauge metrics under the global namespace.
func NewGauge(name, subsystem, help string, labels []string) *prometheus.GaugeVec {
	return promauto.NewGaugeVec(prometheus.GaugeOpts{Namespace: Namespace, Subsystem: subsystem, Name: name, Help: help}, labels)
}

// NewHistogramWithBuckets creates a Histogram metrics with custom buckets.
func NewHistogramWithBuckets(name, subsystem, help string, labels []string, buckets []float64) *prometheus.HistogramVec {
	return promauto.NewHistogramVec(prometheus.HistogramOpts{Namespace: Namespace, Subsystem: subsystem, Name: name, Help: help, Buckets: buckets}, labels)
}

// roundTripLatency measures the time between announcing a digest and receiving
// the state response for it. Labeled by the sync group prefix.
var roundTripLatency = NewHistogramWithBuckets(
	"round_trip_seconds",
	"",
	"Observed latency between a digest announcement and the response to it",
	[]string{"prefix"},
	prometheus.ExponentialBuckets(0.01, 2, 12),
)

// ReportRoundTrip records the latency of a sync round trip.
func ReportRoundTrip(prefix string, latency time.Duration) {
	if latency < 0 {
		return
	}
	roundTripLatency.WithLabelValues(prefix).Observe(latency.Seconds())
}
