// Package metrics registers the Prometheus instruments exposed by the
// runtime. Everything lands on the default registerer, matching how the rest
// of the process usually exposes /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "nsqlink"

var (
	// PublishedTotal counts messages acknowledged by a broker. Batch
	// publishes count every message in the batch.
	PublishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "publish",
		Name:      "messages_total",
		Help:      "Messages acknowledged by the broker.",
	}, []string{"topic"})

	// PublishErrorsTotal counts publish calls that surfaced an error to the
	// caller.
	PublishErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "publish",
		Name:      "errors_total",
		Help:      "Publish calls that returned an error.",
	}, []string{"topic"})

	// PublishSeconds observes the full request cycle latency: write, flush,
	// and acknowledgement.
	PublishSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "publish",
		Name:      "duration_seconds",
		Help:      "Latency of acknowledged publish request cycles.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"topic"})

	// OpenConnections tracks sockets currently open to brokers.
	OpenConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "conn",
		Name:      "open",
		Help:      "Broker connections currently open.",
	})
)
