// Package metrics holds the counters shared by the sink's connection and
// emitter layers.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "logentries"

// Connect results recorded in ConnectsTotal.
const (
	ResultSuccess          = "success"
	ResultRefused          = "refused"
	ResultTimeout          = "timeout"
	ResultHandshakeTimeout = "handshake_timeout"
	ResultAuthentication   = "authentication"
	ResultError            = "error"
)

var (
	// Registry is the registry all sink metrics are registered on. It is
	// separate from the default registry so embedding applications decide
	// whether to expose it.
	Registry = prometheus.NewRegistry()

	// FramesSent counts frames flushed to the collector.
	FramesSent = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "frames_sent_total",
		Help:      "Frames flushed to the collector.",
	})
	// BytesSent counts framed bytes flushed to the collector.
	BytesSent = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "bytes_sent_total",
		Help:      "Framed bytes flushed to the collector.",
	})
	// ConnectsTotal counts connection attempts by result.
	ConnectsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "connects_total",
		Help:      "Connection attempts by result.",
	}, []string{"result"})
	// BatchErrors counts batches aborted by a transport failure.
	BatchErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "batch_errors_total",
		Help:      "Batches aborted by a transport failure.",
	})
	// RecordsDropped counts records skipped because they could not be
	// formatted.
	RecordsDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "records_dropped_total",
		Help:      "Records skipped because formatting failed.",
	})
)

func init() {
	Registry.MustRegister(FramesSent, BytesSent, ConnectsTotal, BatchErrors, RecordsDropped)
}
