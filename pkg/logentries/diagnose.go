package logentries

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"logentries-sink/internal/metrics"
)

// CheckConnectivity connects to the collector configured by cfg once,
// including the TLS handshake, and disconnects. It returns the address it
// tried and the connection error, if any. Nothing is sent.
func CheckConnectivity(ctx context.Context, cfg Config, opts ...Option) (string, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return "", err
	}
	endpoint, err := cfg.Endpoint()
	if err != nil {
		return "", err
	}

	manager := NewConnectionManager(endpoint, connectionOptions(cfg, buildOptions(opts)))
	defer manager.Close()

	_, err = manager.EnsureConnected(ctx)
	return endpoint.Address(), err
}

// Metrics returns the registry holding the sink's delivery counters, for
// exposing alongside an application's own metrics.
func Metrics() prometheus.Gatherer {
	return metrics.Registry
}
