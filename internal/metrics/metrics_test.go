package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegistry_GathersAllCollectors(t *testing.T) {
	ConnectsTotal.WithLabelValues(ResultSuccess).Add(0)

	families, err := Registry.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}

	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	for _, want := range []string{
		"logentries_frames_sent_total",
		"logentries_bytes_sent_total",
		"logentries_connects_total",
		"logentries_batch_errors_total",
		"logentries_records_dropped_total",
	} {
		if !names[want] {
			t.Errorf("metric %q not registered", want)
		}
	}
}

func TestConnectsTotal_CountsByResult(t *testing.T) {
	before := testutil.ToFloat64(ConnectsTotal.WithLabelValues(ResultRefused))
	ConnectsTotal.WithLabelValues(ResultRefused).Inc()

	if got := testutil.ToFloat64(ConnectsTotal.WithLabelValues(ResultRefused)); got != before+1 {
		t.Errorf("connects{result=refused} = %v, want %v", got, before+1)
	}
}
