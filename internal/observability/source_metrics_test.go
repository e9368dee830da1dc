package observability

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSourceCollectorObservations(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewSourceCollector(reg)
	if err != nil {
		t.Fatalf("NewSourceCollector: %v", err)
	}

	collector.ObserveFetch(120*time.Millisecond, nil)
	collector.ObserveFetch(2*time.Second, errors.New("timeout"))
	collector.SetRecordAge(3 * time.Second)

	if got := testutil.ToFloat64(collector.FetchErrors); got != 1 {
		t.Fatalf("fetch errors = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.RecordAge); got != 3 {
		t.Fatalf("record age = %v, want 3", got)
	}
	if count := histogramSampleCount(t, reg, "satellite_source_fetch_duration_seconds", nil); count != 2 {
		t.Fatalf("fetch duration samples = %d, want 2", count)
	}
	if collector.Gatherer() != reg {
		t.Fatalf("expected collector to gather from the provided registry")
	}
}

func TestSourceCollectorClampsNegativeAge(t *testing.T) {
	collector, err := NewSourceCollector(prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("NewSourceCollector: %v", err)
	}
	collector.SetRecordAge(-5 * time.Second)
	if got := testutil.ToFloat64(collector.RecordAge); got != 0 {
		t.Fatalf("record age = %v, want 0", got)
	}
}

func TestSourceCollectorSharesRegistryWithAgentCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := NewAgentCollector(reg); err != nil {
		t.Fatalf("NewAgentCollector: %v", err)
	}
	if _, err := NewSourceCollector(reg); err != nil {
		t.Fatalf("NewSourceCollector on shared registry: %v", err)
	}
}
