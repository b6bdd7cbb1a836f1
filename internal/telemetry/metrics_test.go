package telemetry

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNew_NilRegistererDisablesMetrics(t *testing.T) {
	m := New(nil, "")
	if m != nil {
		t.Fatalf("expected nil metrics, got %+v", m)
	}

	// every method is nil safe
	m.ObserveDispatch("ideaGet", "ok", time.Millisecond)
	m.ObserveChallenge("solved")
	m.ObserveSpeculation("vote", "applied")
	m.ObserveSearch("idea", "hit")
	m.ObserveResponseCache("invalidate")
}

func TestMetrics_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg, "test")
	if m == nil {
		t.Fatal("expected metrics")
	}

	m.ObserveDispatch("ideaVoteUpdate", "ok", 10*time.Millisecond)
	m.ObserveDispatch("ideaVoteUpdate", "forbidden", time.Millisecond)
	m.ObserveDispatch("ideaVoteUpdate", "ok", time.Millisecond)
	m.ObserveSpeculation("vote", "rolled_back")
	m.ObserveSearch("idea", "miss")

	tests := []struct {
		name      string
		collector prometheus.Collector
		want      float64
	}{
		{"dispatch ok", m.dispatches.WithLabelValues("ideaVoteUpdate", "ok"), 2},
		{"dispatch forbidden", m.dispatches.WithLabelValues("ideaVoteUpdate", "forbidden"), 1},
		{"speculation rolled back", m.speculations.WithLabelValues("vote", "rolled_back"), 1},
		{"search miss", m.searches.WithLabelValues("idea", "miss"), 1},
	}
	for _, tt := range tests {
		if got := testutil.ToFloat64(tt.collector); got != tt.want {
			t.Errorf("%s: got %v, want %v", tt.name, got, tt.want)
		}
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	for _, want := range []string{"test_dispatch_total", "test_dispatch_duration_seconds"} {
		if !names[want] {
			t.Errorf("metric %s not registered", want)
		}
	}
}
