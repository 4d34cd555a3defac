package sessionkit

import (
	"testing"
	"time"
)

func TestMetricsDisabledByDefault(t *testing.T) {
	m := NewMetrics(MetricsConfig{})

	m.Inc(MetricSignInSuccess)
	if got := m.Value(MetricSignInSuccess); got != 0 {
		t.Fatalf("disabled metrics counted: %d", got)
	}

	snapshot := m.Snapshot()
	if len(snapshot.Counters) != 0 || len(snapshot.Histograms) != 0 {
		t.Fatalf("disabled snapshot not empty: %+v", snapshot)
	}
}

func TestMetricsCounters(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})

	m.Inc(MetricSignInSuccess)
	m.Inc(MetricSignInSuccess)
	m.Inc(MetricRefreshRejected)

	if got := m.Value(MetricSignInSuccess); got != 2 {
		t.Fatalf("sign-in success %d, want 2", got)
	}
	snapshot := m.Snapshot()
	if got := snapshot.Counters[MetricRefreshRejected]; got != 1 {
		t.Fatalf("refresh rejected %d, want 1", got)
	}
	if got := snapshot.Counters[MetricSignOut]; got != 0 {
		t.Fatalf("untouched counter %d, want 0", got)
	}
}

func TestMetricsLatencyHistogram(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true, EnableLatencyHistograms: true})

	m.Observe(MetricRefreshLatency, 3*time.Millisecond)
	m.Observe(MetricRefreshLatency, 40*time.Millisecond)
	m.Observe(MetricRefreshLatency, 2*time.Second)

	buckets := m.Snapshot().Histograms[MetricRefreshLatency]
	if len(buckets) != histBucketCount {
		t.Fatalf("bucket count %d, want %d", len(buckets), histBucketCount)
	}
	if buckets[0] != 1 || buckets[3] != 1 || buckets[7] != 1 {
		t.Fatalf("unexpected buckets: %v", buckets)
	}
}

func TestMetricsLatencyDisabledWithoutFlag(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})

	m.Observe(MetricRefreshLatency, time.Millisecond)
	if buckets := m.Snapshot().Histograms[MetricRefreshLatency]; len(buckets) != 0 {
		t.Fatalf("latency recorded without the flag: %v", buckets)
	}
}

func TestMetricsNilReceiverSafe(t *testing.T) {
	var m *Metrics

	m.Inc(MetricSignInSuccess)
	m.Observe(MetricRefreshLatency, time.Millisecond)
	if got := m.Value(MetricSignInSuccess); got != 0 {
		t.Fatalf("nil receiver value %d", got)
	}
	if snapshot := m.Snapshot(); len(snapshot.Counters) != 0 {
		t.Fatalf("nil receiver snapshot %+v", snapshot)
	}
}

func TestBucketIndexBoundaries(t *testing.T) {
	cases := []struct {
		d    time.Duration
		want int
	}{
		{time.Millisecond, 0},
		{5 * time.Millisecond, 0},
		{10 * time.Millisecond, 1},
		{25 * time.Millisecond, 2},
		{50 * time.Millisecond, 3},
		{100 * time.Millisecond, 4},
		{250 * time.Millisecond, 5},
		{500 * time.Millisecond, 6},
		{time.Second, 7},
	}
	for _, tc := range cases {
		if got := bucketIndex(tc.d); got != tc.want {
			t.Fatalf("bucketIndex(%s) = %d, want %d", tc.d, got, tc.want)
		}
	}
}
