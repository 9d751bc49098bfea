package measure

import (
	"math"
	"testing"
	"time"
)

func rtt(v float64) LatencyMeasurement {
	return LatencyMeasurement{RTTMs: &v, ElapsedTime: time.Millisecond}
}

func TestLatencyResultPercentileAndJitter(t *testing.T) {
	r := LatencyResult{Measurements: []LatencyMeasurement{
		rtt(10), rtt(20), rtt(30), rtt(40), rtt(50),
	}}

	if got := r.MinRTT(); got != 10 {
		t.Fatalf("MinRTT = %v, want 10", got)
	}
	if got := r.MaxRTT(); got != 50 {
		t.Fatalf("MaxRTT = %v, want 50", got)
	}
	if got := r.AvgRTT(); got != 30 {
		t.Fatalf("AvgRTT = %v, want 30", got)
	}

	p50, ok := r.PercentileRTT(50)
	if !ok || p50 != 30 {
		t.Fatalf("PercentileRTT(50) = %v, %v; want 30, true", p50, ok)
	}

	if got := r.Jitter(); math.Abs(got-14.142) > 0.01 {
		t.Fatalf("Jitter = %v, want ~14.142", got)
	}
}

func TestPercentileOutOfRange(t *testing.T) {
	r := LatencyResult{Measurements: []LatencyMeasurement{rtt(5)}}
	if _, ok := r.PercentileRTT(101); ok {
		t.Fatal("PercentileRTT(101) should be (_, false)")
	}
	if _, ok := r.PercentileRTT(-1); ok {
		t.Fatal("PercentileRTT(-1) should be (_, false)")
	}

	empty := LatencyResult{}
	if _, ok := empty.PercentileRTT(50); ok {
		t.Fatal("PercentileRTT on empty result should be (_, false)")
	}
}

func TestLatencyResultDropped(t *testing.T) {
	r := LatencyResult{Measurements: []LatencyMeasurement{
		rtt(10),
		{RTTMs: nil, ElapsedTime: time.Second},
	}}
	if r.Count() != 2 {
		t.Fatalf("Count = %d, want 2", r.Count())
	}
	if r.SuccessfulCount() != 1 {
		t.Fatalf("SuccessfulCount = %d, want 1", r.SuccessfulCount())
	}
	if r.DroppedCount() != 1 {
		t.Fatalf("DroppedCount = %d, want 1", r.DroppedCount())
	}
	if r.LossRate() != 0.5 {
		t.Fatalf("LossRate = %v, want 0.5", r.LossRate())
	}
}

func TestThroughputResultArithmetic(t *testing.T) {
	r := ThroughputResult{
		Measurements: []ThroughputMeasurement{
			NewSuccess(1000, 0),
			NewSuccess(2000, 0),
			NewFailure(ErrorTimeout, "deadline exceeded", time.Second, 1),
		},
		TotalDuration: 2 * time.Second,
	}

	if got := r.BytesTransferred(); got != 3000 {
		t.Fatalf("BytesTransferred = %d, want 3000", got)
	}
	if got := r.AvgThroughput(); got != 1500 {
		t.Fatalf("AvgThroughput = %v, want 1500", got)
	}
	if got := r.SuccessRate(); math.Abs(got-2.0/3.0) > 1e-9 {
		t.Fatalf("SuccessRate = %v, want 0.667", got)
	}
	if got := r.TotalRetries(); got != 1 {
		t.Fatalf("TotalRetries = %d, want 1", got)
	}
	hist := r.ErrorHistogram()
	if hist[ErrorTimeout] != 1 {
		t.Fatalf("ErrorHistogram[timeout] = %d, want 1", hist[ErrorTimeout])
	}
}

func TestThroughputZeroDuration(t *testing.T) {
	r := ThroughputResult{Measurements: []ThroughputMeasurement{NewSuccess(100, 0)}}
	if got := r.AvgThroughput(); got != 0 {
		t.Fatalf("AvgThroughput with zero duration = %v, want 0", got)
	}
}

func TestOrderedResultsPreservesInsertionOrder(t *testing.T) {
	var results OrderedResults
	for _, size := range []int{100, 50, 200} {
		results = append(results, SizedResult{PayloadSize: size})
	}
	got := results.Sizes()
	want := []int{100, 50, 200}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Sizes()[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}
