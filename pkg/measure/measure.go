// Package measure holds the measurement primitives, result aggregates, and
// report envelope shared by every transport's client and server.
package measure

import (
	"math"
	"sort"
	"time"
)

// ErrorKind is the closed taxonomy of failure reasons a ThroughputMeasurement
// can carry.
type ErrorKind string

const (
	ErrorConnectionFailed ErrorKind = "connection_failed"
	ErrorTransferFailed   ErrorKind = "transfer_failed"
	ErrorTimeout          ErrorKind = "timeout"
	ErrorUnknown          ErrorKind = "unknown"
)

// MeasurementError pairs a closed error kind with a human-readable message,
// used as a plain comparable value for error-kind histograms rather than a
// Go error interface value.
type MeasurementError struct {
	Kind    ErrorKind `json:"kind" cbor:"kind"`
	Message string    `json:"message" cbor:"message"`
}

// LatencyMeasurement is one round-trip probe. RTTMs is nil when the probe
// was dropped (no reply within the probe's own deadline).
type LatencyMeasurement struct {
	RTTMs       *float64      `json:"rtt_ms" cbor:"rtt_ms"`
	ElapsedTime time.Duration `json:"elapsed_time" cbor:"elapsed_time"`
}

// Dropped reports whether this probe received no reply.
func (m LatencyMeasurement) Dropped() bool { return m.RTTMs == nil }

// ThroughputMeasurement is one worker operation: either a successful
// transfer of some number of bytes, or a tagged failure.
type ThroughputMeasurement struct {
	Success    bool              `json:"success" cbor:"success"`
	Bytes      int64             `json:"bytes,omitempty" cbor:"bytes,omitempty"`
	Duration   time.Duration     `json:"duration" cbor:"duration"`
	Error      *MeasurementError `json:"error,omitempty" cbor:"error,omitempty"`
	RetryCount int               `json:"retry_count,omitempty" cbor:"retry_count,omitempty"`
}

// NewSuccess builds a successful throughput measurement.
func NewSuccess(bytes int64, duration time.Duration) ThroughputMeasurement {
	return ThroughputMeasurement{Success: true, Bytes: bytes, Duration: duration}
}

// NewFailure builds a failed throughput measurement.
func NewFailure(kind ErrorKind, message string, duration time.Duration, retryCount int) ThroughputMeasurement {
	return ThroughputMeasurement{
		Success:    false,
		Duration:   duration,
		Error:      &MeasurementError{Kind: kind, Message: message},
		RetryCount: retryCount,
	}
}

// LatencyResult aggregates a phase's latency probes.
type LatencyResult struct {
	Measurements []LatencyMeasurement `json:"measurements" cbor:"measurements"`
	Timestamp    time.Time            `json:"timestamp" cbor:"timestamp"`
}

// Count returns the total number of probes.
func (r LatencyResult) Count() int { return len(r.Measurements) }

// SuccessfulCount returns the number of probes that received a reply.
func (r LatencyResult) SuccessfulCount() int {
	n := 0
	for _, m := range r.Measurements {
		if !m.Dropped() {
			n++
		}
	}
	return n
}

// DroppedCount returns the number of probes that received no reply.
func (r LatencyResult) DroppedCount() int {
	return r.Count() - r.SuccessfulCount()
}

// LossRate returns the fraction of probes dropped, 0 when there were none.
func (r LatencyResult) LossRate() float64 {
	if r.Count() == 0 {
		return 0
	}
	return float64(r.DroppedCount()) / float64(r.Count())
}

func (r LatencyResult) successfulRTTs() []float64 {
	rtts := make([]float64, 0, len(r.Measurements))
	for _, m := range r.Measurements {
		if !m.Dropped() {
			rtts = append(rtts, *m.RTTMs)
		}
	}
	return rtts
}

// MinRTT returns the minimum successful RTT, or 0 when there are none.
func (r LatencyResult) MinRTT() float64 {
	rtts := r.successfulRTTs()
	if len(rtts) == 0 {
		return 0
	}
	min := rtts[0]
	for _, v := range rtts[1:] {
		if v < min {
			min = v
		}
	}
	return min
}

// MaxRTT returns the maximum successful RTT, or 0 when there are none.
func (r LatencyResult) MaxRTT() float64 {
	rtts := r.successfulRTTs()
	if len(rtts) == 0 {
		return 0
	}
	max := rtts[0]
	for _, v := range rtts[1:] {
		if v > max {
			max = v
		}
	}
	return max
}

// AvgRTT returns the mean successful RTT, or 0 when there are none.
func (r LatencyResult) AvgRTT() float64 {
	rtts := r.successfulRTTs()
	if len(rtts) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range rtts {
		sum += v
	}
	return sum / float64(len(rtts))
}

// PercentileRTT returns the p-th percentile (linear index, ascending sort)
// of successful RTTs. It returns (0, false) when p is out of [0,100] or
// there are no successful measurements.
func (r LatencyResult) PercentileRTT(p float64) (float64, bool) {
	if p < 0 || p > 100 {
		return 0, false
	}
	rtts := r.successfulRTTs()
	if len(rtts) == 0 {
		return 0, false
	}
	sorted := append([]float64(nil), rtts...)
	sort.Float64s(sorted)

	idx := int(math.Round(p / 100 * float64(len(sorted)-1)))
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	if idx < 0 {
		idx = 0
	}
	return sorted[idx], true
}

// Jitter returns the population standard deviation of successful RTTs.
func (r LatencyResult) Jitter() float64 {
	rtts := r.successfulRTTs()
	if len(rtts) == 0 {
		return 0
	}
	mean := r.AvgRTT()
	var sumSq float64
	for _, v := range rtts {
		d := v - mean
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(rtts)))
}

// ThroughputResult aggregates a phase's transfer operations.
type ThroughputResult struct {
	Measurements  []ThroughputMeasurement `json:"measurements" cbor:"measurements"`
	TotalDuration time.Duration           `json:"total_duration" cbor:"total_duration"`
	Timestamp     time.Time               `json:"timestamp" cbor:"timestamp"`
}

// BytesTransferred sums the bytes carried by successful measurements.
func (r ThroughputResult) BytesTransferred() int64 {
	var total int64
	for _, m := range r.Measurements {
		if m.Success {
			total += m.Bytes
		}
	}
	return total
}

// AvgThroughput returns bytes/second over TotalDuration, 0 when the
// duration is zero.
func (r ThroughputResult) AvgThroughput() float64 {
	secs := r.TotalDuration.Seconds()
	if secs == 0 {
		return 0
	}
	return float64(r.BytesTransferred()) / secs
}

// SuccessCount returns the number of successful measurements.
func (r ThroughputResult) SuccessCount() int {
	n := 0
	for _, m := range r.Measurements {
		if m.Success {
			n++
		}
	}
	return n
}

// FailureCount returns the number of failed measurements.
func (r ThroughputResult) FailureCount() int {
	return len(r.Measurements) - r.SuccessCount()
}

// SuccessRate returns the fraction of measurements that succeeded, 0 when
// there are none.
func (r ThroughputResult) SuccessRate() float64 {
	if len(r.Measurements) == 0 {
		return 0
	}
	return float64(r.SuccessCount()) / float64(len(r.Measurements))
}

// TotalRetries sums RetryCount across all measurements.
func (r ThroughputResult) TotalRetries() int {
	total := 0
	for _, m := range r.Measurements {
		total += m.RetryCount
	}
	return total
}

// ErrorHistogram counts failures by ErrorKind.
func (r ThroughputResult) ErrorHistogram() map[ErrorKind]int {
	hist := make(map[ErrorKind]int)
	for _, m := range r.Measurements {
		if !m.Success && m.Error != nil {
			hist[m.Error.Kind]++
		}
	}
	return hist
}

// SizedResult pairs a payload size with the result measured at that size,
// preserving the user-specified ordering (see OrderedResults below).
type SizedResult struct {
	PayloadSize int              `json:"payload_size" cbor:"payload_size"`
	Result      ThroughputResult `json:"result" cbor:"result"`
}

// OrderedResults is an insertion-ordered payload-size -> result mapping. A
// plain Go map does not preserve iteration order, so results are carried as
// an ordered slice and serialized as a JSON/CBOR array of {payload_size,
// result} pairs instead of an object keyed by size.
type OrderedResults []SizedResult

// Get returns the result recorded for a payload size, if any.
func (o OrderedResults) Get(size int) (ThroughputResult, bool) {
	for _, sr := range o {
		if sr.PayloadSize == size {
			return sr.Result, true
		}
	}
	return ThroughputResult{}, false
}

// Sizes returns the payload sizes in insertion order.
func (o OrderedResults) Sizes() []int {
	sizes := make([]int, len(o))
	for i, sr := range o {
		sizes[i] = sr.PayloadSize
	}
	return sizes
}

// NetworkTestResult composes every phase measured for one protocol.
type NetworkTestResult struct {
	Protocol string         `json:"protocol" cbor:"protocol"`
	Latency  *LatencyResult `json:"latency,omitempty" cbor:"latency,omitempty"`
	Download OrderedResults `json:"download,omitempty" cbor:"download,omitempty"`
	Upload   OrderedResults `json:"upload,omitempty" cbor:"upload,omitempty"`
}

// TestReport is the top-level, serializable output of a client test run.
type TestReport struct {
	StartTime time.Time          `json:"start_time" cbor:"start_time"`
	Config    interface{}        `json:"config" cbor:"config"`
	Result    NetworkTestResult  `json:"result" cbor:"result"`
	Timestamp time.Time          `json:"timestamp" cbor:"timestamp"`
	Version   string             `json:"version" cbor:"version"`
}
