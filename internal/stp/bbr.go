package stp

import "time"

// MSS is the maximum segment size used for UDP payload sizing and cwnd
// clamping.
const MSS = 1400

const (
	minCwnd = 4 * MSS
	maxCwnd = 1 << 20 // 1 MiB
	initCwnd = 10 * MSS
)

// bbrState is the BBR-style congestion control state machine's phase.
type bbrState int

const (
	bbrStartup bbrState = iota
	bbrDrain
	bbrProbeBW
	bbrProbeRTT
)

func (s bbrState) String() string {
	switch s {
	case bbrStartup:
		return "startup"
	case bbrDrain:
		return "drain"
	case bbrProbeBW:
		return "probe_bw"
	case bbrProbeRTT:
		return "probe_rtt"
	default:
		return "unknown"
	}
}

// probeBWGains is the ProbeBW gain cycle.
var probeBWGains = []float64{1.25, 0.75, 1.0, 1.0, 1.0, 1.0, 1.0, 1.0}

const (
	bandwidthWindow  = 2 * time.Second
	minRTTWindow     = 10 * time.Second
	probeBWCycleLen  = 8 * time.Second // cycle_len, one gain slot per cycle_len/8
	probeRTTDuration = 200 * time.Millisecond
)

type bwSample struct {
	rate float64 // bytes/sec
	at   time.Time
}

// bandwidthFilter is a sliding-window maximum over recent bandwidth
// samples.
type bandwidthFilter struct {
	window  time.Duration
	samples []bwSample
}

func newBandwidthFilter(window time.Duration) *bandwidthFilter {
	return &bandwidthFilter{window: window}
}

func (f *bandwidthFilter) add(rate float64, now time.Time) {
	f.samples = append(f.samples, bwSample{rate: rate, at: now})
	cutoff := now.Add(-f.window)
	kept := f.samples[:0:0]
	for _, s := range f.samples {
		if s.at.After(cutoff) {
			kept = append(kept, s)
		}
	}
	f.samples = kept
}

func (f *bandwidthFilter) max() float64 {
	var max float64
	for _, s := range f.samples {
		if s.rate > max {
			max = s.rate
		}
	}
	return max
}

// BBR implements the BBR-style congestion control state machine.
// Bandwidth and min-RTT filters feed a 4-state cycle that produces
// (pacing_rate, cwnd) on every ACK. Loss events never back off rate or
// cwnd directly — only bandwidth/RTT samples drive it. A single
// goroutine owns a BBR instance; no internal locking.
type BBR struct {
	state bbrState

	bw        *bandwidthFilter
	minRTT    time.Duration
	minRTTSet time.Time

	cwnd        int64
	pacingRate  float64
	packetsAcked int64

	cycleIdx     int
	cycleStart   time.Time
	probeRTTSince time.Time

	pacer *Pacer
}

// NewBBR builds a BBR instance in Startup with the protocol's initial cwnd
// and paired with pacer, which it updates every time it recomputes rate.
func NewBBR(pacer *Pacer) *BBR {
	return &BBR{
		state: bbrStartup,
		bw:    newBandwidthFilter(bandwidthWindow),
		cwnd:  initCwnd,
		pacer: pacer,
	}
}

// State returns the current congestion-control phase, for diagnostics.
func (b *BBR) State() string { return b.state.String() }

// Cwnd returns the current congestion window in bytes.
func (b *BBR) Cwnd() int64 { return b.cwnd }

// PacingRate returns the current pacing rate in bytes/sec.
func (b *BBR) PacingRate() float64 { return b.pacingRate }

// CanSend reports whether bytesInFlight leaves room in cwnd for another
// send.
func (b *BBR) CanSend(bytesInFlight int64) bool {
	return bytesInFlight < b.cwnd
}

// OnAck feeds one ACK's bandwidth/RTT sample into the filters and
// recomputes (pacing_rate, cwnd) for the current state, updating the
// paired pacer. bytesAcked and rtt describe the packet(s) resolved by
// this ACK; now is the observation time.
func (b *BBR) OnAck(bytesAcked int64, rtt time.Duration, now time.Time) {
	if rtt > 0 {
		sample := float64(bytesAcked) / rtt.Seconds()
		b.bw.add(sample, now)
		b.updateMinRTT(rtt, now)
	}
	b.packetsAcked++

	maxBW := b.bw.max()
	minRTTSecs := b.minRTT.Seconds()
	bdp := int64(maxBW * minRTTSecs)

	switch b.state {
	case bbrStartup:
		b.pacingRate = 2.77 * maxBW
		b.cwnd = clampCwnd(2 * bdp)
		if b.packetsAcked > 3*(b.cwnd/MSS) {
			b.state = bbrDrain
		}
	case bbrDrain:
		if maxBW > 0 {
			b.pacingRate = maxBW / 2.77
		}
		b.cwnd = clampCwnd(bdp)
	case bbrProbeBW:
		b.stepProbeBWCycle(now)
		gain := probeBWGains[b.cycleIdx]
		b.pacingRate = gain * maxBW
		b.cwnd = clampCwnd(int64(gain * float64(bdp)))
		if now.Sub(b.minRTTSet) >= minRTTWindow {
			b.enterProbeRTT(now)
		}
	case bbrProbeRTT:
		b.cwnd = clampCwnd(bdp / 2)
		if now.Sub(b.probeRTTSince) >= probeRTTDuration {
			b.enterProbeBW(now)
		}
	}

	if b.pacer != nil && b.pacingRate > 0 {
		b.pacer.SetRate(b.pacingRate)
	}
}

// OnDrainExit is called once bytesInFlight has fallen to or below the
// BDP while in Drain; Drain's exit condition is defined this way
// rather than as a pure ACK-driven transition.
func (b *BBR) OnDrainExit(bytesInFlight int64, now time.Time) {
	if b.state != bbrDrain {
		return
	}
	bdp := int64(b.bw.max() * b.minRTT.Seconds())
	if bytesInFlight <= bdp {
		b.enterProbeBW(now)
	}
}

func (b *BBR) enterProbeBW(now time.Time) {
	b.state = bbrProbeBW
	b.cycleIdx = 0
	b.cycleStart = now
}

func (b *BBR) enterProbeRTT(now time.Time) {
	b.state = bbrProbeRTT
	b.probeRTTSince = now
}

func (b *BBR) stepProbeBWCycle(now time.Time) {
	slot := probeBWCycleLen / time.Duration(len(probeBWGains))
	if b.cycleStart.IsZero() {
		b.cycleStart = now
	}
	elapsed := now.Sub(b.cycleStart)
	idx := int(elapsed / slot)
	if idx != b.cycleIdx {
		b.cycleIdx = idx % len(probeBWGains)
	}
}

func (b *BBR) updateMinRTT(rtt time.Duration, now time.Time) {
	if b.minRTT == 0 || rtt < b.minRTT || now.Sub(b.minRTTSet) >= minRTTWindow {
		b.minRTT = rtt
		b.minRTTSet = now
	}
}

func clampCwnd(c int64) int64 {
	if c < minCwnd {
		return minCwnd
	}
	if c > maxCwnd {
		return maxCwnd
	}
	return c
}
