package stp

import (
	"sync"
	"time"
)

// MinPacingRate is the pacer's rate floor: whatever congestion control
// requests, the pacer never schedules sends slower than this.
const MinPacingRate = 1000 // bytes/sec

// Pacer converts a target send rate into per-send wait durations,
// absorbing bursts by tracking the ideal time of the previous send
// rather than the wall clock alone. It is a separate concern from
// congestion control: CC decides rate and cwnd, Pacer only turns rate
// into gaps.
type Pacer struct {
	mu           sync.Mutex
	rateBps      float64
	lastSendTime time.Time
}

// NewPacer builds a Pacer at the given initial rate (bytes/sec), clamped
// to MinPacingRate.
func NewPacer(rateBps float64) *Pacer {
	return &Pacer{rateBps: clampRate(rateBps), lastSendTime: time.Time{}}
}

func clampRate(rate float64) float64 {
	if rate < MinPacingRate {
		return MinPacingRate
	}
	return rate
}

// SetRate updates the target pacing rate. Congestion control must call
// this every time it recomputes (rate, cwnd).
func (p *Pacer) SetRate(rateBps float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rateBps = clampRate(rateBps)
}

// Rate returns the current pacing rate, always >= MinPacingRate.
func (p *Pacer) Rate() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rateBps
}

// Wait returns how long the caller should sleep before sending size
// bytes, and advances the pacer's internal clock. The caller is
// expected to actually sleep for the returned duration (or less, under
// a context deadline) before transmitting.
func (p *Pacer) Wait(size int, now time.Time) time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	gap := time.Duration(float64(size) / p.rateBps * float64(time.Second))

	idealSendTime := p.lastSendTime
	if idealSendTime.Before(now) {
		idealSendTime = now
	}

	wait := idealSendTime.Sub(now)

	// last_send_time tracks the later of now and the previous ideal
	// send time, so back-to-back bursts still get spread by gap.
	p.lastSendTime = idealSendTime.Add(gap)

	return wait
}
