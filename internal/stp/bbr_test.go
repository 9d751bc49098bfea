package stp

import (
	"testing"
	"time"
)

func TestBBRCwndClampedToBounds(t *testing.T) {
	if got := clampCwnd(0); got != minCwnd {
		t.Fatalf("clampCwnd(0) = %d, want %d", got, minCwnd)
	}
	if got := clampCwnd(1 << 30); got != maxCwnd {
		t.Fatalf("clampCwnd(huge) = %d, want %d", got, maxCwnd)
	}
	if got := clampCwnd(minCwnd + 1); got != minCwnd+1 {
		t.Fatalf("clampCwnd(in-range) = %d, want unchanged", got)
	}
}

func TestBBRCanSend(t *testing.T) {
	b := NewBBR(NewPacer(1000))
	b.cwnd = 10000
	if !b.CanSend(5000) {
		t.Fatal("CanSend(5000) with cwnd=10000 should be true")
	}
	if b.CanSend(10000) {
		t.Fatal("CanSend(cwnd) should be false (strict less-than)")
	}
}

func TestBBRStartsInStartup(t *testing.T) {
	b := NewBBR(NewPacer(1000))
	if b.State() != "startup" {
		t.Fatalf("initial state = %s, want startup", b.State())
	}
	if b.Cwnd() != initCwnd {
		t.Fatalf("initial cwnd = %d, want %d", b.Cwnd(), initCwnd)
	}
}

func TestBBRUpdatesPacerRate(t *testing.T) {
	pacer := NewPacer(1000)
	b := NewBBR(pacer)
	now := time.Now()

	for i := 0; i < 5; i++ {
		b.OnAck(100000, 20*time.Millisecond, now.Add(time.Duration(i)*10*time.Millisecond))
	}

	if pacer.Rate() <= MinPacingRate {
		t.Fatalf("pacer rate = %v, expected it to rise above the floor after sustained high-bandwidth ACKs", pacer.Rate())
	}
}

func TestBBRTransitionsStartupToDrain(t *testing.T) {
	b := NewBBR(NewPacer(1000))
	now := time.Now()

	// bdp = 2e7 B/s * 10ms = 200000, cwnd = 400000, so Startup exits once
	// packetsAcked > 3*(400000/1400) = 855.
	for i := 0; i < 1000 && b.State() == "startup"; i++ {
		b.OnAck(200000, 10*time.Millisecond, now.Add(time.Duration(i)*10*time.Millisecond))
	}

	if b.State() != "drain" {
		t.Fatalf("expected transition to drain after repeated high-bandwidth ACKs, got %s", b.State())
	}
}
