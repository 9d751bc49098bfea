package stp

import (
	"testing"
	"time"
)

func TestPacerRateFloor(t *testing.T) {
	p := NewPacer(10)
	if got := p.Rate(); got != MinPacingRate {
		t.Fatalf("Rate() = %v, want floor %v", got, float64(MinPacingRate))
	}
	p.SetRate(-5)
	if got := p.Rate(); got != MinPacingRate {
		t.Fatalf("Rate() after SetRate(-5) = %v, want floor %v", got, float64(MinPacingRate))
	}
}

func TestPacerSpreadsBursts(t *testing.T) {
	p := NewPacer(1000) // 1000 B/s => 1 byte takes 1ms
	base := time.Now()

	w1 := p.Wait(1000, base) // first send: no backlog, no wait
	if w1 != 0 {
		t.Fatalf("first Wait = %v, want 0", w1)
	}
	w2 := p.Wait(1000, base) // immediately after: must wait ~1s for the first send's gap
	if w2 < 900*time.Millisecond || w2 > 1100*time.Millisecond {
		t.Fatalf("second Wait = %v, want ~1s", w2)
	}
}

func TestPacerNoWaitWhenLate(t *testing.T) {
	p := NewPacer(1000)
	base := time.Now()
	p.Wait(1000, base)
	late := base.Add(5 * time.Second)
	w := p.Wait(1000, late)
	if w != 0 {
		t.Fatalf("Wait when already late = %v, want 0", w)
	}
}
