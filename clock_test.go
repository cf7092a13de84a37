package qlog

import (
	"testing"
	"time"
)

func TestWallClockPassthrough(t *testing.T) {
	ts := &timeSource{mode: clockWall}
	if got := ts.epochNanos(123456789); got != 123456789 {
		t.Fatalf("wall mode must pass timestamps through, got %d", got)
	}
	before := time.Now().UnixNano()
	now := ts.now()
	after := time.Now().UnixNano()
	if int64(now) < before || int64(now) > after {
		t.Fatalf("now %d outside [%d, %d]", now, before, after)
	}
}

func TestCycleConversion(t *testing.T) {
	ts := &timeSource{mode: clockCycles}
	ts.anchor.Store(&tscAnchor{cycles: 1000, epochNanos: 5000, cyclesPerNano: 2})

	if got := ts.epochNanos(1000); got != 5000 {
		t.Fatalf("anchor converts to %d, want 5000", got)
	}
	if got := ts.epochNanos(1200); got != 5100 {
		t.Fatalf("100ns past anchor converts to %d, want 5100", got)
	}
}

func TestCycleConversionMonotonic(t *testing.T) {
	ts := &timeSource{mode: clockCycles}
	ts.anchor.Store(&tscAnchor{cycles: 1000, epochNanos: 5000, cyclesPerNano: 1})

	if got := ts.epochNanos(2000); got != 6000 {
		t.Fatalf("got %d, want 6000", got)
	}
	// An anchor swap can never pull conversions backwards
	ts.anchor.Store(&tscAnchor{cycles: 2000, epochNanos: 5500, cyclesPerNano: 1})
	if got := ts.epochNanos(2100); got < 6000 {
		t.Fatalf("conversion went backwards to %d", got)
	}
}

func TestResyncNeverRewinds(t *testing.T) {
	if !rdtscSupported() {
		t.Skip("no cycle counter on this platform")
	}
	ts := newTimeSource(false)
	if ts.mode != clockCycles {
		t.Skip("calibration fell back to the wall clock")
	}

	last := uint64(0)
	for i := 0; i < 100; i++ {
		got := ts.epochNanos(ts.now())
		if got < last {
			t.Fatalf("conversion rewound from %d to %d", last, got)
		}
		last = got
		if i%10 == 0 {
			ts.resync()
		}
	}
}

func TestCalibrationFallback(t *testing.T) {
	ts := newTimeSource(true)
	if ts.mode != clockWall {
		t.Fatal("forced wall clock was ignored")
	}
}
