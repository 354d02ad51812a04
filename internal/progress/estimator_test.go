package progress

import (
	"math"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func currentTimer(e *Estimator) chan struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stopTimer
}

func TestEstimatorSequenceIsMonotonicAndBounded(t *testing.T) {
	var mu sync.Mutex
	var seen []float64
	e := NewEstimator(Options{
		CeilingMargin: 0.15,
		Cadence:       time.Hour, // timer never fires; we drive advance directly
		OnUpdate: func(v float64, _ string) {
			mu.Lock()
			seen = append(seen, v)
			mu.Unlock()
		},
	})
	defer e.Stop()

	ticks := []float64{0.1, 0.3, 0.7, 0.9}
	for _, tick := range ticks {
		e.Tick(tick, "working")
		ceiling := math.Min(tick+0.15, 0.95)
		stop := currentTimer(e)
		for i := 0; i < 50; i++ {
			if _, _, _, ok := e.advance(stop); !ok {
				t.Fatalf("advance stopped unexpectedly at tick %v", tick)
			}
			if v := e.Value(); v >= ceiling {
				t.Fatalf("value %v reached ceiling %v between ticks", v, ceiling)
			}
		}
	}
	e.Complete("done")

	mu.Lock()
	defer mu.Unlock()
	prev := -1.0
	for i, v := range seen {
		if v < prev {
			t.Fatalf("displayed progress regressed at %d: %v -> %v", i, prev, v)
		}
		if v == 1.0 && i != len(seen)-1 {
			t.Fatalf("progress hit 1.0 before the final tick (index %d of %d)", i, len(seen))
		}
		prev = v
	}
	if len(seen) == 0 || seen[len(seen)-1] != 1.0 {
		t.Fatalf("final displayed value: want 1.0, got %v", seen[len(seen)-1])
	}
}

func TestEstimatorTickReplacesTimerHandle(t *testing.T) {
	e := NewEstimator(Options{Cadence: time.Hour})
	defer e.Stop()

	e.Tick(0.1, "a")
	first := currentTimer(e)
	e.Tick(0.3, "b")
	second := currentTimer(e)
	if first == second {
		t.Fatal("expected Tick to replace the timer handle")
	}
	select {
	case <-first:
	default:
		t.Fatal("expected previous timer handle to be closed")
	}

	// A stale handle must not advance the value anymore.
	before := e.Value()
	if _, _, _, ok := e.advance(first); ok {
		t.Fatal("stale timer advanced the estimator")
	}
	if e.Value() != before {
		t.Fatalf("stale timer changed value: %v -> %v", before, e.Value())
	}
}

func TestEstimatorStopSilencesTimer(t *testing.T) {
	var mu sync.Mutex
	updates := 0
	e := NewEstimator(Options{
		Cadence: time.Millisecond,
		OnUpdate: func(float64, string) {
			mu.Lock()
			updates++
			mu.Unlock()
		},
	})
	e.Tick(0.2, "working")
	time.Sleep(20 * time.Millisecond)
	e.Stop()

	mu.Lock()
	after := updates
	mu.Unlock()
	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if updates != after {
		t.Fatalf("updates continued after Stop: %d -> %d", after, updates)
	}
	if e.Value() >= 1.0 {
		t.Fatalf("stopped estimator should not report completion, got %v", e.Value())
	}
}

func TestEstimatorIgnoresRegressingTick(t *testing.T) {
	e := NewEstimator(Options{Cadence: time.Hour})
	defer e.Stop()

	e.Tick(0.7, "far")
	e.Tick(0.4, "regress")
	if v := e.Value(); v < 0.7 {
		t.Fatalf("value regressed after lower tick: %v", v)
	}
}

func TestEstimatorCompleteIsTerminal(t *testing.T) {
	e := NewEstimator(Options{Cadence: time.Hour})
	e.Tick(0.5, "half")
	e.Complete("done")
	e.Tick(0.6, "late tick")
	if v := e.Value(); v != 1.0 {
		t.Fatalf("value after Complete: want 1.0, got %v", v)
	}
}
