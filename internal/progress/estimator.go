package progress

import (
	"math"
	"sync"
	"time"
)

const (
	// DefaultCeilingMargin is K: between real ticks the synthetic value may
	// climb toward min(lastTick+K, ceilingCap) but never beyond it.
	DefaultCeilingMargin = 0.15
	// ceilingCap keeps the bar from ever looking finished before the final
	// real tick arrives.
	ceilingCap      = 0.95
	DefaultCadence  = 200 * time.Millisecond
	approachFactor  = 0.08
)

type UpdateFunc func(value float64, message string)

type Options struct {
	CeilingMargin float64
	Cadence       time.Duration
	OnUpdate      UpdateFunc
}

// Estimator interpolates a displayed progress value between sparse real
// milestones. The displayed value is monotonically non-decreasing, stays
// strictly below the current ceiling between ticks, and reaches 1.0 only on
// Complete. One value, one ceiling, one timer handle per job.
type Estimator struct {
	mu      sync.Mutex
	value   float64
	ceiling float64
	message string

	margin   float64
	cadence  time.Duration
	onUpdate UpdateFunc

	stopTimer chan struct{} // non-nil while the interpolation timer runs
	done      bool
}

func NewEstimator(opts Options) *Estimator {
	margin := opts.CeilingMargin
	if margin <= 0 {
		margin = DefaultCeilingMargin
	}
	cadence := opts.Cadence
	if cadence <= 0 {
		cadence = DefaultCadence
	}
	return &Estimator{
		margin:   margin,
		cadence:  cadence,
		onUpdate: opts.OnUpdate,
	}
}

// Tick feeds a real milestone. It clamps the displayed value monotonic,
// retargets the synthetic ceiling, and restarts the interpolation timer.
func (e *Estimator) Tick(fraction float64, message string) {
	e.mu.Lock()
	if e.done {
		e.mu.Unlock()
		return
	}
	fraction = clamp01(fraction)
	if fraction > e.value {
		e.value = fraction
	}
	e.ceiling = math.Min(fraction+e.margin, ceilingCap)
	e.message = message
	e.stopTimerLocked()
	stop := make(chan struct{})
	e.stopTimer = stop
	value, msg, fn := e.value, e.message, e.onUpdate
	e.mu.Unlock()

	if fn != nil {
		fn(value, msg)
	}
	go e.run(stop)
}

// Complete drives the value to exactly 1.0 and clears the timer. Only the
// final real "complete" milestone may call it.
func (e *Estimator) Complete(message string) {
	e.mu.Lock()
	if e.done {
		e.mu.Unlock()
		return
	}
	e.done = true
	e.stopTimerLocked()
	e.value = 1.0
	e.message = message
	fn := e.onUpdate
	e.mu.Unlock()

	if fn != nil {
		fn(1.0, message)
	}
}

// Stop clears the timer without completing. Used on failure, cancellation,
// and caller teardown so a stale timer cannot nudge the bar afterwards.
func (e *Estimator) Stop() {
	e.mu.Lock()
	e.done = true
	e.stopTimerLocked()
	e.mu.Unlock()
}

func (e *Estimator) Value() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.value
}

// stopTimerLocked clears the current timer handle, if any. Callers must hold
// e.mu. The running goroutine observes the close and exits.
func (e *Estimator) stopTimerLocked() {
	if e.stopTimer != nil {
		close(e.stopTimer)
		e.stopTimer = nil
	}
}

func (e *Estimator) run(stop chan struct{}) {
	ticker := time.NewTicker(e.cadence)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			value, msg, fn, ok := e.advance(stop)
			if !ok {
				return
			}
			if fn != nil {
				fn(value, msg)
			}
		}
	}
}

// advance moves the value a fraction of the remaining distance toward the
// ceiling. Asymptotic, so it never reaches the ceiling and never regresses.
func (e *Estimator) advance(stop chan struct{}) (float64, string, UpdateFunc, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.done || e.stopTimer != stop {
		return 0, "", nil, false
	}
	if remaining := e.ceiling - e.value; remaining > 0 {
		e.value += remaining * approachFactor
	}
	return e.value, e.message, e.onUpdate, true
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
