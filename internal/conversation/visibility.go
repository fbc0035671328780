package conversation

import (
	"sync"
	"time"
)

// Auto-seen thresholds.
const (
	DefaultDwell            = 300 * time.Millisecond
	DefaultVisibleThreshold = 0.5
)

// Visibility fires once per message after it has stayed at least threshold
// visible for dwell without interruption.
type Visibility struct {
	dwell     time.Duration
	threshold float64
	fire      func(id int64)

	mu      sync.Mutex
	timers  map[int64]*time.Timer
	fired   map[int64]bool
	stopped bool
}

// NewVisibility creates a tracker that calls fire from its own goroutine.
func NewVisibility(dwell time.Duration, threshold float64, fire func(id int64)) *Visibility {
	return &Visibility{
		dwell:     dwell,
		threshold: threshold,
		fire:      fire,
		timers:    make(map[int64]*time.Timer),
		fired:     make(map[int64]bool),
	}
}

// Report records the visible fraction of a message. Dropping below the
// threshold restarts the dwell.
func (v *Visibility) Report(id int64, ratio float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.stopped || v.fired[id] {
		return
	}
	if ratio < v.threshold {
		if t, ok := v.timers[id]; ok {
			t.Stop()
			delete(v.timers, id)
		}
		return
	}
	if _, ok := v.timers[id]; ok {
		return
	}
	var t *time.Timer
	t = time.AfterFunc(v.dwell, func() {
		v.mu.Lock()
		if v.stopped || v.timers[id] != t {
			v.mu.Unlock()
			return
		}
		delete(v.timers, id)
		v.fired[id] = true
		v.mu.Unlock()
		v.fire(id)
	})
	v.timers[id] = t
}

// Forget marks id as already handled, e.g. when it arrived seen.
func (v *Visibility) Forget(id int64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if t, ok := v.timers[id]; ok {
		t.Stop()
		delete(v.timers, id)
	}
	v.fired[id] = true
}

// Reset lets id fire again, e.g. after its receipt failed to send.
func (v *Visibility) Reset(id int64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.fired, id)
}

// Stop cancels all pending timers. Later reports are ignored.
func (v *Visibility) Stop() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.stopped = true
	for id, t := range v.timers {
		t.Stop()
		delete(v.timers, id)
	}
}
