package call

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"chatcall-backend/pkg/metrics"
)

// ringTimers holds one cancelable missed-call timer per call
type ringTimers struct {
	mu     sync.Mutex
	timers map[uuid.UUID]*time.Timer
}

func newRingTimers() *ringTimers {
	return &ringTimers{timers: make(map[uuid.UUID]*time.Timer)}
}

// arm schedules fire after d, replacing any timer already armed for callID.
// fire runs at most once and only if the timer was not cancelled first.
func (t *ringTimers) arm(callID uuid.UUID, d time.Duration, fire func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if existing, ok := t.timers[callID]; ok {
		existing.Stop()
	}

	var timer *time.Timer
	timer = time.AfterFunc(d, func() {
		t.mu.Lock()
		current, ok := t.timers[callID]
		if !ok || current != timer {
			t.mu.Unlock()
			return
		}
		delete(t.timers, callID)
		metrics.CallPendingTimers.Set(float64(len(t.timers)))
		t.mu.Unlock()

		fire()
	})
	t.timers[callID] = timer
	metrics.CallPendingTimers.Set(float64(len(t.timers)))
}

// cancel stops the timer for callID. It reports whether a pending timer was stopped.
func (t *ringTimers) cancel(callID uuid.UUID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	timer, ok := t.timers[callID]
	if !ok {
		return false
	}
	delete(t.timers, callID)
	metrics.CallPendingTimers.Set(float64(len(t.timers)))
	return timer.Stop()
}

// pending reports whether a timer is armed for callID
func (t *ringTimers) pending(callID uuid.UUID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.timers[callID]
	return ok
}

// stopAll cancels every armed timer
func (t *ringTimers) stopAll() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := 0
	for id, timer := range t.timers {
		if timer.Stop() {
			n++
		}
		delete(t.timers, id)
	}
	metrics.CallPendingTimers.Set(0)
	return n
}
