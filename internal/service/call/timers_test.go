package call

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestRingTimers_FireOnce(t *testing.T) {
	timers := newRingTimers()
	callID := uuid.New()
	var fired int32

	timers.arm(callID, 10*time.Millisecond, func() { atomic.AddInt32(&fired, 1) })

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&fired) == 1 }, time.Second, 5*time.Millisecond)
	assert.False(t, timers.pending(callID))
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&fired))
}

func TestRingTimers_Cancel(t *testing.T) {
	timers := newRingTimers()
	callID := uuid.New()
	var fired int32

	timers.arm(callID, 20*time.Millisecond, func() { atomic.AddInt32(&fired, 1) })

	assert.True(t, timers.cancel(callID))
	assert.False(t, timers.cancel(callID))
	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, atomic.LoadInt32(&fired))
}

func TestRingTimers_RearmReplaces(t *testing.T) {
	timers := newRingTimers()
	callID := uuid.New()
	var first, second int32

	timers.arm(callID, 10*time.Millisecond, func() { atomic.AddInt32(&first, 1) })
	timers.arm(callID, 30*time.Millisecond, func() { atomic.AddInt32(&second, 1) })

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&second) == 1 }, time.Second, 5*time.Millisecond)
	assert.Zero(t, atomic.LoadInt32(&first))
}

func TestRingTimers_StopAll(t *testing.T) {
	timers := newRingTimers()
	var fired int32
	for i := 0; i < 3; i++ {
		timers.arm(uuid.New(), 20*time.Millisecond, func() { atomic.AddInt32(&fired, 1) })
	}

	assert.Equal(t, 3, timers.stopAll())
	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, atomic.LoadInt32(&fired))
}
