package reactor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestOnce_UnsetDeadlineUntilRunning(t *testing.T) {
	clock := newFakeClock(100)
	r := newTestReactor(t, clock)

	r.Once(func(*Reactor, WatcherID) {}, 50*time.Millisecond)

	require.Len(t, r.timers, 1)
	require.False(t, r.timers[0].hasDeadline)
}

func TestAt_SchedulesRelativeToTarget(t *testing.T) {
	clock := newFakeClock(1000)
	r := newTestReactor(t, clock)

	var fired float64
	id, err := r.At(func(r *Reactor, _ WatcherID) {
		fired = clock.Now()
	}, time.Unix(1010, 0))
	require.NoError(t, err)
	require.Equal(t, WatcherID(0), id) // first id this reactor allocates

	require.NoError(t, r.Run(nil))
	require.InDelta(t, 1010, fired, 1e-6)
}

func TestTimerHeap_OrdersByDeadlineThenID(t *testing.T) {
	clock := newFakeClock(0)
	r := newTestReactor(t, clock)

	var order []string
	r.Once(func(*Reactor, WatcherID) { order = append(order, "b-30ms") }, 30*time.Millisecond)
	r.Once(func(*Reactor, WatcherID) { order = append(order, "a-10ms") }, 10*time.Millisecond)
	r.Once(func(*Reactor, WatcherID) { order = append(order, "c-10ms-later-id") }, 10*time.Millisecond)

	require.NoError(t, r.Run(nil))
	require.Equal(t, []string{"a-10ms", "c-10ms-later-id", "b-30ms"}, order)
}

func TestTimer_CallbackCancellingLaterTimerInSameScan(t *testing.T) {
	clock := newFakeClock(0)
	r := newTestReactor(t, clock)

	var laterFired bool
	var laterID WatcherID
	r.Once(func(r *Reactor, _ WatcherID) {
		r.Cancel(laterID)
	}, 10*time.Millisecond)
	// Same deadline, higher id: ordered after the cancelling timer.
	laterID = r.Once(func(*Reactor, WatcherID) { laterFired = true }, 10*time.Millisecond)

	require.NoError(t, r.Run(nil))
	require.False(t, laterFired)
}

func TestRepeat_RegisteredWhileRunningArmsImmediately(t *testing.T) {
	clock := newFakeClock(5)
	r := newTestReactor(t, clock)
	r.running = true

	id := r.Repeat(func(*Reactor, WatcherID) {}, time.Second)
	rec := r.timerByID[id]
	require.True(t, rec.hasDeadline)
	require.InDelta(t, 6.0, rec.deadline, 1e-9)
}
