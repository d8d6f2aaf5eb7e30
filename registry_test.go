package reactor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDisable_PreservesTimerDeadlineUnchanged(t *testing.T) {
	clock := newFakeClock(0)
	r := newTestReactor(t, clock)
	r.running = true

	id := r.Once(func(*Reactor, WatcherID) {}, 100*time.Millisecond)
	original := r.timerByID[id].deadline

	clock.Advance(40 * time.Millisecond)
	r.Disable(id)

	parked, ok := r.parked[id]
	require.True(t, ok)
	require.Equal(t, kindTimer, parked.kind)
	require.Equal(t, original, parked.timer.deadline)
	require.True(t, parked.timer.hasDeadline)
}

func TestEnable_TimerWithUnsetDeadlineArmsAtEnableTime(t *testing.T) {
	clock := newFakeClock(0)
	r := newTestReactor(t, clock)
	// Registered while not running: deadline starts unset.
	id := r.Once(func(*Reactor, WatcherID) {}, time.Second)
	r.Disable(id)

	clock.Advance(3 * time.Second)
	r.Enable(id)

	rec := r.timerByID[id]
	require.True(t, rec.hasDeadline)
	require.InDelta(t, 4.0, rec.deadline, 1e-9)
}

func TestDisableEnable_IOWatcherRoundTrip(t *testing.T) {
	clock := newFakeClock(0)
	mux := &fakeMultiplexer{}
	r, err := NewReactor(WithClock(clock), WithMultiplexer(mux))
	require.NoError(t, err)

	const fd = 4
	var fired int
	id := r.OnReadable(FdStream(fd), func(*Reactor, WatcherID, Stream) { fired++ }, true)

	r.Disable(id)
	_, stillBucketed := r.streams[fd]
	require.False(t, stillBucketed)

	r.Enable(id)
	readSet, _ := r.buildInterestSets()
	require.Equal(t, []int{fd}, readSet)

	mux.queue([]int{fd}, nil)
	require.NoError(t, r.Tick())
	require.Equal(t, 1, fired)
}

func TestDisable_UnknownIDIsNoOp(t *testing.T) {
	clock := newFakeClock(0)
	r := newTestReactor(t, clock)
	require.NotPanics(t, func() { r.Disable(WatcherID(999)) })
	require.NotPanics(t, func() { r.Enable(WatcherID(999)) })
	require.NotPanics(t, func() { r.Cancel(WatcherID(999)) })
}

func TestDisable_AlreadyDisabledIsNoOp(t *testing.T) {
	clock := newFakeClock(0)
	r := newTestReactor(t, clock)
	id := r.Immediately(func(*Reactor, WatcherID) {})
	r.Disable(id)
	parkedBefore := r.parked[id]
	r.Disable(id)
	require.Same(t, parkedBefore, r.parked[id])
}

func TestDisable_ImmediateReEnqueuesOnEnable(t *testing.T) {
	clock := newFakeClock(0)
	r := newTestReactor(t, clock)

	var fired bool
	id := r.Immediately(func(*Reactor, WatcherID) { fired = true })
	r.Disable(id)
	require.NoError(t, r.Tick())
	require.False(t, fired)

	r.Enable(id)
	require.NoError(t, r.Tick())
	require.True(t, fired)
}

func TestCancel_DuringOwnImmediateDrainIsSkipped(t *testing.T) {
	clock := newFakeClock(0)
	r := newTestReactor(t, clock)

	var secondFired bool
	var secondID WatcherID
	r.Immediately(func(r *Reactor, _ WatcherID) {
		r.Cancel(secondID)
	})
	secondID = r.Immediately(func(*Reactor, WatcherID) { secondFired = true })

	require.NoError(t, r.Tick())
	require.False(t, secondFired)
}
