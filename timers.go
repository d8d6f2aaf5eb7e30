package reactor

import (
	"container/heap"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
)

// timerRecord is the Timer watcher kind: a callback, an absolute deadline
// (unset for timers registered while the reactor is not running), the
// repeat interval, and the repeating flag. heapIndex/inHeap let the record
// be removed from the heap in O(log n) from arbitrary call sites (cancel,
// disable, or a sibling callback).
type timerRecord struct {
	id          WatcherID
	callback    Callback
	deadline    float64
	hasDeadline bool
	interval    float64
	repeating   bool

	heapIndex int
	inHeap    bool
}

// timerHeap orders timerRecords by (deadline, id) ascending, with unset
// deadlines sorting last so an unarmed timer never wins the "next
// expiration" scan before it has been armed.
type timerHeap []*timerRecord

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool {
	di, dj := h[i].deadline, h[j].deadline
	if !h[i].hasDeadline {
		di = math.Inf(1)
	}
	if !h[j].hasDeadline {
		dj = math.Inf(1)
	}
	if di != dj {
		return di < dj
	}
	return h[i].id < h[j].id
}

func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].heapIndex = i
	h[j].heapIndex = j
}

func (h *timerHeap) Push(x interface{}) {
	t := x.(*timerRecord)
	t.heapIndex = len(*h)
	t.inHeap = true
	*h = append(*h, t)
}

func (h *timerHeap) Pop() interface{} {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.heapIndex = -1
	t.inHeap = false
	*h = old[:n-1]
	return t
}

// Once registers a one-shot timer firing after delay. If the reactor is
// currently running its deadline is armed immediately; otherwise it is
// armed at the next Run (or at Enable, if disabled before that).
func (r *Reactor) Once(cb Callback, delay time.Duration) WatcherID {
	return r.scheduleTimer(cb, delay.Seconds(), false)
}

// Repeat registers a periodic timer firing every interval, fixed-rate: each
// reschedule computes next = previous deadline + interval, not now+interval,
// so a slow iteration does not drift the cadence.
func (r *Reactor) Repeat(cb Callback, interval time.Duration) WatcherID {
	return r.scheduleTimer(cb, interval.Seconds(), true)
}

func (r *Reactor) scheduleTimer(cb Callback, intervalSeconds float64, repeating bool) WatcherID {
	id := r.ids.allocate()
	t := &timerRecord{
		id:        id,
		callback:  cb,
		interval:  intervalSeconds,
		repeating: repeating,
	}
	if r.running {
		t.deadline = r.clock.Now() + intervalSeconds
		t.hasDeadline = true
	}
	r.timerByID[id] = t
	heap.Push(&r.timers, t)
	r.metrics.ActiveWatchers.WithLabelValues(kindTimer.metricLabel()).Inc()
	r.logger.Debug("reactor: timer registered",
		zap.Uint64("watcher_id", uint64(id)),
		zap.Float64("interval_s", intervalSeconds),
		zap.Bool("repeating", repeating),
	)
	return id
}

// At registers a one-shot timer firing at the given absolute time. The
// target must be strictly in the future relative to whole-second Clock.Now,
// or ErrInvalidTime is returned and no timer is registered.
func (r *Reactor) At(cb Callback, when time.Time) (WatcherID, error) {
	now := r.clock.Now()
	target := float64(when.Unix())
	if target <= math.Floor(now) {
		return 0, fmt.Errorf("%w: %s", ErrInvalidTime, when)
	}
	secondsUntil := target - now
	return r.Once(cb, time.Duration(secondsUntil*float64(time.Second))), nil
}

// armPendingDeadlines sets deadline = now + interval for every timer still
// carrying an unset deadline (registered while the reactor was not
// running). Called once at Run entry, and by Tick when called directly
// without Run.
func (r *Reactor) armPendingDeadlines() {
	now := r.clock.Now()
	changed := false
	for _, t := range r.timers {
		if !t.hasDeadline {
			t.deadline = now + t.interval
			t.hasDeadline = true
			changed = true
		}
	}
	if changed {
		heap.Init(&r.timers)
	}
}

// removeTimer drops t from the heap (if still present) and from the id
// index. Safe to call on a timer mid-firing: Pop already cleared inHeap so
// this is then just the timerByID bookkeeping.
func (r *Reactor) removeTimer(t *timerRecord) {
	if t.inHeap {
		heap.Remove(&r.timers, t.heapIndex)
	}
	if _, ok := r.timerByID[t.id]; ok {
		r.metrics.ActiveWatchers.WithLabelValues(kindTimer.metricLabel()).Dec()
	}
	delete(r.timerByID, t.id)
}

// expireTimers fires every timer whose deadline had passed as of entry, in
// ascending (deadline, id) order, honouring cancellations/disables
// performed by earlier firings in the same scan. A timer is kept live in
// timerByID across its own callback invocation (only removed from the
// heap) so a self-cancelling repeating timer can suppress its own
// reschedule.
//
// Rescheduled repeating timers are held in a side slice and only pushed
// back onto the heap after the scan completes, so a timer that has fallen
// behind (its next deadline is still <= now) fires at most once per tick
// rather than bursting through its backlog in one call.
func (r *Reactor) expireTimers() {
	now := r.clock.Now()
	var rescheduled []*timerRecord

	for r.timers.Len() > 0 {
		t := r.timers[0]
		if !t.hasDeadline || t.deadline > now {
			break
		}

		popped := heap.Pop(&r.timers).(*timerRecord)

		r.metrics.TimersFired.Inc()
		r.logger.Debug("reactor: timer fired",
			zap.Uint64("watcher_id", uint64(popped.id)),
			zap.Bool("repeating", popped.repeating),
		)
		popped.callback(r, popped.id)

		_, stillRegistered := r.timerByID[popped.id]
		if !stillRegistered {
			// Cancelled or disabled by its own callback: reschedule suppressed.
			continue
		}
		if popped.repeating {
			popped.deadline += popped.interval
			rescheduled = append(rescheduled, popped)
		} else {
			delete(r.timerByID, popped.id)
			r.metrics.ActiveWatchers.WithLabelValues(kindTimer.metricLabel()).Dec()
		}
	}

	for _, t := range rescheduled {
		heap.Push(&r.timers, t)
	}
}
