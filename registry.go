package reactor

import (
	"container/heap"

	"go.uber.org/zap"
)

// watcherKind tags the four watcher variants.
type watcherKind uint8

const (
	kindTimer watcherKind = iota
	kindReadIO
	kindWriteIO
	kindImmediate
)

// parkedWatcher is the disabled-parking table entry: enough of the
// original record to reconstruct the watcher on Enable. Exactly one of the
// three fields is populated, selected by kind.
type parkedWatcher struct {
	kind      watcherKind
	timer     *timerRecord
	io        *ioWatcher
	immediate *immediateWatcher
}

// Cancel removes the watcher from whichever registry holds it, active or
// parked. Idempotent: cancelling an unknown or already-cancelled id is a
// no-op.
func (r *Reactor) Cancel(id WatcherID) {
	if t, ok := r.timerByID[id]; ok {
		r.removeTimer(t)
		r.logger.Debug("reactor: watcher cancelled", zap.Uint64("watcher_id", uint64(id)))
		return
	}
	if w, ok := r.ioByID[id]; ok {
		r.removeIOWatcher(w)
		r.logger.Debug("reactor: watcher cancelled", zap.Uint64("watcher_id", uint64(id)))
		return
	}
	if im, ok := r.immediateByID[id]; ok {
		r.removeImmediate(im)
		r.logger.Debug("reactor: watcher cancelled", zap.Uint64("watcher_id", uint64(id)))
		return
	}
	delete(r.parked, id)
}

// Disable moves the watcher from its active registry to the disabled-
// parking table, preserving enough state to reconstruct it on Enable. A
// timer's preserved deadline is left untouched, so disabling and
// re-enabling before the deadline does not advance it. No-op if the id is
// already disabled or unknown.
func (r *Reactor) Disable(id WatcherID) {
	if _, parked := r.parked[id]; parked {
		return
	}
	if t, ok := r.timerByID[id]; ok {
		r.removeTimer(t)
		r.parked[id] = &parkedWatcher{kind: kindTimer, timer: t}
		return
	}
	if w, ok := r.ioByID[id]; ok {
		r.removeIOWatcher(w)
		r.parked[id] = &parkedWatcher{kind: w.dir, io: w}
		return
	}
	if im, ok := r.immediateByID[id]; ok {
		r.removeImmediate(im)
		r.parked[id] = &parkedWatcher{kind: kindImmediate, immediate: im}
		return
	}
}

// Enable restores a parked watcher to its original kind's active registry.
// A timer whose preserved deadline was never armed (because it was parked
// before the reactor first ran) is armed to now+interval at enable time.
// No-op if the id is not parked.
func (r *Reactor) Enable(id WatcherID) {
	p, ok := r.parked[id]
	if !ok {
		return
	}
	delete(r.parked, id)
	switch p.kind {
	case kindTimer:
		t := p.timer
		if !t.hasDeadline {
			t.deadline = r.clock.Now() + t.interval
			t.hasDeadline = true
		}
		r.timerByID[t.id] = t
		heap.Push(&r.timers, t)
		r.metrics.ActiveWatchers.WithLabelValues(kindTimer.metricLabel()).Inc()
	case kindReadIO, kindWriteIO:
		r.installIOWatcher(p.io)
	case kindImmediate:
		r.pushImmediate(p.immediate)
	}
	r.logger.Debug("reactor: watcher enabled", zap.Uint64("watcher_id", uint64(id)))
}
