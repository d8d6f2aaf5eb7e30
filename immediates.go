package reactor

import "container/list"

// immediateWatcher is the Immediate watcher kind: a bare callback deferred
// to the start of the next iteration. inLiveList distinguishes "currently
// linked into the live queue" from "snapshotted for this iteration's drain
// but not yet invoked", so Cancel/Disable called on a not-yet-invoked batch
// member (from an earlier callback in the same drain) knows not to touch a
// list it has already been unlinked from.
type immediateWatcher struct {
	id         WatcherID
	callback   Callback
	elem       *list.Element
	inLiveList bool
}

// Immediately appends callback to the immediates queue; it fires on the
// next iteration.
func (r *Reactor) Immediately(cb Callback) WatcherID {
	id := r.ids.allocate()
	im := &immediateWatcher{id: id, callback: cb}
	r.pushImmediate(im)
	return id
}

func (r *Reactor) pushImmediate(im *immediateWatcher) {
	im.elem = r.immediates.PushBack(im)
	im.inLiveList = true
	r.immediateByID[im.id] = im
	r.metrics.ActiveWatchers.WithLabelValues(kindImmediate.metricLabel()).Inc()
}

func (r *Reactor) removeImmediate(im *immediateWatcher) {
	if im.inLiveList {
		r.immediates.Remove(im.elem)
		im.inLiveList = false
	}
	if _, ok := r.immediateByID[im.id]; ok {
		r.metrics.ActiveWatchers.WithLabelValues(kindImmediate.metricLabel()).Dec()
	}
	delete(r.immediateByID, im.id)
}

// drainImmediates snapshots the live queue into a local batch, clearing the
// live queue first so callbacks registered during the drain are deferred to
// the next iteration, then invokes each batch member in insertion order,
// skipping any that were cancelled/disabled by an earlier member of the
// same batch.
func (r *Reactor) drainImmediates() {
	var batch []*immediateWatcher
	for e := r.immediates.Front(); e != nil; {
		next := e.Next()
		im := r.immediates.Remove(e).(*immediateWatcher)
		im.inLiveList = false
		batch = append(batch, im)
		e = next
	}
	if len(batch) == 0 {
		return
	}
	for _, im := range batch {
		if _, stillLive := r.immediateByID[im.id]; !stillLive {
			continue
		}
		delete(r.immediateByID, im.id)
		r.metrics.ActiveWatchers.WithLabelValues(kindImmediate.metricLabel()).Dec()
		r.metrics.ImmediatesDrained.Inc()
		im.callback(r, im.id)
	}
}
