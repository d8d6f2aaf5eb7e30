package reactor

import (
	"container/list"

	"go.uber.org/zap"
)

// ioWatcher is the ReadIO/WriteIO watcher kind: a stream handle and a
// callback, linked into its stream's bucket. elem is kept on the record
// itself so cancellation is an O(1) list.Remove rather than a linear scan.
type ioWatcher struct {
	id       WatcherID
	stream   Stream
	callback IOCallback
	dir      watcherKind // kindReadIO or kindWriteIO

	bucket *streamBucket
	elem   *list.Element
}

// streamBucket holds the readable and writable watcher queues for one
// stream. A stream appears in the corresponding interest set iff its
// bucket's list for that direction is non-empty; an empty bucket is
// garbage-collected from the streams map immediately.
type streamBucket struct {
	stream  Stream
	readers list.List
	writers list.List
}

func (r *Reactor) bucketFor(dir watcherKind, b *streamBucket) *list.List {
	if dir == kindReadIO {
		return &b.readers
	}
	return &b.writers
}

// OnReadable registers a ReadIO watcher. If enableNow, it is installed into
// the read bucket immediately; otherwise it starts parked (disabled).
func (r *Reactor) OnReadable(stream Stream, cb IOCallback, enableNow bool) WatcherID {
	return r.registerIO(stream, cb, kindReadIO, enableNow)
}

// OnWritable is the write-direction symmetric of OnReadable.
func (r *Reactor) OnWritable(stream Stream, cb IOCallback, enableNow bool) WatcherID {
	return r.registerIO(stream, cb, kindWriteIO, enableNow)
}

func (r *Reactor) registerIO(stream Stream, cb IOCallback, dir watcherKind, enableNow bool) WatcherID {
	id := r.ids.allocate()
	w := &ioWatcher{id: id, stream: stream, callback: cb, dir: dir}
	if enableNow {
		r.installIOWatcher(w)
	} else {
		r.parked[id] = &parkedWatcher{kind: dir, io: w}
	}
	r.logger.Debug("reactor: io watcher registered",
		zap.Uint64("watcher_id", uint64(id)),
		zap.Int("fd", stream.Fd()),
		zap.Bool("readable", dir == kindReadIO),
		zap.Bool("enabled", enableNow),
	)
	return id
}

// WatchStream is the combined convenience operation: flags selects which
// direction(s) to watch (at least one of WatchRead/WatchWrite is required),
// WatchNow controls whether the resulting watcher(s) start enabled. Each
// requested bit registers its own watcher in the matching direction.
func (r *Reactor) WatchStream(stream Stream, flags WatchFlags, cb IOCallback) (WatchResult, error) {
	if flags&(WatchRead|WatchWrite) == 0 {
		return WatchResult{}, ErrDomain
	}
	enableNow := flags&WatchNow != 0
	var res WatchResult
	if flags&WatchRead != 0 {
		res.Read = r.OnReadable(stream, cb, enableNow)
		res.HasRead = true
	}
	if flags&WatchWrite != 0 {
		res.Write = r.OnWritable(stream, cb, enableNow)
		res.HasWrite = true
	}
	return res, nil
}

func (r *Reactor) installIOWatcher(w *ioWatcher) {
	fd := w.stream.Fd()
	b, ok := r.streams[fd]
	if !ok {
		b = &streamBucket{stream: w.stream}
		r.streams[fd] = b
	}
	w.bucket = b
	w.elem = r.bucketFor(w.dir, b).PushBack(w)
	r.ioByID[w.id] = w
	r.metrics.ActiveWatchers.WithLabelValues(w.dir.metricLabel()).Inc()
}

func (r *Reactor) removeIOWatcher(w *ioWatcher) {
	r.bucketFor(w.dir, w.bucket).Remove(w.elem)
	delete(r.ioByID, w.id)
	r.metrics.ActiveWatchers.WithLabelValues(w.dir.metricLabel()).Dec()
	if w.bucket.readers.Len() == 0 && w.bucket.writers.Len() == 0 {
		delete(r.streams, w.stream.Fd())
	}
}

func (r *Reactor) buildInterestSets() (readSet, writeSet []int) {
	for fd, b := range r.streams {
		if b.readers.Len() > 0 {
			readSet = append(readSet, fd)
		}
		if b.writers.Len() > 0 {
			writeSet = append(writeSet, fd)
		}
	}
	return
}

// fireBucket dispatches ready callbacks for one stream/direction in FIFO
// order. The watchers present when the dispatch began are snapshotted into
// a slice up front: a callback that registers a new watcher on the same
// stream must not have it fire in this same dispatch (registrations take
// effect no earlier than the next iteration), and a callback that
// cancels/disables a later watcher in the same bucket must cause it to be
// skipped, not the watchers after it. Walking the live list directly would
// not do: list.Remove nils a removed node's own next/prev pointers, so a
// callback cancelling a non-adjacent later watcher would detach it out from
// under a saved e.Next() and silently truncate the rest of the dispatch.
func (r *Reactor) fireBucket(fd int, dir watcherKind) {
	b, ok := r.streams[fd]
	if !ok {
		return
	}
	lst := r.bucketFor(dir, b)
	if lst.Len() == 0 {
		return
	}

	snapshot := make([]*ioWatcher, 0, lst.Len())
	for e := lst.Front(); e != nil; e = e.Next() {
		snapshot = append(snapshot, e.Value.(*ioWatcher))
	}

	if dir == kindReadIO {
		r.metrics.ReadablesDispatched.Inc()
	} else {
		r.metrics.WritablesDispatched.Inc()
	}

	for _, w := range snapshot {
		if _, stillActive := r.ioByID[w.id]; !stillActive {
			continue
		}
		w.callback(r, w.id, w.stream)
	}
}
