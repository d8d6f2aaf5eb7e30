package reactor

// WatcherID identifies a registered watcher for the lifetime of a Reactor.
// Allocation is monotonically increasing and ids are never reused, even
// after cancellation.
type WatcherID uint64

// idAllocator hands out strictly increasing WatcherIDs starting at zero.
type idAllocator struct {
	next WatcherID
}

func (a *idAllocator) allocate() WatcherID {
	id := a.next
	a.next++
	return id
}
