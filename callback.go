package reactor

// Callback is invoked for timer and immediate watchers.
type Callback func(r *Reactor, id WatcherID)

// IOCallback is invoked for readable/writable watchers. The stream is
// always the same handle passed to OnReadable/OnWritable/WatchStream.
type IOCallback func(r *Reactor, id WatcherID, stream Stream)
