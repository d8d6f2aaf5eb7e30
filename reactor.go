package reactor

import (
	"container/list"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
)

// Reactor is a single-threaded cooperative scheduler multiplexing wall-
// clock timers, I/O readiness on byte streams, and deferred immediate
// callbacks on one thread of execution. It is not safe for concurrent use:
// Run/Tick and every registration/cancellation method must be called from
// the same goroutine. All state is owned exclusively by that goroutine,
// with no internal locking.
type Reactor struct {
	ids     idAllocator
	running bool

	timers    timerHeap
	timerByID map[WatcherID]*timerRecord

	streams map[int]*streamBucket
	ioByID  map[WatcherID]*ioWatcher

	immediates    list.List
	immediateByID map[WatcherID]*immediateWatcher

	parked map[WatcherID]*parkedWatcher

	clock   Clock
	mux     Multiplexer
	logger  *zap.Logger
	metrics *Metrics
}

// Option configures a Reactor at construction time.
type Option func(*Reactor)

// WithClock installs a non-default Clock, e.g. a fake clock for tests.
func WithClock(c Clock) Option { return func(r *Reactor) { r.clock = c } }

// WithMultiplexer installs a non-default Multiplexer, e.g. a fake one for
// tests or an alternative production backend.
func WithMultiplexer(m Multiplexer) Option { return func(r *Reactor) { r.mux = m } }

// WithLogger installs a *zap.Logger. The default is zap.NewNop(), so the
// reactor is silent unless a caller opts in.
func WithLogger(l *zap.Logger) Option {
	return func(r *Reactor) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithMetrics installs a Metrics, typically built with NewMetrics against a
// caller-owned prometheus.Registerer.
func WithMetrics(m *Metrics) Option {
	return func(r *Reactor) {
		if m != nil {
			r.metrics = m
		}
	}
}

// NewReactor constructs a Reactor. Unless overridden with WithMultiplexer,
// it tries to build the platform's native epoll/kqueue Multiplexer, which
// can fail (e.g. file descriptor exhaustion), the one failure mode a
// constructor in this package has.
func NewReactor(opts ...Option) (*Reactor, error) {
	r := &Reactor{
		timerByID:     make(map[WatcherID]*timerRecord),
		streams:       make(map[int]*streamBucket),
		ioByID:        make(map[WatcherID]*ioWatcher),
		immediateByID: make(map[WatcherID]*immediateWatcher),
		parked:        make(map[WatcherID]*parkedWatcher),
		clock:         realClock{},
		logger:        zap.NewNop(),
		metrics:       newMetrics(),
	}
	r.immediates.Init()

	for _, opt := range opts {
		opt(r)
	}

	if r.mux == nil {
		mux, err := newDefaultMultiplexer()
		if err != nil {
			return nil, fmt.Errorf("reactor: default multiplexer: %w", err)
		}
		r.mux = mux
	}

	return r, nil
}

// Close releases the reactor's Multiplexer (e.g. the epoll/kqueue fd). It
// does not touch any watched stream, which remains owned by the caller.
func (r *Reactor) Close() error {
	return r.mux.Close()
}

// Run takes program control: schedules onStart (if non-nil) as an
// immediate, arms any timers registered before this call, then iterates
// Tick until stop is observed (via Stop, idle-termination, or a Tick
// error). Returns immediately, doing nothing, if already running.
func (r *Reactor) Run(onStart Callback) error {
	if r.running {
		return nil
	}
	r.running = true
	if onStart != nil {
		r.Immediately(onStart)
	}
	r.armPendingDeadlines()

	for r.running {
		if err := r.Tick(); err != nil {
			r.running = false
			return err
		}
	}
	return nil
}

// Stop clears the running flag. The current Tick completes; the Run loop
// then exits. Safe to call from within a callback.
func (r *Reactor) Stop() {
	r.running = false
}

// Running reports whether a Run invocation is currently in progress.
func (r *Reactor) Running() bool { return r.running }

// Tick executes exactly one iteration of the loop driver: re-arm unset
// timer deadlines if not running, drain immediates, compute the blocking
// timeout, dispatch I/O or idle-terminate or sleep, then expire timers.
func (r *Reactor) Tick() error {
	if !r.running {
		r.armPendingDeadlines()
	}
	r.metrics.Ticks.Inc()

	r.drainImmediates()

	haveTimers := r.timers.Len() > 0
	var timeout time.Duration
	if haveTimers {
		secs := r.timers[0].deadline - r.clock.Now()
		if secs < 0 {
			secs = 0
		}
		secs = roundTo4Decimals(secs)
		timeout = time.Duration(secs * float64(time.Second))
	} else {
		timeout = time.Second // sentinel, meaningful only when I/O interest is non-empty
	}

	readSet, writeSet := r.buildInterestSets()
	switch {
	case len(readSet) > 0 || len(writeSet) > 0:
		readyRead, readyWrite, err := r.mux.Select(readSet, writeSet, timeout)
		if err != nil {
			return err
		}
		for _, fd := range readyRead {
			r.fireBucket(fd, kindReadIO)
		}
		for _, fd := range readyWrite {
			r.fireBucket(fd, kindWriteIO)
		}
	case !haveTimers:
		// No I/O interest and no pending timers: no way to receive future
		// work, so stop rather than loop idle forever.
		r.running = false
	default:
		if timeout > 0 {
			r.clock.Sleep(timeout)
		}
	}

	if r.timers.Len() > 0 {
		r.expireTimers()
	}
	return nil
}

func roundTo4Decimals(s float64) float64 {
	return math.Round(s*1e4) / 1e4
}
