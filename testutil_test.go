package reactor

import (
	"sync"
	"time"
)

// fakeClock is a manually-advanced Clock driving the scenario tests without
// real sleeps: a Now/Sleep pair backed by a single mutex-protected field.
type fakeClock struct {
	mu  sync.Mutex
	now float64
}

func newFakeClock(start float64) *fakeClock {
	return &fakeClock{now: start}
}

func (c *fakeClock) Now() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Sleep advances the fake clock by d rather than blocking, so Tick's sleep
// branch still moves time forward deterministically.
func (c *fakeClock) Sleep(d time.Duration) {
	c.mu.Lock()
	c.now += d.Seconds()
	c.mu.Unlock()
}

func (c *fakeClock) Advance(d time.Duration) {
	c.Sleep(d)
}

// fakeMultiplexer hands back one queued readiness result per Select call,
// then reports nothing ready until reloaded via queue. It exists to drive
// I/O dispatch (bucket ordering, re-check-presence) without a real poller.
type fakeMultiplexer struct {
	mu        sync.Mutex
	nextRead  []int
	nextWrite []int
	lastRead  []int
	lastWrite []int
	calls     int
	closed    bool
}

func (m *fakeMultiplexer) queue(read, write []int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextRead = read
	m.nextWrite = write
}

func (m *fakeMultiplexer) Select(readSet, writeSet []int, timeout time.Duration) ([]int, []int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.lastRead = append([]int(nil), readSet...)
	m.lastWrite = append([]int(nil), writeSet...)
	r, w := m.nextRead, m.nextWrite
	m.nextRead, m.nextWrite = nil, nil
	return r, w, nil
}

func (m *fakeMultiplexer) Close() error {
	m.closed = true
	return nil
}
