//go:build darwin || netbsd || freebsd || openbsd || dragonfly

package reactor

import (
	"time"

	"golang.org/x/sys/unix"
)

// kqueueMultiplexer is the default Multiplexer on the BSD family (including
// Darwin): unlike epoll, kqueue tracks read and write interest as
// independent filters per fd, so the diff against what is currently
// registered is simpler than epoll's combined event mask.
type kqueueMultiplexer struct {
	kq             int
	registeredRead map[int]bool
	registeredWr   map[int]bool
	eventBuf       []unix.Kevent_t
}

func newDefaultMultiplexer() (Multiplexer, error) {
	kq, err := unix.Kqueue()
	if err != nil {
		return nil, err
	}
	return &kqueueMultiplexer{
		kq:             kq,
		registeredRead: make(map[int]bool),
		registeredWr:   make(map[int]bool),
		eventBuf:       make([]unix.Kevent_t, 128),
	}, nil
}

func (p *kqueueMultiplexer) Select(readSet, writeSet []int, timeout time.Duration) (readyRead, readyWrite []int, err error) {
	wantRead := make(map[int]bool, len(readSet))
	for _, fd := range readSet {
		wantRead[fd] = true
	}
	wantWrite := make(map[int]bool, len(writeSet))
	for _, fd := range writeSet {
		wantWrite[fd] = true
	}

	var changes []unix.Kevent_t
	changes = diffFilter(changes, p.registeredRead, wantRead, unix.EVFILT_READ)
	changes = diffFilter(changes, p.registeredWr, wantWrite, unix.EVFILT_WRITE)
	p.registeredRead = wantRead
	p.registeredWr = wantWrite

	if len(changes) > 0 {
		if _, err := unix.Kevent(p.kq, changes, nil, nil); err != nil {
			return nil, nil, err
		}
	}

	var ts *unix.Timespec
	if len(wantRead) > 0 || len(wantWrite) > 0 {
		t := unix.NsecToTimespec(timeout.Nanoseconds())
		ts = &t
	} else {
		t := unix.NsecToTimespec(0)
		ts = &t
	}

	n, werr := unix.Kevent(p.kq, nil, p.eventBuf, ts)
	if werr != nil {
		if werr == unix.EINTR {
			return nil, nil, nil
		}
		return nil, nil, werr
	}

	for i := 0; i < n; i++ {
		ev := p.eventBuf[i]
		fd := int(ev.Ident)
		switch ev.Filter {
		case unix.EVFILT_READ:
			readyRead = append(readyRead, fd)
		case unix.EVFILT_WRITE:
			readyWrite = append(readyWrite, fd)
		}
	}
	return readyRead, readyWrite, nil
}

// diffFilter appends EV_ADD changes for newly wanted fds and EV_DELETE
// changes for fds no longer wanted, for one kqueue filter.
func diffFilter(changes []unix.Kevent_t, registered, wanted map[int]bool, filter int16) []unix.Kevent_t {
	for fd := range wanted {
		if !registered[fd] {
			changes = append(changes, unix.Kevent_t{
				Ident:  uint64(fd),
				Filter: filter,
				Flags:  unix.EV_ADD | unix.EV_ENABLE,
			})
		}
	}
	for fd := range registered {
		if !wanted[fd] {
			changes = append(changes, unix.Kevent_t{
				Ident:  uint64(fd),
				Filter: filter,
				Flags:  unix.EV_DELETE,
			})
		}
	}
	return changes
}

func (p *kqueueMultiplexer) Close() error {
	return unix.Close(p.kq)
}
