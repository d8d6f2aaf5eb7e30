//go:build linux

package reactor

import (
	"time"

	"golang.org/x/sys/unix"
)

// epollMultiplexer is the default Multiplexer on Linux: an epoll instance
// kept open across Select calls, with interest diffed against what is
// currently registered so a steady-state tick (same streams watched as
// last time) costs no epoll_ctl calls at all. The diffing is internal;
// callers see only the stateless-looking Select(readSet, writeSet, timeout)
// contract.
type epollMultiplexer struct {
	epfd       int
	registered map[int]uint32
	eventBuf   []unix.EpollEvent
}

func newDefaultMultiplexer() (Multiplexer, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &epollMultiplexer{
		epfd:       epfd,
		registered: make(map[int]uint32),
		eventBuf:   make([]unix.EpollEvent, 128),
	}, nil
}

func (p *epollMultiplexer) Select(readSet, writeSet []int, timeout time.Duration) (readyRead, readyWrite []int, err error) {
	wanted := make(map[int]uint32, len(readSet)+len(writeSet))
	for _, fd := range readSet {
		wanted[fd] |= unix.EPOLLIN
	}
	for _, fd := range writeSet {
		wanted[fd] |= unix.EPOLLOUT
	}

	for fd, events := range wanted {
		cur, ok := p.registered[fd]
		switch {
		case !ok:
			ev := unix.EpollEvent{Fd: int32(fd), Events: events}
			if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
				return nil, nil, err
			}
		case cur != events:
			ev := unix.EpollEvent{Fd: int32(fd), Events: events}
			if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, &ev); err != nil {
				return nil, nil, err
			}
		}
		p.registered[fd] = events
	}
	for fd := range p.registered {
		if _, stillWanted := wanted[fd]; !stillWanted {
			unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
			delete(p.registered, fd)
		}
	}

	if need := len(wanted); need > len(p.eventBuf) {
		p.eventBuf = make([]unix.EpollEvent, need)
	}

	ms := int(timeout / time.Millisecond)
	if timeout > 0 && ms == 0 {
		ms = 1
	}
	if len(wanted) == 0 {
		ms = 0
	}

	n, werr := unix.EpollWait(p.epfd, p.eventBuf, ms)
	if werr != nil {
		if werr == unix.EINTR {
			return nil, nil, nil
		}
		return nil, nil, werr
	}

	for i := 0; i < n; i++ {
		fd := int(p.eventBuf[i].Fd)
		ev := p.eventBuf[i].Events
		if ev&(unix.EPOLLIN|unix.EPOLLHUP|unix.EPOLLERR) != 0 {
			readyRead = append(readyRead, fd)
		}
		if ev&(unix.EPOLLOUT|unix.EPOLLERR) != 0 {
			readyWrite = append(readyWrite, fd)
		}
	}
	return readyRead, readyWrite, nil
}

func (p *epollMultiplexer) Close() error {
	return unix.Close(p.epfd)
}
