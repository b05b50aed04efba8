package poll

import (
	"time"

	"golang.org/x/sys/unix"
)

type epollBackend struct {
	epfd   int
	events []unix.EpollEvent
}

func newBackend() (backend, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &epollBackend{
		epfd:   epfd,
		events: make([]unix.EpollEvent, 64),
	}, nil
}

func (b *epollBackend) add(fd int, read, write bool) error {
	ev := unix.EpollEvent{Events: unix.EPOLLRDHUP, Fd: int32(fd)}
	if read {
		ev.Events |= unix.EPOLLIN
	}
	if write {
		ev.Events |= unix.EPOLLOUT
	}
	return unix.EpollCtl(b.epfd, unix.EPOLL_CTL_ADD, fd, &ev)
}

func (b *epollBackend) del(fd int) error {
	return unix.EpollCtl(b.epfd, unix.EPOLL_CTL_DEL, fd, &unix.EpollEvent{})
}

func (b *epollBackend) wait(timeout time.Duration, ready []readiness) ([]readiness, error) {
	n, err := unix.EpollWait(b.epfd, b.events, waitMillis(timeout))
	if err != nil {
		if err == unix.EINTR {
			return ready, nil
		}
		return ready, err
	}

	for _, ev := range b.events[:n] {
		ready = append(ready, readiness{
			fd:       int(ev.Fd),
			readable: ev.Events&unix.EPOLLIN != 0,
			writable: ev.Events&unix.EPOLLOUT != 0,
			hangup:   ev.Events&(unix.EPOLLHUP|unix.EPOLLRDHUP) != 0,
			failed:   ev.Events&unix.EPOLLERR != 0,
		})
	}
	return ready, nil
}

func (b *epollBackend) close() error {
	return unix.Close(b.epfd)
}
