//go:build unix && !linux

package poll

import (
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// pollBackend uses poll(2) over the registered descriptor set.
type pollBackend struct {
	mu   sync.Mutex
	fds  []unix.PollFd
	scan []unix.PollFd
}

func newBackend() (backend, error) {
	return &pollBackend{}, nil
}

func (b *pollBackend) add(fd int, read, write bool) error {
	var events int16
	if read {
		events |= unix.POLLIN
	}
	if write {
		events |= unix.POLLOUT
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.fds = append(b.fds, unix.PollFd{Fd: int32(fd), Events: events})
	return nil
}

func (b *pollBackend) del(fd int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i := range b.fds {
		if b.fds[i].Fd == int32(fd) {
			b.fds = append(b.fds[:i], b.fds[i+1:]...)
			return nil
		}
	}
	return nil
}

func (b *pollBackend) wait(timeout time.Duration, ready []readiness) ([]readiness, error) {
	b.mu.Lock()
	b.scan = append(b.scan[:0], b.fds...)
	b.mu.Unlock()

	if len(b.scan) == 0 {
		time.Sleep(timeout)
		return ready, nil
	}

	n, err := unix.Poll(b.scan, waitMillis(timeout))
	if err != nil {
		if err == unix.EINTR {
			return ready, nil
		}
		return ready, err
	}
	if n == 0 {
		return ready, nil
	}

	for _, pfd := range b.scan {
		if pfd.Revents == 0 {
			continue
		}
		ready = append(ready, readiness{
			fd:       int(pfd.Fd),
			readable: pfd.Revents&unix.POLLIN != 0,
			writable: pfd.Revents&unix.POLLOUT != 0,
			hangup:   pfd.Revents&unix.POLLHUP != 0,
			failed:   pfd.Revents&(unix.POLLERR|unix.POLLNVAL) != 0,
		})
	}
	return ready, nil
}

func (b *pollBackend) close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.fds = nil
	return nil
}
