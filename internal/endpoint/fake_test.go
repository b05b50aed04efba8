package endpoint

import (
	"errors"
	"sync"
	"time"

	"github.com/postalsys/dgram/internal/address"
	"github.com/postalsys/dgram/internal/poll"
)

var (
	errFakeTimeout   = errors.New("fake: timed out")
	errFakeInterrupt = errors.New("fake: interrupted")
	errFake          = errors.New("fake: failure")
)

type fakeDatagram struct {
	payload []byte
	from    address.Address
	err     error
}

// fakeSys is an in-memory sysSocket that records every call.
type fakeSys struct {
	mu sync.Mutex

	calls    []string
	timeouts []time.Duration
	sent     [][]byte
	sentTo   []address.Address
	conn     []bool

	socketErr  error
	bindErr    error
	connectErr error
	sendErr    error
	timeoutErr error
	closeErr   error

	// queue is consumed by recvfrom; an empty queue reports a timeout.
	queue []fakeDatagram
	local address.Address
}

func (f *fakeSys) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeSys) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeSys) socket() (uintptr, error) {
	f.record("socket")
	if f.socketErr != nil {
		return 0, f.socketErr
	}
	return 42, nil
}

func (f *fakeSys) bind(fd uintptr, a address.Address) error {
	f.record("bind")
	return f.bindErr
}

func (f *fakeSys) connect(fd uintptr, a address.Address) error {
	f.record("connect")
	return f.connectErr
}

func (f *fakeSys) sendto(fd uintptr, p []byte, to address.Address, connected bool) (int, error) {
	f.record("sendto")
	if f.sendErr != nil {
		return 0, f.sendErr
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, append([]byte(nil), p...))
	f.sentTo = append(f.sentTo, to)
	f.conn = append(f.conn, connected)
	return len(p), nil
}

func (f *fakeSys) setRecvTimeout(fd uintptr, d time.Duration) error {
	f.record("setsockopt")
	if f.timeoutErr != nil {
		return f.timeoutErr
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.timeouts = append(f.timeouts, d)
	return nil
}

func (f *fakeSys) recvfrom(fd uintptr, p []byte, nonblock bool) (int, address.Address, bool, error) {
	f.record("recvfrom")

	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.queue) == 0 {
		return 0, address.Address{}, false, errFakeTimeout
	}
	d := f.queue[0]
	f.queue = f.queue[1:]
	if d.err != nil {
		return 0, address.Address{}, false, d.err
	}

	n := copy(p, d.payload)
	return n, d.from, n < len(d.payload), nil
}

func (f *fakeSys) localAddr(fd uintptr) (address.Address, error) {
	f.record("getsockname")
	return f.local, nil
}

func (f *fakeSys) close(fd uintptr) error {
	f.record("close")
	return f.closeErr
}

func (f *fakeSys) isTimeout(err error) bool {
	return errors.Is(err, errFakeTimeout)
}

func (f *fakeSys) isInterrupted(err error) bool {
	return errors.Is(err, errFakeInterrupt)
}

// fakePoller records registrations and lets tests fire callbacks by hand.
// Removals are written to the fakeSys call log so ordering can be checked.
type fakePoller struct {
	sys        *fakeSys
	registered map[uintptr]poll.Callbacks
	removed    []uintptr
	err        error
}

func newFakePoller(sys *fakeSys) *fakePoller {
	return &fakePoller{sys: sys, registered: make(map[uintptr]poll.Callbacks)}
}

func (p *fakePoller) register(fd uintptr, cb poll.Callbacks) error {
	if p.err != nil {
		return p.err
	}
	p.registered[fd] = cb
	return nil
}

func (p *fakePoller) remove(fd uintptr) error {
	p.sys.record("remove")
	p.removed = append(p.removed, fd)
	delete(p.registered, fd)
	return nil
}
