package poll

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/postalsys/dgram/internal/logging"
	"github.com/postalsys/dgram/internal/recovery"
)

// DefaultWait bounds a single wait inside Run so context cancellation is observed.
const DefaultWait = 10 * time.Millisecond

// readiness is one descriptor event reported by a backend.
type readiness struct {
	fd       int
	readable bool
	writable bool
	hangup   bool
	failed   bool
}

type backend interface {
	add(fd int, read, write bool) error
	del(fd int) error
	wait(timeout time.Duration, ready []readiness) ([]readiness, error)
	close() error
}

// Poller dispatches descriptor readiness to registered callbacks.
type Poller struct {
	mu      sync.Mutex
	sources map[int]Callbacks
	be      backend
	ready   []readiness
	closed  bool
	logger  *slog.Logger
}

// New creates a Poller. A nil logger discards output.
func New(logger *slog.Logger) (*Poller, error) {
	if logger == nil {
		logger = logging.NopLogger()
	}

	be, err := newBackend()
	if err != nil {
		return nil, fmt.Errorf("create poller: %w", err)
	}

	return &Poller{
		sources: make(map[int]Callbacks),
		be:      be,
		logger:  logger.With(slog.String(logging.KeyComponent, "poll")),
	}, nil
}

// Register starts watching fd. Read and Write select the watched conditions;
// Close is called on hangup.
func (p *Poller) Register(fd uintptr, cb Callbacks) error {
	if cb.Read == nil && cb.Write == nil && cb.Close == nil {
		return ErrNoCallbacks
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}
	if _, ok := p.sources[int(fd)]; ok {
		return ErrAlreadyRegistered
	}

	if err := p.be.add(int(fd), cb.Read != nil, cb.Write != nil); err != nil {
		return fmt.Errorf("register fd %d: %w", fd, err)
	}
	p.sources[int(fd)] = cb
	return nil
}

// Remove stops watching fd.
func (p *Poller) Remove(fd uintptr) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}
	return p.removeLocked(int(fd))
}

func (p *Poller) removeLocked(fd int) error {
	if _, ok := p.sources[fd]; !ok {
		return ErrNotRegistered
	}
	delete(p.sources, fd)

	if err := p.be.del(fd); err != nil {
		return fmt.Errorf("remove fd %d: %w", fd, err)
	}
	return nil
}

// Len returns the number of registered descriptors.
func (p *Poller) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return len(p.sources)
}

// Poll waits up to timeout for readiness and dispatches one round of callbacks.
// A negative timeout waits indefinitely.
func (p *Poller) Poll(timeout time.Duration) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	p.mu.Unlock()

	ready, err := p.be.wait(timeout, p.ready[:0])
	p.ready = ready
	if err != nil {
		return fmt.Errorf("poll wait: %w", err)
	}

	for _, r := range ready {
		if err := p.dispatch(r); err != nil {
			return err
		}
	}
	return nil
}

// Run polls until ctx is done or a callback returns an error.
// ErrStop and context cancellation both end Run with a nil error.
func (p *Poller) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if err := p.Poll(DefaultWait); err != nil {
			if errors.Is(err, ErrStop) {
				return nil
			}
			return err
		}
	}
}

func (p *Poller) lookup(fd int) (Callbacks, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	cb, ok := p.sources[fd]
	return cb, ok
}

func (p *Poller) dispatch(r readiness) error {
	cb, ok := p.lookup(r.fd)
	if !ok {
		// Removed by an earlier callback in this round
		return nil
	}

	if r.hangup || (r.failed && cb.Read == nil) {
		p.mu.Lock()
		if err := p.removeLocked(r.fd); err != nil && !errors.Is(err, ErrNotRegistered) {
			p.logger.Debug("remove after hangup failed", slog.Int(logging.KeyFD, r.fd), logging.Err(err))
		}
		p.mu.Unlock()

		if cb.Close != nil {
			return recovery.Call(p.logger, "close callback", cb.Close)
		}
		return nil
	}

	if (r.readable || r.failed) && cb.Read != nil {
		if err := recovery.Call(p.logger, "read callback", cb.Read); err != nil {
			return err
		}
	}

	if r.writable && cb.Write != nil {
		if _, ok := p.lookup(r.fd); !ok {
			return nil
		}
		if err := recovery.Call(p.logger, "write callback", cb.Write); err != nil {
			return err
		}
	}

	return nil
}

// Close releases the poller. Registered descriptors are not closed.
func (p *Poller) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	p.sources = nil
	return p.be.close()
}

// waitMillis rounds timeout up to whole milliseconds.
func waitMillis(timeout time.Duration) int {
	if timeout < 0 {
		return -1
	}
	return int((timeout + time.Millisecond - 1) / time.Millisecond)
}
