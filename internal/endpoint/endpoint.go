package endpoint

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/net/ipv4"

	"github.com/postalsys/dgram/internal/address"
	"github.com/postalsys/dgram/internal/logging"
	"github.com/postalsys/dgram/internal/metrics"
	"github.com/postalsys/dgram/internal/poll"
	"github.com/postalsys/dgram/internal/subsystem"
)

const (
	// EthernetMTU is the classical Ethernet payload size.
	EthernetMTU = 1500

	udpHeaderLen = 8

	// MaxDatagramSize is the largest UDP payload that fits an Ethernet frame
	// without fragmentation, and the size of the asynchronous receive buffer.
	MaxDatagramSize = EthernetMTU - ipv4.HeaderLen - udpHeaderLen
)

// Mode selects the endpoint role.
type Mode int

const (
	// ModeClient connects the socket to a default destination.
	ModeClient Mode = iota
	// ModeServer binds the socket to a local address.
	ModeServer
)

// String returns a human-readable name for the mode.
func (m Mode) String() string {
	switch m {
	case ModeClient:
		return "client"
	case ModeServer:
		return "server"
	default:
		return "unknown"
	}
}

// ParseMode converts "client" or "server" to a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "client":
		return ModeClient, nil
	case "server":
		return ModeServer, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidMode, s)
	}
}

// Options configures an Endpoint. The zero value is usable.
type Options struct {
	// Logger receives socket failures and debug traces. Nil discards output.
	Logger *slog.Logger

	// Metrics records traffic and errors. Nil disables metrics.
	Metrics *metrics.Metrics

	// Subsystem is the network stack reference counter. Nil uses subsystem.Default().
	Subsystem *subsystem.Subsystem

	sys sysSocket
}

// Endpoint is one UDP socket in client or server mode.
type Endpoint struct {
	mu     sync.Mutex
	fd     uintptr
	mode   Mode
	addr   address.Address
	closed bool
	remove poll.RemoveFunc // set once by Register

	sys     sysSocket
	sub     *subsystem.Subsystem
	logger  *slog.Logger
	metrics *metrics.Metrics

	buf [MaxDatagramSize]byte
}

// Open creates an endpoint with default options.
// In server mode addr is the local address to bind (its IP may be
// address.Any). In client mode addr is the default destination.
func Open(mode Mode, addr address.Address) (*Endpoint, error) {
	return OpenWithOptions(mode, addr, Options{})
}

// OpenWithOptions creates an endpoint. On failure nothing is left open and
// no subsystem reference is held.
func OpenWithOptions(mode Mode, addr address.Address, opts Options) (*Endpoint, error) {
	if mode != ModeClient && mode != ModeServer {
		return nil, fmt.Errorf("%w: %d", ErrInvalidMode, mode)
	}

	if opts.Logger == nil {
		opts.Logger = logging.NopLogger()
	}
	if opts.Subsystem == nil {
		opts.Subsystem = subsystem.Default()
	}
	if opts.sys == nil {
		opts.sys = defaultSys
	}

	e := &Endpoint{
		mode:    mode,
		addr:    addr,
		sys:     opts.sys,
		sub:     opts.Subsystem,
		metrics: opts.Metrics,
		logger: opts.Logger.With(
			slog.String(logging.KeyComponent, "endpoint"),
			slog.String(logging.KeyMode, mode.String()),
		),
	}

	if err := e.sub.Acquire(); err != nil {
		return nil, e.openFailed("startup", err)
	}

	fd, err := e.sys.socket()
	if err != nil {
		e.releaseSubsystem()
		return nil, e.openFailed("socket", err)
	}

	switch mode {
	case ModeServer:
		err = e.sys.bind(fd, addr)
	case ModeClient:
		err = e.sys.connect(fd, addr)
	}
	if err != nil {
		op := "bind"
		if mode == ModeClient {
			op = "connect"
		}
		e.sys.close(fd)
		e.releaseSubsystem()
		return nil, e.openFailed(op, err)
	}

	e.fd = fd
	e.metrics.RecordOpen(mode.String())
	e.metrics.SetSubsystemReferences(e.sub.Count())

	e.logger.Debug("endpoint opened",
		slog.String(logging.KeyAddress, addr.String()),
		logging.FD(fd))

	return e, nil
}

func (e *Endpoint) openFailed(op string, err error) error {
	e.logger.Error(op+" failed",
		slog.String(logging.KeyAddress, e.addr.String()),
		logging.Err(err))
	e.metrics.RecordOpenError(op)
	return &OpError{Op: op, Addr: e.addr, Err: err}
}

func (e *Endpoint) releaseSubsystem() {
	if err := e.sub.Release(); err != nil {
		e.logger.Debug("subsystem release failed", logging.Err(err))
	}
	e.metrics.SetSubsystemReferences(e.sub.Count())
}

// FD returns the socket descriptor.
func (e *Endpoint) FD() uintptr {
	return e.fd
}

// Mode returns the endpoint role.
func (e *Endpoint) Mode() Mode {
	return e.mode
}

// Addr returns the address the endpoint was opened with: the bound address
// for a server, the default destination for a client.
func (e *Endpoint) Addr() address.Address {
	return e.addr
}

// LocalAddr returns the address the socket is bound to, including an
// ephemeral port chosen by the OS.
func (e *Endpoint) LocalAddr() (address.Address, error) {
	fd, err := e.descriptor()
	if err != nil {
		return address.Address{}, err
	}

	a, err := e.sys.localAddr(fd)
	if err != nil {
		return address.Address{}, &OpError{Op: "getsockname", Err: err}
	}
	return a, nil
}

func (e *Endpoint) descriptor() (uintptr, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return 0, ErrClosed
	}
	return e.fd, nil
}

func (e *Endpoint) debugEnabled() bool {
	return e.logger.Enabled(context.Background(), slog.LevelDebug)
}

// Send sends p to the given destination without blocking and returns the
// number of bytes the OS accepted.
//
// A clean return does not imply delivery. On a client endpoint an ICMP
// port unreachable for the default destination is reported by a later Send.
func (e *Endpoint) Send(p []byte, to address.Address) (int, error) {
	if !to.Valid() {
		return 0, fmt.Errorf("%w: %s", ErrInvalidDestination, to)
	}

	fd, err := e.descriptor()
	if err != nil {
		return 0, err
	}

	if e.debugEnabled() {
		e.logger.Debug("send",
			slog.Int(logging.KeyBytes, len(p)),
			slog.String(logging.KeyRemoteAddr, to.String()))
	}

	connected := e.mode == ModeClient && to == e.addr
	n, err := e.sys.sendto(fd, p, to, connected)
	if err != nil {
		e.logger.Error("sendto failed",
			slog.String(logging.KeyRemoteAddr, to.String()),
			logging.Err(err))
		e.metrics.RecordIOError("sendto")
		return 0, &OpError{Op: "sendto", Addr: to, Err: err}
	}

	e.metrics.RecordSend(n)
	return n, nil
}

// Receive waits up to timeout for one datagram and copies it into p.
// A zero timeout blocks until a datagram arrives.
//
// It returns ErrNoData, without logging, when the timeout elapses. A
// datagram larger than p is truncated to len(p).
func (e *Endpoint) Receive(p []byte, timeout time.Duration) (int, address.Address, error) {
	fd, err := e.descriptor()
	if err != nil {
		return 0, address.Address{}, err
	}
	return e.receive(fd, p, timeout, false)
}

func (e *Endpoint) receive(fd uintptr, p []byte, timeout time.Duration, nonblock bool) (int, address.Address, error) {
	var deadline time.Time

	if !nonblock {
		if timeout > 0 {
			deadline = time.Now().Add(timeout)
		}
		if err := e.setRecvTimeout(fd, timeout); err != nil {
			return 0, address.Address{}, err
		}
	}

	for {
		n, from, truncated, err := e.sys.recvfrom(fd, p, nonblock)
		if err == nil {
			e.received(n, from, truncated, nonblock)
			return n, from, nil
		}

		if e.sys.isInterrupted(err) {
			if deadline.IsZero() {
				continue
			}
			remaining := time.Until(deadline)
			if remaining <= 0 {
				e.metrics.RecordReceiveTimeout()
				return 0, address.Address{}, ErrNoData
			}
			if err := e.setRecvTimeout(fd, remaining); err != nil {
				return 0, address.Address{}, err
			}
			continue
		}

		if e.sys.isTimeout(err) {
			e.metrics.RecordReceiveTimeout()
			return 0, address.Address{}, ErrNoData
		}

		e.logger.Error("recvfrom failed", logging.Err(err))
		e.metrics.RecordIOError("recvfrom")
		return 0, address.Address{}, &OpError{Op: "recvfrom", Err: err}
	}
}

func (e *Endpoint) setRecvTimeout(fd uintptr, timeout time.Duration) error {
	if err := e.sys.setRecvTimeout(fd, timeout); err != nil {
		e.logger.Error("setsockopt SO_RCVTIMEO failed",
			slog.Duration(logging.KeyDuration, timeout),
			logging.Err(err))
		e.metrics.RecordIOError("setsockopt")
		return &OpError{Op: "setsockopt", Err: err}
	}
	return nil
}

func (e *Endpoint) received(n int, from address.Address, truncated, async bool) {
	e.metrics.RecordReceive(n)

	if truncated {
		e.metrics.RecordTruncated()
		level := slog.LevelDebug
		if async {
			level = slog.LevelWarn
		}
		e.logger.Log(context.Background(), level, "datagram truncated",
			slog.Int(logging.KeyBytes, n),
			slog.String(logging.KeyRemoteAddr, from.String()))
	}

	if e.debugEnabled() {
		e.logger.Debug("received",
			slog.Int(logging.KeyBytes, n),
			slog.String(logging.KeyRemoteAddr, from.String()))
	}
}

// Close removes the endpoint from its poller, if registered, and closes the
// socket. Closing an already closed endpoint is a no-op. Close never reports
// OS failures; they are logged at debug level.
func (e *Endpoint) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	remove := e.remove
	e.mu.Unlock()

	// Deregister first so the poller never dispatches to a released descriptor.
	if remove != nil {
		if err := remove(e.fd); err != nil {
			e.logger.Debug("poller remove failed", logging.Err(err))
		}
	}

	if err := e.sys.close(e.fd); err != nil {
		e.logger.Debug("close failed", logging.Err(err))
	}

	e.releaseSubsystem()
	e.metrics.RecordClose(e.mode.String())

	e.logger.Debug("endpoint closed", slog.String(logging.KeyAddress, e.addr.String()))
	return nil
}
