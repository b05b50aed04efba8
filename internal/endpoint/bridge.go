package endpoint

import (
	"github.com/postalsys/dgram/internal/address"
	"github.com/postalsys/dgram/internal/logging"
	"github.com/postalsys/dgram/internal/poll"
)

// ReadFunc receives one datagram delivered by the poller.
//
// payload aliases the endpoint's receive buffer and is only valid until the
// function returns. err is the receive outcome, ErrNoData on a spurious
// wakeup. A non-nil return value stops the poll loop.
type ReadFunc func(payload []byte, from address.Address, err error) error

// CloseFunc is called when the poller reports a hangup or error condition.
type CloseFunc func() error

// Callbacks connects an endpoint to a readiness poller.
type Callbacks struct {
	Read     ReadFunc          // required
	Close    CloseFunc         // optional
	Register poll.RegisterFunc // required
	Remove   poll.RemoveFunc   // required, called by Close
}

// Register hands the endpoint's descriptor to a poller. When it becomes
// readable one datagram of up to MaxDatagramSize bytes is received and passed
// to cb.Read; larger datagrams are truncated.
//
// An endpoint can be registered once. Close withdraws it through cb.Remove.
func (e *Endpoint) Register(cb Callbacks) error {
	if cb.Read == nil || cb.Register == nil || cb.Remove == nil {
		return ErrMissingCallback
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrClosed
	}
	if e.remove != nil {
		return ErrAlreadyRegistered
	}

	fd := e.fd
	read := cb.Read
	onClose := cb.Close

	err := cb.Register(fd, poll.Callbacks{
		Read: func() error {
			return e.onReadable(fd, read)
		},
		Close: func() error {
			if onClose == nil {
				return nil
			}
			return onClose()
		},
	})
	if err != nil {
		e.logger.Error("poller registration failed",
			logging.FD(fd),
			logging.Err(err))
		return &OpError{Op: "register", Addr: e.addr, Err: err}
	}

	e.remove = cb.Remove
	e.metrics.RecordRegister()

	e.logger.Debug("registered with poller", logging.FD(fd))
	return nil
}

func (e *Endpoint) onReadable(fd uintptr, read ReadFunc) error {
	n, from, err := e.receive(fd, e.buf[:], 0, true)
	return read(e.buf[:n], from, err)
}
