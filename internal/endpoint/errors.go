package endpoint

import (
	"errors"
	"fmt"

	"github.com/postalsys/dgram/internal/address"
)

var (
	// ErrNoData is returned when a receive times out or would block.
	ErrNoData = errors.New("no data available")

	// ErrInvalidDestination is returned by Send for a zero IP or port.
	ErrInvalidDestination = errors.New("destination ip and port must not be 0")

	// ErrInvalidMode is returned by Open for an unknown mode.
	ErrInvalidMode = errors.New("invalid endpoint mode")

	// ErrMissingCallback is returned by Register when a required callback is nil.
	ErrMissingCallback = errors.New("missing required callback")

	// ErrAlreadyRegistered is returned by a second Register call.
	ErrAlreadyRegistered = errors.New("endpoint already registered")

	// ErrClosed is returned when using a closed endpoint.
	ErrClosed = errors.New("endpoint closed")
)

// OpError describes a failed socket operation.
type OpError struct {
	Op   string          // "socket", "bind", "connect", "sendto", "setsockopt", "recvfrom"
	Addr address.Address // address involved, if any
	Err  error
}

func (e *OpError) Error() string {
	if e.Addr.IsZero() {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Addr, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}
