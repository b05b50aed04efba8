package poll

import "errors"

var (
	// ErrStop may be returned by a callback to end Run without an error.
	ErrStop = errors.New("poll: stop requested")

	// ErrClosed is returned when using a closed poller.
	ErrClosed = errors.New("poll: poller closed")

	// ErrAlreadyRegistered is returned when a descriptor is registered twice.
	ErrAlreadyRegistered = errors.New("poll: descriptor already registered")

	// ErrNotRegistered is returned when removing an unknown descriptor.
	ErrNotRegistered = errors.New("poll: descriptor not registered")

	// ErrNoCallbacks is returned when registering without any callback.
	ErrNoCallbacks = errors.New("poll: no callbacks")
)

// Callbacks are invoked when a registered descriptor changes state.
// Nil callbacks are not watched.
type Callbacks struct {
	Read  func() error
	Write func() error
	Close func() error
}

// RegisterFunc hands a descriptor and its callbacks to a poller.
type RegisterFunc func(fd uintptr, cb Callbacks) error

// RemoveFunc withdraws a descriptor from a poller.
type RemoveFunc func(fd uintptr) error
