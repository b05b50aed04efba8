// Package poll provides a single-threaded readiness poller for file descriptors.
//
// A Poller watches registered descriptors and invokes per-descriptor callbacks
// from the goroutine that calls Poll or Run:
//
//	p, err := poll.New(logger)
//	if err != nil {
//		// handle error
//	}
//	defer p.Close()
//
//	p.Register(fd, poll.Callbacks{
//		Read:  func() error { /* descriptor is readable */ return nil },
//		Close: func() error { /* descriptor hung up or failed */ return nil },
//	})
//
//	err = p.Run(ctx)
//
// The backend is epoll on Linux and poll(2) on other unix systems; New fails
// with errors.ErrUnsupported on Windows. Both backends are
// level-triggered: a Read callback that leaves data pending is invoked again
// on the next round.
//
// # Callback Contract
//
// Callbacks never run concurrently with each other. A callback returning a
// non-nil error stops the current Poll round and the error is returned to the
// caller; ErrStop ends Run cleanly. A hangup (or an error condition on a
// descriptor without a Read callback) removes the descriptor and invokes Close.
// An error condition on a descriptor with a Read callback is delivered as a
// read so the pending socket error can be consumed by the reader.
//
// Always Remove a descriptor before closing it, otherwise a recycled
// descriptor number can receive stale events.
package poll
