// Package endpoint provides a UDP datagram endpoint over a raw IPv4 socket.
//
// An Endpoint owns one socket descriptor, opened either as a server (bound to
// a local address) or as a client (connected to a default destination). It
// can be used synchronously with Send and Receive, or asynchronously by
// handing its descriptor to a readiness poller with Register.
//
// # Synchronous Use
//
//	ep, err := endpoint.Open(endpoint.ModeServer, address.MustParse("0.0.0.0:5000"))
//	if err != nil {
//		// handle error
//	}
//	defer ep.Close()
//
//	buf := make([]byte, endpoint.MaxDatagramSize)
//	n, from, err := ep.Receive(buf, time.Second)
//	if errors.Is(err, endpoint.ErrNoData) {
//		// timed out
//	}
//
// Receive blocks the calling goroutine for at most the given timeout; a zero
// timeout blocks until a datagram arrives. Send never blocks: it is a
// non-blocking sendto, and a destination-unreachable condition reported by
// the OS surfaces as an error on a later Send, not the one that triggered it.
//
// # Asynchronous Use
//
// Register hands the descriptor to a poller (see package poll). Each time the
// poller reports the descriptor readable, the endpoint performs exactly one
// non-blocking receive into its internal MaxDatagramSize buffer and calls the
// Read callback with the payload, the sender and the receive error, if any.
// Errors are forwarded, never swallowed: the callback decides whether to
// close the endpoint. Datagrams larger than MaxDatagramSize are truncated.
//
// The payload slice aliases the internal buffer and is only valid until the
// callback returns. This relies on the poller dispatching callbacks from a
// single goroutine, which package poll guarantees.
//
// Close removes the descriptor from the poller before closing it, so the
// poller never dispatches to a released descriptor.
package endpoint
