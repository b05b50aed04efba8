package endpoint

import (
	"time"

	"github.com/postalsys/dgram/internal/address"
)

// sysSocket is the OS socket layer used by an Endpoint.
type sysSocket interface {
	socket() (uintptr, error)
	bind(fd uintptr, a address.Address) error
	connect(fd uintptr, a address.Address) error

	// sendto sends to the connected default destination when connected is
	// true, otherwise to the given address.
	sendto(fd uintptr, p []byte, to address.Address, connected bool) (int, error)

	// setRecvTimeout installs SO_RCVTIMEO; zero blocks indefinitely.
	setRecvTimeout(fd uintptr, d time.Duration) error

	// recvfrom receives one datagram. truncated reports that it did not fit p.
	recvfrom(fd uintptr, p []byte, nonblock bool) (n int, from address.Address, truncated bool, err error)

	localAddr(fd uintptr) (address.Address, error)
	close(fd uintptr) error

	isTimeout(err error) bool
	isInterrupted(err error) bool
}
