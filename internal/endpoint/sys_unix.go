//go:build unix

package endpoint

import (
	"errors"
	"fmt"
	"time"

	"golang.org/x/sys/unix"

	"github.com/postalsys/dgram/internal/address"
)

type unixSocket struct{}

var defaultSys sysSocket = unixSocket{}

func sockaddr(a address.Address) *unix.SockaddrInet4 {
	return &unix.SockaddrInet4{Port: int(a.Port), Addr: a.Bytes()}
}

func fromSockaddr(sa unix.Sockaddr) (address.Address, error) {
	sa4, ok := sa.(*unix.SockaddrInet4)
	if !ok {
		return address.Address{}, fmt.Errorf("unexpected socket address %T", sa)
	}
	return address.FromBytes(sa4.Addr, uint16(sa4.Port)), nil
}

func (unixSocket) socket() (uintptr, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_DGRAM, unix.IPPROTO_UDP)
	if err != nil {
		return 0, err
	}
	unix.CloseOnExec(fd)
	return uintptr(fd), nil
}

func (unixSocket) bind(fd uintptr, a address.Address) error {
	return unix.Bind(int(fd), sockaddr(a))
}

func (unixSocket) connect(fd uintptr, a address.Address) error {
	return unix.Connect(int(fd), sockaddr(a))
}

func (unixSocket) sendto(fd uintptr, p []byte, to address.Address, connected bool) (int, error) {
	var sa unix.Sockaddr
	if !connected {
		sa = sockaddr(to)
	}
	return unix.SendmsgN(int(fd), p, nil, sa, unix.MSG_DONTWAIT)
}

func (unixSocket) setRecvTimeout(fd uintptr, d time.Duration) error {
	// A zero timeval means "no timeout", so never round a positive duration down to it.
	if d > 0 && d < time.Microsecond {
		d = time.Microsecond
	}
	tv := unix.NsecToTimeval(d.Nanoseconds())
	return unix.SetsockoptTimeval(int(fd), unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv)
}

func (unixSocket) recvfrom(fd uintptr, p []byte, nonblock bool) (int, address.Address, bool, error) {
	flags := 0
	if nonblock {
		flags = unix.MSG_DONTWAIT
	}

	n, _, recvflags, sa, err := unix.Recvmsg(int(fd), p, nil, flags)
	if err != nil {
		return 0, address.Address{}, false, err
	}

	from, err := fromSockaddr(sa)
	if err != nil {
		return 0, address.Address{}, false, err
	}
	return n, from, recvflags&unix.MSG_TRUNC != 0, nil
}

func (unixSocket) localAddr(fd uintptr) (address.Address, error) {
	sa, err := unix.Getsockname(int(fd))
	if err != nil {
		return address.Address{}, err
	}
	return fromSockaddr(sa)
}

func (unixSocket) close(fd uintptr) error {
	return unix.Close(int(fd))
}

func (unixSocket) isTimeout(err error) bool {
	return errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) || errors.Is(err, unix.ETIMEDOUT)
}

func (unixSocket) isInterrupted(err error) bool {
	return errors.Is(err, unix.EINTR)
}
