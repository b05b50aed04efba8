//go:build windows

package endpoint

import (
	"errors"
	"fmt"
	"syscall"
	"time"

	"golang.org/x/sys/windows"

	"github.com/postalsys/dgram/internal/address"
)

const (
	soRcvTimeo = 0x1006

	wsaEINTR       = syscall.Errno(10004)
	wsaEWOULDBLOCK = syscall.Errno(10035)
	wsaEMSGSIZE    = syscall.Errno(10040)
	wsaECONNRESET  = syscall.Errno(10054)
	wsaETIMEDOUT   = syscall.Errno(10060)
)

type winSocket struct{}

var defaultSys sysSocket = winSocket{}

func sockaddr(a address.Address) *windows.SockaddrInet4 {
	return &windows.SockaddrInet4{Port: int(a.Port), Addr: a.Bytes()}
}

func fromSockaddr(sa windows.Sockaddr) (address.Address, error) {
	sa4, ok := sa.(*windows.SockaddrInet4)
	if !ok {
		return address.Address{}, fmt.Errorf("unexpected socket address %T", sa)
	}
	return address.FromBytes(sa4.Addr, uint16(sa4.Port)), nil
}

func (winSocket) socket() (uintptr, error) {
	h, err := windows.Socket(windows.AF_INET, windows.SOCK_DGRAM, windows.IPPROTO_UDP)
	if err != nil {
		return 0, err
	}
	return uintptr(h), nil
}

func (winSocket) bind(fd uintptr, a address.Address) error {
	return windows.Bind(windows.Handle(fd), sockaddr(a))
}

func (winSocket) connect(fd uintptr, a address.Address) error {
	return windows.Connect(windows.Handle(fd), sockaddr(a))
}

// sendto always names the destination; Winsock ignores it on a connected socket.
func (winSocket) sendto(fd uintptr, p []byte, to address.Address, _ bool) (int, error) {
	if err := windows.Sendto(windows.Handle(fd), p, 0, sockaddr(to)); err != nil {
		return 0, err
	}
	return len(p), nil
}

// setRecvTimeout takes whole milliseconds, rounded up so a positive duration never means "forever".
func (winSocket) setRecvTimeout(fd uintptr, d time.Duration) error {
	ms := int((d + time.Millisecond - 1) / time.Millisecond)
	return windows.SetsockoptInt(windows.Handle(fd), windows.SOL_SOCKET, soRcvTimeo, ms)
}

func (s winSocket) recvfrom(fd uintptr, p []byte, nonblock bool) (int, address.Address, bool, error) {
	// Winsock has no MSG_DONTWAIT; the shortest receive timeout stands in for it.
	if nonblock {
		if err := s.setRecvTimeout(fd, time.Millisecond); err != nil {
			return 0, address.Address{}, false, err
		}
	}

	n, sa, err := windows.Recvfrom(windows.Handle(fd), p, 0)
	if err != nil {
		if errors.Is(err, wsaEMSGSIZE) {
			// The payload was filled but the sender is not reported.
			return len(p), address.Address{}, true, nil
		}
		return 0, address.Address{}, false, err
	}

	from, err := fromSockaddr(sa)
	if err != nil {
		return 0, address.Address{}, false, err
	}
	return n, from, false, nil
}

func (winSocket) localAddr(fd uintptr) (address.Address, error) {
	sa, err := windows.Getsockname(windows.Handle(fd))
	if err != nil {
		return address.Address{}, err
	}
	return fromSockaddr(sa)
}

func (winSocket) close(fd uintptr) error {
	return windows.Closesocket(windows.Handle(fd))
}

// isTimeout also covers WSAECONNRESET, which Winsock reports on a UDP socket
// after an ICMP port unreachable.
func (winSocket) isTimeout(err error) bool {
	return errors.Is(err, wsaETIMEDOUT) || errors.Is(err, wsaEWOULDBLOCK) || errors.Is(err, wsaECONNRESET)
}

func (winSocket) isInterrupted(err error) bool {
	return errors.Is(err, wsaEINTR)
}
