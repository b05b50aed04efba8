// Package address parses and formats IPv4 "a.b.c.d:port" endpoint addresses.
//
// An Address keeps the IP as a 32-bit value in network byte order (the same
// value a sockaddr_in carries) and the port in host byte order. FormatIP and
// String return a new string on every call and are safe for concurrent use.
package address

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/bits"
	"net"
	"net/netip"
	"strconv"
	"strings"
)

// MaxTextLen is the length of the longest legal address text,
// "111.111.111.111:65535".
const MaxTextLen = len("111.111.111.111:65535")

// None is the INADDR_NONE sentinel (255.255.255.255). It never parses.
const None uint32 = 0xffffffff

// Any is the wildcard address (0.0.0.0), valid only for binding.
const Any uint32 = 0

// ErrInvalidAddress is returned for text that is not a usable a.b.c.d:port address.
var ErrInvalidAddress = errors.New("invalid address")

// Address is an IPv4 UDP endpoint address.
type Address struct {
	IP   uint32 // network byte order
	Port uint16 // host byte order
}

// Parse parses text of the form "a.b.c.d:port".
//
// No whitespace is allowed anywhere. The port must be a decimal number in
// [1, 65535] that consumes the rest of the string, and the IP must not be the
// 255.255.255.255 sentinel.
func Parse(s string) (Address, error) {
	if len(s) > MaxTextLen {
		return Address{}, fmt.Errorf("%w: %q is longer than %d characters", ErrInvalidAddress, s, MaxTextLen)
	}
	if strings.ContainsRune(s, ' ') {
		return Address{}, fmt.Errorf("%w: %q contains a space", ErrInvalidAddress, s)
	}

	host, port, ok := strings.Cut(s, ":")
	if !ok {
		return Address{}, fmt.Errorf("%w: %q has no port separator", ErrInvalidAddress, s)
	}

	ip, err := netip.ParseAddr(host)
	if err != nil || !ip.Is4() {
		return Address{}, fmt.Errorf("%w: %q is not a dotted-quad IPv4 address", ErrInvalidAddress, host)
	}

	a := FromBytes(ip.As4(), 0)
	if a.IP == None {
		return Address{}, fmt.Errorf("%w: %s is reserved", ErrInvalidAddress, host)
	}

	if port == "" || strings.IndexFunc(port, func(r rune) bool { return r < '0' || r > '9' }) >= 0 {
		return Address{}, fmt.Errorf("%w: port %q is not a decimal number", ErrInvalidAddress, port)
	}
	p, err := strconv.ParseUint(port, 10, 16)
	if err != nil {
		return Address{}, fmt.Errorf("%w: port %q out of range", ErrInvalidAddress, port)
	}
	if p == 0 {
		return Address{}, fmt.Errorf("%w: port must not be 0", ErrInvalidAddress)
	}

	a.Port = uint16(p)
	return a, nil
}

// MustParse is like Parse but panics on error. Intended for tests and constants.
func MustParse(s string) Address {
	a, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return a
}

// FromBytes builds an Address from the four dotted-quad octets.
func FromBytes(ip [4]byte, port uint16) Address {
	return Address{IP: binary.NativeEndian.Uint32(ip[:]), Port: port}
}

// FromAddrPort converts a netip.AddrPort. Only IPv4 (or IPv4-mapped) addresses are accepted.
func FromAddrPort(ap netip.AddrPort) (Address, error) {
	ip := ap.Addr().Unmap()
	if !ip.Is4() {
		return Address{}, fmt.Errorf("%w: %s is not IPv4", ErrInvalidAddress, ap.Addr())
	}
	return FromBytes(ip.As4(), ap.Port()), nil
}

// Bytes returns the four dotted-quad octets of the IP.
func (a Address) Bytes() [4]byte {
	var b [4]byte
	binary.NativeEndian.PutUint32(b[:], a.IP)
	return b
}

// AddrPort converts the address to a netip.AddrPort.
func (a Address) AddrPort() netip.AddrPort {
	return netip.AddrPortFrom(netip.AddrFrom4(a.Bytes()), a.Port)
}

// UDPAddr converts the address to a *net.UDPAddr.
func (a Address) UDPAddr() *net.UDPAddr {
	return net.UDPAddrFromAddrPort(a.AddrPort())
}

// IsZero reports whether both fields are unset.
func (a Address) IsZero() bool {
	return a.IP == 0 && a.Port == 0
}

// Valid reports whether the address can be used as a send destination.
func (a Address) Valid() bool {
	return a.IP != 0 && a.Port != 0
}

// String renders the address as "a.b.c.d:port".
func (a Address) String() string {
	return FormatIP(a.IP) + ":" + strconv.FormatUint(uint64(a.Port), 10)
}

// FormatIP renders a network byte order IPv4 value as a dotted quad.
func FormatIP(ip uint32) string {
	var b [4]byte
	binary.NativeEndian.PutUint32(b[:], ip)
	return netip.AddrFrom4(b).String()
}

var bigEndian = binary.NativeEndian.Uint16([]byte{0x12, 0x34}) == 0x1234

// HostToNetwork32 converts a host byte order value to network byte order.
func HostToNetwork32(v uint32) uint32 {
	if bigEndian {
		return v
	}
	return bits.ReverseBytes32(v)
}

// NetworkToHost32 converts a network byte order value to host byte order.
func NetworkToHost32(v uint32) uint32 {
	return HostToNetwork32(v)
}
