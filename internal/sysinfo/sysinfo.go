// Package sysinfo reports host details shown by the benchmark tools.
package sysinfo

import (
	"net"
	"time"

	"github.com/postalsys/dgram/internal/address"
)

// maxAddresses caps the number of interface addresses reported.
const maxAddresses = 10

var startTime = time.Now()

// LocalAddresses returns the non-loopback IPv4 interface addresses of the
// host combined with port. A server bound to the wildcard address is
// reachable on any of them.
func LocalAddresses(port uint16) []address.Address {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return nil
	}
	return filterIPv4(addrs, port)
}

func filterIPv4(addrs []net.Addr, port uint16) []address.Address {
	var out []address.Address

	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok || ipNet.IP.IsLoopback() {
			continue
		}

		ip4 := ipNet.IP.To4()
		if ip4 == nil {
			continue
		}
		out = append(out, address.FromBytes([4]byte(ip4), port))

		if len(out) == maxAddresses {
			break
		}
	}

	return out
}

// StartTime returns the process start time.
func StartTime() time.Time {
	return startTime
}

// UptimeSeconds returns the process uptime in seconds.
func UptimeSeconds() int64 {
	return int64(time.Since(startTime).Seconds())
}
