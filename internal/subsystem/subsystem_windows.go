//go:build windows

package subsystem

import "golang.org/x/sys/windows"

// winsockVersion requests Winsock 2.2.
const winsockVersion = 0x0202

func platformStartup() error {
	var data windows.WSAData
	return windows.WSAStartup(winsockVersion, &data)
}

func platformTeardown() error {
	return windows.WSACleanup()
}
