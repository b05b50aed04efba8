//go:build !windows

package subsystem

// No explicit network stack lifecycle outside Windows.
var (
	platformStartup  func() error
	platformTeardown func() error
)
