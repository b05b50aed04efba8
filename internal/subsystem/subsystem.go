// Package subsystem reference-counts the platform network stack.
//
// Some platforms (Windows) require an explicit startup call before any socket
// can be created and a matching teardown once the last socket is gone. The
// Subsystem runs startup on the 0 -> 1 transition of active endpoints and
// teardown on the 1 -> 0 transition. On platforms that need neither, the
// hooks are nil and only the count is kept.
//
// # Thread Safety
//
// All methods are safe for concurrent use.
package subsystem

import (
	"fmt"
	"sync"
)

// Subsystem is a reference-counted handle on the platform network stack.
type Subsystem struct {
	mu       sync.Mutex
	count    int
	startup  func() error
	teardown func() error
}

var (
	defaultSubsystem *Subsystem
	defaultOnce      sync.Once
)

// Default returns the process-wide subsystem using the platform hooks.
func Default() *Subsystem {
	defaultOnce.Do(func() {
		defaultSubsystem = New(platformStartup, platformTeardown)
	})
	return defaultSubsystem
}

// New creates a Subsystem with the given hooks. Either hook may be nil.
func New(startup, teardown func() error) *Subsystem {
	return &Subsystem{
		startup:  startup,
		teardown: teardown,
	}
}

// Acquire takes a reference, starting the network stack if this is the first one.
// On startup failure no reference is taken.
func (s *Subsystem) Acquire() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.count == 0 && s.startup != nil {
		if err := s.startup(); err != nil {
			return fmt.Errorf("network subsystem startup: %w", err)
		}
	}
	s.count++
	return nil
}

// Release drops a reference, tearing the network stack down when the last one
// goes away. Releasing with no references held is a no-op.
func (s *Subsystem) Release() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.count == 0 {
		return nil
	}

	s.count--
	if s.count == 0 && s.teardown != nil {
		if err := s.teardown(); err != nil {
			return fmt.Errorf("network subsystem teardown: %w", err)
		}
	}
	return nil
}

// Count returns the number of references held.
func (s *Subsystem) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.count
}

// Active reports whether the network stack is currently started.
func (s *Subsystem) Active() bool {
	return s.Count() > 0
}
