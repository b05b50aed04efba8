//go:build unix

package poll

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/postalsys/dgram/internal/recovery"
)

// socketPair returns a connected stream socket pair closed at test cleanup.
func socketPair(t *testing.T) (int, int) {
	t.Helper()

	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatalf("Socketpair() error: %v", err)
	}
	t.Cleanup(func() {
		unix.Close(fds[0])
		unix.Close(fds[1])
	})
	return fds[0], fds[1]
}

func newPoller(t *testing.T) *Poller {
	t.Helper()

	p, err := New(nil)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	t.Cleanup(func() { p.Close() })
	return p
}

func TestPoller_ReadDispatch(t *testing.T) {
	p := newPoller(t)
	a, b := socketPair(t)

	reads := 0
	err := p.Register(uintptr(a), Callbacks{
		Read: func() error {
			reads++
			buf := make([]byte, 16)
			unix.Read(a, buf)
			return nil
		},
	})
	if err != nil {
		t.Fatalf("Register() error: %v", err)
	}

	if _, err := unix.Write(b, []byte("x")); err != nil {
		t.Fatalf("Write() error: %v", err)
	}

	if err := p.Poll(time.Second); err != nil {
		t.Fatalf("Poll() error: %v", err)
	}
	if reads != 1 {
		t.Errorf("reads = %d, want 1", reads)
	}

	// Drained, so nothing more to dispatch
	if err := p.Poll(20 * time.Millisecond); err != nil {
		t.Fatalf("Poll() error: %v", err)
	}
	if reads != 1 {
		t.Errorf("reads after drain = %d, want 1", reads)
	}
}

func TestPoller_RegisterValidation(t *testing.T) {
	p := newPoller(t)
	a, _ := socketPair(t)

	if err := p.Register(uintptr(a), Callbacks{}); !errors.Is(err, ErrNoCallbacks) {
		t.Errorf("Register(no callbacks) = %v, want ErrNoCallbacks", err)
	}

	cb := Callbacks{Read: func() error { return nil }}
	if err := p.Register(uintptr(a), cb); err != nil {
		t.Fatalf("Register() error: %v", err)
	}
	if err := p.Register(uintptr(a), cb); !errors.Is(err, ErrAlreadyRegistered) {
		t.Errorf("second Register() = %v, want ErrAlreadyRegistered", err)
	}
	if p.Len() != 1 {
		t.Errorf("Len() = %d, want 1", p.Len())
	}

	if err := p.Remove(uintptr(a)); err != nil {
		t.Fatalf("Remove() error: %v", err)
	}
	if err := p.Remove(uintptr(a)); !errors.Is(err, ErrNotRegistered) {
		t.Errorf("second Remove() = %v, want ErrNotRegistered", err)
	}
	if p.Len() != 0 {
		t.Errorf("Len() = %d, want 0", p.Len())
	}
}

func TestPoller_CallbackErrorStopsRound(t *testing.T) {
	p := newPoller(t)
	a, b := socketPair(t)

	wantErr := errors.New("handler failed")
	p.Register(uintptr(a), Callbacks{
		Read: func() error { return wantErr },
	})
	unix.Write(b, []byte("x"))

	if err := p.Poll(time.Second); !errors.Is(err, wantErr) {
		t.Errorf("Poll() = %v, want %v", err, wantErr)
	}
}

func TestPoller_CallbackPanicBecomesError(t *testing.T) {
	p := newPoller(t)
	a, b := socketPair(t)

	p.Register(uintptr(a), Callbacks{
		Read: func() error { panic("boom") },
	})
	unix.Write(b, []byte("x"))

	var pe *recovery.PanicError
	if err := p.Poll(time.Second); !errors.As(err, &pe) {
		t.Errorf("Poll() = %v, want *recovery.PanicError", err)
	}
}

func TestPoller_RunStops(t *testing.T) {
	p := newPoller(t)
	a, b := socketPair(t)

	p.Register(uintptr(a), Callbacks{
		Read: func() error { return ErrStop },
	})
	unix.Write(b, []byte("x"))

	done := make(chan error, 1)
	go func() { done <- p.Run(context.Background()) }()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not stop on ErrStop")
	}
}

func TestPoller_RunContextCancel(t *testing.T) {
	p := newPoller(t)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	if err := p.Run(ctx); err != nil {
		t.Errorf("Run() = %v, want nil", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Run() took %v after cancel", elapsed)
	}
}

func TestPoller_HangupInvokesClose(t *testing.T) {
	p := newPoller(t)
	a, b := socketPair(t)

	closed := 0
	p.Register(uintptr(a), Callbacks{
		Read:  func() error { return nil },
		Close: func() error { closed++; return nil },
	})

	unix.Close(b)

	if err := p.Poll(time.Second); err != nil {
		t.Fatalf("Poll() error: %v", err)
	}
	if closed != 1 {
		t.Errorf("close callbacks = %d, want 1", closed)
	}
	if p.Len() != 0 {
		t.Errorf("Len() = %d, want 0 after hangup", p.Len())
	}
}

func TestPoller_RemoveInsideCallback(t *testing.T) {
	p := newPoller(t)
	a, b := socketPair(t)

	p.Register(uintptr(a), Callbacks{
		Read: func() error { return p.Remove(uintptr(a)) },
	})
	unix.Write(b, []byte("x"))

	if err := p.Poll(time.Second); err != nil {
		t.Fatalf("Poll() error: %v", err)
	}
	if p.Len() != 0 {
		t.Errorf("Len() = %d, want 0", p.Len())
	}

	// Data is still pending but the descriptor is no longer watched
	if err := p.Poll(20 * time.Millisecond); err != nil {
		t.Fatalf("Poll() error: %v", err)
	}
}

func TestPoller_Closed(t *testing.T) {
	p, err := New(nil)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	p.Close()

	if err := p.Register(3, Callbacks{Read: func() error { return nil }}); !errors.Is(err, ErrClosed) {
		t.Errorf("Register() = %v, want ErrClosed", err)
	}
	if err := p.Poll(0); !errors.Is(err, ErrClosed) {
		t.Errorf("Poll() = %v, want ErrClosed", err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("second Close() = %v", err)
	}
}

func TestWaitMillis(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want int
	}{
		{-1, -1},
		{0, 0},
		{time.Microsecond, 1},
		{time.Millisecond, 1},
		{10*time.Millisecond + 1, 11},
	}

	for _, tt := range tests {
		if got := waitMillis(tt.in); got != tt.want {
			t.Errorf("waitMillis(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
