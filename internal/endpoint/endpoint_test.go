package endpoint

import (
	"bytes"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/postalsys/dgram/internal/address"
	"github.com/postalsys/dgram/internal/logging"
	"github.com/postalsys/dgram/internal/metrics"
	"github.com/postalsys/dgram/internal/subsystem"
)

type harness struct {
	sys      *fakeSys
	sub      *subsystem.Subsystem
	logs     *bytes.Buffer
	metrics  *metrics.Metrics
	startups int
	teardown int
}

func newHarness() *harness {
	h := &harness{
		sys:     &fakeSys{},
		logs:    &bytes.Buffer{},
		metrics: metrics.NewMetricsWithRegistry(prometheus.NewRegistry()),
	}
	h.sub = subsystem.New(
		func() error { h.startups++; return nil },
		func() error { h.teardown++; return nil },
	)
	return h
}

func (h *harness) options() Options {
	return Options{
		Logger:    logging.NewLoggerWithWriter("debug", "text", h.logs),
		Metrics:   h.metrics,
		Subsystem: h.sub,
		sys:       h.sys,
	}
}

func (h *harness) open(t *testing.T, mode Mode, addr string) *Endpoint {
	t.Helper()

	e, err := OpenWithOptions(mode, address.MustParse(addr), h.options())
	if err != nil {
		t.Fatalf("OpenWithOptions failed: %v", err)
	}
	return e
}

func (h *harness) errorLogged() bool {
	return strings.Contains(h.logs.String(), "level=ERROR")
}

func TestMaxDatagramSize(t *testing.T) {
	if MaxDatagramSize != 1472 {
		t.Errorf("MaxDatagramSize = %d, want 1472", MaxDatagramSize)
	}
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"client", ModeClient, false},
		{"server", ModeServer, false},
		{"peer", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		got, err := ParseMode(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseMode(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if err == nil && got != tt.want {
			t.Errorf("ParseMode(%q) = %v, want %v", tt.in, got, tt.want)
		}
		if err != nil && !errors.Is(err, ErrInvalidMode) {
			t.Errorf("ParseMode(%q) error = %v, want ErrInvalidMode", tt.in, err)
		}
	}

	if Mode(7).String() != "unknown" {
		t.Errorf("Mode(7).String() = %q", Mode(7).String())
	}
}

func TestOpen_InvalidMode(t *testing.T) {
	h := newHarness()

	_, err := OpenWithOptions(Mode(9), address.MustParse("127.0.0.1:5000"), h.options())
	if !errors.Is(err, ErrInvalidMode) {
		t.Fatalf("error = %v, want ErrInvalidMode", err)
	}
	if len(h.sys.callLog()) != 0 {
		t.Errorf("unexpected syscalls: %v", h.sys.callLog())
	}
	if h.sub.Count() != 0 {
		t.Errorf("subsystem count = %d, want 0", h.sub.Count())
	}
}

func TestOpen_Modes(t *testing.T) {
	tests := []struct {
		mode  Mode
		calls []string
	}{
		{ModeServer, []string{"socket", "bind"}},
		{ModeClient, []string{"socket", "connect"}},
	}

	for _, tt := range tests {
		t.Run(tt.mode.String(), func(t *testing.T) {
			h := newHarness()
			e := h.open(t, tt.mode, "127.0.0.1:5000")

			if got := h.sys.callLog(); !reflect.DeepEqual(got, tt.calls) {
				t.Errorf("calls = %v, want %v", got, tt.calls)
			}
			if e.Mode() != tt.mode {
				t.Errorf("Mode() = %v, want %v", e.Mode(), tt.mode)
			}
			if e.FD() != 42 {
				t.Errorf("FD() = %d, want 42", e.FD())
			}
			if h.sub.Count() != 1 || h.startups != 1 {
				t.Errorf("subsystem count = %d, startups = %d", h.sub.Count(), h.startups)
			}
			if got := testutil.ToFloat64(h.metrics.EndpointsOpen.WithLabelValues(tt.mode.String())); got != 1 {
				t.Errorf("open gauge = %v, want 1", got)
			}
		})
	}
}

func TestOpen_Failures(t *testing.T) {
	tests := []struct {
		name   string
		mode   Mode
		setup  func(*fakeSys)
		op     string
		closed bool
	}{
		{"socket", ModeServer, func(f *fakeSys) { f.socketErr = errFake }, "socket", false},
		{"bind", ModeServer, func(f *fakeSys) { f.bindErr = errFake }, "bind", true},
		{"connect", ModeClient, func(f *fakeSys) { f.connectErr = errFake }, "connect", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness()
			tt.setup(h.sys)

			e, err := OpenWithOptions(tt.mode, address.MustParse("127.0.0.1:5000"), h.options())
			if e != nil {
				t.Fatal("expected nil endpoint")
			}

			var opErr *OpError
			if !errors.As(err, &opErr) {
				t.Fatalf("error = %v, want *OpError", err)
			}
			if opErr.Op != tt.op {
				t.Errorf("Op = %q, want %q", opErr.Op, tt.op)
			}
			if !errors.Is(err, errFake) {
				t.Errorf("error does not wrap the OS error: %v", err)
			}

			calls := h.sys.callLog()
			if closed := calls[len(calls)-1] == "close"; closed != tt.closed {
				t.Errorf("calls = %v, close expected = %v", calls, tt.closed)
			}
			if h.sub.Count() != 0 {
				t.Errorf("subsystem count = %d, want 0", h.sub.Count())
			}
			if h.startups != h.teardown {
				t.Errorf("startups = %d, teardowns = %d", h.startups, h.teardown)
			}
			if !h.errorLogged() {
				t.Error("expected an error log")
			}
			if got := testutil.ToFloat64(h.metrics.OpenErrors.WithLabelValues(tt.op)); got != 1 {
				t.Errorf("open errors[%s] = %v, want 1", tt.op, got)
			}
		})
	}
}

func TestOpen_StartupFailure(t *testing.T) {
	h := newHarness()
	h.sub = subsystem.New(func() error { return errFake }, nil)

	_, err := OpenWithOptions(ModeServer, address.MustParse("127.0.0.1:5000"), h.options())
	if !errors.Is(err, errFake) {
		t.Fatalf("error = %v, want errFake", err)
	}
	if len(h.sys.callLog()) != 0 {
		t.Errorf("socket created after failed startup: %v", h.sys.callLog())
	}
	if h.sub.Count() != 0 {
		t.Errorf("subsystem count = %d, want 0", h.sub.Count())
	}
}

func TestSend_InvalidDestination(t *testing.T) {
	tests := []struct {
		name string
		to   address.Address
	}{
		{"zero", address.Address{}},
		{"zero ip", address.Address{IP: 0, Port: 5000}},
		{"zero port", address.Address{IP: address.MustParse("127.0.0.1:1").IP}},
	}

	h := newHarness()
	e := h.open(t, ModeServer, "0.0.0.0:5000")
	defer e.Close()
	before := len(h.sys.callLog())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := e.Send([]byte("x"), tt.to)
			if !errors.Is(err, ErrInvalidDestination) {
				t.Errorf("error = %v, want ErrInvalidDestination", err)
			}
			if n != 0 {
				t.Errorf("n = %d, want 0", n)
			}
		})
	}

	if after := len(h.sys.callLog()); after != before {
		t.Errorf("invalid sends reached the OS: %v", h.sys.callLog()[before:])
	}
}

func TestSend_Destination(t *testing.T) {
	server := address.MustParse("127.0.0.1:5000")
	other := address.MustParse("127.0.0.1:6000")

	tests := []struct {
		name      string
		mode      Mode
		to        address.Address
		connected bool
	}{
		{"client default destination", ModeClient, server, true},
		{"client other destination", ModeClient, other, false},
		{"server reply", ModeServer, other, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness()
			e := h.open(t, tt.mode, server.String())
			defer e.Close()

			n, err := e.Send([]byte("hello"), tt.to)
			if err != nil {
				t.Fatalf("Send failed: %v", err)
			}
			if n != 5 {
				t.Errorf("n = %d, want 5", n)
			}
			if h.sys.sentTo[0] != tt.to || h.sys.conn[0] != tt.connected {
				t.Errorf("sent to %v connected=%v, want %v connected=%v",
					h.sys.sentTo[0], h.sys.conn[0], tt.to, tt.connected)
			}
			if got := testutil.ToFloat64(h.metrics.BytesSent); got != 5 {
				t.Errorf("BytesSent = %v, want 5", got)
			}
		})
	}
}

func TestSend_EmptyPayload(t *testing.T) {
	h := newHarness()
	e := h.open(t, ModeClient, "127.0.0.1:5000")
	defer e.Close()

	n, err := e.Send(nil, e.Addr())
	if err != nil || n != 0 {
		t.Errorf("Send(nil) = %d, %v; want 0, nil", n, err)
	}
}

func TestSend_Failure(t *testing.T) {
	h := newHarness()
	e := h.open(t, ModeClient, "127.0.0.1:5000")
	defer e.Close()
	h.sys.sendErr = errFake

	_, err := e.Send([]byte("x"), e.Addr())

	var opErr *OpError
	if !errors.As(err, &opErr) || opErr.Op != "sendto" {
		t.Fatalf("error = %v, want sendto *OpError", err)
	}
	if !errors.Is(err, errFake) {
		t.Errorf("error does not wrap errFake: %v", err)
	}
	if !h.errorLogged() {
		t.Error("expected an error log")
	}
}

func TestReceive_Datagram(t *testing.T) {
	h := newHarness()
	e := h.open(t, ModeServer, "0.0.0.0:5000")
	defer e.Close()

	peer := address.MustParse("10.0.0.2:40000")
	h.sys.queue = []fakeDatagram{{payload: []byte("ping"), from: peer}}

	buf := make([]byte, 64)
	n, from, err := e.Receive(buf, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("Receive failed: %v", err)
	}
	if string(buf[:n]) != "ping" || from != peer {
		t.Errorf("got %q from %v", buf[:n], from)
	}
	if h.sys.timeouts[0] != 10*time.Millisecond {
		t.Errorf("timeout = %v, want 10ms", h.sys.timeouts[0])
	}
}

func TestReceive_Timeout(t *testing.T) {
	h := newHarness()
	e := h.open(t, ModeServer, "0.0.0.0:5000")
	defer e.Close()

	n, from, err := e.Receive(make([]byte, 16), time.Millisecond)
	if !errors.Is(err, ErrNoData) {
		t.Fatalf("error = %v, want ErrNoData", err)
	}
	if n != 0 || !from.IsZero() {
		t.Errorf("got n=%d from=%v on timeout", n, from)
	}
	if h.errorLogged() {
		t.Errorf("timeout was logged as an error:\n%s", h.logs.String())
	}
	if got := testutil.ToFloat64(h.metrics.ReceiveTimeouts); got != 1 {
		t.Errorf("ReceiveTimeouts = %v, want 1", got)
	}
}

func TestReceive_Truncated(t *testing.T) {
	h := newHarness()
	e := h.open(t, ModeServer, "0.0.0.0:5000")
	defer e.Close()

	h.sys.queue = []fakeDatagram{{payload: []byte("0123456789"), from: address.MustParse("10.0.0.2:1")}}

	buf := make([]byte, 4)
	n, _, err := e.Receive(buf, 0)
	if err != nil {
		t.Fatalf("Receive failed: %v", err)
	}
	if n != 4 || string(buf) != "0123" {
		t.Errorf("got %d bytes %q, want 4 bytes 0123", n, buf)
	}
	if got := testutil.ToFloat64(h.metrics.Truncated); got != 1 {
		t.Errorf("Truncated = %v, want 1", got)
	}
}

func TestReceive_InterruptedRetries(t *testing.T) {
	h := newHarness()
	e := h.open(t, ModeServer, "0.0.0.0:5000")
	defer e.Close()

	peer := address.MustParse("10.0.0.2:1")
	h.sys.queue = []fakeDatagram{
		{err: errFakeInterrupt},
		{payload: []byte("ok"), from: peer},
	}

	buf := make([]byte, 8)
	n, from, err := e.Receive(buf, time.Second)
	if err != nil {
		t.Fatalf("Receive failed: %v", err)
	}
	if string(buf[:n]) != "ok" || from != peer {
		t.Errorf("got %q from %v", buf[:n], from)
	}

	// The retry re-arms the socket with what is left of the timeout.
	if len(h.sys.timeouts) != 2 {
		t.Fatalf("timeouts = %v, want two entries", h.sys.timeouts)
	}
	if h.sys.timeouts[1] <= 0 || h.sys.timeouts[1] > time.Second {
		t.Errorf("remaining timeout = %v, want (0, 1s]", h.sys.timeouts[1])
	}
}

func TestReceive_Failures(t *testing.T) {
	t.Run("setsockopt", func(t *testing.T) {
		h := newHarness()
		e := h.open(t, ModeServer, "0.0.0.0:5000")
		defer e.Close()
		h.sys.timeoutErr = errFake

		_, _, err := e.Receive(make([]byte, 8), time.Second)
		var opErr *OpError
		if !errors.As(err, &opErr) || opErr.Op != "setsockopt" {
			t.Fatalf("error = %v, want setsockopt *OpError", err)
		}
		if calls := h.sys.callLog(); calls[len(calls)-1] == "recvfrom" {
			t.Error("recvfrom called after setsockopt failure")
		}
	})

	t.Run("recvfrom", func(t *testing.T) {
		h := newHarness()
		e := h.open(t, ModeServer, "0.0.0.0:5000")
		defer e.Close()
		h.sys.queue = []fakeDatagram{{err: errFake}}

		_, _, err := e.Receive(make([]byte, 8), time.Second)
		var opErr *OpError
		if !errors.As(err, &opErr) || opErr.Op != "recvfrom" {
			t.Fatalf("error = %v, want recvfrom *OpError", err)
		}
		if !h.errorLogged() {
			t.Error("expected an error log")
		}
	})
}

func TestClose(t *testing.T) {
	h := newHarness()
	e := h.open(t, ModeServer, "0.0.0.0:5000")

	if err := e.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if h.sub.Count() != 0 || h.teardown != 1 {
		t.Errorf("subsystem count = %d, teardowns = %d", h.sub.Count(), h.teardown)
	}

	calls := len(h.sys.callLog())
	if err := e.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
	if len(h.sys.callLog()) != calls {
		t.Errorf("second Close reached the OS: %v", h.sys.callLog()[calls:])
	}
	if h.teardown != 1 {
		t.Errorf("teardowns = %d, want 1", h.teardown)
	}

	if _, err := e.Send([]byte("x"), address.MustParse("127.0.0.1:1")); !errors.Is(err, ErrClosed) {
		t.Errorf("Send after Close error = %v, want ErrClosed", err)
	}
	if _, _, err := e.Receive(make([]byte, 1), 0); !errors.Is(err, ErrClosed) {
		t.Errorf("Receive after Close error = %v, want ErrClosed", err)
	}
	if _, err := e.LocalAddr(); !errors.Is(err, ErrClosed) {
		t.Errorf("LocalAddr after Close error = %v, want ErrClosed", err)
	}
}

func TestClose_OSFailureIsNotReported(t *testing.T) {
	h := newHarness()
	e := h.open(t, ModeServer, "0.0.0.0:5000")
	h.sys.closeErr = errFake

	if err := e.Close(); err != nil {
		t.Errorf("Close error = %v, want nil", err)
	}
	if h.errorLogged() {
		t.Error("close failure logged as an error")
	}
}

func TestSubsystem_SharedAcrossEndpoints(t *testing.T) {
	h := newHarness()
	a := h.open(t, ModeServer, "0.0.0.0:5000")
	b := h.open(t, ModeClient, "127.0.0.1:5000")

	if h.sub.Count() != 2 || h.startups != 1 {
		t.Fatalf("count = %d, startups = %d; want 2, 1", h.sub.Count(), h.startups)
	}

	a.Close()
	if !h.sub.Active() || h.teardown != 0 {
		t.Errorf("subsystem torn down while an endpoint is open")
	}

	b.Close()
	if h.sub.Active() || h.teardown != 1 {
		t.Errorf("active = %v, teardowns = %d; want false, 1", h.sub.Active(), h.teardown)
	}
}

func TestOpError(t *testing.T) {
	err := &OpError{Op: "bind", Addr: address.MustParse("127.0.0.1:80"), Err: errFake}
	if got := err.Error(); got != "bind 127.0.0.1:80: fake: failure" {
		t.Errorf("Error() = %q", got)
	}

	err = &OpError{Op: "recvfrom", Err: errFake}
	if got := err.Error(); got != "recvfrom: fake: failure" {
		t.Errorf("Error() = %q", got)
	}
}
