package bench

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/postalsys/dgram/internal/address"
	"github.com/postalsys/dgram/internal/endpoint"
	"github.com/postalsys/dgram/internal/logging"
	"github.com/postalsys/dgram/internal/metrics"
	"github.com/postalsys/dgram/internal/poll"
)

const (
	// DefaultPeriod is how often the client checks for completion.
	DefaultPeriod = 10 * time.Millisecond

	// defaultAllocation is the initial sample capacity when running by duration.
	defaultAllocation = 1024
)

var (
	// ErrPacketMismatch is returned when an echo differs from the packet sent.
	ErrPacketMismatch = errors.New("bad packet content")

	// ErrHangup is returned when the poller reports the socket hung up.
	ErrHangup = errors.New("socket hangup")
)

// ClientConfig controls a ping run. Either Samples or Duration must be set.
type ClientConfig struct {
	PacketSize int
	Samples    int
	Duration   time.Duration
	Period     time.Duration
	Rate       float64 // packets per second, 0 for no pacing
}

// Validate checks the configuration.
func (c ClientConfig) Validate() error {
	if c.PacketSize <= 0 || c.PacketSize > endpoint.MaxDatagramSize {
		return fmt.Errorf("packet size must be in [1, %d], got %d", endpoint.MaxDatagramSize, c.PacketSize)
	}
	if c.Samples < 0 || c.Duration < 0 {
		return errors.New("samples and duration must not be negative")
	}
	if c.Samples == 0 && c.Duration == 0 {
		return errors.New("samples or duration is required")
	}
	if c.Rate < 0 {
		return errors.New("rate must not be negative")
	}
	return nil
}

// PingClient sends a packet, waits for its echo, records the round trip,
// then sends the next packet with every byte incremented.
type PingClient struct {
	ep      *endpoint.Endpoint
	poller  *poll.Poller
	cfg     ClientConfig
	logger  *slog.Logger
	metrics *metrics.Metrics
	limiter *rate.Limiter

	packet  []byte
	samples []time.Duration
	sentAt  time.Time
	err     error
	done    bool

	completed atomic.Int64
}

// NewPingClient registers a client endpoint with poller. The endpoint stays
// owned by the caller.
func NewPingClient(ep *endpoint.Endpoint, poller *poll.Poller, cfg ClientConfig, logger *slog.Logger, m *metrics.Metrics) (*PingClient, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Period <= 0 {
		cfg.Period = DefaultPeriod
	}
	if logger == nil {
		logger = logging.NopLogger()
	}

	capacity := cfg.Samples
	if capacity == 0 {
		capacity = defaultAllocation
	}

	c := &PingClient{
		ep:      ep,
		poller:  poller,
		cfg:     cfg,
		logger:  logger.With(slog.String(logging.KeyComponent, "ping")),
		metrics: m,
		packet:  make([]byte, cfg.PacketSize),
		samples: make([]time.Duration, 0, capacity),
	}
	if cfg.Rate > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.Rate), 1)
	}

	err := ep.Register(endpoint.Callbacks{
		Read:     c.onDatagram,
		Close:    c.onHangup,
		Register: poller.Register,
		Remove:   poller.Remove,
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Run pings until the sample count is reached, the duration elapses, ctx is
// done, or an error occurs. The stats cover every sample recorded so far,
// including on error.
func (c *PingClient) Run(ctx context.Context) (Stats, error) {
	if c.cfg.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Duration)
		defer cancel()
	}

	c.logger.Debug("ping started",
		slog.Int(logging.KeyBytes, c.cfg.PacketSize),
		slog.String(logging.KeyRemoteAddr, c.ep.Addr().String()))

	if err := c.send(); err != nil {
		return Compute(c.samples), err
	}

	for !c.done {
		select {
		case <-ctx.Done():
			c.done = true
			continue
		default:
		}

		if err := c.poller.Poll(c.cfg.Period); err != nil && !errors.Is(err, poll.ErrStop) {
			return Compute(c.samples), err
		}
	}

	return Compute(c.samples), c.err
}

// Samples returns the round-trip times recorded so far. It must not be
// called while Run is in progress.
func (c *PingClient) Samples() []time.Duration {
	return c.samples
}

// Completed returns the number of round trips so far. It is safe to call
// from any goroutine.
func (c *PingClient) Completed() int64 {
	return c.completed.Load()
}

func (c *PingClient) send() error {
	if c.limiter != nil {
		time.Sleep(c.limiter.Reserve().Delay())
	}

	c.sentAt = time.Now()
	_, err := c.ep.Send(c.packet, c.ep.Addr())
	return err
}

func (c *PingClient) stop(err error) error {
	c.done = true
	if err != nil && c.err == nil {
		c.err = err
	}
	return poll.ErrStop
}

func (c *PingClient) onDatagram(payload []byte, _ address.Address, err error) error {
	if errors.Is(err, endpoint.ErrNoData) {
		return nil
	}
	if err != nil {
		return c.stop(err)
	}

	rtt := time.Since(c.sentAt)

	if !bytes.Equal(payload, c.packet) {
		c.metrics.RecordPacketMismatch()
		c.logger.Error("bad packet content",
			slog.Int(logging.KeyBytes, len(payload)),
			slog.Int(logging.KeyCount, len(c.samples)))
		return c.stop(ErrPacketMismatch)
	}

	for i := range c.packet {
		c.packet[i]++
	}

	c.record(rtt)

	if c.cfg.Samples > 0 && len(c.samples) == c.cfg.Samples {
		return c.stop(nil)
	}

	if err := c.send(); err != nil {
		return c.stop(err)
	}
	return nil
}

func (c *PingClient) record(rtt time.Duration) {
	if len(c.samples) == cap(c.samples) {
		grown := make([]time.Duration, len(c.samples), 2*cap(c.samples))
		copy(grown, c.samples)
		c.samples = grown
	}
	c.samples = append(c.samples, rtt)
	c.completed.Add(1)
	c.metrics.RecordRoundTrip(rtt.Seconds())
}

func (c *PingClient) onHangup() error {
	return c.stop(ErrHangup)
}
