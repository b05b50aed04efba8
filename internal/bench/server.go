package bench

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/postalsys/dgram/internal/address"
	"github.com/postalsys/dgram/internal/endpoint"
	"github.com/postalsys/dgram/internal/logging"
	"github.com/postalsys/dgram/internal/poll"
)

// EchoServer sends every datagram it receives back to its sender.
type EchoServer struct {
	ep     *endpoint.Endpoint
	poller *poll.Poller
	logger *slog.Logger

	echoed atomic.Int64
}

// NewEchoServer registers a server endpoint with poller. The endpoint stays
// owned by the caller.
func NewEchoServer(ep *endpoint.Endpoint, poller *poll.Poller, logger *slog.Logger) (*EchoServer, error) {
	if logger == nil {
		logger = logging.NopLogger()
	}

	s := &EchoServer{
		ep:     ep,
		poller: poller,
		logger: logger.With(slog.String(logging.KeyComponent, "echo")),
	}

	err := ep.Register(endpoint.Callbacks{
		Read:     s.onDatagram,
		Close:    s.onHangup,
		Register: poller.Register,
		Remove:   poller.Remove,
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (s *EchoServer) onDatagram(payload []byte, from address.Address, err error) error {
	if errors.Is(err, endpoint.ErrNoData) {
		return nil
	}
	if err != nil {
		return err
	}

	if _, err := s.ep.Send(payload, from); err != nil {
		return err
	}
	s.echoed.Add(1)
	return nil
}

func (s *EchoServer) onHangup() error {
	s.logger.Warn("socket hangup")
	return poll.ErrStop
}

// Echoed returns the number of datagrams sent back so far.
func (s *EchoServer) Echoed() int64 {
	return s.echoed.Load()
}

// Run serves until ctx is done or a socket error occurs.
func (s *EchoServer) Run(ctx context.Context) error {
	s.logger.Info("echo server started")

	err := s.poller.Run(ctx)

	s.logger.Info("echo server stopped", slog.Int64(logging.KeyCount, s.Echoed()))
	return err
}
