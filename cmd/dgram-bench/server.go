package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/postalsys/dgram/internal/address"
	"github.com/postalsys/dgram/internal/bench"
	"github.com/postalsys/dgram/internal/endpoint"
	"github.com/postalsys/dgram/internal/logging"
	"github.com/postalsys/dgram/internal/poll"
	"github.com/postalsys/dgram/internal/sysinfo"
)

func serverCmd(opts *globalOptions) *cobra.Command {
	var (
		listen   string
		priority bool
	)

	cmd := &cobra.Command{
		Use:   "server",
		Short: "Echo every datagram back to its sender",
		Long: `Bind a UDP socket and send every received datagram back to its sender
until interrupted.`,
		Example: "  dgram-bench server -i 0.0.0.0:5000",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("priority") {
				cfg.Bench.Priority = priority
			}

			addr, err := parseAddress(listen, cfg.Endpoint.Address, "i")
			if err != nil {
				return err
			}

			s, err := newSession(cfg, endpoint.ModeServer)
			if err != nil {
				return err
			}
			defer s.close()

			ep, err := s.open(endpoint.ModeServer, addr)
			if err != nil {
				return err
			}
			defer ep.Close()

			poller, err := poll.New(s.logger)
			if err != nil {
				return err
			}
			defer poller.Close()

			srv, err := bench.NewEchoServer(ep, poller, s.logger)
			if err != nil {
				return fmt.Errorf("failed to register endpoint: %w", err)
			}
			s.status.registered.Store(true)

			if err := s.startHealth(srv.Echoed); err != nil {
				return err
			}

			if cfg.Bench.Priority {
				restore, err := bench.BoostPriority()
				if err != nil {
					return err
				}
				defer func() {
					if err := restore(); err != nil {
						s.logger.Warn("failed to restore priority", logging.Err(err))
					}
				}()
			}

			ctx, cancel := signalContext()
			defer cancel()

			s.status.running.Store(true)
			defer s.status.running.Store(false)

			s.logger.Info("listening", slog.String(logging.KeyAddress, addr.String()))
			if addr.IP == address.Any {
				for _, a := range sysinfo.LocalAddresses(addr.Port) {
					s.logger.Info("reachable", slog.String(logging.KeyAddress, a.String()))
				}
			}
			return srv.Run(ctx)
		},
	}

	cmd.Flags().StringVarP(&listen, "listen", "i", "", "Local address to bind (ip:port)")
	cmd.Flags().BoolVarP(&priority, "priority", "p", false, "Raise the process scheduling priority")

	return cmd
}
