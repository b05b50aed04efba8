package main

import (
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/postalsys/dgram/internal/bench"
	"github.com/postalsys/dgram/internal/endpoint"
	"github.com/postalsys/dgram/internal/logging"
	"github.com/postalsys/dgram/internal/poll"
)

func clientCmd(opts *globalOptions) *cobra.Command {
	var (
		dest       string
		samples    int
		duration   time.Duration
		packetSize int
		rate       float64
		period     time.Duration
		priority   bool
		verbose    bool
	)

	cmd := &cobra.Command{
		Use:   "client",
		Short: "Measure round-trip latency against an echo server",
		Long: `Send a packet to an echo server, wait for the echo, and repeat with every
byte of the packet incremented. Stops after -n samples or -d duration and
prints worst, average and standard deviation in microseconds.`,
		Example: `  dgram-bench client -o 192.168.1.10:5000 -n 1000 -s 64
  dgram-bench client -o 192.168.1.10:5000 -d 30s -s 1472 -v`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load(cmd)
			if err != nil {
				return err
			}

			flags := cmd.Flags()
			if flags.Changed("samples") {
				cfg.Bench.Samples = samples
			}
			if flags.Changed("duration") {
				cfg.Bench.Duration = duration
			}
			if flags.Changed("size") {
				cfg.Bench.PacketSize = packetSize
			}
			if flags.Changed("rate") {
				cfg.Bench.Rate = rate
			}
			if flags.Changed("period") {
				cfg.Bench.Period = period
			}
			if flags.Changed("priority") {
				cfg.Bench.Priority = priority
			}
			if flags.Changed("verbose") {
				cfg.Bench.Verbose = verbose
			}

			addr, err := parseAddress(dest, cfg.Endpoint.Address, "o")
			if err != nil {
				return err
			}

			clientCfg := bench.ClientConfig{
				PacketSize: cfg.Bench.PacketSize,
				Samples:    cfg.Bench.Samples,
				Duration:   cfg.Bench.Duration,
				Period:     cfg.Bench.Period,
				Rate:       cfg.Bench.Rate,
			}
			if err := clientCfg.Validate(); err != nil {
				return err
			}

			s, err := newSession(cfg, endpoint.ModeClient)
			if err != nil {
				return err
			}
			defer s.close()

			ep, err := s.open(endpoint.ModeClient, addr)
			if err != nil {
				return err
			}
			defer ep.Close()

			poller, err := poll.New(s.logger)
			if err != nil {
				return err
			}
			defer poller.Close()

			client, err := bench.NewPingClient(ep, poller, clientCfg, s.logger, s.metrics)
			if err != nil {
				return fmt.Errorf("failed to register endpoint: %w", err)
			}
			s.status.registered.Store(true)

			if err := s.startHealth(client.Completed); err != nil {
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
			start := time.Now()
			stats, runErr := client.Run(ctx)
			elapsed := time.Since(start)
			s.status.running.Store(false)

			if cfg.Bench.Verbose {
				fmt.Printf("samples: %d packet size: %d\n", stats.Samples, cfg.Bench.PacketSize)
				fmt.Println(bench.Header)
			}
			fmt.Println(stats.Format())

			if cfg.Bench.Verbose && term.IsTerminal(int(os.Stderr.Fd())) {
				printSummary(stats, cfg.Bench.PacketSize, elapsed)
			}

			return runErr
		},
	}

	f := cmd.Flags()
	f.StringVarP(&dest, "output", "o", "", "Echo server address (ip:port)")
	f.IntVarP(&samples, "samples", "n", 0, "Number of round trips to measure")
	f.DurationVarP(&duration, "duration", "d", 0, "Measure for this long instead of a fixed sample count")
	f.IntVarP(&packetSize, "size", "s", 0, fmt.Sprintf("Packet size in bytes (1-%d)", endpoint.MaxDatagramSize))
	f.Float64Var(&rate, "rate", 0, "Maximum packets per second (0 for unlimited)")
	f.DurationVar(&period, "period", bench.DefaultPeriod, "Completion check period")
	f.BoolVarP(&priority, "priority", "p", false, "Raise the process scheduling priority")
	f.BoolVarP(&verbose, "verbose", "v", false, "Print a header and a summary")

	return cmd
}

func printSummary(stats bench.Stats, packetSize int, elapsed time.Duration) {
	total := uint64(stats.Samples) * uint64(packetSize) * 2
	fmt.Fprintf(os.Stderr, "%s round trips, %s exchanged in %s\n",
		humanize.Comma(int64(stats.Samples)),
		humanize.Bytes(total),
		elapsed.Round(time.Millisecond))
}
