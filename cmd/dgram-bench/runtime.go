package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/postalsys/dgram/internal/address"
	"github.com/postalsys/dgram/internal/config"
	"github.com/postalsys/dgram/internal/endpoint"
	"github.com/postalsys/dgram/internal/health"
	"github.com/postalsys/dgram/internal/logging"
	"github.com/postalsys/dgram/internal/metrics"
	"github.com/postalsys/dgram/internal/subsystem"
)

// globalOptions are the flags shared by every subcommand.
type globalOptions struct {
	configPath  string
	logLevel    string
	logFormat   string
	debug       bool
	metrics     bool
	metricsAddr string
}

func (o *globalOptions) bind(cmd *cobra.Command) {
	f := cmd.PersistentFlags()
	f.StringVarP(&o.configPath, "config", "c", "", "Path to YAML configuration file")
	f.StringVar(&o.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	f.StringVar(&o.logFormat, "log-format", "", "Log format (text, json)")
	f.BoolVarP(&o.debug, "debug", "g", false, "Enable debug logging")
	f.BoolVar(&o.metrics, "metrics", false, "Serve /health and /metrics over HTTP")
	f.StringVar(&o.metricsAddr, "metrics-address", "", "Listen address for the metrics server")
}

// load reads the config file, if any, and applies the global flag overrides.
func (o *globalOptions) load(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.Default()
	if o.configPath != "" {
		var err error
		if cfg, err = config.Load(o.configPath); err != nil {
			return nil, err
		}
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.Log.Level = o.logLevel
	}
	if flags.Changed("log-format") {
		cfg.Log.Format = o.logFormat
	}
	if o.debug {
		cfg.Log.Level = "debug"
	}
	if flags.Changed("metrics") {
		cfg.Metrics.Enabled = o.metrics
	}
	if flags.Changed("metrics-address") {
		cfg.Metrics.Address = o.metricsAddr
	}

	return cfg, nil
}

// session holds what a subcommand needs to run one endpoint.
type session struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *metrics.Metrics
	health  *health.Server
	status  *roleStatus
}

func newSession(cfg *config.Config, mode endpoint.Mode) (*session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &session{
		cfg:     cfg,
		logger:  logging.NewLogger(cfg.Log.Level, cfg.Log.Format),
		metrics: metrics.Default(),
		status:  &roleStatus{mode: mode.String()},
	}
	return s, nil
}

// startHealth starts the metrics server when enabled. count reports the
// datagrams handled so far.
func (s *session) startHealth(count func() int64) error {
	if !s.cfg.Metrics.Enabled {
		return nil
	}

	s.status.count = count
	s.health = health.NewServer(health.ServerConfig{
		Address:      s.cfg.Metrics.Address,
		ReadTimeout:  s.cfg.Metrics.ReadTimeout,
		WriteTimeout: s.cfg.Metrics.WriteTimeout,
	}, s.status)
	if err := s.health.Start(); err != nil {
		s.health = nil
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	s.logger.Info("metrics server started", slog.String(logging.KeyAddress, s.health.Address().String()))
	return nil
}

func (s *session) open(mode endpoint.Mode, addr address.Address) (*endpoint.Endpoint, error) {
	ep, err := endpoint.OpenWithOptions(mode, addr, endpoint.Options{
		Logger:  s.logger,
		Metrics: s.metrics,
	})
	if err != nil {
		return nil, err
	}
	s.status.address.Store(addr.String())
	return ep, nil
}

func (s *session) close() {
	if s.health != nil {
		s.health.Stop()
	}
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// parseAddress resolves the address flag, falling back to the config file.
func parseAddress(flagValue, configValue, flagName string) (address.Address, error) {
	text := flagValue
	if text == "" {
		text = configValue
	}
	if text == "" {
		return address.Address{}, fmt.Errorf("an address is required (-%s ip:port)", flagName)
	}
	return address.Parse(text)
}

// roleStatus reports the running endpoint to the health server.
type roleStatus struct {
	mode       string
	address    atomic.Value
	running    atomic.Bool
	registered atomic.Bool
	count      func() int64
}

func (r *roleStatus) IsRunning() bool {
	return r.running.Load()
}

func (r *roleStatus) Stats() health.Stats {
	addr, _ := r.address.Load().(string)
	var n int64
	if r.count != nil {
		n = r.count()
	}
	return health.Stats{
		Mode:       r.mode,
		Address:    addr,
		Datagrams:  n,
		Subsystem:  subsystem.Default().Count(),
		Registered: r.registered.Load(),
	}
}
