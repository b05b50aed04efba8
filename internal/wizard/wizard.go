// Package wizard provides an interactive generator for dgram-bench
// configuration files.
package wizard

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"gopkg.in/yaml.v3"

	"github.com/postalsys/dgram/internal/address"
	"github.com/postalsys/dgram/internal/config"
	"github.com/postalsys/dgram/internal/endpoint"
)

// Answers holds everything the wizard asks for.
type Answers struct {
	ConfigPath string
	Mode       string
	Address    string

	PacketSize int
	Samples    int
	Duration   time.Duration
	Rate       float64
	Priority   bool

	LogLevel       string
	MetricsEnabled bool
	MetricsAddress string
}

// Result contains the wizard output.
type Result struct {
	Config     *config.Config
	ConfigPath string
}

// Wizard manages the interactive setup process.
type Wizard struct {
	theme *huh.Theme
}

// New creates a new setup wizard.
func New() *Wizard {
	return &Wizard{
		theme: huh.ThemeDracula(),
	}
}

// Run asks the questions, writes the configuration file and prints a summary.
func (w *Wizard) Run() (*Result, error) {
	w.printBanner()

	a := Answers{
		ConfigPath:     "./dgram-bench.yaml",
		Mode:           endpoint.ModeClient.String(),
		PacketSize:     64,
		Samples:        1000,
		LogLevel:       "info",
		MetricsAddress: "127.0.0.1:9090",
	}

	if err := w.askEndpoint(&a); err != nil {
		return nil, err
	}
	if a.Mode == endpoint.ModeClient.String() {
		if err := w.askBench(&a); err != nil {
			return nil, err
		}
	}
	if err := w.askAdvanced(&a); err != nil {
		return nil, err
	}

	cfg, err := buildConfig(a)
	if err != nil {
		return nil, err
	}
	if err := writeConfig(cfg, a.ConfigPath); err != nil {
		return nil, err
	}

	w.printSummary(a.ConfigPath, cfg)

	return &Result{Config: cfg, ConfigPath: a.ConfigPath}, nil
}

func (w *Wizard) printBanner() {
	banner := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("212")).
		Render(`
      _                         _                     _
   __| | __ _ _ __ __ _ _ __ __| |__   ___ _ __   ___| |__
  / _' |/ _' | '__/ _' | '_ ' _ \ '_ \ / _ \ '_ \ / __| '_ \
 | (_| | (_| | | | (_| | | | | | | |_) |  __/ | | | (__| | | |
  \__,_|\__, |_|  \__,_|_| |_| |_|_.__/ \___|_| |_|\___|_| |_|
        |___/
`)

	subtitle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241")).
		Render("  UDP Round-Trip Benchmark - Configuration Wizard\n")

	fmt.Println(banner)
	fmt.Println(subtitle)
}

func (w *Wizard) askEndpoint(a *Answers) error {
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewNote().
				Title("Endpoint").
				Description("Choose the role and the UDP address to use."),

			huh.NewInput().
				Title("Config File Path").
				Placeholder("./dgram-bench.yaml").
				Value(&a.ConfigPath).
				Validate(validateConfigPath),

			huh.NewSelect[string]().
				Title("Role").
				Options(
					huh.NewOption("Client (measure round trips)", endpoint.ModeClient.String()),
					huh.NewOption("Server (echo datagrams)", endpoint.ModeServer.String()),
				).
				Value(&a.Mode),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Address").
				DescriptionFunc(func() string {
					if a.Mode == endpoint.ModeServer.String() {
						return "Local address to bind, for example 0.0.0.0:5000"
					}
					return "Echo server address, for example 192.168.1.10:5000"
				}, &a.Mode).
				Value(&a.Address).
				Validate(validateAddress),
		),
	).WithTheme(w.theme)

	return form.Run()
}

func (w *Wizard) askBench(a *Answers) error {
	size := strconv.Itoa(a.PacketSize)
	samples := strconv.Itoa(a.Samples)
	duration := ""
	rate := ""

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewNote().
				Title("Benchmark").
				Description("Set a sample count, a duration, or both. The run stops at whichever comes first."),

			huh.NewInput().
				Title("Packet Size").
				Description(fmt.Sprintf("Bytes per datagram (1-%d)", endpoint.MaxDatagramSize)).
				Value(&size).
				Validate(validatePacketSize),

			huh.NewInput().
				Title("Samples").
				Description("Number of round trips (0 to use the duration only)").
				Value(&samples).
				Validate(validateCount),

			huh.NewInput().
				Title("Duration").
				Description("For example 30s or 5m (empty for none)").
				Value(&duration).
				Validate(validateDuration),

			huh.NewInput().
				Title("Rate").
				Description("Maximum packets per second (empty for unlimited)").
				Value(&rate).
				Validate(validateRate),

			huh.NewConfirm().
				Title("Raise process priority?").
				Description("Needs elevated privileges on most systems").
				Value(&a.Priority),
		),
	).WithTheme(w.theme)

	if err := form.Run(); err != nil {
		return err
	}

	a.PacketSize, _ = strconv.Atoi(strings.TrimSpace(size))
	a.Samples, _ = strconv.Atoi(strings.TrimSpace(samples))
	if d := strings.TrimSpace(duration); d != "" {
		a.Duration, _ = time.ParseDuration(d)
	}
	if r := strings.TrimSpace(rate); r != "" {
		a.Rate, _ = strconv.ParseFloat(r, 64)
	}
	return nil
}

func (w *Wizard) askAdvanced(a *Answers) error {
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewNote().
				Title("Advanced Options").
				Description("Configure monitoring and logging."),

			huh.NewSelect[string]().
				Title("Log Level").
				Options(
					huh.NewOption("Debug (verbose)", "debug"),
					huh.NewOption("Info (recommended)", "info"),
					huh.NewOption("Warning", "warn"),
					huh.NewOption("Error (quiet)", "error"),
				).
				Value(&a.LogLevel),

			huh.NewConfirm().
				Title("Enable metrics endpoint?").
				Description("HTTP endpoint for /metrics and /healthz").
				Value(&a.MetricsEnabled),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Metrics Address").
				Value(&a.MetricsAddress).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("metrics address is required")
					}
					return nil
				}),
		).WithHideFunc(func() bool { return !a.MetricsEnabled }),
	).WithTheme(w.theme)

	return form.Run()
}

func buildConfig(a Answers) (*config.Config, error) {
	cfg := config.Default()

	cfg.Log.Level = a.LogLevel
	cfg.Endpoint.Mode = a.Mode
	cfg.Endpoint.Address = strings.TrimSpace(a.Address)

	if a.Mode == endpoint.ModeClient.String() {
		cfg.Bench.PacketSize = a.PacketSize
		cfg.Bench.Samples = a.Samples
		cfg.Bench.Duration = a.Duration
		cfg.Bench.Rate = a.Rate
	}
	cfg.Bench.Priority = a.Priority

	cfg.Metrics.Enabled = a.MetricsEnabled
	if a.MetricsEnabled && a.MetricsAddress != "" {
		cfg.Metrics.Address = a.MetricsAddress
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func writeConfig(cfg *config.Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := "# dgram-bench configuration\n# Generated by dgram-bench init\n\n"
	if err := os.WriteFile(path, []byte(header+string(data)), 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

func (w *Wizard) printSummary(configPath string, cfg *config.Config) {
	style := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("42"))

	divider := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241")).
		Render(strings.Repeat("─", 49))

	fmt.Println()
	fmt.Println(divider)
	fmt.Println(style.Render("✓ Configuration written"))
	fmt.Println(divider)
	fmt.Println()

	fmt.Printf("  Config file:  %s\n", configPath)
	fmt.Printf("  Role:         %s\n", cfg.Endpoint.Mode)
	fmt.Printf("  Address:      %s\n", cfg.Endpoint.Address)
	if cfg.Endpoint.Mode == endpoint.ModeClient.String() {
		fmt.Printf("  Packet size:  %d\n", cfg.Bench.PacketSize)
		if cfg.Bench.Samples > 0 {
			fmt.Printf("  Samples:      %d\n", cfg.Bench.Samples)
		}
		if cfg.Bench.Duration > 0 {
			fmt.Printf("  Duration:     %s\n", cfg.Bench.Duration)
		}
	}
	if cfg.Metrics.Enabled {
		fmt.Printf("  Metrics:      http://%s/metrics\n", cfg.Metrics.Address)
	}

	fmt.Println()
	fmt.Println("  To start:")
	fmt.Printf("    dgram-bench %s -c %s\n", cfg.Endpoint.Mode, configPath)
	fmt.Println()
}

func validateConfigPath(s string) error {
	if s == "" {
		return fmt.Errorf("config path is required")
	}
	if !strings.HasSuffix(s, ".yaml") && !strings.HasSuffix(s, ".yml") {
		return fmt.Errorf("config file should have .yaml or .yml extension")
	}
	return nil
}

func validateAddress(s string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("address is required")
	}
	_, err := address.Parse(strings.TrimSpace(s))
	return err
}

func validatePacketSize(s string) error {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("packet size must be a number")
	}
	if n < 1 || n > endpoint.MaxDatagramSize {
		return fmt.Errorf("packet size must be in [1, %d]", endpoint.MaxDatagramSize)
	}
	return nil
}

func validateCount(s string) error {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 0 {
		return fmt.Errorf("must be a non-negative number")
	}
	return nil
}

func validateDuration(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return fmt.Errorf("invalid duration: %s", s)
	}
	return nil
}

func validateRate(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	r, err := strconv.ParseFloat(s, 64)
	if err != nil || r < 0 {
		return fmt.Errorf("rate must be a non-negative number")
	}
	return nil
}
