// Package config provides configuration parsing and validation for dgram tools.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/postalsys/dgram/internal/address"
	"github.com/postalsys/dgram/internal/endpoint"
)

// Config represents the complete benchmark tool configuration.
type Config struct {
	Log      LogConfig      `yaml:"log"`
	Endpoint EndpointConfig `yaml:"endpoint"`
	Bench    BenchConfig    `yaml:"bench"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// EndpointConfig describes the UDP endpoint to open.
type EndpointConfig struct {
	// Mode is "client" or "server". Empty lets the command decide.
	Mode string `yaml:"mode"`

	// Address is the bind address for a server or the destination for a client.
	Address string `yaml:"address"`

	ReceiveTimeout time.Duration `yaml:"receive_timeout"`
}

// BenchConfig controls the round-trip benchmark.
type BenchConfig struct {
	PacketSize int           `yaml:"packet_size"`
	Samples    int           `yaml:"samples"`
	Duration   time.Duration `yaml:"duration"`
	Period     time.Duration `yaml:"period"`
	Rate       float64       `yaml:"rate"`
	Priority   bool          `yaml:"priority"`
	Verbose    bool          `yaml:"verbose"`
}

// MetricsConfig defines the health and metrics HTTP server.
type MetricsConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Address      string        `yaml:"address"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Endpoint: EndpointConfig{
			ReceiveTimeout: time.Second,
		},
		Bench: BenchConfig{
			PacketSize: 64,
			Period:     10 * time.Millisecond,
		},
		Metrics: MetricsConfig{
			Enabled:      false,
			Address:      "127.0.0.1:9090",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
	}
}

// Load reads and parses a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse parses configuration from YAML bytes.
func Parse(data []byte) (*Config, error) {
	expanded := expandEnvVars(string(data))

	cfg := Default()

	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// envVarRegex matches ${VAR} or $VAR patterns
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// expandEnvVars replaces environment variable references with their values.
// ${VAR:-default} falls back to default; unknown variables are left as is.
func expandEnvVars(s string) string {
	return envVarRegex.ReplaceAllStringFunc(s, func(match string) string {
		var name string
		if strings.HasPrefix(match, "${") {
			name = match[2 : len(match)-1]
		} else {
			name = match[1:]
		}

		if varName, defaultVal, ok := strings.Cut(name, ":-"); ok {
			if val, ok := os.LookupEnv(varName); ok {
				return val
			}
			return defaultVal
		}

		if val, ok := os.LookupEnv(name); ok {
			return val
		}
		return match
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	if !isValidLogLevel(c.Log.Level) {
		errs = append(errs, fmt.Sprintf("invalid log.level: %s (must be debug, info, warn, or error)", c.Log.Level))
	}
	if !isValidLogFormat(c.Log.Format) {
		errs = append(errs, fmt.Sprintf("invalid log.format: %s (must be text or json)", c.Log.Format))
	}

	if c.Endpoint.Mode != "" {
		if _, err := endpoint.ParseMode(c.Endpoint.Mode); err != nil {
			errs = append(errs, fmt.Sprintf("endpoint.mode: %s (must be client or server)", c.Endpoint.Mode))
		}
	}
	if c.Endpoint.Address != "" {
		if _, err := address.Parse(c.Endpoint.Address); err != nil {
			errs = append(errs, fmt.Sprintf("endpoint.address: %v", err))
		}
	}
	if c.Endpoint.ReceiveTimeout < 0 {
		errs = append(errs, "endpoint.receive_timeout must not be negative")
	}

	if c.Bench.PacketSize < 1 || c.Bench.PacketSize > endpoint.MaxDatagramSize {
		errs = append(errs, fmt.Sprintf("bench.packet_size must be between 1 and %d", endpoint.MaxDatagramSize))
	}
	if c.Bench.Samples < 0 {
		errs = append(errs, "bench.samples must not be negative")
	}
	if c.Bench.Duration < 0 {
		errs = append(errs, "bench.duration must not be negative")
	}
	if c.Bench.Period <= 0 {
		errs = append(errs, "bench.period must be positive")
	}
	if c.Bench.Rate < 0 {
		errs = append(errs, "bench.rate must not be negative")
	}

	if c.Metrics.Enabled && c.Metrics.Address == "" {
		errs = append(errs, "metrics.address is required when enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

func isValidLogLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	default:
		return false
	}
}

func isValidLogFormat(format string) bool {
	switch format {
	case "text", "json":
		return true
	default:
		return false
	}
}

// String returns the config as YAML.
func (c *Config) String() string {
	data, _ := yaml.Marshal(c)
	return string(data)
}
