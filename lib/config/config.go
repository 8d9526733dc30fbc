// Copyright 2026 The Beacon Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// ErrInvalid is wrapped by every error Validate returns.
var ErrInvalid = errors.New("invalid configuration")

// Storage backends.
const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// Network probes.
const (
	ProbeInterface = "interface"
	ProbeDial      = "dial"
	// ProbeNone treats the network as always online.
	ProbeNone = "none"
)

// Config is the complete configuration of a Beacon process.
type Config struct {
	Collector CollectorConfig `yaml:"collector"`
	Device    DeviceConfig    `yaml:"device"`
	Trip      TripConfig      `yaml:"trip"`
	Delivery  DeliveryConfig  `yaml:"delivery"`
	Storage   StorageConfig   `yaml:"storage"`
	Network   NetworkConfig   `yaml:"network"`
	Source    SourceConfig    `yaml:"source"`
	Status    StatusConfig    `yaml:"status"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Log       LogConfig       `yaml:"log"`
}

// CollectorConfig describes the server positions are reported to.
type CollectorConfig struct {
	// URL is the base URL; query parameters are appended to it.
	// Required.
	URL string `yaml:"url"`

	// Method is GET or POST. Default: GET.
	Method string `yaml:"method"`

	// Timeout bounds one request. Default: 15s.
	Timeout time.Duration `yaml:"timeout"`

	// Extended adds charge and trip correlation parameters to each
	// request. Only enable it for collectors that accept them.
	Extended bool `yaml:"extended"`
}

// DeviceConfig identifies this unit.
type DeviceConfig struct {
	// ID is the identifier reported to the collector. When empty, a
	// generated identifier is kept in IDFile.
	ID string `yaml:"id"`

	// IDFile holds the generated identifier.
	// Default: ${BEACON_STATE}/identity.json
	IDFile string `yaml:"id_file"`
}

// TripConfig carries the optional trip correlation identifiers
// attached to every position.
type TripConfig struct {
	TripID  string `yaml:"trip_id"`
	RouteID string `yaml:"route_id"`
	BlockID string `yaml:"block_id"`
}

// DeliveryConfig tunes the delivery controller.
type DeliveryConfig struct {
	// Buffer persists every position before sending. When false,
	// positions are sent directly and dropped on failure.
	// Default: true.
	Buffer bool `yaml:"buffer"`

	// RetryDelay is the wait after a failed send or storage
	// operation. Default: 30s.
	RetryDelay time.Duration `yaml:"retry_delay"`
}

// StorageConfig selects and locates the queue.
type StorageConfig struct {
	// Backend is "sqlite" or "redis". Default: sqlite.
	Backend string `yaml:"backend"`

	// Path is the SQLite database. Default: ${BEACON_STATE}/queue.db
	Path string `yaml:"path"`

	// RedisURL is required for the redis backend.
	RedisURL string `yaml:"redis_url"`

	// RedisKey names the sorted set. Default: beacon:positions
	RedisKey string `yaml:"redis_key"`
}

// NetworkConfig selects how connectivity is detected.
type NetworkConfig struct {
	// Probe is "interface", "dial" or "none". Default: interface.
	Probe string `yaml:"probe"`

	// Address is the host:port the dial probe connects to. Empty
	// means the collector's host.
	Address string `yaml:"address"`

	// PollInterval is how often the probe runs. Default: 5s.
	PollInterval time.Duration `yaml:"poll_interval"`
}

// SourceConfig configures the gpsd source and the report filter.
type SourceConfig struct {
	// GPSDAddress default: 127.0.0.1:2947
	GPSDAddress string `yaml:"gpsd_address"`

	// Interval is the longest time between reports. Default: 300s.
	Interval time.Duration `yaml:"interval"`

	// Distance in meters forces a report when exceeded. 0 disables.
	Distance float64 `yaml:"distance"`

	// Angle in degrees forces a report on a heading change. 0 disables.
	Angle float64 `yaml:"angle"`

	// BatteryPath is the power-supply class directory.
	// Default: /sys/class/power_supply
	BatteryPath string `yaml:"battery_path"`
}

// StatusConfig sizes the status message log.
type StatusConfig struct {
	// Limit default: 20.
	Limit int `yaml:"limit"`
}

// MetricsConfig enables the Prometheus endpoint.
type MetricsConfig struct {
	// Address to serve /metrics and /healthz on. Empty disables.
	Address string `yaml:"address"`
}

// LogConfig sets the log level.
type LogConfig struct {
	// Level is debug, info, warn or error. Default: info.
	Level string `yaml:"level"`
}

const defaultStateDir = "${BEACON_STATE:-/var/lib/beacon}"

// Default returns the default configuration. Everything except
// collector.url has a usable default.
func Default() *Config {
	return &Config{
		Collector: CollectorConfig{
			Method:  "GET",
			Timeout: 15 * time.Second,
		},
		Device: DeviceConfig{
			IDFile: defaultStateDir + "/identity.json",
		},
		Delivery: DeliveryConfig{
			Buffer:     true,
			RetryDelay: 30 * time.Second,
		},
		Storage: StorageConfig{
			Backend:  BackendSQLite,
			Path:     defaultStateDir + "/queue.db",
			RedisKey: "beacon:positions",
		},
		Network: NetworkConfig{
			Probe:        ProbeInterface,
			PollInterval: 5 * time.Second,
		},
		Source: SourceConfig{
			GPSDAddress: "127.0.0.1:2947",
			Interval:    300 * time.Second,
			BatteryPath: "/sys/class/power_supply",
		},
		Status: StatusConfig{Limit: 20},
		Log:    LogConfig{Level: "info"},
	}
}

// Load loads configuration from the file named by BEACON_CONFIG.
func Load() (*Config, error) {
	configPath := os.Getenv("BEACON_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("BEACON_CONFIG environment variable not set; " +
			"set it to the path of your beacon.yaml config file, or use --config flag")
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from path over the defaults and expands
// variables in path fields. It does not validate.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}
	cfg.expandVariables()
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		// JSON is a subset of YAML once comments and trailing commas
		// are gone.
		data = jsonc.ToJSON(data)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}

	c.Device.IDFile = expandVars(c.Device.IDFile, vars)
	c.Storage.Path = expandVars(c.Storage.Path, vars)
	c.Storage.RedisURL = expandVars(c.Storage.RedisURL, vars)
	c.Source.BatteryPath = expandVars(c.Source.BatteryPath, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default} patterns.
func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		// Check provided vars first, then environment.
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration and reports every problem found.
func (c *Config) Validate() error {
	var errs []error
	invalid := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}

	if c.Collector.URL == "" {
		invalid("collector.url is required")
	} else if parsed, err := url.Parse(c.Collector.URL); err != nil || parsed.Host == "" ||
		(parsed.Scheme != "http" && parsed.Scheme != "https") {
		invalid("collector.url %q must be an absolute http or https URL", c.Collector.URL)
	}
	if !slices.Contains([]string{"GET", "POST"}, c.Collector.Method) {
		invalid("collector.method must be GET or POST, got %q", c.Collector.Method)
	}
	if c.Collector.Timeout <= 0 {
		invalid("collector.timeout must be positive")
	}

	if c.Device.ID == "" && c.Device.IDFile == "" {
		invalid("device.id or device.id_file is required")
	}

	if c.Delivery.RetryDelay <= 0 {
		invalid("delivery.retry_delay must be positive")
	}

	switch c.Storage.Backend {
	case BackendSQLite:
		if c.Storage.Path == "" {
			invalid("storage.path is required for the sqlite backend")
		}
	case BackendRedis:
		if c.Storage.RedisURL == "" {
			invalid("storage.redis_url is required for the redis backend")
		}
	default:
		invalid("storage.backend must be one of: %v", []string{BackendSQLite, BackendRedis})
	}

	if !slices.Contains([]string{ProbeInterface, ProbeDial, ProbeNone}, c.Network.Probe) {
		invalid("network.probe must be one of: %v", []string{ProbeInterface, ProbeDial, ProbeNone})
	}
	if c.Network.PollInterval <= 0 {
		invalid("network.poll_interval must be positive")
	}

	if c.Source.Interval <= 0 {
		invalid("source.interval must be positive")
	}
	if c.Source.Distance < 0 {
		invalid("source.distance must not be negative")
	}
	if c.Source.Angle < 0 || c.Source.Angle > 180 {
		invalid("source.angle must be between 0 and 180")
	}

	if c.Status.Limit <= 0 {
		invalid("status.limit must be positive")
	}

	if _, err := ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("%w: %w", ErrInvalid, err))
	}

	return errors.Join(errs...)
}

// ParseLevel maps log.level to a slog level.
func ParseLevel(level string) (slog.Level, error) {
	var parsed slog.Level
	if err := parsed.UnmarshalText([]byte(level)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return parsed, nil
}

// EnsurePaths creates the directories holding the queue database and
// the identity file.
func (c *Config) EnsurePaths() error {
	var paths []string
	if c.Storage.Backend == BackendSQLite && c.Storage.Path != "" {
		paths = append(paths, filepath.Dir(c.Storage.Path))
	}
	if c.Device.ID == "" && c.Device.IDFile != "" {
		paths = append(paths, filepath.Dir(c.Device.IDFile))
	}

	for _, path := range paths {
		if err := os.MkdirAll(path, 0755); err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
	}
	return nil
}
