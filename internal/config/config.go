// Package config implements the agent's YAML configuration store.
// The store owns the on-disk file: all mutation goes through validated
// Set/Reset operations, and writes are atomic (temp file + rename) so a
// crashed write never leaves a truncated config behind.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is the conventional config file location on Linux hosts.
const DefaultPath = "/etc/collector-agent/config.yaml"

// ErrUnknownKey is returned by Get/Set for keys outside the config schema.
var ErrUnknownKey = errors.New("unknown configuration key")

// Config holds all agent configuration.
type Config struct {
	Endpoint  string          `yaml:"endpoint"`
	Interval  int             `yaml:"interval"`
	Exporters ExportersConfig `yaml:"exporters"`
	Logging   LoggingConfig   `yaml:"logging"`
	Daemon    DaemonConfig    `yaml:"daemon"`
}

// ExportersConfig groups per-exporter settings.
type ExportersConfig struct {
	NodeExporter NodeExporterConfig `yaml:"node_exporter"`
	NvidiaSMI    NvidiaSMIConfig    `yaml:"nvidia_smi"`
}

// NodeExporterConfig holds Node Exporter scrape settings.
type NodeExporterConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Timeout int    `yaml:"timeout"`
}

// NvidiaSMIConfig holds nvidia-smi settings. An empty path means the binary
// is looked up on PATH.
type NvidiaSMIConfig struct {
	Enabled       bool   `yaml:"enabled"`
	NvidiaSMIPath string `yaml:"nvidia_smi_path"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// DaemonConfig holds daemon lifecycle settings.
type DaemonConfig struct {
	PIDFile string `yaml:"pid_file"`
}

// CollectInterval returns the tick interval as a duration.
func (c *Config) CollectInterval() time.Duration {
	return time.Duration(c.Interval) * time.Second
}

// NodeExporterTimeout returns the scrape timeout as a duration.
func (c *Config) NodeExporterTimeout() time.Duration {
	return time.Duration(c.Exporters.NodeExporter.Timeout) * time.Second
}

// Default returns the packaged default configuration.
func Default() *Config {
	return &Config{
		Endpoint: "http://localhost:8080/metrics",
		Interval: 30,
		Exporters: ExportersConfig{
			NodeExporter: NodeExporterConfig{
				Enabled: true,
				URL:     "http://localhost:9100/metrics",
				Timeout: 5,
			},
			NvidiaSMI: NvidiaSMIConfig{
				Enabled:       true,
				NvidiaSMIPath: "",
			},
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  "/var/log/collector-agent.log",
		},
		Daemon: DaemonConfig{
			PIDFile: "/var/run/collector-agent.pid",
		},
	}
}

// validLogLevels are the accepted logging.level values.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks all invariants of the configuration. It is called after
// every load and before every save, so invalid values never reach disk.
func (c *Config) Validate() error {
	if err := validateURL(c.Endpoint); err != nil {
		return fmt.Errorf("endpoint: %w", err)
	}
	if c.Interval < 1 || c.Interval > 3600 {
		return fmt.Errorf("interval must be between 1 and 3600 seconds, got %d", c.Interval)
	}
	if err := validateURL(c.Exporters.NodeExporter.URL); err != nil {
		return fmt.Errorf("exporters.node_exporter.url: %w", err)
	}
	if t := c.Exporters.NodeExporter.Timeout; t < 1 || t > 300 {
		return fmt.Errorf("exporters.node_exporter.timeout must be between 1 and 300 seconds, got %d", t)
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("logging.level must be one of debug, info, warn, error; got %q", c.Logging.Level)
	}
	if !filepath.IsAbs(c.Daemon.PIDFile) {
		return fmt.Errorf("daemon.pid_file must be an absolute path, got %q", c.Daemon.PIDFile)
	}
	return nil
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL %q: %w", raw, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid URL %q: must be http(s) with a host", raw)
	}
	return nil
}

// Store manages the configuration file at a fixed path.
type Store struct {
	path string
}

// NewStore creates a store for the given config file path.
// An empty path selects DefaultPath.
func NewStore(path string) *Store {
	if path == "" {
		path = DefaultPath
	}
	return &Store{path: path}
}

// Path returns the config file path this store manages.
func (s *Store) Path() string { return s.path }

// Load reads the configuration from disk, applying defaults for missing keys.
// A missing file yields the default configuration. Malformed YAML, unknown
// keys, and invalid values are returned as errors; callers treat these as
// fatal at startup.
func (s *Store) Load() (*Config, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("reading config file %s: %w", s.path, err)
	}
	return parse(data)
}

// parse decodes YAML over the defaults with strict field checking.
func parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && err != io.EOF {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Save writes the configuration to disk atomically.
func (s *Store) Save(cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".config-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp config file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing temp config file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("closing temp config file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replacing config file: %w", err)
	}
	return nil
}

// Set updates a single value addressed by a dotted-path key, validates the
// result, and persists it. A rejected value leaves the previous config both
// in memory and on disk.
func (s *Store) Set(key, value string) (*Config, error) {
	cfg, err := s.Load()
	if err != nil {
		return nil, err
	}
	if err := apply(cfg, key, value); err != nil {
		return nil, err
	}
	if err := s.Save(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Get returns the value for a dotted-path key rendered as a string.
func (s *Store) Get(key string) (string, error) {
	cfg, err := s.Load()
	if err != nil {
		return "", err
	}
	switch key {
	case "endpoint":
		return cfg.Endpoint, nil
	case "interval":
		return strconv.Itoa(cfg.Interval), nil
	case "exporters.node_exporter.enabled":
		return strconv.FormatBool(cfg.Exporters.NodeExporter.Enabled), nil
	case "exporters.node_exporter.url":
		return cfg.Exporters.NodeExporter.URL, nil
	case "exporters.node_exporter.timeout":
		return strconv.Itoa(cfg.Exporters.NodeExporter.Timeout), nil
	case "exporters.nvidia_smi.enabled":
		return strconv.FormatBool(cfg.Exporters.NvidiaSMI.Enabled), nil
	case "exporters.nvidia_smi.nvidia_smi_path":
		return cfg.Exporters.NvidiaSMI.NvidiaSMIPath, nil
	case "logging.level":
		return cfg.Logging.Level, nil
	case "logging.file":
		return cfg.Logging.File, nil
	case "daemon.pid_file":
		return cfg.Daemon.PIDFile, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKey, key)
}

// Reset overwrites the file with the packaged defaults.
func (s *Store) Reset() (*Config, error) {
	cfg := Default()
	if err := s.Save(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Render returns the effective configuration as YAML.
func (s *Store) Render() (string, error) {
	cfg, err := s.Load()
	if err != nil {
		return "", err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("marshaling config: %w", err)
	}
	return string(data), nil
}

// apply sets a dotted-path key on the config, converting the string value to
// the field's type.
func apply(cfg *Config, key, value string) error {
	switch key {
	case "endpoint":
		cfg.Endpoint = value
	case "interval":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("interval must be an integer, got %q", value)
		}
		cfg.Interval = n
	case "exporters.node_exporter.enabled":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("exporters.node_exporter.enabled must be true or false, got %q", value)
		}
		cfg.Exporters.NodeExporter.Enabled = b
	case "exporters.node_exporter.url":
		cfg.Exporters.NodeExporter.URL = value
	case "exporters.node_exporter.timeout":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("exporters.node_exporter.timeout must be an integer, got %q", value)
		}
		cfg.Exporters.NodeExporter.Timeout = n
	case "exporters.nvidia_smi.enabled":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("exporters.nvidia_smi.enabled must be true or false, got %q", value)
		}
		cfg.Exporters.NvidiaSMI.Enabled = b
	case "exporters.nvidia_smi.nvidia_smi_path":
		cfg.Exporters.NvidiaSMI.NvidiaSMIPath = value
	case "logging.level":
		cfg.Logging.Level = strings.ToLower(value)
	case "logging.file":
		cfg.Logging.File = value
	case "daemon.pid_file":
		cfg.Daemon.PIDFile = value
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKey, key)
	}
	return nil
}
