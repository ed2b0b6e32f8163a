// Package config resolves where the broker listens and where clients dial.
//
// Values come from, in increasing precedence: built-in defaults, an
// optional YAML file, then SMK_* environment variables. Command-line flags
// are applied on top by the caller.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

const (
	DefaultHost = "localhost"
	DefaultPort = 5000

	EnvConfig  = "SMK_CONFIG"
	EnvHost    = "SMK_SERVER_HOST"
	EnvPort    = "SMK_SERVER_PORT"
	EnvHTTP    = "SMK_HTTP_ADDR"
	EnvJournal = "SMK_JOURNAL"
)

// Config is the resolved runtime configuration.
type Config struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	HTTPAddr string `yaml:"http_addr"` // empty disables the status server
	Journal  string `yaml:"journal"`   // empty disables the event journal
	MDNS     bool   `yaml:"mdns"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{Host: DefaultHost, Port: DefaultPort}
}

// Addr is the host:port pair for the order channel.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Load builds a Config. path names a YAML file; when empty, SMK_CONFIG is
// consulted. A missing file named only by the environment is not an error.
// An unusable port from any source falls back to DefaultPort with a warning.
func Load(path string, logger *slog.Logger) (Config, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = os.Getenv(EnvConfig)
	}
	if path != "" {
		if err := cfg.readFile(path); err != nil {
			if explicit || !errors.Is(err, fs.ErrNotExist) {
				return cfg, err
			}
			logger.Warn("config file not found, using defaults", "path", path)
		}
	}

	cfg.Host = envOr(EnvHost, cfg.Host)
	if v := os.Getenv(EnvPort); v != "" {
		cfg.Port = parsePort(v, logger)
	}
	cfg.HTTPAddr = envOr(EnvHTTP, cfg.HTTPAddr)
	cfg.Journal = envOr(EnvJournal, cfg.Journal)

	if !validPort(cfg.Port) {
		logger.Warn("invalid port, using default", "port", cfg.Port, "default", DefaultPort)
		cfg.Port = DefaultPort
	}
	if cfg.Host == "" {
		cfg.Host = DefaultHost
	}
	return cfg, nil
}

func (c *Config) readFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// ParsePort converts s to a TCP port, falling back to DefaultPort with a
// warning when s is not a number in 1..65535.
func ParsePort(s string, logger *slog.Logger) int {
	if logger == nil {
		logger = slog.Default()
	}
	return parsePort(s, logger)
}

func parsePort(s string, logger *slog.Logger) int {
	p, err := strconv.Atoi(s)
	if err != nil || !validPort(p) {
		logger.Warn("invalid port, using default", "value", s, "default", DefaultPort)
		return DefaultPort
	}
	return p
}

func validPort(p int) bool { return p > 0 && p <= 65535 }

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
