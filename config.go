// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package tpx holds the forwarder configuration shared by the binary and
// the server packages.
package tpx

import (
	"fmt"
	"io"
	"log/slog"
	"math"
	"net"
	"os"
	"strconv"
	"time"

	perrors "github.com/YushiOMOTE/tpx/pkg/errors"
	"github.com/YushiOMOTE/tpx/pkg/sockopt"
	"github.com/caarlos0/env/v11"
	"github.com/spf13/pflag"
)

// EnvPrefix is the prefix of every environment variable read by NewConfig.
const EnvPrefix = "TPX_"

// MaxKeepAlive is the largest keepalive interval in seconds that fits a time.Duration.
const MaxKeepAlive = uint64(math.MaxInt64 / int64(time.Second))

// Config is the forwarder configuration. It is loaded once at startup and
// treated as read-only afterwards.
type Config struct {
	Source      string `env:"SOURCE"`
	Destination string `env:"DESTINATION"`
	NoDelay     bool   `env:"NODELAY"    envDefault:"false"`
	KeepAlive   uint   `env:"KEEPALIVE"  envDefault:"30"`

	MaxSessions     int           `env:"MAX_SESSIONS"      envDefault:"0"`
	DialTimeout     time.Duration `env:"DIAL_TIMEOUT"      envDefault:"0s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT"  envDefault:"5s"`
	BufferSize      int           `env:"BUFFER_SIZE"       envDefault:"32768"`

	MetricsAddr string `env:"METRICS_ADDR"`
	LogLevel    string `env:"LOG_LEVEL"   envDefault:"info"`
	LogFormat   string `env:"LOG_FORMAT"  envDefault:"text"`
}

// NewConfig parses the configuration from the environment.
func NewConfig(opts env.Options) (Config, error) {
	cfg := Config{}
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, perrors.Join(perrors.ErrInvalidConfig, err)
	}
	return cfg, nil
}

// Load reads the environment and then applies command-line arguments on top.
// Flags not given on the command line keep their environment value.
func Load(name string, args []string) (Config, error) {
	cfg, err := NewConfig(env.Options{Prefix: EnvPrefix})
	if err != nil {
		return Config{}, err
	}
	if err := cfg.ParseArgs(name, args); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// FlagSet returns the command-line flags bound to c, with the current
// values of c as defaults. Usage and parse errors are written to out.
func (c *Config) FlagSet(name string, out io.Writer) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(out)
	fs.BoolVarP(&c.NoDelay, "nodelay", "n", c.NoDelay, "set TCP_NODELAY on both connections")
	fs.UintVarP(&c.KeepAlive, "keepalive", "k", c.KeepAlive, "keepalive interval in seconds, 0 disables keepalive")
	fs.IntVar(&c.MaxSessions, "max-sessions", c.MaxSessions, "maximum concurrent sessions, 0 is unbounded")
	fs.DurationVar(&c.DialTimeout, "dial-timeout", c.DialTimeout, "destination connect timeout, 0 uses the OS default")
	fs.DurationVar(&c.ShutdownTimeout, "shutdown-timeout", c.ShutdownTimeout, "time to wait for sessions to close on stop")
	fs.IntVar(&c.BufferSize, "buffer-size", c.BufferSize, "copy buffer size per direction in bytes")
	fs.StringVar(&c.MetricsAddr, "metrics-addr", c.MetricsAddr, "address serving /metrics and health endpoints, empty disables")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log level: debug, info, warn, error")
	fs.StringVar(&c.LogFormat, "log-format", c.LogFormat, "log format: text, json")
	fs.Usage = func() {
		fmt.Fprintf(out, "Usage: %s [flags] <source> <dest>\n\nFlags:\n%s", name, fs.FlagUsages())
	}
	return fs
}

// ParseArgs applies flags and the positional source and destination
// addresses. It returns pflag.ErrHelp when help was requested.
func (c *Config) ParseArgs(name string, args []string) error {
	return c.parseArgs(name, args, os.Stderr)
}

func (c *Config) parseArgs(name string, args []string, out io.Writer) error {
	fs := c.FlagSet(name, out)
	if err := fs.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return err
		}
		return perrors.Join(perrors.ErrInvalidConfig, err)
	}

	rest := fs.Args()
	if len(rest) > 2 {
		return fmt.Errorf("%w: unexpected arguments %v", perrors.ErrInvalidConfig, rest[2:])
	}
	if len(rest) > 0 {
		c.Source = rest[0]
	}
	if len(rest) > 1 {
		c.Destination = rest[1]
	}
	return nil
}

// Validate checks that the configuration can be used to start the forwarder.
func (c Config) Validate() error {
	if err := validateAddr("source", c.Source); err != nil {
		return err
	}
	if err := validateAddr("destination", c.Destination); err != nil {
		return err
	}
	if uint64(c.KeepAlive) > MaxKeepAlive {
		return fmt.Errorf("%w: keepalive must not exceed %d seconds", perrors.ErrInvalidConfig, MaxKeepAlive)
	}
	if c.MaxSessions < 0 {
		return fmt.Errorf("%w: max sessions must not be negative", perrors.ErrInvalidConfig)
	}
	if c.DialTimeout < 0 || c.ShutdownTimeout < 0 {
		return fmt.Errorf("%w: timeouts must not be negative", perrors.ErrInvalidConfig)
	}
	if c.BufferSize <= 0 {
		return fmt.Errorf("%w: buffer size must be positive", perrors.ErrInvalidConfig)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: unknown log level %q", perrors.ErrInvalidConfig, c.LogLevel)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("%w: unknown log format %q", perrors.ErrInvalidConfig, c.LogFormat)
	}
	return nil
}

func validateAddr(field, addr string) error {
	if addr == "" {
		return fmt.Errorf("%w: %s address is required", perrors.ErrInvalidConfig, field)
	}
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("%w: %s address %q: %w", perrors.ErrInvalidConfig, field, addr, err)
	}
	if _, err := strconv.ParseUint(port, 10, 16); err != nil {
		return fmt.Errorf("%w: %s port %q is not a number between 0 and 65535", perrors.ErrInvalidConfig, field, port)
	}
	return nil
}

// SocketOptions returns the options applied to both ends of every session.
func (c Config) SocketOptions() sockopt.Options {
	return sockopt.FromSeconds(c.NoDelay, c.KeepAlive)
}

// LogValue implements slog.LogValuer.
func (c Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("source", c.Source),
		slog.String("destination", c.Destination),
		slog.Bool("nodelay", c.NoDelay),
		slog.Uint64("keepalive", uint64(c.KeepAlive)),
		slog.Int("max_sessions", c.MaxSessions),
		slog.Duration("dial_timeout", c.DialTimeout),
		slog.Duration("shutdown_timeout", c.ShutdownTimeout),
		slog.Int("buffer_size", c.BufferSize),
		slog.String("metrics_addr", c.MetricsAddr),
		slog.String("log_level", c.LogLevel),
		slog.String("log_format", c.LogFormat),
	)
}
