// Package config loads airlink settings from YAML with AIRLINK_* environment
// overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Log      LogConfig      `yaml:"log"`
	Frames   FrameConfig    `yaml:"frames"`
	Link     LinkConfig     `yaml:"link"`
	HTTP     HTTPConfig     `yaml:"http"`
	Relay    RelayConfig    `yaml:"relay"`
	Sessions SessionsConfig `yaml:"sessions"`
	MCP      MCPConfig      `yaml:"mcp"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json or console
}

type FrameConfig struct {
	MaxMultiFrameSize  int           `yaml:"max_multi_frame_size"`
	MaxSingleFrameSize int           `yaml:"max_single_frame_size"`
	Interval           time.Duration `yaml:"interval"`
}

type LinkConfig struct {
	Scheme string `yaml:"scheme"`
}

type HTTPConfig struct {
	Addr           string  `yaml:"addr"`
	RateLimitRPS   float64 `yaml:"rate_limit_rps"`
	RateLimitBurst int     `yaml:"rate_limit_burst"`
}

type RelayConfig struct {
	// Addr is where serve and relay listen; empty disables the hub in serve.
	Addr string `yaml:"addr"`
	// URL is the hub sessions relay unhandled input to; empty disables relaying.
	URL        string `yaml:"url"`
	Channel    string `yaml:"channel"`
	MaxClients int    `yaml:"max_clients"`
	Announce   bool   `yaml:"announce"`
}

type SessionsConfig struct {
	IdleTTL time.Duration `yaml:"idle_ttl"`
}

type MCPConfig struct {
	Enabled bool `yaml:"enabled"`
}

func Default() Config {
	return Config{
		Log: LogConfig{Level: "info", Format: "console"},
		Frames: FrameConfig{
			MaxMultiFrameSize:  250,
			MaxSingleFrameSize: 1000,
			Interval:           200 * time.Millisecond,
		},
		Link: LinkConfig{Scheme: "airgap-wallet"},
		HTTP: HTTPConfig{Addr: ":8080", RateLimitRPS: 20, RateLimitBurst: 40},
		Relay: RelayConfig{
			Channel:    "default",
			MaxClients: 16,
		},
		Sessions: SessionsConfig{IdleTTL: 10 * time.Minute},
	}
}

// Load reads path over the defaults, then applies the environment. An empty
// path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	ApplyEnvOverrides(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	switch strings.ToLower(c.Log.Format) {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("log.format must be json or console, got %q", c.Log.Format))
	}
	if c.Frames.MaxMultiFrameSize < 1 {
		errs = append(errs, errors.New("frames.max_multi_frame_size must be positive"))
	}
	if c.Frames.MaxSingleFrameSize < 1 {
		errs = append(errs, errors.New("frames.max_single_frame_size must be positive"))
	}
	if c.Frames.Interval <= 0 {
		errs = append(errs, errors.New("frames.interval must be positive"))
	}
	if c.HTTP.RateLimitRPS < 0 || c.HTTP.RateLimitBurst < 0 {
		errs = append(errs, errors.New("http rate limits cannot be negative"))
	}
	if c.Relay.MaxClients < 1 {
		errs = append(errs, errors.New("relay.max_clients must be positive"))
	}
	if c.Sessions.IdleTTL < 0 {
		errs = append(errs, errors.New("sessions.idle_ttl cannot be negative"))
	}
	return errors.Join(errs...)
}
