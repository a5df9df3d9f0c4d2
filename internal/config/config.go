// Package config loads the configuration of a lockstep node from YAML or
// CUE files.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Config is the configuration of one lockstep node.
type Config struct {
	// MinHorizon is the number of batches every peer must buffer before a
	// tick is released.
	MinHorizon int `yaml:"min_horizon" json:"min_horizon"`

	// PreferredHorizon bounds the inactive batches retained per peer. Nil
	// follows MinHorizon.
	PreferredHorizon *int `yaml:"preferred_horizon,omitempty" json:"preferred_horizon,omitempty"`

	// TimeStep is the duration of one simulation frame.
	TimeStep Duration `yaml:"time_step" json:"time_step"`

	DialTimeout     Duration `yaml:"dial_timeout" json:"dial_timeout"`
	RetryBackoff    Duration `yaml:"retry_backoff" json:"retry_backoff"`
	RetryBackoffMax Duration `yaml:"retry_backoff_max" json:"retry_backoff_max"`
	WriteTimeout    Duration `yaml:"write_timeout" json:"write_timeout"`

	// ListenHost is the host services listen on. Empty listens on all
	// interfaces.
	ListenHost string `yaml:"listen_host" json:"listen_host"`

	Services []Service `yaml:"services" json:"services"`
	Peers    []Peer    `yaml:"peers" json:"peers"`

	// Journal is the SQLite tick journal path. Empty disables recording.
	Journal string `yaml:"journal" json:"journal"`

	// StatusAddr is the listen address of the HTTP status endpoint. Empty
	// disables it.
	StatusAddr string `yaml:"status_addr" json:"status_addr"`

	LogLevel string `yaml:"log_level" json:"log_level"`
}

// Service is a service to open.
type Service struct {
	Name string `yaml:"name" json:"name"`
	Port int    `yaml:"port" json:"port"`
}

// Peer is a remote service to connect to.
type Peer struct {
	Host string `yaml:"host" json:"host"`
	Port int    `yaml:"port" json:"port"`
}

// Default returns the configuration used for every field a file omits.
func Default() Config {
	return Config{
		MinHorizon:      1,
		TimeStep:        Duration(15 * time.Millisecond),
		DialTimeout:     Duration(2 * time.Second),
		RetryBackoffMax: Duration(5 * time.Second),
		WriteTimeout:    Duration(time.Second),
		LogLevel:        "info",
	}
}

// EffectivePreferredHorizon returns PreferredHorizon, or MinHorizon when it
// is unset.
func (c Config) EffectivePreferredHorizon() int {
	if c.PreferredHorizon != nil {
		return *c.PreferredHorizon
	}
	return c.MinHorizon
}

// Level returns the slog level named by LogLevel.
func (c Config) Level() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Validate reports every problem with the configuration.
func (c Config) Validate() error {
	var errs []error

	if c.MinHorizon < 1 {
		errs = append(errs, fmt.Errorf("min_horizon must be at least 1, got %d", c.MinHorizon))
	}
	if c.PreferredHorizon != nil && *c.PreferredHorizon < 0 {
		errs = append(errs, fmt.Errorf("preferred_horizon must not be negative, got %d", *c.PreferredHorizon))
	}
	if c.TimeStep <= 0 {
		errs = append(errs, fmt.Errorf("time_step must be positive, got %s", c.TimeStep))
	}
	if c.DialTimeout < 0 || c.RetryBackoff < 0 || c.WriteTimeout < 0 {
		errs = append(errs, errors.New("timeouts must not be negative"))
	}
	if c.RetryBackoffMax < c.RetryBackoff {
		errs = append(errs, fmt.Errorf("retry_backoff_max %s is below retry_backoff %s", c.RetryBackoffMax, c.RetryBackoff))
	}

	switch strings.ToLower(c.LogLevel) {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log_level %q is not one of debug, info, warn, error", c.LogLevel))
	}

	seen := make(map[string]bool, len(c.Services))
	for i, s := range c.Services {
		if s.Name == "" {
			errs = append(errs, fmt.Errorf("services[%d]: name is required", i))
		} else if seen[s.Name] {
			errs = append(errs, fmt.Errorf("services[%d]: duplicate name %q", i, s.Name))
		}
		seen[s.Name] = true
		if s.Port < 0 || s.Port > 65535 {
			errs = append(errs, fmt.Errorf("services[%d]: port %d out of range", i, s.Port))
		}
	}

	for i, p := range c.Peers {
		if p.Host == "" {
			errs = append(errs, fmt.Errorf("peers[%d]: host is required", i))
		}
		if p.Port < 1 || p.Port > 65535 {
			errs = append(errs, fmt.Errorf("peers[%d]: port %d out of range", i, p.Port))
		}
	}

	return errors.Join(errs...)
}
