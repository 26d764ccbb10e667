// Copyright (C) 2026 The mbus Authors. All Rights Reserved.

package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	toml "github.com/pelletier/go-toml/v2"
)

// Config is the effective configuration of the command-line tool.
// Values are layered: defaults, then the config file, then MBUS_* environment
// variables, then command-line flags.
type Config struct {
	Addr     string        `env:"ADDR"`
	Capacity int           `env:"CAPACITY"`
	Kind     string        `env:"KIND"` // "tick" or "position"
	Interval time.Duration `env:"INTERVAL"`
	Symbols  []string      `env:"SYMBOLS" envSeparator:","`
	Debug    bool          `env:"DEBUG"`

	RetryInitial time.Duration `env:"RETRY_INITIAL"`
	RetryMax     time.Duration `env:"RETRY_MAX"`
}

// FileConfig mirrors Config but uses strings for durations to make TOML friendly.
type FileConfig struct {
	Addr     string   `toml:"addr"`
	Capacity int      `toml:"capacity"`
	Kind     string   `toml:"kind"`
	Interval string   `toml:"interval"`
	Symbols  []string `toml:"symbols"`
	Debug    *bool    `toml:"debug"`

	Retry struct {
		Initial string `toml:"initial"`
		Max     string `toml:"max"`
	} `toml:"retry"`
}

func defaultConfig() Config {
	return Config{
		Addr:         filepath.Join(os.TempDir(), "mbus.sock"),
		Capacity:     64,
		Kind:         "tick",
		Interval:     500 * time.Millisecond,
		Symbols:      []string{"SOL/USDC", "BTC/USD", "ETH/USD"},
		RetryInitial: 250 * time.Millisecond,
		RetryMax:     10 * time.Second,
	}
}

// defaultConfigPath returns the default configuration file path.
// Returns ~/.mbus/config.toml if user home directory is accessible.
func defaultConfigPath() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".mbus", "config.toml")
	}
	return ""
}

// loadFileConfig reads and parses a TOML config file from the given path.
func loadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := toml.Unmarshal(b, &fc); err != nil {
		return fc, err
	}
	return fc, nil
}

// apply merges the non-empty settings of fc into cfg.
func (fc FileConfig) apply(cfg *Config) error {
	if fc.Addr != "" {
		cfg.Addr = fc.Addr
	}
	if fc.Capacity != 0 {
		cfg.Capacity = fc.Capacity
	}
	if fc.Kind != "" {
		cfg.Kind = fc.Kind
	}
	if len(fc.Symbols) != 0 {
		cfg.Symbols = fc.Symbols
	}
	if fc.Debug != nil {
		cfg.Debug = *fc.Debug
	}
	for _, d := range []struct {
		name string
		in   string
		out  *time.Duration
	}{
		{"interval", fc.Interval, &cfg.Interval},
		{"retry.initial", fc.Retry.Initial, &cfg.RetryInitial},
		{"retry.max", fc.Retry.Max, &cfg.RetryMax},
	} {
		if d.in == "" {
			continue
		}
		v, err := time.ParseDuration(d.in)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", d.name, err)
		}
		*d.out = v
	}
	return nil
}

// loadConfig returns the defaults overlaid by the config file at path and the
// MBUS_* variables of environ. If environ is nil, the process environment is
// used. A missing file is not an error unless explicit is true.
func loadConfig(path string, explicit bool, environ map[string]string) (Config, error) {
	cfg := defaultConfig()
	if path != "" {
		fc, err := loadFileConfig(path)
		if err == nil {
			if err := fc.apply(&cfg); err != nil {
				return cfg, fmt.Errorf("config %s: %w", path, err)
			}
		} else if explicit || !errors.Is(err, fs.ErrNotExist) {
			return cfg, fmt.Errorf("load config: %w", err)
		}
	}
	if err := env.ParseWithOptions(&cfg, env.Options{
		Prefix:      "MBUS_",
		Environment: environ,
	}); err != nil {
		return cfg, fmt.Errorf("environment: %w", err)
	}
	return cfg, cfg.check()
}

func (c Config) check() error {
	switch {
	case c.Addr == "":
		return errors.New("no endpoint address")
	case c.Capacity <= 0:
		return fmt.Errorf("invalid capacity %d", c.Capacity)
	case c.Kind != "tick" && c.Kind != "position":
		return fmt.Errorf("unknown record kind %q", c.Kind)
	case c.Interval <= 0:
		return fmt.Errorf("invalid interval %v", c.Interval)
	case len(c.Symbols) == 0:
		return errors.New("no symbols")
	case c.RetryInitial <= 0 || c.RetryMax < c.RetryInitial:
		return fmt.Errorf("invalid retry range [%v, %v]", c.RetryInitial, c.RetryMax)
	}
	return nil
}
