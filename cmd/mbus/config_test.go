// Copyright (C) 2026 The mbus Authors. All Rights Reserved.

package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/arkbow/mbus/codec"
	"github.com/arkbow/mbus/model"
	"github.com/google/go-cmp/cmp"
)

func writeConfig(t *testing.T, text string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(text), 0o600); err != nil {
		t.Fatalf("Write config: %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	noEnv := map[string]string{}

	t.Run("Defaults", func(t *testing.T) {
		missing := filepath.Join(t.TempDir(), "nonesuch.toml")
		cfg, err := loadConfig(missing, false, noEnv)
		if err != nil {
			t.Fatalf("loadConfig: unexpected error: %v", err)
		}
		if diff := cmp.Diff(defaultConfig(), cfg); diff != "" {
			t.Errorf("Config (-want, +got):\n%s", diff)
		}
		if err := cfg.check(); err != nil {
			t.Errorf("Default config is invalid: %v", err)
		}
	})

	t.Run("MissingExplicit", func(t *testing.T) {
		missing := filepath.Join(t.TempDir(), "nonesuch.toml")
		if _, err := loadConfig(missing, true, noEnv); !errors.Is(err, os.ErrNotExist) {
			t.Errorf("loadConfig: got %v, want %v", err, os.ErrNotExist)
		}
	})

	t.Run("Layers", func(t *testing.T) {
		path := writeConfig(t, `
addr = "/run/mbus/file.sock"
capacity = 8
kind = "position"
interval = "2s"
symbols = ["SOL/USDC"]

[retry]
initial = "1s"
max = "1m"
`)
		cfg, err := loadConfig(path, true, map[string]string{
			"MBUS_CAPACITY": "32",
			"MBUS_SYMBOLS":  "BTC/USD,ETH/USD",
			"MBUS_DEBUG":    "true",
			"OTHER_ADDR":    "/ignored",
		})
		if err != nil {
			t.Fatalf("loadConfig: unexpected error: %v", err)
		}
		want := Config{
			Addr:         "/run/mbus/file.sock", // from file
			Capacity:     32,                    // environment overrides file
			Kind:         "position",
			Interval:     2 * time.Second,
			Symbols:      []string{"BTC/USD", "ETH/USD"},
			Debug:        true,
			RetryInitial: time.Second,
			RetryMax:     time.Minute,
		}
		if diff := cmp.Diff(want, cfg); diff != "" {
			t.Errorf("Config (-want, +got):\n%s", diff)
		}
	})

	t.Run("BadFile", func(t *testing.T) {
		for _, text := range []string{
			`addr = `,
			`interval = "soon"`,
			`capacity = "many"`,
		} {
			if cfg, err := loadConfig(writeConfig(t, text), true, noEnv); err == nil {
				t.Errorf("loadConfig %q: got %+v, want error", text, cfg)
			}
		}
	})

	t.Run("BadEnv", func(t *testing.T) {
		if _, err := loadConfig("", false, map[string]string{"MBUS_INTERVAL": "soon"}); err == nil {
			t.Error("loadConfig: got nil, want error")
		}
	})
}

func TestCheck(t *testing.T) {
	for _, tc := range []struct {
		name string
		edit func(*Config)
	}{
		{"NoAddr", func(c *Config) { c.Addr = "" }},
		{"Capacity", func(c *Config) { c.Capacity = 0 }},
		{"Kind", func(c *Config) { c.Kind = "trade" }},
		{"Interval", func(c *Config) { c.Interval = -time.Second }},
		{"Symbols", func(c *Config) { c.Symbols = nil }},
		{"Retry", func(c *Config) { c.RetryMax = c.RetryInitial / 2 }},
	} {
		t.Run(tc.name, func(t *testing.T) {
			cfg := defaultConfig()
			tc.edit(&cfg)
			if err := cfg.check(); err == nil {
				t.Errorf("check %+v: got nil, want error", cfg)
			}
		})
	}
}

func TestBackoff(t *testing.T) {
	b := newBackoff(100*time.Millisecond, time.Second)
	within := func(d, base time.Duration) bool {
		lo, hi := base*8/10, base*12/10
		return d >= lo && d <= hi
	}
	for _, base := range []time.Duration{
		100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond,
		800 * time.Millisecond, time.Second, time.Second,
	} {
		if d := b.next(); !within(d, base) {
			t.Errorf("next: got %v, want %v ±20%%", d, base)
		}
	}
	b.reset()
	if d := b.next(); !within(d, 100*time.Millisecond) {
		t.Errorf("next after reset: got %v, want 100ms ±20%%", d)
	}

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	slow := newBackoff(time.Hour, time.Hour)
	if err := slow.wait(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("wait: got %v, want %v", err, context.Canceled)
	}
}

func TestMarket(t *testing.T) {
	m := newMarket([]string{"SOL/USDC", "BTC"}, 1)
	now := time.Now()

	// Ticks rotate through the symbols.
	var syms []string
	for range 4 {
		syms = append(syms, m.tick(now).Symbol)
	}
	if diff := cmp.Diff([]string{"SOL/USDC", "BTC", "SOL/USDC", "BTC"}, syms); diff != "" {
		t.Errorf("Tick symbols (-want, +got):\n%s", diff)
	}

	pc := codec.Binary[model.Position]()
	for range 4 {
		p := m.position(now)
		if len(p.Bins) != demoBins {
			t.Errorf("Position %s: got %d bins, want %d", p.Pair(), len(p.Bins), demoBins)
		}
		for _, b := range p.Bins {
			if b.BinID > p.ActiveBinID && b.SymbolYAmount != 0 {
				t.Errorf("Bin %d above active bin %d holds Y", b.BinID, p.ActiveBinID)
			}
			if b.BinID < p.ActiveBinID && b.SymbolXAmount != 0 {
				t.Errorf("Bin %d below active bin %d holds X", b.BinID, p.ActiveBinID)
			}
		}
		data, err := pc.Encode(p)
		if err != nil {
			t.Fatalf("Encode: %v", err)
		}
		if got, err := pc.Decode(data); err != nil {
			t.Errorf("Decode: %v", err)
		} else if diff := cmp.Diff(p, got); diff != "" {
			t.Errorf("Position (-want, +got):\n%s", diff)
		}
	}
}
