// Copyright (C) 2026 The mbus Authors. All Rights Reserved.

// Program mbus publishes and watches market records on a local broadcast bus.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/arkbow/mbus"
	"github.com/arkbow/mbus/client"
	"github.com/arkbow/mbus/codec"
	"github.com/arkbow/mbus/endpoint"
	"github.com/arkbow/mbus/model"
	"github.com/arkbow/mbus/server"
	"github.com/creachadair/command"
	"github.com/creachadair/flax"
	"github.com/creachadair/mds/value"
	"github.com/creachadair/taskgroup"
	"github.com/rs/zerolog"
)

var flags struct {
	Config string `flag:"config,Configuration file path (default ~/.mbus/config.toml)"`
	Addr   string `flag:"addr,Endpoint address"`
	Kind   string `flag:"kind,Record kind: tick or position"`
	Debug  bool   `flag:"debug,Enable debug logging"`
}

var serveFlags struct {
	Capacity int           `flag:"capacity,Messages retained per subscriber"`
	Interval time.Duration `flag:"interval,Publishing interval"`
}

var watchFlags struct {
	Wait  bool `flag:"wait,Wait for the endpoint to appear before connecting"`
	Retry bool `flag:"retry,Reconnect with backoff when the connection fails or ends"`
}

func main() {
	root := &command.C{
		Name: filepath.Base(os.Args[0]),
		Help: `Publish and watch market records on a local broadcast bus.

Settings are read from a TOML config file (default ~/.mbus/config.toml),
then from MBUS_* environment variables, then from flags. Later sources
override earlier ones.`,
		SetFlags: bindFlags(&flags),
		Commands: []*command.C{
			{
				Name: "serve",
				Help: `Publish synthetic records to every subscriber.

The server binds the endpoint address, replacing a stale entry but refusing
to displace a live server, and publishes one record per interval until
interrupted. Subscribers that fall behind by more than the capacity lose the
oldest records.`,
				SetFlags: bindFlags(&serveFlags),
				Run:      runServe,
			},
			{
				Name: "watch",
				Help: `Subscribe to a server and print each record received.

Without --retry, watch exits when the server ends the stream, and fails at
once if no server is listening.`,
				SetFlags: bindFlags(&watchFlags),
				Run:      runWatch,
			},
			command.VersionCommand(),
			command.HelpCommand(nil),
		},
	}
	command.RunOrFail(root.NewEnv(nil).MergeFlags(true), os.Args[1:])
}

func bindFlags(v any) func(*command.Env, *flag.FlagSet) {
	return func(_ *command.Env, fs *flag.FlagSet) { flax.MustBind(fs, v) }
}

// setup loads the effective configuration and constructs a logger.
func setup(env *command.Env) (Config, zerolog.Logger, error) {
	if len(env.Args) != 0 {
		return Config{}, zerolog.Nop(), env.Usagef("extra arguments: %q", env.Args)
	}
	path, explicit := flags.Config, flags.Config != ""
	if !explicit {
		path = defaultConfigPath()
	}
	cfg, err := loadConfig(path, explicit, nil)
	if err != nil {
		return cfg, zerolog.Nop(), err
	}
	applyFlags(&cfg)
	if err := cfg.check(); err != nil {
		return cfg, zerolog.Nop(), err
	}
	return cfg, newLogger(cfg.Debug), nil
}

// applyFlags overrides cfg with the flags set to non-zero values.
func applyFlags(cfg *Config) {
	if flags.Addr != "" {
		cfg.Addr = flags.Addr
	}
	if flags.Kind != "" {
		cfg.Kind = flags.Kind
	}
	if flags.Debug {
		cfg.Debug = true
	}
	if serveFlags.Capacity != 0 {
		cfg.Capacity = serveFlags.Capacity
	}
	if serveFlags.Interval != 0 {
		cfg.Interval = serveFlags.Interval
	}
}

func newLogger(debug bool) zerolog.Logger {
	output := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
	}
	return zerolog.New(output).
		Level(value.Cond(debug, zerolog.DebugLevel, zerolog.InfoLevel)).
		With().Timestamp().Logger()
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runServe(env *command.Env) error {
	cfg, log, err := setup(env)
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	m := newMarket(cfg.Symbols, uint64(time.Now().UnixNano()))
	if cfg.Kind == "position" {
		return publish(ctx, cfg, log, codec.Binary[model.Position](), m.position)
	}
	return publish(ctx, cfg, log, codec.Binary[model.Tick](), m.tick)
}

// publish runs a server at the configured address and sends one value from
// gen per interval, until ctx ends or the server fails.
func publish[T any](ctx context.Context, cfg Config, log zerolog.Logger, c mbus.Codec[T], gen func(time.Time) T) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s := server.New(cfg.Addr, cfg.Capacity, c).Logger(log)
	g := taskgroup.New(cancel)
	g.Go(func() error { return s.Run(ctx) })
	g.Go(func() error {
		defer s.Close()
		tx := s.Sender()
		t := time.NewTicker(cfg.Interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case now := <-t.C:
				n, err := tx.Send(gen(now))
				if err != nil {
					return err
				}
				log.Debug().Int("subscribers", n).Msg("published")
			}
		}
	})
	err := g.Wait()
	log.Info().Str("metrics", s.Metrics().String()).Msg("server stopped")
	return err
}

func runWatch(env *command.Env) error {
	cfg, log, err := setup(env)
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	if cfg.Kind == "position" {
		return watch(ctx, cfg, log, codec.Binary[model.Position](), printPosition)
	}
	return watch(ctx, cfg, log, codec.Binary[model.Tick](), printTick)
}

// watch subscribes to the configured address and passes each value received
// to show, until ctx ends or the stream fails. With --retry, a transport
// failure or the end of the stream causes a reconnect after a backoff.
func watch[T any](ctx context.Context, cfg Config, log zerolog.Logger, c mbus.Codec[T], show func(T)) error {
	if watchFlags.Wait {
		log.Info().Str("addr", cfg.Addr).Msg("waiting for endpoint")
		if err := endpoint.Wait(ctx, cfg.Addr); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}

	cli := client.New(cfg.Addr, c).Logger(log)
	h := func(_ context.Context, v T) error {
		show(v)
		return nil
	}
	bo := newBackoff(cfg.RetryInitial, cfg.RetryMax)
	for {
		err := cli.Run(ctx, h)
		if ctx.Err() != nil {
			return nil
		} else if !watchFlags.Retry {
			return err
		}

		if err == nil {
			log.Info().Msg("stream ended")
			bo.reset()
		} else if mbus.KindOf(err) != mbus.KindTransport {
			return err
		} else {
			log.Warn().Err(err).Msg("connection failed")
		}
		if bo.wait(ctx) != nil {
			return nil
		}
	}
}

func printTick(t model.Tick) {
	fmt.Printf("%s %-10s %14.4f latency=%v\n",
		t.Time().Format(time.RFC3339Nano), t.Symbol, t.Price, t.Latency(time.Now()).Round(time.Microsecond))
}

func printPosition(p model.Position) {
	fmt.Printf("%-10s price=%.4f active=%d bins=%d %s=%.4f %s=%.4f fees=%.6f/%.6f\n",
		p.Pair(), p.CurrentPrice, p.ActiveBinID, len(p.Bins),
		p.SymbolX, p.TotalXDecimal(), p.SymbolY, p.TotalYDecimal(),
		p.TotalFeeXDecimal(), p.TotalFeeYDecimal())
}
