// Copyright (C) 2026 The mbus Authors. All Rights Reserved.

// Package server implements the publishing side of a broadcast bus.
//
// A [Server] owns a bounded broadcast channel and a listening endpoint. Each
// accepted subscriber connection gets its own subscription to the channel and
// its own forwarding task, so a slow or broken subscriber never stalls the
// publisher or the other subscribers.
package server

import (
	"bytes"
	"context"
	"errors"
	"expvar"
	"fmt"
	"net"

	"github.com/arkbow/mbus"
	"github.com/arkbow/mbus/broadcast"
	"github.com/arkbow/mbus/channel"
	"github.com/arkbow/mbus/endpoint"
	"github.com/creachadair/taskgroup"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// A Server forwards published messages of type T to every connected
// subscriber. A Server must be constructed with New.
type Server[T any] struct {
	addr  string
	codec mbus.Codec[T]
	ch    *broadcast.Channel[[]byte]
	log   zerolog.Logger
	sm    *serverMetrics
}

// New constructs a new unstarted server for the endpoint at addr, whose
// channel retains up to capacity unread messages per subscriber. New does no
// I/O. It panics if capacity <= 0.
func New[T any](addr string, capacity int, codec mbus.Codec[T]) *Server[T] {
	return &Server[T]{
		addr:  addr,
		codec: codec,
		ch:    broadcast.New[[]byte](capacity),
		log:   zerolog.Nop(),
		sm:    newServerMetrics(),
	}
}

// Logger sets the logger used to report server events. It must be called
// before the server starts. Logger returns s to permit chaining.
func (s *Server[T]) Logger(log zerolog.Logger) *Server[T] {
	s.log = log.With().Str("component", "server").Str("addr", s.addr).Logger()
	return s
}

// Addr reports the endpoint address of s.
func (s *Server[T]) Addr() string { return s.addr }

// Sender returns a handle that publishes messages to s. It may be called any
// number of times, before or after the server starts.
func (s *Server[T]) Sender() *Sender[T] { return &Sender[T]{s: s} }

// Subscribers reports the number of subscribers currently connected.
func (s *Server[T]) Subscribers() int { return s.ch.Receivers() }

// Metrics returns a metrics map for the server. It is safe for the caller to
// add additional metrics to the map while the server is active.
func (s *Server[T]) Metrics() *expvar.Map { return s.sm.emap }

// Close closes the channel of s. Forwarding tasks deliver the messages they
// have already been given, tell their subscribers the stream has ended, and
// exit. Subsequent sends report an error. Close does not stop the accept loop;
// cancel the context passed to Run or Serve for that.
func (s *Server[T]) Close() error { return s.ch.Close() }

// Run binds the endpoint address of s and serves subscribers until ctx ends
// or accepting a connection fails.
//
// Run removes a stale entry at the address, but fails with an error of kind
// [mbus.KindAddressInUse] if another listener is live there. When ctx ends,
// Run stops all forwarding tasks, waits for them to exit, and returns nil.
func (s *Server[T]) Run(ctx context.Context) error {
	lst, err := endpoint.Listen(s.addr)
	if err != nil {
		return err
	}
	defer lst.Close()
	s.log.Info().Int("capacity", s.ch.Cap()).Msg("broadcast server listening")
	return s.Serve(ctx, NetAccepter(lst))
}

// Serve accepts connections from acc and starts a forwarding task for each
// one, until ctx ends or acc fails. Each connection is subscribed to the
// channel as soon as it is accepted, so it receives exactly the messages sent
// after that point.
//
// When ctx ends, all forwarding tasks are stopped. When acc closes, Serve
// stops the forwarding tasks started by this call. In both cases Serve waits
// for them to exit before returning nil. Any other accept failure is reported
// with kind [mbus.KindTransport].
func (s *Server[T]) Serve(ctx context.Context, acc Accepter) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g := taskgroup.New(nil)
	for {
		conn, err := acc.Accept(ctx)
		if err != nil {
			stopped := ctx.Err() != nil
			cancel()
			g.Wait()
			if stopped || errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.log.Error().Err(err).Msg("accept failed")
			return mbus.TransportError("accept", s.addr, err)
		}
		rx := s.ch.Subscribe()
		g.Go(func() error {
			s.forward(ctx, conn, rx)
			return nil
		})
	}
}

// forward runs the forwarding task for one subscriber. It owns conn and rx,
// and closes both before returning.
func (s *Server[T]) forward(ctx context.Context, conn mbus.Conn, rx *broadcast.Receiver[[]byte]) {
	log := s.log.With().Str("subscriber", uuid.NewString()).Logger()
	s.sm.subActive.Add(1)
	s.sm.subTotal.Add(1)
	log.Debug().Msg("subscriber connected")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Subscribers do not send, so any result from Recv means the peer has
	// hung up. Noticing this promptly releases the subscription even if no
	// messages are being published.
	hangup := make(chan struct{})
	go func() {
		defer close(hangup)
		defer cancel()
		for {
			if _, err := conn.Recv(); err != nil {
				return
			}
		}
	}()

	// A pending Send does not observe ctx, so closing the connection is what
	// unblocks it on shutdown.
	stop := context.AfterFunc(ctx, func() { conn.Close() })

	err := s.pump(ctx, conn, rx, log)

	stop()
	conn.Close()
	<-hangup
	rx.Close()
	s.sm.subActive.Add(-1)

	if err != nil && ctx.Err() == nil {
		s.sm.sendFailed.Add(1)
		log.Error().Err(err).Msg("forwarding failed")
	} else {
		log.Debug().Msg("subscriber disconnected")
	}
}

// pump copies messages from rx to conn until rx closes, ctx ends, or a send
// fails. Only a send failure is reported as an error.
func (s *Server[T]) pump(ctx context.Context, conn mbus.Conn, rx *broadcast.Receiver[[]byte], log zerolog.Logger) error {
	for {
		data, err := rx.Recv(ctx)
		var lag *broadcast.LaggedError
		switch {
		case errors.As(err, &lag):
			// Skip ahead without failing the subscriber.
			s.sm.lagEvents.Add(1)
			s.sm.msgSkipped.Add(int64(lag.Skipped))
			log.Warn().Uint64("skipped", lag.Skipped).Msg("subscriber lagged")
			continue

		case errors.Is(err, broadcast.ErrClosed):
			conn.Send(&mbus.Frame{Type: mbus.FrameEnd}) // best effort
			return nil

		case err != nil:
			return nil // ctx ended
		}

		if err := conn.Send(mbus.DataFrame(data)); err != nil {
			return fmt.Errorf("send: %w", err)
		}
		s.sm.framesSent.Add(1)
	}
}

// A Sender publishes messages to the subscribers of a server.
// It is safe for concurrent use by multiple goroutines.
type Sender[T any] struct {
	s *Server[T]
}

// Send encodes v and enqueues it for every subscriber currently connected,
// and reports how many there were. Send never blocks waiting for subscribers.
//
// If no subscriber is connected, v is dropped and Send returns 0 without
// error. If v cannot be encoded, Send reports an error of kind
// [mbus.KindEncode]. After the server is closed, Send reports an error of
// kind [mbus.KindTransport] wrapping [broadcast.ErrClosed].
func (p *Sender[T]) Send(v T) (int, error) {
	s := p.s
	data, err := s.codec.Encode(v)
	if err == nil && len(data) > mbus.MaxPayload {
		err = fmt.Errorf("encoded message too long (%d > %d bytes)", len(data), mbus.MaxPayload)
	}
	if err != nil {
		s.sm.encodeFailed.Add(1)
		return 0, &mbus.Error{Kind: mbus.KindEncode, Op: "send", Addr: s.addr, Err: err}
	}
	// The codec may return a buffer the caller still owns. Forwarding tasks
	// write it after Send returns, so the channel must hold its own copy.
	n, err := s.ch.Send(bytes.Clone(data))
	if err != nil {
		return 0, mbus.TransportError("send", s.addr, err)
	}
	s.sm.msgSent.Add(1)
	if n == 0 {
		s.sm.msgUnrouted.Add(1)
	}
	return n, nil
}

// An Accepter accepts subscriber connections.
type Accepter interface {
	// Accept blocks until a connection is available or ctx ends.
	Accept(context.Context) (mbus.Conn, error)
}

// NetAccepter adapts a net.Listener to the Accepter interface. Accepted
// connections exchange frames in binary format.
func NetAccepter(lst net.Listener) Accepter {
	return netAccepter{Listener: lst}
}

type netAccepter struct {
	net.Listener
}

func (n netAccepter) Accept(ctx context.Context) (mbus.Conn, error) {
	// A net.Listener does not obey a context, so simulate it by closing the
	// listener if ctx ends. The ok channel allows the context watcher to clean
	// up when we return before ctx ends.
	ok := make(chan struct{})
	defer close(ok)
	taskgroup.Go(func() error {
		select {
		case <-ctx.Done():
			n.Listener.Close()
		case <-ok:
			// release the waiter
		}
		return nil
	})

	conn, err := n.Listener.Accept()
	if err != nil {
		return nil, err
	}
	return channel.Net(conn), nil
}
