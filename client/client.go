// Copyright (C) 2026 The mbus Authors. All Rights Reserved.

// Package client implements the subscribing side of a broadcast bus.
package client

import (
	"context"
	"expvar"
	"fmt"

	"github.com/arkbow/mbus"
	"github.com/arkbow/mbus/channel"
	"github.com/arkbow/mbus/endpoint"
	"github.com/rs/zerolog"
)

// A Handler processes one message delivered to a client. A Handler that
// reports an error stops the client.
type Handler[T any] func(context.Context, T) error

// A Client receives messages of type T from a server. A Client holds only
// configuration; each call to Run makes a new connection. A Client must be
// constructed with New.
type Client[T any] struct {
	addr  string
	codec mbus.Codec[T]
	log   zerolog.Logger
	cm    *clientMetrics
}

// New constructs a client for the endpoint at addr that decodes messages with
// codec. New does no I/O.
func New[T any](addr string, codec mbus.Codec[T]) *Client[T] {
	return &Client[T]{
		addr:  addr,
		codec: codec,
		log:   zerolog.Nop(),
		cm:    newClientMetrics(),
	}
}

// Logger sets the logger used to report client events. It must be called
// before Run. Logger returns c to permit chaining.
func (c *Client[T]) Logger(log zerolog.Logger) *Client[T] {
	c.log = log.With().Str("component", "client").Str("addr", c.addr).Logger()
	return c
}

// Addr reports the endpoint address of c.
func (c *Client[T]) Addr() string { return c.addr }

// Metrics returns a metrics map for the client.
func (c *Client[T]) Metrics() *expvar.Map { return c.cm.emap }

// Run connects to the server and delivers each message it sends to h, in
// arrival order, until the stream ends. See Consume for details.
//
// Run makes one connection attempt. If nothing is listening at the address,
// it fails immediately with an error of kind [mbus.KindTransport]. Run never
// reconnects; to resume after a failure, call Run again.
func (c *Client[T]) Run(ctx context.Context, h Handler[T]) error {
	conn, err := endpoint.Dial(ctx, c.addr)
	if err != nil {
		return err
	}
	c.log.Debug().Msg("connected")
	return c.Consume(ctx, channel.Net(conn), h)
}

// Consume delivers each message received on conn to h, and closes conn before
// returning. The handler for one message returns before the next frame is
// read, so at most one message is in flight to the application at a time.
//
// Consume returns nil when the server ends the stream or closes the
// connection. Otherwise, it stops at the first failure: a read failure is
// reported with kind [mbus.KindTransport], a message that cannot be decoded
// with kind [mbus.KindDecode], and a handler error with kind
// [mbus.KindHandler] wrapping the error from h. If ctx ends, Consume closes
// the connection and returns the error from ctx.
func (c *Client[T]) Consume(ctx context.Context, conn mbus.Conn, h Handler[T]) error {
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()
	defer conn.Close()

	for {
		f, err := conn.Recv()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			} else if mbus.KindOf(err) == mbus.KindDecode {
				c.cm.decodeFailed.Add(1)
				return c.fail(err)
			} else if mbus.IsClosed(err) {
				c.log.Debug().Msg("connection closed by server")
				return nil
			}
			return c.fail(mbus.TransportError("read", c.addr, err))
		}
		c.cm.frameRecv.Add(1)

		switch f.Type {
		case mbus.FrameData:
			// handled below
		case mbus.FrameEnd:
			c.log.Debug().Msg("stream ended by server")
			return nil
		default:
			c.cm.frameDropped.Add(1)
			continue
		}

		msg, err := c.codec.Decode(f.Payload)
		if err != nil {
			c.cm.decodeFailed.Add(1)
			return c.fail(&mbus.Error{Kind: mbus.KindDecode, Op: "decode", Addr: c.addr, Err: err})
		}
		if err := callHandler(ctx, h, msg); err != nil {
			c.cm.handlerFailed.Add(1)
			return c.fail(&mbus.Error{Kind: mbus.KindHandler, Op: "handle", Addr: c.addr, Err: err})
		}
		c.cm.msgDelivered.Add(1)
	}
}

func (c *Client[T]) fail(err error) error {
	c.log.Error().Err(err).Msg("client stopped")
	return err
}

// callHandler invokes h, converting a panic into an error.
func callHandler[T any](ctx context.Context, h Handler[T], msg T) (err error) {
	defer func() {
		if x := recover(); x != nil && err == nil {
			err = fmt.Errorf("handler panicked (recovered): %v", x)
		}
	}()
	return h(ctx, msg)
}
