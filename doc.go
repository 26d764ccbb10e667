// Copyright (C) 2026 The mbus Authors. All Rights Reserved.

// Package mbus implements local one-to-many delivery of typed messages over a
// Unix domain stream socket.
//
// A single process owns the data source and runs a broadcast server at a
// well-known filesystem address. Any number of independent subscriber
// processes connect to that address and receive every message published after
// they connected, decoded into a caller-defined type and passed one at a time
// to a handler.
//
// # Servers
//
// The server package provides the publishing side. To create a server for
// messages of type T:
//
//	srv := server.New("/tmp/market.sock", 100, codec.Binary[model.Tick]())
//
// Publish messages through a [server.Sender], which may be obtained before or
// after the server starts, any number of times:
//
//	pub := srv.Sender()
//	n, err := pub.Send(tick) // n is the number of subscribers queued
//
// Sending never blocks. A subscriber that falls more than the channel capacity
// behind silently skips the oldest messages instead of stalling the publisher
// or the other subscribers. Messages sent while nobody is subscribed are
// dropped.
//
// Call Run to bind the address and serve until the context ends:
//
//	if err := srv.Run(ctx); err != nil {
//	   log.Fatalf("Server failed: %v", err)
//	}
//
// # Clients
//
// The client package provides the subscribing side:
//
//	cli := client.New("/tmp/market.sock", codec.Binary[model.Tick]())
//	err := cli.Run(ctx, func(ctx context.Context, t model.Tick) error {
//	   fmt.Println(t)
//	   return nil
//	})
//
// Run connects once and delivers messages in arrival order; the handler for one
// message returns before the next is read. Run returns nil when the server
// closes the stream, or an error if the connection, the codec, or the handler
// fails. Run never reconnects.
//
// # Wire Format
//
// Each message travels in one [Frame]: an 8-byte header (the bytes "MB", a
// version byte, a frame type, and a big-endian 32-bit payload length)
// followed by the encoded message. There is no schema tag; both ends must be
// configured with the same [Codec].
//
// # Errors
//
// Errors reported by Run have concrete type [*Error], and [KindOf] classifies
// them as transport, encode, decode, address-in-use, or handler failures.
// Nothing is retried internally.
package mbus
