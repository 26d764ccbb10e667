// Copyright (C) 2026 The mbus Authors. All Rights Reserved.

package mbus

// A Conn is a reliable ordered stream of frames between a server and one
// subscriber.
//
// The methods of an implementation must be safe for concurrent use by one
// sender and one receiver, and Close must be safe to call concurrently with
// either of them.
type Conn interface {
	// Send the frame in binary format to the receiver, in one operation.
	Send(*Frame) error

	// Receive the next available frame from the connection.
	Recv() (*Frame, error)

	// Close the connection, causing any pending send or receive operations to
	// terminate and report an error. After a connection is closed, all further
	// operations on it must report an error.
	Close() error
}

// A Codec encodes and decodes values of a message type T. Both ends of a
// connection must agree on the codec out of band; no type information is
// sent on the wire.
//
// Encode and Decode must be deterministic and free of side effects, and for
// every value v the application publishes, Decode(Encode(v)) must yield a
// value equal to v.
type Codec[T any] interface {
	Encode(T) ([]byte, error)
	Decode([]byte) (T, error)
}
