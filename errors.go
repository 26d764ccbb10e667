// Copyright (C) 2026 The mbus Authors. All Rights Reserved.

package mbus

import (
	"errors"
	"fmt"
	"io"
	"net"
)

// ErrAddressInUse is reported when a live listener already owns an endpoint
// address. It is wrapped by an *Error with kind KindAddressInUse.
var ErrAddressInUse = errors.New("address already in use")

// Kind classifies the errors reported by servers and clients.
type Kind byte

const (
	KindUnknown      Kind = iota // not an error reported by this module
	KindTransport                // bind, accept, connect, read or write failure
	KindEncode                   // a message could not be encoded
	KindDecode                   // bytes could not be decoded into a message
	KindAddressInUse             // the endpoint is held, or a stale entry could not be removed
	KindHandler                  // the application handler reported failure
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindEncode:
		return "encode"
	case KindDecode:
		return "decode"
	case KindAddressInUse:
		return "address in use"
	case KindHandler:
		return "handler"
	default:
		return "unknown"
	}
}

// Error is the concrete type of errors reported by the Run methods of servers
// and clients. The Err field carries the underlying cause, which may be nil.
type Error struct {
	Kind Kind
	Op   string // the operation that failed, e.g., "bind", "connect", "read"
	Addr string // the endpoint address, if known
	Err  error
}

// Error satisfies the error interface.
func (e *Error) Error() string {
	msg := e.Kind.String() + " error"
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Addr != "" {
		msg += fmt.Sprintf(" [%s]", e.Addr)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap reports the underlying error of e.
func (e *Error) Unwrap() error { return e.Err }

// KindOf reports the kind of err. If err is nil, or does not wrap an *Error,
// KindOf returns KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// TransportError returns an error of kind KindTransport for op, unless err
// already carries a kind, in which case it is returned unchanged.
func TransportError(op, addr string, err error) error {
	if err == nil || KindOf(err) != KindUnknown {
		return err
	}
	return &Error{Kind: KindTransport, Op: op, Addr: addr, Err: err}
}

// IsClosed reports whether err indicates an orderly close of a connection,
// rather than a failure.
func IsClosed(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed)
}
