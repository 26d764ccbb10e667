// Copyright (C) 2026 The mbus Authors. All Rights Reserved.

// Package channel provides implementations of the mbus.Conn interface.
package channel

import (
	"bufio"
	"io"
	"net"

	"github.com/arkbow/mbus"
)

// Direct constructs a connected pair of in-memory connections that pass frames
// directly without encoding into binary. Frames sent to A are received by B
// and vice versa. Sends are unbuffered, so a Send blocks until the other end
// receives it or closes.
func Direct() (A, B mbus.Conn) {
	a2b := make(chan *mbus.Frame)
	b2a := make(chan *mbus.Frame)
	adone := make(chan struct{})
	bdone := make(chan struct{})
	A = direct{out: a2b, in: b2a, done: adone, peer: bdone}
	B = direct{out: b2a, in: a2b, done: bdone, peer: adone}
	return
}

type direct struct {
	out  chan<- *mbus.Frame
	in   <-chan *mbus.Frame
	done chan struct{} // closed when this end is closed
	peer chan struct{} // closed when the other end is closed
}

// Send implements a method of the [mbus.Conn] interface.
func (d direct) Send(f *mbus.Frame) (err error) {
	defer safeClose(&err)
	if d.isClosed() {
		return net.ErrClosed
	}
	select {
	case <-d.done:
		return net.ErrClosed
	case <-d.peer:
		return io.ErrClosedPipe
	case d.out <- f:
		return nil
	}
}

// Recv implements a method of the [mbus.Conn] interface.
func (d direct) Recv() (*mbus.Frame, error) {
	if d.isClosed() {
		return nil, net.ErrClosed
	}
	select {
	case <-d.done:
		return nil, net.ErrClosed
	case f, ok := <-d.in:
		if !ok {
			return nil, io.EOF
		}
		return f, nil
	}
}

// Close implements a method of the [mbus.Conn] interface.
func (d direct) Close() (err error) {
	defer safeClose(&err)
	close(d.done)
	close(d.out)
	return nil
}

func (d direct) isClosed() bool {
	select {
	case <-d.done:
		return true
	default:
		return false
	}
}

func safeClose(err *error) {
	if x := recover(); x != nil && *err == nil {
		*err = net.ErrClosed
	}
}

// IO constructs a connection that receives from r and sends to wc.
func IO(r io.Reader, wc io.WriteCloser) IOConn {
	// N.B. The bufio package will reuse existing buffers if possible.
	return IOConn{r: bufio.NewReader(r), w: bufio.NewWriter(wc), c: wc}
}

// Net constructs a connection that sends and receives on conn.
func Net(conn net.Conn) IOConn { return IO(conn, conn) }

// An IOConn sends and receives frames on a reader and a writer.
type IOConn struct {
	r *bufio.Reader
	w *bufio.Writer
	c io.Closer
}

// Send implements a method of the [mbus.Conn] interface. The frame is
// buffered and flushed to the underlying writer as a whole.
func (c IOConn) Send(f *mbus.Frame) error {
	if _, err := f.WriteTo(c.w); err != nil {
		return err
	}
	return c.w.Flush()
}

// Recv implements a method of the [mbus.Conn] interface. It blocks until a
// complete frame has been read.
func (c IOConn) Recv() (*mbus.Frame, error) {
	var f mbus.Frame
	if _, err := f.ReadFrom(c.r); err != nil {
		return nil, err
	}
	return &f, nil
}

// Close implements a method of the [mbus.Conn] interface.
func (c IOConn) Close() error { return c.c.Close() }
