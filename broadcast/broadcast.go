// Copyright (C) 2026 The mbus Authors. All Rights Reserved.

// Package broadcast implements a bounded multi-producer, multi-consumer
// broadcast channel.
//
// Every value sent on a [Channel] is delivered to each [Receiver] subscribed
// at the time of the send, in send order. The channel retains at most
// capacity values. A receiver that falls further behind than that does not
// block the sender: the oldest values are overwritten, and the receiver's next
// Recv reports a [*LaggedError] with the number of values it missed, after
// which it resumes from the oldest value still retained.
//
//	ch := broadcast.New[string](2)
//	rx := ch.Subscribe()
//	for _, s := range []string{"A", "B", "C", "D"} {
//	   ch.Send(s)
//	}
//	rx.Recv(ctx) // *LaggedError{Skipped: 2}
//	rx.Recv(ctx) // "C"
//	rx.Recv(ctx) // "D"
package broadcast

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrClosed is reported by Send after the channel is closed, and by Recv
	// once a receiver has consumed every value sent before the close.
	ErrClosed = errors.New("broadcast channel closed")

	// ErrEmpty is reported by TryRecv when no value is available.
	ErrEmpty = errors.New("broadcast channel empty")
)

// LaggedError is reported by Recv when the receiver missed values because it
// fell more than the channel capacity behind.
type LaggedError struct {
	Skipped uint64 // the number of values the receiver missed
}

func (e *LaggedError) Error() string {
	return fmt.Sprintf("receiver lagged: %d values skipped", e.Skipped)
}

// A Channel is a bounded broadcast channel. It is safe for concurrent use by
// multiple goroutines. A Channel must be constructed with New.
//
// Sent values stay in the ring until a later send overwrites them, or until
// the last open receiver is closed.
type Channel[T any] struct {
	μ sync.Mutex

	buf    []T           // ring of retained values, indexed by seq % len(buf)
	next   uint64        // sequence number of the next value sent
	nrecv  int           // number of open receivers
	closed bool          // whether Close has been called
	wake   chan struct{} // closed and replaced on each send or close
}

// New constructs a new empty channel that retains up to capacity values.
// It panics if capacity <= 0.
func New[T any](capacity int) *Channel[T] {
	if capacity <= 0 {
		panic(fmt.Sprintf("invalid channel capacity %d", capacity))
	}
	return &Channel[T]{
		buf:  make([]T, capacity),
		wake: make(chan struct{}),
	}
}

// Cap reports the capacity of c.
func (c *Channel[T]) Cap() int { return len(c.buf) }

// Send sends v to every receiver currently subscribed to c, and reports how
// many there were. Send never blocks. If there are no receivers, v is
// discarded and Send returns 0 without error. After c is closed, Send reports
// ErrClosed.
func (c *Channel[T]) Send(v T) (int, error) {
	c.μ.Lock()
	defer c.μ.Unlock()
	if c.closed {
		return 0, ErrClosed
	} else if c.nrecv == 0 {
		return 0, nil
	}
	c.buf[c.next%uint64(len(c.buf))] = v
	c.next++
	c.wakeLocked()
	return c.nrecv, nil
}

// Subscribe returns a new receiver for c. The receiver sees only values sent
// after Subscribe returns. Subscribing to a closed channel returns a receiver
// whose Recv reports ErrClosed.
func (c *Channel[T]) Subscribe() *Receiver[T] {
	c.μ.Lock()
	defer c.μ.Unlock()
	if !c.closed {
		c.nrecv++
	}
	return &Receiver[T]{c: c, pos: c.next, done: c.closed}
}

// Receivers reports the number of open receivers subscribed to c.
func (c *Channel[T]) Receivers() int {
	c.μ.Lock()
	defer c.μ.Unlock()
	return c.nrecv
}

// Close closes c. Receivers may still consume values retained at the time of
// the close, after which they report ErrClosed. Close is idempotent and always
// returns nil.
func (c *Channel[T]) Close() error {
	c.μ.Lock()
	defer c.μ.Unlock()
	if !c.closed {
		c.closed = true
		c.wakeLocked()
	}
	return nil
}

func (c *Channel[T]) wakeLocked() {
	close(c.wake)
	c.wake = make(chan struct{})
}

// A Receiver is a cursor into a Channel. Its methods must not be called
// concurrently with each other, but distinct receivers are independent.
type Receiver[T any] struct {
	c    *Channel[T]
	pos  uint64 // sequence number of the next value to deliver
	done bool   // the receiver has been closed
}

// Recv blocks until a value is available for r or ctx ends, and returns the
// value. If r fell behind by more than the channel capacity, Recv reports a
// *LaggedError and moves r to the oldest value still retained; the next call
// delivers that value. Once the channel is closed and r has consumed all the
// retained values, Recv reports ErrClosed.
func (r *Receiver[T]) Recv(ctx context.Context) (T, error) {
	for {
		v, wake, err := r.poll()
		if err != ErrEmpty {
			return v, err
		}
		select {
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		case <-wake:
		}
	}
}

// TryRecv returns the next value for r without blocking. It reports ErrEmpty
// if no value is available; otherwise it behaves as Recv.
func (r *Receiver[T]) TryRecv() (T, error) {
	v, _, err := r.poll()
	return v, err
}

func (r *Receiver[T]) poll() (_ T, wake <-chan struct{}, _ error) {
	var zero T
	c := r.c
	c.μ.Lock()
	defer c.μ.Unlock()

	if r.done {
		return zero, nil, ErrClosed
	}
	if oldest := c.next - min(c.next, uint64(len(c.buf))); r.pos < oldest {
		skipped := oldest - r.pos
		r.pos = oldest
		return zero, nil, &LaggedError{Skipped: skipped}
	}
	if r.pos < c.next {
		v := c.buf[r.pos%uint64(len(c.buf))]
		r.pos++
		return v, nil, nil
	}
	if c.closed {
		return zero, nil, ErrClosed
	}
	return zero, c.wake, ErrEmpty
}

// Len reports the number of values currently available to r, not counting
// values it has already missed.
func (r *Receiver[T]) Len() int {
	c := r.c
	c.μ.Lock()
	defer c.μ.Unlock()
	if r.done {
		return 0
	}
	oldest := c.next - min(c.next, uint64(len(c.buf)))
	return int(c.next - max(r.pos, oldest))
}

// Close unsubscribes r from its channel. After Close, Recv reports ErrClosed.
// Close is idempotent.
func (r *Receiver[T]) Close() {
	c := r.c
	c.μ.Lock()
	defer c.μ.Unlock()
	if r.done {
		return
	}
	r.done = true
	c.nrecv--
	if c.nrecv == 0 {
		// No receiver can reach the retained values any more.
		clear(c.buf)
	}
}
