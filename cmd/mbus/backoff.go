// Copyright (C) 2026 The mbus Authors. All Rights Reserved.

package main

import (
	"context"
	"math/rand/v2"
	"time"
)

// backoff implements exponential backoff with jitter.
type backoff struct {
	initial time.Duration
	max     time.Duration
	current time.Duration
}

func newBackoff(initial, max time.Duration) *backoff {
	return &backoff{initial: initial, max: max, current: initial}
}

// next reports the current delay with ±20% jitter, and doubles the delay for
// the following call up to the maximum.
func (b *backoff) next() time.Duration {
	jitter := float64(b.current) * 0.2 * (rand.Float64()*2 - 1)
	d := time.Duration(float64(b.current) + jitter)

	b.current = min(2*b.current, b.max)
	return d
}

// wait sleeps for the next delay, or until ctx ends.
func (b *backoff) wait(ctx context.Context) error {
	t := time.NewTimer(b.next())
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (b *backoff) reset() { b.current = b.initial }
