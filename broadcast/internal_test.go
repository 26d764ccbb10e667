// Copyright (C) 2026 The mbus Authors. All Rights Reserved.

package broadcast

import "testing"

func TestReleaseOnLastClose(t *testing.T) {
	c := New[[]byte](3)
	r1, r2 := c.Subscribe(), c.Subscribe()
	for _, s := range []string{"a", "b", "c", "d"} {
		c.Send([]byte(s))
	}

	checkRetained := func(want int) {
		t.Helper()
		var n int
		for _, v := range c.buf {
			if v != nil {
				n++
			}
		}
		if n != want {
			t.Errorf("Retained values: got %d, want %d", n, want)
		}
	}
	checkRetained(3)

	r1.Close()
	checkRetained(3) // r2 can still reach them
	r2.Close()
	r2.Close() // idempotent
	checkRetained(0)

	// A new receiver starts empty and sees only new values.
	r3 := c.Subscribe()
	defer r3.Close()
	if _, err := r3.TryRecv(); err != ErrEmpty {
		t.Errorf("TryRecv: got %v, want %v", err, ErrEmpty)
	}
	c.Send([]byte("e"))
	if v, err := r3.TryRecv(); err != nil || string(v) != "e" {
		t.Errorf("TryRecv: got (%q, %v), want e", v, err)
	}
}
