// Copyright (C) 2026 The mbus Authors. All Rights Reserved.

package channel_test

import (
	"errors"
	"io"
	"net"
	"path/filepath"
	"testing"

	"github.com/arkbow/mbus"
	"github.com/arkbow/mbus/channel"
	"github.com/creachadair/taskgroup"
	"github.com/fortytw2/leaktest"
	"github.com/google/go-cmp/cmp"
)

func TestDirect(t *testing.T) {
	defer leaktest.Check(t)()

	c, s := channel.Direct()

	g := taskgroup.New(nil)
	g.Go(func() error {
		f := mbus.DataFrame([]byte("ping"))
		if err := c.Send(f); err != nil {
			t.Errorf("A Send: %v", err)
		}
		got, err := c.Recv()
		if err != nil {
			t.Errorf("A Recv: %v", err)
		}
		if got != f {
			t.Errorf("Frame: got %v, want %v", got, f)
		}
		return nil
	})
	g.Go(func() error {
		f, err := s.Recv()
		if err != nil {
			t.Errorf("B Recv: %v", err)
		}
		if err := s.Send(f); err != nil {
			t.Errorf("B Send: %v", err)
		}
		return nil
	})
	g.Wait()

	if err := c.Close(); err != nil {
		t.Errorf("c.Close: %v", err)
	}

	// The other end sees EOF once its peer has closed, and cannot send.
	if f, err := s.Recv(); !errors.Is(err, io.EOF) {
		t.Errorf("s.Recv after peer close: got (%v, %v), want EOF", f, err)
	}
	if err := s.Send(nil); err == nil {
		t.Error("s.Send after peer close did not report an error")
	}
	if err := s.Close(); err != nil {
		t.Errorf("s.Close: %v", err)
	}

	if err := c.Send(nil); err == nil {
		t.Error("c.Send after close did not report an error")
	}
	if f, err := c.Recv(); !errors.Is(err, net.ErrClosed) {
		t.Errorf("c.Recv after close: got (%v, %v), want %v", f, err, net.ErrClosed)
	}
	if err := c.Close(); err == nil {
		t.Error("Second close did not report an error")
	}
}

func TestDirectBlockedSend(t *testing.T) {
	defer leaktest.Check(t)()

	c, s := channel.Direct()
	done := make(chan error)
	go func() { done <- c.Send(mbus.DataFrame(nil)) }()

	// Nobody receives; closing the receiving end releases the sender.
	s.Close()
	if err := <-done; err == nil {
		t.Error("Send to closed peer did not report an error")
	}
	c.Close()
}

func TestNet(t *testing.T) {
	defer leaktest.Check(t)()

	addr := filepath.Join(t.TempDir(), "test.sock")
	lst, err := net.Listen("unix", addr)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer lst.Close()

	want := []*mbus.Frame{
		mbus.DataFrame([]byte("first")),
		mbus.DataFrame(nil),
		{Type: 99, Payload: []byte("unknown type")},
		{Type: mbus.FrameEnd},
	}

	g := taskgroup.New(nil)
	g.Go(func() error {
		conn, err := lst.Accept()
		if err != nil {
			return err
		}
		sc := channel.Net(conn)
		defer sc.Close()
		for _, f := range want {
			if err := sc.Send(f); err != nil {
				return err
			}
		}
		return nil
	})

	conn, err := net.Dial("unix", addr)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	cc := channel.Net(conn)
	defer cc.Close()

	var got []*mbus.Frame
	for {
		f, err := cc.Recv()
		if errors.Is(err, io.EOF) {
			break
		} else if err != nil {
			t.Fatalf("Recv: unexpected error: %v", err)
		}
		got = append(got, f)
	}
	if err := g.Wait(); err != nil {
		t.Errorf("Sender: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Frames (-want, +got):\n%s", diff)
	}
}
