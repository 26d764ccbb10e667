// Copyright (C) 2026 The mbus Authors. All Rights Reserved.

package server_test

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/arkbow/mbus"
	"github.com/arkbow/mbus/channel"
	"github.com/arkbow/mbus/codec"
	"github.com/arkbow/mbus/server"
	"github.com/creachadair/taskgroup"
)

func BenchmarkFanout(b *testing.B) {
	var payload = []byte("fuzzy wuzzy was a bear\nfuzzy wuzzy had no hair\nfuzzy wuzzy wasn't fuzzy was he?")

	for _, n := range []int{1, 4, 16} {
		b.Run(fmt.Sprintf("Direct-%d", n), func(b *testing.B) {
			runBench(b, n, payload, channel.Direct)
		})
		b.Run(fmt.Sprintf("IO-%d", n), func(b *testing.B) {
			runBench(b, n, payload, pipeConns)
		})
	}
}

// runBench publishes payload to nsub subscribers connected by mk, and reports
// how many messages each subscriber received per send.
func runBench(b *testing.B, nsub int, payload []byte, mk func() (mbus.Conn, mbus.Conn)) {
	b.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := server.New("bench", 1024, codec.Auto[[]byte]())
	acc := make(testAccepter)
	srv := taskgroup.Go(func() error { return s.Serve(ctx, acc) })

	var received atomic.Int64
	g := taskgroup.New(nil)
	for range nsub {
		sc, cc := mk()
		acc <- sc
		g.Go(func() error {
			defer cc.Close()
			for {
				f, err := cc.Recv()
				if err != nil || f.Type == mbus.FrameEnd {
					return nil
				}
				received.Add(1)
			}
		})
	}
	for s.Subscribers() < nsub {
		time.Sleep(time.Millisecond)
	}

	tx := s.Sender()
	var sent int64
	for b.Loop() {
		if _, err := tx.Send(payload); err != nil {
			b.Fatal(err)
		}
		sent++
	}
	s.Close()
	g.Wait()
	cancel()
	srv.Wait()

	b.ReportMetric(float64(received.Load())/float64(sent*int64(nsub)), "delivered/op")
}

func pipeConns() (srv, sub mbus.Conn) {
	ar, bw := io.Pipe()
	br, aw := io.Pipe()
	return channel.IO(ar, aw), channel.IO(br, bw)
}
