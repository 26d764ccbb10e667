// Copyright (C) 2026 The mbus Authors. All Rights Reserved.

package model

import (
	"fmt"
	"time"

	"github.com/arkbow/mbus/packet"
)

// Tick is a price observation for one symbol.
type Tick struct {
	Symbol    string
	Price     float64
	Timestamp int64 // microseconds since the Unix epoch
}

// NewTick returns a tick for symbol at price, stamped with the time t.
func NewTick(symbol string, price float64, t time.Time) Tick {
	return Tick{Symbol: symbol, Price: price, Timestamp: t.UnixMicro()}
}

// Time reports the timestamp of t as a time.Time.
func (t Tick) Time() time.Time { return time.UnixMicro(t.Timestamp) }

// Latency reports how long before now the tick was stamped.
func (t Tick) Latency(now time.Time) time.Duration { return now.Sub(t.Time()) }

func (t Tick) String() string {
	return fmt.Sprintf("Tick(%s, %.2f, %s)", t.Symbol, t.Price, t.Time().UTC().Format(time.RFC3339Nano))
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (t Tick) MarshalBinary() ([]byte, error) {
	var b packet.Builder
	b.Grow(packet.VLen(len(t.Symbol)) + 16)
	b.VPutString(t.Symbol)
	b.Float64(t.Price)
	b.Uint64(uint64(t.Timestamp))
	return b.Bytes(), nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (t *Tick) UnmarshalBinary(data []byte) error {
	s := packet.NewScanner(data)
	sym, err := packet.VGet[string](s)
	if err != nil {
		return fmt.Errorf("invalid tick symbol: %w", err)
	}
	price, err := s.Float64()
	if err != nil {
		return fmt.Errorf("invalid tick price: %w", err)
	}
	ts, err := s.Uint64()
	if err != nil {
		return fmt.Errorf("invalid tick timestamp: %w", err)
	}
	if err := s.Done(); err != nil {
		return fmt.Errorf("invalid tick: %w", err)
	}
	*t = Tick{Symbol: sym, Price: price, Timestamp: int64(ts)}
	return nil
}
