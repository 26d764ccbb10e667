// Copyright (C) 2026 The mbus Authors. All Rights Reserved.

// Package model defines the application records published on the bus: market
// ticks and liquidity positions. Each type has a deterministic binary encoding
// suitable for use with codec.Binary.
package model

import (
	"fmt"
	"math"

	"github.com/arkbow/mbus/packet"
)

// Position is a snapshot of a liquidity position in a binned market for the
// pair SymbolX/SymbolY.
type Position struct {
	SymbolX        string
	SymbolXDecimal uint8
	SymbolY        string
	SymbolYDecimal uint8
	CurrentPrice   float64
	BinStep        uint16
	ActiveBinID    int32
	Bins           []Bin
}

// Bin is one price bin of a Position.
type Bin struct {
	BinID         int32
	LowerPrice    float64
	UpperPrice    float64
	SymbolXAmount uint64
	SymbolYAmount uint64
	FeeXAmount    uint64
	FeeYAmount    uint64
}

// TotalX reports the sum of the X amounts over all bins, in base units.
func (p Position) TotalX() uint64 { return p.sum(func(b Bin) uint64 { return b.SymbolXAmount }) }

// TotalY reports the sum of the Y amounts over all bins, in base units.
func (p Position) TotalY() uint64 { return p.sum(func(b Bin) uint64 { return b.SymbolYAmount }) }

// TotalFeeX reports the sum of the X fees over all bins, in base units.
func (p Position) TotalFeeX() uint64 { return p.sum(func(b Bin) uint64 { return b.FeeXAmount }) }

// TotalFeeY reports the sum of the Y fees over all bins, in base units.
func (p Position) TotalFeeY() uint64 { return p.sum(func(b Bin) uint64 { return b.FeeYAmount }) }

// TotalXDecimal reports TotalX scaled by the X decimals.
func (p Position) TotalXDecimal() float64 { return scale(p.TotalX(), p.SymbolXDecimal) }

// TotalYDecimal reports TotalY scaled by the Y decimals.
func (p Position) TotalYDecimal() float64 { return scale(p.TotalY(), p.SymbolYDecimal) }

// TotalFeeXDecimal reports TotalFeeX scaled by the X decimals.
func (p Position) TotalFeeXDecimal() float64 { return scale(p.TotalFeeX(), p.SymbolXDecimal) }

// TotalFeeYDecimal reports TotalFeeY scaled by the Y decimals.
func (p Position) TotalFeeYDecimal() float64 { return scale(p.TotalFeeY(), p.SymbolYDecimal) }

func (p Position) sum(f func(Bin) uint64) (n uint64) {
	for _, b := range p.Bins {
		n += f(b)
	}
	return
}

func scale(v uint64, decimals uint8) float64 {
	return float64(v) / math.Pow10(int(decimals))
}

// Pair returns the "X/Y" name of the trading pair.
func (p Position) Pair() string { return p.SymbolX + "/" + p.SymbolY }

// MarshalBinary implements encoding.BinaryMarshaler.
func (p Position) MarshalBinary() ([]byte, error) {
	if len(p.Bins) > packet.MaxVint30 {
		return nil, fmt.Errorf("too many bins (%d)", len(p.Bins))
	}
	var b packet.Builder
	b.Grow(32 + len(p.SymbolX) + len(p.SymbolY) + binLen*len(p.Bins))
	b.VPutString(p.SymbolX)
	b.Put(p.SymbolXDecimal)
	b.VPutString(p.SymbolY)
	b.Put(p.SymbolYDecimal)
	b.Float64(p.CurrentPrice)
	b.Uint16(p.BinStep)
	b.Int32(p.ActiveBinID)
	b.Vint30(uint32(len(p.Bins)))
	for _, bin := range p.Bins {
		bin.put(&b)
	}
	return b.Bytes(), nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (p *Position) UnmarshalBinary(data []byte) error {
	s := packet.NewScanner(data)
	var out Position
	var err error
	var nbins int
	for _, step := range []func(){
		func() { out.SymbolX, err = packet.VGet[string](s) },
		func() { out.SymbolXDecimal, err = s.Byte() },
		func() { out.SymbolY, err = packet.VGet[string](s) },
		func() { out.SymbolYDecimal, err = s.Byte() },
		func() { out.CurrentPrice, err = s.Float64() },
		func() { out.BinStep, err = s.Uint16() },
		func() { out.ActiveBinID, err = s.Int32() },
		func() { nbins, err = s.Vint30() },
	} {
		if step(); err != nil {
			return fmt.Errorf("invalid position: %w", err)
		}
	}
	if nbins*binLen > s.Len() {
		return fmt.Errorf("invalid position: %d bins do not fit in %d bytes", nbins, s.Len())
	}
	if nbins > 0 {
		out.Bins = make([]Bin, nbins)
	}
	for i := range out.Bins {
		if err := out.Bins[i].scan(s); err != nil {
			return fmt.Errorf("invalid position: bin %d: %w", i, err)
		}
	}
	if err := s.Done(); err != nil {
		return fmt.Errorf("invalid position: %w", err)
	}
	*p = out
	return nil
}

// binLen is the encoded size of a Bin: 4 ID, 8+8 prices, 4*8 amounts.
const binLen = 4 + 8 + 8 + 4*8

func (b Bin) put(pb *packet.Builder) {
	pb.Int32(b.BinID)
	pb.Float64(b.LowerPrice)
	pb.Float64(b.UpperPrice)
	pb.Uint64(b.SymbolXAmount)
	pb.Uint64(b.SymbolYAmount)
	pb.Uint64(b.FeeXAmount)
	pb.Uint64(b.FeeYAmount)
}

func (b *Bin) scan(s *packet.Scanner) (err error) {
	if b.BinID, err = s.Int32(); err != nil {
		return err
	}
	if b.LowerPrice, err = s.Float64(); err != nil {
		return err
	}
	if b.UpperPrice, err = s.Float64(); err != nil {
		return err
	}
	for _, p := range []*uint64{&b.SymbolXAmount, &b.SymbolYAmount, &b.FeeXAmount, &b.FeeYAmount} {
		if *p, err = s.Uint64(); err != nil {
			return err
		}
	}
	return nil
}
