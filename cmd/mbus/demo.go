// Copyright (C) 2026 The mbus Authors. All Rights Reserved.

package main

import (
	"math"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/arkbow/mbus/model"
)

// A market generates synthetic records by a random walk of prices.
type market struct {
	rng     *rand.Rand
	symbols []string
	prices  []float64
	next    int
}

func newMarket(symbols []string, seed uint64) *market {
	m := &market{
		rng:     rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		symbols: symbols,
		prices:  make([]float64, len(symbols)),
	}
	for i := range m.prices {
		m.prices[i] = 10 + m.rng.Float64()*990
	}
	return m
}

// step advances the price of the next symbol in rotation, and reports its
// index.
func (m *market) step() int {
	i := m.next
	m.next = (m.next + 1) % len(m.symbols)
	m.prices[i] *= 1 + (m.rng.Float64()*2-1)*0.002 // ±0.2%
	return i
}

func (m *market) tick(now time.Time) model.Tick {
	i := m.step()
	return model.NewTick(m.symbols[i], m.prices[i], now)
}

const (
	demoBinStep = 25 // basis points
	demoBins    = 7
)

func (m *market) position(time.Time) model.Position {
	i := m.step()
	x, y, ok := strings.Cut(m.symbols[i], "/")
	if !ok {
		y = "USD"
	}
	price := m.prices[i]
	ratio := 1 + demoBinStep/10000.0
	active := int32(math.Floor(math.Log(price) / math.Log(ratio)))

	p := model.Position{
		SymbolX:        x,
		SymbolXDecimal: 9,
		SymbolY:        y,
		SymbolYDecimal: 6,
		CurrentPrice:   price,
		BinStep:        demoBinStep,
		ActiveBinID:    active,
	}
	for id := active - demoBins/2; id <= active+demoBins/2; id++ {
		lo := math.Pow(ratio, float64(id))
		b := model.Bin{BinID: id, LowerPrice: lo, UpperPrice: lo * ratio}

		// Liquidity above the active bin is held in X, below it in Y, and
		// the active bin holds both.
		if id >= active {
			b.SymbolXAmount = m.rng.Uint64N(5e9)
			b.FeeXAmount = b.SymbolXAmount / 1000
		}
		if id <= active {
			b.SymbolYAmount = m.rng.Uint64N(5e8)
			b.FeeYAmount = b.SymbolYAmount / 1000
		}
		p.Bins = append(p.Bins, b)
	}
	return p
}
