// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package rnd isolates every stochastic signal in the pipeline (simulated
// latency, click and conversion draws, fraud injection) behind a small
// source interface so tests can substitute deterministic sequences.
package rnd

import (
	"math/rand"
	"sync"
)

// Source supplies random draws to pipeline components.
type Source interface {
	// Float64 returns a draw in [0.0, 1.0).
	Float64() float64
	// Intn returns a draw in [0, n).
	Intn(n int) int
	// Uniform returns a draw in [lo, hi).
	Uniform(lo, hi float64) float64
}

type lockedSource struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSource creates a concurrency-safe source seeded with seed.
func NewSource(seed int64) Source {
	return &lockedSource{rng: rand.New(rand.NewSource(seed))}
}

func (s *lockedSource) Float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Float64()
}

func (s *lockedSource) Intn(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Intn(n)
}

func (s *lockedSource) Uniform(lo, hi float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return lo + s.rng.Float64()*(hi-lo)
}

// Scripted replays a fixed sequence of float draws, cycling when exhausted.
// Intn scales the next draw; Uniform interpolates it. Intended for tests.
type Scripted struct {
	mu   sync.Mutex
	seq  []float64
	next int
}

// NewScripted creates a scripted source from the given draws. The sequence
// must be non-empty.
func NewScripted(seq ...float64) *Scripted {
	if len(seq) == 0 {
		panic("rnd: empty scripted sequence")
	}
	return &Scripted{seq: seq}
}

func (s *Scripted) draw() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.seq[s.next%len(s.seq)]
	s.next++
	return v
}

func (s *Scripted) Float64() float64 { return s.draw() }

func (s *Scripted) Intn(n int) int {
	return int(s.draw() * float64(n))
}

func (s *Scripted) Uniform(lo, hi float64) float64 {
	return lo + s.draw()*(hi-lo)
}
