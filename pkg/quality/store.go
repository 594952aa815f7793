// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package quality scores traffic for fraud risk and produces the
// multiplicative quality factor applied to every bid's eCPM. The rolling
// IP and click-coordinate windows here are the only cross-request mutable
// state in the decision core.
package quality

import (
	"hash/fnv"
	"sync"
	"time"
)

const (
	// ipWindow is the recency window for IP concentration detection.
	ipWindow = 5 * time.Minute
	// maxClickPoints bounds the per-key click coordinate history.
	maxClickPoints = 20
)

// Point is one recorded click coordinate.
type Point struct {
	X float64
	Y float64
}

// Store is a bounded, sharded state store for fraud signals. Entries are
// evicted on read: IP timestamps older than the window and click points
// beyond the last twenty are dropped whenever a key is touched.
type Store struct {
	shards [16]storeShard
	now    func() time.Time
}

type storeShard struct {
	mu     sync.Mutex
	ips    map[string][]time.Time
	clicks map[string][]Point
}

// NewStore creates an empty store using wall-clock time.
func NewStore() *Store {
	return NewStoreWithClock(time.Now)
}

// NewStoreWithClock creates a store with an injected clock for tests.
func NewStoreWithClock(now func() time.Time) *Store {
	s := &Store{now: now}
	for i := range s.shards {
		s.shards[i].ips = make(map[string][]time.Time)
		s.shards[i].clicks = make(map[string][]Point)
	}
	return s
}

func (s *Store) shard(key string) *storeShard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return &s.shards[h.Sum32()%uint32(len(s.shards))]
}

// RecordIP appends an observation for ip and returns how many observations
// remain inside the rolling window, including this one.
func (s *Store) RecordIP(ip string) int {
	now := s.now()
	cutoff := now.Add(-ipWindow)

	sh := s.shard(ip)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	kept := sh.ips[ip][:0]
	for _, ts := range sh.ips[ip] {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	kept = append(kept, now)
	sh.ips[ip] = kept
	return len(kept)
}

// RecordClick appends a click point for the device+app key and returns a
// copy of the retained history, newest last.
func (s *Store) RecordClick(key string, p Point) []Point {
	sh := s.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	pts := append(sh.clicks[key], p)
	if len(pts) > maxClickPoints {
		pts = pts[len(pts)-maxClickPoints:]
	}
	sh.clicks[key] = pts

	out := make([]Point, len(pts))
	copy(out, pts)
	return out
}

// Variance returns the per-axis population variance of a point set.
func Variance(pts []Point) (vx, vy float64) {
	n := float64(len(pts))
	if n == 0 {
		return 0, 0
	}
	var mx, my float64
	for _, p := range pts {
		mx += p.X
		my += p.Y
	}
	mx /= n
	my /= n
	for _, p := range pts {
		vx += (p.X - mx) * (p.X - mx)
		vy += (p.Y - my) * (p.Y - my)
	}
	return vx / n, vy / n
}
