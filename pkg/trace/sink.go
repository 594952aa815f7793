// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package trace

import (
	"encoding/json"
	"io"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Sink receives one record per decision point. Implementations must be safe
// for concurrent use; the pipeline never retries a failed write.
type Sink interface {
	Write(rec *Record)
	Close() error
}

// JSONLSink appends records as JSON lines to an underlying writer and fans
// each record out to live subscribers. Subscribers that fall behind drop
// records rather than blocking the pipeline.
type JSONLSink struct {
	mu   sync.Mutex
	w    io.Writer
	c    io.Closer
	subs map[chan *Record]struct{}
}

// NewWriterSink wraps an arbitrary writer, typically a buffer in tests.
func NewWriterSink(w io.Writer) *JSONLSink {
	return &JSONLSink{w: w, subs: make(map[chan *Record]struct{})}
}

// FileOptions configure trace file rotation.
type FileOptions struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// NewFileSink appends to a rotated trace file. Rotation is handled by
// lumberjack; the exchange itself never truncates the trace.
func NewFileSink(opts FileOptions) *JSONLSink {
	lj := &lumberjack.Logger{
		Filename:   opts.Path,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		MaxAge:     opts.MaxAgeDays,
		Compress:   false,
	}
	return &JSONLSink{w: lj, c: lj, subs: make(map[chan *Record]struct{})}
}

// Write serializes the record as one JSON line. Timestamps default to now
// when the caller left them zero.
func (s *JSONLSink) Write(rec *Record) {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return
	}

	s.mu.Lock()
	s.w.Write(append(data, '\n'))
	for ch := range s.subs {
		select {
		case ch <- rec:
		default:
		}
	}
	s.mu.Unlock()
}

// Subscribe registers a live feed of records. The returned channel is
// buffered; slow consumers lose records instead of stalling decisions.
func (s *JSONLSink) Subscribe() chan *Record {
	ch := make(chan *Record, 256)
	s.mu.Lock()
	s.subs[ch] = struct{}{}
	s.mu.Unlock()
	return ch
}

// Unsubscribe removes and closes a previously subscribed channel.
func (s *JSONLSink) Unsubscribe(ch chan *Record) {
	s.mu.Lock()
	if _, ok := s.subs[ch]; ok {
		delete(s.subs, ch)
		close(ch)
	}
	s.mu.Unlock()
}

// Close closes the underlying writer if it is closable.
func (s *JSONLSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.subs {
		delete(s.subs, ch)
		close(ch)
	}
	if s.c != nil {
		return s.c.Close()
	}
	return nil
}

// NopSink discards all records. Useful in benchmarks and tests that do not
// assert on the trace.
type NopSink struct{}

func (NopSink) Write(*Record) {}
func (NopSink) Close() error  { return nil }

// MemorySink retains records in memory for test assertions.
type MemorySink struct {
	mu      sync.Mutex
	records []*Record
}

func NewMemorySink() *MemorySink { return &MemorySink{} }

func (m *MemorySink) Write(rec *Record) {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	m.mu.Lock()
	m.records = append(m.records, rec)
	m.mu.Unlock()
}

func (m *MemorySink) Close() error { return nil }

// Records returns a snapshot of everything written so far.
func (m *MemorySink) Records() []*Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Record, len(m.records))
	copy(out, m.records)
	return out
}

// ByAction filters the snapshot down to records with the given action.
func (m *MemorySink) ByAction(action Action) []*Record {
	var out []*Record
	for _, rec := range m.Records() {
		if rec.Action == action {
			out = append(out, rec)
		}
	}
	return out
}
