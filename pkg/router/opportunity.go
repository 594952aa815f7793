// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package router compares the cleared ad value against the organic and
// retention-push value estimates and selects the serving outlet for the
// impression.
package router

import (
	"sync"
	"time"

	"github.com/adxyz/exchange/core"
	"github.com/adxyz/exchange/pkg/rnd"
)

const maxTouches = 10

// TouchType classifies a recorded user touch.
type TouchType string

const (
	TouchAdView  TouchType = "ad_view"
	TouchContent TouchType = "content_view"
	TouchPush    TouchType = "push"
)

// Touch is one recorded user interaction.
type Touch struct {
	Channel string    `json:"channel"`
	Type    TouchType `json:"type"`
	Value   float64   `json:"value"`
	At      time.Time `json:"timestamp"`
}

// OpportunityManager estimates the expected value of the non-advertising
// outlets from per-device touch history. History is bounded to the last
// ten touches per device.
type OpportunityManager struct {
	mu      sync.Mutex
	touches map[string][]Touch
	rng     rnd.Source
	now     func() time.Time
}

// NewOpportunityManager creates an empty manager.
func NewOpportunityManager(rng rnd.Source) *OpportunityManager {
	return &OpportunityManager{
		touches: make(map[string][]Touch),
		rng:     rng,
		now:     time.Now,
	}
}

// WithClock overrides the clock, for tests.
func (m *OpportunityManager) WithClock(now func() time.Time) *OpportunityManager {
	m.now = now
	return m
}

// AddTouch records a user interaction, evicting beyond the history bound.
func (m *OpportunityManager) AddTouch(deviceID, channel string, tt TouchType, value float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	touches := append(m.touches[deviceID], Touch{
		Channel: channel,
		Type:    tt,
		Value:   value,
		At:      m.now(),
	})
	if len(touches) > maxTouches {
		touches = touches[len(touches)-maxTouches:]
	}
	m.touches[deviceID] = touches
}

// Touches returns a snapshot of a device's history.
func (m *OpportunityManager) Touches(deviceID string) []Touch {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Touch, len(m.touches[deviceID]))
	copy(out, m.touches[deviceID])
	return out
}

// Channels lists the distinct channels in a device's touch history.
func (m *OpportunityManager) Channels(deviceID string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, t := range m.Touches(deviceID) {
		if _, ok := seen[t.Channel]; !ok {
			seen[t.Channel] = struct{}{}
			out = append(out, t.Channel)
		}
	}
	return out
}

// SearchValue estimates the expected value of routing the impression into
// the organic search/recommendation surface. Users with prior search
// touches carry stronger intent; video-community traffic converts better
// on search.
func (m *OpportunityManager) SearchValue(deviceID string, req *core.Request) (float64, map[string]any) {
	touches := m.Touches(deviceID)

	intent := 0.5
	searchTouches := 0
	for _, t := range touches {
		if t.Channel == "search" {
			searchTouches++
		}
	}
	if searchTouches > 0 {
		intent += float64(searchTouches) * 0.1
		if intent > 1.0 {
			intent = 1.0
		}
	}

	base := m.rng.Uniform(0.5, 3.0)
	ev := base * intent
	if req.Channel == core.ChannelVideo {
		ev *= 1.3
	}

	return ev, map[string]any{
		"search_intent":       intent,
		"base_value":          base,
		"ev_search":           ev,
		"touch_history_count": len(touches),
	}
}

// PushValue estimates the expected value of a retention push. Active users
// respond better; ad-fatigued users respond much better.
func (m *OpportunityManager) PushValue(deviceID string, req *core.Request) (float64, map[string]any) {
	touches := m.Touches(deviceID)
	now := m.now()

	recent := 0
	adTouches := 0
	for _, t := range touches {
		if now.Sub(t.At) < time.Hour {
			recent++
		}
		if t.Type == TouchAdView {
			adTouches++
		}
	}

	activity := float64(recent) * 0.2
	if activity > 1.0 {
		activity = 1.0
	}
	fatigue := float64(adTouches) * 0.15
	if fatigue > 1.0 {
		fatigue = 1.0
	}

	base := m.rng.Uniform(0.3, 2.5)
	ev := base * (0.5 + activity*0.5) * (1 - fatigue*0.5)
	if fatigue > 0.7 {
		// Fatigued users are exactly where a push beats another ad.
		ev *= 1.5
	}

	return ev, map[string]any{
		"activity_level":   activity,
		"fatigue_level":    fatigue,
		"base_value":       base,
		"ev_push":          ev,
		"ad_touches_count": adTouches,
	}
}
