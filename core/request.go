// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package core holds the data model shared across the exchange pipeline:
// the impression request, per-bidder bids, and the enumerations attached to
// both. A Request is immutable once created; stages enrich their own derived
// structures instead of mutating it.
package core

import "time"

// Platform is the device platform of an impression request.
type Platform string

const (
	PlatformIOS     Platform = "IOS"
	PlatformAndroid Platform = "ANDROID"
	PlatformWeb     Platform = "WEB"
)

// ParsePlatform normalizes a free-form platform string.
func ParsePlatform(s string) Platform {
	switch s {
	case "IOS", "iOS", "ios":
		return PlatformIOS
	case "ANDROID", "Android", "android":
		return PlatformAndroid
	default:
		return PlatformWeb
	}
}

// Channel is the acquisition channel a user was attributed to.
type Channel string

const (
	ChannelSocial    Channel = "social"
	ChannelVideo     Channel = "video"
	ChannelCommunity Channel = "community"
	ChannelCommerce  Channel = "commerce"
	ChannelOrganic   Channel = "organic"
)

// Channels lists every acquisition channel.
var Channels = []Channel{
	ChannelSocial,
	ChannelVideo,
	ChannelCommunity,
	ChannelCommerce,
	ChannelOrganic,
}

// LifecycleStage buckets a user by account age and activity.
type LifecycleStage string

const (
	StageNew       LifecycleStage = "new"        // 0-7 days
	StageGrowing   LifecycleStage = "growing"    // 8-30 days
	StageMature    LifecycleStage = "mature"     // 31-90 days
	StageChurnRisk LifecycleStage = "churn_risk" // 90+ days, inactive
)

// Size is a creative slot size in pixels.
type Size struct {
	W int `json:"w"`
	H int `json:"h"`
}

// UserTags is the per-user profile attached to a request by traffic
// attribution.
type UserTags struct {
	LifecycleStage   LifecycleStage `json:"lifecycle_stage"`
	RegistrationDays int            `json:"registration_days"`
	LTV              float64        `json:"ltv"`
	InterestTags     []string       `json:"interest_tags"`
}

// Request is one inbound ad-impression request.
type Request struct {
	RequestID string    `json:"request_id"`
	DeviceID  string    `json:"device_id"`
	AppID     string    `json:"app_id"`
	AppName   string    `json:"app_name"`
	Platform  Platform  `json:"platform"`
	Size      Size      `json:"size"`
	LatencyMS float64   `json:"latency_ms"`
	Timestamp time.Time `json:"timestamp"`

	// Attribution, filled by traffic.Source.
	Channel         Channel  `json:"traffic_channel"`
	AttributionCost float64  `json:"attribution_cost"`
	AttributionConf float64  `json:"attribution_confidence"`
	UserTags        UserTags `json:"user_tags"`
}

// Valid reports whether the request carries every field the admission chain
// requires. Invalid requests are rejected, never errored.
func (r *Request) Valid() bool {
	return r.DeviceID != "" && r.AppID != "" && r.Platform != "" &&
		r.Size.W > 0 && r.Size.H > 0 && r.LatencyMS >= 0
}

// Bid is one bidder's offer for a request. Created once per bidder per
// request; the auction reads it but never mutates it afterwards.
type Bid struct {
	BidderID   string  `json:"bidder_id"`
	Price      float64 `json:"price"`
	PCTR       float64 `json:"pctr"`
	PCVR       float64 `json:"pcvr"`
	QFactor    float64 `json:"q_factor"`
	FloorPrice float64 `json:"floor_price"`

	// Derived during clearing.
	AdjustedECPM float64 `json:"ecpm"`
	OriginalECPM float64 `json:"original_ecpm"`

	// Privacy-constrained estimates are provisional, never ground truth.
	AttributionDelayed bool    `json:"attribution_delayed,omitempty"`
	PostbackDelayHours float64 `json:"postback_delay_hours,omitempty"`
}

// ECPM computes the quality-adjusted effective cost per mille of a bid.
func (b *Bid) ECPM() float64 {
	return b.Price * b.PCTR * b.PCVR * b.QFactor * 1000
}

// RawECPM computes the eCPM before quality adjustment, kept for diagnostics.
func (b *Bid) RawECPM() float64 {
	return b.Price * b.PCTR * b.PCVR * 1000
}
