// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package traffic attributes inbound requests to acquisition channels and
// derives the user profile those channels imply. Attribution is stable per
// device: the same device id always produces the same lifecycle stage.
package traffic

import (
	"hash/fnv"

	"github.com/adxyz/exchange/core"
	"github.com/adxyz/exchange/pkg/rnd"
)

// channelCPC is the per-click acquisition cost of each channel.
var channelCPC = map[core.Channel]float64{
	core.ChannelSocial:    1.5,
	core.ChannelVideo:     1.2,
	core.ChannelCommunity: 0.8,
	core.ChannelCommerce:  1.0,
	core.ChannelOrganic:   0.0,
}

// channelQuality scores the user quality of each channel in [0,1]. It doubles
// as the attribution confidence of the channel signal.
var channelQuality = map[core.Channel]float64{
	core.ChannelSocial:    0.70,
	core.ChannelVideo:     0.85,
	core.ChannelCommunity: 0.75,
	core.ChannelCommerce:  0.80,
	core.ChannelOrganic:   0.60,
}

// channelInterests maps channels to the interest tags they seed.
var channelInterests = map[core.Channel][]string{
	core.ChannelSocial:    {"entertainment", "short_video", "fashion"},
	core.ChannelVideo:     {"anime", "gaming", "tech"},
	core.ChannelCommunity: {"shopping", "deals", "price_compare"},
	core.ChannelCommerce:  {"beauty", "outfits", "lifestyle"},
	core.ChannelOrganic:   {"general", "search"},
}

// stageBaseLTV is the lifetime value baseline per lifecycle stage, before
// channel-quality adjustment.
var stageBaseLTV = map[core.LifecycleStage]float64{
	core.StageNew:       5.0,
	core.StageGrowing:   25.0,
	core.StageMature:    50.0,
	core.StageChurnRisk: 10.0,
}

// Attribution is the channel and profile assigned to one request.
type Attribution struct {
	Channel    core.Channel
	Cost       float64
	Confidence float64
	UserTags   core.UserTags
}

// Source assigns acquisition attribution to requests.
type Source struct {
	rng rnd.Source
}

// NewSource creates a traffic source drawing channel choice from rng.
func NewSource(rng rnd.Source) *Source {
	return &Source{rng: rng}
}

// Attribute picks a channel for the device and derives its user tags.
func (s *Source) Attribute(deviceID string) Attribution {
	channel := core.Channels[s.rng.Intn(len(core.Channels))]
	tags := s.userTags(deviceID, channel)
	return Attribution{
		Channel:    channel,
		Cost:       channelCPC[channel],
		Confidence: channelQuality[channel],
		UserTags:   tags,
	}
}

// userTags derives a stable profile from the device id and channel.
func (s *Source) userTags(deviceID string, channel core.Channel) core.UserTags {
	h := fnv.New32a()
	h.Write([]byte(deviceID))
	registrationDays := int(h.Sum32() % 365)

	stage := StageForRegistrationDays(registrationDays)
	ltv := stageBaseLTV[stage] * channelQuality[channel]

	return core.UserTags{
		LifecycleStage:   stage,
		RegistrationDays: registrationDays,
		LTV:              ltv,
		InterestTags:     channelInterests[channel],
	}
}

// StageForRegistrationDays buckets account age into a lifecycle stage.
func StageForRegistrationDays(days int) core.LifecycleStage {
	switch {
	case days <= 7:
		return core.StageNew
	case days <= 30:
		return core.StageGrowing
	case days <= 90:
		return core.StageMature
	default:
		return core.StageChurnRisk
	}
}

// CPC returns the acquisition cost of a channel.
func CPC(c core.Channel) float64 { return channelCPC[c] }

// Quality returns the user-quality score of a channel.
func Quality(c core.Channel) float64 { return channelQuality[c] }
