// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package router

import (
	"fmt"
	"time"

	"github.com/adxyz/exchange/core"
	"github.com/adxyz/exchange/pkg/funnel"
	"github.com/adxyz/exchange/pkg/trace"
)

// pushBaseValue is the retention-coupon base value per lifecycle stage.
// Churn-risk users are the most valuable push targets.
var pushBaseValue = map[core.LifecycleStage]float64{
	core.StageNew:       2.0,
	core.StageGrowing:   1.5,
	core.StageMature:    1.0,
	core.StageChurnRisk: 2.5,
}

// AdPlacement is the content payload of an ad distribution.
type AdPlacement struct {
	Winner       string  `json:"winner"`
	BidPrice     float64 `json:"bid_price"`
	ECPM         float64 `json:"ecpm"`
	ClearedPrice float64 `json:"actual_paid_price"`
}

// Coupon is the content payload of a retention push.
type Coupon struct {
	Kind    string  `json:"type"`
	Value   float64 `json:"value"`
	Message string  `json:"message"`
}

// Distribution is the downstream delivery of one routed impression.
type Distribution struct {
	DeviceID string    `json:"device_id"`
	Selected Outlet    `json:"selected_path"`
	Outlet   string    `json:"distribution_outlet"`
	Content  any       `json:"content"`
	At       time.Time `json:"timestamp"`
}

// Hub delivers routed impressions to their serving outlet and records the
// resulting user touch so future opportunity estimates see it.
type Hub struct {
	funnel *funnel.Funnel
	opp    *OpportunityManager
	sink   trace.Sink
	now    func() time.Time
}

// NewHub creates a distribution hub.
func NewHub(f *funnel.Funnel, opp *OpportunityManager, sink trace.Sink) *Hub {
	return &Hub{funnel: f, opp: opp, sink: sink, now: time.Now}
}

// WithClock overrides the clock, for tests.
func (h *Hub) WithClock(now func() time.Time) *Hub {
	h.now = now
	return h
}

// Distribute delivers the impression to the selected outlet. The ad
// placement is required only for the ads outlet.
func (h *Hub) Distribute(requestID string, req *core.Request, selected Outlet, ad *AdPlacement) *Distribution {
	d := &Distribution{
		DeviceID: req.DeviceID,
		Selected: selected,
		At:       h.now(),
	}

	switch selected {
	case OutletOrganic:
		recalled := h.funnel.Recall(req.UserTags)
		ranked := h.funnel.Rank(recalled, req.UserTags)
		reRanked := h.funnel.ReRank(ranked, nil)
		if len(reRanked) > 5 {
			reRanked = reRanked[:5]
		}
		d.Outlet = "search_recommendation_feed"
		d.Content = reRanked
		h.opp.AddTouch(req.DeviceID, string(req.Channel), TouchContent, 0)

	case OutletPush:
		value := h.pushCouponValue(req.UserTags)
		d.Outlet = "push_retention"
		d.Content = Coupon{Kind: "coupon", Value: value, Message: "limited-time coupon, claim now"}
		h.opp.AddTouch(req.DeviceID, string(req.Channel), TouchPush, value)

	case OutletAds:
		d.Outlet = "home_placement"
		d.Content = ad
		value := 0.0
		if ad != nil {
			value = ad.ClearedPrice
		}
		h.opp.AddTouch(req.DeviceID, string(req.Channel), TouchAdView, value)
	}

	h.sink.Write(&trace.Record{
		RequestID: requestID,
		Node:      trace.NodeHub,
		Action:    trace.ActionDistribution,
		Decision:  trace.DecisionPass,
		Reason:    trace.ReasonDistributed,
		Vars: map[string]any{
			"selected_path":       selected,
			"distribution_outlet": d.Outlet,
			"device_id":           req.DeviceID,
		},
		Reasoning:    fmt.Sprintf("impression distributed to %s via %s outlet", d.Outlet, selected),
		SelectedPath: string(selected),
	})

	return d
}

// pushCouponValue prices the retention coupon from lifecycle stage and
// account age. Younger accounts are more active and get richer coupons.
func (h *Hub) pushCouponValue(tags core.UserTags) float64 {
	base, ok := pushBaseValue[tags.LifecycleStage]
	if !ok {
		base = 1.5
	}
	activity := 1.0 - float64(tags.RegistrationDays)/365.0
	if activity < 0.5 {
		activity = 0.5
	}
	return base * activity
}
