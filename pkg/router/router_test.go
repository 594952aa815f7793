// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package router

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/adxyz/exchange/core"
	"github.com/adxyz/exchange/pkg/funnel"
	"github.com/adxyz/exchange/pkg/rnd"
	"github.com/adxyz/exchange/pkg/trace"
)

// testFunnel builds a funnel whose pool is small enough that recall keeps
// everything, so no sampling draws are consumed.
func testFunnel() *funnel.Funnel {
	pool := []funnel.Item{
		{ContentID: "c1", Type: funnel.TypeArticle, AuthorID: "a1", BaseCTR: 0.08, BaseLikeRate: 0.1, BaseFinishRate: 0.5, BaseComment: 0.05, LTV: 2.0},
		{ContentID: "c2", Type: funnel.TypeVideo, AuthorID: "a2", BaseCTR: 0.06, BaseLikeRate: 0.1, BaseFinishRate: 0.5, BaseComment: 0.05, LTV: 1.5},
		{ContentID: "c3", Type: funnel.TypeProduct, AuthorID: "a3", BaseCTR: 0.04, BaseLikeRate: 0.1, BaseFinishRate: 0.5, BaseComment: 0.05, LTV: 1.0},
		{ContentID: "c4", Type: funnel.TypeArticle, AuthorID: "a4", BaseCTR: 0.02, BaseLikeRate: 0.1, BaseFinishRate: 0.5, BaseComment: 0.05, LTV: 0.5},
	}
	return funnel.New(pool, funnel.DefaultWeights, 16, rnd.NewScripted(0.5), trace.NopSink{})
}

func TestRouteTieBreaks(t *testing.T) {
	require := require.New(t)

	// Organic wins any tie against ads.
	d := Route(1.0, 1.0, 0.5)
	require.Equal(OutletOrganic, d.Selected)
	require.Zero(d.OpportunityCost)

	// Push beats ads on a tie but loses a tie to organic.
	d = Route(0.8, 0.5, 0.8)
	require.Equal(OutletPush, d.Selected)

	d = Route(0.2, 0.8, 0.8)
	require.Equal(OutletOrganic, d.Selected)

	// Ads serve only on strict dominance.
	d = Route(1.01, 1.0, 0.5)
	require.Equal(OutletAds, d.Selected)
	require.InDelta(0.01, d.OpportunityCost, 1e-9)
}

func TestRouteOpportunityCost(t *testing.T) {
	require := require.New(t)

	d := Route(1.5, 2.0, 0.3)
	require.Equal(OutletOrganic, d.Selected)
	require.InDelta(0.5, d.OpportunityCost, 1e-9)

	d = Route(0.1, 0.4, 2.2)
	require.Equal(OutletPush, d.Selected)
	require.InDelta(1.8, d.OpportunityCost, 1e-9)
}

func TestEmitDecisionMapping(t *testing.T) {
	require := require.New(t)

	cases := []struct {
		d        Decision
		decision trace.Decision
		reason   trace.ReasonCode
	}{
		{Route(2.0, 1.0, 0.5), trace.DecisionPass, trace.ReasonAdValueHigher},
		{Route(1.0, 2.0, 0.5), trace.DecisionReject, trace.ReasonOrganicValueHigher},
		{Route(1.0, 0.5, 2.0), trace.DecisionReject, trace.ReasonPushValueHigher},
	}

	for _, tc := range cases {
		sink := trace.NewMemorySink()
		Emit(sink, "req-1", tc.d)

		recs := sink.ByAction(trace.ActionOpportunityCheck)
		require.Len(recs, 1)
		require.Equal(tc.decision, recs[0].Decision)
		require.Equal(tc.reason, recs[0].Reason)
		require.Equal(string(tc.d.Selected), recs[0].SelectedPath)
		require.NotNil(recs[0].EVSearch)
		require.NotNil(recs[0].EVPush)
	}
}

func TestTouchHistoryBounded(t *testing.T) {
	require := require.New(t)
	m := NewOpportunityManager(rnd.NewScripted(0.5))

	for i := 0; i < 15; i++ {
		m.AddTouch("d1", "social", TouchContent, 1.0)
	}
	require.Len(m.Touches("d1"), 10)
	require.Empty(m.Touches("d2"))
}

func TestSearchValueIntent(t *testing.T) {
	require := require.New(t)
	req := &core.Request{DeviceID: "d1", Channel: core.ChannelSocial}

	// No history: intent 0.5, base at the uniform midpoint 1.75.
	m := NewOpportunityManager(rnd.NewScripted(0.5))
	ev, vars := m.SearchValue("d1", req)
	require.InDelta(0.875, ev, 1e-9)
	require.Equal(0.5, vars["search_intent"])

	// Prior search touches raise intent by 0.1 each.
	m = NewOpportunityManager(rnd.NewScripted(0.5))
	m.AddTouch("d1", "search", TouchContent, 0)
	m.AddTouch("d1", "search", TouchContent, 0)
	ev, vars = m.SearchValue("d1", req)
	require.InDelta(0.7, vars["search_intent"].(float64), 1e-9)
	require.InDelta(1.75*0.7, ev, 1e-9)

	// Video-channel traffic converts better on search.
	m = NewOpportunityManager(rnd.NewScripted(0.5))
	ev, _ = m.SearchValue("d1", &core.Request{DeviceID: "d1", Channel: core.ChannelVideo})
	require.InDelta(0.875*1.3, ev, 1e-9)
}

func TestPushValueActivityAndFatigue(t *testing.T) {
	require := require.New(t)
	now := time.Now()
	clock := func() time.Time { return now }
	req := &core.Request{DeviceID: "d1"}

	// Cold device: activity 0, fatigue 0, base 0.3 + 0.5x2.2 = 1.4.
	m := NewOpportunityManager(rnd.NewScripted(0.5)).WithClock(clock)
	ev, vars := m.PushValue("d1", req)
	require.InDelta(1.4*0.5, ev, 1e-9)
	require.Equal(0.0, vars["activity_level"])
	require.Equal(0.0, vars["fatigue_level"])

	// Heavy ad exposure pushes fatigue past the boost threshold.
	m = NewOpportunityManager(rnd.NewScripted(0.5)).WithClock(clock)
	for i := 0; i < 6; i++ {
		m.AddTouch("d1", "social", TouchAdView, 0.1)
	}
	ev, vars = m.PushValue("d1", req)
	require.InDelta(0.9, vars["fatigue_level"].(float64), 1e-9)
	require.Equal(6, vars["ad_touches_count"])
	// activity 1.0 (6 recent), ev = 1.4 x 1.0 x (1 - 0.45) x 1.5
	require.InDelta(1.4*0.55*1.5, ev, 1e-9)
}

func TestDistributeOrganicFeed(t *testing.T) {
	require := require.New(t)
	sink := trace.NewMemorySink()
	opp := NewOpportunityManager(rnd.NewScripted(0.5))
	hub := NewHub(testFunnel(), opp, sink)

	req := &core.Request{
		RequestID: "req-1",
		DeviceID:  "d1",
		Channel:   core.ChannelSocial,
		UserTags:  core.UserTags{LifecycleStage: core.StageGrowing},
	}
	d := hub.Distribute("req-1", req, OutletOrganic, nil)

	require.Equal("search_recommendation_feed", d.Outlet)
	items := d.Content.([]funnel.Item)
	require.LessOrEqual(len(items), 5)
	require.NotEmpty(items)

	touches := opp.Touches("d1")
	require.Len(touches, 1)
	require.Equal(TouchContent, touches[0].Type)

	recs := sink.ByAction(trace.ActionDistribution)
	require.Len(recs, 1)
	require.Equal(string(OutletOrganic), recs[0].SelectedPath)
}

func TestDistributePushCoupon(t *testing.T) {
	require := require.New(t)
	opp := NewOpportunityManager(rnd.NewScripted(0.5))
	hub := NewHub(testFunnel(), opp, trace.NopSink{})

	req := &core.Request{
		RequestID: "req-1",
		DeviceID:  "d1",
		Channel:   core.ChannelVideo,
		UserTags:  core.UserTags{LifecycleStage: core.StageChurnRisk, RegistrationDays: 0},
	}
	d := hub.Distribute("req-1", req, OutletPush, nil)

	require.Equal("push_retention", d.Outlet)
	coupon := d.Content.(Coupon)
	require.Equal("coupon", coupon.Kind)
	require.InDelta(2.5, coupon.Value, 1e-9) // churn base x full activity

	touches := opp.Touches("d1")
	require.Len(touches, 1)
	require.Equal(TouchPush, touches[0].Type)
	require.Equal(coupon.Value, touches[0].Value)
}

func TestDistributeAds(t *testing.T) {
	require := require.New(t)
	opp := NewOpportunityManager(rnd.NewScripted(0.5))
	hub := NewHub(testFunnel(), opp, trace.NopSink{})

	req := &core.Request{RequestID: "req-1", DeviceID: "d1", Channel: core.ChannelCommerce}
	ad := &AdPlacement{Winner: "DSP_2", BidPrice: 0.5, ECPM: 0.6, ClearedPrice: 0.25}
	d := hub.Distribute("req-1", req, OutletAds, ad)

	require.Equal("home_placement", d.Outlet)
	require.Equal(ad, d.Content)

	touches := opp.Touches("d1")
	require.Len(touches, 1)
	require.Equal(TouchAdView, touches[0].Type)
	require.Equal(0.25, touches[0].Value)
}

func TestPushCouponValueAgesOut(t *testing.T) {
	require := require.New(t)
	hub := NewHub(testFunnel(), NewOpportunityManager(rnd.NewScripted(0.5)), trace.NopSink{})

	// Mature user half a year in: 1.0 x (1 - 182/365).
	v := hub.pushCouponValue(core.UserTags{LifecycleStage: core.StageMature, RegistrationDays: 182})
	require.InDelta(1.0-182.0/365.0, v, 1e-9)

	// Activity floors at 0.5 for very old accounts.
	v = hub.pushCouponValue(core.UserTags{LifecycleStage: core.StageNew, RegistrationDays: 400})
	require.InDelta(1.0, v, 1e-9)

	// Unknown stage falls back to the default base.
	v = hub.pushCouponValue(core.UserTags{LifecycleStage: "vip", RegistrationDays: 0})
	require.InDelta(1.5, v, 1e-9)
}
