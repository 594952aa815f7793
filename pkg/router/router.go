// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package router

import (
	"fmt"

	"github.com/adxyz/exchange/pkg/trace"
)

// Outlet is the serving surface an impression is routed to.
type Outlet string

const (
	OutletAds     Outlet = "ads"
	OutletOrganic Outlet = "search"
	OutletPush    Outlet = "push"
)

// Decision is the routing outcome for one impression.
type Decision struct {
	AdValue         float64 `json:"ad_value"`
	OrganicValue    float64 `json:"organic_value"`
	PushValue       float64 `json:"push_value"`
	Selected        Outlet  `json:"selected_path"`
	OpportunityCost float64 `json:"opportunity_cost"`
}

// Route picks the outlet with the highest expected value. Ties are
// resolved conservatively against disrupting the user experience: organic
// wins any tie, push beats ads on a tie. Ads serve only when their value
// strictly exceeds both alternatives.
func Route(adValue, organicValue, pushValue float64) Decision {
	selected := OutletOrganic
	best := organicValue

	if pushValue > best {
		selected = OutletPush
		best = pushValue
	}
	if adValue > best {
		selected = OutletAds
		best = adValue
	}

	return Decision{
		AdValue:         adValue,
		OrganicValue:    organicValue,
		PushValue:       pushValue,
		Selected:        selected,
		OpportunityCost: best - nextBest(selected, adValue, organicValue, pushValue),
	}
}

func nextBest(selected Outlet, ad, organic, push float64) float64 {
	var rest []float64
	switch selected {
	case OutletAds:
		rest = []float64{organic, push}
	case OutletOrganic:
		rest = []float64{ad, push}
	case OutletPush:
		rest = []float64{ad, organic}
	}
	max := rest[0]
	if rest[1] > max {
		max = rest[1]
	}
	return max
}

// Emit writes the routing trace record.
func Emit(sink trace.Sink, requestID string, d Decision) {
	decision := trace.DecisionPass
	reason := trace.ReasonAdValueHigher
	switch d.Selected {
	case OutletOrganic:
		decision = trace.DecisionReject
		reason = trace.ReasonOrganicValueHigher
	case OutletPush:
		decision = trace.DecisionReject
		reason = trace.ReasonPushValueHigher
	}

	sink.Write(&trace.Record{
		RequestID: requestID,
		Node:      trace.NodeHub,
		Action:    trace.ActionOpportunityCheck,
		Decision:  decision,
		Reason:    reason,
		Vars: map[string]any{
			"ad_value":         d.AdValue,
			"organic_value":    d.OrganicValue,
			"push_value":       d.PushValue,
			"selected_path":    d.Selected,
			"opportunity_cost": d.OpportunityCost,
		},
		Reasoning: fmt.Sprintf("opportunity check: ad %.4f vs organic %.4f vs push %.4f, selected %s, opportunity cost %.4f",
			d.AdValue, d.OrganicValue, d.PushValue, d.Selected, d.OpportunityCost),
		EVSearch:     trace.F(d.OrganicValue),
		EVPush:       trace.F(d.PushValue),
		SelectedPath: string(d.Selected),
	})
}
