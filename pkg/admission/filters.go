// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package admission

import (
	"fmt"

	"github.com/adxyz/exchange/core"
	"github.com/adxyz/exchange/pkg/rnd"
	"github.com/adxyz/exchange/pkg/trace"
)

// Loss-accounting sentinels: a rejection always records a non-zero
// potential loss so downstream loss reports stay meaningful. The default
// estimate assumes an average bid of 0.5, pCTR 2%, pCVR 5% and full
// quality, which also happens to equal the minimum sentinel of 0.5 eCPM.
const (
	defaultAvgBid     = 0.5
	defaultAvgPCTR    = 0.02
	defaultAvgPCVR    = 0.05
	MinPotentialECPM  = 0.5
)

// PotentialLoss estimates the eCPM revenue lost when a request with the
// given collected bids is rejected. Zero estimates are substituted with the
// documented minimum sentinel, never propagated.
func PotentialLoss(bids *BidContext) float64 {
	var maxECPM float64
	if bids != nil {
		for _, b := range bids.Bids {
			if e := b.ECPM(); e > maxECPM {
				maxECPM = e
			}
		}
	}
	if maxECPM == 0 {
		maxECPM = defaultAvgBid * defaultAvgPCTR * defaultAvgPCVR * 1.0 * 1000
	}
	if maxECPM < MinPotentialECPM {
		maxECPM = MinPotentialECPM
	}
	return maxECPM
}

// BlacklistFilter rejects requests whose device or app id is blocked.
type BlacklistFilter struct {
	blocked map[string]struct{}
	sink    trace.Sink
}

func NewBlacklistFilter(blacklist []string, sink trace.Sink) *BlacklistFilter {
	blocked := make(map[string]struct{}, len(blacklist))
	for _, id := range blacklist {
		blocked[id] = struct{}{}
	}
	return &BlacklistFilter{blocked: blocked, sink: sink}
}

func (f *BlacklistFilter) Name() string { return "BlacklistFilter" }

func (f *BlacklistFilter) Apply(requestID string, req *core.Request, _ *BidContext) Result {
	vars := map[string]any{
		"device_id":   req.DeviceID,
		"app_id":      req.AppID,
		"filter_name": f.Name(),
	}

	if req.DeviceID == "" || req.AppID == "" {
		return f.emit(requestID, Reject(trace.ReasonMalformedRequest, vars),
			"request missing device or app id")
	}

	_, deviceBlocked := f.blocked[req.DeviceID]
	_, appBlocked := f.blocked[req.AppID]
	if deviceBlocked || appBlocked {
		return f.emit(requestID, Reject(trace.ReasonInBlacklist, vars),
			fmt.Sprintf("device %s or app %s is blacklisted", req.DeviceID, req.AppID))
	}
	return f.emit(requestID, Pass(trace.ReasonNotInBlacklist, vars),
		fmt.Sprintf("device %s and app %s not blacklisted", req.DeviceID, req.AppID))
}

func (f *BlacklistFilter) emit(requestID string, res Result, reasoning string) Result {
	f.sink.Write(&trace.Record{
		RequestID: requestID,
		Node:      trace.NodeADX,
		Action:    trace.ActionBlacklistCheck,
		Decision:  decisionOf(res),
		Reason:    res.Reason,
		Vars:      res.Snapshot,
		Reasoning: reasoning,
	})
	return res
}

// SizeMatchFilter rejects requests whose creative slot does not match the
// required size exactly.
type SizeMatchFilter struct {
	required core.Size
	sink     trace.Sink
}

func NewSizeMatchFilter(required core.Size, sink trace.Sink) *SizeMatchFilter {
	return &SizeMatchFilter{required: required, sink: sink}
}

func (f *SizeMatchFilter) Name() string { return "SizeMatchFilter" }

func (f *SizeMatchFilter) Apply(requestID string, req *core.Request, _ *BidContext) Result {
	vars := map[string]any{
		"ad_size":       req.Size,
		"required_size": f.required,
		"filter_name":   f.Name(),
	}

	if req.Size.W <= 0 || req.Size.H <= 0 {
		return f.emit(requestID, Reject(trace.ReasonMalformedRequest, vars),
			"request carries no creative size")
	}
	if req.Size != f.required {
		return f.emit(requestID, Reject(trace.ReasonSizeMismatch, vars),
			fmt.Sprintf("creative size %dx%d does not match required %dx%d",
				req.Size.W, req.Size.H, f.required.W, f.required.H))
	}
	return f.emit(requestID, Pass(trace.ReasonSizeMatched, vars),
		fmt.Sprintf("creative size %dx%d matches requirement", req.Size.W, req.Size.H))
}

func (f *SizeMatchFilter) emit(requestID string, res Result, reasoning string) Result {
	f.sink.Write(&trace.Record{
		RequestID: requestID,
		Node:      trace.NodeADX,
		Action:    trace.ActionSizeMatchCheck,
		Decision:  decisionOf(res),
		Reason:    res.Reason,
		Vars:      res.Snapshot,
		Reasoning: reasoning,
	})
	return res
}

// LatencyFilter rejects requests whose processing latency exceeds the
// budget. The rejection records the potential eCPM loss computed from the
// collected bids so timed-out demand shows up in loss accounting.
type LatencyFilter struct {
	maxLatencyMS float64
	sink         trace.Sink
}

func NewLatencyFilter(maxLatencyMS float64, sink trace.Sink) *LatencyFilter {
	return &LatencyFilter{maxLatencyMS: maxLatencyMS, sink: sink}
}

func (f *LatencyFilter) Name() string { return "LatencyTimeoutFilter" }

func (f *LatencyFilter) Apply(requestID string, req *core.Request, bids *BidContext) Result {
	vars := map[string]any{
		"latency_ms":     req.LatencyMS,
		"max_latency_ms": f.maxLatencyMS,
		"filter_name":    f.Name(),
	}

	if req.LatencyMS <= f.maxLatencyMS {
		res := Pass(trace.ReasonLatencyOK, vars)
		f.sink.Write(&trace.Record{
			RequestID: requestID,
			Node:      trace.NodeADX,
			Action:    trace.ActionLatencyCheck,
			Decision:  trace.DecisionPass,
			Reason:    res.Reason,
			Vars:      vars,
			Reasoning: fmt.Sprintf("latency %.1fms within budget (<=%.0fms)", req.LatencyMS, f.maxLatencyMS),
			LatencyMS: trace.F(req.LatencyMS),
		})
		return res
	}

	loss := PotentialLoss(bids)
	vars["potential_loss"] = loss
	vars["max_potential_ecpm"] = loss
	if bids != nil {
		vars["total_bids"] = len(bids.Bids)
	}

	res := Reject(trace.ReasonLatencyTimeout, vars)
	f.sink.Write(&trace.Record{
		RequestID: requestID,
		Node:      trace.NodeADX,
		Action:    trace.ActionLatencyCheck,
		Decision:  trace.DecisionReject,
		Reason:    res.Reason,
		Vars:      vars,
		Reasoning: fmt.Sprintf("latency %.1fms exceeds budget %.0fms, potential eCPM loss %.4f",
			req.LatencyMS, f.maxLatencyMS, loss),
		LatencyMS: trace.F(req.LatencyMS),
		ECPM:      trace.F(loss),
	})
	return res
}

// CreativeComplianceFilter models creative policy review: a configured
// fraction of creatives fails compliance. Rejections record potential loss.
type CreativeComplianceFilter struct {
	rejectionRate float64
	rng           rnd.Source
	sink          trace.Sink
}

func NewCreativeComplianceFilter(rejectionRate float64, rng rnd.Source, sink trace.Sink) *CreativeComplianceFilter {
	return &CreativeComplianceFilter{rejectionRate: rejectionRate, rng: rng, sink: sink}
}

func (f *CreativeComplianceFilter) Name() string { return "CreativeComplianceFilter" }

func (f *CreativeComplianceFilter) Apply(requestID string, req *core.Request, bids *BidContext) Result {
	compliant := f.rng.Float64() > f.rejectionRate
	vars := map[string]any{
		"is_compliant":   compliant,
		"rejection_rate": f.rejectionRate,
		"filter_name":    f.Name(),
	}

	if compliant {
		res := Pass(trace.ReasonCreativeCompliant, vars)
		f.sink.Write(&trace.Record{
			RequestID: requestID,
			Node:      trace.NodeADX,
			Action:    trace.ActionCreativeCheck,
			Decision:  trace.DecisionPass,
			Reason:    res.Reason,
			Vars:      vars,
			Reasoning: "creative passed compliance review",
		})
		return res
	}

	loss := PotentialLoss(bids)
	vars["potential_loss"] = loss
	vars["max_potential_ecpm"] = loss

	res := Reject(trace.ReasonCreativeMismatch, vars)
	f.sink.Write(&trace.Record{
		RequestID: requestID,
		Node:      trace.NodeADX,
		Action:    trace.ActionCreativeCheck,
		Decision:  trace.DecisionReject,
		Reason:    res.Reason,
		Vars:      vars,
		Reasoning: fmt.Sprintf("creative failed compliance review, potential eCPM loss %.4f", loss),
		ECPM:      trace.F(loss),
	})
	return res
}

// FloorPriceFilter checks the best collected bid against the floor. It
// requires submitted bids and therefore runs last, but remains part of the
// chain contract.
type FloorPriceFilter struct {
	floorPrice float64
	sink       trace.Sink
}

func NewFloorPriceFilter(floorPrice float64, sink trace.Sink) *FloorPriceFilter {
	return &FloorPriceFilter{floorPrice: floorPrice, sink: sink}
}

func (f *FloorPriceFilter) Name() string { return "FloorPriceFilter" }

func (f *FloorPriceFilter) Apply(requestID string, req *core.Request, bids *BidContext) Result {
	vars := map[string]any{
		"floor_price": f.floorPrice,
		"filter_name": f.Name(),
	}

	if bids == nil || len(bids.Bids) == 0 {
		vars["bid_price"] = 0.0
		return f.emit(requestID, Reject(trace.ReasonNoValidBids, vars),
			"no bids submitted before floor price check")
	}

	best := bids.HighestPrice()
	vars["bid_price"] = best

	if best >= f.floorPrice {
		return f.emit(requestID, Pass(trace.ReasonBidAboveFloor, vars),
			fmt.Sprintf("best bid %.4f clears floor %.4f", best, f.floorPrice))
	}
	vars["price_gap"] = f.floorPrice - best
	return f.emit(requestID, Reject(trace.ReasonBidBelowFloor, vars),
		fmt.Sprintf("best bid %.4f below floor %.4f, gap %.4f", best, f.floorPrice, f.floorPrice-best))
}

func (f *FloorPriceFilter) emit(requestID string, res Result, reasoning string) Result {
	f.sink.Write(&trace.Record{
		RequestID: requestID,
		Node:      trace.NodeADX,
		Action:    trace.ActionFloorPriceCheck,
		Decision:  decisionOf(res),
		Reason:    res.Reason,
		Vars:      res.Snapshot,
		Reasoning: reasoning,
	})
	return res
}

func decisionOf(res Result) trace.Decision {
	if res.Passed {
		return trace.DecisionPass
	}
	return trace.DecisionReject
}
