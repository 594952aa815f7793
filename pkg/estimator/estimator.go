// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package estimator produces click and conversion probability estimates per
// bid. Platforms with unobstructed attribution draw conversion directly;
// privacy-constrained platforms (iOS) route through the probabilistic SKAN
// sub-estimator, whose output is provisional and must never be treated as
// ground truth downstream.
package estimator

import (
	"fmt"
	"time"

	"github.com/adxyz/exchange/core"
	"github.com/adxyz/exchange/pkg/rnd"
	"github.com/adxyz/exchange/pkg/trace"
)

// Draw bounds for the simulated probability signals.
const (
	minPCTR = 0.001
	maxPCTR = 0.05
	minPCVR = 0.01
	maxPCVR = 0.10
)

// Estimate is the outcome of estimating one bidder's probabilities.
type Estimate struct {
	PCTR     float64
	PCVR     float64
	CTRScore float64
	SKAN     *SKANDetails
}

// Estimator produces per-bid probability estimates.
type Estimator struct {
	rng  rnd.Source
	sink trace.Sink
	skan *SKANOptimizer
	now  func() time.Time
}

// New creates an estimator. skan may be nil to disable the
// privacy-constrained path entirely.
func New(rng rnd.Source, sink trace.Sink, skan *SKANOptimizer) *Estimator {
	return &Estimator{rng: rng, sink: sink, skan: skan, now: time.Now}
}

// WithClock overrides the clock used for time-of-day adjustments.
func (e *Estimator) WithClock(now func() time.Time) *Estimator {
	e.now = now
	return e
}

// Estimate draws pCTR and pCVR for one bidder on the request and derives
// the normalized CTR score the pricing strategy consumes.
func (e *Estimator) Estimate(requestID, bidderID string, req *core.Request) Estimate {
	pctr := e.rng.Uniform(minPCTR, maxPCTR)

	var pcvr float64
	var skanDetails *SKANDetails
	if req.Platform == core.PlatformIOS && e.skan != nil {
		pcvr, skanDetails = e.skan.EstimatePCVR(requestID, req)
	} else {
		pcvr = e.rng.Uniform(minPCVR, maxPCVR)
	}

	hour := e.now().Hour()
	ctrScore := CTRScore(pctr, req.Platform, hour)

	vars := map[string]any{
		"bidder_id": bidderID,
		"ctr_score": ctrScore,
		"pctr":      pctr,
		"pcvr":      pcvr,
		"platform":  req.Platform,
		"hour":      hour,
	}
	reasoning := fmt.Sprintf("estimated pCTR %.2f%%, pCVR %.2f%%, CTR score %.4f (platform %s, hour %d)",
		pctr*100, pcvr*100, ctrScore, req.Platform, hour)
	if skanDetails != nil {
		vars["skan_optimized"] = true
		vars["conversion_value"] = skanDetails.ConversionValue
		vars["skan_confidence"] = skanDetails.Confidence
		vars["postback_delay_hours"] = skanDetails.PostbackDelayHours
		reasoning = fmt.Sprintf("estimated pCTR %.2f%%, pCVR %.2f%% (privacy-constrained, confidence %.1f%%), CTR score %.4f (platform %s, hour %d)",
			pctr*100, pcvr*100, skanDetails.Confidence*100, ctrScore, req.Platform, hour)
	}

	e.sink.Write(&trace.Record{
		RequestID: requestID,
		Node:      trace.NodeDSP,
		Action:    trace.ActionCTREstimation,
		Decision:  trace.DecisionPass,
		Reason:    trace.ReasonCTRCalculated,
		Vars:      vars,
		Reasoning: reasoning,
		PCTR:      trace.F(pctr),
		PCVR:      trace.F(pcvr),
	})

	return Estimate{PCTR: pctr, PCVR: pcvr, CTRScore: ctrScore, SKAN: skanDetails}
}

// CTRScore normalizes pCTR into [0,1] and applies platform and time-of-day
// multipliers. A pCTR at the upper draw bound maps to 1.0.
func CTRScore(pctr float64, platform core.Platform, hour int) float64 {
	score := pctr / maxPCTR
	if score > 1.0 {
		score = 1.0
	}

	switch platform {
	case core.PlatformIOS:
		score *= 1.1
	case core.PlatformAndroid:
		score *= 1.0
	default:
		score *= 0.9
	}

	if IsPeakHour(hour) {
		score *= 1.05
	}
	return score
}

// IsPeakHour reports whether hour falls into a high-engagement window.
func IsPeakHour(hour int) bool {
	return (hour >= 9 && hour <= 11) || (hour >= 19 && hour <= 22)
}
