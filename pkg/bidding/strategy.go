// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package bidding turns probability estimates into priced bids, one per
// participating bidder per request.
package bidding

import (
	"fmt"
	"strings"

	"github.com/adxyz/exchange/core"
	"github.com/adxyz/exchange/pkg/trace"
)

// Strategy prices a bid from the request and its CTR score.
type Strategy interface {
	Name() string
	CalculateBid(requestID string, req *core.Request, ctrScore float64, hour int) (price float64, vars map[string]any, reasoning string)
}

// CTRBasedStrategy prices bids as base x ctrScore x multiplier, with the
// multiplier rewarding iOS inventory and peak hours.
type CTRBasedStrategy struct {
	BasePrice float64
}

func NewCTRBasedStrategy(basePrice float64) *CTRBasedStrategy {
	return &CTRBasedStrategy{BasePrice: basePrice}
}

func (s *CTRBasedStrategy) Name() string { return "CTRBasedBidding" }

func (s *CTRBasedStrategy) multiplier(platform core.Platform, hour int) (float64, string) {
	multiplier := 1.0
	var reasons []string

	if platform == core.PlatformIOS {
		multiplier *= 1.2
		reasons = append(reasons, "iOS platform x1.2")
	}
	if isPeakHour(hour) {
		multiplier *= 1.15
		reasons = append(reasons, fmt.Sprintf("peak hour (%d) x1.15", hour))
	}

	if len(reasons) == 0 {
		return multiplier, "no adjustment, base multiplier 1.0"
	}
	return multiplier, strings.Join(reasons, "; ")
}

func (s *CTRBasedStrategy) CalculateBid(requestID string, req *core.Request, ctrScore float64, hour int) (float64, map[string]any, string) {
	multiplier, multiplierReason := s.multiplier(req.Platform, hour)
	price := s.BasePrice * ctrScore * multiplier

	vars := map[string]any{
		"base_price":    s.BasePrice,
		"ctr_score":     ctrScore,
		"multiplier":    multiplier,
		"final_bid":     price,
		"platform":      req.Platform,
		"hour":          hour,
		"strategy_name": s.Name(),
	}
	reasoning := fmt.Sprintf("base %.2f x CTR score %.4f x multiplier %.2f = %.4f. %s",
		s.BasePrice, ctrScore, multiplier, price, multiplierReason)
	return price, vars, reasoning
}

func isPeakHour(hour int) bool {
	return (hour >= 9 && hour <= 11) || (hour >= 19 && hour <= 22)
}

// EmitCalculation writes the BID_CALCULATION trace record for a priced bid.
func EmitCalculation(sink trace.Sink, requestID string, vars map[string]any, reasoning string) {
	sink.Write(&trace.Record{
		RequestID: requestID,
		Node:      trace.NodeDSP,
		Action:    trace.ActionBidCalculation,
		Decision:  trace.DecisionPass,
		Reason:    trace.ReasonBidCalculated,
		Vars:      vars,
		Reasoning: reasoning,
	})
}
