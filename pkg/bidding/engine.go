// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package bidding

import (
	"fmt"
	"time"

	"github.com/adxyz/exchange/core"
	"github.com/adxyz/exchange/pkg/estimator"
	"github.com/adxyz/exchange/pkg/log"
	"github.com/adxyz/exchange/pkg/trace"
)

// Engine produces one bid per bidder by combining estimator output with
// the pricing strategy. Bids priced below the floor are withheld.
type Engine struct {
	estimator *estimator.Estimator
	strategy  Strategy
	sink      trace.Sink
	log       log.Logger
	now       func() time.Time
}

// NewEngine creates a bid engine.
func NewEngine(est *estimator.Estimator, strategy Strategy, sink trace.Sink, logger log.Logger) *Engine {
	return &Engine{
		estimator: est,
		strategy:  strategy,
		sink:      sink,
		log:       logger,
		now:       time.Now,
	}
}

// WithClock overrides the clock used for time-of-day pricing.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Bid estimates and prices one bidder's offer for the request. The quality
// factor is applied at clearing time, not here; it travels on the bid. A
// nil return means the bidder sat out (priced below floor).
func (e *Engine) Bid(requestID, bidderID string, req *core.Request, qFactor, floorPrice float64) *core.Bid {
	est := e.estimator.Estimate(requestID, bidderID, req)

	hour := e.now().Hour()
	price, vars, reasoning := e.strategy.CalculateBid(requestID, req, est.CTRScore, hour)
	EmitCalculation(e.sink, requestID, vars, reasoning)

	if price < floorPrice {
		e.log.Debug("bid withheld below floor",
			"request_id", requestID,
			"bidder", bidderID,
			"price", price,
			"floor", floorPrice)
		return nil
	}

	bid := &core.Bid{
		BidderID:   bidderID,
		Price:      price,
		PCTR:       est.PCTR,
		PCVR:       est.PCVR,
		QFactor:    qFactor,
		FloorPrice: floorPrice,
	}
	if est.SKAN != nil {
		bid.AttributionDelayed = true
		bid.PostbackDelayHours = est.SKAN.PostbackDelayHours
	}

	e.sink.Write(&trace.Record{
		RequestID: requestID,
		Node:      trace.NodeDSP,
		Action:    trace.ActionBidSubmitted,
		Decision:  trace.DecisionPass,
		Reason:    trace.ReasonBidSubmitted,
		Vars: map[string]any{
			"bidder_id": bidderID,
			"bid_price": price,
			"pctr":      est.PCTR,
			"pcvr":      est.PCVR,
			"q_factor":  qFactor,
		},
		Reasoning: fmt.Sprintf("bidder %s submitted %.4f. %s", bidderID, price, reasoning),
	})

	return bid
}
