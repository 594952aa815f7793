// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package engine orchestrates the full decision pipeline for one
// impression: attribution, quality scoring, parallel bid collection, the
// organic content funnel, the admission filter chain, second-price
// clearing, outlet routing and downstream distribution. Every stage
// leaves its trace record; the engine owns only the sequencing.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/adxyz/exchange/core"
	"github.com/adxyz/exchange/pkg/admission"
	"github.com/adxyz/exchange/pkg/auction"
	"github.com/adxyz/exchange/pkg/bidding"
	"github.com/adxyz/exchange/pkg/estimator"
	"github.com/adxyz/exchange/pkg/funnel"
	"github.com/adxyz/exchange/pkg/ledger"
	"github.com/adxyz/exchange/pkg/log"
	"github.com/adxyz/exchange/pkg/metric"
	"github.com/adxyz/exchange/pkg/quality"
	"github.com/adxyz/exchange/pkg/router"
	"github.com/adxyz/exchange/pkg/trace"
	"github.com/adxyz/exchange/pkg/traffic"
)

// Status is the terminal outcome class of one decision.
type Status string

const (
	StatusAccepted Status = "ACCEPTED"
	StatusRejected Status = "REJECTED"
)

// Result is the full outcome of deciding one impression request.
type Result struct {
	RequestID string           `json:"request_id"`
	Status    Status           `json:"status"`
	Reason    trace.ReasonCode `json:"reason"`

	Winner       string  `json:"winner,omitempty"`
	BidPrice     float64 `json:"bid_price"`
	ClearedPrice float64 `json:"actual_paid_price,omitempty"`
	SavedAmount  float64 `json:"saved_amount,omitempty"`
	ECPM         float64 `json:"ecpm,omitempty"`
	PCTR         float64 `json:"pctr,omitempty"`
	PCVR         float64 `json:"pcvr,omitempty"`
	QFactor      float64 `json:"q_factor"`
	LatencyMS    float64 `json:"latency_ms"`

	OrganicValue    float64 `json:"organic_ltv"`
	EVSearch        float64 `json:"ev_search"`
	EVPush          float64 `json:"ev_push"`
	OpportunityCost float64 `json:"opportunity_cost"`

	SelectedPath router.Outlet        `json:"selected_path,omitempty"`
	Distribution *router.Distribution `json:"distribution_result,omitempty"`
	Bids         []*core.Bid          `json:"all_bids,omitempty"`
}

// Options collects every dependency of the engine. All fields are
// required except Bidders, which defaults to a single bidder.
type Options struct {
	Source      *traffic.Source
	Scorer      *quality.Scorer
	Bidder      *bidding.Engine
	Chain       *admission.Chain
	Clearer     *auction.Clearer
	Funnel      *funnel.Funnel
	Opportunity *router.OpportunityManager
	Hub         *router.Hub
	Ledger      *ledger.Ledger
	Metrics     *metric.Metrics
	Sink        trace.Sink
	Log         log.Logger

	Bidders    []string
	FloorPrice float64
	BasePrice  float64

	// SKAN is optional; when set it is exposed for postback ingestion.
	SKAN *estimator.SKANOptimizer
}

// Engine runs the decision pipeline.
type Engine struct {
	source     *traffic.Source
	scorer     *quality.Scorer
	bidder     *bidding.Engine
	chain      *admission.Chain
	clearer    *auction.Clearer
	funnel     *funnel.Funnel
	opp        *router.OpportunityManager
	hub        *router.Hub
	ledger     *ledger.Ledger
	metrics    *metric.Metrics
	sink       trace.Sink
	log        log.Logger
	bidders    []string
	floorPrice float64
	basePrice  float64
	skan       *estimator.SKANOptimizer
}

// New creates an engine from its dependencies.
func New(opts Options) *Engine {
	bidders := opts.Bidders
	if len(bidders) == 0 {
		bidders = []string{"DSP_1"}
	}
	return &Engine{
		source:     opts.Source,
		scorer:     opts.Scorer,
		bidder:     opts.Bidder,
		chain:      opts.Chain,
		clearer:    opts.Clearer,
		funnel:     opts.Funnel,
		opp:        opts.Opportunity,
		hub:        opts.Hub,
		ledger:     opts.Ledger,
		metrics:    opts.Metrics,
		sink:       opts.Sink,
		log:        opts.Log,
		bidders:    bidders,
		floorPrice: opts.FloorPrice,
		basePrice:  opts.BasePrice,
		skan:       opts.SKAN,
	}
}

// Decide runs the full pipeline for one request. Rejections are results,
// not errors; the error return covers only context cancellation.
func (e *Engine) Decide(ctx context.Context, req *core.Request) (*Result, error) {
	start := time.Now()
	defer func() {
		e.metrics.DecisionDuration.Observe(time.Since(start).Seconds())
	}()
	e.metrics.RequestsTotal.Inc()

	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	if req.Timestamp.IsZero() {
		req.Timestamp = time.Now()
	}

	// Upstream attribution enriches the request before anything reads it.
	attr := e.source.Attribute(req.DeviceID)
	req.Channel = attr.Channel
	req.AttributionCost = attr.Cost
	req.AttributionConf = attr.Confidence
	req.UserTags = attr.UserTags
	e.emitReceived(req)

	qFactor, assessment := e.scorer.Score(req.RequestID, req)
	if assessment.HighRisk {
		e.metrics.QualityWarnTotal.Inc()
	}

	bids, err := e.collectBids(ctx, req, qFactor)
	if err != nil {
		return nil, err
	}

	fOut := e.funnel.Process(req.RequestID, req.UserTags, nil)
	searchEV, _ := e.opp.SearchValue(req.DeviceID, req)
	pushEV, _ := e.opp.PushValue(req.DeviceID, req)

	res := &Result{
		RequestID:    req.RequestID,
		QFactor:      qFactor,
		LatencyMS:    req.LatencyMS,
		OrganicValue: fOut.OrganicValue,
		EVSearch:     searchEV,
		EVPush:       pushEV,
		Bids:         bids,
	}

	// Admission runs with the collected bids so rejections can account
	// the demand they discard.
	bidCtx := &admission.BidContext{Bids: bids, FloorPrice: e.floorPrice}
	admitted := e.chain.Apply(req.RequestID, req, bidCtx)
	if !admitted.Passed {
		loss := admission.PotentialLoss(bidCtx)
		e.ledger.RecordLoss(req.RequestID, admitted.Reason, loss)
		e.metrics.RejectedTotal.WithLabelValues(string(admitted.Reason)).Inc()
		e.metrics.PotentialLoss.Add(loss)

		res.Status = StatusRejected
		res.Reason = admitted.Reason
		res.BidPrice = bidCtx.HighestPrice()
		return res, nil
	}
	e.metrics.AdmittedTotal.Inc()

	// Outlet routing compares the best quality-adjusted ad value against
	// the organic and push estimates. Ads fill the slot only when their
	// value strictly beats both alternatives.
	var maxECPM float64
	for _, b := range bids {
		if ecpm := b.ECPM(); ecpm > maxECPM {
			maxECPM = ecpm
		}
	}
	decision := router.Route(maxECPM/1000, fOut.OrganicValue, pushEV)
	res.OpportunityCost = decision.OpportunityCost
	res.SelectedPath = decision.Selected

	if decision.Selected != router.OutletAds {
		router.Emit(e.sink, req.RequestID, decision)
		e.metrics.OutletSelected.WithLabelValues(string(decision.Selected)).Inc()
		res.Distribution = e.hub.Distribute(req.RequestID, req, decision.Selected, nil)

		res.Status = StatusRejected
		res.Reason = trace.ReasonOrganicValueHigher
		if decision.Selected == router.OutletPush {
			res.Reason = trace.ReasonPushValueHigher
		}
		return res, nil
	}

	// The routing decision is traced before clearing so the opportunity
	// check appears even when the auction cannot settle.
	router.Emit(e.sink, req.RequestID, decision)

	cleared, err := e.clearer.Clear(req.RequestID, bids)
	if err != nil {
		res.Status = StatusRejected
		res.Reason = trace.ReasonAuctionFailed
		return res, nil
	}
	e.metrics.AuctionsTotal.Inc()

	winner := cleared.Winner
	if err := e.ledger.Charge(winner.BidderID, cleared.ClearedPrice, cleared.SavedAmount); err != nil {
		e.log.Warn("winner could not settle",
			"request_id", req.RequestID,
			"bidder", winner.BidderID,
			"price", cleared.ClearedPrice,
			"err", err)
		loss := admission.PotentialLoss(bidCtx)
		e.ledger.RecordLoss(req.RequestID, trace.ReasonBudgetExhausted, loss)
		e.metrics.RejectedTotal.WithLabelValues(string(trace.ReasonBudgetExhausted)).Inc()

		res.Status = StatusRejected
		res.Reason = trace.ReasonBudgetExhausted
		return res, nil
	}
	e.metrics.RevenueTotal.Add(cleared.ClearedPrice)
	e.metrics.SavedTotal.Add(cleared.SavedAmount)
	e.metrics.OutletSelected.WithLabelValues(string(router.OutletAds)).Inc()

	res.Distribution = e.hub.Distribute(req.RequestID, req, router.OutletAds, &router.AdPlacement{
		Winner:       winner.BidderID,
		BidPrice:     winner.Price,
		ECPM:         cleared.WinnerECPM,
		ClearedPrice: cleared.ClearedPrice,
	})

	res.Status = StatusAccepted
	res.Reason = trace.ReasonAuctionWon
	res.Winner = winner.BidderID
	res.BidPrice = winner.Price
	res.ClearedPrice = cleared.ClearedPrice
	res.SavedAmount = cleared.SavedAmount
	res.ECPM = cleared.WinnerECPM
	res.PCTR = winner.PCTR
	res.PCVR = winner.PCVR

	e.log.Info("impression served",
		"request_id", req.RequestID,
		"winner", winner.BidderID,
		"ecpm", cleared.WinnerECPM,
		"paid", cleared.ClearedPrice)
	return res, nil
}

// collectBids fans out to every bidder in parallel and gathers the bids
// that cleared the floor. Bidders whose budget cannot cover the base
// price sit the auction out.
func (e *Engine) collectBids(ctx context.Context, req *core.Request, qFactor float64) ([]*core.Bid, error) {
	g, ctx := errgroup.WithContext(ctx)

	var mu sync.Mutex
	var bids []*core.Bid

	for _, bidderID := range e.bidders {
		bidderID := bidderID
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			start := time.Now()
			defer func() {
				e.metrics.BidLatency.Observe(time.Since(start).Seconds())
			}()

			if !e.ledger.CanAfford(bidderID, e.basePrice) {
				e.sink.Write(&trace.Record{
					RequestID: req.RequestID,
					Node:      trace.NodeDSP,
					Action:    trace.ActionBidSubmitted,
					Decision:  trace.DecisionReject,
					Reason:    trace.ReasonBudgetExhausted,
					Vars:      map[string]any{"bidder_id": bidderID},
					Reasoning: fmt.Sprintf("bidder %s sat out: remaining budget below base price", bidderID),
				})
				return nil
			}

			bid := e.bidder.Bid(req.RequestID, bidderID, req, qFactor, e.floorPrice)
			if bid == nil {
				return nil
			}
			e.metrics.BidsSubmitted.Inc()
			mu.Lock()
			bids = append(bids, bid)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return bids, nil
}

func (e *Engine) emitReceived(req *core.Request) {
	e.sink.Write(&trace.Record{
		RequestID: req.RequestID,
		Node:      trace.NodeSSP,
		Action:    trace.ActionRequestReceived,
		Decision:  trace.DecisionPass,
		Reason:    trace.ReasonRequestAccepted,
		Vars: map[string]any{
			"device_id":         req.DeviceID,
			"app_id":            req.AppID,
			"platform":          req.Platform,
			"ad_size":           req.Size,
			"latency_ms":        req.LatencyMS,
			"traffic_channel":   req.Channel,
			"lifecycle_stage":   req.UserTags.LifecycleStage,
			"registration_days": req.UserTags.RegistrationDays,
		},
		Reasoning: fmt.Sprintf("request received from %s on %s, attributed to %s channel (confidence %.2f)",
			req.DeviceID, req.Platform, req.Channel, req.AttributionConf),
		LatencyMS:       trace.F(req.LatencyMS),
		TrafficChannel:  string(req.Channel),
		AttributionCost: trace.F(req.AttributionCost),
		AttributionConf: trace.F(req.AttributionConf),
		UserLTV:         trace.F(req.UserTags.LTV),
		LifecycleStage:  string(req.UserTags.LifecycleStage),
	})
}
