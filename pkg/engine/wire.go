// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package engine

import (
	"fmt"
	"time"

	"github.com/adxyz/exchange/core"
	"github.com/adxyz/exchange/pkg/admission"
	"github.com/adxyz/exchange/pkg/auction"
	"github.com/adxyz/exchange/pkg/bidding"
	"github.com/adxyz/exchange/pkg/config"
	"github.com/adxyz/exchange/pkg/estimator"
	"github.com/adxyz/exchange/pkg/funnel"
	"github.com/adxyz/exchange/pkg/ledger"
	"github.com/adxyz/exchange/pkg/log"
	"github.com/adxyz/exchange/pkg/metric"
	"github.com/adxyz/exchange/pkg/quality"
	"github.com/adxyz/exchange/pkg/rnd"
	"github.com/adxyz/exchange/pkg/router"
	"github.com/adxyz/exchange/pkg/trace"
	"github.com/adxyz/exchange/pkg/traffic"
)

// Build wires a complete engine from configuration. The sink and logger
// are injected so binaries decide where traces and logs go; everything
// else is constructed here.
func Build(cfg *config.Config, rng rnd.Source, sink trace.Sink, logger log.Logger) *Engine {
	metrics := metric.New()
	led := ledger.New(logger)

	bidders := make([]string, 0, cfg.Bidding.NumBidders)
	for i := 0; i < cfg.Bidding.NumBidders; i++ {
		id := fmt.Sprintf("DSP_%d", i+1)
		bidders = append(bidders, id)
		if cfg.Bidding.Budget > 0 {
			led.SetBudget(id, cfg.Bidding.Budget)
		}
	}

	skan := estimator.NewSKANOptimizer(rng, sink)
	est := estimator.New(rng, sink, skan)
	strategy := bidding.NewCTRBasedStrategy(cfg.Bidding.BasePrice)
	bidEngine := bidding.NewEngine(est, strategy, sink, logger)

	store := quality.NewStore()
	scorer := quality.NewScorer(store, rng, sink, logger, cfg.Quality.FraudRate)

	chain := admission.NewChain(sink,
		admission.NewBlacklistFilter(cfg.Filters.Blacklist, sink),
		admission.NewSizeMatchFilter(core.Size{W: cfg.Filters.RequiredWidth, H: cfg.Filters.RequiredHeight}, sink),
		admission.NewLatencyFilter(cfg.Filters.MaxLatencyMS, sink),
		admission.NewCreativeComplianceFilter(cfg.Filters.CreativeRejectionRate, rng, sink),
		admission.NewFloorPriceFilter(cfg.Auction.FloorPrice, sink),
	)

	clearer := auction.NewClearer(cfg.Auction.FloorPrice, cfg.Auction.Epsilon, sink, logger)

	pool := funnel.NewPool(cfg.Funnel.PoolSize, rng)
	weights := funnel.Weights{
		CTR:     cfg.Funnel.CTRWeight,
		Like:    cfg.Funnel.LikeWeight,
		Finish:  cfg.Funnel.FinishWeight,
		Comment: cfg.Funnel.CommentWeight,
	}
	fun := funnel.New(pool, weights, cfg.Funnel.RecallSize, rng, sink)

	opp := router.NewOpportunityManager(rng)
	hub := router.NewHub(fun, opp, sink)

	return New(Options{
		Source:      traffic.NewSource(rng),
		Scorer:      scorer,
		Bidder:      bidEngine,
		Chain:       chain,
		Clearer:     clearer,
		Funnel:      fun,
		Opportunity: opp,
		Hub:         hub,
		Ledger:      led,
		Metrics:     metrics,
		Sink:        sink,
		Log:         logger,
		Bidders:     bidders,
		FloorPrice:  cfg.Auction.FloorPrice,
		BasePrice:   cfg.Bidding.BasePrice,
		SKAN:        skan,
	})
}

// BuildDefault wires an engine with production defaults and a
// time-seeded random source, for tools and examples.
func BuildDefault(sink trace.Sink, logger log.Logger) *Engine {
	return Build(config.Default(), rnd.NewSource(time.Now().UnixNano()), sink, logger)
}

// Ledger exposes the accounting store for operator surfaces.
func (e *Engine) Ledger() *ledger.Ledger { return e.ledger }

// SKAN exposes the conversion optimizer for postback ingestion. May be nil.
func (e *Engine) SKAN() *estimator.SKANOptimizer { return e.skan }

// Metrics exposes the metric set for the admin server.
func (e *Engine) Metrics() *metric.Metrics { return e.metrics }
