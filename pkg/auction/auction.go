// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package auction ranks collected bids by quality-adjusted eCPM and clears
// the winner at a second price.
package auction

import (
	"errors"
	"fmt"
	"sort"

	"github.com/adxyz/exchange/core"
	"github.com/adxyz/exchange/pkg/log"
	"github.com/adxyz/exchange/pkg/trace"
)

var (
	ErrNoValidBids = errors.New("no valid bids")
)

// DefaultEpsilon is the increment keeping the cleared price strictly above
// the runner-up's value, in currency units.
const DefaultEpsilon = 0.01

// Result is the outcome of clearing one auction.
type Result struct {
	Winner         *core.Bid
	WinnerECPM     float64
	OriginalECPM   float64 // winner's eCPM before quality adjustment
	SecondBestBid  float64
	SecondECPM     float64
	ClearedPrice   float64
	SavedAmount    float64
	HasCompetition bool
	RankedBids     []*core.Bid
}

// Clearer runs second-price auctions over bid sets.
type Clearer struct {
	floorPrice float64
	epsilon    float64
	sink       trace.Sink
	log        log.Logger
}

// NewClearer creates a clearer. A zero epsilon falls back to the default.
func NewClearer(floorPrice, epsilon float64, sink trace.Sink, logger log.Logger) *Clearer {
	if epsilon <= 0 {
		epsilon = DefaultEpsilon
	}
	return &Clearer{floorPrice: floorPrice, epsilon: epsilon, sink: sink, log: logger}
}

// Clear ranks the bids by adjusted eCPM and applies second-price clearing.
// Ties on eCPM break on higher raw price, then lower bidder id, so the
// outcome never depends on submission order. Returns ErrNoValidBids for an
// empty bid set.
func (c *Clearer) Clear(requestID string, bids []*core.Bid) (*Result, error) {
	if len(bids) == 0 {
		return nil, ErrNoValidBids
	}

	ranked := make([]*core.Bid, len(bids))
	copy(ranked, bids)
	for _, b := range ranked {
		b.AdjustedECPM = b.ECPM()
		b.OriginalECPM = b.RawECPM()
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].AdjustedECPM != ranked[j].AdjustedECPM {
			return ranked[i].AdjustedECPM > ranked[j].AdjustedECPM
		}
		if ranked[i].Price != ranked[j].Price {
			return ranked[i].Price > ranked[j].Price
		}
		return ranked[i].BidderID < ranked[j].BidderID
	})

	winner := ranked[0]
	res := &Result{
		Winner:         winner,
		WinnerECPM:     winner.AdjustedECPM,
		OriginalECPM:   winner.OriginalECPM,
		HasCompetition: len(ranked) > 1,
		RankedBids:     ranked,
	}

	if len(ranked) > 1 {
		second := ranked[1]
		res.SecondBestBid = second.Price
		res.SecondECPM = second.AdjustedECPM
		res.ClearedPrice = (second.AdjustedECPM + c.epsilon) / (1000 * winner.PCTR * winner.PCVR)
	} else {
		// Single bid: no competition, clear at the floor.
		res.SecondBestBid = c.floorPrice
		res.SecondECPM = 0
		res.ClearedPrice = c.floorPrice
	}

	if res.ClearedPrice > winner.Price {
		res.ClearedPrice = winner.Price
	}
	// Savings exist only against competition: an uncontested winner pays
	// the floor and saves nothing by definition.
	if res.HasCompetition {
		res.SavedAmount = winner.Price - res.ClearedPrice
		if res.SavedAmount < 0 {
			res.SavedAmount = 0
		}
	}

	c.sink.Write(&trace.Record{
		RequestID: requestID,
		Node:      trace.NodeADX,
		Action:    trace.ActionAuctionResult,
		Decision:  trace.DecisionPass,
		Reason:    trace.ReasonAuctionWon,
		Vars: map[string]any{
			"winner_bidder":       winner.BidderID,
			"winner_bid":          winner.Price,
			"winner_ecpm":         res.WinnerECPM,
			"winner_pctr":         winner.PCTR,
			"winner_pcvr":         winner.PCVR,
			"winner_q_factor":     winner.QFactor,
			"second_best_bid":     res.SecondBestBid,
			"second_highest_ecpm": res.SecondECPM,
			"actual_paid_price":   res.ClearedPrice,
			"saved_amount":        res.SavedAmount,
			"total_bids":          len(bids),
			"has_competition":     res.HasCompetition,
		},
		Reasoning: fmt.Sprintf("auction cleared: %s won with eCPM %.4f (raw %.4f), second eCPM %.4f, pays %.4f, saves %.4f",
			winner.BidderID, res.WinnerECPM, res.OriginalECPM, res.SecondECPM, res.ClearedPrice, res.SavedAmount),
		PCTR:            trace.F(winner.PCTR),
		PCVR:            trace.F(winner.PCVR),
		ECPM:            trace.F(res.WinnerECPM),
		SecondBestBid:   trace.F(res.SecondBestBid),
		ActualPaidPrice: trace.F(res.ClearedPrice),
		SavedAmount:     trace.F(res.SavedAmount),
		QFactor:         trace.F(winner.QFactor),
		OriginalECPM:    trace.F(res.OriginalECPM),
	})

	c.log.Debug("auction cleared",
		"request_id", requestID,
		"winner", winner.BidderID,
		"ecpm", res.WinnerECPM,
		"price", res.ClearedPrice,
		"bids", len(bids))

	return res, nil
}
