// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package analytics audits decision trace logs. It replays a JSONL trace,
// aggregates outcomes, and re-derives every auction's economics from the
// recorded variables so pricing bugs surface as verification violations.
package analytics

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"math"

	"github.com/shopspring/decimal"

	"github.com/adxyz/exchange/pkg/trace"
)

// ecpmTolerance is the absolute error allowed when re-deriving a recorded
// eCPM from its factors.
const ecpmTolerance = 1e-6

// Violation is one failed consistency check.
type Violation struct {
	RequestID string
	Check     string
	Detail    string
}

// Report is the aggregate view of one trace log.
type Report struct {
	Records    int
	ByAction   map[trace.Action]int
	ByDecision map[trace.Decision]int
	ByReason   map[trace.ReasonCode]int

	Auctions      int
	Revenue       decimal.Decimal
	Saved         decimal.Decimal
	PotentialLoss decimal.Decimal

	Violations []Violation
}

// Analyze replays a JSONL trace stream into a report. Unparseable lines
// are counted as violations, not fatal errors; a truncated tail line is
// common on live logs.
func Analyze(r io.Reader) (*Report, error) {
	rep := &Report{
		ByAction:      make(map[trace.Action]int),
		ByDecision:    make(map[trace.Decision]int),
		ByReason:      make(map[trace.ReasonCode]int),
		Revenue:       decimal.Zero,
		Saved:         decimal.Zero,
		PotentialLoss: decimal.Zero,
	}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec trace.Record
		if err := json.Unmarshal(line, &rec); err != nil {
			rep.Violations = append(rep.Violations, Violation{
				Check:  "parse",
				Detail: err.Error(),
			})
			continue
		}
		rep.observe(&rec)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading trace: %w", err)
	}
	return rep, nil
}

func (rep *Report) observe(rec *trace.Record) {
	rep.Records++
	rep.ByAction[rec.Action]++
	rep.ByDecision[rec.Decision]++
	rep.ByReason[rec.Reason]++

	switch rec.Action {
	case trace.ActionAuctionResult:
		rep.Auctions++
		if rec.ActualPaidPrice != nil {
			rep.Revenue = rep.Revenue.Add(decimal.NewFromFloat(*rec.ActualPaidPrice))
		}
		if rec.SavedAmount != nil {
			rep.Saved = rep.Saved.Add(decimal.NewFromFloat(*rec.SavedAmount))
		}
		rep.verifyAuction(rec)

	case trace.ActionLatencyCheck, trace.ActionCreativeCheck:
		if rec.Decision == trace.DecisionReject && rec.ECPM != nil {
			rep.PotentialLoss = rep.PotentialLoss.Add(decimal.NewFromFloat(*rec.ECPM))
		}
	}
}

// verifyAuction re-derives the winner's eCPM and the clearing invariants
// from the record's own variables.
func (rep *Report) verifyAuction(rec *trace.Record) {
	bid, okBid := floatVar(rec.Vars, "winner_bid")
	if !okBid || rec.PCTR == nil || rec.PCVR == nil || rec.QFactor == nil || rec.ECPM == nil {
		rep.violate(rec, "auction_fields", "auction record missing pricing variables")
		return
	}

	expected := bid * *rec.PCTR * *rec.PCVR * *rec.QFactor * 1000
	if math.Abs(expected-*rec.ECPM) > ecpmTolerance {
		rep.violate(rec, "ecpm_derivation",
			fmt.Sprintf("recorded eCPM %.6f, derived %.6f", *rec.ECPM, expected))
	}

	if rec.ActualPaidPrice != nil && *rec.ActualPaidPrice > bid+ecpmTolerance {
		rep.violate(rec, "cleared_price_bound",
			fmt.Sprintf("cleared %.6f exceeds winning bid %.6f", *rec.ActualPaidPrice, bid))
	}
	if rec.SavedAmount != nil && *rec.SavedAmount < 0 {
		rep.violate(rec, "saved_amount_sign",
			fmt.Sprintf("negative savings %.6f", *rec.SavedAmount))
	}
	// The savings identity holds only for contested auctions; uncontested
	// winners pay the floor and save nothing.
	contested, _ := rec.Vars["has_competition"].(bool)
	if contested && rec.ActualPaidPrice != nil && rec.SavedAmount != nil {
		if math.Abs(bid-*rec.ActualPaidPrice-*rec.SavedAmount) > ecpmTolerance {
			rep.violate(rec, "savings_identity",
				fmt.Sprintf("bid %.6f - paid %.6f != saved %.6f", bid, *rec.ActualPaidPrice, *rec.SavedAmount))
		}
	}
}

func (rep *Report) violate(rec *trace.Record, check, detail string) {
	rep.Violations = append(rep.Violations, Violation{
		RequestID: rec.RequestID,
		Check:     check,
		Detail:    detail,
	})
}

func floatVar(vars map[string]any, key string) (float64, bool) {
	if vars == nil {
		return 0, false
	}
	v, ok := vars[key].(float64)
	return v, ok
}
