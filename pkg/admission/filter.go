// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package admission implements the ordered pass/reject filter chain that
// gates every impression request. Filters run in a fixed, configuration
// defined order and the chain short-circuits on the first rejection. Every
// filter evaluation, pass or reject, emits exactly one trace record.
package admission

import (
	"github.com/adxyz/exchange/core"
	"github.com/adxyz/exchange/pkg/trace"
)

// Result is the tagged outcome of one filter evaluation. Either the filter
// passed, or it rejected with a reason code and a snapshot of the variables
// that produced the decision.
type Result struct {
	Passed   bool
	Reason   trace.ReasonCode
	Snapshot map[string]any
}

// Pass builds a passing result.
func Pass(reason trace.ReasonCode, snapshot map[string]any) Result {
	return Result{Passed: true, Reason: reason, Snapshot: snapshot}
}

// Reject builds a rejecting result.
func Reject(reason trace.ReasonCode, snapshot map[string]any) Result {
	return Result{Passed: false, Reason: reason, Snapshot: snapshot}
}

// BidContext is the accumulated bid state available to filters that run
// after bid collection (floor price, loss accounting on rejection).
type BidContext struct {
	Bids       []*core.Bid
	FloorPrice float64
}

// HighestPrice returns the highest raw bid price, or zero without bids.
func (c *BidContext) HighestPrice() float64 {
	var max float64
	for _, b := range c.Bids {
		if b.Price > max {
			max = b.Price
		}
	}
	return max
}

// Filter is one admission predicate. Filters never return errors: a
// missing or malformed request field rejects with a dedicated reason code
// so the chain always terminates.
type Filter interface {
	Name() string
	Apply(requestID string, req *core.Request, bids *BidContext) Result
}

// Chain is an ordered sequence of filters.
type Chain struct {
	filters []Filter
	sink    trace.Sink
}

// NewChain creates a chain over the given filters, evaluated in order.
func NewChain(sink trace.Sink, filters ...Filter) *Chain {
	return &Chain{filters: filters, sink: sink}
}

// Add appends a filter to the end of the chain.
func (c *Chain) Add(f Filter) {
	c.filters = append(c.filters, f)
}

// Len returns the number of filters in the chain.
func (c *Chain) Len() int { return len(c.filters) }

// Apply runs every filter in order, stopping at the first rejection. The
// final decision is emitted as its own trace record in both outcomes.
func (c *Chain) Apply(requestID string, req *core.Request, bids *BidContext) Result {
	for _, f := range c.filters {
		res := f.Apply(requestID, req, bids)
		if !res.Passed {
			c.sink.Write(&trace.Record{
				RequestID: requestID,
				Node:      trace.NodeADX,
				Action:    trace.ActionFinalDecision,
				Decision:  trace.DecisionReject,
				Reason:    res.Reason,
				Vars:      res.Snapshot,
				Reasoning: "request rejected by " + f.Name() + ": " + string(res.Reason),
			})
			return res
		}
	}

	c.sink.Write(&trace.Record{
		RequestID: requestID,
		Node:      trace.NodeADX,
		Action:    trace.ActionFinalDecision,
		Decision:  trace.DecisionPass,
		Reason:    trace.ReasonAllFiltersPassed,
		Vars:      map[string]any{"filters_count": len(c.filters)},
		Reasoning: "all admission filters passed, request accepted",
	})
	return Pass(trace.ReasonAllFiltersPassed, nil)
}
