// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package trace defines the append-only decision record emitted at every
// decision point of the exchange pipeline, and the sinks that persist and
// stream those records. Records are created at stage execution and never
// mutated afterwards.
package trace

import "time"

// Node identifies the pipeline node that produced a record.
type Node string

const (
	NodeSSP    Node = "SSP"
	NodeADX    Node = "ADX"
	NodeDSP    Node = "DSP"
	NodeFunnel Node = "SEARCH_RECOMMENDATION"
	NodeHub    Node = "DISTRIBUTION_HUB"
)

// Decision is the outcome class of a decision point.
type Decision string

const (
	DecisionPass    Decision = "PASS"
	DecisionReject  Decision = "REJECT"
	DecisionWarning Decision = "WARNING"
)

// Action names the operation a record describes.
type Action string

const (
	ActionRequestGenerated Action = "REQUEST_GENERATED"
	ActionRequestReceived  Action = "REQUEST_RECEIVED"
	ActionBlacklistCheck   Action = "BLACKLIST_CHECK"
	ActionSizeMatchCheck   Action = "SIZE_MATCH_CHECK"
	ActionLatencyCheck     Action = "LATENCY_CHECK"
	ActionCreativeCheck    Action = "CREATIVE_COMPLIANCE_CHECK"
	ActionFloorPriceCheck  Action = "FLOOR_PRICE_CHECK"
	ActionFinalDecision    Action = "FINAL_DECISION"
	ActionQualityScore     Action = "QUALITY_SCORE"
	ActionCTREstimation    Action = "CTR_ESTIMATION"
	ActionSKANOptimization Action = "SKAN_OPTIMIZATION"
	ActionBidCalculation   Action = "BID_CALCULATION"
	ActionBidSubmitted     Action = "BID_SUBMITTED"
	ActionAuctionResult    Action = "AUCTION_RESULT"
	ActionFunnelProcessing Action = "FUNNEL_PROCESSING"
	ActionOpportunityCheck Action = "OPPORTUNITY_COST_CHECK"
	ActionDistribution     Action = "DISTRIBUTION"
)

// ReasonCode is the machine-readable reason attached to a decision.
type ReasonCode string

const (
	ReasonRequestCreated     ReasonCode = "REQUEST_CREATED"
	ReasonRequestAccepted    ReasonCode = "REQUEST_ACCEPTED"
	ReasonNotInBlacklist     ReasonCode = "NOT_IN_BLACKLIST"
	ReasonInBlacklist        ReasonCode = "IN_BLACKLIST"
	ReasonSizeMatched        ReasonCode = "SIZE_MATCHED"
	ReasonSizeMismatch       ReasonCode = "SIZE_MISMATCH"
	ReasonLatencyOK          ReasonCode = "LATENCY_OK"
	ReasonLatencyTimeout     ReasonCode = "LATENCY_TIMEOUT"
	ReasonCreativeCompliant  ReasonCode = "CREATIVE_COMPLIANT"
	ReasonCreativeMismatch   ReasonCode = "CREATIVE_MISMATCH"
	ReasonBidAboveFloor      ReasonCode = "BID_ABOVE_FLOOR"
	ReasonBidBelowFloor      ReasonCode = "BID_BELOW_FLOOR"
	ReasonMalformedRequest   ReasonCode = "MALFORMED_REQUEST"
	ReasonAllFiltersPassed   ReasonCode = "ALL_FILTERS_PASSED"
	ReasonQualityScored      ReasonCode = "QUALITY_SCORED"
	ReasonCTRCalculated      ReasonCode = "CTR_CALCULATED"
	ReasonBidCalculated      ReasonCode = "BID_CALCULATED"
	ReasonBidSubmitted       ReasonCode = "BID_SUBMITTED"
	ReasonBudgetExhausted    ReasonCode = "BUDGET_EXHAUSTED"
	ReasonPCVREstimated      ReasonCode = "SKAN_PCVR_ESTIMATED"
	ReasonNoValidBids        ReasonCode = "NO_VALID_BIDS"
	ReasonAuctionWon         ReasonCode = "AUCTION_WON"
	ReasonAuctionFailed      ReasonCode = "AUCTION_FAILED"
	ReasonFunnelCompleted    ReasonCode = "FUNNEL_COMPLETED"
	ReasonAdValueHigher      ReasonCode = "AD_ECPM_HIGHER"
	ReasonOrganicValueHigher ReasonCode = "ORGANIC_LTV_HIGHER"
	ReasonPushValueHigher    ReasonCode = "PUSH_VALUE_HIGHER"
	ReasonDistributed        ReasonCode = "DISTRIBUTED"
)

// Record is one structured decision-trace entry, serialized as a single
// JSON line. Optional fields are pointers so that absent values are omitted
// from the wire form entirely, never emitted as null.
type Record struct {
	RequestID string         `json:"request_id"`
	Timestamp time.Time      `json:"timestamp"`
	Node      Node           `json:"node"`
	Action    Action         `json:"action"`
	Decision  Decision       `json:"decision"`
	Reason    ReasonCode     `json:"reason_code"`
	Vars      map[string]any `json:"internal_variables,omitempty"`
	Reasoning string         `json:"reasoning"`

	PCTR            *float64 `json:"pCTR,omitempty"`
	PCVR            *float64 `json:"pCVR,omitempty"`
	ECPM            *float64 `json:"eCPM,omitempty"`
	LatencyMS       *float64 `json:"latency_ms,omitempty"`
	SecondBestBid   *float64 `json:"second_best_bid,omitempty"`
	ActualPaidPrice *float64 `json:"actual_paid_price,omitempty"`
	SavedAmount     *float64 `json:"saved_amount,omitempty"`
	QFactor         *float64 `json:"q_factor,omitempty"`
	OriginalECPM    *float64 `json:"original_ecpm,omitempty"`
	EVSearch        *float64 `json:"ev_search,omitempty"`
	EVPush          *float64 `json:"ev_push,omitempty"`
	SelectedPath    string   `json:"selected_path,omitempty"`
	TrafficChannel  string   `json:"traffic_channel,omitempty"`
	AttributionCost *float64 `json:"attribution_cost,omitempty"`
	AttributionConf *float64 `json:"attribution_confidence,omitempty"`
	UserLTV         *float64 `json:"user_ltv,omitempty"`
	LifecycleStage  string   `json:"lifecycle_stage,omitempty"`
}

// F wraps a float value for an optional record field.
func F(v float64) *float64 { return &v }
