// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package quality

import (
	"fmt"
	"strings"

	"github.com/adxyz/exchange/core"
	"github.com/adxyz/exchange/pkg/log"
	"github.com/adxyz/exchange/pkg/rnd"
	"github.com/adxyz/exchange/pkg/trace"
)

// Risk feature labels attached to an assessment.
const (
	FeatureIPConcentration  = "ip_concentration"
	FeatureFixedClickCoords = "fixed_click_coordinates"
	FeatureDeviceAnomaly    = "device_fingerprint_anomaly"
	FeatureBehaviorAnomaly  = "behavior_pattern_anomaly"
	FeatureTemporalAnomaly  = "temporal_anomaly"
)

const (
	// ipConcentrationLimit is how many sightings of one IP inside the
	// rolling window are tolerated before the penalty applies.
	ipConcentrationLimit = 10
	ipPenalty            = 0.5

	// coordVarianceFloor is the minimum per-axis click variance; below it
	// the click pattern counts as fixed. Needs at least minClickSamples.
	coordVarianceFloor = 100.0
	minClickSamples    = 5
	coordPenalty       = 0.6

	// warnThreshold marks traffic as high risk in the trace.
	warnThreshold = 0.5
)

var syntheticFeatures = []string{
	FeatureDeviceAnomaly,
	FeatureBehaviorAnomaly,
	FeatureTemporalAnomaly,
}

// Assessment is the outcome of scoring one request.
type Assessment struct {
	QFactor     float64  `json:"q_factor"`
	Features    []string `json:"fraud_features"`
	IPAddress   string   `json:"ip_address"`
	Click       Point    `json:"click_coordinates"`
	HighRisk    bool     `json:"is_high_risk"`
	IPSightings int      `json:"ip_sightings"`
}

// Scorer assigns a quality factor in [0,1] to each request. Deterministic
// signals come from the injected store; a configurable fraction of clean
// traffic is additionally flagged to model residual unknown fraud.
type Scorer struct {
	store     *Store
	rng       rnd.Source
	sink      trace.Sink
	log       log.Logger
	fraudRate float64
}

// NewScorer creates a scorer. fraudRate is the synthetic flagging fraction.
func NewScorer(store *Store, rng rnd.Source, sink trace.Sink, logger log.Logger, fraudRate float64) *Scorer {
	return &Scorer{
		store:     store,
		rng:       rng,
		sink:      sink,
		log:       logger,
		fraudRate: fraudRate,
	}
}

// Score evaluates the request's traffic quality. The IP address and click
// coordinate are sampled signals standing in for real fingerprint events;
// both feed the rolling windows so concentration builds up across requests.
func (s *Scorer) Score(requestID string, req *core.Request) (float64, Assessment) {
	ip := fmt.Sprintf("192.168.%d.%d", 1+s.rng.Intn(10), 1+s.rng.Intn(255))
	click := Point{
		X: float64(s.rng.Intn(1081)),
		Y: float64(s.rng.Intn(1921)),
	}
	return s.scoreSignals(requestID, req, ip, click)
}

// ScoreObserved evaluates the request using externally observed signals.
func (s *Scorer) ScoreObserved(requestID string, req *core.Request, ip string, click Point) (float64, Assessment) {
	return s.scoreSignals(requestID, req, ip, click)
}

func (s *Scorer) scoreSignals(requestID string, req *core.Request, ip string, click Point) (float64, Assessment) {
	qFactor := 1.0
	var features []string

	sightings := s.store.RecordIP(ip)
	if sightings > ipConcentrationLimit {
		features = append(features, FeatureIPConcentration)
		qFactor *= ipPenalty
	}

	coordKey := req.DeviceID + "_" + req.AppID
	pts := s.store.RecordClick(coordKey, click)
	if len(pts) >= minClickSamples {
		vx, vy := Variance(pts)
		if vx < coordVarianceFloor || vy < coordVarianceFloor {
			features = append(features, FeatureFixedClickCoords)
			qFactor *= coordPenalty
		}
	}

	// Residual unknown fraud: flag a fraction of otherwise-clean traffic.
	if len(features) == 0 && s.rng.Float64() < s.fraudRate {
		features = append(features, syntheticFeatures[s.rng.Intn(len(syntheticFeatures))])
		qFactor *= s.rng.Uniform(0.3, 0.7)
	}

	if qFactor < 0 {
		qFactor = 0
	}
	if qFactor > 1 {
		qFactor = 1
	}

	assessment := Assessment{
		QFactor:     qFactor,
		Features:    features,
		IPAddress:   ip,
		Click:       click,
		HighRisk:    qFactor < warnThreshold,
		IPSightings: sightings,
	}

	decision := trace.DecisionPass
	if assessment.HighRisk {
		decision = trace.DecisionWarning
	}

	detected := "none"
	if len(features) > 0 {
		detected = strings.Join(features, ", ")
	}

	s.sink.Write(&trace.Record{
		RequestID: requestID,
		Node:      trace.NodeADX,
		Action:    trace.ActionQualityScore,
		Decision:  decision,
		Reason:    trace.ReasonQualityScored,
		Vars: map[string]any{
			"q_factor":          qFactor,
			"fraud_features":    features,
			"ip_address":        ip,
			"ip_sightings":      sightings,
			"click_coordinates": []float64{click.X, click.Y},
			"is_high_risk":      assessment.HighRisk,
		},
		Reasoning: fmt.Sprintf("traffic quality scored: q_factor=%.2f, detected features: %s", qFactor, detected),
		QFactor:   trace.F(qFactor),
	})

	s.log.Debug("quality scored",
		"request_id", requestID,
		"q_factor", qFactor,
		"features", features)

	return qFactor, assessment
}
