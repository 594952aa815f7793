// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package estimator

import (
	"fmt"
	"sync"

	"github.com/adxyz/exchange/core"
	"github.com/adxyz/exchange/pkg/rnd"
	"github.com/adxyz/exchange/pkg/trace"
)

// Conversion values are collapsed into a discrete 0-63 space and postbacks
// arrive 24-48 hours late, so real-time conversion data is never available
// at decision time. The optimizer keeps a historical distribution over the
// value space and estimates pCVR probabilistically from it.
const (
	conversionValueSpace = 64
	minConfidence        = 0.6
	maxConfidence        = 1.0
	minPostbackDelayH    = 24.0
	maxPostbackDelayH    = 48.0
)

// SKANDetails records how a privacy-constrained estimate was produced.
type SKANDetails struct {
	ConversionValue    int     `json:"conversion_value"`
	BusinessValue      float64 `json:"business_value"`
	BasePCVR           float64 `json:"base_pcvr"`
	AdjustedPCVR       float64 `json:"adjusted_pcvr"`
	Confidence         float64 `json:"confidence"`
	HistoricalProb     float64 `json:"historical_prob"`
	PostbackDelayHours float64 `json:"postback_delay_hours"`
	AttributionDelayed bool    `json:"attribution_delayed"`
	DataBlurred        bool    `json:"data_blurred"`
}

// SKANOptimizer estimates pCVR under delayed, coarse attribution. The
// historical conversion-value distribution is the only mutable state and is
// guarded for concurrent updates from postback processing.
type SKANOptimizer struct {
	mu           sync.Mutex
	distribution [conversionValueSpace]float64
	rng          rnd.Source
	sink         trace.Sink
}

// NewSKANOptimizer seeds the optimizer with the historical prior: most
// observed conversion values are low (60% mass on 0-20), mid values carry
// 30% (21-40) and high values 10% (41-63), each band decaying linearly.
func NewSKANOptimizer(rng rnd.Source, sink trace.Sink) *SKANOptimizer {
	o := &SKANOptimizer{rng: rng, sink: sink}

	var total float64
	for i := 0; i <= 20; i++ {
		p := 0.6 / 21 * (1 - float64(i)/21*0.5)
		o.distribution[i] = p
		total += p
	}
	for i := 21; i <= 40; i++ {
		p := 0.3 / 20 * (1 - float64(i-21)/20*0.3)
		o.distribution[i] = p
		total += p
	}
	for i := 41; i <= 63; i++ {
		p := 0.1 / 23 * (1 - float64(i-41)/23*0.2)
		o.distribution[i] = p
		total += p
	}
	for i := range o.distribution {
		o.distribution[i] /= total
	}
	return o
}

// BusinessValue maps a conversion value linearly onto dollars: 0 -> $0,
// 63 -> $10.
func BusinessValue(conversionValue int) float64 {
	return float64(conversionValue) / 63.0 * 10.0
}

// EstimatePCVR samples a conversion-value bucket from the historical
// distribution and converts it into an adjusted conversion probability.
// The estimate is marked delayed and blurred in the trace; downstream
// consumers must treat it as provisional.
func (o *SKANOptimizer) EstimatePCVR(requestID string, req *core.Request) (float64, *SKANDetails) {
	if req.Platform != core.PlatformIOS {
		return 0, nil
	}

	cv := o.sample()
	histProb := o.probability(cv)

	// Low buckets map to low conversion probability, high buckets to high:
	// base pCVR spans 1%-10% across the value space.
	basePCVR := 0.01 + float64(cv)/63.0*0.09

	// Confidence comes from how often this bucket has historically
	// occurred, rescaled into [0.6, 1.0].
	confidence := histProb * 15
	if confidence < minConfidence {
		confidence = minConfidence
	}
	if confidence > maxConfidence {
		confidence = maxConfidence
	}

	adjusted := basePCVR * (0.7 + 0.3*confidence)
	delay := o.rng.Uniform(minPostbackDelayH, maxPostbackDelayH)

	details := &SKANDetails{
		ConversionValue:    cv,
		BusinessValue:      BusinessValue(cv),
		BasePCVR:           basePCVR,
		AdjustedPCVR:       adjusted,
		Confidence:         confidence,
		HistoricalProb:     histProb,
		PostbackDelayHours: delay,
		AttributionDelayed: true,
		DataBlurred:        true,
	}

	o.sink.Write(&trace.Record{
		RequestID: requestID,
		Node:      trace.NodeADX,
		Action:    trace.ActionSKANOptimization,
		Decision:  trace.DecisionPass,
		Reason:    trace.ReasonPCVREstimated,
		Vars: map[string]any{
			"conversion_value":     cv,
			"business_value":       details.BusinessValue,
			"base_pcvr":            basePCVR,
			"adjusted_pcvr":        adjusted,
			"confidence":           confidence,
			"historical_prob":      histProb,
			"postback_delay_hours": delay,
			"attribution_delayed":  true,
			"data_blurred":         true,
		},
		Reasoning: fmt.Sprintf("privacy-constrained pCVR estimate: value %d/63, business value $%.2f, base %.2f%%, adjusted %.2f%%, confidence %.1f%%, postback delay %.1fh",
			cv, details.BusinessValue, basePCVR*100, adjusted*100, confidence*100, delay),
		PCVR: trace.F(adjusted),
	})

	return adjusted, details
}

// sample draws a conversion-value bucket from the current distribution.
func (o *SKANOptimizer) sample() int {
	r := o.rng.Float64()

	o.mu.Lock()
	defer o.mu.Unlock()
	var cumulative float64
	for v, p := range o.distribution {
		cumulative += p
		if r <= cumulative {
			return v
		}
	}
	return conversionValueSpace / 2
}

// probability returns the historical probability of a bucket.
func (o *SKANOptimizer) probability(cv int) float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	if cv < 0 || cv >= conversionValueSpace {
		return 0.01
	}
	return o.distribution[cv]
}

// RecordPostback folds an observed conversion value into the historical
// distribution with an exponential moving average, then renormalizes the
// whole distribution back to unit mass. Weights outside (0,1] would push
// bucket probabilities negative, so they are ignored along with
// out-of-range values.
func (o *SKANOptimizer) RecordPostback(conversionValue int, weight float64) {
	if conversionValue < 0 || conversionValue >= conversionValueSpace {
		return
	}
	if weight <= 0 || weight > 1 {
		return
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	old := o.distribution[conversionValue]
	o.distribution[conversionValue] = old*(1-weight) + weight

	var total float64
	for _, p := range o.distribution {
		total += p
	}
	for i := range o.distribution {
		o.distribution[i] /= total
	}
}

// Distribution returns a snapshot of the current bucket probabilities.
func (o *SKANOptimizer) Distribution() []float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]float64, conversionValueSpace)
	copy(out, o.distribution[:])
	return out
}
