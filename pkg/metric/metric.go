// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds every Prometheus metric the exchange exposes.
type Metrics struct {
	registry *prometheus.Registry

	// Pipeline metrics
	RequestsTotal  prometheus.Counter
	AdmittedTotal  prometheus.Counter
	RejectedTotal  *prometheus.CounterVec
	BidsSubmitted  prometheus.Counter
	AuctionsTotal  prometheus.Counter
	OutletSelected *prometheus.CounterVec

	// Value metrics
	RevenueTotal     prometheus.Counter
	SavedTotal       prometheus.Counter
	PotentialLoss    prometheus.Counter
	QualityWarnTotal prometheus.Counter

	// Performance metrics
	DecisionDuration prometheus.Histogram
	BidLatency       prometheus.Histogram
}

// New creates and registers all exchange metrics on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{registry: reg}

	m.RequestsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "adx", Name: "requests_total",
		Help: "Total number of impression requests received",
	})
	m.AdmittedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "adx", Name: "admitted_total",
		Help: "Total number of requests that passed every admission filter",
	})
	m.RejectedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "adx", Name: "rejected_total",
		Help: "Total number of rejected requests by reason",
	}, []string{"reason"})
	m.BidsSubmitted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "adx", Name: "bids_submitted_total",
		Help: "Total number of bids submitted",
	})
	m.AuctionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "adx", Name: "auctions_total",
		Help: "Total number of auctions cleared",
	})
	m.OutletSelected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "adx", Name: "outlet_selected_total",
		Help: "Total number of routing decisions by outlet",
	}, []string{"outlet"})

	m.RevenueTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "adx", Name: "revenue_total",
		Help: "Total cleared revenue in currency units",
	})
	m.SavedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "adx", Name: "saved_total",
		Help: "Total amount saved by second-price clearing",
	})
	m.PotentialLoss = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "adx", Name: "potential_loss_total",
		Help: "Total potential eCPM value lost to rejections",
	})
	m.QualityWarnTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "adx", Name: "quality_warnings_total",
		Help: "Total number of high-risk quality assessments",
	})

	m.DecisionDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "adx", Name: "decision_duration_seconds",
		Help:    "Time to run one full pipeline decision",
		Buckets: prometheus.DefBuckets,
	})
	m.BidLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "adx", Name: "bid_latency_seconds",
		Help:    "Time to collect one bidder's bid",
		Buckets: prometheus.DefBuckets,
	})

	reg.MustRegister(
		m.RequestsTotal, m.AdmittedTotal, m.RejectedTotal,
		m.BidsSubmitted, m.AuctionsTotal, m.OutletSelected,
		m.RevenueTotal, m.SavedTotal, m.PotentialLoss, m.QualityWarnTotal,
		m.DecisionDuration, m.BidLatency,
	)
	return m
}

// Registry returns the gatherer backing the /metrics endpoint.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }
