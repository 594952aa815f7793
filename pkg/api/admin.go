// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/adxyz/exchange/pkg/engine"
	"github.com/adxyz/exchange/pkg/log"
	"github.com/adxyz/exchange/pkg/trace"
)

// Feed is a trace sink that supports live subscription, implemented by
// trace.JSONLSink.
type Feed interface {
	Subscribe() chan *trace.Record
	Unsubscribe(chan *trace.Record)
}

// Admin is the operator surface: Prometheus metrics, the live decision
// trace feed, and ledger inspection.
type Admin struct {
	engine   *engine.Engine
	feed     Feed
	log      log.Logger
	router   *mux.Router
	upgrader websocket.Upgrader
}

// NewAdmin builds the admin router. feed may be nil when the trace sink
// does not support subscription; the feed endpoint then returns 501.
func NewAdmin(eng *engine.Engine, feed Feed, logger log.Logger) *Admin {
	a := &Admin{
		engine: eng,
		feed:   feed,
		log:    logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// Operator surface, bound to localhost in production.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}

	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(eng.Metrics().Registry(), promhttp.HandlerOpts{})).Methods(http.MethodGet)
	r.HandleFunc("/v1/trace/feed", a.handleFeed).Methods(http.MethodGet)
	r.HandleFunc("/v1/ledger", a.handleLedger).Methods(http.MethodGet)
	r.HandleFunc("/v1/budget/{bidder}", a.handleBudget).Methods(http.MethodGet)
	r.HandleFunc("/v1/skan/distribution", a.handleDistribution).Methods(http.MethodGet)
	a.router = r
	return a
}

// Handler returns the underlying HTTP handler.
func (a *Admin) Handler() http.Handler { return a.router }

// handleFeed streams decision trace records over a websocket. Slow
// consumers are disconnected rather than allowed to stall the sink.
func (a *Admin) handleFeed(w http.ResponseWriter, r *http.Request) {
	if a.feed == nil {
		http.Error(w, "trace feed unavailable", http.StatusNotImplemented)
		return
	}

	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.log.Warn("trace feed upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	ch := a.feed.Subscribe()
	defer a.feed.Unsubscribe(ch)

	for rec := range ch {
		if err := conn.WriteJSON(rec); err != nil {
			return
		}
	}
}

func (a *Admin) handleLedger(w http.ResponseWriter, _ *http.Request) {
	led := a.engine.Ledger()
	writeJSON(w, map[string]any{
		"revenue":    led.Revenue(),
		"savings":    led.Savings(),
		"total_loss": led.TotalLoss(""),
	})
}

func (a *Admin) handleBudget(w http.ResponseWriter, r *http.Request) {
	bidder := mux.Vars(r)["bidder"]
	remaining, err := a.engine.Ledger().GetBudget(bidder)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, map[string]any{"bidder": bidder, "remaining": remaining})
}

func (a *Admin) handleDistribution(w http.ResponseWriter, _ *http.Request) {
	skan := a.engine.SKAN()
	if skan == nil {
		http.Error(w, "conversion optimization disabled", http.StatusNotImplemented)
		return
	}
	writeJSON(w, map[string]any{"distribution": skan.Distribution()})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
