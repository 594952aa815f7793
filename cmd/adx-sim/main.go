// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// adx-sim drives the decision pipeline with synthetic traffic and prints
// an outcome summary, exercising every stage without a network.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/adxyz/exchange/core"
	"github.com/adxyz/exchange/pkg/analytics"
	"github.com/adxyz/exchange/pkg/config"
	"github.com/adxyz/exchange/pkg/engine"
	"github.com/adxyz/exchange/pkg/log"
	"github.com/adxyz/exchange/pkg/rnd"
	"github.com/adxyz/exchange/pkg/trace"
)

var (
	configPath = flag.String("config", "", "path to YAML config file")
	requests   = flag.Int("n", 100, "number of synthetic requests")
	seed       = flag.Int64("seed", 0, "random seed (0 seeds from the clock)")
	traceFile  = flag.String("trace", "decision_trace.jsonl", "trace output file")
	quiet      = flag.Bool("quiet", false, "suppress per-request output")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}

	logger := log.NewWithLevel("warn")
	defer logger.Sync()

	sink := trace.NewFileSink(trace.FileOptions{
		Path:       *traceFile,
		MaxSizeMB:  cfg.Trace.MaxSizeMB,
		MaxBackups: cfg.Trace.MaxBackups,
	})
	defer sink.Close()

	rng := rnd.NewSource(*seed)
	eng := engine.Build(cfg, rng, sink, logger)

	statuses := make(map[engine.Status]int)
	reasons := make(map[trace.ReasonCode]int)
	var revenue, saved float64

	ctx := context.Background()
	for i := 0; i < *requests; i++ {
		req := synthesize(rng, cfg, i)
		res, err := eng.Decide(ctx, req)
		if err != nil {
			fmt.Fprintln(os.Stderr, "decide:", err)
			os.Exit(1)
		}

		statuses[res.Status]++
		reasons[res.Reason]++
		revenue += res.ClearedPrice
		saved += res.SavedAmount

		if !*quiet {
			switch res.Status {
			case engine.StatusAccepted:
				fmt.Printf("[%3d] %s won at %.4f (bid %.4f, eCPM %.4f, saved %.4f)\n",
					i, res.Winner, res.ClearedPrice, res.BidPrice, res.ECPM, res.SavedAmount)
			default:
				fmt.Printf("[%3d] rejected: %s (path %s)\n", i, res.Reason, res.SelectedPath)
			}
		}
	}

	fmt.Printf("\n=== %d requests, seed %d ===\n", *requests, *seed)
	fmt.Printf("accepted: %d  rejected: %d\n", statuses[engine.StatusAccepted], statuses[engine.StatusRejected])

	keys := make([]string, 0, len(reasons))
	for r := range reasons {
		keys = append(keys, string(r))
	}
	sort.Strings(keys)
	for _, r := range keys {
		fmt.Printf("  %-24s %d\n", r, reasons[trace.ReasonCode(r)])
	}

	led := eng.Ledger()
	fmt.Printf("revenue: %.4f  second-price savings: %.4f  recorded loss: %s\n",
		revenue, saved, led.TotalLoss("").StringFixed(4))
	fmt.Printf("trace written to %s\n", *traceFile)

	audit(*traceFile)
}

// audit replays the trace file and verifies the recorded economics.
func audit(path string) {
	f, err := os.Open(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "audit:", err)
		return
	}
	defer f.Close()

	rep, err := analytics.Analyze(f)
	if err != nil {
		fmt.Fprintln(os.Stderr, "audit:", err)
		return
	}

	fmt.Printf("\n=== trace audit: %d records, %d auctions ===\n", rep.Records, rep.Auctions)
	fmt.Printf("audited revenue: %s  savings: %s  potential loss: %s\n",
		rep.Revenue.StringFixed(4), rep.Saved.StringFixed(4), rep.PotentialLoss.StringFixed(4))
	if len(rep.Violations) == 0 {
		fmt.Println("no violations")
		return
	}
	for _, v := range rep.Violations {
		fmt.Printf("VIOLATION %s [%s]: %s\n", v.RequestID, v.Check, v.Detail)
	}
}

// synthesize builds one request. Most traffic is well formed; a fraction
// carries the defects each admission filter exists to catch.
func synthesize(rng rnd.Source, cfg *config.Config, i int) *core.Request {
	platforms := []core.Platform{core.PlatformIOS, core.PlatformAndroid, core.PlatformWeb}
	req := &core.Request{
		RequestID: uuid.NewString(),
		DeviceID:  fmt.Sprintf("device_%03d", rng.Intn(50)),
		AppID:     fmt.Sprintf("app_%03d", rng.Intn(20)),
		AppName:   fmt.Sprintf("app %d", i%20),
		Platform:  platforms[rng.Intn(len(platforms))],
		Size:      core.Size{W: cfg.Filters.RequiredWidth, H: cfg.Filters.RequiredHeight},
		LatencyMS: rng.Uniform(10, cfg.Filters.MaxLatencyMS*1.5),
		Timestamp: time.Now(),
	}

	// A slice of traffic carries known defects.
	switch {
	case rng.Float64() < 0.05 && len(cfg.Filters.Blacklist) > 0:
		req.DeviceID = cfg.Filters.Blacklist[0]
	case rng.Float64() < 0.05:
		req.Size = core.Size{W: 300, H: 250}
	}
	return req
}
