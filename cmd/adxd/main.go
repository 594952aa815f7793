// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// adxd is the exchange daemon. It serves the public decision API on one
// port and the operator surface (metrics, trace feed, ledger) on another.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/adxyz/exchange/pkg/api"
	"github.com/adxyz/exchange/pkg/config"
	"github.com/adxyz/exchange/pkg/engine"
	"github.com/adxyz/exchange/pkg/log"
	"github.com/adxyz/exchange/pkg/rnd"
	"github.com/adxyz/exchange/pkg/trace"
)

var (
	configPath = flag.String("config", "", "path to YAML config file (defaults apply when empty)")
	release    = flag.Bool("release", false, "run HTTP servers in release mode")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	logger := log.NewWithLevel(cfg.Log.Level)
	defer logger.Sync()

	var sink *trace.JSONLSink
	if cfg.Trace.File != "" {
		sink = trace.NewFileSink(trace.FileOptions{
			Path:       cfg.Trace.File,
			MaxSizeMB:  cfg.Trace.MaxSizeMB,
			MaxBackups: cfg.Trace.MaxBackups,
		})
	} else {
		sink = trace.NewWriterSink(os.Stdout)
	}
	defer sink.Close()

	eng := engine.Build(cfg, rnd.NewSource(time.Now().UnixNano()), sink, logger)

	apiSrv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: api.NewServer(eng, logger, *release).Handler(),
	}
	adminSrv := &http.Server{
		Addr:    cfg.Admin.Addr,
		Handler: api.NewAdmin(eng, sink, logger).Handler(),
	}

	go func() {
		logger.Info("decision API listening", "addr", cfg.Server.Addr)
		if err := apiSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("api server failed", "err", err)
		}
	}()
	go func() {
		logger.Info("admin surface listening", "addr", cfg.Admin.Addr)
		if err := adminSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("admin server failed", "err", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiSrv.Shutdown(ctx); err != nil {
		logger.Error("api shutdown", "err", err)
	}
	if err := adminSrv.Shutdown(ctx); err != nil {
		logger.Error("admin shutdown", "err", err)
	}
	logger.Info("exchange stopped")
}
