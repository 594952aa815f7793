// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	require := require.New(t)
	cfg := Default()

	require.Equal(":8080", cfg.Server.Addr)
	require.Equal(":9090", cfg.Admin.Addr)
	require.Equal("info", cfg.Log.Level)
	require.Equal(0.01, cfg.Auction.Epsilon)
	require.Equal(0.1, cfg.Auction.FloorPrice)
	require.Equal([]string{"device_blacklist_001", "app_blacklist_001"}, cfg.Filters.Blacklist)
	require.Equal(320, cfg.Filters.RequiredWidth)
	require.Equal(50, cfg.Filters.RequiredHeight)
	require.Equal(100.0, cfg.Filters.MaxLatencyMS)
	require.Equal(0.15, cfg.Quality.FraudRate)
	require.Equal(5, cfg.Bidding.NumBidders)
	require.Equal(0.5, cfg.Bidding.BasePrice)
	require.Equal(200, cfg.Funnel.PoolSize)
	require.Equal(100, cfg.Funnel.RecallSize)
	require.NoError(cfg.Validate())
}

func TestLoadFile(t *testing.T) {
	require := require.New(t)

	path := filepath.Join(t.TempDir(), "adx.yaml")
	require.NoError(os.WriteFile(path, []byte(`
server:
  addr: ":18080"
auction:
  floor_price: 0.25
bidding:
  num_bidders: 3
  budget: 100.0
`), 0o644))

	cfg, err := Load(path)
	require.NoError(err)

	// File values override, everything else keeps its default.
	require.Equal(":18080", cfg.Server.Addr)
	require.Equal(0.25, cfg.Auction.FloorPrice)
	require.Equal(3, cfg.Bidding.NumBidders)
	require.Equal(100.0, cfg.Bidding.Budget)
	require.Equal(0.01, cfg.Auction.Epsilon)
	require.Equal(":9090", cfg.Admin.Addr)
}

func TestLoadMissingFile(t *testing.T) {
	require := require.New(t)
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(err)
}

func TestEnvOverride(t *testing.T) {
	require := require.New(t)

	t.Setenv("ADX_SERVER_ADDR", ":28080")
	t.Setenv("ADX_AUCTION_FLOOR_PRICE", "0.33")

	cfg, err := Load("")
	require.NoError(err)
	require.Equal(":28080", cfg.Server.Addr)
	require.Equal(0.33, cfg.Auction.FloorPrice)
}

func TestValidate(t *testing.T) {
	require := require.New(t)

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative epsilon", func(c *Config) { c.Auction.Epsilon = -0.01 }},
		{"negative floor", func(c *Config) { c.Auction.FloorPrice = -1 }},
		{"zero latency budget", func(c *Config) { c.Filters.MaxLatencyMS = 0 }},
		{"rejection rate above one", func(c *Config) { c.Filters.CreativeRejectionRate = 1.5 }},
		{"negative fraud rate", func(c *Config) { c.Quality.FraudRate = -0.1 }},
		{"no bidders", func(c *Config) { c.Bidding.NumBidders = 0 }},
		{"weights off unit sum", func(c *Config) { c.Funnel.CTRWeight = 0.9 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			require.Error(cfg.Validate())
		})
	}
}
