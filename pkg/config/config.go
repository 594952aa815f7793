// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package config loads exchange configuration from YAML files and the
// environment. Every knob has a production default so an empty config
// file boots a working exchange.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config is the full exchange configuration tree.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Admin   AdminConfig   `mapstructure:"admin"`
	Log     LogConfig     `mapstructure:"log"`
	Trace   TraceConfig   `mapstructure:"trace"`
	Auction AuctionConfig `mapstructure:"auction"`
	Filters FilterConfig  `mapstructure:"filters"`
	Quality QualityConfig `mapstructure:"quality"`
	Bidding BiddingConfig `mapstructure:"bidding"`
	Funnel  FunnelConfig  `mapstructure:"funnel"`
}

// ServerConfig configures the public decision API.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// AdminConfig configures the operator surface (metrics, trace feed).
type AdminConfig struct {
	Addr string `mapstructure:"addr"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// TraceConfig configures the decision trace sink.
type TraceConfig struct {
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
}

// AuctionConfig configures second-price clearing.
type AuctionConfig struct {
	Epsilon    float64 `mapstructure:"epsilon"`
	FloorPrice float64 `mapstructure:"floor_price"`
}

// FilterConfig configures the admission filter chain.
type FilterConfig struct {
	Blacklist             []string `mapstructure:"blacklist"`
	RequiredWidth         int      `mapstructure:"required_width"`
	RequiredHeight        int      `mapstructure:"required_height"`
	MaxLatencyMS          float64  `mapstructure:"max_latency_ms"`
	CreativeRejectionRate float64  `mapstructure:"creative_rejection_rate"`
}

// QualityConfig configures the traffic quality scorer.
type QualityConfig struct {
	FraudRate float64 `mapstructure:"fraud_rate"`
}

// BiddingConfig configures the demand side.
type BiddingConfig struct {
	NumBidders int     `mapstructure:"num_bidders"`
	BasePrice  float64 `mapstructure:"base_price"`
	Budget     float64 `mapstructure:"budget"`
}

// FunnelConfig configures the organic content funnel.
type FunnelConfig struct {
	PoolSize      int     `mapstructure:"pool_size"`
	RecallSize    int     `mapstructure:"recall_size"`
	CTRWeight     float64 `mapstructure:"ctr_weight"`
	LikeWeight    float64 `mapstructure:"like_weight"`
	FinishWeight  float64 `mapstructure:"finish_weight"`
	CommentWeight float64 `mapstructure:"comment_weight"`
}

// Load reads the config file at path, merging environment overrides with
// the ADX_ prefix (ADX_SERVER_ADDR overrides server.addr). An empty path
// loads defaults only.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("ADX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the production defaults without touching disk.
func Default() *Config {
	cfg, _ := Load("")
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("admin.addr", ":9090")
	v.SetDefault("log.level", "info")

	v.SetDefault("trace.file", "")
	v.SetDefault("trace.max_size_mb", 100)
	v.SetDefault("trace.max_backups", 5)

	v.SetDefault("auction.epsilon", 0.01)
	v.SetDefault("auction.floor_price", 0.1)

	v.SetDefault("filters.blacklist", []string{"device_blacklist_001", "app_blacklist_001"})
	v.SetDefault("filters.required_width", 320)
	v.SetDefault("filters.required_height", 50)
	v.SetDefault("filters.max_latency_ms", 100.0)
	v.SetDefault("filters.creative_rejection_rate", 0.05)

	v.SetDefault("quality.fraud_rate", 0.15)

	v.SetDefault("bidding.num_bidders", 5)
	v.SetDefault("bidding.base_price", 0.5)
	v.SetDefault("bidding.budget", 0.0)

	v.SetDefault("funnel.pool_size", 200)
	v.SetDefault("funnel.recall_size", 100)
	v.SetDefault("funnel.ctr_weight", 0.40)
	v.SetDefault("funnel.like_weight", 0.25)
	v.SetDefault("funnel.finish_weight", 0.25)
	v.SetDefault("funnel.comment_weight", 0.10)
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Auction.Epsilon < 0 {
		return fmt.Errorf("auction.epsilon must be >= 0, got %v", c.Auction.Epsilon)
	}
	if c.Auction.FloorPrice < 0 {
		return fmt.Errorf("auction.floor_price must be >= 0, got %v", c.Auction.FloorPrice)
	}
	if c.Filters.MaxLatencyMS <= 0 {
		return fmt.Errorf("filters.max_latency_ms must be > 0, got %v", c.Filters.MaxLatencyMS)
	}
	if r := c.Filters.CreativeRejectionRate; r < 0 || r > 1 {
		return fmt.Errorf("filters.creative_rejection_rate must be in [0,1], got %v", r)
	}
	if r := c.Quality.FraudRate; r < 0 || r > 1 {
		return fmt.Errorf("quality.fraud_rate must be in [0,1], got %v", r)
	}
	if c.Bidding.NumBidders <= 0 {
		return fmt.Errorf("bidding.num_bidders must be > 0, got %d", c.Bidding.NumBidders)
	}
	sum := c.Funnel.CTRWeight + c.Funnel.LikeWeight + c.Funnel.FinishWeight + c.Funnel.CommentWeight
	if sum < 0.999 || sum > 1.001 {
		return fmt.Errorf("funnel ranking weights must sum to 1.0, got %v", sum)
	}
	return nil
}
