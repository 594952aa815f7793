// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package funnel implements the organic content funnel: multi-strategy
// recall, composite-score ranking, business re-ranking and lifetime-value
// aggregation. Its output competes with the cleared ad value for the
// impression slot.
package funnel

import (
	"fmt"
	"time"

	"github.com/adxyz/exchange/pkg/rnd"
)

// ContentType classifies items in the pool.
type ContentType string

const (
	TypeArticle   ContentType = "article"
	TypeVideo     ContentType = "video"
	TypeProduct   ContentType = "product"
	TypeSponsored ContentType = "sponsored"
)

// Item is one piece of content flowing through the funnel. Ranked copies
// carry per-objective estimates and the composite score.
type Item struct {
	ContentID   string      `json:"content_id"`
	Type        ContentType `json:"type"`
	AuthorID    string      `json:"author_id"`
	PublishedAt time.Time   `json:"published_at"`

	// Pool baselines.
	BaseCTR        float64 `json:"base_ctr"`
	BaseLikeRate   float64 `json:"base_like_rate"`
	BaseFinishRate float64 `json:"base_finish_rate"`
	BaseComment    float64 `json:"base_comment_rate"`
	LTV            float64 `json:"ltv_contribution"`

	// Filled during ranking.
	EstCTR       float64 `json:"estimated_ctr,omitempty"`
	EstLikeRate  float64 `json:"estimated_like_rate,omitempty"`
	EstFinish    float64 `json:"estimated_finish_rate,omitempty"`
	EstComment   float64 `json:"estimated_comment_rate,omitempty"`
	RankingScore float64 `json:"ranking_score,omitempty"`

	Sponsored bool `json:"is_sponsored,omitempty"`
}

// NewPool generates a synthetic content pool of the given size. Authors
// repeat every twenty items so re-rank diversity rules have something to
// work against.
func NewPool(size int, rng rnd.Source) []Item {
	types := []ContentType{TypeArticle, TypeVideo, TypeProduct}
	pool := make([]Item, 0, size)
	now := time.Now()

	for i := 0; i < size; i++ {
		pool = append(pool, Item{
			ContentID:      fmt.Sprintf("content_%d", i),
			Type:           types[rng.Intn(len(types))],
			AuthorID:       fmt.Sprintf("author_%d", i%20),
			PublishedAt:    now,
			BaseCTR:        rng.Uniform(0.01, 0.10),
			BaseLikeRate:   rng.Uniform(0.05, 0.20),
			BaseFinishRate: rng.Uniform(0.30, 0.80),
			BaseComment:    rng.Uniform(0.01, 0.10),
			LTV:            rng.Uniform(0.5, 5.0),
		})
	}
	return pool
}
