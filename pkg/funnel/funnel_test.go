// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package funnel

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/adxyz/exchange/core"
	"github.com/adxyz/exchange/pkg/rnd"
	"github.com/adxyz/exchange/pkg/trace"
)

// sampleDraws scripts ten distinct index draws so recall sampling always
// terminates regardless of how many picks a stage needs.
func sampleDraws() rnd.Source {
	return rnd.NewScripted(0.05, 0.15, 0.25, 0.35, 0.45, 0.55, 0.65, 0.75, 0.85, 0.95)
}

// fixedPool builds a deterministic pool with distinct authors and
// monotonically decreasing baselines.
func fixedPool(size int) []Item {
	pool := make([]Item, 0, size)
	for i := 0; i < size; i++ {
		pool = append(pool, Item{
			ContentID:      fmt.Sprintf("content_%d", i),
			Type:           TypeArticle,
			AuthorID:       fmt.Sprintf("author_%d", i),
			BaseCTR:        0.10 - float64(i)*0.001,
			BaseLikeRate:   0.10,
			BaseFinishRate: 0.50,
			BaseComment:    0.05,
			LTV:            1.0,
		})
	}
	return pool
}

func TestRecallDedupeAndCap(t *testing.T) {
	require := require.New(t)
	pool := fixedPool(60)
	f := New(pool, DefaultWeights, 40, sampleDraws(), trace.NopSink{})

	tags := core.UserTags{LifecycleStage: core.StageGrowing, InterestTags: []string{"news"}}
	recalled := f.Recall(tags)

	require.LessOrEqual(len(recalled), 40)
	seen := make(map[string]struct{})
	for _, c := range recalled {
		_, dup := seen[c.ContentID]
		require.False(dup, "duplicate %s", c.ContentID)
		seen[c.ContentID] = struct{}{}
	}
}

func TestRecallTerminatesOnConstantSource(t *testing.T) {
	require := require.New(t)

	// A source stuck on one value must still produce distinct samples;
	// the shuffle-based picker terminates where rejection sampling spins.
	f := New(fixedPool(40), DefaultWeights, 20, rnd.NewScripted(0.5), trace.NopSink{})

	recalled := f.Recall(core.UserTags{LifecycleStage: core.StageGrowing})
	require.NotEmpty(recalled)

	seen := make(map[string]struct{})
	for _, c := range recalled {
		_, dup := seen[c.ContentID]
		require.False(dup, "duplicate %s", c.ContentID)
		seen[c.ContentID] = struct{}{}
	}
}

func TestRecallColdStartPrefersValue(t *testing.T) {
	require := require.New(t)
	pool := fixedPool(40)
	pool[37].LTV = 9.9
	f := New(pool, DefaultWeights, 8, sampleDraws(), trace.NopSink{})

	recalled := f.Recall(core.UserTags{LifecycleStage: core.StageNew})

	found := false
	for _, c := range recalled {
		if c.ContentID == "content_37" {
			found = true
		}
	}
	require.True(found, "highest-LTV item missing from cold-start recall")
}

func TestRankCompositeAndInterestBoost(t *testing.T) {
	require := require.New(t)
	f := New(nil, DefaultWeights, 10, rnd.NewScripted(0.5), trace.NopSink{})

	items := []Item{
		{ContentID: "a", BaseCTR: 0.02, BaseLikeRate: 0.10, BaseFinishRate: 0.50, BaseComment: 0.05},
		{ContentID: "b", BaseCTR: 0.08, BaseLikeRate: 0.10, BaseFinishRate: 0.50, BaseComment: 0.05},
	}

	ranked := f.Rank(items, core.UserTags{})
	require.Equal("b", ranked[0].ContentID)
	// 0.40x0.08 + 0.25x0.10 + 0.25x0.50 + 0.10x0.05
	require.InDelta(0.187, ranked[0].RankingScore, 1e-9)

	boosted := f.Rank(items, core.UserTags{InterestTags: []string{"anime"}})
	require.InDelta(0.08*1.2, boosted[0].EstCTR, 1e-9)
	require.Greater(boosted[0].RankingScore, ranked[0].RankingScore)
}

func TestReRankAuthorDiversity(t *testing.T) {
	require := require.New(t)
	f := New(nil, DefaultWeights, 10, rnd.NewScripted(0.5), trace.NopSink{})

	ranked := []Item{
		{ContentID: "a1", AuthorID: "author_1", RankingScore: 0.9},
		{ContentID: "a2", AuthorID: "author_1", RankingScore: 0.8},
		{ContentID: "a3", AuthorID: "author_1", RankingScore: 0.7},
		{ContentID: "b1", AuthorID: "author_2", RankingScore: 0.6},
	}

	out := f.ReRank(ranked, nil)

	// The third same-author item is skipped; the rest survive.
	var ids []string
	for _, c := range out {
		ids = append(ids, c.ContentID)
	}
	require.Equal([]string{"a1", "a2", "b1"}, ids)

	// First-seen authors get the boost, repeats keep their score.
	require.InDelta(0.9*1.1, out[0].RankingScore, 1e-9)
	require.InDelta(0.8, out[1].RankingScore, 1e-9)
	require.InDelta(0.6*1.1, out[2].RankingScore, 1e-9)
}

func TestReRankSponsoredCadence(t *testing.T) {
	require := require.New(t)
	f := New(nil, DefaultWeights, 10, rnd.NewScripted(0.5), trace.NopSink{})

	var ranked []Item
	for i := 0; i < 12; i++ {
		ranked = append(ranked, Item{
			ContentID:    fmt.Sprintf("c%d", i),
			AuthorID:     fmt.Sprintf("author_%d", i),
			RankingScore: 1.0 - float64(i)*0.01,
		})
	}
	sponsored := []Item{{ContentID: "ad1"}, {ContentID: "ad2"}, {ContentID: "ad3"}}

	out := f.ReRank(ranked, sponsored)

	var adPositions []int
	for i, c := range out {
		if c.Sponsored {
			require.Equal(TypeSponsored, c.Type)
			adPositions = append(adPositions, i)
		}
	}
	// One sponsored slot after every fifth organic item.
	require.Equal([]int{5, 11}, adPositions)
}

func TestValueTopFiveWithLifecycle(t *testing.T) {
	require := require.New(t)
	f := New(nil, DefaultWeights, 10, rnd.NewScripted(0.5), trace.NopSink{})

	var items []Item
	for i := 0; i < 8; i++ {
		items = append(items, Item{ContentID: fmt.Sprintf("c%d", i), LTV: 2.0})
	}

	adjusted, raw, mult := f.Value(items, core.StageMature)
	require.Equal(10.0, raw) // top 5 only
	require.Equal(1.5, mult)
	require.Equal(15.0, adjusted)

	adjusted, raw, mult = f.Value(items[:3], core.StageNew)
	require.Equal(6.0, raw)
	require.Equal(0.5, mult)
	require.Equal(3.0, adjusted)

	_, _, mult = f.Value(items, core.LifecycleStage("unknown"))
	require.Equal(1.0, mult)
}

func TestProcessEmitsTrace(t *testing.T) {
	require := require.New(t)
	sink := trace.NewMemorySink()
	f := New(fixedPool(40), DefaultWeights, 20, sampleDraws(), sink)

	tags := core.UserTags{LifecycleStage: core.StageGrowing}
	out := f.Process("req-1", tags, nil)

	require.NotEmpty(out.ReRanked)
	require.Equal(out.RawValue*out.Multiplier, out.OrganicValue)

	recs := sink.ByAction(trace.ActionFunnelProcessing)
	require.Len(recs, 1)
	require.Equal(trace.DecisionPass, recs[0].Decision)
	require.Equal(string(core.StageGrowing), recs[0].LifecycleStage)
	require.Equal(len(out.Recalled), recs[0].Vars["recalled_count"])
}
