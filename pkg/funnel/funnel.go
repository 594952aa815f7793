// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package funnel

import (
	"fmt"
	"sort"

	"github.com/adxyz/exchange/core"
	"github.com/adxyz/exchange/pkg/rnd"
	"github.com/adxyz/exchange/pkg/trace"
)

// Weights are the composite ranking weights. They must sum to 1.0.
type Weights struct {
	CTR     float64
	Like    float64
	Finish  float64
	Comment float64
}

// DefaultWeights is the production ranking configuration.
var DefaultWeights = Weights{CTR: 0.40, Like: 0.25, Finish: 0.25, Comment: 0.10}

// Sum returns the total of all weights.
func (w Weights) Sum() float64 { return w.CTR + w.Like + w.Finish + w.Comment }

// lifecycleMultiplier scales organic value by user lifecycle stage.
var lifecycleMultiplier = map[core.LifecycleStage]float64{
	core.StageNew:       0.5,
	core.StageGrowing:   1.0,
	core.StageMature:    1.5,
	core.StageChurnRisk: 0.8,
}

// LifecycleMultiplier returns the organic-value multiplier for a stage,
// defaulting to 1.0 for unknown stages.
func LifecycleMultiplier(stage core.LifecycleStage) float64 {
	if m, ok := lifecycleMultiplier[stage]; ok {
		return m
	}
	return 1.0
}

const (
	// interestBoost lifts the CTR estimate when the user carries
	// interest tags.
	interestBoost = 1.2
	// firstAuthorBoost lifts first-seen authors during re-rank.
	firstAuthorBoost = 1.1
	// sponsoredCadence interleaves one sponsored item per N organic.
	sponsoredCadence = 5
	// valueTopK is how many re-ranked items contribute to organic value.
	valueTopK = 5
)

// Output aggregates the funnel stages for one request.
type Output struct {
	Recalled     []Item
	Ranked       []Item
	ReRanked     []Item
	OrganicValue float64 // lifecycle-adjusted
	RawValue     float64 // before lifecycle adjustment
	Multiplier   float64
}

// Funnel runs the recall, rank, re-rank and value-aggregation stages over
// a shared content pool.
type Funnel struct {
	pool       []Item
	weights    Weights
	recallSize int
	rng        rnd.Source
	sink       trace.Sink
}

// New creates a funnel over the given pool.
func New(pool []Item, weights Weights, recallSize int, rng rnd.Source, sink trace.Sink) *Funnel {
	if recallSize <= 0 {
		recallSize = 100
	}
	return &Funnel{pool: pool, weights: weights, recallSize: recallSize, rng: rng, sink: sink}
}

// Recall unions interest, collaborative, popularity and cold-start
// sampling, deduplicates by content id and caps at the recall size.
func (f *Funnel) Recall(tags core.UserTags) []Item {
	quarter := f.recallSize / 4

	var candidates []Item
	candidates = append(candidates, f.interestRecall(tags, quarter)...)
	candidates = append(candidates, f.collaborativeRecall(quarter)...)
	candidates = append(candidates, f.popularRecall(quarter)...)
	candidates = append(candidates, f.coldStartRecall(tags, quarter)...)

	seen := make(map[string]struct{}, len(candidates))
	unique := candidates[:0]
	for _, c := range candidates {
		if _, ok := seen[c.ContentID]; ok {
			continue
		}
		seen[c.ContentID] = struct{}{}
		unique = append(unique, c)
	}

	if len(unique) > f.recallSize {
		unique = unique[:f.recallSize]
	}
	return unique
}

func (f *Funnel) interestRecall(tags core.UserTags, size int) []Item {
	if len(tags.InterestTags) == 0 {
		return nil
	}
	// Interest matching is type-affinity based: video channels pull video
	// content, shopping channels pull products, everything else articles.
	want := map[ContentType]bool{TypeArticle: true}
	for _, tag := range tags.InterestTags {
		switch tag {
		case "short_video", "anime", "gaming", "entertainment":
			want[TypeVideo] = true
		case "shopping", "deals", "price_compare", "beauty", "outfits":
			want[TypeProduct] = true
		}
	}

	var matched []Item
	for _, c := range f.pool {
		if want[c.Type] {
			matched = append(matched, c)
		}
	}
	return f.sample(matched, size)
}

func (f *Funnel) collaborativeRecall(size int) []Item {
	// Similarity sampling stands in for a real collaborative model.
	return f.sample(f.pool, size)
}

func (f *Funnel) popularRecall(size int) []Item {
	sorted := make([]Item, len(f.pool))
	copy(sorted, f.pool)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].BaseCTR > sorted[j].BaseCTR })
	if len(sorted) > size {
		sorted = sorted[:size]
	}
	return sorted
}

func (f *Funnel) coldStartRecall(tags core.UserTags, size int) []Item {
	if tags.LifecycleStage == core.StageNew {
		// New users get the highest-value content.
		sorted := make([]Item, len(f.pool))
		copy(sorted, f.pool)
		sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].LTV > sorted[j].LTV })
		if len(sorted) > size {
			sorted = sorted[:size]
		}
		return sorted
	}
	// Everyone else gets the most recently published slice of the pool.
	if len(f.pool) >= size {
		return append([]Item(nil), f.pool[len(f.pool)-size:]...)
	}
	return append([]Item(nil), f.pool...)
}

// sample picks size distinct items by partially shuffling a copy, so it
// terminates in size swaps no matter what the random source returns.
func (f *Funnel) sample(items []Item, size int) []Item {
	if len(items) <= size {
		return append([]Item(nil), items...)
	}
	shuffled := make([]Item, len(items))
	copy(shuffled, items)
	for i := 0; i < size; i++ {
		j := i + f.rng.Intn(len(shuffled)-i)
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	}
	return shuffled[:size]
}

// Rank computes the composite score for each recalled item and sorts
// descending.
func (f *Funnel) Rank(recalled []Item, tags core.UserTags) []Item {
	ranked := make([]Item, 0, len(recalled))

	interestMatch := 1.0
	if len(tags.InterestTags) > 0 {
		interestMatch = interestBoost
	}

	for _, c := range recalled {
		c.EstCTR = c.BaseCTR * interestMatch
		c.EstLikeRate = c.BaseLikeRate
		c.EstFinish = c.BaseFinishRate
		c.EstComment = c.BaseComment
		c.RankingScore = f.weights.CTR*c.EstCTR +
			f.weights.Like*c.EstLikeRate +
			f.weights.Finish*c.EstFinish +
			f.weights.Comment*c.EstComment
		ranked = append(ranked, c)
	}

	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].RankingScore > ranked[j].RankingScore })
	return ranked
}

// ReRank applies business rules over the ranked list: author diversity
// (skip an item when two of the previous three kept items share its
// author), a boost for first-seen authors, and optional sponsored
// interleaving at a fixed cadence.
func (f *Funnel) ReRank(ranked []Item, sponsored []Item) []Item {
	reRanked := make([]Item, 0, len(ranked))
	seenAuthors := make(map[string]struct{})
	sponsoredUsed := 0

	for i, c := range ranked {
		if _, seen := seenAuthors[c.AuthorID]; seen && recentSameAuthor(reRanked, c.AuthorID) >= 2 {
			continue
		}

		if _, seen := seenAuthors[c.AuthorID]; !seen {
			c.RankingScore *= firstAuthorBoost
		}
		seenAuthors[c.AuthorID] = struct{}{}
		reRanked = append(reRanked, c)

		if len(sponsored) > 0 && (i+1)%sponsoredCadence == 0 && sponsoredUsed < len(sponsored) {
			ad := sponsored[sponsoredUsed]
			ad.Type = TypeSponsored
			ad.Sponsored = true
			reRanked = append(reRanked, ad)
			sponsoredUsed++
		}
	}
	return reRanked
}

// recentSameAuthor counts how many of the last three kept items share the
// author.
func recentSameAuthor(kept []Item, authorID string) int {
	start := len(kept) - 3
	if start < 0 {
		start = 0
	}
	n := 0
	for _, c := range kept[start:] {
		if c.AuthorID == authorID {
			n++
		}
	}
	return n
}

// Value sums the lifetime-value contribution of the top re-ranked items
// and applies the lifecycle-stage multiplier.
func (f *Funnel) Value(reRanked []Item, stage core.LifecycleStage) (adjusted, raw, multiplier float64) {
	topK := valueTopK
	if len(reRanked) < topK {
		topK = len(reRanked)
	}
	for _, c := range reRanked[:topK] {
		raw += c.LTV
	}
	multiplier = LifecycleMultiplier(stage)
	return raw * multiplier, raw, multiplier
}

// Process runs all four stages for a request and emits the funnel trace
// record.
func (f *Funnel) Process(requestID string, tags core.UserTags, sponsored []Item) *Output {
	recalled := f.Recall(tags)
	ranked := f.Rank(recalled, tags)
	reRanked := f.ReRank(ranked, sponsored)
	adjusted, raw, multiplier := f.Value(reRanked, tags.LifecycleStage)

	out := &Output{
		Recalled:     recalled,
		Ranked:       ranked,
		ReRanked:     reRanked,
		OrganicValue: adjusted,
		RawValue:     raw,
		Multiplier:   multiplier,
	}

	f.sink.Write(&trace.Record{
		RequestID: requestID,
		Node:      trace.NodeFunnel,
		Action:    trace.ActionFunnelProcessing,
		Decision:  trace.DecisionPass,
		Reason:    trace.ReasonFunnelCompleted,
		Vars: map[string]any{
			"recalled_count":       len(recalled),
			"ranked_count":         len(ranked),
			"re_ranked_count":      len(reRanked),
			"organic_ltv":          raw,
			"organic_ltv_adjusted": adjusted,
			"lifecycle_stage":      tags.LifecycleStage,
			"lifecycle_multiplier": multiplier,
		},
		Reasoning: fmt.Sprintf("funnel complete: recalled %d, ranked %d, re-ranked %d, organic value %.4f (adjusted %.4f)",
			len(recalled), len(ranked), len(reRanked), raw, adjusted),
		LifecycleStage: string(tags.LifecycleStage),
	})

	return out
}
