package contextbuild

import (
	"sort"

	"github.com/ehrlich-b/kgraph/internal/calibrate"
	"github.com/ehrlich-b/kgraph/internal/config"
	"github.com/ehrlich-b/kgraph/internal/index"
	"github.com/ehrlich-b/kgraph/internal/vectorservice"
)

// nodeAgg accumulates one slug's matches across both scorers before
// fusion, carrying the matched bullet ids/texts for the Pack step.
type nodeAgg struct {
	slug        string
	bestFTS     float64 // raw bm25 (ascending, more negative is better)
	hasFTS      bool
	bestFTSRank int // 0-indexed position of the best lexical hit
	bestVec     float32
	hasVec      bool
	matched     []BulletRef // deduplicated, in first-seen order
	matchedSeen map[string]bool
}

// groupByNode collects per-slug aggregates from both hit lists.
func groupByNode(ftsHits []index.FTSHit, vecHits []vectorservice.Result) map[string]*nodeAgg {
	nodes := map[string]*nodeAgg{}
	get := func(slug string) *nodeAgg {
		a, ok := nodes[slug]
		if !ok {
			a = &nodeAgg{slug: slug, matchedSeen: map[string]bool{}}
			nodes[slug] = a
		}
		return a
	}

	for i, h := range ftsHits {
		a := get(h.Slug)
		if !a.hasFTS || h.RawScore < a.bestFTS {
			a.bestFTS = h.RawScore
			a.bestFTSRank = i
			a.hasFTS = true
		}
		if !a.matchedSeen[h.BulletID] {
			a.matchedSeen[h.BulletID] = true
			a.matched = append(a.matched, BulletRef{ID: h.BulletID, Text: h.Text})
		}
	}

	for _, h := range vecHits {
		a := get(h.ID)
		if !a.hasVec || h.Score > a.bestVec {
			a.bestVec = h.Score
			a.hasVec = true
		}
	}
	return nodes
}

// ranked is one slug's blended score, ready for rerank/pack.
type ranked struct {
	slug  string
	score float64
	agg   *nodeAgg
}

// fuse computes the blended score per slug and returns survivors sorted
// descending by blend.
func fuse(nodes map[string]*nodeAgg, ftsHits []index.FTSHit, w config.Weights, ftsBP, vecBP *index.CalibrationRow) []ranked {
	n := len(ftsHits)
	out := make([]ranked, 0, len(nodes))
	for slug, a := range nodes {
		ftsQ := ftsQuantile(a, n, ftsBP)
		vecQ := vecQuantile(a, vecBP)
		blend := w.FTS*ftsQ + w.Vector*vecQ
		if a.hasFTS && a.hasVec {
			blend += w.DualMatchBonus
		}
		out = append(out, ranked{slug: slug, score: blend, agg: a})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].score > out[j].score
	})
	return out
}

func ftsQuantile(a *nodeAgg, n int, bp *index.CalibrationRow) float64 {
	if !a.hasFTS {
		return 0
	}
	raw := -a.bestFTS // bm25 is ascending/negative; invert to higher-is-better
	if bp != nil && raw > 0 {
		return calibrate.ScoreToQuantile(raw, bp.Breakpoints)
	}
	if n > 1 {
		return 1 - float64(a.bestFTSRank)/float64(n-1)
	}
	return 1
}

func vecQuantile(a *nodeAgg, bp *index.CalibrationRow) float64 {
	if !a.hasVec {
		return 0
	}
	raw := float64(a.bestVec)
	if bp != nil && raw > 0 {
		return calibrate.ScoreToQuantile(raw, bp.Breakpoints)
	}
	return raw
}
