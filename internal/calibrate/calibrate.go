// Package calibrate implements the Calibrator: sampling recent bullets,
// running both scorers against them, and persisting 21-point quantile
// breakpoints so ContextBuilder can map raw scores onto a comparable
// [0, 1] scale.
package calibrate

import (
	"github.com/ehrlich-b/kgraph/internal/embedding"
	"github.com/ehrlich-b/kgraph/internal/index"
	"github.com/ehrlich-b/kgraph/internal/vectorservice"
)

// minSamples is the minimum number of collected scores required before a
// scorer's calibration is considered trustworthy.
const minSamples = 20

// searchLimit bounds each per-sample lexical/vector search.
const searchLimit = 20

// Status reports what happened to one scorer's calibration attempt.
type Status string

const (
	Calibrated Status = "calibrated"
	Skipped    Status = "skipped"
	Failed     Status = "failed"
)

// ScorerReport is one scorer's outcome.
type ScorerReport struct {
	Status      Status
	SampleCount int
	Err         error
}

// Report is the outcome of one Calibrate call.
type Report struct {
	FTS    ScorerReport
	Vector ScorerReport
}

// VectorSearcher is satisfied by both vectorservice.Client and
// vectorservice.InProcessSearcher, so the Calibrator runs the same way
// whether or not the VectorService daemon is reachable.
type VectorSearcher interface {
	Search(query []float32, k int) ([]vectorservice.Result, error)
}

// Calibrator samples the index and recomputes per-scorer calibration.
type Calibrator struct {
	idx *index.Index
	vec VectorSearcher
}

// New constructs a Calibrator. vec may be nil to skip vector calibration
// entirely (treated as always insufficient samples).
func New(idx *index.Index, vec VectorSearcher) *Calibrator {
	return &Calibrator{idx: idx, vec: vec}
}

// Calibrate samples up to sampleSize bullets, scores each against both
// lexical and vector search, and persists fresh breakpoints for any
// scorer that collected at least 20 comparison scores.
func (c *Calibrator) Calibrate(sampleSize int) (Report, error) {
	samples, err := c.idx.SampleBullets(sampleSize)
	if err != nil {
		return Report{}, err
	}

	var ftsScores, vecScores []float64
	var ftsErr, vecErr error

	for _, s := range samples {
		hits, err := c.idx.SearchFTS(s.Text, searchLimit)
		if err != nil {
			ftsErr = err
		} else {
			for _, h := range hits {
				if h.BulletID == s.BulletID {
					continue
				}
				// bm25 is ascending (more negative is better); negate so
				// higher is better, matching the vector scorer's convention
				// and ContextBuilder's Fuse step.
				ftsScores = append(ftsScores, -h.RawScore)
			}
		}

		if c.vec == nil {
			continue
		}
		raw, ok, err := c.idx.GetEmbedding(s.NodeSlug)
		if err != nil {
			vecErr = err
			continue
		}
		if !ok {
			continue
		}
		query := embedding.BytesToVec(raw)
		hits, err := c.vec.Search(query, searchLimit)
		if err != nil {
			vecErr = err
			continue
		}
		for _, h := range hits {
			if h.ID == s.NodeSlug {
				continue
			}
			vecScores = append(vecScores, float64(h.Score))
		}
	}

	bulletCount, err := c.idx.BulletCount()
	if err != nil {
		return Report{}, err
	}

	return Report{
		FTS:    c.finalize("fts", ftsScores, bulletCount, ftsErr),
		Vector: c.finalize("vector", vecScores, bulletCount, vecErr),
	}, nil
}

func (c *Calibrator) finalize(scorer string, scores []float64, bulletCount int, err error) ScorerReport {
	if err != nil {
		return ScorerReport{Status: Failed, SampleCount: len(scores), Err: err}
	}
	if len(scores) < minSamples {
		return ScorerReport{Status: Skipped, SampleCount: len(scores)}
	}
	breakpoints := computeBreakpoints(scores)
	if err := c.idx.SaveCalibration(scorer, breakpoints, bulletCount); err != nil {
		return ScorerReport{Status: Failed, SampleCount: len(scores), Err: err}
	}
	return ScorerReport{Status: Calibrated, SampleCount: len(scores)}
}

// IsStale reports whether a scorer's persisted calibration should be
// recomputed: the bullet count has drifted by more than max(5, 10%) from
// the count at calibration time, or at least 20 index mutations have
// happened since.
func IsStale(row *index.CalibrationRow, currentBulletCount int) bool {
	if row == nil {
		return true
	}
	if row.OpsSince >= 20 {
		return true
	}
	drift := currentBulletCount - row.BulletCount
	if drift < 0 {
		drift = -drift
	}
	threshold := row.BulletCount / 10
	if threshold < 5 {
		threshold = 5
	}
	return drift > threshold
}
