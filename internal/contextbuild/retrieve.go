package contextbuild

import (
	"strings"

	"github.com/ehrlich-b/kgraph/internal/index"
	"github.com/ehrlich-b/kgraph/internal/vectorservice"
)

// retrieve runs the lexical and vector searches. Vector retrieval is
// best-effort: any failure (embedder down, VectorService unreachable)
// simply yields no vector hits, per spec §7's "swallow Transient and
// fall back to the next step".
func (b *Builder) retrieve(query string, limit int) ([]index.FTSHit, []vectorservice.Result) {
	ftsHits, _ := b.idx.SearchFTS(query, limit)

	var vecHits []vectorservice.Result
	if b.vec != nil && b.embedder != nil {
		if qv, err := b.embedder.EmbedQuery(query); err == nil {
			if hits, err := b.vec.Search(qv, limit); err == nil {
				vecHits = hits
			}
		}
	}
	return ftsHits, vecHits
}

// filterHits drops internal nodes (slug starting with "_") and nodes in
// the caller-supplied seen set.
func filterHits(hits []index.FTSHit, seen map[string]bool) []index.FTSHit {
	out := hits[:0:0]
	for _, h := range hits {
		if strings.HasPrefix(h.Slug, "_") || seen[h.Slug] {
			continue
		}
		out = append(out, h)
	}
	return out
}

func filterVecHits(hits []vectorservice.Result, seen map[string]bool) []vectorservice.Result {
	out := hits[:0:0]
	for _, h := range hits {
		if strings.HasPrefix(h.ID, "_") || seen[h.ID] {
			continue
		}
		out = append(out, h)
	}
	return out
}
