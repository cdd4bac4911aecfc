package contextbuild

import "github.com/ehrlich-b/kgraph/internal/reranker"

// maxRerankPreviewBullets bounds how many bullets of a node's matched
// text are fed to the cross-encoder as a preview.
const maxRerankPreviewBullets = 3

// maybeRerank re-orders survivors by the cross-encoder when enabled and
// there are at least two candidates; otherwise it returns them unchanged
// (fuse's blend order stands).
func (b *Builder) maybeRerank(query string, survivors []ranked) []ranked {
	if !b.cfg.Reranker.Enabled || len(survivors) < 2 || b.rerank == nil {
		return survivors
	}

	bySlug := make(map[string]ranked, len(survivors))
	candidates := make([]reranker.Candidate, len(survivors))
	for i, r := range survivors {
		bySlug[r.slug] = r
		candidates[i] = reranker.Candidate{ID: r.slug, Text: b.previewText(r)}
	}

	results := b.rerank.Rerank(query, candidates)
	out := make([]ranked, 0, len(results))
	for _, res := range results {
		if r, ok := bySlug[res.ID]; ok {
			r.score = float64(res.Score)
			out = append(out, r)
		}
	}
	return out
}

// previewText builds the title + first-few-bullets preview handed to the
// cross-encoder to score; a NodeStore miss falls back to the slug alone
// rather than dropping the candidate.
func (b *Builder) previewText(r ranked) string {
	text := r.slug
	if node, err := b.store.Get(r.slug); err == nil && node != nil {
		text = node.Title
	}
	n := len(r.agg.matched)
	if n > maxRerankPreviewBullets {
		n = maxRerankPreviewBullets
	}
	for i := 0; i < n; i++ {
		text += " " + r.agg.matched[i].Text
	}
	return text
}
