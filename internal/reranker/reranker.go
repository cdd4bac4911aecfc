// Package reranker implements the Reranker: cross-encoder scoring of
// (query, candidate-text) pairs with a cosine fallback, grounded on the
// embedding package's Provider/HTTP-client shape (internal/embedding's
// Ollama client) and on its fallback-chain pattern from provider.go's
// "auto" dispatch.
package reranker

import (
	"sort"

	"github.com/ehrlich-b/kgraph/internal/embedding"
)

// Candidate is one (id, text) pair to be ranked against a query.
type Candidate struct {
	ID   string
	Text string
}

// Result is one ranked candidate.
type Result struct {
	ID    string
	Score float32
}

// CrossEncoder scores a query against a batch of documents in one call,
// in the same order as docs, higher is more relevant.
type CrossEncoder interface {
	Score(query string, docs []string) ([]float32, error)
}

// QueryEmbedder is the subset of the embedding package's surface the
// cosine fallback needs.
type QueryEmbedder interface {
	EmbedQuery(text string) ([]float32, error)
	EmbedDocument(text, context string) ([]float32, error)
}

// Reranker orders candidates by relevance to a query, preferring a
// cross-encoder, falling back to cosine similarity on fresh embeddings,
// and finally returning the input order with score 0 if both steps are
// unavailable. The fallback chain is transparent to callers: Rerank
// never errors.
type Reranker struct {
	cross    CrossEncoder // nil if disabled or unconfigured
	embedder QueryEmbedder // nil disables the cosine fallback too
}

// New constructs a Reranker. Either argument may be nil; Rerank degrades
// gracefully down the fallback chain.
func New(cross CrossEncoder, embedder QueryEmbedder) *Reranker {
	return &Reranker{cross: cross, embedder: embedder}
}

// Rerank orders candidates by relevance to query, descending by score.
// Each fallback step is an explicit attempt that either produces a full
// ranked list or is skipped; no step raises past this function.
func (r *Reranker) Rerank(query string, candidates []Candidate) []Result {
	if len(candidates) == 0 {
		return nil
	}

	if results, ok := r.tryCrossEncoder(query, candidates); ok {
		return results
	}
	if results, ok := r.tryCosine(query, candidates); ok {
		return results
	}
	return identityOrder(candidates)
}

func (r *Reranker) tryCrossEncoder(query string, candidates []Candidate) ([]Result, bool) {
	if r.cross == nil {
		return nil, false
	}
	docs := make([]string, len(candidates))
	for i, c := range candidates {
		docs[i] = c.Text
	}
	scores, err := r.cross.Score(query, docs)
	if err != nil || len(scores) != len(candidates) {
		return nil, false
	}
	results := make([]Result, len(candidates))
	for i, c := range candidates {
		results[i] = Result{ID: c.ID, Score: scores[i]}
	}
	sortDescending(results)
	return results, true
}

func (r *Reranker) tryCosine(query string, candidates []Candidate) ([]Result, bool) {
	if r.embedder == nil {
		return nil, false
	}
	qv, err := r.embedder.EmbedQuery(query)
	if err != nil {
		return nil, false
	}
	results := make([]Result, len(candidates))
	for i, c := range candidates {
		dv, err := r.embedder.EmbedDocument(c.Text, "")
		if err != nil {
			return nil, false
		}
		results[i] = Result{ID: c.ID, Score: embedding.Cosine(qv, dv)}
	}
	sortDescending(results)
	return results, true
}

// identityOrder is the last resort: preserve input order, score 0.
func identityOrder(candidates []Candidate) []Result {
	results := make([]Result, len(candidates))
	for i, c := range candidates {
		results[i] = Result{ID: c.ID, Score: 0}
	}
	return results
}

func sortDescending(results []Result) {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
}
