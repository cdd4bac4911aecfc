// Package contextbuild implements the ContextBuilder: hybrid lexical +
// vector retrieval fused via quantile calibration, optional cross-encoder
// reranking, and budget-packed compact rendering, grounded on the
// teacher's thread/render.go and thread/budget.go for the
// render-then-fit-to-budget shape (RenderWithBudget's "drop until it
// fits" loop generalized into a per-node truncate-or-skip strategy).
package contextbuild

import "github.com/ehrlich-b/kgraph/internal/vectorservice"

// BulletRef is one matched bullet carried into a ContextNode.
type BulletRef struct {
	ID   string
	Text string
}

// ContextNode is one node's contribution to a PackedContext.
type ContextNode struct {
	Slug         string
	Title        string
	Score        float64
	Bullets      []BulletRef
	TotalBullets int
	TokenBudget  int
	Explore      []string
	ReviewHint   string
}

// PackedContext is ContextBuilder's output: nodes in final rank order
// plus the total rendered character count.
type PackedContext struct {
	Nodes      []ContextNode
	TotalChars int
}

// Options configures one Build call.
type Options struct {
	SessionID   string          // reserved for future differential context; unused
	MaxTokens   int             // budget = MaxTokens * 4 characters
	Limit       int             // L: retrieval breadth before fusion/pack
	Seen        map[string]bool // slugs to exclude (already shown to caller)
	RerankQuery string          // defaults to the main query if empty
}

// VectorSearcher is satisfied by both vectorservice.Client (the remote
// VectorService) and vectorservice.InProcessSearcher (the in-process
// fallback), so Retrieve runs identically either way.
type VectorSearcher interface {
	Search(query []float32, k int) ([]vectorservice.Result, error)
}

// QueryEmbedder is the subset of the Embedder surface Retrieve needs.
type QueryEmbedder interface {
	EmbedQuery(text string) ([]float32, error)
}
