package contextbuild

import (
	"github.com/ehrlich-b/kgraph/internal/config"
	"github.com/ehrlich-b/kgraph/internal/index"
	"github.com/ehrlich-b/kgraph/internal/nodestore"
	"github.com/ehrlich-b/kgraph/internal/reranker"
)

// defaultLimit and defaultMaxTokens match the retrieval tool surface's
// documented defaults (spec §6: context(query, max_tokens=1000, limit=20)).
const (
	defaultLimit     = 20
	defaultMaxTokens = 1000
)

// Builder is the ContextBuilder: it owns references to everything a
// Build call touches but no mutable state of its own.
type Builder struct {
	store    *nodestore.Store
	idx      *index.Index
	vec      VectorSearcher // nil disables vector retrieval entirely
	embedder QueryEmbedder  // nil disables vector retrieval entirely
	rerank   *reranker.Reranker
	cfg      *config.Config
}

// New constructs a Builder. vec and embedder may both be nil, in which
// case retrieval runs lexical-only.
func New(store *nodestore.Store, idx *index.Index, vec VectorSearcher, embedder QueryEmbedder, rerank *reranker.Reranker, cfg *config.Config) *Builder {
	return &Builder{store: store, idx: idx, vec: vec, embedder: embedder, rerank: rerank, cfg: cfg}
}

// Build runs the full retrieve/filter/group/fuse/rerank/pack pipeline
// for query and returns the packed context. It never errors on
// peripheral failures (vector retrieval down, reranker down); those
// degrade silently to the next fallback per spec §7.
func (b *Builder) Build(query string, opts Options) (*PackedContext, error) {
	if opts.Limit <= 0 {
		opts.Limit = defaultLimit
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = defaultMaxTokens
	}
	if opts.RerankQuery == "" {
		opts.RerankQuery = query
	}

	ftsHits, vecHits := b.retrieve(query, opts.Limit*3)
	ftsHits = filterHits(ftsHits, opts.Seen)
	vecHits = filterVecHits(vecHits, opts.Seen)

	nodes := groupByNode(ftsHits, vecHits)
	ftsBP, vecBP := b.loadCalibration()
	ranked := fuse(nodes, ftsHits, b.cfg.Weights, ftsBP, vecBP)

	ranked = b.maybeRerank(opts.RerankQuery, ranked)

	packed := b.pack(ranked, opts.MaxTokens*4)
	b.applySideEffects(packed)
	return packed, nil
}

func (b *Builder) loadCalibration() (*index.CalibrationRow, *index.CalibrationRow) {
	ftsBP, _ := b.idx.GetCalibration("fts")
	vecBP, _ := b.idx.GetCalibration("vector")
	return ftsBP, vecBP
}
