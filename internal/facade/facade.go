// Package facade bundles the NodeStore, Indexer, ContextBuilder,
// Calibrator, and Supervisor behind the stable text-returning tool
// surface (context/search/show/add_bullet/mark_reviewed/review_list) an
// LLM client calls, so a CLI or RPC layer has one object to call into
// instead of wiring each subsystem itself.
package facade

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/ehrlich-b/kgraph/internal/calibrate"
	"github.com/ehrlich-b/kgraph/internal/config"
	"github.com/ehrlich-b/kgraph/internal/contextbuild"
	"github.com/ehrlich-b/kgraph/internal/daemon"
	"github.com/ehrlich-b/kgraph/internal/index"
	"github.com/ehrlich-b/kgraph/internal/logger"
	"github.com/ehrlich-b/kgraph/internal/nodestore"
	"github.com/ehrlich-b/kgraph/internal/reranker"
	"github.com/ehrlich-b/kgraph/internal/vectorservice"
)

const defaultSearchLimit = 20

// Facade is the one per-project object the CLI, MCP tool server, and web
// viewer call into.
type Facade struct {
	cfg        *config.Config
	Store      *nodestore.Store
	Index      *index.Index
	Builder    *contextbuild.Builder
	Calibrator *calibrate.Calibrator
	Supervisor *daemon.Supervisor
}

// Open wires a Facade together for the project rooted at cfg.Dir. vec,
// embedder, and rerank may be nil (ContextBuilder and Calibrator then run
// lexical-only, per their documented fallback behavior).
func Open(cfg *config.Config, idx *index.Index, vec contextbuild.VectorSearcher, embedder contextbuild.QueryEmbedder, rerank *reranker.Reranker) (*Facade, error) {
	store := nodestore.New(cfg.NodesPath())

	var calVec calibrate.VectorSearcher
	if vec != nil {
		calVec = calibrateAdapter{vec}
	}

	builder := contextbuild.New(store, idx, vec, embedder, rerank, cfg)

	return &Facade{
		cfg:        cfg,
		Store:      store,
		Index:      idx,
		Builder:    builder,
		Calibrator: calibrate.New(idx, calVec),
		Supervisor: daemon.New(cfg),
	}, nil
}

// calibrateAdapter adapts contextbuild.VectorSearcher's Result type to
// calibrate's, which in practice are the same vectorservice.Result shape;
// kept as an explicit adapter so the two packages stay independently
// substitutable.
type calibrateAdapter struct {
	vec contextbuild.VectorSearcher
}

func (a calibrateAdapter) Search(query []float32, k int) ([]vectorservice.Result, error) {
	return a.vec.Search(query, k)
}

// Context renders the compact, budget-packed context for query. Each call
// is stamped with its own correlation id for tracing a single request
// across the log lines its downstream calls (reranker, vector service)
// may emit.
func (f *Facade) Context(query string, sessionID string, maxTokens, limit int) (string, error) {
	requestID := uuid.NewString()
	logger.Debug("facade: context", "request_id", requestID, "session", sessionID, "max_tokens", maxTokens, "limit", limit)
	pc, err := f.Builder.Build(query, contextbuild.Options{
		SessionID: sessionID,
		MaxTokens: maxTokens,
		Limit:     limit,
	})
	if err != nil {
		logger.Warn("facade: context failed", "request_id", requestID, "error", err)
		return "", err
	}
	return contextbuild.RenderPacked(pc), nil
}

// Search runs a lexical-only search and renders each hit as one line:
// "[slug] <truncated-text> ←<id>".
func (f *Facade) Search(query string, limit int) (string, error) {
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	hits, err := f.Index.SearchFTS(query, limit)
	if err != nil {
		return "", err
	}
	if len(hits) == 0 {
		return "(no results)", nil
	}
	lines := make([]string, len(hits))
	for i, h := range hits {
		lines[i] = fmt.Sprintf("[%s] %s ←%s", h.Slug, truncate(h.Text, 120), h.BulletID)
	}
	return strings.Join(lines, "\n"), nil
}

// Show renders the full node: header, a review banner if its token
// budget is at or above the configured threshold, and every live bullet.
// Each bullet's cross-references are annotated inline as live or dead
// (target node does not exist on disk).
func (f *Facade) Show(slug string) (string, error) {
	node, err := f.Store.Get(slug)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s (%s)  ●%d bullets  budget=%d\n", node.Slug, node.Title, node.Type, node.BulletCount(), node.TokenBudget)
	if f.cfg.ReviewThreshold > 0 && node.TokenBudget >= f.cfg.ReviewThreshold {
		fmt.Fprintf(&b, "⚠ NEEDS REVIEW (budget %d ≥ threshold %d)\n", node.TokenBudget, f.cfg.ReviewThreshold)
	}
	for _, bl := range node.Bullets {
		fmt.Fprintf(&b, "- (%s) %s ←%s%s\n", bl.Type, bl.Text, bl.ID, f.referenceAnnotations(bl.Text, node.Slug))
	}
	return b.String(), nil
}

// referenceAnnotations renders "  [target:live]"/"  [target:dead]" for
// every cross-reference in text, one per target, dead meaning the
// referenced slug has no node on disk.
func (f *Facade) referenceAnnotations(text, selfSlug string) string {
	targets := nodestore.ExtractReferences(text, selfSlug)
	if len(targets) == 0 {
		return ""
	}
	var b strings.Builder
	for _, t := range targets {
		state := "dead"
		if f.Store.Exists(t) {
			state = "live"
		}
		fmt.Fprintf(&b, "  [%s:%s]", t, state)
	}
	return b.String()
}

// AddBullet auto-creates the node if it is absent (title=slug,
// type="concept"), appends the bullet, and synchronously reindexes
// before returning, per the facade's reindex-on-mutation guarantee.
func (f *Facade) AddBullet(slug, text, bulletType, status string) (string, error) {
	if bulletType == "" {
		bulletType = "fact"
	}
	if !f.Store.Exists(slug) {
		if _, err := f.Store.Create(slug, slug, "concept"); err != nil {
			return "", err
		}
	}
	id, err := f.Store.AddBullet(slug, text, bulletType, status)
	if err != nil {
		return "", err
	}
	if err := f.Index.ReindexNode(f.Store, slug); err != nil {
		return "", err
	}
	return id, nil
}

// MarkReviewed clears slug's token_budget and reindexes. Idempotent:
// calling it twice in a row leaves budget at 0 both times.
func (f *Facade) MarkReviewed(slug string) (string, error) {
	if err := f.Store.ClearNodeBudget(slug); err != nil {
		return "", err
	}
	if err := f.Index.ReindexNode(f.Store, slug); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s reviewed, budget cleared", slug), nil
}

// ReviewList renders a tabular list of nodes whose token_budget is at or
// above threshold (0 uses the configured default).
func (f *Facade) ReviewList(threshold, limit int) (string, error) {
	if threshold <= 0 {
		threshold = f.cfg.ReviewThreshold
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	rows, err := f.Index.NodesAbove(threshold, limit)
	if err != nil {
		return "", err
	}
	if len(rows) == 0 {
		return "(nothing needs review)", nil
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].TokenBudget > rows[j].TokenBudget })
	lines := make([]string, len(rows))
	for i, r := range rows {
		lines[i] = fmt.Sprintf("[%s] %s  budget=%d", r.Slug, r.Title, r.TokenBudget)
	}
	return strings.Join(lines, "\n"), nil
}

// DoctorReport is the result of a Doctor run: slugs present in one of
// the NodeStore or the index but not the other.
type DoctorReport struct {
	MissingFromIndex []string // on disk, no nodes row
	OrphanedInIndex  []string // nodes row, no node directory
}

// Clean reports whether no drift was found.
func (r DoctorReport) Clean() bool {
	return len(r.MissingFromIndex) == 0 && len(r.OrphanedInIndex) == 0
}

// Doctor compares the NodeStore's on-disk slugs against the index's nodes
// table and reports drift without mutating either side, the way a startup
// reconciliation pass reports rows left in an inconsistent state rather
// than silently fixing them. Callers decide whether to run rebuild.
func (f *Facade) Doctor() (DoctorReport, error) {
	onDisk, err := f.Store.ListSlugs()
	if err != nil {
		return DoctorReport{}, err
	}
	indexed, err := f.Index.IndexedSlugs()
	if err != nil {
		return DoctorReport{}, err
	}

	onDiskSet := make(map[string]bool, len(onDisk))
	for _, s := range onDisk {
		onDiskSet[s] = true
	}
	indexedSet := make(map[string]bool, len(indexed))
	for _, s := range indexed {
		indexedSet[s] = true
	}

	var report DoctorReport
	for _, s := range onDisk {
		if !indexedSet[s] {
			report.MissingFromIndex = append(report.MissingFromIndex, s)
		}
	}
	for _, s := range indexed {
		if !onDiskSet[s] {
			report.OrphanedInIndex = append(report.OrphanedInIndex, s)
		}
	}
	return report, nil
}

// RenderDoctorReport formats a DoctorReport for terminal output.
func RenderDoctorReport(r DoctorReport) string {
	if r.Clean() {
		return "OK: index matches node store"
	}
	var b strings.Builder
	if len(r.MissingFromIndex) > 0 {
		fmt.Fprintf(&b, "missing from index (%d): run `kg rebuild`\n", len(r.MissingFromIndex))
		for _, s := range r.MissingFromIndex {
			fmt.Fprintf(&b, "  %s\n", s)
		}
	}
	if len(r.OrphanedInIndex) > 0 {
		fmt.Fprintf(&b, "orphaned in index (%d): node directory no longer exists\n", len(r.OrphanedInIndex))
		for _, s := range r.OrphanedInIndex {
			fmt.Fprintf(&b, "  %s\n", s)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
