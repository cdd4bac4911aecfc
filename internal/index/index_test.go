package index

import (
	"testing"

	"github.com/ehrlich-b/kgraph/internal/nodestore"
)

func openTestIndex(t *testing.T) *Index {
	t.Helper()
	idx, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open test index: %v", err)
	}
	t.Cleanup(func() { idx.Close() })
	return idx
}

func TestReindexNodeHappyPathFTS(t *testing.T) {
	store := nodestore.New(t.TempDir())
	idx := openTestIndex(t)

	if _, err := store.Create("kg1", "Rust lifetimes", "concept"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	bulletID, err := store.AddBullet("kg1", "ownership is explicit", "fact", "")
	if err != nil {
		t.Fatalf("AddBullet: %v", err)
	}
	if err := idx.ReindexNode(store, "kg1"); err != nil {
		t.Fatalf("ReindexNode: %v", err)
	}

	hits, err := idx.SearchFTS("ownership", 10)
	if err != nil {
		t.Fatalf("SearchFTS: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("expected 1 hit, got %d: %+v", len(hits), hits)
	}
	if hits[0].Slug != "kg1" || hits[0].BulletID != bulletID || hits[0].Text != "ownership is explicit" {
		t.Errorf("unexpected hit: %+v", hits[0])
	}
}

func TestReindexNodeBacklinks(t *testing.T) {
	store := nodestore.New(t.TempDir())
	idx := openTestIndex(t)

	if _, err := store.AddBullet("a", "see [b] and [c]", "fact", ""); err != nil {
		t.Fatalf("AddBullet: %v", err)
	}
	if err := idx.ReindexNode(store, "a"); err != nil {
		t.Fatalf("ReindexNode: %v", err)
	}

	for _, slug := range []string{"b", "c"} {
		froms, err := idx.GetBacklinks(slug)
		if err != nil {
			t.Fatalf("GetBacklinks(%s): %v", slug, err)
		}
		if len(froms) != 1 || froms[0] != "a" {
			t.Errorf("GetBacklinks(%s) = %v, want [a]", slug, froms)
		}
	}

	// Rewrite to drop the [c] reference and reindex; a->c edge should go away.
	node, _ := store.Get("a")
	if err := store.UpdateBullet("a", node.Bullets[0].ID, "see [b]"); err != nil {
		t.Fatalf("UpdateBullet: %v", err)
	}
	if err := idx.ReindexNode(store, "a"); err != nil {
		t.Fatalf("ReindexNode (2): %v", err)
	}

	froms, err := idx.GetBacklinks("c")
	if err != nil {
		t.Fatalf("GetBacklinks(c): %v", err)
	}
	if len(froms) != 0 {
		t.Errorf("expected no backlinks to c, got %v", froms)
	}
}

func TestReindexNodeTombstone(t *testing.T) {
	store := nodestore.New(t.TempDir())
	idx := openTestIndex(t)

	id1, _ := store.AddBullet("t", "one", "fact", "")
	_, _ = store.AddBullet("t", "two", "fact", "")
	id3, _ := store.AddBullet("t", "three", "fact", "")
	_ = id1

	if err := store.DeleteBullet("t", id1); err != nil {
		t.Fatalf("DeleteBullet: %v", err)
	}
	if err := idx.ReindexNode(store, "t"); err != nil {
		t.Fatalf("ReindexNode: %v", err)
	}

	rows, err := idx.NodesAbove(0, 10)
	if err != nil {
		t.Fatalf("NodesAbove: %v", err)
	}
	var got *NodeRow
	for i := range rows {
		if rows[i].Slug == "t" {
			got = &rows[i]
		}
	}
	if got == nil {
		t.Fatal("node t not found in index")
	}
	if got.BulletCount != 2 {
		t.Errorf("bullet_count = %d, want 2", got.BulletCount)
	}
	_ = id3
}

func TestIndexedSlugsSorted(t *testing.T) {
	store := nodestore.New(t.TempDir())
	idx := openTestIndex(t)

	for _, slug := range []string{"zeta", "alpha", "mid"} {
		if _, err := store.Create(slug, slug, "concept"); err != nil {
			t.Fatalf("Create(%s): %v", slug, err)
		}
		if err := idx.ReindexNode(store, slug); err != nil {
			t.Fatalf("ReindexNode(%s): %v", slug, err)
		}
	}

	slugs, err := idx.IndexedSlugs()
	if err != nil {
		t.Fatalf("IndexedSlugs: %v", err)
	}
	want := []string{"alpha", "mid", "zeta"}
	if len(slugs) != len(want) {
		t.Fatalf("got %v, want %v", slugs, want)
	}
	for i, s := range want {
		if slugs[i] != s {
			t.Errorf("slugs[%d] = %q, want %q", i, slugs[i], s)
		}
	}
}

func TestRebuildAllEquivalence(t *testing.T) {
	store := nodestore.New(t.TempDir())
	idx := openTestIndex(t)

	for _, slug := range []string{"x", "y", "z"} {
		if _, err := store.AddBullet(slug, "hello from "+slug, "fact", ""); err != nil {
			t.Fatalf("AddBullet(%s): %v", slug, err)
		}
		if err := idx.ReindexNode(store, slug); err != nil {
			t.Fatalf("ReindexNode(%s): %v", slug, err)
		}
	}

	incremental, err := idx.SearchFTS("hello", 10)
	if err != nil {
		t.Fatalf("SearchFTS (incremental): %v", err)
	}

	count, err := idx.RebuildAll(store)
	if err != nil {
		t.Fatalf("RebuildAll: %v", err)
	}
	if count != 3 {
		t.Errorf("RebuildAll count = %d, want 3", count)
	}

	rebuilt, err := idx.SearchFTS("hello", 10)
	if err != nil {
		t.Fatalf("SearchFTS (rebuilt): %v", err)
	}
	if len(incremental) != len(rebuilt) {
		t.Fatalf("hit count mismatch: incremental=%d rebuilt=%d", len(incremental), len(rebuilt))
	}
}

func TestCalibrationRoundTrip(t *testing.T) {
	idx := openTestIndex(t)

	got, err := idx.GetCalibration("fts")
	if err != nil {
		t.Fatalf("GetCalibration (missing): %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil calibration, got %+v", got)
	}

	breakpoints := make([]float64, 21)
	for i := range breakpoints {
		breakpoints[i] = float64(i) / 20
	}
	if err := idx.SaveCalibration("fts", breakpoints, 100); err != nil {
		t.Fatalf("SaveCalibration: %v", err)
	}
	if err := idx.IncrementOpsSince(); err != nil {
		t.Fatalf("IncrementOpsSince: %v", err)
	}

	row, err := idx.GetCalibration("fts")
	if err != nil {
		t.Fatalf("GetCalibration: %v", err)
	}
	if row == nil || len(row.Breakpoints) != 21 {
		t.Fatalf("unexpected calibration row: %+v", row)
	}
	if row.OpsSince != 1 {
		t.Errorf("OpsSince = %d, want 1", row.OpsSince)
	}
}

func TestUpsertEmbeddingAndBootstrap(t *testing.T) {
	store := nodestore.New(t.TempDir())
	idx := openTestIndex(t)

	if _, err := store.AddBullet("kg1", "text", "fact", ""); err != nil {
		t.Fatalf("AddBullet: %v", err)
	}
	if err := idx.ReindexNode(store, "kg1"); err != nil {
		t.Fatalf("ReindexNode: %v", err)
	}
	vec := []byte{0, 0, 128, 63} // float32(1.0) LE
	if err := idx.UpsertEmbedding("kg1", vec, "test-model"); err != nil {
		t.Fatalf("UpsertEmbedding: %v", err)
	}

	rows, err := idx.AllEmbeddings()
	if err != nil {
		t.Fatalf("AllEmbeddings: %v", err)
	}
	if len(rows) != 1 || rows[0].Slug != "kg1" || rows[0].Model != "test-model" {
		t.Fatalf("unexpected embeddings: %+v", rows)
	}
}

// stubEmbedder is a fixed-vector DocumentEmbedder for reindex tests.
type stubEmbedder struct {
	vec []float32
}

func (s stubEmbedder) EmbedDocument(text, context string) ([]float32, error) { return s.vec, nil }
func (s stubEmbedder) Name() string                                          { return "stub-1" }

// stubSink records every id pushed to it, standing in for
// vectorservice.Matrix in tests that don't need a real matrix.
type stubSink struct {
	ids []string
}

func (s *stubSink) Add(id string, vector []float32) { s.ids = append(s.ids, id) }

func TestReindexNodeComputesAndPushesEmbedding(t *testing.T) {
	store := nodestore.New(t.TempDir())
	idx := openTestIndex(t)

	sink := &stubSink{}
	idx.SetEmbedder(stubEmbedder{vec: []float32{0.1, 0.2, 0.3}}, sink)

	if _, err := store.AddBullet("kg1", "ownership is explicit", "fact", ""); err != nil {
		t.Fatalf("AddBullet: %v", err)
	}
	if err := idx.ReindexNode(store, "kg1"); err != nil {
		t.Fatalf("ReindexNode: %v", err)
	}

	rows, err := idx.AllEmbeddings()
	if err != nil {
		t.Fatalf("AllEmbeddings: %v", err)
	}
	if len(rows) != 1 || rows[0].Slug != "kg1" || rows[0].Model != "stub-1" {
		t.Fatalf("unexpected embeddings: %+v", rows)
	}
	if len(sink.ids) != 1 || sink.ids[0] != "kg1" {
		t.Fatalf("expected one push for kg1, got %+v", sink.ids)
	}
}

func TestReindexNodeSkipsEmbeddingWithoutEmbedder(t *testing.T) {
	store := nodestore.New(t.TempDir())
	idx := openTestIndex(t)

	if _, err := store.AddBullet("kg1", "ownership is explicit", "fact", ""); err != nil {
		t.Fatalf("AddBullet: %v", err)
	}
	if err := idx.ReindexNode(store, "kg1"); err != nil {
		t.Fatalf("ReindexNode: %v", err)
	}

	rows, err := idx.AllEmbeddings()
	if err != nil {
		t.Fatalf("AllEmbeddings: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("expected no embeddings without an embedder wired, got %+v", rows)
	}
}
