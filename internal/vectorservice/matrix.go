// Package vectorservice implements the VectorService: a long-lived process
// holding a normalized in-memory matrix of node embeddings, exposing HTTP
// embed/search endpoints and bootstrapping from the index on startup.
package vectorservice

import (
	"container/heap"
	"sort"
	"sync"

	"github.com/ehrlich-b/kgraph/internal/embedding"
)

// Result is one cosine search hit.
type Result struct {
	ID    string
	Score float32
}

// Matrix is the VectorService's authoritative query-time store: parallel
// id and row slices guarded by a single lock, normalized at insertion so
// search is a single dot product per row.
type Matrix struct {
	mu   sync.RWMutex
	ids  []string
	rows [][]float32
	byID map[string]int
}

// NewMatrix returns an empty Matrix.
func NewMatrix() *Matrix {
	return &Matrix{byID: make(map[string]int)}
}

// Len returns the number of vectors currently held.
func (m *Matrix) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.ids)
}

// Add inserts or overwrites one vector, normalizing it first.
func (m *Matrix) Add(id string, vector []float32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addLocked(id, vector)
}

func (m *Matrix) addLocked(id string, vector []float32) {
	norm := normalize(vector)
	if idx, ok := m.byID[id]; ok {
		m.rows[idx] = norm
		return
	}
	m.byID[id] = len(m.ids)
	m.ids = append(m.ids, id)
	m.rows = append(m.rows, norm)
}

// AddBatch replaces the entire matrix with the given batch, in the
// order given, used for bootstrap from the index.
func (m *Matrix) AddBatch(ids []string, vectors [][]float32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ids = make([]string, 0, len(ids))
	m.rows = make([][]float32, 0, len(ids))
	m.byID = make(map[string]int, len(ids))
	for i, id := range ids {
		m.addLocked(id, vectors[i])
	}
}

// scoredID pairs an id/score for the top-k selection heap.
type scoredID struct {
	id    string
	score float32
}

// minHeap keeps the k best-scoring candidates seen so far, with the
// current worst at the root so a single comparison decides whether a new
// candidate displaces it.
type minHeap []scoredID

func (h minHeap) Len() int      { return len(h) }
func (h minHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h minHeap) Less(i, j int) bool {
	if h[i].score != h[j].score {
		return h[i].score < h[j].score
	}
	// Tie-break opposite of the final ordering, so popping yields
	// ascending-id order for equal scores.
	return h[i].id > h[j].id
}
func (h *minHeap) Push(x any) { *h = append(*h, x.(scoredID)) }
func (h *minHeap) Pop() any {
	old := *h
	n := len(old)
	v := old[n-1]
	*h = old[:n-1]
	return v
}

// Search returns the top-k matches by cosine similarity to query (which
// need not be pre-normalized), using partial selection rather than a full
// sort of N rows. Ties break by ascending id for determinism.
func (m *Matrix) Search(query []float32, k int) []Result {
	q := normalize(append([]float32(nil), query...))

	m.mu.RLock()
	defer m.mu.RUnlock()

	if k <= 0 || len(m.ids) == 0 {
		return nil
	}
	if k > len(m.ids) {
		k = len(m.ids)
	}

	h := make(minHeap, 0, k)
	heap.Init(&h)
	for i, row := range m.rows {
		s := dot(q, row)
		if h.Len() < k {
			heap.Push(&h, scoredID{id: m.ids[i], score: s})
			continue
		}
		if s > h[0].score || (s == h[0].score && m.ids[i] < h[0].id) {
			heap.Pop(&h)
			heap.Push(&h, scoredID{id: m.ids[i], score: s})
		}
	}

	out := make([]Result, h.Len())
	for i := len(out) - 1; i >= 0; i-- {
		v := heap.Pop(&h).(scoredID)
		out[i] = Result{ID: v.id, Score: v.score}
	}
	// heap pop order is ascending score; stabilize ties to ascending id
	// within equal-score runs for deterministic output.
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// InProcessSearcher adapts a Matrix to an error-returning search
// interface, so ContextBuilder and the Calibrator can treat the
// in-process fallback path and the VectorService Client uniformly.
type InProcessSearcher struct {
	matrix *Matrix
}

// NewInProcessSearcher wraps matrix for in-process vector search.
func NewInProcessSearcher(matrix *Matrix) *InProcessSearcher {
	return &InProcessSearcher{matrix: matrix}
}

// Search always succeeds; an in-process lookup has nothing to fail on.
func (s *InProcessSearcher) Search(query []float32, k int) ([]Result, error) {
	return s.matrix.Search(query, k), nil
}

func normalize(v []float32) []float32 {
	return embedding.Normalize(append([]float32(nil), v...))
}

func dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}
