package vectorservice

import "testing"

func TestMatrixSearchTopK(t *testing.T) {
	m := NewMatrix()
	m.Add("a", []float32{1, 0, 0})
	m.Add("b", []float32{0, 1, 0})
	m.Add("c", []float32{0.9, 0.1, 0})

	results := m.Search([]float32{1, 0, 0}, 2)
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].ID != "a" {
		t.Errorf("expected top match a, got %s", results[0].ID)
	}
	if results[1].ID != "c" {
		t.Errorf("expected second match c, got %s", results[1].ID)
	}
}

func TestMatrixSearchTiebreakAscendingID(t *testing.T) {
	m := NewMatrix()
	m.Add("z", []float32{1, 0})
	m.Add("a", []float32{1, 0})
	m.Add("m", []float32{1, 0})

	results := m.Search([]float32{1, 0}, 3)
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	want := []string{"a", "m", "z"}
	for i, id := range want {
		if results[i].ID != id {
			t.Errorf("position %d: want %s, got %s", i, id, results[i].ID)
		}
	}
}

func TestMatrixAddOverwrites(t *testing.T) {
	m := NewMatrix()
	m.Add("a", []float32{1, 0})
	m.Add("a", []float32{0, 1})
	if m.Len() != 1 {
		t.Fatalf("expected 1 entry after overwrite, got %d", m.Len())
	}
	results := m.Search([]float32{0, 1}, 1)
	if len(results) != 1 || results[0].Score < 0.99 {
		t.Fatalf("expected overwritten vector to match query, got %+v", results)
	}
}

func TestMatrixAddBatchReplaces(t *testing.T) {
	m := NewMatrix()
	m.Add("old", []float32{1, 0})
	m.AddBatch([]string{"x", "y"}, [][]float32{{1, 0}, {0, 1}})
	if m.Len() != 2 {
		t.Fatalf("expected 2 entries after AddBatch replace, got %d", m.Len())
	}
	results := m.Search([]float32{1, 0}, 2)
	found := false
	for _, r := range results {
		if r.ID == "old" {
			found = true
		}
	}
	if found {
		t.Fatalf("expected AddBatch to fully replace prior contents")
	}
}

func TestMatrixSearchEmptyMatrix(t *testing.T) {
	m := NewMatrix()
	if results := m.Search([]float32{1, 0}, 5); results != nil {
		t.Errorf("expected nil results on empty matrix, got %+v", results)
	}
}

func TestMatrixSearchKLargerThanN(t *testing.T) {
	m := NewMatrix()
	m.Add("a", []float32{1, 0})
	results := m.Search([]float32{1, 0}, 10)
	if len(results) != 1 {
		t.Fatalf("expected k to clamp to matrix size, got %d results", len(results))
	}
}
