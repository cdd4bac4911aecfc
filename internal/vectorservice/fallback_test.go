package vectorservice

import "testing"

func TestFallbackSearcherUsesLocalWhenRemoteUnreachable(t *testing.T) {
	m := NewMatrix()
	m.Add("a", []float32{1, 0})
	fs := NewFallbackSearcher(NewClient("127.0.0.1:1"), NewInProcessSearcher(m))

	results, err := fs.Search([]float32{1, 0}, 1)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].ID != "a" {
		t.Errorf("expected local fallback to find a, got %+v", results)
	}
}

func TestFallbackSearcherWithNoRemoteConfigured(t *testing.T) {
	m := NewMatrix()
	m.Add("a", []float32{1, 0})
	fs := NewFallbackSearcher(nil, NewInProcessSearcher(m))

	results, err := fs.Search([]float32{1, 0}, 1)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("expected local-only search to work, got %+v", results)
	}
}
