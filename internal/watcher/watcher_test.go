package watcher

import (
	"testing"
	"time"
)

func TestSlugFromPath(t *testing.T) {
	cases := []struct {
		nodesDir, path, want string
	}{
		{"/proj/nodes", "/proj/nodes/kg1/node.jsonl", "kg1"},
		{"/proj/nodes", "/proj/nodes/kg1/meta.jsonl", "kg1"},
		{"/proj/nodes", "/proj/nodes", ""},
		{"/proj/nodes", "/other/place/x.jsonl", ""},
	}
	for _, c := range cases {
		if got := slugFromPath(c.nodesDir, c.path); got != c.want {
			t.Errorf("slugFromPath(%q, %q) = %q, want %q", c.nodesDir, c.path, got, c.want)
		}
	}
}

func TestDebounceCollapsesBursts(t *testing.T) {
	calls := make(chan string, 10)
	w := New(t.TempDir(), func(slug string) error {
		calls <- slug
		return nil
	})

	w.debounce("kg1")
	w.debounce("kg1")
	w.debounce("kg1")

	select {
	case slug := <-calls:
		if slug != "kg1" {
			t.Fatalf("unexpected slug %q", slug)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for debounced reindex")
	}

	select {
	case slug := <-calls:
		t.Fatalf("expected exactly one reindex call, got extra for %q", slug)
	default:
	}
}
