package nodestore

import (
	"path/filepath"
	"sync"
	"testing"

	"github.com/ehrlich-b/kgraph/internal/kgerrors"
)

func TestCreateAndGet(t *testing.T) {
	s := New(t.TempDir())

	if _, err := s.Create("kg1", "Rust lifetimes", "concept"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	n, err := s.Get("kg1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if n == nil {
		t.Fatal("Get returned nil node")
	}
	if n.Title != "Rust lifetimes" || n.Type != "concept" {
		t.Errorf("unexpected node: %+v", n)
	}
	if len(n.Bullets) != 0 {
		t.Errorf("expected no bullets, got %d", len(n.Bullets))
	}
}

func TestCreateAlreadyExists(t *testing.T) {
	s := New(t.TempDir())
	if _, err := s.Create("kg1", "t", "concept"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	_, err := s.Create("kg1", "t2", "concept")
	if !kgerrors.Is(err, kgerrors.AlreadyExists) {
		t.Fatalf("expected AlreadyExists, got %v", err)
	}
}

func TestGetMissingReturnsNil(t *testing.T) {
	s := New(t.TempDir())
	n, err := s.Get("nope")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if n != nil {
		t.Errorf("expected nil node, got %+v", n)
	}
}

func TestAddBulletAutoCreatesNode(t *testing.T) {
	s := New(t.TempDir())
	id, err := s.AddBullet("kg1", "ownership is explicit", "fact", "")
	if err != nil {
		t.Fatalf("AddBullet: %v", err)
	}
	n, err := s.Get("kg1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if n.Title != "kg1" || n.Type != "concept" {
		t.Errorf("auto-created node wrong: %+v", n)
	}
	if len(n.Bullets) != 1 || n.Bullets[0].ID != id || n.Bullets[0].Text != "ownership is explicit" {
		t.Errorf("unexpected bullets: %+v", n.Bullets)
	}
}

func TestTombstoneRemovesMiddleBullet(t *testing.T) {
	s := New(t.TempDir())
	id1, _ := s.AddBullet("t", "one", "fact", "")
	id2, _ := s.AddBullet("t", "two", "fact", "")
	id3, _ := s.AddBullet("t", "three", "fact", "")

	if err := s.DeleteBullet("t", id2); err != nil {
		t.Fatalf("DeleteBullet: %v", err)
	}

	n, err := s.Get("t")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(n.Bullets) != 2 {
		t.Fatalf("expected 2 live bullets, got %d", len(n.Bullets))
	}
	if n.Bullets[0].ID != id1 || n.Bullets[1].ID != id3 {
		t.Errorf("expected order [%s %s], got [%s %s]", id1, id3, n.Bullets[0].ID, n.Bullets[1].ID)
	}
}

func TestUpdateBulletChangesTextKeepsID(t *testing.T) {
	s := New(t.TempDir())
	id, _ := s.AddBullet("u", "old text", "fact", "")

	if err := s.UpdateBullet("u", id, "new text"); err != nil {
		t.Fatalf("UpdateBullet: %v", err)
	}
	n, err := s.Get("u")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(n.Bullets) != 1 || n.Bullets[0].ID != id || n.Bullets[0].Text != "new text" {
		t.Errorf("unexpected bullets after update: %+v", n.Bullets)
	}
}

func TestVoteAndRecordUse(t *testing.T) {
	s := New(t.TempDir())
	id, _ := s.AddBullet("v", "text", "fact", "")

	if err := s.Vote("v", id, "useful"); err != nil {
		t.Fatalf("Vote: %v", err)
	}
	if err := s.Vote("v", id, "useful"); err != nil {
		t.Fatalf("Vote: %v", err)
	}
	if err := s.Vote("v", id, "harmful"); err != nil {
		t.Fatalf("Vote: %v", err)
	}
	if err := s.RecordUse("v", id); err != nil {
		t.Fatalf("RecordUse: %v", err)
	}

	n, err := s.Get("v")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	b := n.Bullets[0]
	if b.Useful != 2 || b.Harmful != 1 || b.Used != 1 {
		t.Errorf("unexpected vote counters: %+v", b)
	}
}

func TestBudgetUpdateAndClear(t *testing.T) {
	s := New(t.TempDir())
	if _, err := s.Create("big", "Big node", "concept"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := s.UpdateNodeBudget("big", 300); err != nil {
		t.Fatalf("UpdateNodeBudget: %v", err)
	}
	if err := s.UpdateNodeBudget("big", 250); err != nil {
		t.Fatalf("UpdateNodeBudget: %v", err)
	}
	n, err := s.Get("big")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if n.TokenBudget != 550 {
		t.Errorf("TokenBudget = %d, want 550", n.TokenBudget)
	}

	if err := s.ClearNodeBudget("big"); err != nil {
		t.Fatalf("ClearNodeBudget: %v", err)
	}
	n, err = s.Get("big")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if n.TokenBudget != 0 {
		t.Errorf("TokenBudget after clear = %d, want 0", n.TokenBudget)
	}
	if n.LastReviewed == nil {
		t.Errorf("expected LastReviewed to be set after clear")
	}

	// idempotence: clearing again is still 0
	if err := s.ClearNodeBudget("big"); err != nil {
		t.Fatalf("ClearNodeBudget (second): %v", err)
	}
	n, _ = s.Get("big")
	if n.TokenBudget != 0 {
		t.Errorf("TokenBudget after second clear = %d, want 0", n.TokenBudget)
	}
}

func TestConcurrentAppends(t *testing.T) {
	s := New(t.TempDir())
	if _, err := s.Create("cc", "Concurrent", "concept"); err != nil {
		t.Fatalf("Create: %v", err)
	}

	var wg sync.WaitGroup
	ids := make([][]string, 10)
	for p := 0; p < 10; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			local := make([]string, 10)
			for i := 0; i < 10; i++ {
				id, err := s.AddBullet("cc", "payload text of about two hundred bytes "+string(rune('a'+i)), "fact", "")
				if err != nil {
					t.Errorf("AddBullet: %v", err)
					return
				}
				local[i] = id
			}
			ids[p] = local
		}(p)
	}
	wg.Wait()

	n, err := s.Get("cc")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(n.Bullets) != 100 {
		t.Fatalf("expected 100 live bullets, got %d", len(n.Bullets))
	}
	seen := map[string]bool{}
	for _, b := range n.Bullets {
		if seen[b.ID] {
			t.Errorf("duplicate bullet id %s", b.ID)
		}
		seen[b.ID] = true
	}
}

func TestValidSlug(t *testing.T) {
	cases := map[string]bool{
		"kg1":    true,
		"a-b":    true,
		"ab":     true,
		"a":      false,
		"-ab":    false,
		"ab-":    false,
		"AB":     false,
		"a_b":    false,
		"":       false,
	}
	for slug, want := range cases {
		if got := ValidSlug(slug); got != want {
			t.Errorf("ValidSlug(%q) = %v, want %v", slug, got, want)
		}
	}
}

func TestExtractReferences(t *testing.T) {
	refs := ExtractReferences("see [b] and [c], also [b] again and [self]", "self")
	want := []string{"b", "c"}
	if len(refs) != len(want) {
		t.Fatalf("refs = %v, want %v", refs, want)
	}
	for i := range want {
		if refs[i] != want[i] {
			t.Errorf("refs[%d] = %q, want %q", i, refs[i], want[i])
		}
	}
}

func TestListSlugsSorted(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)
	for _, slug := range []string{"zeta", "alpha", "mid"} {
		if _, err := s.Create(slug, slug, "concept"); err != nil {
			t.Fatalf("Create(%s): %v", slug, err)
		}
	}
	slugs, err := s.ListSlugs()
	if err != nil {
		t.Fatalf("ListSlugs: %v", err)
	}
	want := []string{"alpha", "mid", "zeta"}
	if len(slugs) != len(want) {
		t.Fatalf("slugs = %v, want %v", slugs, want)
	}
	for i := range want {
		if slugs[i] != want[i] {
			t.Errorf("slugs[%d] = %q, want %q", i, slugs[i], want[i])
		}
	}
}

func TestUpdateBulletNotFound(t *testing.T) {
	s := New(t.TempDir())
	if _, err := s.Create("n", "n", "concept"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	err := s.UpdateBullet("n", "b-deadbeef", "text")
	if !kgerrors.Is(err, kgerrors.NotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestContentPathLayout(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)
	if _, err := s.Create("x", "x", "concept"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	want := filepath.Join(dir, "x", "node.jsonl")
	if got := s.contentPath("x"); got != want {
		t.Errorf("contentPath = %q, want %q", got, want)
	}
}
