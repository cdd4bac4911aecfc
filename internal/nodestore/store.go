package nodestore

import (
	"bufio"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/ehrlich-b/kgraph/internal/jsonl"
	"github.com/ehrlich-b/kgraph/internal/kgerrors"
)

// readRawLines returns every non-empty line of path as its original bytes,
// preserving header/bullet/tombstone records verbatim for rewrite passes.
func readRawLines(path string) ([][]byte, error) {
	var lines [][]byte
	err := jsonl.ReadAll(path, func(line []byte) error {
		cp := make([]byte, len(line))
		copy(cp, line)
		lines = append(lines, cp)
		return nil
	})
	return lines, err
}

// Store is the NodeStore: read/write access to the nodes directory's
// per-node content and meta JSONL files.
type Store struct {
	nodesDir string
}

// New returns a Store rooted at nodesDir. The directory is not required to
// exist yet; it is created lazily on first write.
func New(nodesDir string) *Store {
	return &Store{nodesDir: nodesDir}
}

func (s *Store) nodeDir(slug string) string {
	return filepath.Join(s.nodesDir, slug)
}

func (s *Store) contentPath(slug string) string {
	return filepath.Join(s.nodeDir(slug), "node.jsonl")
}

func (s *Store) metaPath(slug string) string {
	return filepath.Join(s.nodeDir(slug), "meta.jsonl")
}

// Exists reports whether slug has a content file.
func (s *Store) Exists(slug string) bool {
	_, err := os.Stat(s.contentPath(slug))
	return err == nil
}

// ListSlugs returns every node slug with a content file, sorted ascending.
func (s *Store) ListSlugs() ([]string, error) {
	entries, err := os.ReadDir(s.nodesDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("nodestore: list %s: %w", s.nodesDir, err)
	}
	var slugs []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(s.nodesDir, e.Name(), "node.jsonl")); err == nil {
			slugs = append(slugs, e.Name())
		}
	}
	sort.Strings(slugs)
	return slugs, nil
}

// IterNodes calls fn once per node in slug order, stopping at the first
// error fn returns.
func (s *Store) IterNodes(fn func(*Node) error) error {
	slugs, err := s.ListSlugs()
	if err != nil {
		return err
	}
	for _, slug := range slugs {
		n, err := s.Get(slug)
		if err != nil {
			return err
		}
		if n == nil {
			continue
		}
		if err := fn(n); err != nil {
			return err
		}
	}
	return nil
}

// Get parses a node's content and meta files, merges votes and budget, and
// returns the node with its live bullets. Returns (nil, nil) if slug has no
// content file.
func (s *Store) Get(slug string) (*Node, error) {
	hdr, bullets, err := parseContent(s.contentPath(slug))
	if err != nil {
		return nil, err
	}
	if hdr == nil {
		return nil, nil
	}

	meta, err := parseMeta(s.metaPath(slug))
	if err != nil {
		return nil, err
	}
	meta.applyTo(bullets)

	return &Node{
		Slug:         hdr.Slug,
		Title:        hdr.Title,
		Type:         hdr.Type,
		CreatedAt:    hdr.CreatedAt,
		Bullets:      bullets,
		TokenBudget:  meta.tokenBudget,
		LastReviewed: meta.lastReviewed,
	}, nil
}

// Create writes a new node's header record. Fails with AlreadyExists if the
// content file already exists.
func (s *Store) Create(slug, title, nodeType string) (*Node, error) {
	if !ValidSlug(slug) {
		return nil, kgerrors.Wrap(kgerrors.Invalid, "malformed slug %q", slug)
	}
	if s.Exists(slug) {
		return nil, kgerrors.Wrap(kgerrors.AlreadyExists, "node %q", slug)
	}
	if err := os.MkdirAll(s.nodeDir(slug), 0o755); err != nil {
		return nil, fmt.Errorf("nodestore: mkdir %s: %w", s.nodeDir(slug), err)
	}

	now := time.Now().UTC()
	h := header{V: 1, Slug: slug, Title: title, Type: nodeType, CreatedAt: now}
	if err := jsonl.Append(s.contentPath(slug), h); err != nil {
		return nil, err
	}
	return &Node{Slug: slug, Title: title, Type: nodeType, CreatedAt: now}, nil
}

// AddBullet appends a bullet record, auto-creating the node (title=slug,
// type=concept) if it doesn't exist yet.
func (s *Store) AddBullet(slug, text, bulletType, status string) (string, error) {
	if !ValidSlug(slug) {
		return "", kgerrors.Wrap(kgerrors.Invalid, "malformed slug %q", slug)
	}
	if !s.Exists(slug) {
		if _, err := s.Create(slug, slug, "concept"); err != nil && !kgerrors.Is(err, kgerrors.AlreadyExists) {
			return "", err
		}
	}

	id := GenerateBulletID()
	rec := contentBullet{
		ID:        id,
		Type:      bulletType,
		Text:      text,
		CreatedAt: time.Now().UTC(),
		Status:    status,
	}
	if err := jsonl.Append(s.contentPath(slug), rec); err != nil {
		return "", err
	}
	return id, nil
}

// UpdateBullet rewrites the content file with bullet id's text replaced,
// preserving every other record's order and identity: a bullet's identity
// is immutable, rewrites change text only.
func (s *Store) UpdateBullet(slug, id, newText string) error {
	path := s.contentPath(slug)
	lines, err := readRawLines(path)
	if err != nil {
		return err
	}

	found := false
	for _, line := range lines {
		var probe map[string]json.RawMessage
		if err := json.Unmarshal(line, &probe); err != nil {
			continue
		}
		if _, isHeader := probe["slug"]; isHeader {
			continue
		}
		if _, isTombstone := probe["deleted"]; isTombstone {
			continue
		}
		var b contentBullet
		if err := json.Unmarshal(line, &b); err != nil || b.ID != id {
			continue
		}
		found = true
	}
	if !found {
		return kgerrors.Wrap(kgerrors.NotFound, "bullet %s in node %s", id, slug)
	}

	return jsonl.Rewrite(path, func(w *bufio.Writer) error {
		for _, line := range lines {
			var probe map[string]json.RawMessage
			if err := json.Unmarshal(line, &probe); err == nil {
				if _, isBullet := probe["text"]; isBullet {
					var b contentBullet
					if err := json.Unmarshal(line, &b); err == nil && b.ID == id {
						b.Text = newText
						if err := jsonl.WriteRecord(w, b); err != nil {
							return err
						}
						continue
					}
				}
			}
			if _, err := w.Write(line); err != nil {
				return err
			}
			if err := w.WriteByte('\n'); err != nil {
				return err
			}
		}
		return nil
	})
}

// DeleteBullet appends a tombstone marking id deleted.
func (s *Store) DeleteBullet(slug, id string) error {
	return jsonl.Append(s.contentPath(slug), tombstone{ID: id, Deleted: true})
}

// Vote appends a meta record with the chosen counter incremented. polarity
// must be "useful" or "harmful".
func (s *Store) Vote(slug, id, polarity string) error {
	if polarity != "useful" && polarity != "harmful" {
		return kgerrors.Wrap(kgerrors.Invalid, "polarity %q", polarity)
	}
	current := s.currentVotes(slug, id)
	switch polarity {
	case "useful":
		current.Useful++
	case "harmful":
		current.Harmful++
	}
	current.ID = id
	current.UpdatedAt = time.Now().UTC()
	return jsonl.Append(s.metaPath(slug), current)
}

// RecordUse appends a meta record with `used` incremented.
func (s *Store) RecordUse(slug, id string) error {
	current := s.currentVotes(slug, id)
	current.Used++
	current.ID = id
	current.UpdatedAt = time.Now().UTC()
	return jsonl.Append(s.metaPath(slug), current)
}

func (s *Store) currentVotes(slug, id string) metaRecord {
	meta, err := parseMeta(s.metaPath(slug))
	if err != nil {
		return metaRecord{}
	}
	return meta.votes[id]
}

// UpdateNodeBudget appends a meta record adding chars to token_budget,
// carrying the previous last_reviewed value forward unchanged.
func (s *Store) UpdateNodeBudget(slug string, chars int) error {
	meta, err := parseMeta(s.metaPath(slug))
	if err != nil {
		return err
	}
	rec := metaRecord{
		TokenBudget:  meta.tokenBudget + chars,
		LastReviewed: meta.lastReviewed,
		UpdatedAt:    time.Now().UTC(),
	}
	return jsonl.Append(s.metaPath(slug), rec)
}

// ClearNodeBudget appends a meta record setting token_budget=0 and
// last_reviewed=now.
func (s *Store) ClearNodeBudget(slug string) error {
	now := time.Now().UTC()
	rec := metaRecord{
		TokenBudget:  0,
		LastReviewed: &now,
		UpdatedAt:    now,
	}
	return jsonl.Append(s.metaPath(slug), rec)
}

// GenerateBulletID returns a new "b-" + 8 hex char bullet id, drawn from a
// cryptographic RNG; callers must not rely on any ordering from it.
func GenerateBulletID() string {
	var buf [4]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// crypto/rand failing is a fatal environment problem; fall back to
		// a time-seeded id rather than panicking a live writer.
		now := time.Now().UnixNano()
		return fmt.Sprintf("b-%08x", uint32(now))
	}
	return "b-" + hex.EncodeToString(buf[:])
}
