package index

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// FTSHit is one row of a lexical search result.
type FTSHit struct {
	Slug     string
	BulletID string
	Text     string
	RawScore float64
}

// SearchFTS runs query against bullets_fts, ranked ascending by SQLite's
// bm25 score (more negative is a better match).
func (idx *Index) SearchFTS(query string, limit int) ([]FTSHit, error) {
	rows, err := idx.db.Query(`
		SELECT node_slug, bullet_id, text, bm25(bullets_fts) AS score
		FROM bullets_fts
		WHERE bullets_fts MATCH ?
		ORDER BY score ASC
		LIMIT ?`, query, limit)
	if err != nil {
		// A malformed FTS query string surfaces from the engine as an
		// error; preserve pass-through rather than sanitizing user input, so
		// callers see empty results rather than a crash.
		return nil, nil
	}
	defer rows.Close()

	var hits []FTSHit
	for rows.Next() {
		var h FTSHit
		if err := rows.Scan(&h.Slug, &h.BulletID, &h.Text, &h.RawScore); err != nil {
			return nil, fmt.Errorf("index: scan fts row: %w", err)
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// GetBacklinks returns the slugs that reference slug.
func (idx *Index) GetBacklinks(slug string) ([]string, error) {
	rows, err := idx.db.Query(`SELECT from_slug FROM backlinks WHERE to_slug = ? ORDER BY from_slug`, slug)
	if err != nil {
		return nil, wrapSchemaErr(err, "query backlinks")
	}
	defer rows.Close()

	var froms []string
	for rows.Next() {
		var from string
		if err := rows.Scan(&from); err != nil {
			return nil, fmt.Errorf("index: scan backlink row: %w", err)
		}
		froms = append(froms, from)
	}
	return froms, rows.Err()
}

// UpsertEmbedding stores a node's embedding vector and producing model,
// replacing any prior vector (stale once the producing model changes).
func (idx *Index) UpsertEmbedding(slug string, vector []byte, model string) error {
	_, err := idx.db.Exec(`
		INSERT INTO embeddings (node_slug, vector, model, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(node_slug) DO UPDATE SET vector = excluded.vector, model = excluded.model, updated_at = excluded.updated_at`,
		slug, vector, model, time.Now().UTC())
	if err != nil {
		return wrapSchemaErr(err, "upsert embedding")
	}
	return nil
}

// EmbeddingRow is one (slug, vector, model) tuple from the embeddings table.
type EmbeddingRow struct {
	Slug   string
	Vector []byte
	Model  string
}

// AllEmbeddings returns every stored embedding, in slug order. Used by
// VectorService to bootstrap its in-memory matrix on startup.
func (idx *Index) AllEmbeddings() ([]EmbeddingRow, error) {
	rows, err := idx.db.Query(`SELECT node_slug, vector, model FROM embeddings ORDER BY node_slug`)
	if err != nil {
		return nil, wrapSchemaErr(err, "query embeddings")
	}
	defer rows.Close()

	var out []EmbeddingRow
	for rows.Next() {
		var r EmbeddingRow
		if err := rows.Scan(&r.Slug, &r.Vector, &r.Model); err != nil {
			return nil, fmt.Errorf("index: scan embedding row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetEmbedding returns a single node's stored embedding vector, or
// (nil, false) if the node has none, used by the Calibrator to find a
// vector-search query for a sampled bullet's node.
func (idx *Index) GetEmbedding(slug string) ([]byte, bool, error) {
	var vector []byte
	err := idx.db.QueryRow(`SELECT vector FROM embeddings WHERE node_slug = ?`, slug).Scan(&vector)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, wrapSchemaErr(err, "get embedding")
	}
	return vector, true, nil
}

// BulletSample is one randomly sampled bullet, used by the Calibrator.
type BulletSample struct {
	BulletID string
	NodeSlug string
	Text     string
}

// SampleBullets returns up to n bullets chosen uniformly at random.
func (idx *Index) SampleBullets(n int) ([]BulletSample, error) {
	rows, err := idx.db.Query(`SELECT id, node_slug, text FROM bullets ORDER BY RANDOM() LIMIT ?`, n)
	if err != nil {
		return nil, wrapSchemaErr(err, "sample bullets")
	}
	defer rows.Close()

	var out []BulletSample
	for rows.Next() {
		var s BulletSample
		if err := rows.Scan(&s.BulletID, &s.NodeSlug, &s.Text); err != nil {
			return nil, fmt.Errorf("index: scan bullet sample: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// NodeRow is a lightweight projection of the nodes table, used by
// review listing (NodesAbove).
type NodeRow struct {
	Slug         string
	Title        string
	Type         string
	BulletCount  int
	TokenBudget  int
	LastReviewed *time.Time
}

// NodesAbove returns nodes whose token_budget is >= threshold, ordered by
// token_budget descending, for the review() tool surface.
func (idx *Index) NodesAbove(threshold, limit int) ([]NodeRow, error) {
	rows, err := idx.db.Query(`
		SELECT slug, title, type, bullet_count, token_budget, last_reviewed
		FROM nodes
		WHERE token_budget >= ?
		ORDER BY token_budget DESC
		LIMIT ?`, threshold, limit)
	if err != nil {
		return nil, wrapSchemaErr(err, "query nodes above threshold")
	}
	defer rows.Close()

	var out []NodeRow
	for rows.Next() {
		var r NodeRow
		var lastReviewed *time.Time
		if err := rows.Scan(&r.Slug, &r.Title, &r.Type, &r.BulletCount, &r.TokenBudget, &lastReviewed); err != nil {
			return nil, fmt.Errorf("index: scan node row: %w", err)
		}
		r.LastReviewed = lastReviewed
		out = append(out, r)
	}
	return out, rows.Err()
}

// IndexedSlugs returns every slug with a row in the nodes table, sorted
// ascending, used by the doctor diagnostic to detect drift against the
// NodeStore's own file listing.
func (idx *Index) IndexedSlugs() ([]string, error) {
	rows, err := idx.db.Query(`SELECT slug FROM nodes ORDER BY slug`)
	if err != nil {
		return nil, wrapSchemaErr(err, "query indexed slugs")
	}
	defer rows.Close()

	var slugs []string
	for rows.Next() {
		var slug string
		if err := rows.Scan(&slug); err != nil {
			return nil, fmt.Errorf("index: scan slug row: %w", err)
		}
		slugs = append(slugs, slug)
	}
	return slugs, rows.Err()
}

// BulletCount returns the total number of bullets currently indexed, used
// by the Calibrator to detect drift.
func (idx *Index) BulletCount() (int, error) {
	var n int
	err := idx.db.QueryRow(`SELECT COUNT(*) FROM bullets`).Scan(&n)
	if err != nil {
		return 0, wrapSchemaErr(err, "count bullets")
	}
	return n, nil
}
