package index

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/ehrlich-b/kgraph/internal/embedding"
	"github.com/ehrlich-b/kgraph/internal/kgerrors"
	"github.com/ehrlich-b/kgraph/internal/nodestore"
)

// ReindexNode refreshes slug's derived rows from a single NodeStore read,
// inside one transaction: delete the node row (cascades bullets, FTS rows,
// and any embedding via trigger/foreign key), delete its outgoing
// backlinks, then, if the content file still exists, reinsert the node,
// its live bullets, one backlink per well-formed cross-reference, and
// (when an embedder is wired via SetEmbedder) its document embedding.
func (idx *Index) ReindexNode(store *nodestore.Store, slug string) error {
	node, err := store.Get(slug)
	if err != nil {
		return err
	}

	tx, err := idx.db.Begin()
	if err != nil {
		return fmt.Errorf("index: begin reindex tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM nodes WHERE slug = ?`, slug); err != nil {
		return wrapSchemaErr(err, "delete node row")
	}
	if _, err := tx.Exec(`DELETE FROM backlinks WHERE from_slug = ?`, slug); err != nil {
		return wrapSchemaErr(err, "delete outgoing backlinks")
	}

	if node != nil {
		var lastReviewed any
		if node.LastReviewed != nil {
			lastReviewed = *node.LastReviewed
		}
		_, err := tx.Exec(`INSERT INTO nodes (slug, title, type, created_at, bullet_count, token_budget, last_reviewed)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			node.Slug, node.Title, node.Type, node.CreatedAt, len(node.Bullets), node.TokenBudget, lastReviewed)
		if err != nil {
			return wrapSchemaErr(err, "insert node row")
		}

		seenBacklinks := map[string]bool{}
		for _, b := range node.Bullets {
			_, err := tx.Exec(`INSERT INTO bullets (id, node_slug, type, text, status, created_at, useful, harmful, used)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				b.ID, node.Slug, b.Type, b.Text, nullIfEmpty(b.Status), b.CreatedAt, b.Useful, b.Harmful, b.Used)
			if err != nil {
				return wrapSchemaErr(err, "insert bullet row")
			}
			for _, target := range nodestore.ExtractReferences(b.Text, node.Slug) {
				key := node.Slug + "\x00" + target
				if seenBacklinks[key] {
					continue
				}
				seenBacklinks[key] = true
				if _, err := tx.Exec(`INSERT OR IGNORE INTO backlinks (from_slug, to_slug) VALUES (?, ?)`, node.Slug, target); err != nil {
					return wrapSchemaErr(err, "insert backlink row")
				}
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("index: commit reindex tx: %w", err)
	}
	// Count this mutation toward calibration staleness; best-effort.
	_ = idx.IncrementOpsSince()

	if node != nil && idx.embedder != nil {
		if err := idx.embedNode(node); err != nil {
			return err
		}
	}
	return nil
}

// embedNode computes node's document embedding (title followed by every
// live bullet, one per line) and upserts it into both the embeddings
// table and the in-process VectorService sink, the "accept in-process
// updates on every reindex" path. Embedding is best-effort, the same way
// ContextBuilder's own vector retrieval swallows a down provider: any
// EmbedDocument error is swallowed and the reindex still succeeds, with no
// embedding stored for the node. A storage failure after a successful
// embed call still propagates, since that indicates schema trouble
// rather than a flaky provider.
func (idx *Index) embedNode(node *nodestore.Node) error {
	vec, err := idx.embedder.EmbedDocument(documentText(node), "")
	if err != nil {
		return nil
	}
	if err := idx.UpsertEmbedding(node.Slug, embedding.VecAsBytes(vec), idx.embedder.Name()); err != nil {
		return err
	}
	if idx.vecSink != nil {
		idx.vecSink.Add(node.Slug, vec)
	}
	return nil
}

// documentText composes the text embedded for a node: its title, then
// every live bullet's text, one per line.
func documentText(node *nodestore.Node) string {
	var b strings.Builder
	b.WriteString(node.Title)
	for _, bl := range node.Bullets {
		b.WriteByte('\n')
		b.WriteString(bl.Text)
	}
	return b.String()
}

// RebuildAll drops and recreates every derived row by iterating every slug
// NodeStore knows about, returning the number of nodes indexed.
func (idx *Index) RebuildAll(store *nodestore.Store) (int, error) {
	if _, err := idx.db.Exec(`DELETE FROM nodes`); err != nil {
		return 0, wrapSchemaErr(err, "clear nodes")
	}
	if _, err := idx.db.Exec(`DELETE FROM backlinks`); err != nil {
		return 0, wrapSchemaErr(err, "clear backlinks")
	}
	if _, err := idx.db.Exec(`DELETE FROM embeddings`); err != nil {
		return 0, wrapSchemaErr(err, "clear embeddings")
	}

	slugs, err := store.ListSlugs()
	if err != nil {
		return 0, err
	}
	for _, slug := range slugs {
		if err := idx.ReindexNode(store, slug); err != nil {
			return 0, err
		}
	}
	return len(slugs), nil
}

func wrapSchemaErr(err error, op string) error {
	if err == nil {
		return nil
	}
	return kgerrors.Wrap(kgerrors.Schema, "%s: %v", op, err)
}

func nullIfEmpty(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
