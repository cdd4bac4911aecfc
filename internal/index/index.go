// Package index implements the Indexer: a relational mirror of NodeStore's
// content, derived and fully reconstructible, using the same
// store.Open/migrate pattern (modernc.org/sqlite, WAL journal mode,
// foreign keys on, embed.FS migrations applied inside a schema_migrations
// ledger).
package index

import (
	"database/sql"
	"embed"
	"fmt"
	"sort"
	"strings"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Index is the derived relational store (graph.db).
type Index struct {
	db       *sql.DB
	embedder DocumentEmbedder
	vecSink  VectorSink
}

// DocumentEmbedder computes a node's document embedding for storage, the
// subset of the Embedder surface ReindexNode needs; satisfied by
// *embedding.Embedder and *embedding.CachedEmbedder.
type DocumentEmbedder interface {
	EmbedDocument(text, context string) ([]float32, error)
	Name() string
}

// VectorSink receives a freshly computed node embedding so the
// VectorService's in-memory matrix stays consistent with what ReindexNode
// just wrote to the embeddings table, satisfied by vectorservice.Matrix.
type VectorSink interface {
	Add(id string, vector []float32)
}

// SetEmbedder wires an embedding producer (and, optionally, an in-process
// vector sink) into ReindexNode. Both are optional: a nil embedder leaves
// ReindexNode's embedding step a no-op, the state every caller that never
// calls SetEmbedder already runs in.
func (idx *Index) SetEmbedder(embedder DocumentEmbedder, sink VectorSink) {
	idx.embedder = embedder
	idx.vecSink = sink
}

// Open opens (creating if needed) the SQLite database at dsn and applies
// any pending migrations.
func Open(dsn string) (*Index, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("index: open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("index: set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("index: enable foreign keys: %w", err)
	}
	// PRAGMA foreign_keys is per-connection; pin the pool to one connection
	// so cascading deletes and WAL checkpoints stay consistent.
	db.SetMaxOpenConns(1)

	idx := &Index{db: db}
	if err := idx.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("index: migrate: %w", err)
	}
	return idx, nil
}

// Close closes the underlying database handle.
func (idx *Index) Close() error {
	return idx.db.Close()
}

// DB exposes the raw connection for callers (VectorService bootstrap,
// Calibrator sampling) that need direct queries.
func (idx *Index) DB() *sql.DB {
	return idx.db
}

// EnsureSchema is the explicit idempotent schema-creation entry point. It
// re-runs migrate(), which applies only migrations not yet recorded in
// schema_migrations; an already-applied migration's statements are not
// re-executed, so a table dropped after migration is not recreated.
func (idx *Index) EnsureSchema() error {
	return idx.migrate()
}

func (idx *Index) migrate() error {
	if _, err := idx.db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version TEXT PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	for _, f := range files {
		var applied int
		err := idx.db.QueryRow("SELECT COUNT(*) FROM schema_migrations WHERE version = ?", f).Scan(&applied)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", f, err)
		}
		if applied > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + f)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", f, err)
		}

		tx, err := idx.db.Begin()
		if err != nil {
			return fmt.Errorf("begin tx for %s: %w", f, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("exec migration %s: %w", f, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", f); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %s: %w", f, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", f, err)
		}
	}
	return nil
}
