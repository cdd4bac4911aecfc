// Package nodestore implements the append-only JSONL node store: the
// source-of-truth filesystem layer holding one node.jsonl (content) and one
// meta.jsonl (votes, usage, budget) per node directory, grounded on the
// teacher's store package for its read/parse helper shapes and on
// internal/jsonl for the append/lock primitives underneath.
package nodestore

import (
	"regexp"
	"time"
)

// slugPattern matches a well-formed slug: lowercase alphanumerics and
// hyphens, first and last character alphanumeric, minimum length 2.
var slugPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*[a-z0-9]$`)

// ValidSlug reports whether s is a well-formed slug.
func ValidSlug(s string) bool {
	return len(s) >= 2 && slugPattern.MatchString(s)
}

// Bullet is one unit of text belonging to a node, with its vote counters
// merged in from the meta stream.
type Bullet struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
	Status    string    `json:"status,omitempty"`
	Deleted   bool      `json:"-"`

	Useful  int `json:"useful"`
	Harmful int `json:"harmful"`
	Used    int `json:"used"`
}

// Node is the unit of knowledge: a slug, its header attributes, and its
// currently-live bullets in write order.
type Node struct {
	Slug      string    `json:"slug"`
	Title     string    `json:"title"`
	Type      string    `json:"type"`
	CreatedAt time.Time `json:"created_at"`

	Bullets      []Bullet   `json:"bullets"`
	TokenBudget  int        `json:"token_budget"`
	LastReviewed *time.Time `json:"last_reviewed,omitempty"`
}

// BulletCount returns the number of live bullets.
func (n *Node) BulletCount() int {
	return len(n.Bullets)
}

// header is the first non-empty record of a content file.
type header struct {
	V         int       `json:"v"`
	Slug      string    `json:"slug"`
	Title     string    `json:"title"`
	Type      string    `json:"type"`
	CreatedAt time.Time `json:"created_at"`
}

// contentBullet is a bullet record as written to node.jsonl. Vote counters
// live only in the meta stream, never here.
type contentBullet struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
	Status    string    `json:"status,omitempty"`
}

// tombstone marks a previously listed bullet deleted.
type tombstone struct {
	ID      string `json:"id"`
	Deleted bool   `json:"deleted"`
}

// metaRecord is one line of meta.jsonl. A record with a non-empty ID is a
// per-bullet vote/usage snapshot; a record with no ID is a node-scalar
// snapshot (token_budget, last_reviewed). Last record of each kind wins.
type metaRecord struct {
	ID        string     `json:"id,omitempty"`
	Useful    int        `json:"useful,omitempty"`
	Harmful   int        `json:"harmful,omitempty"`
	Used      int        `json:"used,omitempty"`
	UpdatedAt time.Time  `json:"updated_at"`

	TokenBudget  int        `json:"token_budget,omitempty"`
	LastReviewed *time.Time `json:"last_reviewed,omitempty"`
}
