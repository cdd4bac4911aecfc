package contextbuild

import (
	"fmt"

	"github.com/ehrlich-b/kgraph/internal/nodestore"
)

// maxBacklinkExplore bounds how many backlinks are appended to a node's
// Explore list, on top of any cross-references found in its chosen
// bullets (spec §4.G: "up to four backlinks").
const maxBacklinkExplore = 4

// fallbackPreviewBullets is how many bullets to show for a node that
// matched only via vector search (no bullet-level lexical match).
const fallbackPreviewBullets = 3

// pack visits ranked in order, packing nodes into a character budget.
//
// Truncate-and-retry is applied to every candidate, first or not: gating
// it on "already have one node packed" would let an oversized first
// candidate block every context from ever being non-empty. This keeps
// the "packs at least one node whenever it fits in half its bullets"
// property true regardless of position.
func (b *Builder) pack(rankedNodes []ranked, budget int) *PackedContext {
	out := &PackedContext{}
	for _, r := range rankedNodes {
		if out.TotalChars >= budget {
			break
		}
		node, err := b.store.Get(r.slug)
		if err != nil || node == nil {
			continue
		}

		chosen := b.chooseBullets(node, r.agg)
		cn, size := b.renderCandidate(node, r, chosen)
		if out.TotalChars+size <= budget {
			out.Nodes = append(out.Nodes, cn)
			out.TotalChars += size
			continue
		}

		if len(chosen) > 1 {
			half := (len(chosen) + 1) / 2
			cn, size = b.renderCandidate(node, r, chosen[:half])
			if out.TotalChars+size <= budget {
				out.Nodes = append(out.Nodes, cn)
				out.TotalChars += size
				continue
			}
		}
		// still too big: skip this node entirely
	}
	return out
}

// chooseBullets picks the matched live bullets in live_bullets order; a
// node that matched only via vector search has no bullet-level matches,
// so a short prefix of its live bullets stands in as a preview.
func (b *Builder) chooseBullets(node *nodestore.Node, agg *nodeAgg) []nodestore.Bullet {
	if len(agg.matched) == 0 {
		n := fallbackPreviewBullets
		if n > len(node.Bullets) {
			n = len(node.Bullets)
		}
		return node.Bullets[:n]
	}

	matchedIDs := make(map[string]bool, len(agg.matched))
	for _, m := range agg.matched {
		matchedIDs[m.ID] = true
	}
	var out []nodestore.Bullet
	for _, bl := range node.Bullets {
		if matchedIDs[bl.ID] {
			out = append(out, bl)
		}
	}
	return out
}

func (b *Builder) renderCandidate(node *nodestore.Node, r ranked, chosen []nodestore.Bullet) (ContextNode, int) {
	cn := ContextNode{
		Slug:         node.Slug,
		Title:        node.Title,
		Score:        r.score,
		TotalBullets: node.BulletCount(),
		TokenBudget:  node.TokenBudget,
		Explore:      b.explore(node, chosen),
		ReviewHint:   reviewHint(node, b.cfg.ReviewThreshold),
	}
	cn.Bullets = make([]BulletRef, len(chosen))
	for i, bl := range chosen {
		cn.Bullets[i] = BulletRef{ID: bl.ID, Text: bl.Text}
	}
	return cn, len(RenderNode(cn))
}

// explore collects cross-reference targets from the chosen bullets, then
// appends up to four backlinks not already present.
func (b *Builder) explore(node *nodestore.Node, chosen []nodestore.Bullet) []string {
	seen := map[string]bool{}
	var refs []string
	for _, bl := range chosen {
		for _, target := range nodestore.ExtractReferences(bl.Text, node.Slug) {
			if seen[target] {
				continue
			}
			seen[target] = true
			refs = append(refs, target)
		}
	}

	backlinks, err := b.idx.GetBacklinks(node.Slug)
	if err == nil {
		added := 0
		for _, from := range backlinks {
			if added >= maxBacklinkExplore {
				break
			}
			if seen[from] {
				continue
			}
			seen[from] = true
			refs = append(refs, from)
			added++
		}
	}
	return refs
}

// reviewHint reports a non-empty message when a node's accumulated
// per-bullet credits exceed threshold.
func reviewHint(node *nodestore.Node, threshold int) string {
	if threshold <= 0 || node.BulletCount() == 0 {
		return ""
	}
	perBullet := node.TokenBudget / node.BulletCount()
	if perBullet < threshold {
		return ""
	}
	return fmt.Sprintf("%d characters served per bullet (threshold %d)", perBullet, threshold)
}
