package contextbuild

import (
	"fmt"
	"strings"
)

// budgetDisplayThreshold is the minimum token_budget worth rendering
// inline in the compact header (spec §4.G: "↑budget_if_≥100").
const budgetDisplayThreshold = 100

// RenderNode renders one ContextNode in the compact format:
//
//	[slug] title  ●N_bullets  ↑budget_if_≥100
//	text1 ←id1 | text2 ←id2
//	⚠ NEEDS REVIEW: ...         (only if threshold exceeded)
//	↳ Explore: [a], [b]
func RenderNode(cn ContextNode) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s  ●%d", cn.Slug, cn.Title, cn.TotalBullets)
	if cn.TokenBudget >= budgetDisplayThreshold {
		fmt.Fprintf(&b, "  ↑%d", cn.TokenBudget)
	}

	if len(cn.Bullets) > 0 {
		parts := make([]string, len(cn.Bullets))
		for i, bl := range cn.Bullets {
			parts[i] = fmt.Sprintf("%s ←%s", bl.Text, bl.ID)
		}
		b.WriteString("\n")
		b.WriteString(strings.Join(parts, " | "))
	}

	if cn.ReviewHint != "" {
		fmt.Fprintf(&b, "\n⚠ NEEDS REVIEW: %s", cn.ReviewHint)
	}

	if len(cn.Explore) > 0 {
		refs := make([]string, len(cn.Explore))
		for i, s := range cn.Explore {
			refs[i] = "[" + s + "]"
		}
		fmt.Fprintf(&b, "\n↳ Explore: %s", strings.Join(refs, ", "))
	}
	return b.String()
}

// RenderPacked joins every node's compact rendering, separated by a
// blank line, or "(no results)" if pc has no nodes.
func RenderPacked(pc *PackedContext) string {
	if pc == nil || len(pc.Nodes) == 0 {
		return "(no results)"
	}
	parts := make([]string, len(pc.Nodes))
	for i, n := range pc.Nodes {
		parts[i] = RenderNode(n)
	}
	return strings.Join(parts, "\n\n")
}
