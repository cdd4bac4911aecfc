package contextbuild

import "github.com/ehrlich-b/kgraph/internal/logger"

// applySideEffects credits every packed node's token_budget with the
// characters it rendered (spec §4.G step 7). A failure here never fails
// the response; it's logged and otherwise ignored.
func (b *Builder) applySideEffects(pc *PackedContext) {
	for _, n := range pc.Nodes {
		size := len(RenderNode(n))
		if err := b.store.UpdateNodeBudget(n.Slug, size); err != nil {
			logger.Warn("contextbuild: failed to update node budget", "slug", n.Slug, "err", err)
		}
	}
}
