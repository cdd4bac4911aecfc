package nodestore

import "regexp"

// refPattern matches `[slug]` cross-reference tokens inside bullet text.
// The captured slug must independently satisfy ValidSlug.
var refPattern = regexp.MustCompile(`\[([a-z0-9][a-z0-9-]*[a-z0-9])\]`)

// ExtractReferences returns the well-formed, non-self slugs referenced by
// `[slug]` tokens in text, in order of first appearance, deduplicated.
// Used by the Indexer to derive backlink edges.
func ExtractReferences(text, selfSlug string) []string {
	matches := refPattern.FindAllStringSubmatch(text, -1)
	if matches == nil {
		return nil
	}
	seen := map[string]bool{}
	var out []string
	for _, m := range matches {
		slug := m[1]
		if slug == selfSlug || seen[slug] {
			continue
		}
		seen[slug] = true
		out = append(out, slug)
	}
	return out
}
