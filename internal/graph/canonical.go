package graph

import "strings"

// CanonicalName normalizes an entity display name for case- and
// whitespace-insensitive deduplication and lookup. Idempotent:
// CanonicalName(CanonicalName(x)) == CanonicalName(x).
func CanonicalName(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

// NormalizeAliases trims aliases, drops empties, and deduplicates by canonical
// form. The display name itself is excluded so an alias never shadows it.
func NormalizeAliases(name string, aliases []string) []string {
	seen := map[string]bool{CanonicalName(name): true}
	out := make([]string, 0, len(aliases))
	for _, a := range aliases {
		a = strings.TrimSpace(a)
		if a == "" {
			continue
		}
		key := CanonicalName(a)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, a)
	}
	return out
}
