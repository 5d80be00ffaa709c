package title

import "strings"

// foldKey normalises a namespace name or alias for case-insensitive,
// underscore/space-folding lookup.
func foldKey(name string) string {
	name = strings.ReplaceAll(name, "_", " ")
	return strings.ToLower(strings.TrimSpace(name))
}
