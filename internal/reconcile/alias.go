// File path: internal/reconcile/alias.go
package reconcile

import (
	"path"
	"sort"
	"strings"
)

// NormalizePath produces the alias key for a file path: the whole path is
// lowercased, and separator characters are stripped from the basename only
// so directory structure and extension still count. "components/foo-bar.tsx"
// and "components/FooBar.tsx" share a key; "components/foo/bar.tsx" does not.
func NormalizePath(p string) string {
	p = strings.ToLower(strings.TrimSpace(p))
	dir, base := path.Split(p)
	ext := path.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	stem = strings.ReplaceAll(stem, "-", "")
	stem = strings.ReplaceAll(stem, "_", "")
	return dir + stem + ext
}

// aliasIndex maps normalized forms to the actual paths of a snapshot.
// Collisions inside the snapshot itself keep the first path seen in sorted
// order so the index is deterministic.
func aliasIndex(previous map[string]string) map[string]string {
	index := make(map[string]string, len(previous))
	for _, actual := range sortedKeys(previous) {
		key := NormalizePath(actual)
		if _, ok := index[key]; !ok {
			index[key] = actual
		}
	}
	return index
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
