// File path: internal/context/deps.go
package context

import (
	"path"
	"regexp"
	"strings"
)

var importPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?m)^\s*import\s+[^'"]*['"]([^'"]+)['"]`),
	regexp.MustCompile(`(?m)^\s*export\s+[^'"]*from\s+['"]([^'"]+)['"]`),
	regexp.MustCompile(`require\(\s*['"]([^'"]+)['"]\s*\)`),
	regexp.MustCompile(`import\(\s*['"]([^'"]+)['"]\s*\)`),
	regexp.MustCompile(`(?m)^\s*@import\s+['"]([^'"]+)['"]`),
}

// extractImports pulls module specifiers out of a file body. Bare package
// names are skipped; only relative and alias specifiers can point at
// project files.
func extractImports(content string) []string {
	seen := make(map[string]struct{})
	imports := []string{}
	for _, re := range importPatterns {
		for _, match := range re.FindAllStringSubmatch(content, -1) {
			spec := match[1]
			if spec == "" {
				continue
			}
			if !strings.HasPrefix(spec, ".") && !strings.HasPrefix(spec, "@/") {
				continue
			}
			if _, dup := seen[spec]; dup {
				continue
			}
			seen[spec] = struct{}{}
			imports = append(imports, spec)
		}
	}
	return imports
}

// resolution suffixes tried in order against the snapshot keys
var importSuffixes = []string{
	"", ".ts", ".tsx", ".js", ".jsx", ".mjs", ".css", ".scss",
	"/index.ts", "/index.tsx", "/index.js", "/index.jsx",
}

// resolveImport maps an import specifier from a file to a concrete snapshot
// path. Relative specifiers walk from the importing file's directory; the
// "@/" alias is rewritten to the configured alias root. Either form then
// runs the same suffix trials.
func resolveImport(fromPath, spec, aliasRoot string, previous map[string]string) (string, bool) {
	var base string
	switch {
	case strings.HasPrefix(spec, "@/"):
		base = path.Join(aliasRoot, strings.TrimPrefix(spec, "@/"))
	case strings.HasPrefix(spec, "."):
		base = path.Join(path.Dir(fromPath), spec)
	default:
		return "", false
	}
	base = path.Clean(base)
	for _, suffix := range importSuffixes {
		candidate := base + suffix
		if _, ok := previous[candidate]; ok {
			return candidate, true
		}
	}
	return "", false
}

// resolveDependencies walks the imports of every selected file against the
// previous snapshot and returns newly resolved paths in deterministic
// order, skipping anything already selected.
func resolveDependencies(selected map[string]struct{}, files []RelevantFile, aliasRoot string, previous map[string]string, extraImports map[string][]string) []ContextFile {
	resolved := []ContextFile{}
	for _, file := range files {
		specs := extractImports(file.Content)
		specs = append(specs, extraImports[file.Path]...)
		for _, spec := range specs {
			target, ok := resolveImport(file.Path, spec, aliasRoot, previous)
			if !ok {
				continue
			}
			if _, dup := selected[target]; dup {
				continue
			}
			selected[target] = struct{}{}
			resolved = append(resolved, ContextFile{Path: target, Content: previous[target]})
		}
	}
	return resolved
}
