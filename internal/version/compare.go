// File path: internal/version/compare.go
package version

// CompareSnapshots classifies every path present in either snapshot relative
// to the base. Content equality decides modified versus unchanged.
func CompareSnapshots(base, next Snapshot) Diff {
	diff := Diff{}
	for path, content := range next {
		prev, ok := base[path]
		switch {
		case !ok:
			diff[path] = ChangeAdded
		case prev != content:
			diff[path] = ChangeModified
		default:
			diff[path] = ChangeUnchanged
		}
	}
	for path := range base {
		if _, ok := next[path]; !ok {
			diff[path] = ChangeDeleted
		}
	}
	return diff
}

// CompareVersions diffs the snapshots of two versions.
func CompareVersions(base, next *Version) Diff {
	var baseFiles, nextFiles Snapshot
	if base != nil {
		baseFiles = base.Files
	}
	if next != nil {
		nextFiles = next.Files
	}
	return CompareSnapshots(baseFiles, nextFiles)
}
