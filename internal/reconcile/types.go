// File path: internal/reconcile/types.go
package reconcile

// Mode selects how aggressively unexplained new files are treated.
type Mode string

const (
	// ModeDefault trusts the proposed change set after alias resolution.
	ModeDefault Mode = "default"
	// ModeStrict applies to foreign or imported codebases: new files that
	// survive alias resolution without an explicit creation request are
	// demoted to modifications of nothing, i.e. dropped into the modified
	// set, to avoid littering an unfamiliar tree.
	ModeStrict Mode = "strict"
)

// Input is the proposed change set plus the snapshot it is judged against.
type Input struct {
	Modified map[string]string
	New      map[string]string
	Deleted  []string

	// Previous is the latest complete snapshot; never mutated.
	Previous map[string]string

	// Prompt is the originating request, consulted by strict mode for
	// explicit file-creation phrasing.
	Prompt string

	Mode Mode
}

// Result is the corrected change set. The three sets are disjoint and
// previous - deleted + modified + new is the next snapshot.
type Result struct {
	Modified map[string]string
	New      map[string]string
	Deleted  []string

	// Advisories records alias redirects and strict-mode demotions so
	// callers can surface them as warnings rather than silent drops.
	Advisories []string
}

// NextSnapshot materializes the snapshot that results from applying the
// reconciled change set to the previous files.
func (r Result) NextSnapshot(previous map[string]string) map[string]string {
	next := make(map[string]string, len(previous)+len(r.New))
	for path, content := range previous {
		next[path] = content
	}
	for _, path := range r.Deleted {
		delete(next, path)
	}
	for path, content := range r.Modified {
		next[path] = content
	}
	for path, content := range r.New {
		next[path] = content
	}
	return next
}
