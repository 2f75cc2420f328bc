// File path: internal/reconcile/reconcile.go
//
// Generation output is unreliable about file identity: models routinely
// propose a "new" file that is really a renamed or differently cased
// duplicate of an existing one. Reconcile corrects the proposed change set
// against the prior snapshot before anything is persisted.
package reconcile

import (
	"fmt"
	"sort"

	"github.com/jmcasey/codeloom/internal/classifier"
	"github.com/jmcasey/codeloom/internal/common/telemetry"
)

// Reconcile is a pure function over the proposed change sets. Inputs are
// never mutated; deterministic output ordering makes repeated runs on the
// same input identical.
func Reconcile(in Input) Result {
	out := Result{
		Modified: make(map[string]string, len(in.Modified)+len(in.New)),
		New:      make(map[string]string),
	}
	for path, content := range in.Modified {
		out.Modified[path] = content
	}

	deleted := make(map[string]struct{}, len(in.Deleted))
	for _, path := range in.Deleted {
		deleted[path] = struct{}{}
	}

	index := aliasIndex(in.Previous)
	redirects := 0
	for _, proposed := range sortedKeys(in.New) {
		content := in.New[proposed]

		// A "new" file whose path already exists is just a modification.
		if _, exists := in.Previous[proposed]; exists {
			out.Modified[proposed] = content
			continue
		}

		// Alias redirect: write the content to the established path and
		// schedule the duplicate path for cleanup. Multiple proposals that
		// normalize to one target all redirect there; later writes win.
		if actual, ok := index[NormalizePath(proposed)]; ok && actual != proposed {
			out.Modified[actual] = content
			deleted[proposed] = struct{}{}
			redirects++
			out.Advisories = append(out.Advisories,
				fmt.Sprintf("alias: %s redirected to existing %s", proposed, actual))
			continue
		}

		out.New[proposed] = content
	}

	demotions := 0
	if in.Mode == ModeStrict && len(out.New) > 0 && !classifier.MentionsFileCreation(in.Prompt) {
		for _, path := range sortedKeys(out.New) {
			out.Modified[path] = out.New[path]
			demotions++
		}
		out.Advisories = append(out.Advisories,
			fmt.Sprintf("strict: demoted %d unsolicited new file(s) to modifications", demotions))
		out.New = map[string]string{}
	}

	// A path cannot be both deleted and written in the same change set.
	for path := range deleted {
		if _, ok := out.Modified[path]; ok {
			delete(deleted, path)
		}
		if _, ok := out.New[path]; ok {
			delete(deleted, path)
		}
	}
	out.Deleted = make([]string, 0, len(deleted))
	for path := range deleted {
		out.Deleted = append(out.Deleted, path)
	}
	sort.Strings(out.Deleted)

	telemetry.RecordReconcile(redirects, demotions)
	return out
}
