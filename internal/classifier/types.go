// File path: internal/classifier/types.go
package classifier

import "strings"

// Intent is the classified purpose of a change request.
type Intent string

const (
	IntentCreate   Intent = "create"
	IntentModify   Intent = "modify"
	IntentDelete   Intent = "delete"
	IntentRefactor Intent = "refactor"
	IntentScaffold Intent = "scaffold"
	IntentExplain  Intent = "explain"
	IntentUnknown  Intent = "unknown"
)

// Valid reports whether the intent is part of the closed set.
func (i Intent) Valid() bool {
	switch i {
	case IntentCreate, IntentModify, IntentDelete, IntentRefactor, IntentScaffold, IntentExplain, IntentUnknown:
		return true
	}
	return false
}

// Result is the outcome of classifying one prompt. Confidence is a 0-100
// score; Entities holds file names and quoted fragments lifted from the
// prompt text.
type Result struct {
	Intent     Intent   `json:"intent"`
	Confidence int      `json:"confidence"`
	NewVersion bool     `json:"new_version"`
	Entities   []string `json:"entities,omitempty"`
	Reasoning  string   `json:"reasoning,omitempty"`
}

// Clone returns an independent copy so cached results stay immutable.
func (r *Result) Clone() *Result {
	if r == nil {
		return nil
	}
	out := *r
	if r.Entities != nil {
		out.Entities = append([]string(nil), r.Entities...)
	}
	return &out
}

// NormalizePrompt produces the cache key for a prompt.
func NormalizePrompt(prompt string) string {
	return strings.ToLower(strings.TrimSpace(prompt))
}
