// File path: internal/generator/types.go
package generator

// ChangeSet is the structured output of a generation call: proposed file
// changes plus a human-readable description. Paths are project-relative and
// contents are complete file bodies, never patches.
type ChangeSet struct {
	ModifiedFiles map[string]string `json:"modifiedFiles"`
	NewFiles      map[string]string `json:"newFiles"`
	DeletedFiles  []string          `json:"deletedFiles"`
	Changes       []ChangeNote      `json:"changes,omitempty"`
	Description   string            `json:"description,omitempty"`
}

// ChangeNote is one per-file explanation attached to a change set.
type ChangeNote struct {
	FilePath string `json:"filePath"`
	Summary  string `json:"summary"`
}

// Empty reports whether the change set proposes nothing at all.
func (c *ChangeSet) Empty() bool {
	if c == nil {
		return true
	}
	return len(c.ModifiedFiles) == 0 && len(c.NewFiles) == 0 && len(c.DeletedFiles) == 0
}

// Answer is the answer-only response for explain-style requests that do not
// touch any files.
type Answer struct {
	Answer      string `json:"answer"`
	Description string `json:"description,omitempty"`
}

// Request carries one generation call. Context is the rendered retrieval
// context; OnDelta, when set, receives streamed output fragments.
type Request struct {
	Prompt  string
	Context string
	Intent  string
	OnDelta func(string)
}
