// File path: internal/context/types.go
package context

import (
	"context"
	"time"

	"github.com/jmcasey/codeloom/internal/memory"
	"github.com/jmcasey/codeloom/internal/vector"
)

// History exposes the conversation slice consumed during context assembly.
type History interface {
	RecentMessages(ctx context.Context, projectID string, limit int) ([]memory.Message, error)
}

// SnapshotSource loads the latest complete snapshot for a project. The
// second return value is the version id the snapshot came from; both are
// empty for a fresh project.
type SnapshotSource interface {
	LatestSnapshot(ctx context.Context, projectID string) (map[string]string, string, error)
}

// RelevantFile is a retrieval hit with its score and provenance.
type RelevantFile struct {
	Path      string  `json:"path"`
	Content   string  `json:"content"`
	Relevance float64 `json:"relevance"`
	Reason    string  `json:"reason"`
}

// ContextFile is an unscored file included for structural reasons.
type ContextFile struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// Stats summarizes one build for logging and API responses.
type Stats struct {
	ConversationCount int           `json:"conversation_count"`
	RelevantCount     int           `json:"relevant_count"`
	DependencyCount   int           `json:"dependency_count"`
	ConfigCount       int           `json:"config_count"`
	PreviousCount     int           `json:"previous_count"`
	EstimatedChars    int           `json:"estimated_chars"`
	SearchLatency     time.Duration `json:"search_latency"`
	TruncatedPools    []string      `json:"truncated_pools,omitempty"`
}

// RetrievalContext is the bounded slice of a project handed to the
// generation collaborator.
type RetrievalContext struct {
	Conversation      []memory.Message `json:"conversation"`
	RelevantFiles     []RelevantFile   `json:"relevant_files"`
	DependencyFiles   []ContextFile    `json:"dependency_files"`
	ConfigFiles       []ContextFile    `json:"config_files"`
	PreviousFiles     map[string]string `json:"-"`
	PreviousVersionID string            `json:"previous_version_id,omitempty"`
	Summary           string            `json:"summary"`
	Stats             Stats             `json:"stats"`
}

// Options control one build call.
type Options struct {
	MessageLimit   int
	MaxFiles       int
	IncludeTests   bool
	ForeignProject bool
}

// Config controls retrieval scoring and the character budget split.
type Config struct {
	TotalBudget int

	ConversationShare float64
	ConfigShare       float64
	RelevanceShare    float64
	DependencyShare   float64

	KeywordRelevance  float64
	ContentRelevance  float64
	SemanticThreshold float32

	// AliasRoot is the directory that the "@/" import alias resolves to.
	AliasRoot string
}

// DefaultConfig returns the baseline budget split: 20% conversation, 10%
// config, 40% relevance-ranked files, 20% dependencies, with the remaining
// 10% left as margin.
func DefaultConfig() Config {
	return Config{
		TotalBudget:       400_000,
		ConversationShare: 0.20,
		ConfigShare:       0.10,
		RelevanceShare:    0.40,
		DependencyShare:   0.20,
		KeywordRelevance:  0.95,
		ContentRelevance:  0.90,
		SemanticThreshold: 0.3,
		AliasRoot:         "src",
	}
}

// Index is the semantic-search capability used for step two of retrieval.
type Index = vector.Index
