// File path: internal/pipeline/types.go
package pipeline

import (
	"context"
	"fmt"

	"github.com/jmcasey/codeloom/internal/classifier"
	ctxbuilder "github.com/jmcasey/codeloom/internal/context"
	"github.com/jmcasey/codeloom/internal/generator"
	"github.com/jmcasey/codeloom/internal/memory"
	"github.com/jmcasey/codeloom/internal/version"
)

// Stage names the steps of one iteration.
type Stage string

const (
	StageClassifying     Stage = "classifying"
	StageContextBuilding Stage = "context_building"
	StageGenerating      Stage = "generating"
	StageReconciling     Stage = "reconciling"
	StagePersisting      Stage = "persisting"
	StageApplying        Stage = "applying"
	StageDone            Stage = "done"
	StageFailed          Stage = "failed"
)

// StageError wraps a terminal failure with the stage it occurred in.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Options tune one iteration.
type Options struct {
	MessageLimit   int
	MaxFiles       int
	IncludeTests   bool
	ForeignProject bool

	// Apply pushes the reconciled files to the execution sandbox after a
	// successful commit. Its failure is a warning, never a pipeline error.
	Apply bool

	// OnDelta receives streamed generation output when set.
	OnDelta func(string)
}

// Result is the caller-facing outcome of one iteration.
type Result struct {
	VersionID     string            `json:"version_id,omitempty"`
	VersionNumber int               `json:"version_number,omitempty"`
	Intent        classifier.Intent `json:"intent"`
	ModifiedFiles map[string]string `json:"modified_files,omitempty"`
	NewFiles      map[string]string `json:"new_files,omitempty"`
	DeletedFiles  []string          `json:"deleted_files,omitempty"`
	Description   string            `json:"description,omitempty"`
	Answer        string            `json:"answer,omitempty"`
	Warnings      []string          `json:"warnings,omitempty"`
}

// ContextBuilder assembles the bounded retrieval context.
type ContextBuilder interface {
	Build(ctx context.Context, projectID, prompt string, opts ctxbuilder.Options) (*ctxbuilder.RetrievalContext, error)
}

// Generation is the model-backed collaborator.
type Generation interface {
	GenerateChanges(ctx context.Context, req generator.Request) (*generator.ChangeSet, error)
	AnswerQuestion(ctx context.Context, req generator.Request) (*generator.Answer, error)
}

// VersionStore is the subset of the version catalog the pipeline uses.
type VersionStore interface {
	EnsureProject(ctx context.Context, projectID, name string) error
	CreateVersion(ctx context.Context, v *version.Version) error
	GetLatestVersion(ctx context.Context, projectID string) (*version.Version, error)
	UpdateVersion(ctx context.Context, id string, update version.Update) (*version.Version, error)
}

// Conversation records iteration turns for future context builds.
type Conversation interface {
	AppendMessages(ctx context.Context, projectID string, messages []memory.Message) error
}
