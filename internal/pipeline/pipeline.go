// File path: internal/pipeline/pipeline.go
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmcasey/codeloom/internal/classifier"
	"github.com/jmcasey/codeloom/internal/common"
	"github.com/jmcasey/codeloom/internal/common/telemetry"
	ctxbuilder "github.com/jmcasey/codeloom/internal/context"
	"github.com/jmcasey/codeloom/internal/generator"
	"github.com/jmcasey/codeloom/internal/memory"
	"github.com/jmcasey/codeloom/internal/reconcile"
	"github.com/jmcasey/codeloom/internal/sandbox"
	"github.com/jmcasey/codeloom/internal/vector"
	"github.com/jmcasey/codeloom/internal/version"
)

// Pipeline drives one change request through classification, retrieval,
// generation, reconciliation, and commit. Requests for different projects
// run fully in parallel; same-project races surface as version-number
// conflicts from the store rather than being serialized here.
type Pipeline struct {
	classifier   *classifier.Classifier
	builder      ContextBuilder
	generation   Generation
	versions     VersionStore
	conversation Conversation
	target       sandbox.Target
	index        vector.Index
}

// Option customises a Pipeline.
type Option func(*Pipeline)

// WithConversation records iteration turns into the conversation store.
func WithConversation(c Conversation) Option {
	return func(p *Pipeline) { p.conversation = c }
}

// WithSandbox enables best-effort apply to a live execution target.
func WithSandbox(t sandbox.Target) Option {
	return func(p *Pipeline) { p.target = t }
}

// WithIndex enables best-effort semantic indexing of committed snapshots.
func WithIndex(index vector.Index) Option {
	return func(p *Pipeline) { p.index = index }
}

func New(cls *classifier.Classifier, builder ContextBuilder, gen Generation, versions VersionStore, opts ...Option) (*Pipeline, error) {
	if cls == nil || builder == nil || gen == nil || versions == nil {
		return nil, errors.New("pipeline: classifier, builder, generation, and versions required")
	}
	p := &Pipeline{classifier: cls, builder: builder, generation: gen, versions: versions}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// RunIteration executes the full state machine for one request. The result
// always resolves to either a completed version id (or answer) or a typed
// terminal error; apply failures surface as warnings, not errors.
func (p *Pipeline) RunIteration(ctx context.Context, projectID, prompt string, opts Options) (*Result, error) {
	if p == nil {
		return nil, errors.New("pipeline not initialised")
	}
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return nil, &StageError{Stage: StageClassifying, Err: errors.New("project id required")}
	}
	if strings.TrimSpace(prompt) == "" {
		return nil, &StageError{Stage: StageClassifying, Err: errors.New("prompt required")}
	}
	logger := common.Logger()

	// Classifying
	start := time.Now()
	previous, err := p.versions.GetLatestVersion(ctx, projectID)
	if err != nil {
		logger.Warn("pipeline: latest version lookup failed", "project", projectID, "error", err)
		previous = nil
	}
	var existingPaths []string
	var previousFiles version.Snapshot
	parentID := ""
	if previous != nil {
		previousFiles = previous.Files
		parentID = previous.ID
		for path := range previous.Files {
			existingPaths = append(existingPaths, path)
		}
	}
	classification, err := p.classifier.Classify(ctx, prompt, existingPaths)
	if err != nil {
		return nil, p.fail(ctx, "", StageClassifying, err)
	}
	telemetry.RecordPipelineStage(string(StageClassifying), time.Since(start))
	result := &Result{Intent: classification.Intent}

	// ContextBuilding
	start = time.Now()
	rc, err := p.builder.Build(ctx, projectID, prompt, ctxbuilder.Options{
		MessageLimit:   opts.MessageLimit,
		MaxFiles:       opts.MaxFiles,
		IncludeTests:   opts.IncludeTests,
		ForeignProject: opts.ForeignProject,
	})
	if err != nil {
		return nil, p.fail(ctx, "", StageContextBuilding, err)
	}
	telemetry.RecordPipelineStage(string(StageContextBuilding), time.Since(start))

	// Explain-style requests produce an answer, not a version.
	if classification.Intent == classifier.IntentExplain && !classification.NewVersion {
		answer, err := p.generation.AnswerQuestion(ctx, generator.Request{
			Prompt:  prompt,
			Context: rc.Render(),
			Intent:  string(classification.Intent),
			OnDelta: opts.OnDelta,
		})
		if err != nil {
			return nil, p.fail(ctx, "", StageGenerating, err)
		}
		result.Answer = answer.Answer
		result.Description = answer.Description
		p.recordTurn(ctx, projectID, prompt, answer.Answer)
		return result, nil
	}

	// Persisting (record): the version row exists before generation so a
	// failure can be marked on it.
	if err := p.versions.EnsureProject(ctx, projectID, ""); err != nil {
		return nil, p.fail(ctx, "", StagePersisting, err)
	}
	record := &version.Version{
		ProjectID:       projectID,
		ParentVersionID: parentID,
		CommandType:     string(classification.Intent),
		Prompt:          prompt,
		Status:          version.StatusGenerating,
	}
	if err := p.versions.CreateVersion(ctx, record); err != nil {
		return nil, p.fail(ctx, "", StagePersisting, err)
	}
	result.VersionID = record.ID
	result.VersionNumber = record.VersionNumber

	// Generating
	start = time.Now()
	changes, err := p.generation.GenerateChanges(ctx, generator.Request{
		Prompt:  prompt,
		Context: rc.Render(),
		Intent:  string(classification.Intent),
		OnDelta: opts.OnDelta,
	})
	if err != nil {
		return nil, p.fail(ctx, record.ID, StageGenerating, err)
	}
	telemetry.RecordPipelineStage(string(StageGenerating), time.Since(start))

	// Reconciling
	start = time.Now()
	mode := reconcile.ModeDefault
	if opts.ForeignProject {
		mode = reconcile.ModeStrict
	}
	reconciled := reconcile.Reconcile(reconcile.Input{
		Modified: changes.ModifiedFiles,
		New:      changes.NewFiles,
		Deleted:  changes.DeletedFiles,
		Previous: previousFiles,
		Prompt:   prompt,
		Mode:     mode,
	})
	result.ModifiedFiles = reconciled.Modified
	result.NewFiles = reconciled.New
	result.DeletedFiles = reconciled.Deleted
	result.Description = changes.Description
	result.Warnings = append(result.Warnings, reconciled.Advisories...)
	telemetry.RecordPipelineStage(string(StageReconciling), time.Since(start))

	// Persisting (commit)
	start = time.Now()
	next := reconciled.NextSnapshot(previousFiles)
	status := version.StatusComplete
	desc := changes.Description
	if _, err := p.versions.UpdateVersion(ctx, record.ID, version.Update{
		Files:       version.Snapshot(next),
		Status:      &status,
		Description: &desc,
	}); err != nil {
		return nil, p.fail(ctx, record.ID, StagePersisting, err)
	}
	telemetry.RecordPipelineStage(string(StagePersisting), time.Since(start))

	// Semantic indexing of the changed files is best-effort: a missing or
	// unreachable index never affects the committed version.
	p.indexChanges(ctx, projectID, record.ID, reconciled)

	// Applying: best-effort, failure is a warning.
	if opts.Apply && p.target != nil {
		start = time.Now()
		if err := p.applyToTarget(ctx, projectID, reconciled); err != nil {
			logger.Warn("pipeline: sandbox apply failed", "project", projectID, "version", record.ID, "error", err)
			result.Warnings = append(result.Warnings, fmt.Sprintf("apply: %v", err))
		}
		telemetry.RecordPipelineStage(string(StageApplying), time.Since(start))
	}

	p.recordTurn(ctx, projectID, prompt, changes.Description)
	logger.Info("pipeline: iteration complete",
		"project", projectID,
		"version", record.ID,
		"number", record.VersionNumber,
		"modified", len(reconciled.Modified),
		"new", len(reconciled.New),
		"deleted", len(reconciled.Deleted),
		"warnings", len(result.Warnings))
	return result, nil
}

func (p *Pipeline) indexChanges(ctx context.Context, projectID, versionID string, reconciled reconcile.Result) {
	if p.index == nil || !p.index.Available() {
		return
	}
	docs := make([]vector.FileDoc, 0, len(reconciled.Modified)+len(reconciled.New))
	for path, content := range reconciled.Modified {
		docs = append(docs, vector.FileDoc{Path: path, Content: content, FileType: fileType(path)})
	}
	for path, content := range reconciled.New {
		docs = append(docs, vector.FileDoc{Path: path, Content: content, FileType: fileType(path)})
	}
	if len(docs) == 0 {
		return
	}
	if err := p.index.UpsertFiles(ctx, projectID, versionID, docs); err != nil {
		common.Logger().Warn("pipeline: semantic indexing failed", "project", projectID, "version", versionID, "error", err)
	}
}

func fileType(path string) string {
	if idx := strings.LastIndex(path, "."); idx >= 0 && idx < len(path)-1 {
		return path[idx+1:]
	}
	return ""
}

func (p *Pipeline) applyToTarget(ctx context.Context, projectID string, reconciled reconcile.Result) error {
	files := make(map[string]string, len(reconciled.Modified)+len(reconciled.New))
	for path, content := range reconciled.Modified {
		files[path] = content
	}
	for path, content := range reconciled.New {
		files[path] = content
	}
	if err := p.target.Apply(ctx, projectID, files, reconciled.Deleted); err != nil {
		return err
	}
	return p.target.Restart(ctx, projectID)
}

// fail marks the version record failed when one exists and wraps the error
// with its stage.
func (p *Pipeline) fail(ctx context.Context, versionID string, stage Stage, err error) error {
	telemetry.RecordPipelineFailure(string(stage))
	if versionID != "" {
		status := version.StatusFailed
		if _, markErr := p.versions.UpdateVersion(ctx, versionID, version.Update{Status: &status}); markErr != nil {
			common.Logger().Error("pipeline: failed to mark version failed", "version", versionID, "error", markErr)
		}
	}
	return &StageError{Stage: stage, Err: err}
}

func (p *Pipeline) recordTurn(ctx context.Context, projectID, prompt, response string) {
	if p.conversation == nil {
		return
	}
	messages := []memory.Message{{Role: "user", Content: prompt}}
	if strings.TrimSpace(response) != "" {
		messages = append(messages, memory.Message{Role: "assistant", Content: response})
	}
	if err := p.conversation.AppendMessages(ctx, projectID, messages); err != nil {
		common.Logger().Warn("pipeline: conversation append failed", "project", projectID, "error", err)
	}
}
