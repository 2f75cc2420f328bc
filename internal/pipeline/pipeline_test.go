// File path: internal/pipeline/pipeline_test.go
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/jmcasey/codeloom/internal/classifier"
	ctxbuilder "github.com/jmcasey/codeloom/internal/context"
	"github.com/jmcasey/codeloom/internal/generator"
	"github.com/jmcasey/codeloom/internal/memory"
	"github.com/jmcasey/codeloom/internal/sandbox"
	"github.com/jmcasey/codeloom/internal/vector"
	"github.com/jmcasey/codeloom/internal/version"
)

type fakeVersions struct {
	created  []*version.Version
	byID     map[string]*version.Version
	nextNum  map[string]int
	updateErr error
	createErr error
}

func newFakeVersions() *fakeVersions {
	return &fakeVersions{byID: map[string]*version.Version{}, nextNum: map[string]int{}}
}

func (f *fakeVersions) EnsureProject(ctx context.Context, projectID, name string) error {
	return nil
}

func (f *fakeVersions) CreateVersion(ctx context.Context, v *version.Version) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.nextNum[v.ProjectID]++
	v.ID = fmt.Sprintf("ver-%s-%d", v.ProjectID, f.nextNum[v.ProjectID])
	v.VersionNumber = f.nextNum[v.ProjectID]
	clone := *v
	f.byID[v.ID] = &clone
	f.created = append(f.created, &clone)
	return nil
}

func (f *fakeVersions) GetLatestVersion(ctx context.Context, projectID string) (*version.Version, error) {
	var latest *version.Version
	for _, v := range f.byID {
		if v.ProjectID != projectID || v.Status != version.StatusComplete {
			continue
		}
		if latest == nil || v.VersionNumber > latest.VersionNumber {
			latest = v
		}
	}
	return latest, nil
}

func (f *fakeVersions) UpdateVersion(ctx context.Context, id string, update version.Update) (*version.Version, error) {
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	v, ok := f.byID[id]
	if !ok {
		return nil, version.ErrNotFound
	}
	if update.Files != nil {
		v.Files = update.Files.Clone()
	}
	if update.Status != nil {
		v.Status = *update.Status
	}
	if update.Description != nil {
		v.Description = *update.Description
	}
	return v, nil
}

type fakeBuilder struct {
	err error
}

func (f *fakeBuilder) Build(ctx context.Context, projectID, prompt string, opts ctxbuilder.Options) (*ctxbuilder.RetrievalContext, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &ctxbuilder.RetrievalContext{PreviousFiles: map[string]string{}}, nil
}

type fakeGeneration struct {
	changes *generator.ChangeSet
	answer  *generator.Answer
	err     error
}

func (f *fakeGeneration) GenerateChanges(ctx context.Context, req generator.Request) (*generator.ChangeSet, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.changes, nil
}

func (f *fakeGeneration) AnswerQuestion(ctx context.Context, req generator.Request) (*generator.Answer, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.answer, nil
}

type fakeTarget struct {
	applyErr   error
	applied    map[string]string
	restarted  bool
}

func (f *fakeTarget) Apply(ctx context.Context, projectID string, files map[string]string, deleted []string) error {
	if f.applyErr != nil {
		return f.applyErr
	}
	f.applied = files
	return nil
}

func (f *fakeTarget) Restart(ctx context.Context, projectID string) error {
	f.restarted = true
	return nil
}

func (f *fakeTarget) Health(ctx context.Context, projectID string) (sandbox.HealthStatus, error) {
	return sandbox.HealthStatus{Ready: true}, nil
}

type fakeIndex struct {
	available bool
	upsertErr error
	docs      []vector.FileDoc
}

func (f *fakeIndex) Available() bool { return f.available }

func (f *fakeIndex) UpsertFiles(ctx context.Context, projectID, versionID string, files []vector.FileDoc) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.docs = append(f.docs, files...)
	return nil
}

func (f *fakeIndex) SearchFiles(ctx context.Context, projectID, query string, opts vector.SearchOptions) ([]vector.FileMatch, error) {
	return nil, nil
}

type recordingConversation struct {
	messages []memory.Message
}

func (r *recordingConversation) AppendMessages(ctx context.Context, projectID string, messages []memory.Message) error {
	r.messages = append(r.messages, messages...)
	return nil
}

func newTestPipeline(t *testing.T, versions VersionStore, gen Generation, opts ...Option) *Pipeline {
	t.Helper()
	p, err := New(classifier.New(), &fakeBuilder{}, gen, versions, opts...)
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}
	return p
}

func TestCreateRequestYieldsNewFile(t *testing.T) {
	versions := newFakeVersions()
	gen := &fakeGeneration{changes: &generator.ChangeSet{
		NewFiles:    map[string]string{"stats-widget.tsx": "export const StatsWidget = () => null;"},
		Description: "added stats widget",
	}}
	p := newTestPipeline(t, versions, gen)

	result, err := p.RunIteration(context.Background(), "proj", "create a new file called stats-widget.tsx", Options{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Intent != classifier.IntentCreate {
		t.Fatalf("expected create intent, got %s", result.Intent)
	}
	if _, ok := result.NewFiles["stats-widget.tsx"]; !ok {
		t.Fatalf("file must land in new files, got new=%v modified=%v", result.NewFiles, result.ModifiedFiles)
	}
	if len(result.ModifiedFiles) != 0 {
		t.Fatalf("nothing should be modified, got %v", result.ModifiedFiles)
	}
	stored := versions.byID[result.VersionID]
	if stored == nil || stored.Status != version.StatusComplete {
		t.Fatalf("version not committed: %+v", stored)
	}
	if stored.Files["stats-widget.tsx"] == "" {
		t.Fatal("snapshot missing the new file")
	}
}

func TestSequentialIterationsChainVersions(t *testing.T) {
	versions := newFakeVersions()
	gen := &fakeGeneration{changes: &generator.ChangeSet{
		NewFiles:    map[string]string{"a.ts": "one"},
		Description: "first",
	}}
	p := newTestPipeline(t, versions, gen)
	ctx := context.Background()

	first, err := p.RunIteration(ctx, "proj", "create a new file called a.ts", Options{})
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	gen.changes = &generator.ChangeSet{
		ModifiedFiles: map[string]string{"a.ts": "two"},
		Description:   "second",
	}
	second, err := p.RunIteration(ctx, "proj", "change a.ts to two", Options{})
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if first.VersionNumber != 1 || second.VersionNumber != 2 {
		t.Fatalf("expected numbers 1 then 2, got %d then %d", first.VersionNumber, second.VersionNumber)
	}
	if versions.byID[second.VersionID].ParentVersionID != first.VersionID {
		t.Fatalf("second version must chain to first, got parent %q",
			versions.byID[second.VersionID].ParentVersionID)
	}
}

func TestGenerationFailureMarksVersionFailed(t *testing.T) {
	versions := newFakeVersions()
	gen := &fakeGeneration{err: generator.ErrMalformedOutput}
	p := newTestPipeline(t, versions, gen)

	_, err := p.RunIteration(context.Background(), "proj", "add a new widget component", Options{})
	var stageErr *StageError
	if !errors.As(err, &stageErr) || stageErr.Stage != StageGenerating {
		t.Fatalf("expected generating stage error, got %v", err)
	}
	if len(versions.created) != 1 {
		t.Fatalf("expected one version record, got %d", len(versions.created))
	}
	if got := versions.byID[versions.created[0].ID].Status; got != version.StatusFailed {
		t.Fatalf("version should be marked failed, got %s", got)
	}
}

func TestApplyFailureIsWarningNotError(t *testing.T) {
	versions := newFakeVersions()
	gen := &fakeGeneration{changes: &generator.ChangeSet{
		NewFiles:    map[string]string{"b.ts": "x"},
		Description: "add b",
	}}
	target := &fakeTarget{applyErr: errors.New("sandbox down")}
	p := newTestPipeline(t, versions, gen, WithSandbox(target))

	result, err := p.RunIteration(context.Background(), "proj", "create a new file called b.ts", Options{Apply: true})
	if err != nil {
		t.Fatalf("apply failure must not fail the iteration: %v", err)
	}
	if len(result.Warnings) == 0 {
		t.Fatal("apply failure must surface as a warning")
	}
	if versions.byID[result.VersionID].Status != version.StatusComplete {
		t.Fatal("version must still commit despite apply failure")
	}
}

func TestCommittedFilesIndexedBestEffort(t *testing.T) {
	versions := newFakeVersions()
	gen := &fakeGeneration{changes: &generator.ChangeSet{
		NewFiles:    map[string]string{"c.tsx": "y"},
		Description: "add c",
	}}
	index := &fakeIndex{available: true}
	p := newTestPipeline(t, versions, gen, WithIndex(index))

	result, err := p.RunIteration(context.Background(), "proj", "create a new file called c.tsx", Options{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(index.docs) != 1 || index.docs[0].Path != "c.tsx" || index.docs[0].FileType != "tsx" {
		t.Fatalf("expected committed file indexed, got %+v", index.docs)
	}

	index.upsertErr = errors.New("chroma down")
	gen.changes = &generator.ChangeSet{ModifiedFiles: map[string]string{"c.tsx": "z"}, Description: "tweak"}
	result, err = p.RunIteration(context.Background(), "proj", "change c.tsx", Options{})
	if err != nil {
		t.Fatalf("indexing failure must not fail the iteration: %v", err)
	}
	if versions.byID[result.VersionID].Status != version.StatusComplete {
		t.Fatal("version must still commit when indexing fails")
	}
}

func TestExplainRequestReturnsAnswerOnly(t *testing.T) {
	versions := newFakeVersions()
	gen := &fakeGeneration{answer: &generator.Answer{Answer: "It guards authenticated routes."}}
	conversation := &recordingConversation{}
	p := newTestPipeline(t, versions, gen, WithConversation(conversation))

	result, err := p.RunIteration(context.Background(), "proj", "what does the login guard do?", Options{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Answer == "" {
		t.Fatal("expected an answer")
	}
	if result.VersionID != "" || len(versions.created) != 0 {
		t.Fatal("explain requests must not create versions")
	}
	want := []string{"user", "assistant"}
	got := []string{}
	for _, msg := range conversation.messages {
		got = append(got, msg.Role)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("conversation roles mismatch (-want +got):\n%s", diff)
	}
}

func TestBlankInputsRejectedBeforeSideEffects(t *testing.T) {
	versions := newFakeVersions()
	p := newTestPipeline(t, versions, &fakeGeneration{})

	if _, err := p.RunIteration(context.Background(), "proj", "   ", Options{}); err == nil {
		t.Fatal("blank prompt must be rejected")
	}
	if _, err := p.RunIteration(context.Background(), "", "do something", Options{}); err == nil {
		t.Fatal("blank project must be rejected")
	}
	if len(versions.created) != 0 {
		t.Fatal("validation failures must not create versions")
	}
}
