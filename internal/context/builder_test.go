// File path: internal/context/builder_test.go
package context

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/jmcasey/codeloom/internal/memory"
	"github.com/jmcasey/codeloom/internal/vector"
)

type fakeHistory struct {
	messages []memory.Message
	err      error
}

func (f *fakeHistory) RecentMessages(ctx context.Context, projectID string, limit int) ([]memory.Message, error) {
	if f.err != nil {
		return nil, f.err
	}
	if limit > 0 && len(f.messages) > limit {
		return f.messages[len(f.messages)-limit:], nil
	}
	return f.messages, nil
}

type fakeSnapshots struct {
	files     map[string]string
	versionID string
	err       error
}

func (f *fakeSnapshots) LatestSnapshot(ctx context.Context, projectID string) (map[string]string, string, error) {
	if f.err != nil {
		return nil, "", f.err
	}
	return f.files, f.versionID, nil
}

type fakeIndex struct {
	available bool
	matches   []vector.FileMatch
	err       error
}

func (f *fakeIndex) Available() bool { return f.available }

func (f *fakeIndex) UpsertFiles(ctx context.Context, projectID, versionID string, files []vector.FileDoc) error {
	return nil
}

func (f *fakeIndex) SearchFiles(ctx context.Context, projectID, query string, opts vector.SearchOptions) ([]vector.FileMatch, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.matches, nil
}

func newTestBuilder(t *testing.T, snapshots SnapshotSource, history History, index Index) *Builder {
	t.Helper()
	builder, err := NewBuilder(Config{}, history, snapshots, index)
	if err != nil {
		t.Fatalf("new builder: %v", err)
	}
	return builder
}

func TestKeywordMatchSelectsByBasename(t *testing.T) {
	snapshots := &fakeSnapshots{files: map[string]string{
		"src/components/header.component.ts": "export class HeaderComponent {}",
		"src/components/footer.component.ts": "export class FooterComponent {}",
		"src/app.module.ts":                  "import { HeaderComponent } from './components/header.component';",
	}, versionID: "v1"}
	builder := newTestBuilder(t, snapshots, nil, nil)

	rc, err := builder.Build(context.Background(), "proj", "change the header background", Options{})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(rc.RelevantFiles) != 1 {
		t.Fatalf("expected a single keyword hit, got %+v", rc.RelevantFiles)
	}
	hit := rc.RelevantFiles[0]
	if hit.Path != "src/components/header.component.ts" {
		t.Fatalf("unexpected hit %+v", hit)
	}
	if hit.Relevance != 0.95 {
		t.Fatalf("keyword relevance should be 0.95, got %v", hit.Relevance)
	}
}

func TestDependencyResolutionWalksImports(t *testing.T) {
	snapshots := &fakeSnapshots{files: map[string]string{
		"src/pages/login.tsx":       "import { Button } from '../ui/button';\nimport api from '@/lib/api';",
		"src/ui/button.tsx":         "export const Button = () => null;",
		"src/lib/api.ts":            "export default {}",
		"src/lib/unrelated.ts":      "export const x = 1;",
	}, versionID: "v1"}
	builder := newTestBuilder(t, snapshots, nil, nil)

	rc, err := builder.Build(context.Background(), "proj", "restyle the login page", Options{})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	deps := map[string]bool{}
	for _, dep := range rc.DependencyFiles {
		deps[dep.Path] = true
	}
	if !deps["src/ui/button.tsx"] {
		t.Fatalf("relative import not resolved: %+v", rc.DependencyFiles)
	}
	if !deps["src/lib/api.ts"] {
		t.Fatalf("alias import not resolved: %+v", rc.DependencyFiles)
	}
	if deps["src/lib/unrelated.ts"] {
		t.Fatal("unimported file pulled in as dependency")
	}
}

func TestContentFallbackOnlyWhenNothingElseMatches(t *testing.T) {
	snapshots := &fakeSnapshots{files: map[string]string{
		"src/a.ts": "renders the Welcome Banner for signed-in users",
		"src/b.ts": "nothing of note",
	}, versionID: "v1"}
	builder := newTestBuilder(t, snapshots, nil, nil)

	rc, err := builder.Build(context.Background(), "proj", "zzz qqq 'Welcome Banner' vvv", Options{})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(rc.RelevantFiles) != 1 || rc.RelevantFiles[0].Path != "src/a.ts" {
		t.Fatalf("expected content fallback hit on src/a.ts, got %+v", rc.RelevantFiles)
	}
	if rc.RelevantFiles[0].Relevance != 0.90 {
		t.Fatalf("content relevance should be 0.90, got %v", rc.RelevantFiles[0].Relevance)
	}
}

func TestNoMatchesStillIncludesConfig(t *testing.T) {
	files := map[string]string{}
	for i := 0; i < 200; i++ {
		files[fmt.Sprintf("src/gen/file%03d.ts", i)] = fmt.Sprintf("export const v%d = %d;", i, i)
	}
	files["package.json"] = `{"name": "demo"}`
	files["README.md"] = "# Demo"
	snapshots := &fakeSnapshots{files: files, versionID: "v1"}
	builder := newTestBuilder(t, snapshots, nil, &fakeIndex{available: true})

	rc, err := builder.Build(context.Background(), "proj", "zzzz qqqq wwww", Options{MaxFiles: 10})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(rc.RelevantFiles) != 0 {
		t.Fatalf("expected no relevant files, got %d", len(rc.RelevantFiles))
	}
	if len(rc.DependencyFiles) != 0 {
		t.Fatalf("expected no dependency files, got %d", len(rc.DependencyFiles))
	}
	if len(rc.ConfigFiles) != 2 {
		t.Fatalf("manifest and readme must still be present, got %+v", rc.ConfigFiles)
	}
}

func TestBudgetPoolsRespected(t *testing.T) {
	big := strings.Repeat("x", 50_000)
	files := map[string]string{}
	for i := 0; i < 20; i++ {
		files[fmt.Sprintf("src/widget%02d/widget.ts", i)] = big
	}
	snapshots := &fakeSnapshots{files: files, versionID: "v1"}
	builder := newTestBuilder(t, snapshots, nil, nil)

	rc, err := builder.Build(context.Background(), "proj", "update every widget", Options{MaxFiles: 20})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	cfg := DefaultConfig()
	budget := int(float64(cfg.TotalBudget) * cfg.RelevanceShare)
	used := 0
	for _, file := range rc.RelevantFiles {
		used += len(file.Content)
	}
	if used > budget {
		t.Fatalf("relevance pool exceeds budget: used %d > %d", used, budget)
	}
	if len(rc.RelevantFiles) == 0 {
		t.Fatal("relevance pool must never be emptied by truncation")
	}
	if len(rc.Stats.TruncatedPools) == 0 {
		t.Fatal("truncation not reported in stats")
	}
}

func TestHighestRelevanceSurvivesTruncation(t *testing.T) {
	budget := 100
	files := []RelevantFile{
		{Path: "low.ts", Content: strings.Repeat("a", 90), Relevance: 0.4},
		{Path: "high.ts", Content: strings.Repeat("b", 500), Relevance: 0.99},
	}
	kept, truncated, _ := fitRelevant(files, budget)
	if len(kept) == 0 || kept[0].Path != "high.ts" {
		t.Fatalf("top-ranked file must survive, got %+v", kept)
	}
	if !truncated {
		t.Fatal("oversized top file should be truncated, not dropped")
	}
	if len(kept[0].Content) != budget {
		t.Fatalf("truncated content should fill the budget, got %d chars", len(kept[0].Content))
	}
}

func TestTruncationNeverSplitsRunes(t *testing.T) {
	budget := 10
	content := strings.Repeat("é", 20)

	kept, truncated, _ := fitRelevant([]RelevantFile{
		{Path: "notes.md", Content: content, Relevance: 0.95},
	}, budget)
	if len(kept) != 1 || !truncated {
		t.Fatalf("expected one truncated file, got %+v", kept)
	}
	if !utf8.ValidString(kept[0].Content) {
		t.Fatalf("truncation split a rune: %q", kept[0].Content)
	}
	if len(kept[0].Content) > budget {
		t.Fatalf("clipped content exceeds budget: %d bytes", len(kept[0].Content))
	}

	files, truncated, _ := fitFiles([]ContextFile{{Path: "readme.md", Content: content}}, budget-1)
	if len(files) != 1 || !truncated {
		t.Fatalf("expected one truncated config file, got %+v", files)
	}
	if !utf8.ValidString(files[0].Content) {
		t.Fatalf("config truncation split a rune: %q", files[0].Content)
	}
}

func TestConversationDropsOldestFirst(t *testing.T) {
	messages := []memory.Message{
		{Role: "user", Content: strings.Repeat("a", 60)},
		{Role: "assistant", Content: strings.Repeat("b", 60)},
		{Role: "user", Content: strings.Repeat("c", 60)},
	}
	kept, truncated := fitMessages(messages, 130)
	if !truncated {
		t.Fatal("expected truncation")
	}
	if len(kept) != 2 || kept[0].Content[0] != 'b' || kept[1].Content[0] != 'c' {
		t.Fatalf("expected the two newest messages in order, got %+v", kept)
	}
}

func TestOptionalSourceFailuresDegrade(t *testing.T) {
	snapshots := &fakeSnapshots{files: map[string]string{"src/header.ts": "x"}, versionID: "v1"}
	history := &fakeHistory{err: errors.New("history down")}
	index := &fakeIndex{available: true, err: errors.New("index down")}
	builder := newTestBuilder(t, snapshots, history, index)

	rc, err := builder.Build(context.Background(), "proj", "update the header", Options{})
	if err != nil {
		t.Fatalf("optional failures must not abort the build: %v", err)
	}
	if len(rc.Conversation) != 0 {
		t.Fatal("failed history should contribute nothing")
	}
	if len(rc.RelevantFiles) != 1 {
		t.Fatalf("keyword step should still run, got %+v", rc.RelevantFiles)
	}
}

func TestSemanticHitsSkipAlreadySelected(t *testing.T) {
	snapshots := &fakeSnapshots{files: map[string]string{
		"src/header.ts": "header",
		"src/theme.ts":  "theme tokens",
	}, versionID: "v1"}
	index := &fakeIndex{available: true, matches: []vector.FileMatch{
		{FilePath: "src/header.ts", Similarity: 0.9},
		{FilePath: "src/theme.ts", Similarity: 0.8},
		{FilePath: "src/deleted.ts", Similarity: 0.7},
	}}
	builder := newTestBuilder(t, snapshots, nil, index)

	rc, err := builder.Build(context.Background(), "proj", "update the header", Options{})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	paths := map[string]int{}
	for _, file := range rc.RelevantFiles {
		paths[file.Path]++
	}
	if paths["src/header.ts"] != 1 {
		t.Fatalf("keyword hit duplicated or lost: %+v", rc.RelevantFiles)
	}
	if paths["src/theme.ts"] != 1 {
		t.Fatalf("semantic hit missing: %+v", rc.RelevantFiles)
	}
	if paths["src/deleted.ts"] != 0 {
		t.Fatal("stale index entry must be skipped")
	}
}

func TestRenderListsProjectFiles(t *testing.T) {
	snapshots := &fakeSnapshots{files: map[string]string{
		"src/app.ts":   "app",
		"package.json": "{}",
	}, versionID: "v1"}
	builder := newTestBuilder(t, snapshots, nil, nil)
	rc, err := builder.Build(context.Background(), "proj", "update the app shell", Options{})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	rendered := rc.Render()
	if !strings.Contains(rendered, "## Project file listing") {
		t.Fatal("render missing file listing section")
	}
	if !strings.Contains(rendered, "package.json") {
		t.Fatal("render missing config file")
	}
}
