// File path: internal/classifier/classifier_test.go
package classifier

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
)

type countingEscalator struct {
	calls  int
	result *Result
	err    error
}

func (e *countingEscalator) ClassifyPrompt(ctx context.Context, prompt string, existingPaths []string) (*Result, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	return e.result.Clone(), nil
}

func TestClassifyCreateIntent(t *testing.T) {
	c := New()
	result, err := c.Classify(context.Background(), `create a new file called "stats-widget.tsx"`, nil)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if result.Intent != IntentCreate {
		t.Fatalf("expected create intent, got %s", result.Intent)
	}
	if result.Confidence != patternConfidence {
		t.Fatalf("expected pattern confidence %d, got %d", patternConfidence, result.Confidence)
	}
	if !result.NewVersion {
		t.Fatal("create intent must request a new version")
	}
	found := false
	for _, entity := range result.Entities {
		if entity == "stats-widget.tsx" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected stats-widget.tsx among entities, got %v", result.Entities)
	}
}

func TestClassifyIntents(t *testing.T) {
	cases := []struct {
		prompt string
		want   Intent
	}{
		{"delete the legacy footer component", IntentDelete},
		{"refactor the auth service into smaller modules", IntentRefactor},
		{"what does the login guard do?", IntentExplain},
		{"update the header color to blue", IntentModify},
		{"scaffold a new project with routing", IntentScaffold},
	}
	c := New()
	for _, tc := range cases {
		result, err := c.Classify(context.Background(), tc.prompt, nil)
		if err != nil {
			t.Fatalf("classify %q: %v", tc.prompt, err)
		}
		if result.Intent != tc.want {
			t.Fatalf("prompt %q: expected %s, got %s", tc.prompt, tc.want, result.Intent)
		}
	}
}

func TestEscalationCalledOncePerPrompt(t *testing.T) {
	escalator := &countingEscalator{result: &Result{Intent: IntentModify, Confidence: 70}}
	c := New(WithEscalator(escalator))

	prompt := "zorblify the frobnicator"
	for i := 0; i < 3; i++ {
		if _, err := c.Classify(context.Background(), prompt, nil); err != nil {
			t.Fatalf("classify round %d: %v", i, err)
		}
	}
	// Same prompt with different surrounding whitespace and case still hits
	// the cached entry.
	if _, err := c.Classify(context.Background(), "  Zorblify the Frobnicator  ", nil); err != nil {
		t.Fatalf("classify normalized variant: %v", err)
	}
	if escalator.calls != 1 {
		t.Fatalf("expected a single escalation call, got %d", escalator.calls)
	}
}

func TestEscalationFailureFallsBack(t *testing.T) {
	escalator := &countingEscalator{err: errors.New("model unavailable")}
	c := New(WithEscalator(escalator))

	result, err := c.Classify(context.Background(), "zorblify the gizmo please", nil)
	if err != nil {
		t.Fatalf("fallback must not surface the escalation error: %v", err)
	}
	if result.Confidence != fallbackConfidence {
		t.Fatalf("expected fallback confidence %d, got %d", fallbackConfidence, result.Confidence)
	}
	if result.Reasoning != "fallback" {
		t.Fatalf("expected fallback reasoning tag, got %q", result.Reasoning)
	}
}

func TestEmptyPromptRejected(t *testing.T) {
	c := New()
	if _, err := c.Classify(context.Background(), "   ", nil); err == nil {
		t.Fatal("expected error for blank prompt")
	}
}

func TestCacheEvictsOldestFirst(t *testing.T) {
	cache := NewCache(3)
	for i := 0; i < 4; i++ {
		cache.Put(fmt.Sprintf("prompt-%d", i), &Result{Intent: IntentModify})
	}
	if cache.Len() != 3 {
		t.Fatalf("expected capacity 3 after eviction, got %d", cache.Len())
	}
	if _, ok := cache.Get("prompt-0"); ok {
		t.Fatal("oldest entry should have been evicted")
	}
	if _, ok := cache.Get("prompt-3"); !ok {
		t.Fatal("newest entry missing")
	}
}

func TestCachedResultsAreImmutable(t *testing.T) {
	cache := NewCache(10)
	cache.Put("k", &Result{Intent: IntentCreate, Entities: []string{"a.ts"}})
	first, _ := cache.Get("k")
	first.Entities[0] = "mutated"
	second, _ := cache.Get("k")
	if diff := cmp.Diff([]string{"a.ts"}, second.Entities); diff != "" {
		t.Fatalf("cache entry mutated through a returned copy (-want +got):\n%s", diff)
	}
}

func TestMentionsFileCreation(t *testing.T) {
	if !MentionsFileCreation("please create a file called util.ts") {
		t.Fatal("explicit creation phrase not detected")
	}
	if MentionsFileCreation("make the button bigger") {
		t.Fatal("styling request misread as file creation")
	}
}
