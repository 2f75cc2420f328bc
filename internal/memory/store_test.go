// File path: internal/memory/store_test.go
package memory

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
)

func TestRecentMessagesReturnsTail(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(filepath.Join(dir, "conversations"))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	ctx := context.Background()
	turns := []Message{
		{Role: "user", Content: "first"},
		{Role: "assistant", Content: "second"},
		{Role: "user", Content: "third"},
		{Role: "assistant", Content: "fourth"},
	}
	if err := store.AppendMessages(ctx, "proj-1", turns); err != nil {
		t.Fatalf("append messages: %v", err)
	}
	recent, err := store.RecentMessages(ctx, "proj-1", 2)
	if err != nil {
		t.Fatalf("recent messages: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(recent))
	}
	if recent[0].Content != "third" || recent[1].Content != "fourth" {
		t.Fatalf("expected oldest-to-newest tail, got %+v", recent)
	}
	if recent[0].Timestamp.IsZero() {
		t.Fatal("missing timestamp not backfilled")
	}
}

func TestRecentMessagesMissingProject(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	messages, err := store.RecentMessages(context.Background(), "never-seen", 10)
	if err != nil {
		t.Fatalf("recent messages: %v", err)
	}
	if len(messages) != 0 {
		t.Fatalf("expected empty history, got %d messages", len(messages))
	}
}

func TestProjectsListsStoredConversations(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	ctx := context.Background()
	if err := store.AppendMessages(ctx, "beta", []Message{{Role: "user", Content: "hi"}}); err != nil {
		t.Fatalf("append beta: %v", err)
	}
	if err := store.AppendMessages(ctx, "alpha", []Message{{Role: "user", Content: "a"}, {Role: "assistant", Content: "b"}}); err != nil {
		t.Fatalf("append alpha: %v", err)
	}
	infos, err := store.Projects(ctx)
	if err != nil {
		t.Fatalf("projects: %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("expected 2 projects, got %d", len(infos))
	}
	if infos[0].ID != "alpha" || infos[0].Messages != 2 {
		t.Fatalf("unexpected first project: %+v", infos[0])
	}
	if infos[1].ID != "beta" || infos[1].Messages != 1 {
		t.Fatalf("unexpected second project: %+v", infos[1])
	}
}

func TestLargeMessagesRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	ctx := context.Background()
	large := strings.Repeat("long assistant answer ", 1<<15)
	if len(large) <= 64<<10 {
		t.Fatalf("content too small for test: %d bytes", len(large))
	}
	if err := store.AppendMessages(ctx, "proj-large", []Message{{Role: "assistant", Content: large}}); err != nil {
		t.Fatalf("append messages: %v", err)
	}
	messages, err := store.RecentMessages(ctx, "proj-large", 5)
	if err != nil {
		t.Fatalf("recent messages: %v", err)
	}
	if len(messages) != 1 || messages[0].Content != large {
		t.Fatal("large message did not round-trip")
	}
}
