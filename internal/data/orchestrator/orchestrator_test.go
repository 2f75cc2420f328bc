// File path: internal/data/orchestrator/orchestrator_test.go
package orchestrator

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/jmcasey/codeloom/internal/llm/providers"
)

func TestNewWiresStores(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{
		MemoryPath:   filepath.Join(dir, "conversations"),
		VersionsPath: filepath.Join(dir, "versions.db"),
	}
	orch, err := New(context.Background(), cfg, WithProvider(providers.NewLocalProvider()))
	if err != nil {
		t.Fatalf("new orchestrator: %v", err)
	}
	defer orch.Close()

	if orch.Memory() == nil {
		t.Fatal("memory store not wired")
	}
	if orch.Versions() == nil {
		t.Fatal("version store not wired")
	}
	if orch.Provider() == nil {
		t.Fatal("provider not wired")
	}
	if orch.Vector() != nil {
		t.Fatal("vector index should stay disabled without configuration")
	}
	if orch.Sandbox() != nil {
		t.Fatal("sandbox should stay disabled without configuration")
	}
}

func TestSnapshotsEmptyProject(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{
		MemoryPath:   filepath.Join(dir, "conversations"),
		VersionsPath: filepath.Join(dir, "versions.db"),
	}
	orch, err := New(context.Background(), cfg, WithProvider(providers.NewLocalProvider()))
	if err != nil {
		t.Fatalf("new orchestrator: %v", err)
	}
	defer orch.Close()

	files, versionID, err := orch.Snapshots().LatestSnapshot(context.Background(), "fresh")
	if err != nil {
		t.Fatalf("latest snapshot: %v", err)
	}
	if files != nil || versionID != "" {
		t.Fatalf("fresh project must yield empty snapshot, got %v %q", files, versionID)
	}
}
