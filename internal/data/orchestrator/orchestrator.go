// File path: internal/data/orchestrator/orchestrator.go
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	ctxbuilder "github.com/jmcasey/codeloom/internal/context"
	"github.com/jmcasey/codeloom/internal/llm"
	"github.com/jmcasey/codeloom/internal/memory"
	"github.com/jmcasey/codeloom/internal/sandbox"
	"github.com/jmcasey/codeloom/internal/vector"
	"github.com/jmcasey/codeloom/internal/version"
)

type closer interface {
	Close() error
}

// Orchestrator wires together the persistent stores and external clients
// backing the service and exposes accessors for the API layer.
type Orchestrator struct {
	cfg Config

	memoryStore *memory.Store
	versions    *version.Store
	provider    llm.Provider
	vector      vector.Index
	sandbox     sandbox.Target

	closers []closer
}

// New constructs an orchestrator from the provided configuration and
// optional overrides.
func New(ctx context.Context, cfg Config, opts ...Option) (*Orchestrator, error) {
	cfg = applyDefaults(cfg)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	settings := options{}
	for _, opt := range opts {
		if opt != nil {
			opt(&settings)
		}
	}

	memStore, err := memory.NewStore(cfg.MemoryPath)
	if err != nil {
		return nil, fmt.Errorf("init memory store: %w", err)
	}
	versions, err := version.Open(cfg.VersionsPath)
	if err != nil {
		return nil, fmt.Errorf("init version store: %w", err)
	}

	provider := settings.provider
	if provider == nil {
		provider = llm.NewProvider()
	}

	var index vector.Index
	switch {
	case settings.vector != nil:
		index = settings.vector
	case shouldEnableVector():
		client, err := vector.NewFromEnv(ctx, llm.TextEmbedder{Provider: provider})
		if err != nil {
			versions.Close()
			return nil, fmt.Errorf("init vector client: %w", err)
		}
		index = client
	}

	var target sandbox.Target
	switch {
	case settings.sandbox != nil:
		target = settings.sandbox
	case shouldEnableSandbox():
		client, err := sandbox.NewFromEnv()
		if err != nil {
			versions.Close()
			return nil, fmt.Errorf("init sandbox client: %w", err)
		}
		target = client
	}

	orch := &Orchestrator{
		cfg:         cfg,
		memoryStore: memStore,
		versions:    versions,
		provider:    provider,
		vector:      index,
		sandbox:     target,
	}
	orch.closers = append(orch.closers, versions)
	if c, ok := index.(closer); ok && c != nil {
		orch.closers = append(orch.closers, c)
	}
	return orch, nil
}

// Memory exposes the conversation store.
func (o *Orchestrator) Memory() *memory.Store {
	if o == nil {
		return nil
	}
	return o.memoryStore
}

// Versions exposes the version catalog.
func (o *Orchestrator) Versions() *version.Store {
	if o == nil {
		return nil
	}
	return o.versions
}

// Provider exposes the configured language-model provider.
func (o *Orchestrator) Provider() llm.Provider {
	if o == nil {
		return nil
	}
	return o.provider
}

// Vector exposes the optional semantic index.
func (o *Orchestrator) Vector() vector.Index {
	if o == nil {
		return nil
	}
	return o.vector
}

// Sandbox exposes the optional execution target.
func (o *Orchestrator) Sandbox() sandbox.Target {
	if o == nil {
		return nil
	}
	return o.sandbox
}

// Snapshots adapts the version catalog to the context builder's snapshot
// source contract.
func (o *Orchestrator) Snapshots() ctxbuilder.SnapshotSource {
	if o == nil {
		return nil
	}
	return snapshotSource{store: o.versions}
}

type snapshotSource struct {
	store *version.Store
}

func (s snapshotSource) LatestSnapshot(ctx context.Context, projectID string) (map[string]string, string, error) {
	latest, err := s.store.GetLatestVersion(ctx, projectID)
	if err != nil {
		return nil, "", err
	}
	if latest == nil {
		return nil, "", nil
	}
	return latest.Files, latest.ID, nil
}

// Close releases any resources associated with the orchestrator.
func (o *Orchestrator) Close() error {
	if o == nil {
		return nil
	}
	var err error
	for i := len(o.closers) - 1; i >= 0; i-- {
		closer := o.closers[i]
		if closer == nil {
			continue
		}
		if cerr := closer.Close(); cerr != nil {
			err = errors.Join(err, cerr)
		}
	}
	return err
}

func shouldEnableVector() bool {
	keys := []string{
		"CHROMADB_CONFIG_FILE",
		"CHROMADB_HOST",
		"CHROMADB_PORT",
		"CHROMADB_SCHEME",
		"CHROMADB_COLLECTION",
		"CHROMADB_API_KEY",
		"CHROMADB_TIMEOUT",
	}
	for _, key := range keys {
		if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
			return true
		}
	}
	return false
}

func shouldEnableSandbox() bool {
	keys := []string{
		"SANDBOX_CONFIG_FILE",
		"SANDBOX_URL",
		"SANDBOX_API_KEY",
		"SANDBOX_TIMEOUT",
	}
	for _, key := range keys {
		if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
			return true
		}
	}
	return false
}
