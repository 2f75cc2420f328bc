// File path: internal/data/orchestrator/options.go
package orchestrator

import (
	"github.com/jmcasey/codeloom/internal/llm"
	"github.com/jmcasey/codeloom/internal/sandbox"
	"github.com/jmcasey/codeloom/internal/vector"
)

type Option func(*options)

type options struct {
	vector   vector.Index
	sandbox  sandbox.Target
	provider llm.Provider
}

// WithVectorIndex injects a semantic index implementation.
func WithVectorIndex(index vector.Index) Option {
	return func(o *options) {
		o.vector = index
	}
}

// WithSandboxTarget injects an execution-target client.
func WithSandboxTarget(target sandbox.Target) Option {
	return func(o *options) {
		o.sandbox = target
	}
}

// WithProvider injects a language-model provider.
func WithProvider(provider llm.Provider) Option {
	return func(o *options) {
		o.provider = provider
	}
}
