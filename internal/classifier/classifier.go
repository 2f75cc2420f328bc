// File path: internal/classifier/classifier.go
package classifier

import (
	"context"
	"errors"
	"time"

	"github.com/jmcasey/codeloom/internal/common"
	"github.com/jmcasey/codeloom/internal/common/telemetry"
)

const (
	patternConfidence  = 85
	entityThreshold    = 80
	fallbackConfidence = 50
)

// Escalator resolves prompts the pattern tables cannot classify with enough
// confidence. Implementations call the generation collaborator with a
// schema-constrained request.
type Escalator interface {
	ClassifyPrompt(ctx context.Context, prompt string, existingPaths []string) (*Result, error)
}

// Classifier assigns an intent to a change request using pattern tables
// first and model escalation as a last resort.
type Classifier struct {
	cache     Cache
	escalator Escalator
}

// Option customises a Classifier.
type Option func(*Classifier)

// WithCache replaces the default FIFO cache.
func WithCache(cache Cache) Option {
	return func(c *Classifier) {
		if cache != nil {
			c.cache = cache
		}
	}
}

// WithEscalator wires the model-backed fallback for low-confidence prompts.
func WithEscalator(escalator Escalator) Option {
	return func(c *Classifier) {
		c.escalator = escalator
	}
}

// New constructs a Classifier with a bounded default cache.
func New(opts ...Option) *Classifier {
	c := &Classifier{cache: NewCache(defaultCacheCapacity)}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify assigns an intent to the prompt. Pattern matches win at fixed
// confidence; anything below the entity threshold escalates to the
// collaborator, and a collaborator failure degrades to a default intent at
// confidence 50 rather than an error.
func (c *Classifier) Classify(ctx context.Context, prompt string, existingPaths []string) (*Result, error) {
	if c == nil {
		return nil, errors.New("classifier not initialised")
	}
	key := NormalizePrompt(prompt)
	if key == "" {
		return nil, errors.New("prompt required")
	}
	if cached, ok := c.cache.Get(key); ok {
		telemetry.RecordClassification("cache")
		return cached, nil
	}

	start := time.Now()
	if family, ok := matchIntent(key); ok {
		result := &Result{
			Intent:     family.intent,
			Confidence: patternConfidence,
			NewVersion: family.newVersion,
			Reasoning:  "pattern",
		}
		if result.Confidence >= entityThreshold {
			result.Entities = ExtractEntities(prompt)
			c.cache.Put(key, result)
			telemetry.RecordClassification("keyword")
			common.Logger().Debug("classifier: pattern match",
				"intent", result.Intent, "confidence", result.Confidence, "duration", time.Since(start))
			return result.Clone(), nil
		}
	}

	result := c.escalate(ctx, prompt, existingPaths)
	c.cache.Put(key, result)
	return result.Clone(), nil
}

func (c *Classifier) escalate(ctx context.Context, prompt string, existingPaths []string) *Result {
	telemetry.RecordClassification("escalation")
	if c.escalator != nil {
		result, err := c.escalator.ClassifyPrompt(ctx, prompt, existingPaths)
		if err == nil && result != nil && result.Intent.Valid() {
			if result.Confidence <= 0 || result.Confidence > 100 {
				result.Confidence = fallbackConfidence
			}
			if len(result.Entities) == 0 {
				result.Entities = ExtractEntities(prompt)
			}
			return result
		}
		if err != nil {
			common.Logger().Warn("classifier: escalation failed", "error", err)
		}
	}
	// Fail soft: a default intent keeps the pipeline moving.
	return &Result{
		Intent:     IntentModify,
		Confidence: fallbackConfidence,
		NewVersion: true,
		Entities:   ExtractEntities(prompt),
		Reasoning:  "fallback",
	}
}
