// File path: internal/generator/generator.go
package generator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jmcasey/codeloom/internal/classifier"
	"github.com/jmcasey/codeloom/internal/common"
	"github.com/jmcasey/codeloom/internal/llm"
)

const changeSystemPrompt = `You are a senior engineer modifying an existing multi-file project.
Respond with a single JSON object and nothing else:
{"modifiedFiles": {"path": "full new content"}, "newFiles": {"path": "full content"}, "deletedFiles": ["path"], "changes": [{"filePath": "path", "summary": "one line"}], "description": "short summary"}
Every file value must be the complete file content, never a fragment or diff.
Only touch files the request requires. Reuse existing file paths exactly as given in the context.`

const answerSystemPrompt = `You are a senior engineer answering a question about an existing project.
Use only the provided context. Respond with a single JSON object:
{"answer": "your answer", "description": "one-line summary"}`

const classifySystemPrompt = `Classify the intent of a change request against a code project.
Respond with a single JSON object:
{"intent": "create|modify|delete|refactor|scaffold|explain", "confidence": 0-100, "new_version": true|false, "entities": ["mentioned files or names"], "reasoning": "one line"}`

// Generator wraps the language-model provider with prompt assembly and
// output parsing.
type Generator struct {
	provider llm.Provider
}

func New(provider llm.Provider) *Generator {
	return &Generator{provider: provider}
}

// GenerateChanges asks the model for a structured change set. Output is
// streamed when the provider supports it and req.OnDelta is set.
func (g *Generator) GenerateChanges(ctx context.Context, req Request) (*ChangeSet, error) {
	raw, err := g.complete(ctx, changeSystemPrompt, req)
	if err != nil {
		return nil, fmt.Errorf("generate changes: %w", err)
	}
	set, err := ParseChangeSet(raw)
	if err != nil {
		common.Logger().Error("generator: unparseable change set", "error", err, "chars", len(raw))
		return nil, err
	}
	common.Logger().Info("generator: change set parsed",
		"modified", len(set.ModifiedFiles), "new", len(set.NewFiles), "deleted", len(set.DeletedFiles))
	return set, nil
}

// AnswerQuestion handles explain-style requests that produce prose instead
// of file changes.
func (g *Generator) AnswerQuestion(ctx context.Context, req Request) (*Answer, error) {
	raw, err := g.complete(ctx, answerSystemPrompt, req)
	if err != nil {
		return nil, fmt.Errorf("answer question: %w", err)
	}
	return ParseAnswer(raw)
}

// ClassifyPrompt is the schema-constrained escalation path for the command
// classifier.
func (g *Generator) ClassifyPrompt(ctx context.Context, prompt string, existingPaths []string) (*classifier.Result, error) {
	if g == nil || g.provider == nil {
		return nil, errors.New("generator not initialised")
	}
	var user strings.Builder
	user.WriteString("Request: ")
	user.WriteString(prompt)
	if len(existingPaths) > 0 {
		user.WriteString("\nExisting files:\n")
		limit := len(existingPaths)
		if limit > 50 {
			limit = 50
		}
		for _, path := range existingPaths[:limit] {
			user.WriteString("- ")
			user.WriteString(path)
			user.WriteString("\n")
		}
	}
	raw, err := g.provider.Chat(ctx, []llm.Message{
		{Role: "system", Content: classifySystemPrompt},
		{Role: "user", Content: user.String()},
	})
	if err != nil {
		return nil, err
	}
	payload := stripFences(raw)
	var result classifier.Result
	if err := json.Unmarshal([]byte(payload), &result); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	if !result.Intent.Valid() {
		return nil, fmt.Errorf("%w: unknown intent %q", ErrMalformedOutput, result.Intent)
	}
	return &result, nil
}

func (g *Generator) complete(ctx context.Context, system string, req Request) (string, error) {
	if g == nil || g.provider == nil {
		return "", errors.New("generator not initialised")
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return "", errors.New("prompt required")
	}
	var user strings.Builder
	if req.Context != "" {
		user.WriteString(req.Context)
		user.WriteString("\n\n")
	}
	if req.Intent != "" {
		user.WriteString("Classified intent: ")
		user.WriteString(req.Intent)
		user.WriteString("\n")
	}
	user.WriteString("Request: ")
	user.WriteString(req.Prompt)

	messages := []llm.Message{
		{Role: "system", Content: system},
		{Role: "user", Content: user.String()},
	}
	if req.OnDelta != nil {
		return g.provider.ChatStream(ctx, messages, req.OnDelta)
	}
	return g.provider.Chat(ctx, messages)
}
