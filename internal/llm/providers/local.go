// File path: internal/llm/providers/local.go
package providers

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
)

type Message struct {
	Role    string
	Content string
}

type Provider interface {
	Chat(ctx context.Context, messages []Message) (string, error)
	ChatStream(ctx context.Context, messages []Message, onDelta func(string)) (string, error)
	Embed(ctx context.Context, input []string) ([][]float32, error)
	Name() string
}

// LocalProvider is the no-credentials fallback. Chat echoes the request and
// embeddings are deterministic token hashes, enough for offline development
// and tests but useless for real retrieval quality.
type LocalProvider struct{}

func NewLocalProvider() *LocalProvider {
	return &LocalProvider{}
}

func (l *LocalProvider) Chat(ctx context.Context, messages []Message) (string, error) {
	if len(messages) == 0 {
		return "", fmt.Errorf("no messages provided")
	}
	last := messages[len(messages)-1].Content
	return "[local-stub] " + strings.TrimSpace(last), nil
}

func (l *LocalProvider) ChatStream(ctx context.Context, messages []Message, onDelta func(string)) (string, error) {
	response, err := l.Chat(ctx, messages)
	if err != nil {
		return "", err
	}
	if onDelta != nil {
		onDelta(response)
	}
	return response, nil
}

func (l *LocalProvider) Embed(ctx context.Context, input []string) ([][]float32, error) {
	const dim = 32
	vectors := make([][]float32, len(input))
	for i, text := range input {
		vec := make([]float32, dim)
		for _, token := range strings.Fields(strings.ToLower(text)) {
			h := fnv.New32a()
			h.Write([]byte(token))
			vec[h.Sum32()%dim]++
		}
		vectors[i] = vec
	}
	return vectors, nil
}

func (l *LocalProvider) Name() string {
	return "local"
}
