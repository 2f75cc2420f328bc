// File path: internal/memory/store.go
package memory

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// Message is one conversation turn for a project.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Store persists per-project conversation history as append-only JSONL
// files, one file per project with a base64-encoded name.
type Store struct {
	path string
	mu   sync.RWMutex
}

// NewStore opens (creating if needed) the conversation directory.
func NewStore(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("store path required")
	}
	basePath := determineRoot(path)
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	return &Store{path: basePath}, nil
}

// AppendMessages records conversation turns for a project. Missing
// timestamps are filled with the current time.
func (s *Store) AppendMessages(ctx context.Context, projectID string, messages []Message) error {
	if s == nil {
		return errors.New("store not initialized")
	}
	if len(messages) == 0 {
		return nil
	}
	filePath, err := s.projectFile(projectID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	file, err := os.OpenFile(filePath, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer file.Close()
	enc := json.NewEncoder(file)
	for _, msg := range messages {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if msg.Timestamp.IsZero() {
			msg.Timestamp = time.Now().UTC()
		}
		if err := enc.Encode(msg); err != nil {
			return fmt.Errorf("encode message: %w", err)
		}
	}
	return nil
}

// RecentMessages returns the last limit turns for a project in oldest to
// newest order. A missing project yields an empty history, not an error.
func (s *Store) RecentMessages(ctx context.Context, projectID string, limit int) ([]Message, error) {
	if s == nil {
		return nil, errors.New("store not initialized")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	messages, err := s.readProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(messages) > limit {
		messages = messages[len(messages)-limit:]
	}
	return messages, nil
}

// ProjectInfo summarizes one stored conversation.
type ProjectInfo struct {
	ID       string
	Messages int
}

// Projects lists stored conversations with their message counts.
func (s *Store) Projects(ctx context.Context) ([]ProjectInfo, error) {
	if s == nil {
		return nil, errors.New("store not initialized")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries, err := os.ReadDir(s.path)
	if err != nil {
		return nil, fmt.Errorf("read store dir: %w", err)
	}
	infos := make([]ProjectInfo, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		projectID, ok := decodeProjectFile(entry.Name())
		if !ok {
			continue
		}
		messages, err := s.readProject(ctx, projectID)
		if err != nil {
			return nil, err
		}
		infos = append(infos, ProjectInfo{ID: projectID, Messages: len(messages)})
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].ID < infos[j].ID
	})
	return infos, nil
}

// Root returns the underlying directory used for persistence.
func (s *Store) Root() string {
	if s == nil {
		return ""
	}
	return s.path
}

func (s *Store) readProject(ctx context.Context, projectID string) ([]Message, error) {
	filePath, err := s.projectFile(projectID)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(filePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open store: %w", err)
	}
	defer file.Close()
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64<<10), 8<<20)
	var messages []Message
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var msg Message
		if err := json.Unmarshal(line, &msg); err != nil {
			return nil, fmt.Errorf("decode message: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan messages: %w", err)
	}
	return messages, nil
}

func (s *Store) projectFile(projectID string) (string, error) {
	trimmed := strings.TrimSpace(projectID)
	if trimmed == "" {
		return "", fmt.Errorf("project id required")
	}
	encoded := base64.RawURLEncoding.EncodeToString([]byte(trimmed))
	name := fmt.Sprintf("project_%s.jsonl", encoded)
	return filepath.Join(s.path, name), nil
}

func decodeProjectFile(name string) (string, bool) {
	if !strings.HasPrefix(name, "project_") || !strings.HasSuffix(name, ".jsonl") {
		return "", false
	}
	encoded := strings.TrimSuffix(strings.TrimPrefix(name, "project_"), ".jsonl")
	data, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return "", false
	}
	return string(data), true
}

func determineRoot(path string) string {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "."
	}
	info, err := os.Stat(trimmed)
	if err == nil {
		if info.IsDir() {
			return trimmed
		}
		return filepath.Dir(trimmed)
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return filepath.Dir(trimmed)
	}
	// Path does not exist; assume caller intended a file if an extension is present.
	if ext := filepath.Ext(trimmed); ext != "" {
		dir := filepath.Dir(trimmed)
		if dir == "" || dir == "." {
			return "."
		}
		return dir
	}
	return trimmed
}
