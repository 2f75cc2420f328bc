// File path: internal/context/builder.go
package context

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/jmcasey/codeloom/internal/common"
	"github.com/jmcasey/codeloom/internal/vector"
)

// Builder assembles the token-bounded retrieval context for one request.
// Candidate sets are additive: keyword hits first, then semantic hits, then
// a literal content fallback, then import dependencies and config files.
// Optional sources failing degrade to an empty contribution; the build
// itself never aborts.
type Builder struct {
	cfg       Config
	history   History
	snapshots SnapshotSource
	index     Index
}

// NewBuilder wires the provided backing services into a context builder.
// History and index may be nil; those steps contribute nothing.
func NewBuilder(cfg Config, history History, snapshots SnapshotSource, index Index) (*Builder, error) {
	if snapshots == nil {
		return nil, errors.New("snapshot source required")
	}
	defaults := DefaultConfig()
	if cfg.TotalBudget <= 0 {
		cfg.TotalBudget = defaults.TotalBudget
	}
	if cfg.ConversationShare <= 0 {
		cfg.ConversationShare = defaults.ConversationShare
	}
	if cfg.ConfigShare <= 0 {
		cfg.ConfigShare = defaults.ConfigShare
	}
	if cfg.RelevanceShare <= 0 {
		cfg.RelevanceShare = defaults.RelevanceShare
	}
	if cfg.DependencyShare <= 0 {
		cfg.DependencyShare = defaults.DependencyShare
	}
	if cfg.KeywordRelevance <= 0 {
		cfg.KeywordRelevance = defaults.KeywordRelevance
	}
	if cfg.ContentRelevance <= 0 {
		cfg.ContentRelevance = defaults.ContentRelevance
	}
	if cfg.SemanticThreshold <= 0 {
		cfg.SemanticThreshold = defaults.SemanticThreshold
	}
	if strings.TrimSpace(cfg.AliasRoot) == "" {
		cfg.AliasRoot = defaults.AliasRoot
	}
	return &Builder{cfg: cfg, history: history, snapshots: snapshots, index: index}, nil
}

// Build assembles the retrieval context for a prompt against a project.
func (b *Builder) Build(ctx context.Context, projectID, prompt string, opts Options) (*RetrievalContext, error) {
	if b == nil {
		return nil, errors.New("builder not initialised")
	}
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, errors.New("prompt required")
	}
	if opts.MessageLimit <= 0 {
		opts.MessageLimit = 10
	}
	if opts.MaxFiles <= 0 {
		opts.MaxFiles = 10
	}
	logger := common.Logger()
	rc := &RetrievalContext{PreviousFiles: map[string]string{}}

	if b.history != nil {
		messages, err := b.history.RecentMessages(ctx, projectID, opts.MessageLimit)
		if err != nil {
			logger.Warn("context: history fetch failed", "project", projectID, "error", err)
		} else {
			rc.Conversation = messages
		}
	}

	previous, versionID, err := b.snapshots.LatestSnapshot(ctx, projectID)
	if err != nil {
		logger.Warn("context: snapshot load failed", "project", projectID, "error", err)
		previous = nil
	}
	if previous != nil {
		rc.PreviousFiles = previous
	}
	rc.PreviousVersionID = versionID

	selected := make(map[string]struct{})
	extraImports := make(map[string][]string)

	rc.RelevantFiles = append(rc.RelevantFiles, b.keywordMatches(prompt, previous, opts, selected)...)

	semantic := b.semanticMatches(ctx, projectID, prompt, versionID, opts, previous, selected, extraImports, &rc.Stats)
	rc.RelevantFiles = append(rc.RelevantFiles, semantic...)

	if len(rc.RelevantFiles) == 0 {
		rc.RelevantFiles = b.contentFallback(prompt, previous, opts, selected)
	}

	rc.DependencyFiles = resolveDependencies(selected, rc.RelevantFiles, b.cfg.AliasRoot, previous, extraImports)
	rc.ConfigFiles = configFiles(previous, selected)

	applyBudget(b.cfg, rc)

	rc.Stats.ConversationCount = len(rc.Conversation)
	rc.Stats.RelevantCount = len(rc.RelevantFiles)
	rc.Stats.DependencyCount = len(rc.DependencyFiles)
	rc.Stats.ConfigCount = len(rc.ConfigFiles)
	rc.Stats.PreviousCount = len(previous)
	rc.Summary = summarize(rc)

	logger.Info("context: build complete",
		"project", projectID,
		"relevant", rc.Stats.RelevantCount,
		"dependencies", rc.Stats.DependencyCount,
		"config", rc.Stats.ConfigCount,
		"chars", rc.Stats.EstimatedChars,
		"truncated", strings.Join(rc.Stats.TruncatedPools, ","))
	return rc, nil
}

// keywordMatches scores prompt tokens against basenames and path segments.
func (b *Builder) keywordMatches(prompt string, previous map[string]string, opts Options, selected map[string]struct{}) []RelevantFile {
	tokens := tokenize(prompt)
	if len(tokens) == 0 || len(previous) == 0 {
		return nil
	}
	matches := []RelevantFile{}
	for _, filePath := range sortedPaths(previous) {
		if !opts.IncludeTests && isTestPath(filePath) {
			continue
		}
		lower := strings.ToLower(filePath)
		base := strings.ToLower(path.Base(filePath))
		for _, token := range tokens {
			if strings.Contains(base, token) || strings.Contains(lower, "/"+token) {
				if _, dup := selected[filePath]; !dup {
					selected[filePath] = struct{}{}
					matches = append(matches, RelevantFile{
						Path:      filePath,
						Content:   previous[filePath],
						Relevance: b.cfg.KeywordRelevance,
						Reason:    fmt.Sprintf("keyword %q", token),
					})
				}
				break
			}
		}
		if len(matches) >= opts.MaxFiles {
			break
		}
	}
	return matches
}

// semanticMatches queries the embedding index; unavailability or errors
// degrade to no contribution.
func (b *Builder) semanticMatches(ctx context.Context, projectID, prompt, versionID string, opts Options, previous map[string]string, selected map[string]struct{}, extraImports map[string][]string, stats *Stats) []RelevantFile {
	if b.index == nil || !b.index.Available() {
		return nil
	}
	start := time.Now()
	hits, err := b.index.SearchFiles(ctx, projectID, prompt, vector.SearchOptions{
		VersionID: versionID,
		Limit:     opts.MaxFiles,
		Threshold: b.cfg.SemanticThreshold,
	})
	stats.SearchLatency = time.Since(start)
	if err != nil {
		common.Logger().Warn("context: semantic search failed", "project", projectID, "error", err)
		return nil
	}
	matches := []RelevantFile{}
	for _, hit := range hits {
		if _, dup := selected[hit.FilePath]; dup {
			continue
		}
		content, exists := previous[hit.FilePath]
		if !exists {
			// Stale index entry for a file the snapshot no longer has.
			continue
		}
		if !opts.IncludeTests && isTestPath(hit.FilePath) {
			continue
		}
		selected[hit.FilePath] = struct{}{}
		if len(hit.Imports) > 0 {
			extraImports[hit.FilePath] = hit.Imports
		}
		matches = append(matches, RelevantFile{
			Path:      hit.FilePath,
			Content:   content,
			Relevance: float64(hit.Similarity),
			Reason:    "semantic",
		})
	}
	return matches
}

// contentFallback literal-searches file bodies for quoted substrings and
// capitalized phrases. Only runs when keyword and semantic retrieval both
// came back empty.
func (b *Builder) contentFallback(prompt string, previous map[string]string, opts Options, selected map[string]struct{}) []RelevantFile {
	phrases := searchPhrases(prompt)
	if len(phrases) == 0 || len(previous) == 0 {
		return nil
	}
	type scored struct {
		path  string
		score int
	}
	candidates := []scored{}
	for _, filePath := range sortedPaths(previous) {
		if !opts.IncludeTests && isTestPath(filePath) {
			continue
		}
		content := previous[filePath]
		lowerContent := strings.ToLower(content)
		score := 0
		for _, phrase := range phrases {
			if strings.Contains(content, phrase) {
				score += 100
			} else if strings.Contains(lowerContent, strings.ToLower(phrase)) {
				score += 50
			}
		}
		if score > 0 {
			candidates = append(candidates, scored{path: filePath, score: score})
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})
	if len(candidates) > opts.MaxFiles {
		candidates = candidates[:opts.MaxFiles]
	}
	matches := make([]RelevantFile, 0, len(candidates))
	for _, candidate := range candidates {
		if _, dup := selected[candidate.path]; dup {
			continue
		}
		selected[candidate.path] = struct{}{}
		matches = append(matches, RelevantFile{
			Path:      candidate.path,
			Content:   previous[candidate.path],
			Relevance: b.cfg.ContentRelevance,
			Reason:    "content",
		})
	}
	return matches
}

// configPatterns match project manifest and framework configuration files
// that are always included regardless of relevance.
var configPatterns = []string{
	"package.json", "tsconfig.json", "tsconfig.app.json", "angular.json",
	"next.config.js", "next.config.mjs", "next.config.ts",
	"vite.config.ts", "vite.config.js",
	"tailwind.config.js", "tailwind.config.ts", "postcss.config.js",
	".env.example", "readme.md",
}

func configFiles(previous map[string]string, selected map[string]struct{}) []ContextFile {
	files := []ContextFile{}
	for _, filePath := range sortedPaths(previous) {
		base := strings.ToLower(path.Base(filePath))
		matched := false
		for _, pattern := range configPatterns {
			if base == pattern {
				matched = true
				break
			}
		}
		if !matched {
			continue
		}
		if _, dup := selected[filePath]; dup {
			continue
		}
		selected[filePath] = struct{}{}
		files = append(files, ContextFile{Path: filePath, Content: previous[filePath]})
	}
	return files
}

func sortedPaths(m map[string]string) []string {
	paths := make([]string, 0, len(m))
	for p := range m {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

func summarize(rc *RetrievalContext) string {
	return fmt.Sprintf("%d relevant, %d dependency, %d config files from a %d-file snapshot; %d conversation turns; ~%d chars",
		len(rc.RelevantFiles), len(rc.DependencyFiles), len(rc.ConfigFiles),
		rc.Stats.PreviousCount, len(rc.Conversation), rc.Stats.EstimatedChars)
}

// Render flattens the context into the text handed to the generation
// collaborator.
func (rc *RetrievalContext) Render() string {
	if rc == nil {
		return ""
	}
	var sb strings.Builder
	if len(rc.Conversation) > 0 {
		sb.WriteString("## Conversation\n")
		for _, msg := range rc.Conversation {
			sb.WriteString(msg.Role)
			sb.WriteString(": ")
			sb.WriteString(msg.Content)
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}
	writeFiles := func(header string, files []ContextFile) {
		if len(files) == 0 {
			return
		}
		sb.WriteString(header)
		sb.WriteString("\n")
		for _, file := range files {
			sb.WriteString("### ")
			sb.WriteString(file.Path)
			sb.WriteString("\n```\n")
			sb.WriteString(file.Content)
			sb.WriteString("\n```\n")
		}
		sb.WriteString("\n")
	}
	if len(rc.RelevantFiles) > 0 {
		sb.WriteString("## Relevant files\n")
		for _, file := range rc.RelevantFiles {
			sb.WriteString(fmt.Sprintf("### %s (relevance %.2f, %s)\n```\n%s\n```\n", file.Path, file.Relevance, file.Reason, file.Content))
		}
		sb.WriteString("\n")
	}
	writeFiles("## Dependencies", rc.DependencyFiles)
	writeFiles("## Configuration", rc.ConfigFiles)
	if len(rc.PreviousFiles) > 0 {
		sb.WriteString("## Project file listing\n")
		for _, filePath := range sortedPaths(rc.PreviousFiles) {
			sb.WriteString("- ")
			sb.WriteString(filePath)
			sb.WriteString("\n")
		}
	}
	return sb.String()
}
