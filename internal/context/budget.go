// File path: internal/context/budget.go
package context

import (
	"sort"
	"unicode/utf8"

	"github.com/jmcasey/codeloom/internal/common/telemetry"
	"github.com/jmcasey/codeloom/internal/memory"
)

// poolBudgets is the character allowance per pool, derived from the total
// budget and the configured shares. The unallocated remainder is margin.
type poolBudgets struct {
	conversation int
	config       int
	relevance    int
	dependency   int
}

func (c Config) allocate() poolBudgets {
	return poolBudgets{
		conversation: int(float64(c.TotalBudget) * c.ConversationShare),
		config:       int(float64(c.TotalBudget) * c.ConfigShare),
		relevance:    int(float64(c.TotalBudget) * c.RelevanceShare),
		dependency:   int(float64(c.TotalBudget) * c.DependencyShare),
	}
}

// fitMessages keeps the most recent messages that fit the budget, dropping
// oldest first, and returns them in chronological order.
func fitMessages(messages []memory.Message, budget int) ([]memory.Message, bool) {
	if budget <= 0 || len(messages) == 0 {
		return nil, len(messages) > 0
	}
	used := 0
	start := len(messages)
	for i := len(messages) - 1; i >= 0; i-- {
		cost := len(messages[i].Content)
		if used+cost > budget {
			break
		}
		used += cost
		start = i
	}
	return messages[start:], start > 0
}

// fitFiles fills the pool greedily in the given order, skipping files that
// do not fit. A file is truncated only when the pool would otherwise be
// empty, so every non-empty pool keeps at least one entry.
func fitFiles(files []ContextFile, budget int) (kept []ContextFile, truncated bool, dropped int) {
	if budget <= 0 {
		return nil, false, len(files)
	}
	used := 0
	for _, file := range files {
		cost := len(file.Content)
		if used+cost > budget {
			if len(kept) == 0 && budget > 0 {
				clipped := clipRunes(file.Content, budget)
				kept = append(kept, ContextFile{Path: file.Path, Content: clipped})
				used = len(clipped)
				truncated = true
				continue
			}
			dropped++
			continue
		}
		used += cost
		kept = append(kept, file)
	}
	return kept, truncated, dropped
}

// fitRelevant sorts by score descending before the greedy fill, so the
// highest-value file always survives even when it alone must be truncated.
func fitRelevant(files []RelevantFile, budget int) (kept []RelevantFile, truncated bool, dropped int) {
	ordered := append([]RelevantFile(nil), files...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Relevance > ordered[j].Relevance
	})
	if budget <= 0 {
		return nil, false, len(ordered)
	}
	used := 0
	for _, file := range ordered {
		cost := len(file.Content)
		if used+cost > budget {
			if len(kept) == 0 {
				clipped := file
				clipped.Content = clipRunes(file.Content, budget)
				kept = append(kept, clipped)
				used = len(clipped.Content)
				truncated = true
				continue
			}
			dropped++
			continue
		}
		used += cost
		kept = append(kept, file)
	}
	return kept, truncated, dropped
}

// applyBudget truncates every pool independently and records which pools
// lost content.
func applyBudget(cfg Config, rc *RetrievalContext) {
	budgets := cfg.allocate()

	var convTruncated bool
	rc.Conversation, convTruncated = fitMessages(rc.Conversation, budgets.conversation)
	if convTruncated {
		rc.Stats.TruncatedPools = append(rc.Stats.TruncatedPools, "conversation")
		telemetry.RecordPoolTruncation("conversation", 1, 0)
	}

	var truncated bool
	var dropped int
	rc.ConfigFiles, truncated, dropped = fitFiles(rc.ConfigFiles, budgets.config)
	if truncated || dropped > 0 {
		rc.Stats.TruncatedPools = append(rc.Stats.TruncatedPools, "config")
		telemetry.RecordPoolTruncation("config", boolToInt(truncated), dropped)
	}

	rc.RelevantFiles, truncated, dropped = fitRelevant(rc.RelevantFiles, budgets.relevance)
	if truncated || dropped > 0 {
		rc.Stats.TruncatedPools = append(rc.Stats.TruncatedPools, "relevance")
		telemetry.RecordPoolTruncation("relevance", boolToInt(truncated), dropped)
	}

	rc.DependencyFiles, truncated, dropped = fitFiles(rc.DependencyFiles, budgets.dependency)
	if truncated || dropped > 0 {
		rc.Stats.TruncatedPools = append(rc.Stats.TruncatedPools, "dependency")
		telemetry.RecordPoolTruncation("dependency", boolToInt(truncated), dropped)
	}

	total := 0
	for _, msg := range rc.Conversation {
		total += len(msg.Content)
	}
	for _, file := range rc.ConfigFiles {
		total += len(file.Content)
	}
	for _, file := range rc.RelevantFiles {
		total += len(file.Content)
	}
	for _, file := range rc.DependencyFiles {
		total += len(file.Content)
	}
	rc.Stats.EstimatedChars = total
}

// clipRunes cuts s to at most limit bytes without splitting a UTF-8 rune.
func clipRunes(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	if len(s) <= limit {
		return s
	}
	for limit > 0 && !utf8.RuneStart(s[limit]) {
		limit--
	}
	return s[:limit]
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
