// File path: internal/classifier/patterns.go
package classifier

import "regexp"

// intentPattern pairs an intent with the regexes that signal it. Families
// are evaluated in order and the first match wins, so more specific intents
// sit ahead of the generic modify family. These are data tables on purpose;
// extending an intent means adding a row, not touching classify logic.
type intentPattern struct {
	intent     Intent
	newVersion bool
	patterns   []*regexp.Regexp
}

var intentPatterns = []intentPattern{
	{
		intent:     IntentScaffold,
		newVersion: true,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`\b(scaffold|bootstrap|set\s+up)\b.*\b(project|app|application|service)\b`),
			regexp.MustCompile(`\b(new|fresh)\s+(project|app|application|workspace)\b`),
			regexp.MustCompile(`\bgenerate\b.*\bnew\s+(service|module|app)\b`),
			regexp.MustCompile(`\bstart(ing)?\s+from\s+scratch\b`),
		},
	},
	{
		intent:     IntentDelete,
		newVersion: true,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`\b(delete|remove|drop|get\s+rid\s+of)\b.*\b(file|component|page|route|module|function|test)s?\b`),
			regexp.MustCompile(`\bremove\s+the\b`),
			regexp.MustCompile(`\bdelete\b`),
		},
	},
	{
		intent:     IntentCreate,
		newVersion: true,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`\b(create|add|make|build|write)\b.*\b(new|a|an)\b.*\b(file|component|page|route|module|service|endpoint|widget|form|test)s?\b`),
			regexp.MustCompile(`\bnew\s+file\s+called\b`),
			regexp.MustCompile(`\badd\s+(a|an|another)\b`),
			regexp.MustCompile(`\bimplement\b.*\bfrom\s+scratch\b`),
		},
	},
	{
		intent:     IntentRefactor,
		newVersion: true,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`\b(refactor|restructure|reorganize|clean\s+up|extract|split|inline)\b`),
			regexp.MustCompile(`\brename\b.*\b(everywhere|across|throughout)\b`),
			regexp.MustCompile(`\bmove\b.*\b(into|to)\b.*\b(folder|directory|package|module)\b`),
		},
	},
	{
		intent:     IntentExplain,
		newVersion: false,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`^\s*(what|why|how|where|when|which|who|does|do|is|are|can|could|should)\b`),
			regexp.MustCompile(`\bexplain\b`),
			regexp.MustCompile(`\bwhat\s+does\b.*\bdo\b`),
			regexp.MustCompile(`\?\s*$`),
		},
	},
	{
		intent:     IntentModify,
		newVersion: true,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`\b(change|update|modify|edit|fix|adjust|tweak|improve|replace|rename|style|restyle)\b`),
			regexp.MustCompile(`\bmake\s+(the|it)\b`),
			regexp.MustCompile(`\b(should|must)\s+(be|have|show|use)\b`),
		},
	},
}

// creationPhrases mark prompts that explicitly ask for brand-new files.
// Reconciliation's strict mode consults this before demoting new files.
var creationPhrases = []*regexp.Regexp{
	regexp.MustCompile(`\bnew\s+file\b`),
	regexp.MustCompile(`\bcreate\b.*\bfile\b`),
	regexp.MustCompile(`\badd\b.*\b(file|component|page|module)\b`),
	regexp.MustCompile(`\bfile\s+called\b`),
	regexp.MustCompile(`\bfrom\s+scratch\b`),
}

var entityPatterns = []*regexp.Regexp{
	regexp.MustCompile(`"([^"]+)"`),
	regexp.MustCompile(`'([^']+)'`),
	regexp.MustCompile("`([^`]+)`"),
	// filename-like tokens: dotted, optionally path-prefixed
	regexp.MustCompile(`\b([\w@./-]+\.\w{1,6})\b`),
}

// matchIntent tests the normalized prompt against the pattern families and
// returns the first match.
func matchIntent(normalized string) (intentPattern, bool) {
	for _, family := range intentPatterns {
		for _, re := range family.patterns {
			if re.MatchString(normalized) {
				return family, true
			}
		}
	}
	return intentPattern{}, false
}

// ExtractEntities lifts quoted fragments and filename-like tokens from the
// prompt, de-duplicated in first-seen order.
func ExtractEntities(prompt string) []string {
	seen := make(map[string]struct{})
	entities := []string{}
	for _, re := range entityPatterns {
		for _, match := range re.FindAllStringSubmatch(prompt, -1) {
			if len(match) < 2 {
				continue
			}
			value := match[1]
			if value == "" {
				continue
			}
			if _, ok := seen[value]; ok {
				continue
			}
			seen[value] = struct{}{}
			entities = append(entities, value)
		}
	}
	return entities
}

// MentionsFileCreation reports whether the prompt contains an explicit
// file-creation phrase.
func MentionsFileCreation(prompt string) bool {
	normalized := NormalizePrompt(prompt)
	for _, re := range creationPhrases {
		if re.MatchString(normalized) {
			return true
		}
	}
	return false
}
