// File path: internal/context/tokenize.go
package context

import (
	"regexp"
	"strings"
)

var stopWords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "with": {}, "that": {}, "this": {},
	"from": {}, "into": {}, "make": {}, "change": {}, "update": {},
	"please": {}, "add": {}, "new": {}, "file": {}, "called": {},
	"create": {}, "delete": {}, "remove": {}, "should": {}, "would": {},
	"could": {}, "can": {}, "will": {}, "all": {}, "its": {}, "are": {},
	"has": {}, "have": {}, "use": {}, "using": {}, "when": {}, "where": {},
	"what": {}, "how": {}, "why": {}, "also": {}, "more": {}, "some": {},
}

var tokenPattern = regexp.MustCompile(`[a-z0-9]+`)

// tokenize lowercases the prompt and returns de-duplicated tokens of three
// or more characters with stop words removed.
func tokenize(prompt string) []string {
	seen := make(map[string]struct{})
	tokens := []string{}
	for _, token := range tokenPattern.FindAllString(strings.ToLower(prompt), -1) {
		if len(token) < 3 {
			continue
		}
		if _, stop := stopWords[token]; stop {
			continue
		}
		if _, dup := seen[token]; dup {
			continue
		}
		seen[token] = struct{}{}
		tokens = append(tokens, token)
	}
	return tokens
}

var (
	quotedPattern = regexp.MustCompile(`"([^"]+)"|'([^']+)'|` + "`([^`]+)`")
	// multi-word capitalized phrases like "Login Form" or "User Profile Page"
	phrasePattern = regexp.MustCompile(`\b[A-Z][a-zA-Z]+(?:\s+[A-Z][a-zA-Z]+)+\b`)
)

// searchPhrases extracts quoted substrings and capitalized phrases for the
// literal content-search fallback.
func searchPhrases(prompt string) []string {
	seen := make(map[string]struct{})
	phrases := []string{}
	add := func(value string) {
		value = strings.TrimSpace(value)
		if len(value) < 3 {
			return
		}
		if _, dup := seen[value]; dup {
			return
		}
		seen[value] = struct{}{}
		phrases = append(phrases, value)
	}
	for _, match := range quotedPattern.FindAllStringSubmatch(prompt, -1) {
		for _, group := range match[1:] {
			if group != "" {
				add(group)
			}
		}
	}
	for _, match := range phrasePattern.FindAllString(prompt, -1) {
		add(match)
	}
	return phrases
}

// isTestPath reports whether a path looks like a test artifact.
func isTestPath(path string) bool {
	lower := strings.ToLower(path)
	return strings.Contains(lower, ".spec.") ||
		strings.Contains(lower, ".test.") ||
		strings.HasSuffix(lower, "_test.go") ||
		strings.Contains(lower, "/__tests__/")
}
