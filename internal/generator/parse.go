// File path: internal/generator/parse.go
package generator

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedOutput marks model output that could not be parsed into the
// expected structure. It is terminal for the calling iteration.
var ErrMalformedOutput = errors.New("malformed generation output")

// stripFences removes a wrapping markdown code fence, with or without a
// language tag, and falls back to the outermost JSON object when the model
// surrounds the payload with prose.
func stripFences(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```")
		if idx := strings.IndexByte(trimmed, '\n'); idx >= 0 {
			first := strings.TrimSpace(trimmed[:idx])
			if first == "" || isLanguageTag(first) {
				trimmed = trimmed[idx+1:]
			}
		}
		if idx := strings.LastIndex(trimmed, "```"); idx >= 0 {
			trimmed = trimmed[:idx]
		}
		trimmed = strings.TrimSpace(trimmed)
	}
	if !strings.HasPrefix(trimmed, "{") {
		start := strings.IndexByte(trimmed, '{')
		end := strings.LastIndexByte(trimmed, '}')
		if start >= 0 && end > start {
			trimmed = trimmed[start : end+1]
		}
	}
	return trimmed
}

func isLanguageTag(s string) bool {
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return false
		}
	}
	return len(s) <= 16
}

// ParseChangeSet decodes a strict-JSON change set from raw model output.
func ParseChangeSet(raw string) (*ChangeSet, error) {
	payload := stripFences(raw)
	if payload == "" {
		return nil, fmt.Errorf("%w: empty response", ErrMalformedOutput)
	}
	var set ChangeSet
	if err := json.Unmarshal([]byte(payload), &set); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	if set.ModifiedFiles == nil {
		set.ModifiedFiles = map[string]string{}
	}
	if set.NewFiles == nil {
		set.NewFiles = map[string]string{}
	}
	for path := range set.ModifiedFiles {
		if strings.TrimSpace(path) == "" {
			return nil, fmt.Errorf("%w: blank path in modifiedFiles", ErrMalformedOutput)
		}
	}
	for path := range set.NewFiles {
		if strings.TrimSpace(path) == "" {
			return nil, fmt.Errorf("%w: blank path in newFiles", ErrMalformedOutput)
		}
	}
	for _, path := range set.DeletedFiles {
		if strings.TrimSpace(path) == "" {
			return nil, fmt.Errorf("%w: blank path in deletedFiles", ErrMalformedOutput)
		}
	}
	return &set, nil
}

// ParseAnswer decodes an answer-only response. Unstructured output is
// accepted verbatim since there is no file payload to corrupt.
func ParseAnswer(raw string) (*Answer, error) {
	payload := stripFences(raw)
	if payload == "" {
		return nil, fmt.Errorf("%w: empty response", ErrMalformedOutput)
	}
	if strings.HasPrefix(payload, "{") {
		var answer Answer
		if err := json.Unmarshal([]byte(payload), &answer); err == nil && answer.Answer != "" {
			return &answer, nil
		}
	}
	return &Answer{Answer: strings.TrimSpace(raw)}, nil
}
