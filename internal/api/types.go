// File path: internal/api/types.go
package api

import (
	"github.com/jmcasey/codeloom/internal/version"
)

type iterationRequest struct {
	Prompt         string `json:"prompt"`
	Apply          bool   `json:"apply"`
	Stream         bool   `json:"stream"`
	IncludeTests   bool   `json:"include_tests"`
	ForeignProject bool   `json:"foreign_project"`
	MessageLimit   int    `json:"message_limit"`
	MaxFiles       int    `json:"max_files"`
}

type iterationResponse struct {
	VersionID     string            `json:"version_id,omitempty"`
	VersionNumber int               `json:"version_number,omitempty"`
	Intent        string            `json:"intent"`
	ModifiedFiles map[string]string `json:"modified_files,omitempty"`
	NewFiles      map[string]string `json:"new_files,omitempty"`
	DeletedFiles  []string          `json:"deleted_files,omitempty"`
	Description   string            `json:"description,omitempty"`
	Answer        string            `json:"answer,omitempty"`
	Warnings      []string          `json:"warnings,omitempty"`
}

// versionSummary is the listing shape: everything except file contents.
type versionSummary struct {
	ID              string `json:"id"`
	ProjectID       string `json:"project_id"`
	VersionNumber   int    `json:"version_number"`
	Name            string `json:"name,omitempty"`
	Description     string `json:"description,omitempty"`
	CommandType     string `json:"command_type,omitempty"`
	Prompt          string `json:"prompt,omitempty"`
	ParentVersionID string `json:"parent_version_id,omitempty"`
	Status          string `json:"status"`
	FileCount       int    `json:"file_count"`
	CreatedAt       string `json:"created_at"`
}

func summarize(v version.Version) versionSummary {
	return versionSummary{
		ID:              v.ID,
		ProjectID:       v.ProjectID,
		VersionNumber:   v.VersionNumber,
		Name:            v.Name,
		Description:     v.Description,
		CommandType:     v.CommandType,
		Prompt:          v.Prompt,
		ParentVersionID: v.ParentVersionID,
		Status:          string(v.Status),
		FileCount:       len(v.Files),
		CreatedAt:       v.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	}
}

func summarizeAll(versions []version.Version) []versionSummary {
	summaries := make([]versionSummary, 0, len(versions))
	for _, v := range versions {
		summaries = append(summaries, summarize(v))
	}
	return summaries
}
