// File path: internal/version/types.go
package version

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Status tracks the lifecycle of a version. Transitions only move forward:
// generating to complete or generating to failed.
type Status string

const (
	StatusGenerating Status = "generating"
	StatusComplete   Status = "complete"
	StatusFailed     Status = "failed"
)

// Valid reports whether the status is one of the known lifecycle states.
func (s Status) Valid() bool {
	switch s {
	case StatusGenerating, StatusComplete, StatusFailed:
		return true
	}
	return false
}

// Snapshot is a complete path to content mapping for one version. A version
// always carries the full snapshot, never a diff, so it can be materialized
// without consulting ancestors.
type Snapshot map[string]string

// Clone returns an independent copy of the snapshot.
func (s Snapshot) Clone() Snapshot {
	if s == nil {
		return nil
	}
	out := make(Snapshot, len(s))
	for path, content := range s {
		out[path] = content
	}
	return out
}

// Project groups a sequence of versions.
type Project struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Version is one immutable snapshot of a project.
type Version struct {
	ID              string            `json:"id"`
	ProjectID       string            `json:"project_id"`
	VersionNumber   int               `json:"version_number"`
	Name            string            `json:"name,omitempty"`
	Description     string            `json:"description,omitempty"`
	Files           Snapshot          `json:"files"`
	CommandType     string            `json:"command_type,omitempty"`
	Prompt          string            `json:"prompt,omitempty"`
	ParentVersionID string            `json:"parent_version_id,omitempty"`
	Status          Status            `json:"status"`
	Metadata        map[string]string `json:"metadata,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// Update carries a partial mutation for UpdateVersion. Nil fields are left
// untouched.
type Update struct {
	Name        *string
	Description *string
	Files       Snapshot
	Status      *Status
	Metadata    map[string]string
}

// ChangeKind classifies one path in a version comparison.
type ChangeKind string

const (
	ChangeAdded     ChangeKind = "added"
	ChangeModified  ChangeKind = "modified"
	ChangeDeleted   ChangeKind = "deleted"
	ChangeUnchanged ChangeKind = "unchanged"
)

// Diff maps each path present in either version to its classification.
type Diff map[string]ChangeKind

// versionRow is the sqlx scan target; snapshot and metadata travel as JSON
// text columns.
type versionRow struct {
	ID              string         `db:"id"`
	ProjectID       string         `db:"project_id"`
	VersionNumber   int            `db:"version_number"`
	Name            string         `db:"name"`
	Description     string         `db:"description"`
	Files           string         `db:"files"`
	CommandType     string         `db:"command_type"`
	Prompt          string         `db:"prompt"`
	ParentVersionID sql.NullString `db:"parent_version_id"`
	Status          string         `db:"status"`
	Metadata        sql.NullString `db:"metadata"`
	CreatedAt       time.Time      `db:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at"`
}

func (r versionRow) toVersion() (Version, error) {
	v := Version{
		ID:            r.ID,
		ProjectID:     r.ProjectID,
		VersionNumber: r.VersionNumber,
		Name:          r.Name,
		Description:   r.Description,
		CommandType:   r.CommandType,
		Prompt:        r.Prompt,
		Status:        Status(r.Status),
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
	if r.ParentVersionID.Valid {
		v.ParentVersionID = r.ParentVersionID.String
	}
	files := Snapshot{}
	if r.Files != "" {
		if err := json.Unmarshal([]byte(r.Files), &files); err != nil {
			return Version{}, fmt.Errorf("decode files for version %s: %w", r.ID, err)
		}
	}
	v.Files = files
	if r.Metadata.Valid && r.Metadata.String != "" {
		meta := map[string]string{}
		if err := json.Unmarshal([]byte(r.Metadata.String), &meta); err != nil {
			return Version{}, fmt.Errorf("decode metadata for version %s: %w", r.ID, err)
		}
		v.Metadata = meta
	}
	return v, nil
}

func encodeSnapshot(files Snapshot) (string, error) {
	if files == nil {
		files = Snapshot{}
	}
	data, err := json.Marshal(files)
	if err != nil {
		return "", fmt.Errorf("encode files: %w", err)
	}
	return string(data), nil
}

func encodeMetadata(meta map[string]string) (sql.NullString, error) {
	if len(meta) == 0 {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encode metadata: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}
