// File path: internal/version/queries.go
package version

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jmcasey/codeloom/internal/common"
)

var (
	// ErrNotFound is returned when a requested version or project does not exist.
	ErrNotFound = errors.New("version not found")
	// ErrConflict is returned when a version number collides within a project.
	ErrConflict = errors.New("version number conflict")
	// ErrStatusFinal is returned when a completed or failed version is asked
	// to change status again.
	ErrStatusFinal = errors.New("version status is final")
)

// IsConflict reports whether err stems from the per-project version number
// uniqueness constraint.
func IsConflict(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrConflict) {
		return true
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// EnsureProject creates the project row if it does not exist yet.
func (s *Store) EnsureProject(ctx context.Context, projectID, name string) error {
	if s == nil || s.db == nil {
		return errors.New("version store not initialised")
	}
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return errors.New("project id required")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO projects(id, name) VALUES (?, ?)
                 ON CONFLICT(id) DO UPDATE SET updated_at = CURRENT_TIMESTAMP`,
		projectID, strings.TrimSpace(name))
	if err != nil {
		return fmt.Errorf("ensure project: %w", err)
	}
	return nil
}

// ListProjects returns all known projects ordered by identifier.
func (s *Store) ListProjects(ctx context.Context) ([]Project, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("version store not initialised")
	}
	projects := []Project{}
	if err := s.db.SelectContext(ctx, &projects, `SELECT * FROM projects ORDER BY id`); err != nil {
		return nil, fmt.Errorf("select projects: %w", err)
	}
	return projects, nil
}

// CreateVersion inserts a new version row. A missing ID is filled with a
// fresh UUID and a missing version number is allocated as max+1 for the
// project. A concurrent allocation race surfaces as ErrConflict.
func (s *Store) CreateVersion(ctx context.Context, v *Version) error {
	if s == nil || s.db == nil {
		return errors.New("version store not initialised")
	}
	if v == nil {
		return errors.New("version required")
	}
	if strings.TrimSpace(v.ProjectID) == "" {
		return errors.New("project id required")
	}
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	if !v.Status.Valid() {
		v.Status = StatusGenerating
	}
	if v.VersionNumber <= 0 {
		v.VersionNumber = s.NextVersionNumber(ctx, v.ProjectID)
	}
	files, err := encodeSnapshot(v.Files)
	if err != nil {
		return err
	}
	meta, err := encodeMetadata(v.Metadata)
	if err != nil {
		return err
	}
	parent := sql.NullString{}
	if strings.TrimSpace(v.ParentVersionID) != "" {
		parent = sql.NullString{String: v.ParentVersionID, Valid: true}
	}
	now := time.Now().UTC()
	v.CreatedAt = now
	v.UpdatedAt = now
	err = withTx(ctx, s.db, func(tx *sqlx.Tx) error {
		_, execErr := tx.ExecContext(ctx,
			`INSERT INTO versions(id, project_id, version_number, name, description, files,
                                command_type, prompt, parent_version_id, status, metadata, created_at, updated_at)
                         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			v.ID, v.ProjectID, v.VersionNumber, v.Name, v.Description, files,
			v.CommandType, v.Prompt, parent, string(v.Status), meta, now, now)
		if execErr != nil {
			return execErr
		}
		return recordAudit(ctx, tx, v.ProjectID, v.ID, "version_created",
			fmt.Sprintf("number=%d status=%s", v.VersionNumber, v.Status))
	})
	if err != nil {
		if IsConflict(err) {
			return fmt.Errorf("create version %d for %s: %w", v.VersionNumber, v.ProjectID, ErrConflict)
		}
		return fmt.Errorf("create version: %w", err)
	}
	return nil
}

// GetVersion loads a single version by identifier.
func (s *Store) GetVersion(ctx context.Context, id string) (*Version, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("version store not initialised")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, errors.New("version id required")
	}
	var row versionRow
	if err := s.db.GetContext(ctx, &row, `SELECT * FROM versions WHERE id = ?`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("select version: %w", err)
	}
	v, err := row.toVersion()
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// GetLatestVersion returns the project's complete version with the highest
// number, or nil when the project has no complete version yet.
func (s *Store) GetLatestVersion(ctx context.Context, projectID string) (*Version, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("version store not initialised")
	}
	var row versionRow
	err := s.db.GetContext(ctx, &row,
		`SELECT * FROM versions WHERE project_id = ? AND status = ?
                 ORDER BY version_number DESC LIMIT 1`,
		strings.TrimSpace(projectID), string(StatusComplete))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select latest version: %w", err)
	}
	v, err := row.toVersion()
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// NextVersionNumber returns max+1 across all versions of the project, or 1
// when none exist. Read failures degrade to 1 with a warning so a fresh
// project is never blocked.
func (s *Store) NextVersionNumber(ctx context.Context, projectID string) int {
	if s == nil || s.db == nil {
		return 1
	}
	var max sql.NullInt64
	err := s.db.GetContext(ctx, &max,
		`SELECT MAX(version_number) FROM versions WHERE project_id = ?`,
		strings.TrimSpace(projectID))
	if err != nil {
		common.Logger().Warn("version: next number lookup failed", "project", projectID, "error", err)
		return 1
	}
	if !max.Valid {
		return 1
	}
	return int(max.Int64) + 1
}

// VersionsForProject lists versions for a project ordered by number.
func (s *Store) VersionsForProject(ctx context.Context, projectID string) ([]Version, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("version store not initialised")
	}
	rows := []versionRow{}
	if err := s.db.SelectContext(ctx, &rows,
		`SELECT * FROM versions WHERE project_id = ? ORDER BY version_number`,
		strings.TrimSpace(projectID)); err != nil {
		return nil, fmt.Errorf("select versions: %w", err)
	}
	versions := make([]Version, 0, len(rows))
	for _, row := range rows {
		v, err := row.toVersion()
		if err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, nil
}

// UpdateVersion applies a partial update. Status transitions only move
// forward: once complete or failed the status can no longer change.
func (s *Store) UpdateVersion(ctx context.Context, id string, update Update) (*Version, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("version store not initialised")
	}
	current, err := s.GetVersion(ctx, id)
	if err != nil {
		return nil, err
	}
	if update.Status != nil && *update.Status != current.Status {
		if current.Status != StatusGenerating {
			return nil, fmt.Errorf("update version %s: %w", id, ErrStatusFinal)
		}
		if !update.Status.Valid() || *update.Status == StatusGenerating {
			return nil, fmt.Errorf("update version %s: invalid status transition %s -> %s", id, current.Status, *update.Status)
		}
	}

	sets := []string{"updated_at = ?"}
	args := []interface{}{time.Now().UTC()}
	if update.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *update.Name)
	}
	if update.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, *update.Description)
	}
	if update.Files != nil {
		files, err := encodeSnapshot(update.Files)
		if err != nil {
			return nil, err
		}
		sets = append(sets, "files = ?")
		args = append(args, files)
	}
	if update.Metadata != nil {
		meta, err := encodeMetadata(update.Metadata)
		if err != nil {
			return nil, err
		}
		sets = append(sets, "metadata = ?")
		args = append(args, meta)
	}
	if update.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*update.Status))
	}
	args = append(args, id)

	err = withTx(ctx, s.db, func(tx *sqlx.Tx) error {
		if _, execErr := tx.ExecContext(ctx,
			fmt.Sprintf(`UPDATE versions SET %s WHERE id = ?`, strings.Join(sets, ", ")), args...); execErr != nil {
			return execErr
		}
		if update.Status != nil && *update.Status != current.Status {
			return recordAudit(ctx, tx, current.ProjectID, id, "status_changed",
				fmt.Sprintf("%s -> %s", current.Status, *update.Status))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("update version: %w", err)
	}
	return s.GetVersion(ctx, id)
}

// VersionHistory walks parent links from the given version to the root and
// returns the chain oldest first. A defensive cycle guard stops the walk if
// a parent repeats.
func (s *Store) VersionHistory(ctx context.Context, versionID string) ([]Version, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("version store not initialised")
	}
	seen := make(map[string]struct{})
	chain := []Version{}
	id := strings.TrimSpace(versionID)
	for id != "" {
		if _, ok := seen[id]; ok {
			common.Logger().Warn("version: history cycle detected", "version", id)
			break
		}
		seen[id] = struct{}{}
		v, err := s.GetVersion(ctx, id)
		if err != nil {
			return nil, err
		}
		chain = append(chain, *v)
		id = v.ParentVersionID
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}
