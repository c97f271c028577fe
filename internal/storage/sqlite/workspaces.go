package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"tracker/internal/models"
)

// CreateWorkspace persists a new workspace. An empty done status takes the default.
func (s *Store) CreateWorkspace(ctx context.Context, name, doneStatus string) (models.Workspace, error) {
	if strings.TrimSpace(name) == "" {
		return models.Workspace{}, models.Invalid("name", "workspace name must not be empty")
	}
	doneStatus = strings.TrimSpace(doneStatus)
	if doneStatus == "" {
		doneStatus = models.DefaultDoneStatus
	}

	res, err := s.db.ExecContext(ctx, `INSERT INTO workspaces(name, done_status, created_at) VALUES(?, ?, ?)`,
		strings.TrimSpace(name), doneStatus, toMicros(s.now()))
	if err != nil {
		return models.Workspace{}, fmt.Errorf("insert workspace: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return models.Workspace{}, fmt.Errorf("workspace id: %w", err)
	}
	return s.GetWorkspace(ctx, id)
}

// GetWorkspace fetches a single workspace by id.
func (s *Store) GetWorkspace(ctx context.Context, id int64) (models.Workspace, error) {
	var (
		w       models.Workspace
		created int64
	)
	err := s.db.QueryRowContext(ctx, `SELECT id, name, done_status, created_at FROM workspaces WHERE id = ?`, id).
		Scan(&w.ID, &w.Name, &w.DoneStatus, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Workspace{}, models.NotFoundf("workspace %d", id)
	}
	if err != nil {
		return models.Workspace{}, fmt.Errorf("get workspace: %w", err)
	}
	w.CreatedAt = fromMicros(created)
	return w, nil
}

// DoneStatus returns the terminal status of a workspace.
func (s *Store) DoneStatus(ctx context.Context, workspaceID int64) (string, error) {
	var status string
	err := s.db.QueryRowContext(ctx, `SELECT done_status FROM workspaces WHERE id = ?`, workspaceID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", models.NotFoundf("workspace %d", workspaceID)
	}
	if err != nil {
		return "", fmt.Errorf("get done status: %w", err)
	}
	return status, nil
}

// AddMember adds a user to a workspace. Adding an existing member is a no-op.
func (s *Store) AddMember(ctx context.Context, workspaceID, userID int64) error {
	if _, err := s.GetWorkspace(ctx, workspaceID); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO workspace_members(workspace_id, user_id, joined_at) VALUES(?, ?, ?)`,
		workspaceID, userID, toMicros(s.now()))
	if err != nil {
		return fmt.Errorf("insert member: %w", err)
	}
	return nil
}

// ListMemberIDs returns workspace member ids in ascending order.
func (s *Store) ListMemberIDs(ctx context.Context, workspaceID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT user_id FROM workspace_members WHERE workspace_id = ? ORDER BY user_id ASC`, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
