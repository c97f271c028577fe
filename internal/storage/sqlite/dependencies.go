package sqlite

import (
	"context"
	"fmt"

	"tracker/internal/models"
)

// InsertDependency adds an edge. It reports false when the edge already existed.
func (s *Store) InsertDependency(ctx context.Context, taskID, blockerID int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO task_dependencies(task_id, blocker_id, created_at) VALUES(?, ?, ?)`,
		taskID, blockerID, toMicros(s.now()))
	if err != nil {
		return false, fmt.Errorf("insert dependency: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// DeleteDependency removes an edge. It reports false when there was nothing to remove.
func (s *Store) DeleteDependency(ctx context.Context, taskID, blockerID int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM task_dependencies WHERE task_id = ? AND blocker_id = ?`, taskID, blockerID)
	if err != nil {
		return false, fmt.Errorf("delete dependency: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// ListBlockerIDs returns the ids taskID depends on.
func (s *Store) ListBlockerIDs(ctx context.Context, taskID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT blocker_id FROM task_dependencies WHERE task_id = ? ORDER BY blocker_id`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list blocker ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan blocker id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListBlockers returns every blocker of taskID. With openOnly, blockers already in their
// workspace's done status are left out.
func (s *Store) ListBlockers(ctx context.Context, taskID int64, openOnly bool) ([]models.TaskSummary, error) {
	query := `SELECT b.id, b.title, b.status FROM task_dependencies d
        JOIN tasks b ON b.id = d.blocker_id
        JOIN workspaces w ON w.id = b.workspace_id
        WHERE d.task_id = ?`
	if openOnly {
		query += ` AND b.status <> w.done_status`
	}
	query += ` ORDER BY b.id`

	rows, err := s.db.QueryContext(ctx, query, taskID)
	if err != nil {
		return nil, fmt.Errorf("list blockers: %w", err)
	}
	defer rows.Close()

	var out []models.TaskSummary
	for rows.Next() {
		var b models.TaskSummary
		if err := rows.Scan(&b.ID, &b.Title, &b.Status); err != nil {
			return nil, fmt.Errorf("scan blocker: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
