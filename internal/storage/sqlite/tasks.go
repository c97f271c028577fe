package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"tracker/internal/models"
)

const taskColumns = `id, workspace_id, space_id, list_id, title, description, status, priority, due_date,
        assignee_ids, tags, custom_fields, position, created_by, version, created_at, updated_at`

// TaskFilter narrows ListTasks. Zero values do not filter.
type TaskFilter struct {
	WorkspaceID int64
	SpaceID     *int64
	ListID      *int64
	OpenOnly    bool
}

func scanTask(row scanner) (models.Task, error) {
	var (
		t                          models.Task
		spaceID, listID, createdBy sql.NullInt64
		dueDate                    sql.NullInt64
		assignees, tags, custom    string
		createdAt, updatedAt       int64
	)
	if err := row.Scan(&t.ID, &t.WorkspaceID, &spaceID, &listID, &t.Title, &t.Description, &t.Status, &t.Priority, &dueDate,
		&assignees, &tags, &custom, &t.Position, &createdBy, &t.Version, &createdAt, &updatedAt); err != nil {
		return models.Task{}, err
	}
	t.SpaceID = intPtr(spaceID)
	t.ListID = intPtr(listID)
	t.CreatedBy = intPtr(createdBy)
	t.DueDate = timePtr(dueDate)
	t.CreatedAt = fromMicros(createdAt)
	t.UpdatedAt = fromMicros(updatedAt)
	if err := json.Unmarshal([]byte(assignees), &t.AssigneeIDs); err != nil {
		return models.Task{}, fmt.Errorf("decode assignees: %w", err)
	}
	if err := json.Unmarshal([]byte(tags), &t.Tags); err != nil {
		return models.Task{}, fmt.Errorf("decode tags: %w", err)
	}
	if err := json.Unmarshal([]byte(custom), &t.CustomFields); err != nil {
		return models.Task{}, fmt.Errorf("decode custom fields: %w", err)
	}
	if t.AssigneeIDs == nil {
		t.AssigneeIDs = []int64{}
	}
	if t.Tags == nil {
		t.Tags = []string{}
	}
	if t.CustomFields == nil {
		t.CustomFields = map[string]any{}
	}
	return t, nil
}

// CreateTask inserts a new task at version 1.
func (s *Store) CreateTask(ctx context.Context, nt models.NewTask) (models.Task, error) {
	if strings.TrimSpace(nt.Title) == "" {
		return models.Task{}, models.Invalid("title", "task title must not be empty")
	}
	if _, ok := models.ValidTaskPriorities[nt.Priority]; !ok {
		return models.Task{}, models.Invalid("priority", "unknown priority %q", nt.Priority)
	}
	if strings.TrimSpace(nt.Status) == "" {
		nt.Status = "todo"
	}
	if _, err := s.GetWorkspace(ctx, nt.WorkspaceID); err != nil {
		return models.Task{}, err
	}

	assignees, err := encodeJSON(nt.AssigneeIDs, "[]")
	if err != nil {
		return models.Task{}, fmt.Errorf("encode assignees: %w", err)
	}
	tags, err := encodeJSON(nt.Tags, "[]")
	if err != nil {
		return models.Task{}, fmt.Errorf("encode tags: %w", err)
	}
	custom, err := encodeJSON(nt.CustomFields, "{}")
	if err != nil {
		return models.Task{}, fmt.Errorf("encode custom fields: %w", err)
	}

	pos, err := s.nextPosition(ctx, s.db, nt.WorkspaceID, nt.ListID, nt.Status)
	if err != nil {
		return models.Task{}, err
	}

	now := toMicros(s.now())
	res, err := s.db.ExecContext(ctx, `INSERT INTO tasks(workspace_id, space_id, list_id, title, description, status, priority, due_date,
        assignee_ids, tags, custom_fields, position, created_by, version, created_at, updated_at)
        VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)`,
		nt.WorkspaceID, nullInt(nt.SpaceID), nullInt(nt.ListID), strings.TrimSpace(nt.Title), strings.TrimSpace(nt.Description),
		nt.Status, nt.Priority, nullMicros(nt.DueDate), assignees, tags, custom, pos, nullInt(nt.CreatedBy), now, now)
	if err != nil {
		return models.Task{}, fmt.Errorf("insert task: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return models.Task{}, fmt.Errorf("task id: %w", err)
	}
	return s.GetTask(ctx, id)
}

// GetTask retrieves a task by id.
func (s *Store) GetTask(ctx context.Context, id int64) (models.Task, error) {
	return getTask(ctx, s.db, id)
}

func getTask(ctx context.Context, q queryer, id int64) (models.Task, error) {
	t, err := scanTask(q.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Task{}, models.NotFoundf("task %d", id)
	}
	if err != nil {
		return models.Task{}, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

// ListTasks returns tasks matching the filter ordered by status, position and id.
func (s *Store) ListTasks(ctx context.Context, f TaskFilter) ([]models.Task, error) {
	query := `SELECT ` + prefixed("t", taskColumns) + ` FROM tasks t JOIN workspaces w ON w.id = t.workspace_id WHERE t.workspace_id = ?`
	args := []any{f.WorkspaceID}
	if f.SpaceID != nil {
		query += ` AND t.space_id = ?`
		args = append(args, *f.SpaceID)
	}
	if f.ListID != nil {
		query += ` AND t.list_id = ?`
		args = append(args, *f.ListID)
	}
	if f.OpenOnly {
		query += ` AND t.status <> w.done_status`
	}
	query += ` ORDER BY t.status, t.position, t.id`
	return s.queryTasks(ctx, query, args...)
}

// ListOpenTasks returns the tasks of a workspace that are not done, optionally
// narrowed to a space and a list.
func (s *Store) ListOpenTasks(ctx context.Context, workspaceID int64, spaceID, listID *int64) ([]models.Task, error) {
	return s.ListTasks(ctx, TaskFilter{WorkspaceID: workspaceID, SpaceID: spaceID, ListID: listID, OpenOnly: true})
}

// ListTasksDueBetween returns open tasks whose due date lies in (from, to].
func (s *Store) ListTasksDueBetween(ctx context.Context, from, to time.Time) ([]models.Task, error) {
	return s.queryTasks(ctx, `SELECT `+prefixed("t", taskColumns)+` FROM tasks t JOIN workspaces w ON w.id = t.workspace_id
        WHERE t.due_date IS NOT NULL AND t.due_date > ? AND t.due_date <= ? AND t.status <> w.done_status
        ORDER BY t.due_date, t.id`, toMicros(from), toMicros(to))
}

func (s *Store) queryTasks(ctx context.Context, query string, args ...any) ([]models.Task, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []models.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// CompareAndSwapTask writes next only if the stored version still equals expectedVersion.
// The stored version becomes expectedVersion+1 and updated_at takes next.UpdatedAt.
// It returns models.ErrStaleVersion when another writer got there first.
func (s *Store) CompareAndSwapTask(ctx context.Context, next models.Task, expectedVersion int64) (models.Task, error) {
	if err := writeTask(ctx, s.db, next, expectedVersion); err != nil {
		return models.Task{}, err
	}
	return s.GetTask(ctx, next.ID)
}

// BulkUpdateTasks applies mutate to every id inside one transaction.
// Any lookup, mutate or write failure rolls back the whole batch.
func (s *Store) BulkUpdateTasks(ctx context.Context, ids []int64, mutate func(models.Task) (models.Task, error)) ([]models.TaskWrite, error) {
	writes := make([]models.TaskWrite, 0, len(ids))
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		for _, id := range ids {
			before, err := getTask(ctx, tx, id)
			if err != nil {
				return err
			}
			next, err := mutate(before)
			if err != nil {
				return fmt.Errorf("task %d: %w", id, err)
			}
			next.ID = before.ID
			if err := writeTask(ctx, tx, next, before.Version); err != nil {
				return fmt.Errorf("task %d: %w", id, err)
			}
			after, err := getTask(ctx, tx, id)
			if err != nil {
				return err
			}
			writes = append(writes, models.TaskWrite{Before: before, After: after})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return writes, nil
}

func writeTask(ctx context.Context, q queryer, next models.Task, expectedVersion int64) error {
	assignees, err := encodeJSON(next.AssigneeIDs, "[]")
	if err != nil {
		return fmt.Errorf("encode assignees: %w", err)
	}
	tags, err := encodeJSON(next.Tags, "[]")
	if err != nil {
		return fmt.Errorf("encode tags: %w", err)
	}
	custom, err := encodeJSON(next.CustomFields, "{}")
	if err != nil {
		return fmt.Errorf("encode custom fields: %w", err)
	}

	res, err := q.ExecContext(ctx, `UPDATE tasks SET space_id = ?, list_id = ?, title = ?, description = ?, status = ?, priority = ?,
        due_date = ?, assignee_ids = ?, tags = ?, custom_fields = ?, position = ?, version = version + 1, updated_at = ?
        WHERE id = ? AND version = ?`,
		nullInt(next.SpaceID), nullInt(next.ListID), next.Title, next.Description, next.Status, next.Priority,
		nullMicros(next.DueDate), assignees, tags, custom, next.Position, toMicros(next.UpdatedAt), next.ID, expectedVersion)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 1 {
		return nil
	}

	var exists int
	err = q.QueryRowContext(ctx, `SELECT 1 FROM tasks WHERE id = ?`, next.ID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return models.NotFoundf("task %d", next.ID)
	}
	if err != nil {
		return fmt.Errorf("check task: %w", err)
	}
	return models.ErrStaleVersion
}

// DeleteTask removes a task. History and dependency edges cascade.
func (s *Store) DeleteTask(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return models.NotFoundf("task %d", id)
	}
	return nil
}

// NextPosition returns the slot after the last task of the same column.
func (s *Store) NextPosition(ctx context.Context, workspaceID int64, listID *int64, status string) (int64, error) {
	return s.nextPosition(ctx, s.db, workspaceID, listID, status)
}

func (s *Store) nextPosition(ctx context.Context, q queryer, workspaceID int64, listID *int64, status string) (int64, error) {
	var position sql.NullInt64
	err := q.QueryRowContext(ctx, `SELECT MAX(position) FROM tasks WHERE workspace_id = ? AND list_id IS ? AND status = ?`,
		workspaceID, nullInt(listID), status).Scan(&position)
	if err != nil {
		return 0, fmt.Errorf("select position: %w", err)
	}
	if position.Valid {
		return position.Int64 + 1, nil
	}
	return 0, nil
}

func prefixed(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}
