package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"tracker/internal/models"
)

// CreateTemplate persists a task template.
func (s *Store) CreateTemplate(ctx context.Context, t models.Template) (models.Template, error) {
	if strings.TrimSpace(t.Name) == "" {
		return models.Template{}, models.Invalid("name", "template name must not be empty")
	}
	if t.Priority != nil {
		if _, ok := models.ValidTaskPriorities[*t.Priority]; !ok {
			return models.Template{}, models.Invalid("priority", "unknown priority %q", *t.Priority)
		}
	}
	tags, err := encodeJSON(t.Tags, "[]")
	if err != nil {
		return models.Template{}, fmt.Errorf("encode tags: %w", err)
	}
	custom, err := encodeJSON(t.CustomFields, "{}")
	if err != nil {
		return models.Template{}, fmt.Errorf("encode custom fields: %w", err)
	}
	assignees, err := encodeJSON(t.AssigneeIDs, "[]")
	if err != nil {
		return models.Template{}, fmt.Errorf("encode assignees: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `INSERT INTO templates(workspace_id, name, priority, status, tags, custom_fields, assignee_ids, created_at)
        VALUES(?, ?, ?, ?, ?, ?, ?, ?)`,
		t.WorkspaceID, strings.TrimSpace(t.Name), nullString(t.Priority), nullString(t.Status), tags, custom, assignees, toMicros(s.now()))
	if err != nil {
		return models.Template{}, fmt.Errorf("insert template: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return models.Template{}, fmt.Errorf("template id: %w", err)
	}
	return s.GetTemplate(ctx, id)
}

// GetTemplate fetches a template by id.
func (s *Store) GetTemplate(ctx context.Context, id int64) (models.Template, error) {
	var (
		t                       models.Template
		priority, status        sql.NullString
		tags, custom, assignees string
		created                 int64
	)
	err := s.db.QueryRowContext(ctx, `SELECT id, workspace_id, name, priority, status, tags, custom_fields, assignee_ids, created_at
        FROM templates WHERE id = ?`, id).
		Scan(&t.ID, &t.WorkspaceID, &t.Name, &priority, &status, &tags, &custom, &assignees, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Template{}, models.NotFoundf("template %d", id)
	}
	if err != nil {
		return models.Template{}, fmt.Errorf("get template: %w", err)
	}
	t.Priority = stringPtr(priority)
	t.Status = stringPtr(status)
	t.CreatedAt = fromMicros(created)
	if err := json.Unmarshal([]byte(tags), &t.Tags); err != nil {
		return models.Template{}, fmt.Errorf("decode tags: %w", err)
	}
	if err := json.Unmarshal([]byte(custom), &t.CustomFields); err != nil {
		return models.Template{}, fmt.Errorf("decode custom fields: %w", err)
	}
	if err := json.Unmarshal([]byte(assignees), &t.AssigneeIDs); err != nil {
		return models.Template{}, fmt.Errorf("decode assignees: %w", err)
	}
	return t, nil
}
