package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"tracker/internal/models"
)

const automationColumns = `id, workspace_id, list_id, space_id, name, trigger_type, trigger_conditions, action_type, action_data,
        enabled, schedule_type, schedule_config, last_run_at, next_run_at, created_by, created_at, updated_at`

func scanAutomation(row scanner) (models.Automation, error) {
	var (
		a                                models.Automation
		listID, spaceID, createdBy       sql.NullInt64
		lastRun, nextRun                 sql.NullInt64
		scheduleType                     sql.NullString
		conditions, actionData, schedule string
		createdAt, updatedAt             int64
	)
	if err := row.Scan(&a.ID, &a.WorkspaceID, &listID, &spaceID, &a.Name, &a.TriggerType, &conditions, &a.ActionType, &actionData,
		&a.Enabled, &scheduleType, &schedule, &lastRun, &nextRun, &createdBy, &createdAt, &updatedAt); err != nil {
		return models.Automation{}, err
	}
	a.ListID = intPtr(listID)
	a.SpaceID = intPtr(spaceID)
	a.CreatedBy = intPtr(createdBy)
	a.LastRunAt = timePtr(lastRun)
	a.NextRunAt = timePtr(nextRun)
	if scheduleType.Valid {
		st := models.ScheduleType(scheduleType.String)
		a.ScheduleType = &st
	}
	a.CreatedAt = fromMicros(createdAt)
	a.UpdatedAt = fromMicros(updatedAt)
	a.ActionData = json.RawMessage(actionData)
	if err := json.Unmarshal([]byte(conditions), &a.TriggerConditions); err != nil {
		return models.Automation{}, fmt.Errorf("decode trigger conditions: %w", err)
	}
	if a.TriggerConditions == nil {
		a.TriggerConditions = map[string]any{}
	}
	if err := json.Unmarshal([]byte(schedule), &a.ScheduleConfig); err != nil {
		return models.Automation{}, fmt.Errorf("decode schedule config: %w", err)
	}
	return a, nil
}

type automationRow struct {
	conditions   string
	actionData   string
	schedule     string
	scheduleType any
}

func encodeAutomation(a models.Automation) (automationRow, error) {
	conditions, err := encodeJSON(a.TriggerConditions, "{}")
	if err != nil {
		return automationRow{}, fmt.Errorf("encode trigger conditions: %w", err)
	}
	schedule, err := encodeJSON(a.ScheduleConfig, "{}")
	if err != nil {
		return automationRow{}, fmt.Errorf("encode schedule config: %w", err)
	}
	actionData := string(a.ActionData)
	if len(a.ActionData) == 0 {
		actionData = "{}"
	}
	row := automationRow{conditions: conditions, actionData: actionData, schedule: schedule}
	if a.Scheduled() {
		row.scheduleType = string(*a.ScheduleType)
	}
	return row, nil
}

// CreateAutomation persists a rule. The caller validates it first.
func (s *Store) CreateAutomation(ctx context.Context, a models.Automation) (models.Automation, error) {
	row, err := encodeAutomation(a)
	if err != nil {
		return models.Automation{}, err
	}
	now := toMicros(s.now())
	res, err := s.db.ExecContext(ctx, `INSERT INTO automations(workspace_id, list_id, space_id, name, trigger_type, trigger_conditions,
        action_type, action_data, enabled, schedule_type, schedule_config, last_run_at, next_run_at, created_by, created_at, updated_at)
        VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.WorkspaceID, nullInt(a.ListID), nullInt(a.SpaceID), a.Name, string(a.TriggerType), row.conditions,
		string(a.ActionType), row.actionData, a.Enabled, row.scheduleType, row.schedule, nullMicros(a.LastRunAt), nullMicros(a.NextRunAt),
		nullInt(a.CreatedBy), now, now)
	if err != nil {
		return models.Automation{}, fmt.Errorf("insert automation: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return models.Automation{}, fmt.Errorf("automation id: %w", err)
	}
	return s.GetAutomation(ctx, id)
}

// UpdateAutomation overwrites the mutable columns of a rule.
func (s *Store) UpdateAutomation(ctx context.Context, a models.Automation) (models.Automation, error) {
	row, err := encodeAutomation(a)
	if err != nil {
		return models.Automation{}, err
	}
	res, err := s.db.ExecContext(ctx, `UPDATE automations SET list_id = ?, space_id = ?, name = ?, trigger_type = ?, trigger_conditions = ?,
        action_type = ?, action_data = ?, enabled = ?, schedule_type = ?, schedule_config = ?, next_run_at = ?, updated_at = ?
        WHERE id = ?`,
		nullInt(a.ListID), nullInt(a.SpaceID), a.Name, string(a.TriggerType), row.conditions, string(a.ActionType), row.actionData,
		a.Enabled, row.scheduleType, row.schedule, nullMicros(a.NextRunAt), toMicros(s.now()), a.ID)
	if err != nil {
		return models.Automation{}, fmt.Errorf("update automation: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return models.Automation{}, err
	}
	if affected == 0 {
		return models.Automation{}, models.NotFoundf("automation %d", a.ID)
	}
	return s.GetAutomation(ctx, a.ID)
}

// GetAutomation fetches a rule by id.
func (s *Store) GetAutomation(ctx context.Context, id int64) (models.Automation, error) {
	a, err := scanAutomation(s.db.QueryRowContext(ctx, `SELECT `+automationColumns+` FROM automations WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Automation{}, models.NotFoundf("automation %d", id)
	}
	if err != nil {
		return models.Automation{}, fmt.Errorf("get automation: %w", err)
	}
	return a, nil
}

// DeleteAutomation removes a rule.
func (s *Store) DeleteAutomation(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM automations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete automation: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return models.NotFoundf("automation %d", id)
	}
	return nil
}

// ListAutomations returns every rule of a workspace, oldest first.
func (s *Store) ListAutomations(ctx context.Context, workspaceID int64) ([]models.Automation, error) {
	return s.queryAutomations(ctx, `WHERE workspace_id = ? ORDER BY created_at ASC, id ASC`, workspaceID)
}

// ListEnabledAutomations returns enabled rules of a workspace for one trigger, oldest first.
func (s *Store) ListEnabledAutomations(ctx context.Context, workspaceID int64, trigger models.TriggerType) ([]models.Automation, error) {
	return s.queryAutomations(ctx, `WHERE workspace_id = ? AND trigger_type = ? AND enabled = 1 ORDER BY created_at ASC, id ASC`,
		workspaceID, string(trigger))
}

// ListScheduledAutomations returns every enabled rule that carries a schedule.
func (s *Store) ListScheduledAutomations(ctx context.Context) ([]models.Automation, error) {
	return s.queryAutomations(ctx, `WHERE enabled = 1 AND schedule_type IS NOT NULL ORDER BY created_at ASC, id ASC`)
}

// TouchAutomationRun records the last execution time of a rule.
func (s *Store) TouchAutomationRun(ctx context.Context, id int64, ranAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE automations SET last_run_at = ? WHERE id = ?`, toMicros(ranAt), id)
	if err != nil {
		return fmt.Errorf("touch automation: %w", err)
	}
	return nil
}

// RecordScheduledRun stores the last run and the next due time of a recurring rule.
// Rules disabled or unscheduled in the meantime keep a null next run.
func (s *Store) RecordScheduledRun(ctx context.Context, id int64, ranAt, nextRun time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE automations SET last_run_at = ?, next_run_at = ?
        WHERE id = ? AND enabled = 1 AND schedule_type IS NOT NULL`,
		toMicros(ranAt), toMicros(nextRun), id)
	if err != nil {
		return fmt.Errorf("record scheduled run: %w", err)
	}
	return nil
}

func (s *Store) queryAutomations(ctx context.Context, clause string, args ...any) ([]models.Automation, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+automationColumns+` FROM automations `+clause, args...)
	if err != nil {
		return nil, fmt.Errorf("list automations: %w", err)
	}
	defer rows.Close()

	var out []models.Automation
	for rows.Next() {
		a, err := scanAutomation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan automation: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
