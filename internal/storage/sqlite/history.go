package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"tracker/internal/models"
)

// InsertHistory appends entries in one transaction. Zero CreatedAt takes the store clock.
func (s *Store) InsertHistory(ctx context.Context, entries []models.HistoryEntry) error {
	if len(entries) == 0 {
		return nil
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, e := range entries {
			created := e.CreatedAt
			if created.IsZero() {
				created = s.now()
			}
			_, err := tx.ExecContext(ctx, `INSERT INTO task_history(task_id, automation_id, actor_id, action, field, old_value, new_value, created_at)
                VALUES(?, ?, ?, ?, ?, ?, ?, ?)`,
				nullInt(e.TaskID), nullInt(e.AutomationID), nullInt(e.ActorID), e.Action, e.Field, e.OldValue, e.NewValue, toMicros(created))
			if err != nil {
				return fmt.Errorf("insert history: %w", err)
			}
		}
		return nil
	})
}

// ListHistory returns the entries of a task, oldest first.
func (s *Store) ListHistory(ctx context.Context, taskID int64) ([]models.HistoryEntry, error) {
	return s.queryHistory(ctx, `WHERE task_id = ?`, taskID)
}

// ListAutomationHistory returns the entries written by one automation, oldest first.
func (s *Store) ListAutomationHistory(ctx context.Context, automationID int64) ([]models.HistoryEntry, error) {
	return s.queryHistory(ctx, `WHERE automation_id = ?`, automationID)
}

func (s *Store) queryHistory(ctx context.Context, where string, args ...any) ([]models.HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, task_id, automation_id, actor_id, action, field, old_value, new_value, created_at
        FROM task_history `+where+` ORDER BY id ASC`, args...)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	var entries []models.HistoryEntry
	for rows.Next() {
		var (
			e                           models.HistoryEntry
			taskID, automationID, actor sql.NullInt64
			created                     int64
		)
		if err := rows.Scan(&e.ID, &taskID, &automationID, &actor, &e.Action, &e.Field, &e.OldValue, &e.NewValue, &created); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		e.TaskID = intPtr(taskID)
		e.AutomationID = intPtr(automationID)
		e.ActorID = intPtr(actor)
		e.CreatedAt = fromMicros(created)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
