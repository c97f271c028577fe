// Package history writes the append-only audit trail of task mutations and
// automation runs.
package history

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	"tracker/internal/models"
)

// Store persists history entries.
type Store interface {
	InsertHistory(ctx context.Context, entries []models.HistoryEntry) error
}

// FieldChange is one field whose value differs between two task states.
type FieldChange struct {
	Field    string `json:"field"`
	OldValue string `json:"old_value"`
	NewValue string `json:"new_value"`
}

// Recorder appends history entries. Write failures are logged, never returned.
type Recorder struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

// NewRecorder builds a Recorder.
func NewRecorder(store Store, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{store: store, logger: logger, now: time.Now}
}

// Record appends entries. A nil Recorder discards them.
func (r *Recorder) Record(ctx context.Context, entries ...models.HistoryEntry) {
	if r == nil || len(entries) == 0 {
		return
	}
	now := r.now()
	for i := range entries {
		if entries[i].CreatedAt.IsZero() {
			entries[i].CreatedAt = now
		}
	}
	if err := r.store.InsertHistory(ctx, entries); err != nil {
		r.logger.Error("history write failed", slog.Int("entries", len(entries)), slog.String("error", err.Error()))
	}
}

// RecordChanges writes one "updated" entry per changed field.
func (r *Recorder) RecordChanges(ctx context.Context, taskID int64, actorID *int64, changes []FieldChange) {
	r.Record(ctx, ChangeEntries(taskID, actorID, changes)...)
}

// ChangeEntries turns field changes into "updated" history entries.
func ChangeEntries(taskID int64, actorID *int64, changes []FieldChange) []models.HistoryEntry {
	entries := make([]models.HistoryEntry, 0, len(changes))
	for _, c := range changes {
		id := taskID
		entries = append(entries, models.HistoryEntry{
			TaskID:   &id,
			ActorID:  actorID,
			Action:   models.HistoryUpdated,
			Field:    c.Field,
			OldValue: c.OldValue,
			NewValue: c.NewValue,
		})
	}
	return entries
}

// RecordAutomation writes the outcome of one rule run. taskID may be nil for
// recurring runs without a task.
func (r *Recorder) RecordAutomation(ctx context.Context, rule models.Automation, taskID *int64, runErr error) {
	ruleID := rule.ID
	entry := models.HistoryEntry{
		TaskID:       taskID,
		AutomationID: &ruleID,
		Action:       models.HistoryAutomationExecuted,
		Field:        string(rule.ActionType),
		NewValue:     rule.Name,
	}
	if runErr != nil {
		entry.Action = models.HistoryAutomationFailed
		entry.NewValue = runErr.Error()
	}
	r.Record(ctx, entry)
}

// Diff compares two task states field by field. Version and timestamps are ignored.
func Diff(before, after models.Task) []FieldChange {
	var out []FieldChange
	add := func(field, oldValue, newValue string) {
		if oldValue != newValue {
			out = append(out, FieldChange{Field: field, OldValue: oldValue, NewValue: newValue})
		}
	}
	add("title", before.Title, after.Title)
	add("description", before.Description, after.Description)
	add("status", before.Status, after.Status)
	add("priority", before.Priority, after.Priority)
	add("due_date", formatTime(before.DueDate), formatTime(after.DueDate))
	add("assignee_ids", formatJSON(before.AssigneeIDs), formatJSON(after.AssigneeIDs))
	add("tags", formatJSON(before.Tags), formatJSON(after.Tags))
	add("custom_fields", formatJSON(before.CustomFields), formatJSON(after.CustomFields))
	add("position", strconv.FormatInt(before.Position, 10), strconv.FormatInt(after.Position, 10))
	add("list_id", formatID(before.ListID), formatID(after.ListID))
	return out
}

// HasField reports whether field is among changes.
func HasField(changes []FieldChange, field string) bool {
	for _, c := range changes {
		if c.Field == field {
			return true
		}
	}
	return false
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func formatID(id *int64) string {
	if id == nil {
		return ""
	}
	return strconv.FormatInt(*id, 10)
}

func formatJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	switch string(b) {
	case "null", "[]", "{}":
		return ""
	}
	return string(b)
}
