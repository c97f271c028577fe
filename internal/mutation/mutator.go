// Package mutation applies versioned partial updates to tasks. Concurrency
// safety comes from a single compare-and-swap write per task; there is no
// in-process locking.
package mutation

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"tracker/internal/history"
	"tracker/internal/models"
	"tracker/internal/notify"
)

// Store is the storage surface used by the mutator.
type Store interface {
	GetTask(ctx context.Context, id int64) (models.Task, error)
	DoneStatus(ctx context.Context, workspaceID int64) (string, error)
	CompareAndSwapTask(ctx context.Context, next models.Task, expectedVersion int64) (models.Task, error)
	BulkUpdateTasks(ctx context.Context, ids []int64, mutate func(models.Task) (models.Task, error)) ([]models.TaskWrite, error)
	CreateTask(ctx context.Context, nt models.NewTask) (models.Task, error)
	DeleteTask(ctx context.Context, id int64) error
}

// Gate decides whether a task may move into its done status.
type Gate interface {
	MayTransitionToDone(ctx context.Context, taskID int64) (bool, []models.TaskSummary, error)
}

// UpdateRequest is one client edit of one task.
type UpdateRequest struct {
	TaskID            int64
	Changes           models.TaskChanges
	ExpectedVersion   *int64
	ExpectedUpdatedAt *time.Time
	ActorID           *int64
}

// BulkRequest applies the same changes to several tasks at once.
type BulkRequest struct {
	TaskIDs []int64
	Changes models.TaskChanges
	ActorID *int64
}

// Result is the outcome of a successful write.
type Result struct {
	Task     models.Task           `json:"task"`
	Previous models.Task           `json:"-"`
	Changes  []history.FieldChange `json:"changes"`
}

// StatusChanged reports whether the write moved the task to another status.
func (r Result) StatusChanged() bool {
	return history.HasField(r.Changes, "status")
}

// Mutator applies task updates.
type Mutator struct {
	store      Store
	gate       Gate
	history    *history.Recorder
	events     *notify.Dispatcher
	logger     *slog.Logger
	now        func() time.Time
	maxRetries int
}

// Option customizes a Mutator.
type Option func(*Mutator)

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option {
	return func(m *Mutator) { m.now = now }
}

// WithSystemRetries sets how often a system update retries a lost race.
func WithSystemRetries(n int) Option {
	return func(m *Mutator) { m.maxRetries = n }
}

// New builds a Mutator. events may be nil.
func New(store Store, gate Gate, recorder *history.Recorder, events *notify.Dispatcher, logger *slog.Logger, opts ...Option) *Mutator {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Mutator{
		store:      store,
		gate:       gate,
		history:    recorder,
		events:     events,
		logger:     logger,
		now:        time.Now,
		maxRetries: 3,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create stores a new task at version 1, records its creation and publishes it.
func (m *Mutator) Create(ctx context.Context, nt models.NewTask) (models.Task, error) {
	if nt.CreatedBy == nil {
		return models.Task{}, models.Invalid("actor_id", "an acting user is required")
	}
	nt.AssigneeIDs = uniqueIDs(nt.AssigneeIDs)
	task, err := m.store.CreateTask(ctx, nt)
	if err != nil {
		return models.Task{}, err
	}
	m.history.Record(ctx, models.HistoryEntry{
		TaskID:   &task.ID,
		ActorID:  nt.CreatedBy,
		Action:   models.HistoryCreated,
		Field:    "title",
		NewValue: task.Title,
	})
	if m.events != nil {
		m.events.TaskCreated(task, nt.CreatedBy)
	}
	m.logger.Info("task created", slog.Int64("task_id", task.ID), slog.Int64("workspace_id", task.WorkspaceID))
	return task, nil
}

// Delete removes a task and publishes its last state. History and
// dependency edges go with it.
func (m *Mutator) Delete(ctx context.Context, taskID int64, actorID *int64) error {
	if actorID == nil {
		return models.Invalid("actor_id", "an acting user is required")
	}
	task, err := m.store.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	if err := m.store.DeleteTask(ctx, taskID); err != nil {
		return err
	}
	if m.events != nil {
		m.events.TaskDeleted(task, actorID)
	}
	m.logger.Info("task deleted", slog.Int64("task_id", taskID))
	return nil
}

// ApplyUpdate applies a partial update under the optimistic concurrency contract.
func (m *Mutator) ApplyUpdate(ctx context.Context, req UpdateRequest) (Result, error) {
	if req.ActorID == nil {
		return Result{}, models.Invalid("actor_id", "an acting user is required")
	}
	if err := ValidateChanges(req.Changes); err != nil {
		return Result{}, err
	}

	current, err := m.store.GetTask(ctx, req.TaskID)
	if err != nil {
		return Result{}, err
	}

	switch {
	case req.ExpectedVersion != nil:
		if *req.ExpectedVersion != current.Version {
			return Result{}, conflict(current, req.ExpectedVersion)
		}
	case req.ExpectedUpdatedAt != nil:
		if req.ExpectedUpdatedAt.Before(current.UpdatedAt) {
			return Result{}, conflict(current, nil)
		}
	}

	if err := m.checkDone(ctx, current, req.Changes); err != nil {
		return Result{}, err
	}

	next := ApplyChanges(current, req.Changes)
	next.UpdatedAt = m.stamp(current.UpdatedAt)

	saved, err := m.store.CompareAndSwapTask(ctx, next, current.Version)
	if errors.Is(err, models.ErrStaleVersion) {
		fresh, getErr := m.store.GetTask(ctx, req.TaskID)
		if getErr != nil {
			return Result{}, getErr
		}
		provided := req.ExpectedVersion
		if provided == nil {
			v := current.Version
			provided = &v
		}
		return Result{}, conflict(fresh, provided)
	}
	if err != nil {
		return Result{}, err
	}

	changes := history.Diff(current, saved)
	m.history.Record(ctx, history.ChangeEntries(saved.ID, req.ActorID, changes)...)
	m.publish(saved, req.ActorID)

	m.logger.Debug("task updated", slog.Int64("task_id", saved.ID), slog.Int64("version", saved.Version), slog.Int("fields", len(changes)))
	return Result{Task: saved, Previous: current, Changes: changes}, nil
}

// ApplyBulkUpdate applies the same changes to every task in one transaction.
// Either every task is written or none is.
func (m *Mutator) ApplyBulkUpdate(ctx context.Context, req BulkRequest) ([]Result, error) {
	if req.ActorID == nil {
		return nil, models.Invalid("actor_id", "an acting user is required")
	}
	if len(req.TaskIDs) == 0 {
		return nil, models.Invalid("task_ids", "at least one task id is required")
	}
	seen := make(map[int64]struct{}, len(req.TaskIDs))
	for _, id := range req.TaskIDs {
		if _, dup := seen[id]; dup {
			return nil, models.Invalid("task_ids", "task %d is listed twice", id)
		}
		seen[id] = struct{}{}
	}
	if err := ValidateChanges(req.Changes); err != nil {
		return nil, err
	}

	// Gate checks read outside the write transaction; an unknown id is left for
	// the transaction to reject.
	if req.Changes.Status != nil {
		for _, id := range req.TaskIDs {
			current, err := m.store.GetTask(ctx, id)
			if errors.Is(err, models.ErrNotFound) {
				continue
			}
			if err != nil {
				return nil, &models.TransactionError{Err: err}
			}
			if err := m.checkDone(ctx, current, req.Changes); err != nil {
				return nil, err
			}
		}
	}

	writes, err := m.store.BulkUpdateTasks(ctx, req.TaskIDs, func(before models.Task) (models.Task, error) {
		next := ApplyChanges(before, req.Changes)
		next.UpdatedAt = m.stamp(before.UpdatedAt)
		return next, nil
	})
	if err != nil {
		m.logger.Warn("bulk update rolled back", slog.Int("tasks", len(req.TaskIDs)), slog.String("error", err.Error()))
		return nil, &models.TransactionError{Err: err}
	}

	results := make([]Result, 0, len(writes))
	for _, w := range writes {
		changes := history.Diff(w.Before, w.After)
		m.history.Record(ctx, history.ChangeEntries(w.After.ID, req.ActorID, changes)...)
		m.publish(w.After, req.ActorID)
		results = append(results, Result{Task: w.After, Previous: w.Before, Changes: changes})
	}
	return results, nil
}

// SystemOption customizes ApplySystemUpdate.
type SystemOption func(*systemOptions)

type systemOptions struct {
	automationID *int64
	summary      *models.HistoryEntry
}

// WithAutomation tags history entries with the rule that caused the write.
func WithAutomation(id int64) SystemOption {
	return func(o *systemOptions) { o.automationID = &id }
}

// WithSummary replaces the per-field history entries with a single entry. An
// empty value takes the old and new values of field from the applied diff.
func WithSummary(action, field, value string) SystemOption {
	return func(o *systemOptions) {
		o.summary = &models.HistoryEntry{Action: action, Field: field, NewValue: value}
	}
}

// ApplySystemUpdate writes changes computed from the current task without an
// acting user. build is called again with the fresh row when a concurrent writer
// wins the compare-and-swap. Empty changes are a successful no-op.
func (m *Mutator) ApplySystemUpdate(ctx context.Context, taskID int64, build func(models.Task) (models.TaskChanges, error), opts ...SystemOption) (Result, error) {
	var o systemOptions
	for _, opt := range opts {
		opt(&o)
	}

	var lastVersion int64
	for attempt := 0; attempt <= m.maxRetries; attempt++ {
		current, err := m.store.GetTask(ctx, taskID)
		if err != nil {
			return Result{}, err
		}
		lastVersion = current.Version

		changes, err := build(current)
		if err != nil {
			return Result{}, err
		}
		if changes.IsEmpty() {
			return Result{Task: current, Previous: current}, nil
		}
		if err := ValidateChanges(changes); err != nil {
			return Result{}, err
		}
		if err := m.checkDone(ctx, current, changes); err != nil {
			return Result{}, err
		}

		next := ApplyChanges(current, changes)
		next.UpdatedAt = m.stamp(current.UpdatedAt)
		saved, err := m.store.CompareAndSwapTask(ctx, next, current.Version)
		if errors.Is(err, models.ErrStaleVersion) {
			m.logger.Debug("system update lost a race; retrying", slog.Int64("task_id", taskID), slog.Int("attempt", attempt+1))
			continue
		}
		if err != nil {
			return Result{}, err
		}

		diff := history.Diff(current, saved)
		m.history.Record(ctx, systemEntries(saved.ID, diff, o)...)
		m.publish(saved, nil)
		return Result{Task: saved, Previous: current, Changes: diff}, nil
	}

	fresh, err := m.store.GetTask(ctx, taskID)
	if err != nil {
		return Result{}, err
	}
	return Result{}, conflict(fresh, &lastVersion)
}

func systemEntries(taskID int64, diff []history.FieldChange, o systemOptions) []models.HistoryEntry {
	if o.summary != nil {
		e := *o.summary
		e.TaskID = &taskID
		e.AutomationID = o.automationID
		if e.NewValue == "" {
			for _, c := range diff {
				if c.Field == e.Field {
					e.OldValue, e.NewValue = c.OldValue, c.NewValue
				}
			}
		}
		return []models.HistoryEntry{e}
	}
	entries := history.ChangeEntries(taskID, nil, diff)
	for i := range entries {
		entries[i].AutomationID = o.automationID
	}
	return entries
}

func (m *Mutator) checkDone(ctx context.Context, current models.Task, changes models.TaskChanges) error {
	if changes.Status == nil || m.gate == nil {
		return nil
	}
	done, err := m.store.DoneStatus(ctx, current.WorkspaceID)
	if err != nil {
		return err
	}
	if *changes.Status != done || current.Status == done {
		return nil
	}
	ok, blockers, err := m.gate.MayTransitionToDone(ctx, current.ID)
	if err != nil {
		return err
	}
	if !ok {
		return &models.BlockedError{TaskID: current.ID, Blockers: blockers}
	}
	return nil
}

// stamp returns a timestamp strictly after prev, in microsecond resolution.
func (m *Mutator) stamp(prev time.Time) time.Time {
	now := m.now().UTC().Truncate(time.Microsecond)
	if !now.After(prev) {
		now = prev.Add(time.Microsecond)
	}
	return now
}

func (m *Mutator) publish(task models.Task, actorID *int64) {
	if m.events == nil {
		return
	}
	m.events.TaskChanged(task, actorID)
}

func conflict(current models.Task, provided *int64) error {
	return &models.ConflictError{
		TaskID:          current.ID,
		CurrentVersion:  current.Version,
		ProvidedVersion: provided,
		Current:         current,
	}
}

// ValidateChanges rejects malformed partial updates before any write.
func ValidateChanges(c models.TaskChanges) error {
	if c.IsEmpty() {
		return models.Invalid("changes", "no fields to update")
	}
	if c.Title != nil && strings.TrimSpace(*c.Title) == "" {
		return models.Invalid("title", "task title must not be empty")
	}
	if c.Status != nil && strings.TrimSpace(*c.Status) == "" {
		return models.Invalid("status", "status must not be empty")
	}
	if c.Priority != nil {
		if _, ok := models.ValidTaskPriorities[*c.Priority]; !ok {
			return models.Invalid("priority", "unknown priority %q", *c.Priority)
		}
	}
	if c.DueDate != nil && c.ClearDueDate {
		return models.Invalid("due_date", "due date cannot be set and cleared at once")
	}
	if c.AssigneeIDs != nil {
		for _, id := range *c.AssigneeIDs {
			if id <= 0 {
				return models.Invalid("assignee_ids", "invalid user id %d", id)
			}
		}
	}
	return nil
}

// ApplyChanges returns a copy of t with the present fields of c applied.
// Custom fields merge key by key; a nil value removes the key.
func ApplyChanges(t models.Task, c models.TaskChanges) models.Task {
	next := t
	next.AssigneeIDs = append([]int64(nil), t.AssigneeIDs...)
	next.Tags = append([]string(nil), t.Tags...)
	next.CustomFields = make(map[string]any, len(t.CustomFields))
	for k, v := range t.CustomFields {
		next.CustomFields[k] = v
	}

	if c.Title != nil {
		next.Title = strings.TrimSpace(*c.Title)
	}
	if c.Description != nil {
		next.Description = strings.TrimSpace(*c.Description)
	}
	if c.Status != nil {
		next.Status = strings.TrimSpace(*c.Status)
	}
	if c.Priority != nil {
		next.Priority = *c.Priority
	}
	if c.ClearDueDate {
		next.DueDate = nil
	} else if c.DueDate != nil {
		due := c.DueDate.UTC().Truncate(time.Microsecond)
		next.DueDate = &due
	}
	if c.AssigneeIDs != nil {
		next.AssigneeIDs = uniqueIDs(*c.AssigneeIDs)
	}
	if c.Tags != nil {
		next.Tags = append([]string{}, (*c.Tags)...)
	}
	for k, v := range c.CustomFields {
		if v == nil {
			delete(next.CustomFields, k)
			continue
		}
		next.CustomFields[k] = v
	}
	if c.Position != nil {
		next.Position = *c.Position
	}
	if c.ListID != nil {
		id := *c.ListID
		next.ListID = &id
	}
	return next
}

func uniqueIDs(ids []int64) []int64 {
	out := make([]int64, 0, len(ids))
	seen := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
