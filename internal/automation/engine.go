// Package automation evaluates stored trigger-condition-action rules against
// task events and runs recurring rules on their schedule.
package automation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"tracker/internal/history"
	"tracker/internal/models"
	"tracker/internal/mutation"
	"tracker/internal/schedule"
)

// Store is the storage surface used by the engine.
type Store interface {
	ListEnabledAutomations(ctx context.Context, workspaceID int64, trigger models.TriggerType) ([]models.Automation, error)
	ListScheduledAutomations(ctx context.Context) ([]models.Automation, error)
	GetAutomation(ctx context.Context, id int64) (models.Automation, error)
	TouchAutomationRun(ctx context.Context, id int64, ranAt time.Time) error
	RecordScheduledRun(ctx context.Context, id int64, ranAt, nextRun time.Time) error

	ListOpenTasks(ctx context.Context, workspaceID int64, spaceID, listID *int64) ([]models.Task, error)
	ListTasksDueBetween(ctx context.Context, from, to time.Time) ([]models.Task, error)
	ListMemberIDs(ctx context.Context, workspaceID int64) ([]int64, error)
	GetTemplate(ctx context.Context, id int64) (models.Template, error)
}

// Mutator writes task changes on behalf of a rule.
type Mutator interface {
	ApplySystemUpdate(ctx context.Context, taskID int64, build func(models.Task) (models.TaskChanges, error), opts ...mutation.SystemOption) (mutation.Result, error)
}

// Notifier delivers notifications to users.
type Notifier interface {
	Notify(ctx context.Context, n models.Notification) (models.Notification, error)
	NotifyAll(ctx context.Context, userIDs []int64, n models.Notification) ([]models.Notification, error)
}

// TriggerContext describes the event rules are evaluated against. Task is nil
// for recurring runs that are not bound to a task.
type TriggerContext struct {
	WorkspaceID int64
	SpaceID     *int64
	ListID      *int64
	Task        *models.Task
	OldStatus   *string
}

// ForTask builds the context of an event on task.
func ForTask(task models.Task, oldStatus *string) TriggerContext {
	return TriggerContext{
		WorkspaceID: task.WorkspaceID,
		SpaceID:     task.SpaceID,
		ListID:      task.ListID,
		Task:        &task,
		OldStatus:   oldStatus,
	}
}

func (tc TriggerContext) facts() Facts {
	if tc.Task != nil {
		return TaskFacts(*tc.Task, tc.OldStatus)
	}
	f := Facts{}
	if tc.ListID != nil {
		f[CondListID] = *tc.ListID
	}
	if tc.SpaceID != nil {
		f[CondSpaceID] = *tc.SpaceID
	}
	return f
}

func (tc TriggerContext) taskID() *int64 {
	if tc.Task == nil {
		return nil
	}
	id := tc.Task.ID
	return &id
}

// RuleRun is the outcome of one executed rule.
type RuleRun struct {
	RuleID int64
	Err    error
}

// Report summarizes an evaluation pass.
type Report struct {
	Evaluated int
	Runs      []RuleRun
}

// Failed returns the runs that ended in an error.
func (r Report) Failed() []RuleRun {
	var out []RuleRun
	for _, run := range r.Runs {
		if run.Err != nil {
			out = append(out, run)
		}
	}
	return out
}

func (r *Report) merge(other Report) {
	r.Evaluated += other.Evaluated
	r.Runs = append(r.Runs, other.Runs...)
}

type invocation struct {
	rule   models.Automation
	action Action
	tc     TriggerContext
}

type handler func(ctx context.Context, inv invocation) error

// Engine runs automation rules.
type Engine struct {
	store    Store
	mutator  Mutator
	notifier Notifier
	history  *history.Recorder
	logger   *slog.Logger
	now      func() time.Time

	handlers map[models.ActionType]handler
	queue    *schedule.Queue

	seedMu sync.Mutex
	seeded bool

	dueMu      sync.Mutex
	dueHorizon time.Time
}

// Option customizes an Engine.
type Option func(*Engine)

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine wires an engine from its collaborators.
func NewEngine(store Store, mutator Mutator, notifier Notifier, recorder *history.Recorder, logger *slog.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		store:    store,
		mutator:  mutator,
		notifier: notifier,
		history:  recorder,
		logger:   logger,
		now:      time.Now,
		queue:    schedule.NewQueue(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.handlers = map[models.ActionType]handler{
		models.ActionAssignUser:          e.handleAssignUser,
		models.ActionReassign:            e.handleReassign,
		models.ActionApplyTemplate:       e.handleApplyTemplate,
		models.ActionNotify:              e.handleNotify,
		models.ActionSendReminder:        e.handleSendReminder,
		models.ActionSendExternalMessage: e.handleSendExternalMessage,
	}
	return e
}

// Execute runs every enabled rule of the context's workspace registered for
// trigger, oldest first. A failing rule is recorded and does not stop the rest;
// the returned error only reports that rules could not be loaded.
func (e *Engine) Execute(ctx context.Context, trigger models.TriggerType, tc TriggerContext) (Report, error) {
	rules, err := e.store.ListEnabledAutomations(ctx, tc.WorkspaceID, trigger)
	if err != nil {
		return Report{}, fmt.Errorf("load automations: %w", err)
	}

	facts := tc.facts()
	report := Report{Evaluated: len(rules)}
	for _, rule := range rules {
		if !inScope(rule, tc) || !Matches(rule.TriggerConditions, facts) {
			continue
		}
		runErr := e.run(ctx, rule, tc)
		report.Runs = append(report.Runs, RuleRun{RuleID: rule.ID, Err: runErr})
		if err := e.store.TouchAutomationRun(ctx, rule.ID, e.now()); err != nil {
			e.logger.Warn("automation last run not stored", slog.Int64("automation_id", rule.ID), slog.String("error", err.Error()))
		}
	}
	return report, nil
}

// ExecuteSafely is Execute for callers that must not fail: load errors are logged.
func (e *Engine) ExecuteSafely(ctx context.Context, trigger models.TriggerType, tc TriggerContext) Report {
	report, err := e.Execute(ctx, trigger, tc)
	if err != nil {
		e.logger.Error("automation evaluation failed", slog.String("trigger", string(trigger)),
			slog.Int64("workspace_id", tc.WorkspaceID), slog.String("error", err.Error()))
	}
	return report
}

func inScope(rule models.Automation, tc TriggerContext) bool {
	if rule.ListID != nil && (tc.ListID == nil || *tc.ListID != *rule.ListID) {
		return false
	}
	if rule.SpaceID != nil && (tc.SpaceID == nil || *tc.SpaceID != *rule.SpaceID) {
		return false
	}
	return true
}

// run executes one rule and records the outcome. Handler panics are recovered.
func (e *Engine) run(ctx context.Context, rule models.Automation, tc TriggerContext) error {
	err := e.invoke(ctx, rule, tc)
	if err != nil {
		err = &models.ActionExecutionError{AutomationID: rule.ID, Action: rule.ActionType, Err: err}
		e.logger.Error("automation failed", slog.Int64("automation_id", rule.ID), slog.String("action", string(rule.ActionType)),
			slog.String("error", err.Error()))
	} else {
		e.logger.Debug("automation executed", slog.Int64("automation_id", rule.ID), slog.String("action", string(rule.ActionType)))
	}
	e.history.RecordAutomation(ctx, rule, tc.taskID(), err)
	return err
}

func (e *Engine) invoke(ctx context.Context, rule models.Automation, tc TriggerContext) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("handler panicked: %v", p)
		}
	}()

	action, err := ParseAction(rule.ActionType, rule.ActionData)
	if err != nil {
		return err
	}
	h, ok := e.handlers[action.Type()]
	if !ok {
		return fmt.Errorf("no handler for %s", action.Type())
	}
	if action.TaskScoped() && tc.Task == nil {
		return fmt.Errorf("%s needs a task", action.Type())
	}
	return h(ctx, invocation{rule: rule, action: action, tc: tc})
}

// CheckRecurring runs every enabled scheduled rule whose next run is unset or
// strictly in the past, then stores the following run time whether or not the
// action succeeded.
func (e *Engine) CheckRecurring(ctx context.Context) (Report, error) {
	if err := e.seed(ctx); err != nil {
		return Report{}, err
	}

	now := e.now()
	var (
		report  Report
		loadErr []error
	)
	for _, entry := range e.queue.PopDue(now) {
		rule, err := e.store.GetAutomation(ctx, entry.RuleID)
		if errors.Is(err, models.ErrNotFound) {
			continue
		}
		if err != nil {
			// Keep the entry due so the next sweep retries it.
			e.queue.Set(entry.RuleID, entry.NextRun)
			loadErr = append(loadErr, fmt.Errorf("load automation %d: %w", entry.RuleID, err))
			continue
		}
		if !rule.Enabled || !rule.Scheduled() {
			continue
		}
		if rule.NextRunAt != nil && !rule.NextRunAt.Before(now) {
			// Another process advanced the rule.
			e.queue.Set(rule.ID, *rule.NextRunAt)
			continue
		}

		report.Evaluated++
		runErr := e.runRecurring(ctx, rule)
		report.Runs = append(report.Runs, RuleRun{RuleID: rule.ID, Err: runErr})

		next := schedule.NextRun(*rule.ScheduleType, rule.ScheduleConfig, now)
		if err := e.store.RecordScheduledRun(ctx, rule.ID, now, next); err != nil {
			e.logger.Error("next run not stored", slog.Int64("automation_id", rule.ID), slog.String("error", err.Error()))
		}
		e.queue.Set(rule.ID, next)
		e.logger.Info("recurring automation ran", slog.Int64("automation_id", rule.ID),
			slog.Time("next_run_at", next), slog.Bool("ok", runErr == nil))
	}
	return report, errors.Join(loadErr...)
}

// runRecurring runs a recurring rule with a synthetic context. Task scoped
// actions are applied to every open task in the rule's scope.
func (e *Engine) runRecurring(ctx context.Context, rule models.Automation) error {
	tc := TriggerContext{WorkspaceID: rule.WorkspaceID, SpaceID: rule.SpaceID, ListID: rule.ListID}

	action, err := ParseAction(rule.ActionType, rule.ActionData)
	if err != nil || !action.TaskScoped() {
		return e.run(ctx, rule, tc)
	}

	tasks, err := e.store.ListOpenTasks(ctx, rule.WorkspaceID, rule.SpaceID, rule.ListID)
	if err != nil {
		return e.fail(ctx, rule, fmt.Errorf("list tasks: %w", err))
	}
	var errs []error
	for _, task := range tasks {
		if !Matches(rule.TriggerConditions, TaskFacts(task, nil)) {
			continue
		}
		if err := e.run(ctx, rule, ForTask(task, nil)); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (e *Engine) fail(ctx context.Context, rule models.Automation, err error) error {
	err = &models.ActionExecutionError{AutomationID: rule.ID, Action: rule.ActionType, Err: err}
	e.logger.Error("automation failed", slog.Int64("automation_id", rule.ID), slog.String("error", err.Error()))
	e.history.RecordAutomation(ctx, rule, nil, err)
	return err
}

// CheckDueDates fires due_date_close for every open task due within window.
// Tasks already covered by an earlier pass of this engine are skipped. When
// rules cannot be loaded for a task the pass stops there and the next pass
// resumes from that task.
func (e *Engine) CheckDueDates(ctx context.Context, window time.Duration) (Report, error) {
	now := e.now()
	to := now.Add(window)

	e.dueMu.Lock()
	from := now
	if e.dueHorizon.After(from) {
		from = e.dueHorizon
	}
	e.dueMu.Unlock()
	if !to.After(from) {
		return Report{}, nil
	}

	tasks, err := e.store.ListTasksDueBetween(ctx, from, to)
	if err != nil {
		return Report{}, fmt.Errorf("list due tasks: %w", err)
	}
	var report Report
	for _, task := range tasks {
		r, err := e.Execute(ctx, models.TriggerDueDateClose, ForTask(task, nil))
		report.merge(r)
		if err != nil {
			e.setDueHorizon(task.DueDate.Add(-time.Microsecond))
			return report, fmt.Errorf("due date rules for task %d: %w", task.ID, err)
		}
	}
	e.setDueHorizon(to)
	return report, nil
}

func (e *Engine) setDueHorizon(t time.Time) {
	e.dueMu.Lock()
	defer e.dueMu.Unlock()
	if t.After(e.dueHorizon) {
		e.dueHorizon = t
	}
}

// Schedule keeps the recurring queue in sync with a stored rule.
func (e *Engine) Schedule(rule models.Automation) {
	if !rule.Enabled || !rule.Scheduled() {
		e.queue.Remove(rule.ID)
		return
	}
	var next time.Time
	if rule.NextRunAt != nil {
		next = *rule.NextRunAt
	}
	e.queue.Set(rule.ID, next)
}

// Unschedule drops a rule from the recurring queue.
func (e *Engine) Unschedule(ruleID int64) {
	e.queue.Remove(ruleID)
}

// NextDue returns the earliest scheduled run, if any.
func (e *Engine) NextDue() (time.Time, bool) {
	entry, ok := e.queue.Peek()
	return entry.NextRun, ok
}

func (e *Engine) seed(ctx context.Context) error {
	e.seedMu.Lock()
	defer e.seedMu.Unlock()
	if e.seeded {
		return nil
	}
	rules, err := e.store.ListScheduledAutomations(ctx)
	if err != nil {
		return fmt.Errorf("load scheduled automations: %w", err)
	}
	for _, rule := range rules {
		e.Schedule(rule)
	}
	e.seeded = true
	e.logger.Debug("schedule queue seeded", slog.Int("rules", e.queue.Len()))
	return nil
}
