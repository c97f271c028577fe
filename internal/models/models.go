package models

import (
	"encoding/json"
	"time"
)

// DefaultDoneStatus is the terminal status used when a workspace does not define its own.
const DefaultDoneStatus = "done"

// Workspace is the tenant that owns spaces, lists, tasks and automations.
type Workspace struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	DoneStatus string    `json:"done_status"`
	CreatedAt  time.Time `json:"created_at"`
}

// Task represents a single card in a list.
type Task struct {
	ID           int64          `json:"id"`
	WorkspaceID  int64          `json:"workspace_id"`
	SpaceID      *int64         `json:"space_id,omitempty"`
	ListID       *int64         `json:"list_id,omitempty"`
	Title        string         `json:"title"`
	Description  string         `json:"description"`
	Status       string         `json:"status"`
	Priority     string         `json:"priority"`
	DueDate      *time.Time     `json:"due_date,omitempty"`
	AssigneeIDs  []int64        `json:"assignee_ids"`
	Tags         []string       `json:"tags"`
	CustomFields map[string]any `json:"custom_fields"`
	Position     int64          `json:"position"`
	CreatedBy    *int64         `json:"created_by,omitempty"`
	Version      int64          `json:"version"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// HasAssignee reports whether userID is among the task assignees.
func (t Task) HasAssignee(userID int64) bool {
	for _, id := range t.AssigneeIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// Summary returns the short form used in blocker lists.
func (t Task) Summary() TaskSummary {
	return TaskSummary{ID: t.ID, Title: t.Title, Status: t.Status}
}

// TaskSummary is the reduced view of a task returned with blocked transitions.
type TaskSummary struct {
	ID     int64  `json:"id"`
	Title  string `json:"title"`
	Status string `json:"status"`
}

// ValidTaskPriorities enumerates accepted priorities. The empty string means unset.
var ValidTaskPriorities = map[string]struct{}{
	"":       {},
	"low":    {},
	"medium": {},
	"high":   {},
	"urgent": {},
}

// TaskChanges is a partial update. Nil fields are left untouched.
type TaskChanges struct {
	Title        *string        `json:"title,omitempty"`
	Description  *string        `json:"description,omitempty"`
	Status       *string        `json:"status,omitempty"`
	Priority     *string        `json:"priority,omitempty"`
	DueDate      *time.Time     `json:"due_date,omitempty"`
	ClearDueDate bool           `json:"clear_due_date,omitempty"`
	AssigneeIDs  *[]int64       `json:"assignee_ids,omitempty"`
	Tags         *[]string      `json:"tags,omitempty"`
	CustomFields map[string]any `json:"custom_fields,omitempty"`
	Position     *int64         `json:"position,omitempty"`
	ListID       *int64         `json:"list_id,omitempty"`
}

// IsEmpty reports whether no field is set.
func (c TaskChanges) IsEmpty() bool {
	return c.Title == nil && c.Description == nil && c.Status == nil && c.Priority == nil &&
		c.DueDate == nil && !c.ClearDueDate && c.AssigneeIDs == nil && c.Tags == nil &&
		c.CustomFields == nil && c.Position == nil && c.ListID == nil
}

// NewTask holds the fields accepted when creating a task.
type NewTask struct {
	WorkspaceID  int64
	SpaceID      *int64
	ListID       *int64
	Title        string
	Description  string
	Status       string
	Priority     string
	DueDate      *time.Time
	AssigneeIDs  []int64
	Tags         []string
	CustomFields map[string]any
	CreatedBy    *int64
}

// Dependency is a directed edge: TaskID cannot reach done before BlockerID does.
type Dependency struct {
	TaskID    int64     `json:"task_id"`
	BlockerID int64     `json:"blocker_id"`
	CreatedAt time.Time `json:"created_at"`
}

// History action kinds.
const (
	HistoryCreated            = "created"
	HistoryUpdated            = "updated"
	HistoryReassigned         = "reassigned"
	HistoryTemplateApplied    = "template_applied"
	HistoryAutomationExecuted = "automation_executed"
	HistoryAutomationFailed   = "automation_failed"
	HistoryDependencyAdded    = "dependency_added"
	HistoryDependencyRemoved  = "dependency_removed"
)

// HistoryEntry is an immutable audit record. ActorID is nil for system actions.
type HistoryEntry struct {
	ID           int64     `json:"id"`
	TaskID       *int64    `json:"task_id,omitempty"`
	AutomationID *int64    `json:"automation_id,omitempty"`
	ActorID      *int64    `json:"actor_id"`
	Action       string    `json:"action"`
	Field        string    `json:"field"`
	OldValue     string    `json:"old_value"`
	NewValue     string    `json:"new_value"`
	CreatedAt    time.Time `json:"created_at"`
}

// TriggerType names the event that causes rule evaluation.
type TriggerType string

const (
	TriggerTaskCreated   TriggerType = "task_created"
	TriggerStatusChanged TriggerType = "status_changed"
	TriggerDueDateClose  TriggerType = "due_date_close"
	TriggerRecurring     TriggerType = "recurring"
)

// Valid reports whether the trigger is known.
func (t TriggerType) Valid() bool {
	switch t {
	case TriggerTaskCreated, TriggerStatusChanged, TriggerDueDateClose, TriggerRecurring:
		return true
	}
	return false
}

// ActionType names the handler a rule dispatches to.
type ActionType string

const (
	ActionAssignUser          ActionType = "assign_user"
	ActionReassign            ActionType = "reassign"
	ActionApplyTemplate       ActionType = "apply_template"
	ActionNotify              ActionType = "notify"
	ActionSendReminder        ActionType = "send_reminder"
	ActionSendExternalMessage ActionType = "send_external_message"
)

// ScheduleType is the recurrence kind of a recurring rule.
type ScheduleType string

const (
	ScheduleDaily   ScheduleType = "daily"
	ScheduleWeekly  ScheduleType = "weekly"
	ScheduleMonthly ScheduleType = "monthly"
)

// ScheduleConfig configures a recurrence. Nil fields take their defaults.
type ScheduleConfig struct {
	Time       string `json:"time,omitempty"`
	DayOfWeek  *int   `json:"dayOfWeek,omitempty"`
	DayOfMonth *int   `json:"dayOfMonth,omitempty"`
}

// Automation is a stored trigger-condition-action rule.
type Automation struct {
	ID                int64           `json:"id"`
	WorkspaceID       int64           `json:"workspace_id"`
	ListID            *int64          `json:"list_id,omitempty"`
	SpaceID           *int64          `json:"space_id,omitempty"`
	Name              string          `json:"name"`
	TriggerType       TriggerType     `json:"trigger_type"`
	TriggerConditions map[string]any  `json:"trigger_conditions"`
	ActionType        ActionType      `json:"action_type"`
	ActionData        json.RawMessage `json:"action_data"`
	Enabled           bool            `json:"enabled"`
	ScheduleType      *ScheduleType   `json:"schedule_type,omitempty"`
	ScheduleConfig    ScheduleConfig  `json:"schedule_config"`
	LastRunAt         *time.Time      `json:"last_run_at,omitempty"`
	NextRunAt         *time.Time      `json:"next_run_at,omitempty"`
	CreatedBy         *int64          `json:"created_by,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// Scheduled reports whether the rule carries a recurrence.
func (a Automation) Scheduled() bool {
	return a.ScheduleType != nil && *a.ScheduleType != ""
}

// Notification is a persisted message for one recipient.
type Notification struct {
	ID          int64     `json:"id"`
	UserID      int64     `json:"user_id"`
	ActorID     *int64    `json:"actor_id,omitempty"`
	Type        string    `json:"type"`
	Message     string    `json:"message"`
	RelatedID   *int64    `json:"related_id,omitempty"`
	RelatedType string    `json:"related_type,omitempty"`
	Read        bool      `json:"read"`
	CreatedAt   time.Time `json:"created_at"`
}

// Template is a reusable set of task field values.
type Template struct {
	ID           int64          `json:"id"`
	WorkspaceID  int64          `json:"workspace_id"`
	Name         string         `json:"name"`
	Priority     *string        `json:"priority,omitempty"`
	Status       *string        `json:"status,omitempty"`
	Tags         []string       `json:"tags,omitempty"`
	CustomFields map[string]any `json:"custom_fields,omitempty"`
	AssigneeIDs  []int64        `json:"assignee_ids,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// TaskWrite pairs the stored row before and after one write of a bulk update.
type TaskWrite struct {
	Before Task
	After  Task
}
