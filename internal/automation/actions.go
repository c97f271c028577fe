package automation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"tracker/internal/models"
)

// Action is the typed configuration of one rule action.
type Action interface {
	Type() models.ActionType
	// TaskScoped reports whether the action operates on a single task. Recurring
	// runs apply task scoped actions to every open task in the rule's scope.
	TaskScoped() bool
	validate() error
}

// AssignUser adds one user to the task's assignees.
type AssignUser struct {
	UserID int64 `json:"userId"`
}

// Reassign replaces the assignees with one explicit user, or with the next
// workspace member in id order when RoundRobin is set.
type Reassign struct {
	UserID     *int64 `json:"userId,omitempty"`
	RoundRobin bool   `json:"roundRobin,omitempty"`
}

// ApplyTemplate copies a template's fields onto the task.
type ApplyTemplate struct {
	TemplateID int64 `json:"templateId"`
}

// Notify sends a notification to each listed user.
type Notify struct {
	UserIDs []int64 `json:"userIds"`
	Message string  `json:"message,omitempty"`
}

// SendReminder notifies the assignees of a task due within LeadHours.
type SendReminder struct {
	LeadHours float64 `json:"hoursBefore,omitempty"`
	Message   string  `json:"message,omitempty"`
}

// SendExternalMessage posts to an outside chat integration. Delivery is a logged stub.
type SendExternalMessage struct {
	Provider string `json:"provider,omitempty"`
	Channel  string `json:"channel"`
	Message  string `json:"message"`
}

// DefaultReminderLeadHours applies when a reminder rule sets no lead time.
const DefaultReminderLeadHours = 24

func (AssignUser) Type() models.ActionType          { return models.ActionAssignUser }
func (Reassign) Type() models.ActionType            { return models.ActionReassign }
func (ApplyTemplate) Type() models.ActionType       { return models.ActionApplyTemplate }
func (Notify) Type() models.ActionType              { return models.ActionNotify }
func (SendReminder) Type() models.ActionType        { return models.ActionSendReminder }
func (SendExternalMessage) Type() models.ActionType { return models.ActionSendExternalMessage }

func (AssignUser) TaskScoped() bool          { return true }
func (Reassign) TaskScoped() bool            { return true }
func (ApplyTemplate) TaskScoped() bool       { return true }
func (Notify) TaskScoped() bool              { return false }
func (SendReminder) TaskScoped() bool        { return true }
func (SendExternalMessage) TaskScoped() bool { return false }

func (a AssignUser) validate() error {
	if a.UserID <= 0 {
		return models.Invalid("action_data", "userId is required")
	}
	return nil
}

func (a Reassign) validate() error {
	switch {
	case a.RoundRobin && a.UserID != nil:
		return models.Invalid("action_data", "userId and roundRobin are mutually exclusive")
	case !a.RoundRobin && (a.UserID == nil || *a.UserID <= 0):
		return models.Invalid("action_data", "userId is required unless roundRobin is set")
	}
	return nil
}

func (a ApplyTemplate) validate() error {
	if a.TemplateID <= 0 {
		return models.Invalid("action_data", "templateId is required")
	}
	return nil
}

func (a Notify) validate() error {
	if len(a.UserIDs) == 0 {
		return models.Invalid("action_data", "userIds must list at least one user")
	}
	for _, id := range a.UserIDs {
		if id <= 0 {
			return models.Invalid("action_data", "invalid user id %d", id)
		}
	}
	return nil
}

func (a SendReminder) validate() error {
	if a.LeadHours < 0 {
		return models.Invalid("action_data", "hoursBefore must not be negative")
	}
	return nil
}

func (a SendExternalMessage) validate() error {
	if strings.TrimSpace(a.Message) == "" {
		return models.Invalid("action_data", "message is required")
	}
	return nil
}

func (a SendReminder) leadHours() float64 {
	if a.LeadHours == 0 {
		return DefaultReminderLeadHours
	}
	return a.LeadHours
}

// ParseAction decodes and validates the configuration of an action type.
// Unknown fields are rejected.
func ParseAction(t models.ActionType, raw json.RawMessage) (Action, error) {
	var target Action
	switch t {
	case models.ActionAssignUser:
		target = &AssignUser{}
	case models.ActionReassign:
		target = &Reassign{}
	case models.ActionApplyTemplate:
		target = &ApplyTemplate{}
	case models.ActionNotify:
		target = &Notify{}
	case models.ActionSendReminder:
		target = &SendReminder{}
	case models.ActionSendExternalMessage:
		target = &SendExternalMessage{}
	default:
		return nil, models.Invalid("action_type", "unknown action type %q", t)
	}

	if len(bytes.TrimSpace(raw)) > 0 {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(target); err != nil {
			return nil, models.Invalid("action_data", "decode %s config: %v", t, err)
		}
	}

	action := deref(target)
	if err := action.validate(); err != nil {
		return nil, err
	}
	return action, nil
}

// EncodeAction serializes an action configuration for storage.
func EncodeAction(a Action) (json.RawMessage, error) {
	b, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("encode %s config: %w", a.Type(), err)
	}
	return b, nil
}

func deref(a Action) Action {
	switch v := a.(type) {
	case *AssignUser:
		return *v
	case *Reassign:
		return *v
	case *ApplyTemplate:
		return *v
	case *Notify:
		return *v
	case *SendReminder:
		return *v
	case *SendExternalMessage:
		return *v
	}
	return a
}
