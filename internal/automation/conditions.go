package automation

import (
	"encoding/json"
	"math"
	"reflect"

	"tracker/internal/models"
)

// Facts are the named values of a trigger context that rule conditions test.
type Facts map[string]any

// Condition keys with a fixed meaning. Any other key is looked up among the
// task's custom fields.
const (
	CondStatus     = "status"
	CondOldStatus  = "old_status"
	CondPriority   = "priority"
	CondListID     = "list_id"
	CondSpaceID    = "space_id"
	CondAssigneeID = "assignee_id"
)

// Matches reports whether every condition holds for facts. A condition whose
// expected value is null, or whose key facts do not carry, imposes no
// constraint. Presence is strict: false, 0 and "" are values like any other.
func Matches(conditions map[string]any, facts Facts) bool {
	for key, expected := range conditions {
		if expected == nil {
			continue
		}
		if key == CondAssigneeID {
			ids, ok := facts[key].([]int64)
			if !ok {
				continue
			}
			if !containsID(ids, expected) {
				return false
			}
			continue
		}
		actual, ok := facts[key]
		if !ok || actual == nil {
			continue
		}
		if !equalValues(expected, actual) {
			return false
		}
	}
	return true
}

// ValidateConditions type checks the known condition keys.
func ValidateConditions(conditions map[string]any) error {
	for key, v := range conditions {
		if v == nil {
			continue
		}
		switch key {
		case CondStatus, CondOldStatus, CondPriority:
			if _, ok := v.(string); !ok {
				return models.Invalid("trigger_conditions", "%s must be a string", key)
			}
		case CondListID, CondSpaceID, CondAssigneeID:
			f, ok := number(v)
			if !ok || f != math.Trunc(f) || f <= 0 {
				return models.Invalid("trigger_conditions", "%s must be a positive integer", key)
			}
		}
	}
	if p, ok := conditions[CondPriority].(string); ok {
		if _, known := models.ValidTaskPriorities[p]; !known {
			return models.Invalid("trigger_conditions", "unknown priority %q", p)
		}
	}
	return nil
}

// TaskFacts builds the facts of a task event. oldStatus is nil when the event
// did not change the status.
func TaskFacts(task models.Task, oldStatus *string) Facts {
	facts := Facts{}
	for k, v := range task.CustomFields {
		facts[k] = v
	}
	facts["task_id"] = task.ID
	facts[CondStatus] = task.Status
	facts[CondPriority] = task.Priority
	facts[CondAssigneeID] = append([]int64(nil), task.AssigneeIDs...)
	if task.ListID != nil {
		facts[CondListID] = *task.ListID
	}
	if task.SpaceID != nil {
		facts[CondSpaceID] = *task.SpaceID
	}
	if oldStatus != nil {
		facts[CondOldStatus] = *oldStatus
	}
	return facts
}

func containsID(ids []int64, expected any) bool {
	want, ok := number(expected)
	if !ok {
		return false
	}
	for _, id := range ids {
		if float64(id) == want {
			return true
		}
	}
	return false
}

func equalValues(a, b any) bool {
	if fa, ok := number(a); ok {
		fb, ok := number(b)
		return ok && fa == fb
	}
	return reflect.DeepEqual(a, b)
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}
