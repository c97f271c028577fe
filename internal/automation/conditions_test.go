package automation

import (
	"encoding/json"
	"errors"
	"testing"

	"tracker/internal/models"
)

func TestMatches(t *testing.T) {
	facts := Facts{
		CondStatus:     "todo",
		CondPriority:   "",
		CondListID:     int64(5),
		CondAssigneeID: []int64{3, 9},
		"billable":     false,
		"estimate":     0.0,
	}

	cases := []struct {
		name       string
		conditions map[string]any
		want       bool
	}{
		{"empty matches everything", map[string]any{}, true},
		{"nil conditions", nil, true},
		{"status mismatch", map[string]any{"status": "done"}, false},
		{"status match", map[string]any{"status": "todo"}, true},
		{"null value is vacuous", map[string]any{"status": nil}, true},
		{"key absent from context", map[string]any{"old_status": "done"}, true},
		{"conjunctive", map[string]any{"status": "todo", "list_id": 6.0}, false},
		{"numbers compare by value", map[string]any{"list_id": 5.0}, true},
		{"json number", map[string]any{"list_id": json.Number("5")}, true},
		{"assignee contained", map[string]any{"assignee_id": 9.0}, true},
		{"assignee missing", map[string]any{"assignee_id": 4.0}, false},
		{"false is a value", map[string]any{"billable": false}, true},
		{"false differs from true", map[string]any{"billable": true}, false},
		{"zero is a value", map[string]any{"estimate": 0}, true},
		{"empty string is a value", map[string]any{"priority": "high"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Matches(tc.conditions, facts); got != tc.want {
				t.Fatalf("Matches(%v) = %v, want %v", tc.conditions, got, tc.want)
			}
		})
	}
}

func TestMatchesAnyContextWithNoConditions(t *testing.T) {
	if !Matches(map[string]any{}, Facts{}) || !Matches(map[string]any{}, nil) {
		t.Fatalf("empty conditions must match any context")
	}
}

func TestTaskFacts(t *testing.T) {
	list := int64(4)
	old := "todo"
	task := models.Task{ID: 1, Status: "done", ListID: &list, AssigneeIDs: []int64{2}, CustomFields: map[string]any{"team": "ops", "status": "shadowed"}}
	facts := TaskFacts(task, &old)
	if facts[CondStatus] != "done" || facts[CondOldStatus] != "todo" || facts[CondListID] != int64(4) || facts["team"] != "ops" {
		t.Fatalf("unexpected facts: %+v", facts)
	}
	if _, ok := facts[CondSpaceID]; ok {
		t.Fatalf("unset space must be absent")
	}
}

func TestValidateConditions(t *testing.T) {
	ok := []map[string]any{
		nil,
		{"status": "done", "list_id": 3.0, "assignee_id": nil},
		{"custom": []any{1, 2}},
	}
	for _, c := range ok {
		if err := ValidateConditions(c); err != nil {
			t.Fatalf("ValidateConditions(%v) = %v", c, err)
		}
	}
	bad := []map[string]any{
		{"status": 3.0},
		{"list_id": "five"},
		{"space_id": 1.5},
		{"priority": "critical"},
	}
	for _, c := range bad {
		var verr *models.ValidationError
		if err := ValidateConditions(c); !errors.As(err, &verr) {
			t.Fatalf("ValidateConditions(%v) = %v, want validation error", c, err)
		}
	}
}
