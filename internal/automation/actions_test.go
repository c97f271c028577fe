package automation

import (
	"encoding/json"
	"errors"
	"testing"

	"tracker/internal/models"
)

func TestParseAction(t *testing.T) {
	a, err := ParseAction(models.ActionNotify, json.RawMessage(`{"userIds":[7,8],"message":"hi"}`))
	if err != nil {
		t.Fatalf("ParseAction: %v", err)
	}
	n, ok := a.(Notify)
	if !ok || len(n.UserIDs) != 2 || n.Message != "hi" {
		t.Fatalf("unexpected action: %#v", a)
	}

	r, err := ParseAction(models.ActionReassign, json.RawMessage(`{"roundRobin":true}`))
	if err != nil {
		t.Fatalf("ParseAction reassign: %v", err)
	}
	if !r.(Reassign).RoundRobin || !r.TaskScoped() {
		t.Fatalf("unexpected reassign: %#v", r)
	}

	rem, err := ParseAction(models.ActionSendReminder, nil)
	if err != nil {
		t.Fatalf("ParseAction reminder: %v", err)
	}
	if rem.(SendReminder).leadHours() != DefaultReminderLeadHours {
		t.Fatalf("reminder lead should default")
	}
}

func TestParseActionRejectsBadConfig(t *testing.T) {
	cases := []struct {
		action models.ActionType
		raw    string
	}{
		{"explode", `{}`},
		{models.ActionAssignUser, `{}`},
		{models.ActionAssignUser, `{"userId":1,"extra":true}`},
		{models.ActionReassign, `{}`},
		{models.ActionReassign, `{"userId":3,"roundRobin":true}`},
		{models.ActionApplyTemplate, `{"templateId":0}`},
		{models.ActionNotify, `{"userIds":[]}`},
		{models.ActionSendReminder, `{"hoursBefore":-1}`},
		{models.ActionSendExternalMessage, `{"channel":"#ops"}`},
		{models.ActionNotify, `not json`},
	}
	for _, tc := range cases {
		_, err := ParseAction(tc.action, json.RawMessage(tc.raw))
		var verr *models.ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("ParseAction(%s, %s) = %v, want validation error", tc.action, tc.raw, err)
		}
	}
}

func TestEncodeActionRoundTrip(t *testing.T) {
	raw, err := EncodeAction(AssignUser{UserID: 5})
	if err != nil {
		t.Fatalf("EncodeAction: %v", err)
	}
	if string(raw) != `{"userId":5}` {
		t.Fatalf("unexpected encoding %s", raw)
	}
}
