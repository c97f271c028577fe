package automation

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"tracker/internal/models"
	"tracker/internal/mutation"
)

// Notification types created by rule actions.
const (
	NotificationAutomation = "automation"
	NotificationReminder   = "reminder"
	NotificationExternal   = "external_message"
)

func (e *Engine) handleAssignUser(ctx context.Context, inv invocation) error {
	a := inv.action.(AssignUser)
	return e.assignUser(ctx, inv.rule, inv.tc.Task.ID, a.UserID)
}

// assignUser adds userID to the task unless already assigned.
func (e *Engine) assignUser(ctx context.Context, rule models.Automation, taskID, userID int64) error {
	_, err := e.mutator.ApplySystemUpdate(ctx, taskID, func(current models.Task) (models.TaskChanges, error) {
		if current.HasAssignee(userID) {
			return models.TaskChanges{}, nil
		}
		ids := append(append([]int64(nil), current.AssigneeIDs...), userID)
		return models.TaskChanges{AssigneeIDs: &ids}, nil
	}, mutation.WithAutomation(rule.ID))
	return err
}

func (e *Engine) handleReassign(ctx context.Context, inv invocation) error {
	a := inv.action.(Reassign)

	var members []int64
	if a.RoundRobin {
		var err error
		members, err = e.store.ListMemberIDs(ctx, inv.rule.WorkspaceID)
		if err != nil {
			return fmt.Errorf("list members: %w", err)
		}
		if len(members) == 0 {
			return fmt.Errorf("workspace %d has no members", inv.rule.WorkspaceID)
		}
	}

	_, err := e.mutator.ApplySystemUpdate(ctx, inv.tc.Task.ID, func(current models.Task) (models.TaskChanges, error) {
		var next int64
		if a.RoundRobin {
			next = NextRoundRobin(members, current.AssigneeIDs)
		} else {
			next = *a.UserID
		}
		if len(current.AssigneeIDs) == 1 && current.AssigneeIDs[0] == next {
			return models.TaskChanges{}, nil
		}
		ids := []int64{next}
		return models.TaskChanges{AssigneeIDs: &ids}, nil
	}, mutation.WithAutomation(inv.rule.ID), mutation.WithSummary(models.HistoryReassigned, "assignee_ids", ""))
	return err
}

// NextRoundRobin picks the member after the pivot in members, which must be
// sorted by id. The pivot is the first current assignee, or the first member
// when there is none. A pivot outside the membership restarts at the first member.
func NextRoundRobin(members, assignees []int64) int64 {
	pivot := members[0]
	if len(assignees) > 0 {
		pivot = assignees[0]
	}
	for i, id := range members {
		if id == pivot {
			return members[(i+1)%len(members)]
		}
	}
	return members[0]
}

func (e *Engine) handleApplyTemplate(ctx context.Context, inv invocation) error {
	a := inv.action.(ApplyTemplate)
	tmpl, err := e.store.GetTemplate(ctx, a.TemplateID)
	if err != nil {
		return err
	}
	if tmpl.WorkspaceID != inv.rule.WorkspaceID {
		return fmt.Errorf("template %d belongs to another workspace", tmpl.ID)
	}

	res, err := e.mutator.ApplySystemUpdate(ctx, inv.tc.Task.ID, func(models.Task) (models.TaskChanges, error) {
		var c models.TaskChanges
		c.Priority = tmpl.Priority
		c.Status = tmpl.Status
		if len(tmpl.Tags) > 0 {
			tags := append([]string(nil), tmpl.Tags...)
			c.Tags = &tags
		}
		if len(tmpl.CustomFields) > 0 {
			c.CustomFields = tmpl.CustomFields
		}
		return c, nil
	}, mutation.WithAutomation(inv.rule.ID), mutation.WithSummary(models.HistoryTemplateApplied, "template", tmpl.Name))
	if err != nil {
		return err
	}
	if len(res.Changes) == 0 {
		taskID, ruleID := inv.tc.Task.ID, inv.rule.ID
		e.history.Record(ctx, models.HistoryEntry{
			TaskID:       &taskID,
			AutomationID: &ruleID,
			Action:       models.HistoryTemplateApplied,
			Field:        "template",
			NewValue:     tmpl.Name,
		})
	}

	for _, userID := range tmpl.AssigneeIDs {
		if err := e.assignUser(ctx, inv.rule, inv.tc.Task.ID, userID); err != nil {
			return fmt.Errorf("assign user %d: %w", userID, err)
		}
	}
	return nil
}

func (e *Engine) handleNotify(ctx context.Context, inv invocation) error {
	a := inv.action.(Notify)
	msg := a.Message
	if msg == "" {
		msg = fmt.Sprintf("Automation %q fired", inv.rule.Name)
	}
	_, err := e.notifier.NotifyAll(ctx, a.UserIDs, e.notification(inv, NotificationAutomation, msg))
	return err
}

func (e *Engine) handleSendReminder(ctx context.Context, inv invocation) error {
	a := inv.action.(SendReminder)
	task := *inv.tc.Task
	if task.DueDate == nil {
		return nil
	}
	hours := task.DueDate.Sub(e.now()).Hours()
	if hours <= 0 || hours > a.leadHours() {
		return nil
	}

	recipients := task.AssigneeIDs
	if len(recipients) == 0 {
		members, err := e.store.ListMemberIDs(ctx, task.WorkspaceID)
		if err != nil {
			return fmt.Errorf("list members: %w", err)
		}
		recipients = members
	}
	if len(recipients) == 0 {
		return nil
	}

	msg := a.Message
	if msg == "" {
		msg = fmt.Sprintf("Task %q is due in %d hours", task.Title, int(math.Ceil(hours)))
	}
	_, err := e.notifier.NotifyAll(ctx, recipients, e.notification(inv, NotificationReminder, msg))
	return err
}

// handleSendExternalMessage logs the outbound payload and leaves a notification
// for the rule's creator. Delivery problems never fail the rule.
func (e *Engine) handleSendExternalMessage(ctx context.Context, inv invocation) error {
	a := inv.action.(SendExternalMessage)
	attrs := []any{
		slog.Int64("automation_id", inv.rule.ID),
		slog.String("provider", a.Provider),
		slog.String("channel", a.Channel),
		slog.String("message", a.Message),
	}
	if id := inv.tc.taskID(); id != nil {
		attrs = append(attrs, slog.Int64("task_id", *id))
	}
	e.logger.Info("external message", attrs...)

	if inv.rule.CreatedBy == nil {
		return nil
	}
	n := e.notification(inv, NotificationExternal, fmt.Sprintf("Sent to %s: %s", a.Channel, a.Message))
	n.UserID = *inv.rule.CreatedBy
	if _, err := e.notifier.Notify(ctx, n); err != nil {
		e.logger.Warn("external message notification dropped", slog.Int64("automation_id", inv.rule.ID), slog.String("error", err.Error()))
	}
	return nil
}

func (e *Engine) notification(inv invocation, kind, msg string) models.Notification {
	n := models.Notification{Type: kind, Message: msg}
	if id := inv.tc.taskID(); id != nil {
		n.RelatedID = id
		n.RelatedType = "task"
	} else {
		ruleID := inv.rule.ID
		n.RelatedID = &ruleID
		n.RelatedType = "automation"
	}
	return n
}
