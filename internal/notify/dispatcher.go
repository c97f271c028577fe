// Package notify persists user notifications and publishes realtime events
// for them and for task changes.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"tracker/internal/models"
	"tracker/internal/realtime"
)

// Event types published on realtime channels.
const (
	EventTaskCreated         = "task.created"
	EventTaskUpdated         = "task.updated"
	EventTaskDeleted         = "task.deleted"
	EventNotificationCreated = "notification.created"
)

// Store persists notifications.
type Store interface {
	CreateNotification(ctx context.Context, n models.Notification) (models.Notification, error)
}

// TaskEvent is the payload of task change events.
type TaskEvent struct {
	Task    models.Task `json:"task"`
	ActorID *int64      `json:"actor_id"`
}

// Dispatcher creates notifications and publishes change events.
type Dispatcher struct {
	store     Store
	publisher realtime.Publisher
	logger    *slog.Logger
}

// NewDispatcher builds a Dispatcher. A nil publisher disables realtime events.
func NewDispatcher(store Store, publisher realtime.Publisher, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{store: store, publisher: publisher, logger: logger}
}

// Notify persists n and publishes it on the recipient's channel.
func (d *Dispatcher) Notify(ctx context.Context, n models.Notification) (models.Notification, error) {
	if n.UserID == 0 {
		return models.Notification{}, models.Invalid("user_id", "recipient is required")
	}
	saved, err := d.store.CreateNotification(ctx, n)
	if err != nil {
		return models.Notification{}, fmt.Errorf("create notification: %w", err)
	}
	d.publish(realtime.UserChannel(saved.UserID), EventNotificationCreated, saved)
	return saved, nil
}

// NotifyAll sends a copy of n to every distinct user id. Failed recipients do not
// stop the others; their errors are joined.
func (d *Dispatcher) NotifyAll(ctx context.Context, userIDs []int64, n models.Notification) ([]models.Notification, error) {
	seen := make(map[int64]struct{}, len(userIDs))
	var (
		out  []models.Notification
		errs []error
	)
	for _, id := range userIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		n.UserID = id
		saved, err := d.Notify(ctx, n)
		if err != nil {
			errs = append(errs, fmt.Errorf("user %d: %w", id, err))
			continue
		}
		out = append(out, saved)
	}
	return out, errors.Join(errs...)
}

// TaskChanged publishes the updated task on its task and workspace channels.
func (d *Dispatcher) TaskChanged(task models.Task, actorID *int64) {
	d.publishTask(EventTaskUpdated, task, actorID)
}

// TaskCreated publishes a newly created task.
func (d *Dispatcher) TaskCreated(task models.Task, actorID *int64) {
	d.publishTask(EventTaskCreated, task, actorID)
}

// TaskDeleted publishes the last known state of a deleted task.
func (d *Dispatcher) TaskDeleted(task models.Task, actorID *int64) {
	d.publishTask(EventTaskDeleted, task, actorID)
}

func (d *Dispatcher) publishTask(eventType string, task models.Task, actorID *int64) {
	payload := TaskEvent{Task: task, ActorID: actorID}
	d.publish(realtime.TaskChannel(task.ID), eventType, payload)
	if task.WorkspaceID != 0 {
		d.publish(realtime.WorkspaceChannel(task.WorkspaceID), eventType, payload)
	}
}

func (d *Dispatcher) publish(channel, eventType string, payload any) {
	if d.publisher == nil {
		return
	}
	defer func() {
		if p := recover(); p != nil {
			d.logger.Error("realtime publish panicked", slog.String("channel", channel), slog.Any("panic", p))
		}
	}()
	d.publisher.Publish(channel, eventType, payload)
}
