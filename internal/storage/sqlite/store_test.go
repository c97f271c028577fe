package sqlite

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"tracker/internal/models"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "nested", "tracker.db"), slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func seedWorkspace(t *testing.T, s *Store) models.Workspace {
	t.Helper()
	ws, err := s.CreateWorkspace(context.Background(), "Acme", "")
	if err != nil {
		t.Fatalf("create workspace: %v", err)
	}
	return ws
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open("", nil); err == nil {
		t.Fatalf("expected error for empty path")
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	if err := s.Migrate(); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}

func TestCreateAndGetTask(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	ws := seedWorkspace(t, s)
	if ws.DoneStatus != models.DefaultDoneStatus {
		t.Fatalf("done status should default, got %q", ws.DoneStatus)
	}

	due := time.Date(2024, 5, 7, 12, 0, 0, 0, time.UTC)
	task, err := s.CreateTask(ctx, models.NewTask{
		WorkspaceID:  ws.ID,
		Title:        "Write report",
		DueDate:      &due,
		AssigneeIDs:  []int64{4},
		Tags:         []string{"docs"},
		CustomFields: map[string]any{"team": "ops"},
	})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if task.Version != 1 || task.Status == "" || !task.DueDate.Equal(due) {
		t.Fatalf("unexpected task %+v", task)
	}
	if task.CustomFields["team"] != "ops" || len(task.Tags) != 1 || task.AssigneeIDs[0] != 4 {
		t.Fatalf("json columns not round-tripped: %+v", task)
	}

	if _, err := s.GetTask(ctx, 999); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCompareAndSwapTask(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	ws := seedWorkspace(t, s)
	task, err := s.CreateTask(ctx, models.NewTask{WorkspaceID: ws.ID, Title: "CAS"})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	next := task
	next.Title = "CAS v2"
	next.UpdatedAt = task.UpdatedAt.Add(time.Second)
	saved, err := s.CompareAndSwapTask(ctx, next, task.Version)
	if err != nil {
		t.Fatalf("CompareAndSwapTask: %v", err)
	}
	if saved.Version != task.Version+1 || saved.Title != "CAS v2" {
		t.Fatalf("unexpected saved task %+v", saved)
	}

	if _, err := s.CompareAndSwapTask(ctx, next, task.Version); !errors.Is(err, models.ErrStaleVersion) {
		t.Fatalf("expected stale version, got %v", err)
	}
	next.ID = 999
	if _, err := s.CompareAndSwapTask(ctx, next, 1); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestBulkUpdateRollsBack(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	ws := seedWorkspace(t, s)
	var ids []int64
	for i := 0; i < 3; i++ {
		task, err := s.CreateTask(ctx, models.NewTask{WorkspaceID: ws.ID, Title: fmt.Sprintf("T%d", i)})
		if err != nil {
			t.Fatalf("CreateTask: %v", err)
		}
		ids = append(ids, task.ID)
	}

	calls := 0
	_, err := s.BulkUpdateTasks(ctx, ids, func(task models.Task) (models.Task, error) {
		calls++
		if calls == 3 {
			return task, errors.New("boom")
		}
		task.Priority = "high"
		return task, nil
	})
	if err == nil {
		t.Fatalf("expected bulk failure")
	}
	for _, id := range ids {
		task, err := s.GetTask(ctx, id)
		if err != nil {
			t.Fatalf("GetTask: %v", err)
		}
		if task.Priority == "high" || task.Version != 1 {
			t.Fatalf("task %d should be untouched after rollback: %+v", id, task)
		}
	}

	writes, err := s.BulkUpdateTasks(ctx, ids, func(task models.Task) (models.Task, error) {
		task.Priority = "low"
		return task, nil
	})
	if err != nil {
		t.Fatalf("BulkUpdateTasks: %v", err)
	}
	if len(writes) != 3 || writes[0].Before.Version != 1 || writes[0].After.Version != 2 {
		t.Fatalf("unexpected writes %+v", writes)
	}
}

func TestListTasksDueBetween(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	ws := seedWorkspace(t, s)
	base := time.Date(2024, 5, 6, 8, 0, 0, 0, time.UTC)
	for i, h := range []int{1, 5, 30} {
		due := base.Add(time.Duration(h) * time.Hour)
		if _, err := s.CreateTask(ctx, models.NewTask{WorkspaceID: ws.ID, Title: fmt.Sprintf("D%d", i), DueDate: &due}); err != nil {
			t.Fatalf("CreateTask: %v", err)
		}
	}
	done := base.Add(2 * time.Hour)
	if _, err := s.CreateTask(ctx, models.NewTask{WorkspaceID: ws.ID, Title: "Finished", Status: models.DefaultDoneStatus, DueDate: &done}); err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	tasks, err := s.ListTasksDueBetween(ctx, base, base.Add(5*time.Hour))
	if err != nil {
		t.Fatalf("ListTasksDueBetween: %v", err)
	}
	if len(tasks) != 2 || tasks[0].Title != "D0" || tasks[1].Title != "D1" {
		t.Fatalf("unexpected due tasks %+v", tasks)
	}
}

func TestDependencyEdges(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	ws := seedWorkspace(t, s)
	a, _ := s.CreateTask(ctx, models.NewTask{WorkspaceID: ws.ID, Title: "A"})
	b, _ := s.CreateTask(ctx, models.NewTask{WorkspaceID: ws.ID, Title: "B"})

	created, err := s.InsertDependency(ctx, a.ID, b.ID)
	if err != nil || !created {
		t.Fatalf("InsertDependency = %v, %v", created, err)
	}
	if created, err = s.InsertDependency(ctx, a.ID, b.ID); err != nil || created {
		t.Fatalf("duplicate insert = %v, %v", created, err)
	}
	blockers, err := s.ListBlockers(ctx, a.ID, true)
	if err != nil || len(blockers) != 1 || blockers[0].Title != "B" {
		t.Fatalf("ListBlockers = %+v, %v", blockers, err)
	}
	removed, err := s.DeleteDependency(ctx, a.ID, b.ID)
	if err != nil || !removed {
		t.Fatalf("DeleteDependency = %v, %v", removed, err)
	}
	if removed, _ = s.DeleteDependency(ctx, a.ID, b.ID); removed {
		t.Fatalf("second delete should report nothing removed")
	}
}

func TestNotifications(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	for _, msg := range []string{"first", "second"} {
		if _, err := s.CreateNotification(ctx, models.Notification{UserID: 5, Type: "automation", Message: msg}); err != nil {
			t.Fatalf("CreateNotification: %v", err)
		}
	}
	items, err := s.ListNotifications(ctx, 5, true, 10)
	if err != nil || len(items) != 2 {
		t.Fatalf("ListNotifications = %+v, %v", items, err)
	}
	if err := s.MarkNotificationRead(ctx, items[0].ID, 6); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("other users must not mark read, got %v", err)
	}
	if err := s.MarkNotificationRead(ctx, items[0].ID, 5); err != nil {
		t.Fatalf("MarkNotificationRead: %v", err)
	}
	if items, _ = s.ListNotifications(ctx, 5, true, 10); len(items) != 1 {
		t.Fatalf("expected one unread notification, got %d", len(items))
	}
}

func TestMembers(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	ws := seedWorkspace(t, s)
	for _, id := range []int64{30, 10, 30, 20} {
		if err := s.AddMember(ctx, ws.ID, id); err != nil {
			t.Fatalf("AddMember: %v", err)
		}
	}
	ids, err := s.ListMemberIDs(ctx, ws.ID)
	if err != nil {
		t.Fatalf("ListMemberIDs: %v", err)
	}
	if len(ids) != 3 || ids[0] != 10 || ids[2] != 30 {
		t.Fatalf("unexpected members %v", ids)
	}
	if err := s.AddMember(ctx, 999, 1); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("unknown workspace: %v", err)
	}
}

func TestRecordScheduledRunSkipsDisabledRules(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	ws := seedWorkspace(t, s)
	daily := models.ScheduleDaily
	first := time.Date(2024, 5, 6, 9, 0, 0, 0, time.UTC)
	rule, err := s.CreateAutomation(ctx, models.Automation{
		WorkspaceID:  ws.ID,
		Name:         "Standup",
		TriggerType:  models.TriggerRecurring,
		ActionType:   models.ActionNotify,
		ActionData:   []byte(`{"userIds":[1]}`),
		Enabled:      true,
		ScheduleType: &daily,
		NextRunAt:    &first,
	})
	if err != nil {
		t.Fatalf("CreateAutomation: %v", err)
	}

	next := first.Add(24 * time.Hour)
	if err := s.RecordScheduledRun(ctx, rule.ID, first, next); err != nil {
		t.Fatalf("RecordScheduledRun: %v", err)
	}
	stored, _ := s.GetAutomation(ctx, rule.ID)
	if stored.NextRunAt == nil || !stored.NextRunAt.Equal(next) {
		t.Fatalf("enabled rule next run = %v, want %v", stored.NextRunAt, next)
	}

	stored.Enabled = false
	stored.NextRunAt = nil
	if _, err := s.UpdateAutomation(ctx, stored); err != nil {
		t.Fatalf("UpdateAutomation: %v", err)
	}
	if err := s.RecordScheduledRun(ctx, rule.ID, next, next.Add(24*time.Hour)); err != nil {
		t.Fatalf("RecordScheduledRun: %v", err)
	}
	stored, _ = s.GetAutomation(ctx, rule.ID)
	if stored.NextRunAt != nil {
		t.Fatalf("disabled rule must keep a null next run, got %v", stored.NextRunAt)
	}
}
