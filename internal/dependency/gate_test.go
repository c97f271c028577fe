package dependency

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"tracker/internal/history"
	"tracker/internal/models"
	"tracker/internal/storage/sqlite"
)

type fixture struct {
	store *sqlite.Store
	gate  *Gate
	ws    models.Workspace
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "tracker.db"), logger)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	ws, err := store.CreateWorkspace(context.Background(), "Acme", "")
	if err != nil {
		t.Fatalf("create workspace: %v", err)
	}
	return fixture{store: store, gate: NewGate(store, history.NewRecorder(store, logger), logger), ws: ws}
}

func (f fixture) task(t *testing.T, title, status string) models.Task {
	t.Helper()
	task, err := f.store.CreateTask(context.Background(), models.NewTask{WorkspaceID: f.ws.ID, Title: title, Status: status})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	return task
}

func isValidation(err error) bool {
	var verr *models.ValidationError
	return errors.As(err, &verr)
}

func TestMayTransitionToDoneListsEveryOpenBlocker(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	task := f.task(t, "Ship", "")
	open1 := f.task(t, "Review", "")
	open2 := f.task(t, "QA", "in_progress")
	closed := f.task(t, "Spec", models.DefaultDoneStatus)
	for _, b := range []models.Task{open1, open2, closed} {
		if err := f.gate.AddDependency(ctx, task.ID, b.ID, nil); err != nil {
			t.Fatalf("AddDependency: %v", err)
		}
	}

	ok, blockers, err := f.gate.MayTransitionToDone(ctx, task.ID)
	if err != nil {
		t.Fatalf("MayTransitionToDone: %v", err)
	}
	if ok || len(blockers) != 2 {
		t.Fatalf("expected two open blockers, got ok=%v %+v", ok, blockers)
	}

	all, err := f.gate.Blockers(ctx, task.ID)
	if err != nil || len(all) != 3 {
		t.Fatalf("Blockers = %+v, %v", all, err)
	}

	ok, _, err = f.gate.MayTransitionToDone(ctx, open1.ID)
	if err != nil || !ok {
		t.Fatalf("task without blockers should pass, got %v %v", ok, err)
	}
}

func TestAddDependencyRejectsBadEdges(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.task(t, "A", "")
	b := f.task(t, "B", "")
	c := f.task(t, "C", "")

	if err := f.gate.AddDependency(ctx, a.ID, a.ID, nil); !isValidation(err) {
		t.Fatalf("self edge: %v", err)
	}
	if err := f.gate.AddDependency(ctx, a.ID, 999, nil); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("unknown blocker: %v", err)
	}

	// a <- b <- c; c <- a would close the loop.
	if err := f.gate.AddDependency(ctx, a.ID, b.ID, nil); err != nil {
		t.Fatalf("AddDependency: %v", err)
	}
	if err := f.gate.AddDependency(ctx, b.ID, c.ID, nil); err != nil {
		t.Fatalf("AddDependency: %v", err)
	}
	if err := f.gate.AddDependency(ctx, c.ID, a.ID, nil); !isValidation(err) {
		t.Fatalf("cycle: %v", err)
	}

	other, err := f.store.CreateWorkspace(ctx, "Other", "")
	if err != nil {
		t.Fatalf("create workspace: %v", err)
	}
	foreign, err := f.store.CreateTask(ctx, models.NewTask{WorkspaceID: other.ID, Title: "Elsewhere"})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	if err := f.gate.AddDependency(ctx, a.ID, foreign.ID, nil); !isValidation(err) {
		t.Fatalf("cross workspace: %v", err)
	}
}

func TestAddRemoveAreIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.task(t, "A", "")
	b := f.task(t, "B", "")
	actor := int64(9)

	for i := 0; i < 2; i++ {
		if err := f.gate.AddDependency(ctx, a.ID, b.ID, &actor); err != nil {
			t.Fatalf("AddDependency #%d: %v", i, err)
		}
	}
	for i := 0; i < 2; i++ {
		if err := f.gate.RemoveDependency(ctx, a.ID, b.ID, &actor); err != nil {
			t.Fatalf("RemoveDependency #%d: %v", i, err)
		}
	}

	entries, err := f.store.ListHistory(ctx, a.ID)
	if err != nil {
		t.Fatalf("ListHistory: %v", err)
	}
	if len(entries) != 2 || entries[0].Action != models.HistoryDependencyAdded || entries[1].Action != models.HistoryDependencyRemoved {
		t.Fatalf("only real edge changes are recorded, got %+v", entries)
	}
}
