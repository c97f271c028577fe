// Package dependency manages blocking edges between tasks and decides whether
// a task may move into its done status.
package dependency

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"tracker/internal/history"
	"tracker/internal/models"
)

// Store is the storage surface used by the gate.
type Store interface {
	GetTask(ctx context.Context, id int64) (models.Task, error)
	InsertDependency(ctx context.Context, taskID, blockerID int64) (bool, error)
	DeleteDependency(ctx context.Context, taskID, blockerID int64) (bool, error)
	ListBlockerIDs(ctx context.Context, taskID int64) ([]int64, error)
	ListBlockers(ctx context.Context, taskID int64, openOnly bool) ([]models.TaskSummary, error)
}

// Gate enforces blocking dependencies.
type Gate struct {
	store   Store
	history *history.Recorder
	logger  *slog.Logger
}

// NewGate builds a Gate. history may be nil.
func NewGate(store Store, recorder *history.Recorder, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{store: store, history: recorder, logger: logger}
}

// MayTransitionToDone reports whether taskID has no unresolved blockers and
// returns every unresolved blocker otherwise.
func (g *Gate) MayTransitionToDone(ctx context.Context, taskID int64) (bool, []models.TaskSummary, error) {
	blockers, err := g.store.ListBlockers(ctx, taskID, true)
	if err != nil {
		return false, nil, fmt.Errorf("load blockers: %w", err)
	}
	return len(blockers) == 0, blockers, nil
}

// Blockers returns every blocker of taskID, resolved or not.
func (g *Gate) Blockers(ctx context.Context, taskID int64) ([]models.TaskSummary, error) {
	if _, err := g.store.GetTask(ctx, taskID); err != nil {
		return nil, err
	}
	return g.store.ListBlockers(ctx, taskID, false)
}

// AddDependency makes taskID wait for blockerID. Adding an existing edge succeeds
// without creating a duplicate. Self edges, edges across workspaces and edges that
// would close a cycle are rejected.
func (g *Gate) AddDependency(ctx context.Context, taskID, blockerID int64, actorID *int64) error {
	if taskID == blockerID {
		return models.Invalid("blocker_id", "a task cannot depend on itself")
	}
	task, err := g.store.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	blocker, err := g.store.GetTask(ctx, blockerID)
	if err != nil {
		return err
	}
	if task.WorkspaceID != blocker.WorkspaceID {
		return models.Invalid("blocker_id", "tasks %d and %d belong to different workspaces", taskID, blockerID)
	}

	cycle, err := g.reaches(ctx, blockerID, taskID)
	if err != nil {
		return err
	}
	if cycle {
		return models.Invalid("blocker_id", "task %d already depends on task %d; the edge would form a cycle", blockerID, taskID)
	}

	created, err := g.store.InsertDependency(ctx, taskID, blockerID)
	if err != nil {
		return err
	}
	if created {
		g.record(ctx, taskID, actorID, models.HistoryDependencyAdded, "", strconv.FormatInt(blockerID, 10))
		g.logger.Info("dependency added", slog.Int64("task_id", taskID), slog.Int64("blocker_id", blockerID))
	}
	return nil
}

// RemoveDependency deletes the edge if present.
func (g *Gate) RemoveDependency(ctx context.Context, taskID, blockerID int64, actorID *int64) error {
	removed, err := g.store.DeleteDependency(ctx, taskID, blockerID)
	if err != nil {
		return err
	}
	if removed {
		g.record(ctx, taskID, actorID, models.HistoryDependencyRemoved, strconv.FormatInt(blockerID, 10), "")
	}
	return nil
}

// reaches reports whether target is reachable from start by following blocker edges.
func (g *Gate) reaches(ctx context.Context, start, target int64) (bool, error) {
	visited := map[int64]struct{}{start: {}}
	frontier := []int64{start}
	for len(frontier) > 0 {
		current := frontier[0]
		frontier = frontier[1:]
		next, err := g.store.ListBlockerIDs(ctx, current)
		if err != nil {
			return false, fmt.Errorf("walk dependencies: %w", err)
		}
		for _, id := range next {
			if id == target {
				return true, nil
			}
			if _, seen := visited[id]; seen {
				continue
			}
			visited[id] = struct{}{}
			frontier = append(frontier, id)
		}
	}
	return false, nil
}

func (g *Gate) record(ctx context.Context, taskID int64, actorID *int64, action, oldValue, newValue string) {
	if g.history == nil {
		return
	}
	g.history.Record(ctx, models.HistoryEntry{
		TaskID:   &taskID,
		ActorID:  actorID,
		Action:   action,
		Field:    "blocker_id",
		OldValue: oldValue,
		NewValue: newValue,
	})
}
