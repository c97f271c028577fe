package automation

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper runs the recurring and due-date passes on a fixed interval.
type Sweeper struct {
	engine    *Engine
	interval  time.Duration
	dueWindow time.Duration
	logger    *slog.Logger
}

// NewSweeper builds a Sweeper. A non-positive dueWindow disables the due-date pass.
func NewSweeper(engine *Engine, interval, dueWindow time.Duration, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{engine: engine, interval: interval, dueWindow: dueWindow, logger: logger}
}

// Run sweeps once immediately and then on every tick until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.Sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep performs one recurring pass followed by one due-date pass.
func (s *Sweeper) Sweep(ctx context.Context) Report {
	var total Report

	report, err := s.engine.CheckRecurring(ctx)
	if err != nil {
		s.logger.Error("recurring sweep failed", slog.String("error", err.Error()))
	}
	total.merge(report)

	if s.dueWindow > 0 {
		report, err = s.engine.CheckDueDates(ctx, s.dueWindow)
		if err != nil {
			s.logger.Error("due date sweep failed", slog.String("error", err.Error()))
		}
		total.merge(report)
	}

	if len(total.Runs) > 0 {
		s.logger.Info("sweep finished", slog.Int("runs", len(total.Runs)), slog.Int("failed", len(total.Failed())))
	}
	return total
}
