package automation

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"tracker/internal/models"
	"tracker/internal/schedule"
)

// RuleStore persists rule definitions.
type RuleStore interface {
	CreateAutomation(ctx context.Context, a models.Automation) (models.Automation, error)
	UpdateAutomation(ctx context.Context, a models.Automation) (models.Automation, error)
	GetAutomation(ctx context.Context, id int64) (models.Automation, error)
	DeleteAutomation(ctx context.Context, id int64) error
	ListAutomations(ctx context.Context, workspaceID int64) ([]models.Automation, error)
	GetWorkspace(ctx context.Context, id int64) (models.Workspace, error)
}

// RuleInput is the writable part of a rule.
type RuleInput struct {
	ListID            *int64                `json:"list_id"`
	SpaceID           *int64                `json:"space_id"`
	Name              string                `json:"name"`
	TriggerType       models.TriggerType    `json:"trigger_type"`
	TriggerConditions map[string]any        `json:"trigger_conditions"`
	ActionType        models.ActionType     `json:"action_type"`
	ActionData        json.RawMessage       `json:"action_data"`
	Enabled           *bool                 `json:"enabled"`
	ScheduleType      *models.ScheduleType  `json:"schedule_type"`
	ScheduleConfig    models.ScheduleConfig `json:"schedule_config"`
}

// Service validates and stores rules and keeps the engine's recurring queue current.
type Service struct {
	store  RuleStore
	engine *Engine
	logger *slog.Logger
	now    func() time.Time
}

// NewService builds a Service. engine may be nil when no sweep runs in process.
func NewService(store RuleStore, engine *Engine, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	now := time.Now
	if engine != nil {
		now = engine.now
	}
	return &Service{store: store, engine: engine, logger: logger, now: now}
}

// Create validates and stores a new rule. Recurring rules get their first run time.
func (s *Service) Create(ctx context.Context, workspaceID int64, createdBy *int64, in RuleInput) (models.Automation, error) {
	if _, err := s.store.GetWorkspace(ctx, workspaceID); err != nil {
		return models.Automation{}, err
	}
	rule := models.Automation{WorkspaceID: workspaceID, CreatedBy: createdBy, Enabled: true}
	if err := s.apply(&rule, in); err != nil {
		return models.Automation{}, err
	}
	saved, err := s.store.CreateAutomation(ctx, rule)
	if err != nil {
		return models.Automation{}, err
	}
	s.sync(saved)
	s.logger.Info("automation created", slog.Int64("automation_id", saved.ID), slog.String("trigger", string(saved.TriggerType)),
		slog.String("action", string(saved.ActionType)))
	return saved, nil
}

// Update replaces the definition of a rule and recomputes its next run.
func (s *Service) Update(ctx context.Context, id int64, in RuleInput) (models.Automation, error) {
	rule, err := s.store.GetAutomation(ctx, id)
	if err != nil {
		return models.Automation{}, err
	}
	if err := s.apply(&rule, in); err != nil {
		return models.Automation{}, err
	}
	saved, err := s.store.UpdateAutomation(ctx, rule)
	if err != nil {
		return models.Automation{}, err
	}
	s.sync(saved)
	return saved, nil
}

// SetEnabled switches a rule on or off.
func (s *Service) SetEnabled(ctx context.Context, id int64, enabled bool) (models.Automation, error) {
	rule, err := s.store.GetAutomation(ctx, id)
	if err != nil {
		return models.Automation{}, err
	}
	rule.Enabled = enabled
	rule.NextRunAt = s.nextRun(rule)
	saved, err := s.store.UpdateAutomation(ctx, rule)
	if err != nil {
		return models.Automation{}, err
	}
	s.sync(saved)
	return saved, nil
}

// Delete removes a rule.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if err := s.store.DeleteAutomation(ctx, id); err != nil {
		return err
	}
	if s.engine != nil {
		s.engine.Unschedule(id)
	}
	return nil
}

// Get returns one rule.
func (s *Service) Get(ctx context.Context, id int64) (models.Automation, error) {
	return s.store.GetAutomation(ctx, id)
}

// List returns the rules of a workspace, oldest first.
func (s *Service) List(ctx context.Context, workspaceID int64) ([]models.Automation, error) {
	if _, err := s.store.GetWorkspace(ctx, workspaceID); err != nil {
		return nil, err
	}
	return s.store.ListAutomations(ctx, workspaceID)
}

func (s *Service) apply(rule *models.Automation, in RuleInput) error {
	if err := Validate(in); err != nil {
		return err
	}
	action, err := ParseAction(in.ActionType, in.ActionData)
	if err != nil {
		return err
	}
	data, err := EncodeAction(action)
	if err != nil {
		return err
	}

	rule.ListID = in.ListID
	rule.SpaceID = in.SpaceID
	rule.Name = strings.TrimSpace(in.Name)
	rule.TriggerType = in.TriggerType
	rule.TriggerConditions = in.TriggerConditions
	if rule.TriggerConditions == nil {
		rule.TriggerConditions = map[string]any{}
	}
	rule.ActionType = in.ActionType
	rule.ActionData = data
	if in.Enabled != nil {
		rule.Enabled = *in.Enabled
	}
	rule.ScheduleType = nil
	rule.ScheduleConfig = models.ScheduleConfig{}
	if in.ScheduleType != nil {
		st := *in.ScheduleType
		rule.ScheduleType = &st
		rule.ScheduleConfig = in.ScheduleConfig
	}
	rule.NextRunAt = s.nextRun(*rule)
	return nil
}

// Validate checks a rule definition before it is stored.
func Validate(in RuleInput) error {
	if strings.TrimSpace(in.Name) == "" {
		return models.Invalid("name", "automation name must not be empty")
	}
	if !in.TriggerType.Valid() {
		return models.Invalid("trigger_type", "unknown trigger type %q", in.TriggerType)
	}
	if _, err := ParseAction(in.ActionType, in.ActionData); err != nil {
		return err
	}
	if err := ValidateConditions(in.TriggerConditions); err != nil {
		return err
	}
	scheduled := in.ScheduleType != nil && *in.ScheduleType != ""
	switch {
	case in.TriggerType == models.TriggerRecurring && !scheduled:
		return models.Invalid("schedule_type", "recurring automations need a schedule")
	case in.TriggerType != models.TriggerRecurring && scheduled:
		return models.Invalid("schedule_type", "only recurring automations take a schedule")
	}
	if scheduled {
		return schedule.Validate(*in.ScheduleType, in.ScheduleConfig)
	}
	return nil
}

func (s *Service) nextRun(rule models.Automation) *time.Time {
	if !rule.Enabled || !rule.Scheduled() {
		return nil
	}
	next := schedule.NextRun(*rule.ScheduleType, rule.ScheduleConfig, s.now())
	return &next
}

func (s *Service) sync(rule models.Automation) {
	if s.engine != nil {
		s.engine.Schedule(rule)
	}
}
