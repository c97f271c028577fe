// Package schedule computes recurrence times for recurring automations and
// keeps due rules ordered by their next run.
package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"tracker/internal/models"
)

const (
	defaultHour       = 9
	defaultMinute     = 0
	defaultDayOfWeek  = time.Monday
	defaultDayOfMonth = 1
)

// NextRun returns the first occurrence of the schedule strictly after now,
// computed in now's location. Unknown schedule types behave as daily.
func NextRun(scheduleType models.ScheduleType, cfg models.ScheduleConfig, now time.Time) time.Time {
	hour, minute := clockOrDefault(cfg.Time)

	switch scheduleType {
	case models.ScheduleWeekly:
		return nextWeekly(cfg, now, hour, minute)
	case models.ScheduleMonthly:
		return nextMonthly(cfg, now, hour, minute)
	default:
		return nextDaily(now, hour, minute)
	}
}

func nextDaily(now time.Time, hour, minute int) time.Time {
	candidate := at(now.Year(), now.Month(), now.Day(), hour, minute, now.Location())
	if !candidate.After(now) {
		candidate = at(now.Year(), now.Month(), now.Day()+1, hour, minute, now.Location())
	}
	return candidate
}

func nextWeekly(cfg models.ScheduleConfig, now time.Time, hour, minute int) time.Time {
	target := defaultDayOfWeek
	if cfg.DayOfWeek != nil && *cfg.DayOfWeek >= 0 && *cfg.DayOfWeek <= 6 {
		target = time.Weekday(*cfg.DayOfWeek)
	}
	ahead := (int(target) - int(now.Weekday()) + 7) % 7
	candidate := at(now.Year(), now.Month(), now.Day()+ahead, hour, minute, now.Location())
	if !candidate.After(now) {
		candidate = at(now.Year(), now.Month(), now.Day()+ahead+7, hour, minute, now.Location())
	}
	return candidate
}

func nextMonthly(cfg models.ScheduleConfig, now time.Time, hour, minute int) time.Time {
	day := defaultDayOfMonth
	if cfg.DayOfMonth != nil && *cfg.DayOfMonth >= 1 && *cfg.DayOfMonth <= 31 {
		day = *cfg.DayOfMonth
	}
	year, month := now.Year(), now.Month()
	// A day that exists in at least one month of any year is found within 12 steps.
	for i := 0; i < 13; i++ {
		if day <= daysIn(year, month) {
			candidate := at(year, month, day, hour, minute, now.Location())
			if candidate.After(now) {
				return candidate
			}
		}
		month++
		if month > time.December {
			month = time.January
			year++
		}
	}
	return nextDaily(now, hour, minute)
}

func at(year int, month time.Month, day, hour, minute int, loc *time.Location) time.Time {
	return time.Date(year, month, day, hour, minute, 0, 0, loc)
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func clockOrDefault(raw string) (int, int) {
	hour, minute, err := ParseClock(raw)
	if err != nil {
		return defaultHour, defaultMinute
	}
	return hour, minute
}

// ParseClock parses an HH:MM wall clock time. An empty value yields 09:00.
func ParseClock(raw string) (int, int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return defaultHour, defaultMinute, nil
	}
	hh, mm, ok := strings.Cut(raw, ":")
	if !ok {
		return 0, 0, fmt.Errorf("time %q is not HH:MM", raw)
	}
	hour, err := strconv.Atoi(hh)
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("time %q has an invalid hour", raw)
	}
	minute, err := strconv.Atoi(mm)
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("time %q has an invalid minute", raw)
	}
	return hour, minute, nil
}

// Validate checks a schedule before it is stored.
func Validate(scheduleType models.ScheduleType, cfg models.ScheduleConfig) error {
	switch scheduleType {
	case models.ScheduleDaily, models.ScheduleWeekly, models.ScheduleMonthly:
	default:
		return models.Invalid("schedule_type", "unknown schedule type %q", scheduleType)
	}
	if _, _, err := ParseClock(cfg.Time); err != nil {
		return models.Invalid("schedule_config.time", "%v", err)
	}
	if cfg.DayOfWeek != nil && (*cfg.DayOfWeek < 0 || *cfg.DayOfWeek > 6) {
		return models.Invalid("schedule_config.dayOfWeek", "must be between 0 and 6")
	}
	if cfg.DayOfMonth != nil && (*cfg.DayOfMonth < 1 || *cfg.DayOfMonth > 31) {
		return models.Invalid("schedule_config.dayOfMonth", "must be between 1 and 31")
	}
	return nil
}
