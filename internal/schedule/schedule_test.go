package schedule

import (
	"testing"
	"time"

	"tracker/internal/models"
)

func intp(v int) *int { return &v }

func TestNextRunDaily(t *testing.T) {
	cases := []struct {
		name string
		now  time.Time
		cfg  models.ScheduleConfig
		want time.Time
	}{
		{
			name: "later today",
			now:  time.Date(2026, 3, 4, 8, 0, 0, 0, time.UTC),
			want: time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC),
		},
		{
			name: "past rolls to tomorrow",
			now:  time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC),
			want: time.Date(2026, 3, 5, 9, 0, 0, 0, time.UTC),
		},
		{
			name: "exact time rolls to tomorrow",
			now:  time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC),
			want: time.Date(2026, 3, 5, 9, 0, 0, 0, time.UTC),
		},
		{
			name: "configured time",
			now:  time.Date(2026, 12, 31, 18, 0, 0, 0, time.UTC),
			cfg:  models.ScheduleConfig{Time: "17:30"},
			want: time.Date(2027, 1, 1, 17, 30, 0, 0, time.UTC),
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := NextRun(models.ScheduleDaily, tc.cfg, tc.now)
			if !got.Equal(tc.want) {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
		})
	}
}

func TestNextRunWeeklySameDayPastRollsFullWeek(t *testing.T) {
	// 2026-03-04 is a Wednesday.
	now := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
	got := NextRun(models.ScheduleWeekly, models.ScheduleConfig{DayOfWeek: intp(3), Time: "09:00"}, now)
	want := time.Date(2026, 3, 11, 9, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestNextRunWeekly(t *testing.T) {
	now := time.Date(2026, 3, 4, 8, 0, 0, 0, time.UTC)
	if got, want := NextRun(models.ScheduleWeekly, models.ScheduleConfig{DayOfWeek: intp(3)}, now), time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC); !got.Equal(want) {
		t.Fatalf("same day before time: expected %s, got %s", want, got)
	}
	if got, want := NextRun(models.ScheduleWeekly, models.ScheduleConfig{}, now), time.Date(2026, 3, 9, 9, 0, 0, 0, time.UTC); !got.Equal(want) {
		t.Fatalf("default monday: expected %s, got %s", want, got)
	}
	if got, want := NextRun(models.ScheduleWeekly, models.ScheduleConfig{DayOfWeek: intp(0), Time: "07:15"}, now), time.Date(2026, 3, 8, 7, 15, 0, 0, time.UTC); !got.Equal(want) {
		t.Fatalf("sunday: expected %s, got %s", want, got)
	}
}

func TestNextRunMonthly(t *testing.T) {
	cases := []struct {
		name string
		now  time.Time
		day  *int
		want time.Time
	}{
		{
			name: "default first of next month",
			now:  time.Date(2026, 3, 4, 8, 0, 0, 0, time.UTC),
			want: time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC),
		},
		{
			name: "later this month",
			now:  time.Date(2026, 3, 4, 8, 0, 0, 0, time.UTC),
			day:  intp(20),
			want: time.Date(2026, 3, 20, 9, 0, 0, 0, time.UTC),
		},
		{
			name: "missing day skips short month",
			now:  time.Date(2026, 4, 2, 8, 0, 0, 0, time.UTC),
			day:  intp(31),
			want: time.Date(2026, 5, 31, 9, 0, 0, 0, time.UTC),
		},
		{
			name: "passed day in january skips february",
			now:  time.Date(2026, 1, 31, 10, 0, 0, 0, time.UTC),
			day:  intp(31),
			want: time.Date(2026, 3, 31, 9, 0, 0, 0, time.UTC),
		},
		{
			name: "december wraps the year",
			now:  time.Date(2026, 12, 15, 8, 0, 0, 0, time.UTC),
			day:  intp(10),
			want: time.Date(2027, 1, 10, 9, 0, 0, 0, time.UTC),
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := NextRun(models.ScheduleMonthly, models.ScheduleConfig{DayOfMonth: tc.day}, tc.now)
			if !got.Equal(tc.want) {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
		})
	}
}

func TestNextRunUnknownTypeIsDaily(t *testing.T) {
	now := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
	got := NextRun("hourly", models.ScheduleConfig{}, now)
	if want := NextRun(models.ScheduleDaily, models.ScheduleConfig{}, now); !got.Equal(want) {
		t.Fatalf("expected daily semantics %s, got %s", want, got)
	}
}

func TestNextRunIsPure(t *testing.T) {
	now := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
	cfg := models.ScheduleConfig{DayOfMonth: intp(31), Time: "23:59"}
	first := NextRun(models.ScheduleMonthly, cfg, now)
	for i := 0; i < 5; i++ {
		if got := NextRun(models.ScheduleMonthly, cfg, now); !got.Equal(first) {
			t.Fatalf("expected stable result %s, got %s", first, got)
		}
	}
}

func TestNextRunKeepsLocation(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*60*60)
	now := time.Date(2026, 3, 4, 10, 0, 0, 0, loc)
	got := NextRun(models.ScheduleDaily, models.ScheduleConfig{Time: "11:00"}, now)
	if got.Location() != loc || got.Hour() != 11 || got.Day() != 4 {
		t.Fatalf("expected 11:00 on the 4th in UTC+3, got %s", got)
	}
}

func TestValidate(t *testing.T) {
	if err := Validate(models.ScheduleWeekly, models.ScheduleConfig{DayOfWeek: intp(3), Time: "09:00"}); err != nil {
		t.Fatalf("expected valid schedule, got %v", err)
	}
	bad := []struct {
		typ models.ScheduleType
		cfg models.ScheduleConfig
	}{
		{"hourly", models.ScheduleConfig{}},
		{models.ScheduleDaily, models.ScheduleConfig{Time: "25:00"}},
		{models.ScheduleDaily, models.ScheduleConfig{Time: "nine"}},
		{models.ScheduleWeekly, models.ScheduleConfig{DayOfWeek: intp(7)}},
		{models.ScheduleMonthly, models.ScheduleConfig{DayOfMonth: intp(0)}},
	}
	for _, b := range bad {
		if err := Validate(b.typ, b.cfg); err == nil {
			t.Fatalf("expected error for %s %+v", b.typ, b.cfg)
		}
	}
}
