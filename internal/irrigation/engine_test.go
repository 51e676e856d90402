package irrigation

import (
	"testing"
	"time"

	"github.com/prite36/cropsense/internal/models"
)

// 2024-01-01 is a Monday.
func monday(hour, minute, second int) time.Time {
	return time.Date(2024, time.January, 1, hour, minute, second, 0, time.UTC)
}

var mondayOnly = models.Weekdays{true, false, false, false, false, false, false}

func TestComputeNextRun(t *testing.T) {
	sixAM := TimeOfDay{Hour: 6, Minute: 0}

	testCases := []struct {
		name     string
		days     models.Weekdays
		at       TimeOfDay
		asOf     time.Time
		expected *time.Time
	}{
		{
			name:     "same day before slot",
			days:     mondayOnly,
			at:       sixAM,
			asOf:     monday(5, 0, 0),
			expected: ptr(monday(6, 0, 0)),
		},
		{
			name:     "exactly at slot rolls to next week",
			days:     mondayOnly,
			at:       sixAM,
			asOf:     monday(6, 0, 0),
			expected: ptr(monday(6, 0, 0).AddDate(0, 0, 7)),
		},
		{
			name:     "just after slot rolls to next week",
			days:     mondayOnly,
			at:       sixAM,
			asOf:     monday(6, 0, 1),
			expected: ptr(monday(6, 0, 0).AddDate(0, 0, 7)),
		},
		{
			name:     "later in the week",
			days:     models.Weekdays{false, false, true, false, false, false, false},
			at:       TimeOfDay{Hour: 18, Minute: 30},
			asOf:     monday(12, 0, 0),
			expected: ptr(time.Date(2024, time.January, 3, 18, 30, 0, 0, time.UTC)),
		},
		{
			name:     "sunday wraps to monday",
			days:     mondayOnly,
			at:       sixAM,
			asOf:     time.Date(2024, time.January, 7, 23, 0, 0, 0, time.UTC),
			expected: ptr(time.Date(2024, time.January, 8, 6, 0, 0, 0, time.UTC)),
		},
		{
			name:     "month boundary",
			days:     models.Weekdays{false, false, false, true, false, false, false},
			at:       TimeOfDay{Hour: 7, Minute: 15},
			asOf:     time.Date(2024, time.January, 29, 9, 0, 0, 0, time.UTC),
			expected: ptr(time.Date(2024, time.February, 1, 7, 15, 0, 0, time.UTC)),
		},
		{
			name:     "seconds are zeroed",
			days:     mondayOnly,
			at:       sixAM,
			asOf:     monday(5, 59, 59).Add(500 * time.Millisecond),
			expected: ptr(monday(6, 0, 0)),
		},
		{
			name:     "no active days",
			days:     models.Weekdays{},
			at:       sixAM,
			asOf:     monday(5, 0, 0),
			expected: nil,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := ComputeNextRun(tc.days, tc.at, tc.asOf)
			if tc.expected == nil {
				if got != nil {
					t.Fatalf("Expected nil, got %v", got)
				}
				return
			}
			if got == nil {
				t.Fatalf("Expected %v, got nil", tc.expected)
			}
			if !got.Equal(*tc.expected) {
				t.Errorf("Expected %v, got %v", tc.expected, got)
			}
		})
	}
}

func TestComputeNextRunProperties(t *testing.T) {
	patterns := []models.Weekdays{
		mondayOnly,
		{false, false, false, false, false, false, true},
		{true, false, true, false, true, false, false},
		{true, true, true, true, true, true, true},
	}
	times := []TimeOfDay{{0, 0}, {6, 0}, {12, 30}, {23, 59}}

	start := monday(0, 0, 0)
	for step := 0; step < 7*24*4; step++ {
		asOf := start.Add(time.Duration(step) * 15 * time.Minute)
		for _, days := range patterns {
			for _, at := range times {
				first := ComputeNextRun(days, at, asOf)
				second := ComputeNextRun(days, at, asOf)

				if first == nil || second == nil {
					t.Fatalf("Expected a next run for %v at %s as of %v", days, at, asOf)
				}
				if !first.Equal(*second) {
					t.Fatalf("Not idempotent: %v vs %v", first, second)
				}
				if !first.After(asOf) {
					t.Fatalf("Next run %v is not after %v", first, asOf)
				}
				if first.Sub(asOf) > 7*24*time.Hour {
					t.Fatalf("Next run %v is more than a week after %v", first, asOf)
				}
				weekday := (int(first.Weekday()) + 6) % 7
				if !days[weekday] {
					t.Fatalf("Next run %v falls on an inactive day for %v", first, days)
				}
				if days == (models.Weekdays{true, true, true, true, true, true, true}) && first.Sub(asOf) > 24*time.Hour {
					t.Fatalf("Daily schedule produced %v, more than 24h after %v", first, asOf)
				}
			}
		}
	}
}

func TestComputeNextRunKeepsLocation(t *testing.T) {
	loc := time.FixedZone("ICT", 7*60*60)
	asOf := time.Date(2024, time.January, 1, 5, 0, 0, 0, loc)

	got := ComputeNextRun(mondayOnly, TimeOfDay{Hour: 6}, asOf)
	if got == nil {
		t.Fatal("Expected a next run")
	}
	if got.Location() != loc || got.Hour() != 6 {
		t.Errorf("Expected 06:00 in %v, got %v", loc, got)
	}
}

func TestUpcoming(t *testing.T) {
	asOf := monday(12, 0, 0)
	schedules := []models.IrrigationSchedule{
		{Name: "never", Time: "06:00"},
		{Name: "wednesday", Time: "06:00", Days: models.Weekdays{false, false, true}},
		{Name: "tuesday-a", Time: "07:00", Days: models.Weekdays{false, true}},
		{Name: "tuesday-b", Time: "07:00", Days: models.Weekdays{false, true}},
		{Name: "broken", Time: "7am", Days: models.Weekdays{true, true, true, true, true, true, true}},
	}

	next, ok := Upcoming(schedules, asOf)
	if !ok {
		t.Fatal("Expected an upcoming schedule")
	}
	if next.Name != "tuesday-a" {
		t.Errorf("Expected tuesday-a (first of the tie), got %s", next.Name)
	}
	if next.NextRunAt == nil || !next.NextRunAt.Equal(time.Date(2024, time.January, 2, 7, 0, 0, 0, time.UTC)) {
		t.Errorf("Unexpected next run %v", next.NextRunAt)
	}
	if schedules[2].NextRunAt != nil {
		t.Error("Upcoming must not modify its input")
	}

	if _, ok := Upcoming(schedules[:1], asOf); ok {
		t.Error("Expected no upcoming schedule when no day is active")
	}
}

func TestUpcomingIgnoresStaleCache(t *testing.T) {
	asOf := monday(12, 0, 0)
	stale := monday(6, 0, 0)
	schedules := []models.IrrigationSchedule{
		{Name: "stale", Time: "06:00", Days: mondayOnly, NextRunAt: &stale},
		{Name: "friday", Time: "06:00", Days: models.Weekdays{false, false, false, false, true}},
	}

	next, ok := Upcoming(schedules, asOf)
	if !ok || next.Name != "friday" {
		t.Fatalf("Expected friday, got %+v", next)
	}
}

func ptr(t time.Time) *time.Time {
	return &t
}
