package irrigation

import (
	"time"

	"github.com/prite36/cropsense/internal/models"
)

// ComputeNextRun returns the first instant strictly after asOf that matches the weekly
// pattern, or nil when no day is active. The result is built in asOf's location.
func ComputeNextRun(days models.Weekdays, at TimeOfDay, asOf time.Time) *time.Time {
	todayIndex := (int(asOf.Weekday()) + 6) % 7 // Monday = 0

	for i := 0; i < 7; i++ {
		if !days[(todayIndex+i)%7] {
			continue
		}

		candidate := time.Date(asOf.Year(), asOf.Month(), asOf.Day()+i, at.Hour, at.Minute, 0, 0, asOf.Location())

		// today's slot has already passed
		if i == 0 && !candidate.After(asOf) {
			continue
		}
		return &candidate
	}

	return nil
}

// NextRunFor recomputes a stored schedule's next run.
func NextRunFor(s *models.IrrigationSchedule, asOf time.Time) (*time.Time, error) {
	at, err := ParseTimeOfDay(s.Time)
	if err != nil {
		return nil, err
	}
	return ComputeNextRun(s.Days, at, asOf), nil
}

// Upcoming recomputes every schedule as of asOf and returns the one that runs first.
// Schedules without active days, or with an unparsable time, are ignored. Ties keep input order.
func Upcoming(schedules []models.IrrigationSchedule, asOf time.Time) (*models.IrrigationSchedule, bool) {
	var (
		best    *models.IrrigationSchedule
		bestRun time.Time
	)

	for i := range schedules {
		next, err := NextRunFor(&schedules[i], asOf)
		if err != nil || next == nil {
			continue
		}
		if best == nil || next.Before(bestRun) {
			s := schedules[i]
			s.NextRunAt = next
			best = &s
			bestRun = *next
		}
	}

	return best, best != nil
}
