package irrigation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/prite36/cropsense/internal/models"
)

var ErrNotFound = errors.New("schedule not found")

// SchedulePatch holds the fields of an update; nil fields are left untouched.
type SchedulePatch struct {
	Name            *string          `json:"name"`
	Zone            *string          `json:"zone"`
	Time            *string          `json:"time"`
	DurationMinutes *int             `json:"duration"`
	Days            *models.Weekdays `json:"days"`
	Notes           *string          `json:"notes"`
}

// Store persists irrigation schedules and keeps their next run current.
// Every read recomputes NextRunAt against the clock so a stale value is never returned.
type Store struct {
	db     *gorm.DB
	now    func() time.Time
	logger *zap.Logger
}

func NewStore(db *gorm.DB, now func() time.Time, logger *zap.Logger) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{db: db, now: now, logger: logger}
}

// Create validates the schedule and stores it with its initial next run.
func (s *Store) Create(ctx context.Context, sched *models.IrrigationSchedule) error {
	if strings.TrimSpace(sched.Name) == "" {
		return &ValidationError{Field: "name", Reason: "is required"}
	}
	if sched.SiteID == "" {
		return &ValidationError{Field: "siteId", Reason: "is required"}
	}
	if sched.DurationMinutes <= 0 {
		return &ValidationError{Field: "duration", Reason: "must be a positive number of minutes"}
	}
	at, err := ParseTimeOfDay(sched.Time)
	if err != nil {
		return err
	}

	sched.Time = at.String()
	sched.NextRunAt = ComputeNextRun(sched.Days, at, s.now())

	if err := s.db.WithContext(ctx).Create(sched).Error; err != nil {
		return fmt.Errorf("failed to create schedule: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id uuid.UUID) (*models.IrrigationSchedule, error) {
	sched, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	s.refresh(ctx, sched, s.now())
	return sched, nil
}

// List returns the schedules of a site (all sites when siteID is empty), soonest first.
// Schedules without active days come last.
func (s *Store) List(ctx context.Context, siteID string) ([]models.IrrigationSchedule, error) {
	return s.listAt(ctx, siteID, s.now())
}

// Upcoming returns the schedule of a site that runs next.
func (s *Store) Upcoming(ctx context.Context, siteID string) (*models.IrrigationSchedule, bool, error) {
	asOf := s.now()
	schedules, err := s.listAt(ctx, siteID, asOf)
	if err != nil {
		return nil, false, err
	}
	next, ok := Upcoming(schedules, asOf)
	return next, ok, nil
}

// Update applies a patch. The next run is recomputed only when the time or the days change.
func (s *Store) Update(ctx context.Context, id uuid.UUID, patch SchedulePatch) (*models.IrrigationSchedule, error) {
	sched, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	if patch.Name != nil {
		if strings.TrimSpace(*patch.Name) == "" {
			return nil, &ValidationError{Field: "name", Reason: "is required"}
		}
		sched.Name = *patch.Name
	}
	if patch.Zone != nil {
		sched.Zone = *patch.Zone
	}
	if patch.Notes != nil {
		sched.Notes = *patch.Notes
	}
	if patch.DurationMinutes != nil {
		if *patch.DurationMinutes <= 0 {
			return nil, &ValidationError{Field: "duration", Reason: "must be a positive number of minutes"}
		}
		sched.DurationMinutes = *patch.DurationMinutes
	}

	if patch.Time != nil || patch.Days != nil {
		if patch.Time != nil {
			sched.Time = *patch.Time
		}
		if patch.Days != nil {
			sched.Days = *patch.Days
		}
		at, err := ParseTimeOfDay(sched.Time)
		if err != nil {
			return nil, err
		}
		sched.Time = at.String()
		sched.NextRunAt = ComputeNextRun(sched.Days, at, s.now())
	}

	if err := s.db.WithContext(ctx).Save(sched).Error; err != nil {
		return nil, fmt.Errorf("failed to update schedule %s: %w", id, err)
	}
	return sched, nil
}

func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	result := s.db.WithContext(ctx).Delete(&models.IrrigationSchedule{}, "id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete schedule %s: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) load(ctx context.Context, id uuid.UUID) (*models.IrrigationSchedule, error) {
	var sched models.IrrigationSchedule
	err := s.db.WithContext(ctx).First(&sched, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load schedule %s: %w", id, err)
	}
	return &sched, nil
}

func (s *Store) listAt(ctx context.Context, siteID string, asOf time.Time) ([]models.IrrigationSchedule, error) {
	query := s.db.WithContext(ctx).Order("created_at ASC")
	if siteID != "" {
		query = query.Where("site_id = ?", siteID)
	}

	var schedules []models.IrrigationSchedule
	if err := query.Find(&schedules).Error; err != nil {
		return nil, fmt.Errorf("failed to list schedules: %w", err)
	}

	for i := range schedules {
		s.refresh(ctx, &schedules[i], asOf)
	}

	sort.SliceStable(schedules, func(i, j int) bool {
		a, b := schedules[i].NextRunAt, schedules[j].NextRunAt
		if a == nil || b == nil {
			return a != nil && b == nil
		}
		return a.Before(*b)
	})
	return schedules, nil
}

// refresh recomputes NextRunAt and writes it back when the cached value went stale.
func (s *Store) refresh(ctx context.Context, sched *models.IrrigationSchedule, asOf time.Time) {
	next, err := NextRunFor(sched, asOf)
	if err != nil {
		s.logger.Warn("schedule has an invalid time", zap.String("schedule_id", sched.ID.String()), zap.Error(err))
		return
	}
	if sameInstant(sched.NextRunAt, next) {
		return
	}

	sched.NextRunAt = next
	err = s.db.WithContext(ctx).
		Model(&models.IrrigationSchedule{}).
		Where("id = ?", sched.ID).
		UpdateColumn("next_run_at", next).Error
	if err != nil {
		s.logger.Warn("failed to persist refreshed next run", zap.String("schedule_id", sched.ID.String()), zap.Error(err))
	}
}

func sameInstant(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}
