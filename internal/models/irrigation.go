package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Weekdays marks the active days of a recurring schedule, index 0 = Monday .. 6 = Sunday.
type Weekdays [7]bool

// Any reports whether at least one day is active.
func (w Weekdays) Any() bool {
	for _, active := range w {
		if active {
			return true
		}
	}
	return false
}

// Value stores the days as a 7 character "1"/"0" mask.
func (w Weekdays) Value() (driver.Value, error) {
	mask := make([]byte, len(w))
	for i, active := range w {
		mask[i] = '0'
		if active {
			mask[i] = '1'
		}
	}
	return string(mask), nil
}

func (w *Weekdays) Scan(src interface{}) error {
	var mask string
	switch v := src.(type) {
	case string:
		mask = v
	case []byte:
		mask = string(v)
	case nil:
		*w = Weekdays{}
		return nil
	default:
		return fmt.Errorf("unsupported weekdays column type %T", src)
	}
	if len(mask) != len(w) {
		return fmt.Errorf("weekdays mask %q must have %d characters", mask, len(w))
	}
	for i := range w {
		w[i] = mask[i] == '1'
	}
	return nil
}

func (w *Weekdays) UnmarshalJSON(data []byte) error {
	var days []bool
	if err := json.Unmarshal(data, &days); err != nil {
		return fmt.Errorf("days must be an array of booleans: %w", err)
	}
	if len(days) != len(w) {
		return fmt.Errorf("days must contain exactly %d entries, got %d", len(w), len(days))
	}
	copy(w[:], days)
	return nil
}

// IrrigationSchedule is a recurring irrigation task. NextRunAt is derived from Days and Time.
type IrrigationSchedule struct {
	ID              uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Name            string     `gorm:"not null" json:"name"`
	SiteID          string     `gorm:"index;not null" json:"siteId"`
	Zone            string     `json:"zone"`
	Time            string     `gorm:"type:varchar(5);not null" json:"time"`
	DurationMinutes int        `gorm:"not null" json:"duration"`
	Days            Weekdays   `gorm:"type:varchar(7);not null" json:"days"`
	Notes           string     `json:"notes"`
	NextRunAt       *time.Time `gorm:"index" json:"nextRun"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

func (IrrigationSchedule) TableName() string {
	return "irrigation_schedules"
}

func (s *IrrigationSchedule) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}
