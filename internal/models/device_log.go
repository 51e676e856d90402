package models

import (
	"time"

	"gorm.io/datatypes"
)

// DeviceLog is one recorded poll of a site: pin address -> value.
type DeviceLog struct {
	ID         uint              `gorm:"primaryKey" json:"id"`
	SiteID     string            `gorm:"index:idx_site_recorded,priority:1;not null" json:"siteId"`
	Online     bool              `json:"online"`
	Readings   datatypes.JSONMap `json:"readings"`
	RecordedAt time.Time         `gorm:"index:idx_site_recorded,priority:2;not null" json:"timestamp"`
}

func (DeviceLog) TableName() string {
	return "device_logs"
}

// All returns every persisted model, in migration order.
func All() []interface{} {
	return []interface{}{
		&PinConfig{},
		&IrrigationSchedule{},
		&DeviceLog{},
	}
}
