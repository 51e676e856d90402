package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type PinRole string

const (
	RoleSensor   PinRole = "SENSOR"
	RoleActuator PinRole = "ACTUATOR"
)

// ParsePinRole defaults to RoleSensor for anything that is not an actuator.
func ParsePinRole(s string) PinRole {
	if strings.EqualFold(strings.TrimSpace(s), string(RoleActuator)) {
		return RoleActuator
	}
	return RoleSensor
}

// ValueKind is the semantic category of a pin's reading.
type ValueKind string

const (
	KindTemperature ValueKind = "temperature"
	KindHumidity    ValueKind = "humidity"
	KindMoisture    ValueKind = "moisture"
	KindTankLevel   ValueKind = "tank"
	KindSwitch      ValueKind = "switch"
	KindRain        ValueKind = "rain"
	KindGeneric     ValueKind = "generic"
)

// ParseValueKind maps free-form sensor types onto the closed set of kinds.
// Unknown values fall back to KindGeneric.
func ParseValueKind(s string) ValueKind {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "temperature":
		return KindTemperature
	case "humidity":
		return KindHumidity
	case "moisture":
		return KindMoisture
	case "tank", "level", "tank-level":
		return KindTankLevel
	case "switch":
		return KindSwitch
	case "rain":
		return KindRain
	default:
		return KindGeneric
	}
}

// PinConfig maps a device pin of a site to its display metadata.
type PinConfig struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	SiteID    string    `gorm:"uniqueIndex:idx_site_pin;not null" json:"siteId"`
	Pin       string    `gorm:"uniqueIndex:idx_site_pin;type:varchar(16);not null" json:"pin"`
	Label     string    `gorm:"not null" json:"label"`
	Role      PinRole   `gorm:"type:varchar(10);not null" json:"type"`
	ValueKind ValueKind `gorm:"type:varchar(20);not null" json:"dataType"`
	Min       float64   `gorm:"not null" json:"min"`
	Max       float64   `gorm:"not null" json:"max"`
	Color     string    `gorm:"type:varchar(16);not null" json:"color"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

const DefaultPinColor = "#10b981"

// NewPinConfig returns a sensor config with the default 0..100 display range.
func NewPinConfig(siteID, pin, label string) PinConfig {
	return PinConfig{
		SiteID:    siteID,
		Pin:       NormalizePin(pin),
		Label:     label,
		Role:      RoleSensor,
		ValueKind: KindGeneric,
		Min:       0,
		Max:       100,
		Color:     DefaultPinColor,
	}
}

func (PinConfig) TableName() string {
	return "pin_configs"
}

func (p *PinConfig) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// NormalizePin lower-cases and trims a pin address such as "V3".
func NormalizePin(pin string) string {
	return strings.ToLower(strings.TrimSpace(pin))
}
