package telemetry

import (
	"reflect"
	"testing"

	"github.com/prite36/cropsense/internal/models"
)

func reading(address string, kind models.ValueKind, value float64) Reading {
	return Reading{PinConfig: pin(address, kind), Value: value, Available: true}
}

func TestAlerts(t *testing.T) {
	testCases := []struct {
		name     string
		snapshot Snapshot
		expected []Alert
	}{
		{
			name: "offline hides sensor alerts",
			snapshot: Snapshot{Online: false, Readings: []Reading{
				reading("v3", models.KindTankLevel, 5),
				reading("v6", models.KindRain, 1),
			}},
			expected: []Alert{AlertDeviceOffline},
		},
		{
			name:     "online and normal",
			snapshot: Snapshot{Online: true, Readings: []Reading{reading("v3", models.KindTankLevel, 80)}},
			expected: []Alert{},
		},
		{
			name:     "low water",
			snapshot: Snapshot{Online: true, Readings: []Reading{reading("v3", models.KindTankLevel, 19.9)}},
			expected: []Alert{AlertLowWaterLevel},
		},
		{
			name:     "tank at threshold is fine",
			snapshot: Snapshot{Online: true, Readings: []Reading{reading("v3", models.KindTankLevel, 20)}},
			expected: []Alert{},
		},
		{
			name:     "rain by kind",
			snapshot: Snapshot{Online: true, Readings: []Reading{reading("v6", models.KindRain, 1)}},
			expected: []Alert{AlertRainDetected},
		},
		{
			name:     "rain by conventional address",
			snapshot: Snapshot{Online: true, Readings: []Reading{reading("v4", models.KindGeneric, 1)}},
			expected: []Alert{AlertRainDetected},
		},
		{
			name:     "dry rain sensor",
			snapshot: Snapshot{Online: true, Readings: []Reading{reading("v4", models.KindRain, 0)}},
			expected: []Alert{},
		},
		{
			name: "every tank is checked",
			snapshot: Snapshot{Online: true, Readings: []Reading{
				reading("v3", models.KindTankLevel, 10),
				reading("v4", models.KindRain, 1),
				reading("v7", models.KindTankLevel, 15),
			}},
			expected: []Alert{AlertLowWaterLevel, AlertRainDetected, AlertLowWaterLevel},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := Alerts(&tc.snapshot)
			if !reflect.DeepEqual(got, tc.expected) {
				t.Errorf("Expected %v, got %v", tc.expected, got)
			}
		})
	}
}

func TestAverageMoisture(t *testing.T) {
	testCases := []struct {
		name     string
		readings []Reading
		expected int
	}{
		{name: "no moisture pins", readings: []Reading{reading("v0", models.KindTemperature, 30)}, expected: 0},
		{name: "empty", expected: 0},
		{
			name:     "two sensors",
			readings: []Reading{reading("v1", models.KindMoisture, 30), reading("v2", models.KindMoisture, 50)},
			expected: 40,
		},
		{
			name: "rounds half up",
			readings: []Reading{
				reading("v1", models.KindMoisture, 30),
				reading("v2", models.KindMoisture, 31),
				reading("v0", models.KindTemperature, 99),
			},
			expected: 31,
		},
		{
			name: "rounds down",
			readings: []Reading{
				reading("v1", models.KindMoisture, 10),
				reading("v2", models.KindMoisture, 10),
				reading("v5", models.KindMoisture, 11),
			},
			expected: 10,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := AverageMoisture(&Snapshot{Online: true, Readings: tc.readings}); got != tc.expected {
				t.Errorf("Expected %d, got %d", tc.expected, got)
			}
		})
	}
}
