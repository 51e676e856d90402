package telemetry

import (
	"math"

	"github.com/prite36/cropsense/internal/models"
)

type Alert string

const (
	AlertDeviceOffline Alert = "device-offline"
	AlertLowWaterLevel Alert = "low-water-level"
	AlertRainDetected  Alert = "rain-detected"
)

const (
	// LowWaterThreshold is the tank level (percent) below which water is reported low.
	LowWaterThreshold = 20
	// RainPin is the conventional address of the rain sensor.
	RainPin = "v4"
)

// Alerts derives the alert set of one snapshot. Alerts are not deduplicated across polls.
func Alerts(s *Snapshot) []Alert {
	if !s.Online {
		return []Alert{AlertDeviceOffline}
	}

	alerts := []Alert{}
	for _, r := range s.Readings {
		if r.ValueKind == models.KindTankLevel && r.Value < LowWaterThreshold {
			alerts = append(alerts, AlertLowWaterLevel)
		}
		if (r.ValueKind == models.KindRain || r.Pin == RainPin) && r.Value == 1 {
			alerts = append(alerts, AlertRainDetected)
		}
	}
	return alerts
}

// AverageMoisture is the rounded mean of all moisture pins, 0 when there are none.
func AverageMoisture(s *Snapshot) int {
	var (
		sum   float64
		count int
	)
	for _, r := range s.Readings {
		if r.ValueKind == models.KindMoisture {
			sum += r.Value
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return int(math.Round(sum / float64(count)))
}

// AlertNames converts alerts to their wire names.
func AlertNames(alerts []Alert) []string {
	names := make([]string, len(alerts))
	for i, a := range alerts {
		names[i] = string(a)
	}
	return names
}
