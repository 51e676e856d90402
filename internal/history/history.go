package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/prite36/cropsense/internal/models"
	"github.com/prite36/cropsense/internal/telemetry"
)

// Store appends poll snapshots and serves them back by time range.
type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Append(ctx context.Context, snapshot *telemetry.Snapshot) (*models.DeviceLog, error) {
	readings := datatypes.JSONMap{}
	for pin, value := range snapshot.Values() {
		readings[pin] = value
	}

	entry := &models.DeviceLog{
		SiteID:     snapshot.SiteID,
		Online:     snapshot.Online,
		Readings:   readings,
		RecordedAt: snapshot.PolledAt,
	}
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return nil, fmt.Errorf("failed to append device log for site %s: %w", snapshot.SiteID, err)
	}
	return entry, nil
}

// Since returns the logs of a site recorded at or after since, oldest first.
func (s *Store) Since(ctx context.Context, siteID string, since time.Time) ([]models.DeviceLog, error) {
	var logs []models.DeviceLog
	err := s.db.WithContext(ctx).
		Where("site_id = ? AND recorded_at >= ?", siteID, since).
		Order("recorded_at ASC").
		Find(&logs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query device logs for site %s: %w", siteID, err)
	}
	return logs, nil
}

// GraphPoints flattens logs into chart rows: {"timestamp": t, "v0": 23, "v1": 55}.
func GraphPoints(logs []models.DeviceLog) []map[string]interface{} {
	points := make([]map[string]interface{}, 0, len(logs))
	for _, l := range logs {
		point := map[string]interface{}{"timestamp": l.RecordedAt}
		for pin, value := range l.Readings {
			point[pin] = toFloat(value)
		}
		points = append(points, point)
	}
	return points
}

// toFloat undoes the json.Number decoding of JSONMap columns.
func toFloat(v interface{}) interface{} {
	switch n := v.(type) {
	case json.Number:
		if f, err := n.Float64(); err == nil {
			return f
		}
	case int:
		return float64(n)
	case int64:
		return float64(n)
	}
	return v
}
