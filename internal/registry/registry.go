package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/prite36/cropsense/internal/models"
)

var (
	ErrDuplicate  = errors.New("pin already configured for this site")
	ErrNotFound   = errors.New("pin config not found")
	ErrInvalidPin = errors.New("invalid pin config")
)

// Registry persists the pin configuration of every site.
// (site_id, pin) uniqueness is enforced by the idx_site_pin unique index.
type Registry struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Registry {
	return &Registry{db: db}
}

// ListBySite returns the pins of a site in the order they were registered.
func (r *Registry) ListBySite(ctx context.Context, siteID string) ([]models.PinConfig, error) {
	var pins []models.PinConfig
	err := r.db.WithContext(ctx).
		Where("site_id = ?", siteID).
		Order("created_at ASC").
		Order("pin ASC").
		Find(&pins).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list pins for site %s: %w", siteID, err)
	}
	return pins, nil
}

func (r *Registry) Exists(ctx context.Context, siteID, pin string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.PinConfig{}).
		Where("site_id = ? AND pin = ?", siteID, models.NormalizePin(pin)).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to look up pin %s: %w", pin, err)
	}
	return count > 0, nil
}

// Add stores a new pin config. It returns ErrDuplicate when the site already has the pin,
// including when a concurrent insert wins the race.
func (r *Registry) Add(ctx context.Context, pin *models.PinConfig) error {
	pin.Pin = models.NormalizePin(pin.Pin)
	if pin.SiteID == "" || pin.Pin == "" || pin.Label == "" {
		return fmt.Errorf("%w: site, pin and label are required", ErrInvalidPin)
	}
	if pin.Role == "" {
		pin.Role = models.RoleSensor
	}
	if pin.ValueKind == "" {
		pin.ValueKind = models.KindGeneric
	}
	if pin.Color == "" {
		pin.Color = models.DefaultPinColor
	}

	if err := r.db.WithContext(ctx).Create(pin).Error; err != nil {
		if isDuplicate(err) {
			return fmt.Errorf("%w: %s/%s", ErrDuplicate, pin.SiteID, pin.Pin)
		}
		return fmt.Errorf("failed to add pin %s: %w", pin.Pin, err)
	}
	return nil
}

func (r *Registry) Get(ctx context.Context, id uuid.UUID) (*models.PinConfig, error) {
	var pin models.PinConfig
	err := r.db.WithContext(ctx).First(&pin, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load pin %s: %w", id, err)
	}
	return &pin, nil
}

func (r *Registry) Remove(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&models.PinConfig{}, "id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("failed to remove pin %s: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// isDuplicate recognises unique-index violations from either driver, translated or not.
func isDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "SQLSTATE 23505")
}
