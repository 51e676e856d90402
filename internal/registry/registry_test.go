package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/prite36/cropsense/internal/database"
	"github.com/prite36/cropsense/internal/models"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	db, err := database.OpenInMemory(t.Name())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	return New(db)
}

func TestAddAndList(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(t)

	moisture := models.NewPinConfig("farm-1", "V1", "Tomato Patch Moisture")
	moisture.ValueKind = models.KindMoisture
	if err := reg.Add(ctx, &moisture); err != nil {
		t.Fatalf("Add returned error: %v", err)
	}
	if moisture.ID == uuid.Nil {
		t.Error("Expected generated ID")
	}
	if moisture.Pin != "v1" {
		t.Errorf("Expected normalized pin v1, got %q", moisture.Pin)
	}

	other := models.NewPinConfig("farm-2", "v1", "Other farm")
	if err := reg.Add(ctx, &other); err != nil {
		t.Fatalf("Same pin on another site should be accepted: %v", err)
	}

	pins, err := reg.ListBySite(ctx, "farm-1")
	if err != nil {
		t.Fatalf("ListBySite returned error: %v", err)
	}
	if len(pins) != 1 || pins[0].Label != "Tomato Patch Moisture" || pins[0].ValueKind != models.KindMoisture {
		t.Errorf("Unexpected pins: %+v", pins)
	}
}

func TestAddDuplicate(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(t)

	first := models.NewPinConfig("farm-1", "v3", "Tank")
	if err := reg.Add(ctx, &first); err != nil {
		t.Fatalf("Add returned error: %v", err)
	}

	second := models.NewPinConfig("farm-1", "V3", "Tank again")
	err := reg.Add(ctx, &second)
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("Expected ErrDuplicate, got %v", err)
	}

	pins, _ := reg.ListBySite(ctx, "farm-1")
	if len(pins) != 1 {
		t.Errorf("Expected a single row after duplicate insert, got %d", len(pins))
	}
}

func TestAddInvalid(t *testing.T) {
	reg := newTestRegistry(t)
	pin := models.PinConfig{SiteID: "farm-1", Pin: " "}
	if err := reg.Add(context.Background(), &pin); !errors.Is(err, ErrInvalidPin) {
		t.Errorf("Expected ErrInvalidPin, got %v", err)
	}
}

func TestAddAppliesDefaults(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(t)

	pin := models.PinConfig{SiteID: "farm-1", Pin: "v7", Label: "Pump", Max: 1}
	if err := reg.Add(ctx, &pin); err != nil {
		t.Fatalf("Add returned error: %v", err)
	}
	got, err := reg.Get(ctx, pin.ID)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if got.Role != models.RoleSensor || got.ValueKind != models.KindGeneric || got.Color != models.DefaultPinColor {
		t.Errorf("Expected defaults to be applied, got %+v", got)
	}
}

func TestExists(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(t)

	pin := models.NewPinConfig("farm-1", "v0", "Temperature")
	if err := reg.Add(ctx, &pin); err != nil {
		t.Fatalf("Add returned error: %v", err)
	}

	testCases := []struct {
		name     string
		siteID   string
		pin      string
		expected bool
	}{
		{name: "registered", siteID: "farm-1", pin: "v0", expected: true},
		{name: "case insensitive", siteID: "farm-1", pin: "V0", expected: true},
		{name: "other pin", siteID: "farm-1", pin: "v1", expected: false},
		{name: "other site", siteID: "farm-2", pin: "v0", expected: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			exists, err := reg.Exists(ctx, tc.siteID, tc.pin)
			if err != nil {
				t.Fatalf("Exists returned error: %v", err)
			}
			if exists != tc.expected {
				t.Errorf("Expected %v, got %v", tc.expected, exists)
			}
		})
	}
}

func TestRemove(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(t)

	pin := models.NewPinConfig("farm-1", "v2", "Humidity")
	if err := reg.Add(ctx, &pin); err != nil {
		t.Fatalf("Add returned error: %v", err)
	}

	if err := reg.Remove(ctx, pin.ID); err != nil {
		t.Fatalf("Remove returned error: %v", err)
	}
	if err := reg.Remove(ctx, pin.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound on second remove, got %v", err)
	}
	if _, err := reg.Get(ctx, pin.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound from Get, got %v", err)
	}
}
