package database

import (
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/prite36/cropsense/internal/config"
	"github.com/prite36/cropsense/internal/models"
)

func TestOpenSQLite(t *testing.T) {
	cfg := &config.Config{Database: config.DatabaseConfig{
		Driver: "sqlite",
		Path:   filepath.Join(t.TempDir(), "farm.db"),
	}}

	db, err := Open(cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	defer Close(db)

	for _, model := range models.All() {
		if !db.Migrator().HasTable(model) {
			t.Errorf("Expected table for %T", model)
		}
	}
}

func TestOpenUnsupportedDriver(t *testing.T) {
	cfg := &config.Config{Database: config.DatabaseConfig{Driver: "mongo"}}
	if _, err := Open(cfg, zap.NewNop()); err == nil {
		t.Error("Expected error for unsupported driver")
	}
}

func TestOpenInMemoryIsolated(t *testing.T) {
	first, err := OpenInMemory(t.Name() + "/a")
	if err != nil {
		t.Fatalf("OpenInMemory returned error: %v", err)
	}
	defer Close(first)
	second, err := OpenInMemory(t.Name() + "/b")
	if err != nil {
		t.Fatalf("OpenInMemory returned error: %v", err)
	}
	defer Close(second)

	pin := models.NewPinConfig("farm-1", "v0", "Temp")
	if err := first.Create(&pin).Error; err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	var count int64
	second.Model(&models.PinConfig{}).Count(&count)
	if count != 0 {
		t.Errorf("Expected databases to be isolated, found %d pins", count)
	}
}
