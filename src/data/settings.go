package data

import (
	"errors"
	"fmt"
	"sync"

	"github.com/stake-plus/govdecisions/src/shared/gov"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	settingsCache map[string]string
	settingsMu    sync.RWMutex
)

// LoadSettings loads all active settings from the database into cache
func LoadSettings(db *gorm.DB) error {
	if db == nil {
		return errors.New("data: nil database")
	}
	var settings []gov.Setting
	if err := db.Where("active = ?", 1).Find(&settings).Error; err != nil {
		return fmt.Errorf("data: load settings: %w", err)
	}

	settingsMu.Lock()
	defer settingsMu.Unlock()

	settingsCache = make(map[string]string, len(settings))
	for _, s := range settings {
		settingsCache[s.Name] = s.Value
	}

	return nil
}

// GetSetting retrieves a setting value from cache (call LoadSettings first)
func GetSetting(name string) string {
	settingsMu.RLock()
	defer settingsMu.RUnlock()
	return settingsCache[name]
}

// PutSetting upserts an active setting and refreshes the cached value.
func PutSetting(db *gorm.DB, name, value string) error {
	row := gov.Setting{Name: name, Value: value, Active: 1}
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "active"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("data: put setting %s: %w", name, err)
	}

	settingsMu.Lock()
	defer settingsMu.Unlock()
	if settingsCache == nil {
		settingsCache = make(map[string]string)
	}
	settingsCache[name] = value
	return nil
}

// ResetSettings clears the cache.
func ResetSettings() {
	settingsMu.Lock()
	defer settingsMu.Unlock()
	settingsCache = nil
}
