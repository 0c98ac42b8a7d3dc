package database

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// ConfigStore adapts the alerts_config singleton row to the rules service's
// persistence interface.
type ConfigStore struct{}

// NewConfigStore returns a store backed by the global database connection.
func NewConfigStore() *ConfigStore {
	return &ConfigStore{}
}

// LoadConfig returns the persisted rules config document, empty when the
// singleton row does not exist yet.
func (s *ConfigStore) LoadConfig() (map[string]interface{}, error) {
	if DB == nil {
		return nil, ErrNoDatabase
	}
	var row AlertsConfig
	if err := DB.First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return map[string]interface{}{}, nil
		}
		return nil, fmt.Errorf("failed to load alerts config: %w", err)
	}
	if row.Config == nil {
		return map[string]interface{}{}, nil
	}
	return row.Config, nil
}

// SaveConfig writes the rules config document into the singleton row.
func (s *ConfigStore) SaveConfig(raw map[string]interface{}) error {
	if DB == nil {
		return ErrNoDatabase
	}

	var row AlertsConfig
	err := DB.First(&row).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		row = AlertsConfig{Config: JSONB(raw)}
		if err := DB.Create(&row).Error; err != nil {
			return fmt.Errorf("failed to create alerts config: %w", err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("failed to load alerts config: %w", err)
	}

	row.Config = JSONB(raw)
	if err := DB.Save(&row).Error; err != nil {
		return fmt.Errorf("failed to save alerts config: %w", err)
	}
	return nil
}
