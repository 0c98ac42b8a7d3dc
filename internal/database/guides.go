package database

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNoDatabase is returned by operations that require a configured
// database when none is connected.
var ErrNoDatabase = errors.New("no database configured")

// GetGuide returns the troubleshooting guide for one rule name.
func GetGuide(ruleName string) (*TroubleshootingGuide, error) {
	if DB == nil {
		return nil, ErrNoDatabase
	}
	var guide TroubleshootingGuide
	if err := DB.Where("rule_name = ?", ruleName).First(&guide).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load guide: %w", err)
	}
	return &guide, nil
}

// ListGuides returns all guides ordered by rule name.
func ListGuides() ([]TroubleshootingGuide, error) {
	if DB == nil {
		return nil, ErrNoDatabase
	}
	var guides []TroubleshootingGuide
	if err := DB.Order("rule_name asc").Find(&guides).Error; err != nil {
		return nil, fmt.Errorf("failed to list guides: %w", err)
	}
	return guides, nil
}

// UpsertGuide creates or replaces the guide for a rule name.
func UpsertGuide(ruleName, content string) error {
	if DB == nil {
		return ErrNoDatabase
	}
	guide := TroubleshootingGuide{RuleName: ruleName, Content: content}
	err := DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "rule_name"}},
		DoUpdates: clause.AssignmentColumns([]string{"content", "updated_at"}),
	}).Create(&guide).Error
	if err != nil {
		return fmt.Errorf("failed to upsert guide: %w", err)
	}
	return nil
}
