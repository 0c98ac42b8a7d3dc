package database

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// JSONB is a custom type for PostgreSQL JSONB columns
type JSONB map[string]interface{}

// Scan implements the sql.Scanner interface
func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = make(map[string]interface{})
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, j)
	case string:
		return json.Unmarshal([]byte(v), j)
	default:
		return errors.New("unsupported JSONB source type")
	}
}

// Value implements the driver.Valuer interface
func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// AuditEvent is one row of the append-only lifecycle record. Every chat
// emission and user transition produces one.
type AuditEvent struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	AlertID        string    `gorm:"size:255;index" json:"alert_id"`
	Resource       string    `gorm:"size:255" json:"resource"`
	Status         string    `gorm:"size:32" json:"status"`
	MessageID      string    `gorm:"size:64" json:"message_id"`
	ChannelID      string    `gorm:"size:64" json:"channel_id"`
	Severity       string    `gorm:"size:32" json:"severity"`
	RuleName       string    `gorm:"size:255;index" json:"rule_name"`
	Source         string    `gorm:"size:64" json:"source"`
	AcknowledgedBy string    `gorm:"size:64" json:"acknowledged_by,omitempty"`
	ResolvedBy     string    `gorm:"size:64" json:"resolved_by,omitempty"`
	CreatedAt      time.Time `gorm:"index" json:"created_at"`
}

// TableName overrides the default table name
func (AuditEvent) TableName() string {
	return "alert_events"
}

// AlertsConfig is the singleton persisted rules configuration.
type AlertsConfig struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Config    JSONB     `gorm:"type:jsonb" json:"config"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName overrides the default table name
func (AlertsConfig) TableName() string {
	return "alerts_config"
}

// TroubleshootingGuide holds the markdown runbook for one rule.
type TroubleshootingGuide struct {
	RuleName  string    `gorm:"primaryKey;size:255" json:"alert_type"`
	Content   string    `gorm:"type:text" json:"content"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName overrides the default table name
func (TroubleshootingGuide) TableName() string {
	return "troubleshooting_guides"
}
