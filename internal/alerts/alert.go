package alerts

import (
	"strings"
	"time"
	"unicode/utf8"
)

// AlertStatus is the lifecycle status carried by a source event.
// Acknowledged is a user action and is never produced by a normalizer.
type AlertStatus string

const (
	StatusFiring   AlertStatus = "firing"
	StatusResolved AlertStatus = "resolved"
)

// AlertSeverity is the normalized severity of an alert.
type AlertSeverity string

const (
	SeverityCritical AlertSeverity = "critical"
	SeverityHigh     AlertSeverity = "high"
	SeverityWarning  AlertSeverity = "warning"
	SeverityInfo     AlertSeverity = "info"
)

// Field is a single label/annotation pair rendered on the chat message.
// Order is preserved from the source payload.
type Field struct {
	Name  string
	Value string
}

// Limits applied to the field list before it reaches the chat layer.
const (
	MaxFields        = 25
	MaxFieldValueLen = 1024
)

// CanonicalAlert is the common alert format all adapters produce.
// It is the only payload shape the processor understands.
type CanonicalAlert struct {
	// AlertID is the stable fingerprint from the source, unique per
	// logical alert instance. Synthesized when the source omits one.
	AlertID string

	// Resource is an optional secondary dimension (host, database).
	Resource string

	// RuleName is the configuration lookup key.
	RuleName string

	Status   AlertStatus
	Severity AlertSeverity

	Title       string
	Description string
	Fields      []Field

	StartedAt  *time.Time
	ResolvedAt *time.Time

	// ChannelID is the resolved chat destination, filled in by the
	// processor from the matched rule.
	ChannelID string

	// Source is the ingestion origin tag (e.g. "grafana", "sns").
	Source string
}

// IncidentKey returns the identity of the incident this alert belongs to.
func (a *CanonicalAlert) IncidentKey() string {
	return IncidentKey(a.AlertID, a.Resource)
}

// IncidentKey builds the incident identity from its two dimensions.
func IncidentKey(alertID, resource string) string {
	if resource == "" {
		resource = "default"
	}
	return alertID + ":" + resource
}

// NormalizeSeverity maps a raw severity string to the normalized set.
// Unknown values default to warning.
func NormalizeSeverity(severity string) AlertSeverity {
	switch strings.ToLower(strings.TrimSpace(severity)) {
	case "critical":
		return SeverityCritical
	case "high":
		return SeverityHigh
	case "warning":
		return SeverityWarning
	case "info", "informational":
		return SeverityInfo
	default:
		return SeverityWarning
	}
}

// NormalizeStatus maps a raw status string to firing or resolved.
// Anything that is not explicitly resolved is treated as firing.
func NormalizeStatus(status string) AlertStatus {
	if strings.ToLower(strings.TrimSpace(status)) == "resolved" {
		return StatusResolved
	}
	return StatusFiring
}

// ClampFields enforces the field count and value length bounds.
func ClampFields(fields []Field) []Field {
	if len(fields) > MaxFields {
		fields = fields[:MaxFields]
	}
	for i := range fields {
		fields[i].Value = TruncateRunes(fields[i].Value, MaxFieldValueLen)
	}
	return fields
}

// TruncateRunes caps s at max runes, never splitting a multibyte
// character.
func TruncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}
