package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when an incident record does not exist.
var ErrNotFound = errors.New("incident record not found")

// Key layout in the backing key-value store.
const (
	dedupPrefix    = "dedup:"
	incidentPrefix = "alert:"
)

// RecordTTL is how long an incident record survives without a write.
const RecordTTL = 7 * 24 * time.Hour

// IncidentState is the lifecycle state of a tracked incident.
type IncidentState string

const (
	StateFiring       IncidentState = "firing"
	StateAcknowledged IncidentState = "acknowledged"
	StateResolved     IncidentState = "resolved"
)

// IncidentRecord is the persistent per-incident state, keyed by
// "<alertId>:<resource|default>".
type IncidentRecord struct {
	AlertID  string `json:"alertId"`
	Resource string `json:"resource,omitempty"`

	MessageID string `json:"messageId"`
	ChannelID string `json:"channelId"`
	ThreadID  string `json:"threadId,omitempty"`

	State    IncidentState `json:"state"`
	RuleName string        `json:"ruleName"`
	Severity string        `json:"severity"`

	// UpdatedAt is the last user-visible emission time, not the last
	// internal mutation. The escalation loop keys its thresholds off it
	// and must never advance it.
	UpdatedAt time.Time `json:"updatedAt"`

	AcknowledgedBy string     `json:"acknowledgedBy,omitempty"`
	AcknowledgedAt *time.Time `json:"acknowledgedAt,omitempty"`
	ResolvedBy     string     `json:"resolvedBy,omitempty"`
	ResolvedAt     *time.Time `json:"resolvedAt,omitempty"`

	// MentionLevel indexes the next responder to ping. Owned by the
	// escalation loop; monotone while the incident is firing.
	MentionLevel int `json:"mentionLevel"`
}

// Key returns the incident key this record is stored under.
func (r *IncidentRecord) Key() string {
	resource := r.Resource
	if resource == "" {
		resource = "default"
	}
	return r.AlertID + ":" + resource
}

// DedupStore is the TTL set of recently seen alert fingerprints.
type DedupStore interface {
	// TestAndSet atomically inserts the fingerprint with the given TTL
	// when absent, returning true. When present it returns false and
	// leaves the existing TTL alone.
	TestAndSet(ctx context.Context, fingerprint string, ttl time.Duration) (bool, error)

	// Clear removes the fingerprint.
	Clear(ctx context.Context, fingerprint string) error

	// SetTTL overwrites the fingerprint's TTL, inserting it if absent.
	SetTTL(ctx context.Context, fingerprint string, ttl time.Duration) error
}

// IncidentStore holds incident records.
type IncidentStore interface {
	// Get returns the record for an incident key, or ErrNotFound.
	Get(ctx context.Context, key string) (*IncidentRecord, error)

	// Put writes the record under its key and refreshes the record TTL.
	// It never stamps timestamps; callers own UpdatedAt.
	Put(ctx context.Context, rec *IncidentRecord) error

	// Delete removes the record. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Keys enumerates all incident keys with an incremental scan.
	Keys(ctx context.Context) ([]string, error)
}

// minTTL clamps a TTL to the store's one-second resolution.
func minTTL(ttl time.Duration) time.Duration {
	if ttl < time.Second {
		return time.Second
	}
	return ttl
}
