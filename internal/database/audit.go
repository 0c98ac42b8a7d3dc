package database

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// AppendAuditEvent writes one lifecycle event to the append-only log.
// A nil database makes this a no-op; audit must never fail the pipeline.
func AppendAuditEvent(ev *AuditEvent) error {
	if DB == nil {
		return nil
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}
	if err := DB.Create(ev).Error; err != nil {
		return fmt.Errorf("failed to append audit event: %w", err)
	}
	return nil
}

// PurgeAuditEventsBefore deletes audit events older than the cutoff and
// returns the number of rows removed.
func PurgeAuditEventsBefore(cutoff time.Time) (int64, error) {
	if DB == nil {
		return 0, nil
	}
	res := DB.Where("created_at < ?", cutoff).Delete(&AuditEvent{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to purge audit events: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// ParseRetention parses the audit TTL setting. Accepted forms: "30d",
// "30days", or a raw number of seconds. Empty input returns zero, which
// disables the retention sweep.
func ParseRetention(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(strings.ToLower(raw))
	if raw == "" {
		return 0, nil
	}

	if days, ok := strings.CutSuffix(raw, "days"); ok {
		return daysToDuration(days)
	}
	if days, ok := strings.CutSuffix(raw, "d"); ok {
		return daysToDuration(days)
	}

	secs, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid retention %q: %w", raw, err)
	}
	return time.Duration(secs) * time.Second, nil
}

func daysToDuration(raw string) (time.Duration, error) {
	days, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid retention days %q: %w", raw, err)
	}
	return time.Duration(days) * 24 * time.Hour, nil
}
