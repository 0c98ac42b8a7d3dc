package jobs

import (
	"log"
	"time"

	"github.com/alertdeck/alertdeck/internal/database"
)

// RetentionInterval is how often old audit events are purged.
const RetentionInterval = time.Hour

// RetentionJob trims the audit table down to the configured retention.
// A zero retention disables purging entirely.
type RetentionJob struct {
	retention time.Duration
	now       func() time.Time
}

// NewRetentionJob creates a retention job. retention comes from
// database.ParseRetention.
func NewRetentionJob(retention time.Duration) *RetentionJob {
	return &RetentionJob{retention: retention, now: time.Now}
}

// SetClock overrides the time source; used by tests.
func (j *RetentionJob) SetClock(now func() time.Time) { j.now = now }

// Purge deletes audit events older than the retention and returns how
// many rows went away.
func (j *RetentionJob) Purge() (int64, error) {
	if j.retention <= 0 || !database.Connected() {
		return 0, nil
	}
	cutoff := j.now().Add(-j.retention)
	return database.PurgeAuditEventsBefore(cutoff)
}

// Start purges once immediately, then hourly.
func (j *RetentionJob) Start(stop <-chan struct{}) {
	if j.retention <= 0 {
		log.Println("Audit retention disabled")
		return
	}

	j.runPurge()

	ticker := time.NewTicker(RetentionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			j.runPurge()
		case <-stop:
			log.Println("Audit retention stopped")
			return
		}
	}
}

func (j *RetentionJob) runPurge() {
	purged, err := j.Purge()
	if err != nil {
		log.Printf("Audit retention error: %v", err)
	} else if purged > 0 {
		log.Printf("Audit retention: purged %d events", purged)
	}
}
