package adapters

import (
	"github.com/alertdeck/alertdeck/internal/alerts"
)

// Adapter parses one source's payload into canonical alerts. A single
// payload can contain multiple alerts (batched webhooks).
type Adapter interface {
	// SourceType returns the ingestion origin tag (e.g. "grafana").
	SourceType() string

	// Parse converts the raw payload body into canonical alerts.
	Parse(body []byte) ([]alerts.CanonicalAlert, error)
}
