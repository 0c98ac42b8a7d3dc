package alerts

import (
	"regexp"
	"strings"
	"time"
)

// Broken template artifacts leak out of some alerting pipelines when an
// annotation references a query value that evaluated to nil, e.g.
// "CPU at %!f(<nil>) percent". They are replaced with "N/A" before the
// text reaches chat.
var nilArtifactPattern = regexp.MustCompile(`%!.?\(<nil>\)`)

// Sanitize cleans display text of broken template artifacts.
func Sanitize(text string) string {
	if text == "" {
		return text
	}
	text = nilArtifactPattern.ReplaceAllString(text, "N/A")
	text = strings.ReplaceAll(text, "<nil>", "N/A")
	return text
}

// MeaningfulTime reports whether a source timestamp carries information.
// Sources emit the zero sentinel 0001-01-01T00:00:00Z for "not set".
func MeaningfulTime(t time.Time) bool {
	return !t.IsZero() && t.Year() > 1
}

// ParseSourceTime parses an RFC3339 timestamp from a source payload,
// returning nil for empty strings, unparsable values, and zero sentinels.
func ParseSourceTime(raw string) *time.Time {
	if raw == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil || !MeaningfulTime(t) {
		return nil
	}
	return &t
}
