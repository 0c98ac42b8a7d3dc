package rules

import (
	"time"
)

// DefaultSuppressWindow is applied when a rule does not set suppressWindowMs.
const DefaultSuppressWindow = 5 * time.Minute

// Rule maps an alert name to its delivery behavior.
type Rule struct {
	ChannelID        string   `json:"channelId" yaml:"channelId"`
	SuppressWindowMS int64    `json:"suppressWindowMs,omitempty" yaml:"suppressWindowMs,omitempty"`
	ImportantLabels  []string `json:"importantLabels,omitempty" yaml:"importantLabels,omitempty"`
	HiddenLabels     []string `json:"hiddenLabels,omitempty" yaml:"hiddenLabels,omitempty"`
	ThumbnailURL     string   `json:"thumbnailUrl,omitempty" yaml:"thumbnailUrl,omitempty"`
	Mentions         []string `json:"mentions,omitempty" yaml:"mentions,omitempty"`
}

// SuppressWindow returns the dedup TTL for this rule.
func (r Rule) SuppressWindow() time.Duration {
	if r.SuppressWindowMS <= 0 {
		return DefaultSuppressWindow
	}
	return time.Duration(r.SuppressWindowMS) * time.Millisecond
}

// HidesLabel reports whether a label is excluded from the chat message.
func (r Rule) HidesLabel(name string) bool {
	for _, h := range r.HiddenLabels {
		if h == name {
			return true
		}
	}
	return false
}

// Config is the full rule-name -> rule mapping.
type Config map[string]Rule

// Lookup returns the rule for an alert name.
func (c Config) Lookup(name string) (Rule, bool) {
	rule, ok := c[name]
	return rule, ok
}

// Provider is the read interface the processor and normalizers use.
type Provider interface {
	// Lookup returns the rule for an alert name. It does not apply the
	// "default" catch-all; callers decide whether to fall back.
	Lookup(name string) (Rule, bool)
}
