package adapters

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/alertdeck/alertdeck/internal/alerts"
	"github.com/alertdeck/alertdeck/internal/rules"
	"github.com/google/uuid"
)

// WebhookAdapter handles the grafana/alertmanager-style batch webhook:
// a list of alert items plus group and common labels/annotations.
type WebhookAdapter struct {
	source string
	rules  rules.Provider
}

// NewWebhookAdapter creates a webhook adapter. The rules provider supplies
// per-rule label presentation (importantLabels / hiddenLabels).
func NewWebhookAdapter(source string, provider rules.Provider) *WebhookAdapter {
	if source == "" {
		source = "grafana"
	}
	return &WebhookAdapter{source: source, rules: provider}
}

// WebhookPayload is the batch shape posted by the source.
type WebhookPayload struct {
	Status            string            `json:"status"`
	Alerts            []WebhookItem     `json:"alerts"`
	GroupLabels       map[string]string `json:"groupLabels"`
	CommonLabels      map[string]string `json:"commonLabels"`
	CommonAnnotations map[string]string `json:"commonAnnotations"`
}

// WebhookItem is a single alert within the batch.
type WebhookItem struct {
	Status      string            `json:"status"`
	Labels      map[string]string `json:"labels"`
	Annotations map[string]string `json:"annotations"`
	StartsAt    string            `json:"startsAt"`
	EndsAt      string            `json:"endsAt"`
	Fingerprint string            `json:"fingerprint"`
}

// SourceType returns the ingestion origin tag.
func (a *WebhookAdapter) SourceType() string {
	return a.source
}

// Parse converts the batch payload into canonical alerts.
func (a *WebhookAdapter) Parse(body []byte) ([]alerts.CanonicalAlert, error) {
	var payload WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to parse webhook payload: %w", err)
	}

	var out []alerts.CanonicalAlert
	for _, item := range payload.Alerts {
		out = append(out, a.parseItem(item, payload))
	}
	return out, nil
}

func (a *WebhookAdapter) parseItem(item WebhookItem, payload WebhookPayload) alerts.CanonicalAlert {
	labels := mergeStringMaps(payload.CommonLabels, payload.GroupLabels, item.Labels)
	annotations := mergeStringMaps(payload.CommonAnnotations, item.Annotations)

	ruleName := labels["alertname"]
	if ruleName == "" {
		ruleName = labels["alert_type"]
	}
	if ruleName == "" {
		ruleName = "default"
	}

	alertID := item.Fingerprint
	if alertID == "" {
		alertID = synthesizeAlertID(ruleName)
	}

	resource := firstNonEmpty(labels["instance"], labels["DBInstanceIdentifier"], labels["resource"])

	status := alerts.StatusFiring
	if strings.ToLower(item.Status) == "resolved" {
		status = alerts.StatusResolved
	}

	description := alerts.Sanitize(firstNonEmpty(
		annotations["summary"], annotations["description"], "No description"))

	title := ruleName
	if title == "default" && annotations["summary"] != "" {
		title = alerts.Sanitize(annotations["summary"])
	}

	var resolvedAt *time.Time
	if status == alerts.StatusResolved {
		resolvedAt = alerts.ParseSourceTime(item.EndsAt)
	}

	rule, _ := a.lookupRule(ruleName)

	return alerts.CanonicalAlert{
		AlertID:     alertID,
		Resource:    resource,
		RuleName:    ruleName,
		Status:      status,
		Severity:    alerts.NormalizeSeverity(labels["severity"]),
		Title:       title,
		Description: description,
		Fields:      alerts.ClampFields(buildFields(labels, annotations, rule)),
		StartedAt:   alerts.ParseSourceTime(item.StartsAt),
		ResolvedAt:  resolvedAt,
		Source:      a.source,
	}
}

func (a *WebhookAdapter) lookupRule(name string) (rules.Rule, bool) {
	if a.rules == nil {
		return rules.Rule{}, false
	}
	return a.rules.Lookup(name)
}

// buildFields assembles the chat field list: a synthesized "Key info" field
// for the rule's important labels first, then the remaining labels minus
// hidden ones, then the annotations.
func buildFields(labels, annotations map[string]string, rule rules.Rule) []alerts.Field {
	var fields []alerts.Field

	shown := make(map[string]bool)
	if len(rule.ImportantLabels) > 0 {
		var parts []string
		for _, name := range rule.ImportantLabels {
			if v, ok := labels[name]; ok && v != "" {
				parts = append(parts, fmt.Sprintf("%s: %s", name, v))
				shown[name] = true
			}
		}
		if len(parts) > 0 {
			fields = append(fields, alerts.Field{Name: "Key info", Value: strings.Join(parts, "\n")})
		}
	}

	for _, name := range sortedKeys(labels) {
		if shown[name] || rule.HidesLabel(name) {
			continue
		}
		fields = append(fields, alerts.Field{Name: name, Value: labels[name]})
	}

	for _, name := range sortedKeys(annotations) {
		fields = append(fields, alerts.Field{Name: name, Value: alerts.Sanitize(annotations[name])})
	}

	return fields
}

// synthesizeAlertID builds a fingerprint for sources that omit one.
func synthesizeAlertID(ruleName string) string {
	return fmt.Sprintf("%s-%d-%s", ruleName, time.Now().UnixNano(), uuid.NewString()[:8])
}

// mergeStringMaps merges maps left to right, later maps winning.
func mergeStringMaps(maps ...map[string]string) map[string]string {
	out := make(map[string]string)
	for _, m := range maps {
		for k, v := range m {
			out[k] = v
		}
	}
	return out
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
