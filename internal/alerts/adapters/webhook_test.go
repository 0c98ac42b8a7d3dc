package adapters

import (
	"strings"
	"testing"

	"github.com/alertdeck/alertdeck/internal/alerts"
	"github.com/alertdeck/alertdeck/internal/rules"
)

// staticRules is a fixed rules.Provider for adapter tests.
type staticRules map[string]rules.Rule

func (s staticRules) Lookup(name string) (rules.Rule, bool) {
	r, ok := s[name]
	return r, ok
}

func TestWebhookAdapter_ParseFiring(t *testing.T) {
	adapter := NewWebhookAdapter("grafana", staticRules{
		"HighCPU": {
			ChannelID:       "c1",
			ImportantLabels: []string{"instance", "job"},
			HiddenLabels:    []string{"__internal"},
		},
	})

	payload := []byte(`{
		"status": "firing",
		"commonLabels": {"job": "node-exporter"},
		"alerts": [{
			"status": "firing",
			"labels": {
				"alertname": "HighCPU",
				"severity": "CRITICAL",
				"instance": "web-01:9100",
				"__internal": "secret"
			},
			"annotations": {
				"summary": "CPU above 90%",
				"description": "sustained for 5m"
			},
			"startsAt": "2024-01-15T10:30:00Z",
			"endsAt": "0001-01-01T00:00:00Z",
			"fingerprint": "fp1"
		}]
	}`)

	out, err := adapter.Parse(payload)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(out))
	}

	a := out[0]
	if a.AlertID != "fp1" {
		t.Errorf("expected AlertID 'fp1', got '%s'", a.AlertID)
	}
	if a.RuleName != "HighCPU" {
		t.Errorf("expected RuleName 'HighCPU', got '%s'", a.RuleName)
	}
	if a.Resource != "web-01:9100" {
		t.Errorf("expected Resource from labels.instance, got '%s'", a.Resource)
	}
	if a.Status != alerts.StatusFiring {
		t.Errorf("expected firing, got %s", a.Status)
	}
	if a.Severity != alerts.SeverityCritical {
		t.Errorf("expected critical severity, got %s", a.Severity)
	}
	if a.Description != "CPU above 90%" {
		t.Errorf("expected summary as description, got '%s'", a.Description)
	}
	if a.Source != "grafana" {
		t.Errorf("expected source grafana, got '%s'", a.Source)
	}
	if a.StartedAt == nil {
		t.Error("expected StartedAt to be set")
	}
	if a.ResolvedAt != nil {
		t.Errorf("firing alert must not carry ResolvedAt, got %v", a.ResolvedAt)
	}

	// Field assembly: Key info first, hidden labels dropped.
	if len(a.Fields) == 0 || a.Fields[0].Name != "Key info" {
		t.Fatalf("expected 'Key info' as first field, got %+v", a.Fields)
	}
	keyInfo := a.Fields[0].Value
	if !strings.HasPrefix(keyInfo, "instance: web-01:9100") {
		t.Errorf("important labels should follow configured order, got %q", keyInfo)
	}
	if !strings.Contains(keyInfo, "job: node-exporter") {
		t.Errorf("common labels should be merged in, got %q", keyInfo)
	}
	for _, f := range a.Fields {
		if f.Name == "__internal" {
			t.Error("hidden label leaked into fields")
		}
		if f.Name == "instance" || f.Name == "job" {
			t.Errorf("important label %q duplicated outside Key info", f.Name)
		}
	}
}

func TestWebhookAdapter_ParseResolved(t *testing.T) {
	adapter := NewWebhookAdapter("grafana", nil)
	payload := []byte(`{
		"alerts": [{
			"status": "resolved",
			"labels": {"alertname": "HighCPU"},
			"annotations": {},
			"endsAt": "2024-01-15T11:00:00Z",
			"fingerprint": "fp1"
		}]
	}`)

	out, err := adapter.Parse(payload)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	a := out[0]
	if a.Status != alerts.StatusResolved {
		t.Errorf("expected resolved, got %s", a.Status)
	}
	if a.ResolvedAt == nil {
		t.Error("expected ResolvedAt from endsAt")
	}
	if a.Description != "No description" {
		t.Errorf("expected fallback description, got '%s'", a.Description)
	}
}

func TestWebhookAdapter_ZeroSentinelEndsAt(t *testing.T) {
	adapter := NewWebhookAdapter("grafana", nil)
	payload := []byte(`{
		"alerts": [{
			"status": "resolved",
			"labels": {"alertname": "HighCPU"},
			"endsAt": "0001-01-01T00:00:00Z",
			"fingerprint": "fp1"
		}]
	}`)

	out, _ := adapter.Parse(payload)
	if out[0].ResolvedAt != nil {
		t.Errorf("zero sentinel endsAt must be treated as absent, got %v", out[0].ResolvedAt)
	}
}

func TestWebhookAdapter_SynthesizesAlertID(t *testing.T) {
	adapter := NewWebhookAdapter("grafana", nil)
	payload := []byte(`{
		"alerts": [{
			"status": "firing",
			"labels": {"alertname": "NoFingerprint"}
		}]
	}`)

	out, _ := adapter.Parse(payload)
	id := out[0].AlertID
	if id == "" {
		t.Fatal("expected synthesized AlertID")
	}
	if !strings.HasPrefix(id, "NoFingerprint-") {
		t.Errorf("synthesized id should embed the rule name, got %q", id)
	}

	// A second parse must synthesize a different id.
	out2, _ := adapter.Parse(payload)
	if out2[0].AlertID == id {
		t.Error("synthesized ids must not collide")
	}
}

func TestWebhookAdapter_RuleNameFallbacks(t *testing.T) {
	adapter := NewWebhookAdapter("grafana", nil)

	out, _ := adapter.Parse([]byte(`{
		"alerts": [{"labels": {"alert_type": "FromAlertType"}, "fingerprint": "fp1"}]
	}`))
	if out[0].RuleName != "FromAlertType" {
		t.Errorf("expected alert_type fallback, got '%s'", out[0].RuleName)
	}

	out, _ = adapter.Parse([]byte(`{
		"alerts": [{"labels": {}, "fingerprint": "fp2"}]
	}`))
	if out[0].RuleName != "default" {
		t.Errorf("expected 'default' fallback, got '%s'", out[0].RuleName)
	}
}

func TestWebhookAdapter_ResourceFallbacks(t *testing.T) {
	adapter := NewWebhookAdapter("grafana", nil)

	out, _ := adapter.Parse([]byte(`{
		"alerts": [{"labels": {"alertname": "A", "DBInstanceIdentifier": "prod-db"}, "fingerprint": "fp1"}]
	}`))
	if out[0].Resource != "prod-db" {
		t.Errorf("expected DBInstanceIdentifier fallback, got '%s'", out[0].Resource)
	}

	out, _ = adapter.Parse([]byte(`{
		"alerts": [{"labels": {"alertname": "A", "resource": "svc-x"}, "fingerprint": "fp2"}]
	}`))
	if out[0].Resource != "svc-x" {
		t.Errorf("expected resource label fallback, got '%s'", out[0].Resource)
	}
}

func TestWebhookAdapter_SanitizesArtifacts(t *testing.T) {
	adapter := NewWebhookAdapter("grafana", nil)
	out, _ := adapter.Parse([]byte(`{
		"alerts": [{
			"status": "firing",
			"labels": {"alertname": "A"},
			"annotations": {"summary": "value is %!f(<nil>) now"},
			"fingerprint": "fp1"
		}]
	}`))
	if out[0].Description != "value is N/A now" {
		t.Errorf("expected sanitized description, got '%s'", out[0].Description)
	}
}

func TestWebhookAdapter_InvalidJSON(t *testing.T) {
	adapter := NewWebhookAdapter("grafana", nil)
	if _, err := adapter.Parse([]byte("not json")); err == nil {
		t.Error("expected parse error")
	}
}
