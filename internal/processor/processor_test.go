package processor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alertdeck/alertdeck/internal/alerts"
	"github.com/alertdeck/alertdeck/internal/rules"
	"github.com/alertdeck/alertdeck/internal/store"
)

type emitted struct {
	alert alerts.CanonicalAlert
	rule  rules.Rule
}

type fakeEmitter struct {
	calls []emitted
	err   error
}

func (f *fakeEmitter) Emit(_ context.Context, alert alerts.CanonicalAlert, rule rules.Rule) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.calls = append(f.calls, emitted{alert: alert, rule: rule})
	return "1700000000.000001", nil
}

type staticResolver map[string]string

func (r staticResolver) Resolve(_ context.Context, ref string) (string, error) {
	if id, ok := r[ref]; ok {
		return id, nil
	}
	return ref, nil
}

func testProcessor(ruleSet rules.Config) (*Processor, *fakeEmitter, *store.MemoryIncidents, *store.MemoryDedup) {
	emitter := &fakeEmitter{}
	incidents := store.NewMemoryIncidents()
	dedup := store.NewMemoryDedup()
	p := New(ruleSet, incidents, dedup, emitter, nil)
	return p, emitter, incidents, dedup
}

func cpuAlert(status alerts.AlertStatus) alerts.CanonicalAlert {
	return alerts.CanonicalAlert{
		AlertID:  "fp-1",
		Resource: "db-1",
		RuleName: "HighCPU",
		Status:   status,
		Severity: alerts.SeverityCritical,
		Title:    "HighCPU",
		Source:   "grafana",
	}
}

func TestProcess_FreshFiringIsEmitted(t *testing.T) {
	p, emitter, _, dedup := testProcessor(rules.Config{"HighCPU": {ChannelID: "C123"}})

	if err := p.Process(context.Background(), cpuAlert(alerts.StatusFiring)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(emitter.calls) != 1 {
		t.Fatalf("expected one emission, got %d", len(emitter.calls))
	}
	if emitter.calls[0].alert.ChannelID != "C123" {
		t.Errorf("expected channel filled from rule, got '%s'", emitter.calls[0].alert.ChannelID)
	}
	if !dedup.Contains("fp-1") {
		t.Error("expected dedup entry after emission")
	}
}

func TestProcess_DuplicateWithinWindowIsSuppressed(t *testing.T) {
	p, emitter, _, _ := testProcessor(rules.Config{"HighCPU": {ChannelID: "C123"}})
	ctx := context.Background()

	if err := p.Process(ctx, cpuAlert(alerts.StatusFiring)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := p.Process(ctx, cpuAlert(alerts.StatusFiring)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(emitter.calls) != 1 {
		t.Errorf("expected duplicate suppressed, got %d emissions", len(emitter.calls))
	}
}

func TestProcess_ResolvedIsNeverSuppressed(t *testing.T) {
	p, emitter, _, dedup := testProcessor(rules.Config{"HighCPU": {ChannelID: "C123"}})
	ctx := context.Background()

	if err := p.Process(ctx, cpuAlert(alerts.StatusFiring)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := p.Process(ctx, cpuAlert(alerts.StatusResolved)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(emitter.calls) != 2 {
		t.Fatalf("expected resolved alert emitted, got %d emissions", len(emitter.calls))
	}
	if dedup.Contains("fp-1") {
		t.Error("expected resolve to clear the dedup entry")
	}

	// The next firing posts immediately.
	if err := p.Process(ctx, cpuAlert(alerts.StatusFiring)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(emitter.calls) != 3 {
		t.Errorf("expected re-fire after resolve to emit, got %d emissions", len(emitter.calls))
	}
}

func TestProcess_NoRuleDropsAlert(t *testing.T) {
	p, emitter, _, _ := testProcessor(rules.Config{"OtherAlert": {ChannelID: "C123"}})

	if err := p.Process(context.Background(), cpuAlert(alerts.StatusFiring)); err != nil {
		t.Fatalf("expected silent drop, got %v", err)
	}
	if len(emitter.calls) != 0 {
		t.Error("expected no emission without a matching rule")
	}
}

func TestProcess_EmptyChannelRuleIsSuppressed(t *testing.T) {
	// A rule without a channel cannot route anywhere; the alert is
	// dropped like an unconfigured one instead of erroring downstream.
	p, emitter, _, dedup := testProcessor(rules.Config{"HighCPU": {ChannelID: ""}})

	if err := p.Process(context.Background(), cpuAlert(alerts.StatusFiring)); err != nil {
		t.Fatalf("expected silent suppression, got %v", err)
	}
	if len(emitter.calls) != 0 {
		t.Error("expected no emission for an unroutable rule")
	}
	if dedup.Contains("fp-1") {
		t.Error("expected no dedup entry for a suppressed alert")
	}
}

func TestProcess_DefaultRuleCatchesUnmatched(t *testing.T) {
	p, emitter, _, _ := testProcessor(rules.Config{"default": {ChannelID: "CDEFAULT"}})

	if err := p.Process(context.Background(), cpuAlert(alerts.StatusFiring)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(emitter.calls) != 1 {
		t.Fatal("expected default rule to catch the alert")
	}
	if emitter.calls[0].alert.ChannelID != "CDEFAULT" {
		t.Errorf("expected default channel, got '%s'", emitter.calls[0].alert.ChannelID)
	}
}

func TestProcess_ExactRuleShadowsDefault(t *testing.T) {
	p, emitter, _, _ := testProcessor(rules.Config{
		"default": {ChannelID: "CDEFAULT"},
		"HighCPU": {ChannelID: "C123"},
	})

	if err := p.Process(context.Background(), cpuAlert(alerts.StatusFiring)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if emitter.calls[0].alert.ChannelID != "C123" {
		t.Errorf("expected exact rule to win over default, got '%s'", emitter.calls[0].alert.ChannelID)
	}
}

func TestProcess_SourceFallbackRuleShadowsDefault(t *testing.T) {
	// Queue events with no recognizable name fall back to rule name
	// "sns"; an explicit "sns" entry must win over "default".
	p, emitter, _, _ := testProcessor(rules.Config{
		"default": {ChannelID: "CDEFAULT"},
		"sns":     {ChannelID: "CSNS"},
	})

	alert := cpuAlert(alerts.StatusFiring)
	alert.RuleName = "sns"
	alert.Source = "sns"
	if err := p.Process(context.Background(), alert); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if emitter.calls[0].alert.ChannelID != "CSNS" {
		t.Errorf("expected sns rule to win over default, got '%s'", emitter.calls[0].alert.ChannelID)
	}
}

func TestProcess_StaleResolvedRecordIsReaped(t *testing.T) {
	p, emitter, incidents, dedup := testProcessor(rules.Config{"HighCPU": {ChannelID: "C123"}})
	ctx := context.Background()

	resolvedAt := time.Now().Add(-time.Hour)
	rec := &store.IncidentRecord{
		AlertID:    "fp-1",
		Resource:   "db-1",
		MessageID:  "1699.1",
		ChannelID:  "C123",
		State:      store.StateResolved,
		ResolvedAt: &resolvedAt,
	}
	if err := incidents.Put(ctx, rec); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := dedup.SetTTL(ctx, "fp-1", time.Hour); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := p.Process(ctx, cpuAlert(alerts.StatusFiring)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(emitter.calls) != 1 {
		t.Fatal("expected fresh incident after stale resolved record")
	}
	if _, err := incidents.Get(ctx, rec.Key()); err != store.ErrNotFound {
		t.Error("expected stale record deleted before emission")
	}
}

func TestProcess_RecentResolvedRecordIsKept(t *testing.T) {
	p, _, incidents, _ := testProcessor(rules.Config{"HighCPU": {ChannelID: "C123"}})
	ctx := context.Background()

	resolvedAt := time.Now().Add(-10 * time.Minute)
	rec := &store.IncidentRecord{
		AlertID:    "fp-1",
		Resource:   "db-1",
		MessageID:  "1699.1",
		ChannelID:  "C123",
		State:      store.StateResolved,
		ResolvedAt: &resolvedAt,
	}
	if err := incidents.Put(ctx, rec); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := p.Process(ctx, cpuAlert(alerts.StatusFiring)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := incidents.Get(ctx, rec.Key()); err != nil {
		t.Error("expected record within the resolve window to survive")
	}
}

func TestProcess_StaleAcknowledgedRecordIsReaped(t *testing.T) {
	p, _, incidents, _ := testProcessor(rules.Config{"HighCPU": {ChannelID: "C123"}})
	ctx := context.Background()

	ackedAt := time.Now().Add(-2 * time.Hour)
	rec := &store.IncidentRecord{
		AlertID:        "fp-1",
		Resource:       "db-1",
		MessageID:      "1699.1",
		ChannelID:      "C123",
		State:          store.StateAcknowledged,
		AcknowledgedBy: "U1",
		AcknowledgedAt: &ackedAt,
	}
	if err := incidents.Put(ctx, rec); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := p.Process(ctx, cpuAlert(alerts.StatusFiring)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := incidents.Get(ctx, rec.Key()); err != store.ErrNotFound {
		t.Error("expected acknowledged record past its window reaped")
	}
}

func TestProcess_RecentAcknowledgedRecordIsKept(t *testing.T) {
	p, _, incidents, _ := testProcessor(rules.Config{"HighCPU": {ChannelID: "C123"}})
	ctx := context.Background()

	ackedAt := time.Now().Add(-30 * time.Minute)
	rec := &store.IncidentRecord{
		AlertID:        "fp-1",
		Resource:       "db-1",
		MessageID:      "1699.1",
		ChannelID:      "C123",
		State:          store.StateAcknowledged,
		AcknowledgedBy: "U1",
		AcknowledgedAt: &ackedAt,
	}
	if err := incidents.Put(ctx, rec); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := p.Process(ctx, cpuAlert(alerts.StatusFiring)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := incidents.Get(ctx, rec.Key()); err != nil {
		t.Error("expected acknowledged record within its window to survive")
	}
}

func TestProcess_EmitterErrorPropagates(t *testing.T) {
	p, emitter, _, _ := testProcessor(rules.Config{"HighCPU": {ChannelID: "C123"}})
	emitter.err = errors.New("chat down")

	if err := p.Process(context.Background(), cpuAlert(alerts.StatusFiring)); err == nil {
		t.Fatal("expected error from failing emitter")
	}
}

func TestProcess_ResolverMapsChannelName(t *testing.T) {
	emitter := &fakeEmitter{}
	p := New(rules.Config{"HighCPU": {ChannelID: "#alerts"}},
		store.NewMemoryIncidents(), store.NewMemoryDedup(), emitter,
		staticResolver{"#alerts": "C999"})

	if err := p.Process(context.Background(), cpuAlert(alerts.StatusFiring)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if emitter.calls[0].alert.ChannelID != "C999" {
		t.Errorf("expected resolved channel ID, got '%s'", emitter.calls[0].alert.ChannelID)
	}
}
