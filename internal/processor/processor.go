package processor

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/alertdeck/alertdeck/internal/alerts"
	"github.com/alertdeck/alertdeck/internal/chat"
	"github.com/alertdeck/alertdeck/internal/database"
	"github.com/alertdeck/alertdeck/internal/metrics"
	"github.com/alertdeck/alertdeck/internal/rules"
	"github.com/alertdeck/alertdeck/internal/store"
)

// Incident records older than these bounds are stale: a matching alert
// starts a fresh incident instead of reviving them.
const (
	ResolvedExpiry     = 30 * time.Minute
	AcknowledgedExpiry = 90 * time.Minute
)

// Emitter mirrors a canonical alert into chat. Satisfied by *chat.Mirror.
type Emitter interface {
	Emit(ctx context.Context, alert alerts.CanonicalAlert, rule rules.Rule) (string, error)
}

// ChannelResolver maps a rule's channel reference to a channel ID.
// Satisfied by *slack.ChannelResolver.
type ChannelResolver interface {
	Resolve(ctx context.Context, nameOrID string) (string, error)
}

// Processor runs the delivery pipeline: rule match, lifecycle expiry,
// dedup gate, chat emission, audit.
type Processor struct {
	rules     rules.Provider
	incidents store.IncidentStore
	dedup     store.DedupStore
	emitter   Emitter
	resolver  ChannelResolver
	now       func() time.Time
}

// New wires a processor. resolver may be nil, in which case channel
// references from rules are used verbatim.
func New(ruleProvider rules.Provider, incidents store.IncidentStore, dedup store.DedupStore, emitter Emitter, resolver ChannelResolver) *Processor {
	return &Processor{
		rules:     ruleProvider,
		incidents: incidents,
		dedup:     dedup,
		emitter:   emitter,
		resolver:  resolver,
		now:       time.Now,
	}
}

// SetClock overrides the time source; used by tests.
func (p *Processor) SetClock(now func() time.Time) { p.now = now }

// Process delivers one canonical alert. Suppression is not an error;
// only infrastructure failures return one.
func (p *Processor) Process(ctx context.Context, alert alerts.CanonicalAlert) error {
	metrics.AlertsReceived.Inc()

	rule, ok := p.lookupRule(alert.RuleName)
	if !ok || rule.ChannelID == "" {
		metrics.AlertsSuppressed.WithLabelValues(metrics.ReasonNoConfig).Inc()
		log.Printf("processor: no routable rule for alert '%s', dropping", alert.RuleName)
		return nil
	}

	channelID, err := p.resolveChannel(ctx, rule.ChannelID)
	if err != nil {
		return fmt.Errorf("resolve channel for rule '%s': %w", alert.RuleName, err)
	}
	alert.ChannelID = channelID

	if err := p.expireStale(ctx, &alert); err != nil {
		return err
	}

	if alert.Status == alerts.StatusResolved {
		// Resolutions are never suppressed, and they lift suppression so
		// the next firing posts immediately.
		if err := p.dedup.Clear(ctx, alert.AlertID); err != nil {
			log.Printf("processor: clear dedup for %s: %v", alert.IncidentKey(), err)
		}
	} else {
		fresh, err := p.dedup.TestAndSet(ctx, alert.AlertID, rule.SuppressWindow())
		if err != nil {
			return fmt.Errorf("dedup check for %s: %w", alert.IncidentKey(), err)
		}
		if !fresh {
			metrics.AlertsSuppressed.WithLabelValues(metrics.ReasonDedup).Inc()
			return nil
		}
	}

	msgID, err := p.emitter.Emit(ctx, alert, rule)
	if err != nil {
		metrics.ChatErrors.Inc()
		return fmt.Errorf("emit %s: %w", alert.IncidentKey(), err)
	}
	metrics.AlertsSent.Inc()

	p.audit(alert, msgID)
	return nil
}

// lookupRule matches the alert name, falling back to the "default"
// catch-all rule.
func (p *Processor) lookupRule(ruleName string) (rules.Rule, bool) {
	if rule, ok := p.rules.Lookup(ruleName); ok {
		return rule, true
	}
	return p.rules.Lookup("default")
}

func (p *Processor) resolveChannel(ctx context.Context, ref string) (string, error) {
	if p.resolver == nil {
		return ref, nil
	}
	return p.resolver.Resolve(ctx, ref)
}

// expireStale reaps records whose lifecycle ran out: resolved incidents
// after thirty minutes, acknowledged ones after ninety. The next alert
// then starts over with a fresh message and a clean dedup slate.
func (p *Processor) expireStale(ctx context.Context, alert *alerts.CanonicalAlert) error {
	key := alert.IncidentKey()
	rec, err := p.incidents.Get(ctx, key)
	if err == store.ErrNotFound {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load incident %s: %w", key, err)
	}

	now := p.now()
	stale := false
	switch rec.State {
	case store.StateResolved:
		stale = rec.ResolvedAt != nil && now.Sub(*rec.ResolvedAt) > ResolvedExpiry
	case store.StateAcknowledged:
		stale = rec.AcknowledgedAt != nil && now.Sub(*rec.AcknowledgedAt) > AcknowledgedExpiry
	}
	if !stale {
		return nil
	}

	log.Printf("processor: incident %s expired in state %s, starting fresh", key, rec.State)
	if err := p.incidents.Delete(ctx, key); err != nil {
		return fmt.Errorf("expire incident %s: %w", key, err)
	}
	if err := p.dedup.Clear(ctx, alert.AlertID); err != nil {
		log.Printf("processor: clear dedup for %s: %v", key, err)
	}
	return nil
}

func (p *Processor) audit(alert alerts.CanonicalAlert, msgID string) {
	ev := &database.AuditEvent{
		AlertID:   alert.AlertID,
		Resource:  alert.Resource,
		Status:    string(alert.Status),
		MessageID: msgID,
		ChannelID: alert.ChannelID,
		Severity:  string(alert.Severity),
		RuleName:  alert.RuleName,
		Source:    alert.Source,
	}
	if err := database.AppendAuditEvent(ev); err != nil {
		log.Printf("processor: audit %s: %v", alert.IncidentKey(), err)
	}
}

var _ Emitter = (*chat.Mirror)(nil)
