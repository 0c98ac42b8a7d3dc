package chat

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/slack-go/slack"

	"github.com/alertdeck/alertdeck/internal/database"
	"github.com/alertdeck/alertdeck/internal/rules"
	"github.com/alertdeck/alertdeck/internal/store"
)

// HandleAction applies a button press to an incident. The incident key
// comes from the button value; userID is the pressing user.
func (m *Mirror) HandleAction(ctx context.Context, actionID, incidentKey, userID string) error {
	unlock := m.locks.Lock(incidentKey)
	defer unlock()

	rec, err := m.incidents.Get(ctx, incidentKey)
	if err == store.ErrNotFound {
		// The record expired or was reaped; the buttons are stale.
		log.Printf("chat: action %s on unknown incident %s", actionID, incidentKey)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load incident %s: %w", incidentKey, err)
	}

	switch actionID {
	case ActionAcknowledge:
		return m.acknowledge(ctx, rec, userID)
	case ActionResolve:
		return m.resolve(ctx, rec, userID)
	case ActionTroubleshoot:
		return m.troubleshoot(ctx, rec)
	default:
		return fmt.Errorf("unknown action %q", actionID)
	}
}

func (m *Mirror) acknowledge(ctx context.Context, rec *store.IncidentRecord, userID string) error {
	if rec.State != store.StateFiring {
		return nil
	}
	now := m.now()
	rec.State = store.StateAcknowledged
	rec.AcknowledgedBy = userID
	rec.AcknowledgedAt = &now

	// Buy quiet time: extend the dedup window so repeats stay suppressed
	// while someone is on it.
	window := m.ruleFor(rec.RuleName).SuppressWindow()
	if window < ackDedupFloor {
		window = ackDedupFloor
	}
	if err := m.dedup.SetTTL(ctx, rec.AlertID, window); err != nil {
		log.Printf("chat: extend dedup for %s: %v", rec.Key(), err)
	}

	if err := m.rerender(ctx, rec); err != nil {
		return err
	}
	if err := m.incidents.Put(ctx, rec); err != nil {
		return fmt.Errorf("persist incident %s: %w", rec.Key(), err)
	}
	m.audit(rec, "acknowledged")
	return nil
}

func (m *Mirror) resolve(ctx context.Context, rec *store.IncidentRecord, userID string) error {
	if rec.State == store.StateResolved {
		return nil
	}
	now := m.now()
	rec.State = store.StateResolved
	rec.ResolvedBy = userID
	rec.ResolvedAt = &now

	// A manual resolve lifts suppression so a re-fire alerts immediately.
	if err := m.dedup.Clear(ctx, rec.AlertID); err != nil {
		log.Printf("chat: clear dedup for %s: %v", rec.Key(), err)
	}

	if err := m.rerender(ctx, rec); err != nil {
		return err
	}
	if err := m.incidents.Put(ctx, rec); err != nil {
		return fmt.Errorf("persist incident %s: %w", rec.Key(), err)
	}
	m.audit(rec, "resolved")
	return nil
}

func (m *Mirror) troubleshoot(ctx context.Context, rec *store.IncidentRecord) error {
	if m.guides == nil {
		return m.PostToThread(ctx, rec.ChannelID, rec.ThreadID,
			"No troubleshooting guide is configured for this alert.")
	}
	guide, err := m.guides.Guide(rec.RuleName)
	if err != nil {
		return fmt.Errorf("load guide for %s: %w", rec.RuleName, err)
	}
	if guide == "" {
		guide = fmt.Sprintf("No troubleshooting guide found for rule %q.", rec.RuleName)
	}
	return m.PostToThread(ctx, rec.ChannelID, rec.ThreadID, guide)
}

// rerender re-edits the mirror message after a state transition, carrying
// the live content forward and swapping color, annotations, and buttons.
func (m *Mirror) rerender(ctx context.Context, rec *store.IncidentRecord) error {
	att := m.fetchAttachment(ctx, rec)
	if rec.State == store.StateResolved {
		att.Color = colorResolved
	}
	att.Fields = appendLifecycleFields(att.Fields, rec)

	opts := []slack.MsgOption{
		slack.MsgOptionAttachments(att),
		slack.MsgOptionBlocks(buttonBlocks(rec.State, rec.Key())...),
	}
	if _, _, _, err := m.api.UpdateMessageContext(ctx, rec.ChannelID, rec.MessageID, opts...); err != nil {
		return countRateLimit(fmt.Errorf("update message: %w", err))
	}
	return nil
}

// appendLifecycleFields adds acknowledge/resolve annotations, replacing
// any earlier copies so re-renders stay idempotent.
func appendLifecycleFields(fields []slack.AttachmentField, rec *store.IncidentRecord) []slack.AttachmentField {
	kept := fields[:0]
	for _, f := range fields {
		if f.Title == "Acknowledged" || f.Title == "Resolved" {
			continue
		}
		kept = append(kept, f)
	}
	if rec.AcknowledgedBy != "" && rec.AcknowledgedAt != nil {
		kept = append(kept, slack.AttachmentField{
			Title: "Acknowledged",
			Value: fmt.Sprintf("by <@%s> at %s", rec.AcknowledgedBy, rec.AcknowledgedAt.UTC().Format(time.RFC3339)),
		})
	}
	if rec.ResolvedBy != "" && rec.ResolvedAt != nil {
		kept = append(kept, slack.AttachmentField{
			Title: "Resolved",
			Value: fmt.Sprintf("by <@%s> at %s", rec.ResolvedBy, rec.ResolvedAt.UTC().Format(time.RFC3339)),
		})
	}
	return kept
}

func (m *Mirror) ruleFor(ruleName string) rules.Rule {
	if m.rules != nil {
		if rule, ok := m.rules.Lookup(ruleName); ok {
			return rule
		}
		if rule, ok := m.rules.Lookup("default"); ok {
			return rule
		}
	}
	return rules.Rule{}
}

func (m *Mirror) audit(rec *store.IncidentRecord, status string) {
	ev := &database.AuditEvent{
		AlertID:        rec.AlertID,
		Resource:       rec.Resource,
		Status:         status,
		MessageID:      rec.MessageID,
		ChannelID:      rec.ChannelID,
		Severity:       rec.Severity,
		RuleName:       rec.RuleName,
		AcknowledgedBy: rec.AcknowledgedBy,
		ResolvedBy:     rec.ResolvedBy,
	}
	if err := database.AppendAuditEvent(ev); err != nil {
		log.Printf("chat: audit %s for %s: %v", status, rec.Key(), err)
	}
}
