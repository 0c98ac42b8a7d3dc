package chat

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/slack-go/slack"

	"github.com/alertdeck/alertdeck/internal/alerts"
	"github.com/alertdeck/alertdeck/internal/rules"
	"github.com/alertdeck/alertdeck/internal/store"
)

// ackMentionDelay is how long an incident stays quiet after an acknowledge
// before repeats start pinging the first responder again.
const ackMentionDelay = 60 * time.Minute

// ackDedupFloor is the minimum suppression an acknowledge buys.
const ackDedupFloor = 10 * time.Minute

// GuideSource resolves a troubleshooting guide for a rule. A nil guide
// with a nil error means no guide is configured.
type GuideSource interface {
	Guide(ruleName string) (string, error)
}

// Mirror keeps exactly one chat message per incident key and threads all
// repeats and guides under it. All mutations for a key are serialized.
type Mirror struct {
	api       API
	incidents store.IncidentStore
	dedup     store.DedupStore
	rules     rules.Provider
	guides    GuideSource
	locks     *KeyMutex
	now       func() time.Time
}

// NewMirror wires a mirror over the chat API and stores. guides may be nil.
func NewMirror(api API, incidents store.IncidentStore, dedup store.DedupStore, ruleProvider rules.Provider, guides GuideSource) *Mirror {
	return &Mirror{
		api:       api,
		incidents: incidents,
		dedup:     dedup,
		rules:     ruleProvider,
		guides:    guides,
		locks:     NewKeyMutex(),
		now:       time.Now,
	}
}

// SetClock overrides the mirror clock; used by tests.
func (m *Mirror) SetClock(now func() time.Time) { m.now = now }

// Emit mirrors an alert into chat: it edits the incident's existing
// message when one is still reachable and creates a fresh message plus
// thread otherwise. It returns the message ID it wrote to.
func (m *Mirror) Emit(ctx context.Context, alert alerts.CanonicalAlert, rule rules.Rule) (string, error) {
	key := alert.IncidentKey()
	unlock := m.locks.Lock(key)
	defer unlock()

	rec, err := m.incidents.Get(ctx, key)
	if err != nil && err != store.ErrNotFound {
		return "", fmt.Errorf("load incident %s: %w", key, err)
	}

	if rec != nil && rec.MessageID != "" {
		exists, err := m.messageExists(ctx, rec.ChannelID, rec.MessageID)
		if err != nil {
			return "", err
		}
		if exists {
			return m.updateExisting(ctx, alert, rule, rec)
		}
		// The mirror message vanished from under us. Drop the stale
		// record and start over with a fresh message.
		if err := m.incidents.Delete(ctx, key); err != nil {
			log.Printf("chat: delete stale record %s: %v", key, err)
		}
	}

	return m.createNew(ctx, alert, rule)
}

func (m *Mirror) createNew(ctx context.Context, alert alerts.CanonicalAlert, rule rules.Rule) (string, error) {
	now := m.now()
	rec := &store.IncidentRecord{
		AlertID:   alert.AlertID,
		Resource:  alert.Resource,
		ChannelID: alert.ChannelID,
		State:     store.StateFiring,
		RuleName:  alert.RuleName,
		Severity:  string(alert.Severity),
		UpdatedAt: now,
	}
	if alert.Status == alerts.StatusResolved {
		rec.State = store.StateResolved
		rec.ResolvedAt = resolvedTime(alert, now)
	}

	att := buildAttachment(alert, rule, rec)
	opts := []slack.MsgOption{slack.MsgOptionAttachments(att)}
	if blocks := buttonBlocks(rec.State, rec.Key()); blocks != nil {
		opts = append(opts, slack.MsgOptionBlocks(blocks...))
	}

	_, ts, err := m.api.PostMessageContext(ctx, alert.ChannelID, opts...)
	if err != nil {
		return "", countRateLimit(fmt.Errorf("post message: %w", err))
	}
	rec.MessageID = ts

	// Open the incident thread off the message. A failure here is not
	// fatal: the reconciler repairs missing threads later.
	if _, _, err := m.api.PostMessageContext(ctx, alert.ChannelID,
		slack.MsgOptionText(threadTitle(alert.Title), false),
		slack.MsgOptionTS(ts)); err != nil {
		log.Printf("chat: open thread for %s: %v", rec.Key(), countRateLimit(err))
	} else {
		rec.ThreadID = ts
	}

	if err := m.incidents.Put(ctx, rec); err != nil {
		return ts, fmt.Errorf("persist incident %s: %w", rec.Key(), err)
	}
	return ts, nil
}

func (m *Mirror) updateExisting(ctx context.Context, alert alerts.CanonicalAlert, rule rules.Rule, rec *store.IncidentRecord) (string, error) {
	now := m.now()
	prior := rec.State

	switch {
	case alert.Status == alerts.StatusResolved:
		rec.State = store.StateResolved
		if prior != store.StateResolved {
			rec.ResolvedAt = resolvedTime(alert, now)
		}
	case prior == store.StateAcknowledged:
		// An acknowledged incident stays acknowledged across repeats.
	case prior == store.StateResolved:
		// Re-fire after a resolve: the incident starts a new firing
		// phase with a clean escalation history.
		rec.State = store.StateFiring
		rec.ResolvedBy = ""
		rec.ResolvedAt = nil
		rec.MentionLevel = 0
	default:
		rec.State = store.StateFiring
	}
	rec.RuleName = alert.RuleName
	rec.Severity = string(alert.Severity)
	rec.UpdatedAt = now

	att := buildAttachment(alert, rule, rec)
	opts := []slack.MsgOption{
		slack.MsgOptionAttachments(att),
		slack.MsgOptionBlocks(buttonBlocks(rec.State, rec.Key())...),
	}
	if _, _, _, err := m.api.UpdateMessageContext(ctx, rec.ChannelID, rec.MessageID, opts...); err != nil {
		return "", countRateLimit(fmt.Errorf("update message: %w", err))
	}

	if alert.Status == alerts.StatusFiring && rec.ThreadID != "" {
		m.postRepeat(ctx, rule, rec, prior, now)
	}

	if err := m.incidents.Put(ctx, rec); err != nil {
		return rec.MessageID, fmt.Errorf("persist incident %s: %w", rec.Key(), err)
	}
	return rec.MessageID, nil
}

// postRepeat notes a repeat in the incident thread. Acknowledged incidents
// stay silent for an hour, then repeats ping the first responder.
func (m *Mirror) postRepeat(ctx context.Context, rule rules.Rule, rec *store.IncidentRecord, prior store.IncidentState, now time.Time) {
	text := fmt.Sprintf("🔁 Alert repeated at %s", now.UTC().Format(time.RFC3339))
	if prior == store.StateAcknowledged && rec.AcknowledgedAt != nil &&
		now.Sub(*rec.AcknowledgedAt) > ackMentionDelay && len(rule.Mentions) > 0 {
		text += fmt.Sprintf(" — still firing an hour after acknowledge, <@%s>", rule.Mentions[0])
	}
	if _, _, err := m.api.PostMessageContext(ctx, rec.ChannelID,
		slack.MsgOptionText(text, false),
		slack.MsgOptionTS(rec.ThreadID)); err != nil {
		log.Printf("chat: repeat notice for %s: %v", rec.Key(), countRateLimit(err))
	}
}

// PostToThread posts text into an incident's thread, falling back to the
// channel when no thread exists. Long texts are chunked.
func (m *Mirror) PostToThread(ctx context.Context, channelID, threadID, text string) error {
	chunks := chunkText(text, maxChunkLen)
	for i, chunk := range chunks {
		body := chunk
		if len(chunks) > 1 {
			body = fmt.Sprintf("(%d/%d)\n%s", i+1, len(chunks), chunk)
		}
		opts := []slack.MsgOption{slack.MsgOptionText(body, false)}
		if threadID != "" {
			opts = append(opts, slack.MsgOptionTS(threadID))
		}
		if _, _, err := m.api.PostMessageContext(ctx, channelID, opts...); err != nil {
			return countRateLimit(fmt.Errorf("post to thread: %w", err))
		}
	}
	return nil
}

// messageExists probes for the mirror message with a single-item history
// read. Gone channels or messages report false without an error.
func (m *Mirror) messageExists(ctx context.Context, channelID, messageID string) (bool, error) {
	resp, err := m.api.GetConversationHistoryContext(ctx, &slack.GetConversationHistoryParameters{
		ChannelID: channelID,
		Latest:    messageID,
		Inclusive: true,
		Limit:     1,
	})
	if err != nil {
		if IsGone(err) {
			return false, nil
		}
		return false, countRateLimit(fmt.Errorf("probe message: %w", err))
	}
	for _, msg := range resp.Messages {
		if msg.Timestamp == messageID {
			return true, nil
		}
	}
	return false, nil
}

// fetchAttachment loads the current mirror attachment so interactive
// transitions re-render on top of the live content.
func (m *Mirror) fetchAttachment(ctx context.Context, rec *store.IncidentRecord) slack.Attachment {
	resp, err := m.api.GetConversationHistoryContext(ctx, &slack.GetConversationHistoryParameters{
		ChannelID: rec.ChannelID,
		Latest:    rec.MessageID,
		Inclusive: true,
		Limit:     1,
	})
	if err == nil {
		for _, msg := range resp.Messages {
			if msg.Timestamp == rec.MessageID && len(msg.Attachments) > 0 {
				return msg.Attachments[0]
			}
		}
	}
	// Fall back to a minimal render from the record alone.
	return slack.Attachment{
		Title: fmt.Sprintf("%s %s", severityEmoji(alerts.AlertSeverity(rec.Severity)), rec.RuleName),
		Color: severityColor(alerts.AlertSeverity(rec.Severity)),
	}
}

func resolvedTime(alert alerts.CanonicalAlert, now time.Time) *time.Time {
	if alert.ResolvedAt != nil {
		return alert.ResolvedAt
	}
	return &now
}
