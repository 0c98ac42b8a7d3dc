package chat

import (
	"fmt"
	"strings"
	"time"

	"github.com/slack-go/slack"

	"github.com/alertdeck/alertdeck/internal/alerts"
	"github.com/alertdeck/alertdeck/internal/rules"
	"github.com/alertdeck/alertdeck/internal/store"
)

// Block Kit action IDs for the incident buttons. The button value carries
// the incident key so interaction callbacks can find the record.
const (
	ActionAcknowledge  = "alert_ack"
	ActionResolve      = "alert_resolve"
	ActionTroubleshoot = "alert_troubleshoot"
)

const (
	colorCritical = "#E01E5A"
	colorHigh     = "#E8912D"
	colorWarning  = "#ECB22E"
	colorInfo     = "#36C5F0"
	colorResolved = "#2EB67D"
)

// maxChunkLen keeps threaded guide posts under the Slack message limit
// with headroom for the part header.
const maxChunkLen = 3800

const titleMaxLen = 50

func severityEmoji(severity alerts.AlertSeverity) string {
	switch severity {
	case alerts.SeverityCritical:
		return "🔴"
	case alerts.SeverityHigh:
		return "🟠"
	case alerts.SeverityWarning:
		return "🟡"
	default:
		return "🔵"
	}
}

func severityColor(severity alerts.AlertSeverity) string {
	switch severity {
	case alerts.SeverityCritical:
		return colorCritical
	case alerts.SeverityHigh:
		return colorHigh
	case alerts.SeverityWarning:
		return colorWarning
	default:
		return colorInfo
	}
}

// buildAttachment renders the single mirror attachment for an alert. The
// record carries acknowledge/resolve annotations that survive re-renders.
func buildAttachment(alert alerts.CanonicalAlert, rule rules.Rule, rec *store.IncidentRecord) slack.Attachment {
	att := slack.Attachment{
		Title:    fmt.Sprintf("%s %s", severityEmoji(alert.Severity), alert.Title),
		Text:     alert.Description,
		ThumbURL: rule.ThumbnailURL,
		Footer:   fmt.Sprintf("alertdeck • %s", alert.Source),
	}

	if alert.Status == alerts.StatusResolved {
		att.Color = colorResolved
		att.Title = fmt.Sprintf("✅ %s", alert.Title)
	} else {
		att.Color = severityColor(alert.Severity)
	}

	for _, f := range alert.Fields {
		att.Fields = append(att.Fields, slack.AttachmentField{
			Title: f.Name,
			Value: f.Value,
			Short: len(f.Value) < 32,
		})
	}

	if rec != nil {
		if rec.AcknowledgedBy != "" && rec.AcknowledgedAt != nil {
			att.Fields = append(att.Fields, slack.AttachmentField{
				Title: "Acknowledged",
				Value: fmt.Sprintf("by <@%s> at %s", rec.AcknowledgedBy, rec.AcknowledgedAt.UTC().Format(time.RFC3339)),
			})
		}
		if rec.ResolvedBy != "" && rec.ResolvedAt != nil {
			att.Fields = append(att.Fields, slack.AttachmentField{
				Title: "Resolved",
				Value: fmt.Sprintf("by <@%s> at %s", rec.ResolvedBy, rec.ResolvedAt.UTC().Format(time.RFC3339)),
			})
		}
	}

	return att
}

// buttonBlocks returns the action block for a lifecycle state. Resolved
// incidents get no buttons; acknowledged ones lose the acknowledge button.
func buttonBlocks(state store.IncidentState, incidentKey string) []slack.Block {
	if state == store.StateResolved {
		return nil
	}

	var elements []slack.BlockElement
	if state == store.StateFiring {
		ack := slack.NewButtonBlockElement(ActionAcknowledge, incidentKey,
			slack.NewTextBlockObject(slack.PlainTextType, "Acknowledge", true, false))
		ack.Style = slack.StylePrimary
		elements = append(elements, ack)
	}
	resolve := slack.NewButtonBlockElement(ActionResolve, incidentKey,
		slack.NewTextBlockObject(slack.PlainTextType, "Resolve", true, false))
	resolve.Style = slack.StyleDanger
	elements = append(elements, resolve,
		slack.NewButtonBlockElement(ActionTroubleshoot, incidentKey,
			slack.NewTextBlockObject(slack.PlainTextType, "Troubleshoot", true, false)))

	return []slack.Block{slack.NewActionBlock("alert_actions", elements...)}
}

// threadTitle names the incident thread after the alert title, truncated.
func threadTitle(title string) string {
	return "Incident: " + alerts.TruncateRunes(title, titleMaxLen)
}

// chunkText splits text into pieces no longer than max, preferring newline
// boundaries so guide sections stay intact.
func chunkText(text string, max int) []string {
	if text == "" {
		return nil
	}
	var chunks []string
	for len(text) > max {
		cut := strings.LastIndexByte(text[:max], '\n')
		if cut <= 0 {
			cut = max
		}
		chunks = append(chunks, strings.TrimRight(text[:cut], "\n"))
		text = strings.TrimLeft(text[cut:], "\n")
	}
	if text != "" {
		chunks = append(chunks, text)
	}
	return chunks
}
