package adapters

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/alertdeck/alertdeck/internal/alerts"
)

// SNSAdapter handles the queued single-message envelope: an SNS
// notification wrapping a CloudWatch alarm or EventBridge event.
type SNSAdapter struct{}

// NewSNSAdapter creates an SNS envelope adapter.
func NewSNSAdapter() *SNSAdapter {
	return &SNSAdapter{}
}

// SNSEnvelope is the notification wrapper delivered through the queue.
type SNSEnvelope struct {
	Type              string                         `json:"Type"`
	MessageID         string                         `json:"MessageId"`
	Subject           string                         `json:"Subject"`
	Message           string                         `json:"Message"`
	Timestamp         string                         `json:"Timestamp"`
	MessageAttributes map[string]SNSMessageAttribute `json:"MessageAttributes"`
}

// SNSMessageAttribute is one typed attribute on the envelope.
type SNSMessageAttribute struct {
	Type  string `json:"Type"`
	Value string `json:"Value"`
}

// snsMessage is the union of the message bodies we understand: CloudWatch
// alarm state changes and EventBridge events.
type snsMessage struct {
	AlarmName        string `json:"AlarmName"`
	AlarmDescription string `json:"AlarmDescription"`
	NewStateValue    string `json:"NewStateValue"`
	NewStateReason   string `json:"NewStateReason"`
	StateChangeTime  string `json:"StateChangeTime"`
	Region           string `json:"Region"`

	DetailType string `json:"detail-type"`
	Source     string `json:"source"`
	EventName  string `json:"eventName"`
	Detail     struct {
		Resource  string   `json:"resource"`
		Resources []string `json:"resources"`
		State     struct {
			Value string `json:"value"`
		} `json:"state"`
	} `json:"detail"`
}

var whitespacePattern = regexp.MustCompile(`\s+`)

// SourceType returns the ingestion origin tag.
func (a *SNSAdapter) SourceType() string {
	return "sns"
}

// Parse converts one SNS envelope into a single canonical alert.
func (a *SNSAdapter) Parse(body []byte) ([]alerts.CanonicalAlert, error) {
	var env SNSEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("failed to parse sns envelope: %w", err)
	}

	// The message body is itself a JSON document; a plain-text body is
	// tolerated and contributes nothing beyond the envelope fields.
	var msg snsMessage
	_ = json.Unmarshal([]byte(env.Message), &msg)

	ruleName := deriveEventName(env, msg)

	resolved := msg.NewStateValue == "OK" || msg.Detail.State.Value == "OK"
	status := alerts.StatusFiring
	if resolved {
		status = alerts.StatusResolved
	}

	resource := extractResource(msg)

	// The alarm name is the stable identity across repeated firings;
	// fall back to the derived event name so repeats still collapse.
	alertID := msg.AlarmName
	if alertID == "" {
		alertID = ruleName
	}

	description := alerts.Sanitize(firstNonEmpty(
		msg.NewStateReason, msg.AlarmDescription, "No description"))

	severity := alerts.SeverityWarning
	if attr, ok := env.MessageAttributes["severity"]; ok {
		severity = alerts.NormalizeSeverity(attr.Value)
	}

	var fields []alerts.Field
	appendField := func(name, value string) {
		if value != "" {
			fields = append(fields, alerts.Field{Name: name, Value: alerts.Sanitize(value)})
		}
	}
	appendField("Alarm", msg.AlarmName)
	appendField("State", firstNonEmpty(msg.NewStateValue, msg.Detail.State.Value))
	appendField("Region", msg.Region)
	appendField("Resource", resource)
	appendField("Event type", msg.DetailType)

	var resolvedAt *time.Time
	if resolved {
		resolvedAt = alerts.ParseSourceTime(firstNonEmpty(msg.StateChangeTime, env.Timestamp))
	}

	return []alerts.CanonicalAlert{{
		AlertID:     alertID,
		Resource:    resource,
		RuleName:    ruleName,
		Status:      status,
		Severity:    severity,
		Title:       ruleName,
		Description: description,
		Fields:      alerts.ClampFields(fields),
		StartedAt:   alerts.ParseSourceTime(firstNonEmpty(msg.StateChangeTime, env.Timestamp)),
		ResolvedAt:  resolvedAt,
		Source:      "sns",
	}}, nil
}

// deriveEventName resolves the rule lookup key from the envelope, trying
// each location in a fixed order before falling back to "sns".
func deriveEventName(env SNSEnvelope, msg snsMessage) string {
	candidates := []string{
		env.Subject,
		env.MessageAttributes["event_type"].Value,
		env.MessageAttributes["rule_name"].Value,
		msg.DetailType,
		msg.Source,
		msg.EventName,
	}
	for _, c := range candidates {
		if c != "" {
			return whitespacePattern.ReplaceAllString(strings.TrimSpace(c), "_")
		}
	}
	return "sns"
}

// extractResource picks the incident resource dimension from the message.
func extractResource(msg snsMessage) string {
	if msg.AlarmName != "" {
		return msg.AlarmName
	}
	if msg.Detail.Resource != "" {
		return msg.Detail.Resource
	}
	for _, r := range msg.Detail.Resources {
		if strings.HasPrefix(r, "arn:") {
			return r
		}
	}
	return ""
}
