package chat

import (
	"context"
	"errors"
	"strings"

	"github.com/slack-go/slack"

	"github.com/alertdeck/alertdeck/internal/metrics"
)

// API is the subset of the Slack web API the mirror and background jobs
// use. *slack.Client satisfies it.
type API interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
	UpdateMessageContext(ctx context.Context, channelID, timestamp string, options ...slack.MsgOption) (string, string, string, error)
	GetConversationInfoContext(ctx context.Context, input *slack.GetConversationInfoInput) (*slack.Channel, error)
	GetConversationHistoryContext(ctx context.Context, params *slack.GetConversationHistoryParameters) (*slack.GetConversationHistoryResponse, error)
	GetConversationRepliesContext(ctx context.Context, params *slack.GetConversationRepliesParameters) ([]slack.Message, bool, string, error)
}

// IsGone reports whether an API error means the target message or channel
// no longer exists, as opposed to a transient failure.
func IsGone(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, code := range []string{
		"message_not_found",
		"channel_not_found",
		"thread_not_found",
		"is_archived",
	} {
		if strings.Contains(msg, code) {
			return true
		}
	}
	return false
}

// countRateLimit records rate-limited API calls and passes the error through.
func countRateLimit(err error) error {
	var rle *slack.RateLimitedError
	if errors.As(err, &rle) {
		metrics.ChatRateLimited.Inc()
	}
	return err
}
