package slack

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/slack-go/slack"
)

// ChannelResolver turns the channel references found in rule config into
// channel IDs, and checks that a destination can actually host an
// incident mirror. Lookups are cached per name.
type ChannelResolver struct {
	client *slack.Client
	teamID string
	mu     sync.RWMutex
	cache  map[string]string
}

// NewChannelResolver creates a resolver over the web API client.
func NewChannelResolver(client *slack.Client) *ChannelResolver {
	return &ChannelResolver{
		client: client,
		cache:  make(map[string]string),
	}
}

// SetTeamID scopes name lookups to one workspace; needed for org-wide
// tokens where channel names collide across workspaces.
func (r *ChannelResolver) SetTeamID(teamID string) {
	r.teamID = teamID
}

// Resolve accepts a channel ID ("C0123ABCD") or a name ("#alerts" or
// "alerts") and returns the channel ID.
func (r *ChannelResolver) Resolve(ctx context.Context, nameOrID string) (string, error) {
	if nameOrID == "" {
		return "", fmt.Errorf("channel reference is empty")
	}

	if isChannelID(nameOrID) {
		return nameOrID, nil
	}

	name := strings.TrimPrefix(nameOrID, "#")

	r.mu.RLock()
	id, ok := r.cache[name]
	r.mu.RUnlock()
	if ok {
		return id, nil
	}

	id, err := r.lookup(ctx, name)
	if err != nil {
		return "", err
	}

	r.mu.Lock()
	r.cache[name] = id
	r.mu.Unlock()

	log.Printf("slack: resolved channel '%s' to '%s'", name, id)
	return id, nil
}

// Usable reports whether a channel can host incident messages. Direct and
// group messages cannot: threads and message edits behave differently
// there, so alerts routed at them are refused up front.
func (r *ChannelResolver) Usable(ctx context.Context, channelID string) (bool, error) {
	ch, err := r.client.GetConversationInfoContext(ctx, &slack.GetConversationInfoInput{
		ChannelID: channelID,
	})
	if err != nil {
		return false, fmt.Errorf("inspect channel %s: %w", channelID, err)
	}
	if ch.IsIM || ch.IsMpIM {
		return false, nil
	}
	return true, nil
}

// ClearCache drops all cached name resolutions; called on config reload.
func (r *ChannelResolver) ClearCache() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache = make(map[string]string)
}

func (r *ChannelResolver) lookup(ctx context.Context, name string) (string, error) {
	cursor := ""
	for {
		channels, next, err := r.client.GetConversationsContext(ctx, &slack.GetConversationsParameters{
			ExcludeArchived: true,
			Limit:           1000,
			Cursor:          cursor,
			Types:           []string{"public_channel", "private_channel"},
			TeamID:          r.teamID,
		})
		if err != nil {
			return "", fmt.Errorf("list channels: %w", err)
		}
		for _, ch := range channels {
			if ch.Name == name {
				return ch.ID, nil
			}
		}
		if next == "" {
			return "", fmt.Errorf("channel '%s' not found", name)
		}
		cursor = next
	}
}

// isChannelID reports whether a string is a Slack channel ID rather than
// a name. IDs start with C and are upper-case alphanumeric.
func isChannelID(s string) bool {
	if len(s) < 9 || len(s) > 15 || !strings.HasPrefix(s, "C") {
		return false
	}
	for _, c := range s[1:] {
		if !((c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')) {
			return false
		}
	}
	return true
}
