package slack

import (
	"log"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/socketmode"
)

// runEventLoop drains the Socket Mode event stream. Only interactive
// events (button presses) are interesting; everything else is acked and
// dropped so Slack does not retry.
func (m *Manager) runEventLoop(socketClient *socketmode.Client) {
	for evt := range socketClient.Events {
		switch evt.Type {
		case socketmode.EventTypeInteractive:
			callback, ok := evt.Data.(slack.InteractionCallback)
			if !ok {
				log.Printf("slack: ignored malformed interactive event %+v", evt)
				continue
			}

			// Ack immediately; processing happens off this loop.
			socketClient.Ack(*evt.Request)

			m.mu.RLock()
			handler := m.interactionHandler
			m.mu.RUnlock()
			if handler != nil {
				go handler(callback)
			}

		case socketmode.EventTypeEventsAPI, socketmode.EventTypeSlashCommand:
			socketClient.Ack(*evt.Request)

		case socketmode.EventTypeConnecting, socketmode.EventTypeConnected,
			socketmode.EventTypeHello:
			// Connection lifecycle noise.

		case socketmode.EventTypeConnectionError:
			log.Printf("slack: connection error: %+v", evt)

		default:
			log.Printf("slack: unexpected event type %s", evt.Type)
		}
	}
}
