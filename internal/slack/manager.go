package slack

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/socketmode"
)

// Manager owns the Slack client pair and the Socket Mode connection
// lifecycle. Tokens come from the environment at construction time.
type Manager struct {
	mu sync.RWMutex

	client       *slack.Client
	socketClient *socketmode.Client
	botUserID    string

	stopChan chan struct{}
	doneChan chan struct{}

	// interactionHandler receives button presses from Socket Mode.
	interactionHandler func(callback slack.InteractionCallback)

	running bool
}

// NewManager creates a manager from bot and app tokens. Both are required
// for Socket Mode; an empty bot token disables the integration.
func NewManager(botToken, appToken string) (*Manager, error) {
	if botToken == "" {
		return nil, nil
	}
	if appToken == "" {
		return nil, fmt.Errorf("app token is required for Socket Mode")
	}

	client := slack.New(botToken,
		slack.OptionDebug(false),
		slack.OptionAppLevelToken(appToken),
	)

	return &Manager{client: client}, nil
}

// Client returns the web API client.
func (m *Manager) Client() *slack.Client {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.client
}

// BotUserID returns the authenticated bot user, known after Start.
func (m *Manager) BotUserID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.botUserID
}

// IsRunning reports whether Socket Mode is connected.
func (m *Manager) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

// SetInteractionHandler registers the callback for interactive events.
// Must be called before Start.
func (m *Manager) SetInteractionHandler(handler func(callback slack.InteractionCallback)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.interactionHandler = handler
}

// Start verifies the tokens and opens the Socket Mode connection.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return nil
	}

	auth, err := m.client.AuthTestContext(ctx)
	if err != nil {
		return fmt.Errorf("slack auth test failed: %w", err)
	}
	m.botUserID = auth.UserID
	log.Printf("slack: authenticated as %s (team %s)", auth.User, auth.Team)

	m.socketClient = socketmode.New(
		m.client,
		socketmode.OptionDebug(false),
		socketmode.OptionLog(log.New(os.Stdout, "socketmode: ", log.Lshortfile|log.LstdFlags)),
	)

	m.stopChan = make(chan struct{})
	m.doneChan = make(chan struct{})

	go m.runEventLoop(m.socketClient)

	go func() {
		defer close(m.doneChan)
		log.Printf("slack: starting Socket Mode connection")
		if err := m.socketClient.RunContext(ctx); err != nil {
			select {
			case <-m.stopChan:
				log.Printf("slack: Socket Mode stopped")
			default:
				log.Printf("slack: Socket Mode error: %v", err)
			}
		}
	}()

	m.running = true
	return nil
}

// Stop tears down the Socket Mode connection.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	log.Printf("slack: stopping Socket Mode connection")
	close(m.stopChan)

	select {
	case <-m.doneChan:
	default:
	}

	m.running = false
}
