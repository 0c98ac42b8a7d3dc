package jobs

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/alertdeck/alertdeck/internal/alerts"
	"github.com/alertdeck/alertdeck/internal/rules"
	"github.com/alertdeck/alertdeck/internal/store"
)

// EscalationInterval is how often the escalator sweeps the incident set.
const EscalationInterval = 60 * time.Second

// escalationStep is the firing time that buys one more responder ping.
const escalationStep = 5 * time.Minute

// ThreadPoster posts a text into an incident's thread. Satisfied by
// *chat.Mirror.
type ThreadPoster interface {
	PostToThread(ctx context.Context, channelID, threadID, text string) error
}

// Escalator pings configured responders for critical incidents that keep
// firing without anyone acknowledging them. Each sweep compares the time
// since the last emission against a threshold that grows with every ping,
// so responder N is mentioned after (N+1) escalation steps.
type Escalator struct {
	incidents store.IncidentStore
	rules     rules.Provider
	poster    ThreadPoster
	now       func() time.Time
}

// NewEscalator creates an escalator over the incident set.
func NewEscalator(incidents store.IncidentStore, ruleProvider rules.Provider, poster ThreadPoster) *Escalator {
	return &Escalator{
		incidents: incidents,
		rules:     ruleProvider,
		poster:    poster,
		now:       time.Now,
	}
}

// SetClock overrides the time source; used by tests.
func (e *Escalator) SetClock(now func() time.Time) { e.now = now }

// Sweep runs one escalation pass and returns how many pings it sent.
func (e *Escalator) Sweep(ctx context.Context) (int, error) {
	keys, err := e.incidents.Keys(ctx)
	if err != nil {
		return 0, fmt.Errorf("list incidents: %w", err)
	}

	escalated := 0
	for _, key := range keys {
		rec, err := e.incidents.Get(ctx, key)
		if err == store.ErrNotFound {
			continue
		}
		if err != nil {
			log.Printf("escalator: load %s: %v", key, err)
			continue
		}
		if e.escalate(ctx, rec) {
			escalated++
		}
	}
	return escalated, nil
}

// escalate pings the next responder for one incident when it is due.
// Only firing critical incidents with configured mentions escalate.
func (e *Escalator) escalate(ctx context.Context, rec *store.IncidentRecord) bool {
	if rec.State != store.StateFiring || rec.Severity != string(alerts.SeverityCritical) {
		return false
	}

	mentions := e.mentionsFor(rec.RuleName)
	if len(mentions) == 0 || rec.MentionLevel >= len(mentions) {
		return false
	}

	threshold := time.Duration(rec.MentionLevel+1) * escalationStep
	if e.now().Sub(rec.UpdatedAt) < threshold {
		return false
	}

	text := fmt.Sprintf("⚠️ Escalation level %d: still firing after %s without acknowledgement, <@%s>",
		rec.MentionLevel+1, threshold, mentions[rec.MentionLevel])
	if err := e.poster.PostToThread(ctx, rec.ChannelID, rec.ThreadID, text); err != nil {
		log.Printf("escalator: ping for %s: %v", rec.Key(), err)
		return false
	}

	// Advance the responder index only. UpdatedAt stays put: the
	// thresholds are absolute offsets from the last emission, so a ping
	// must not push the next one further out.
	rec.MentionLevel++
	if err := e.incidents.Put(ctx, rec); err != nil {
		log.Printf("escalator: persist %s: %v", rec.Key(), err)
		return false
	}
	log.Printf("escalator: pinged responder %d for %s", rec.MentionLevel, rec.Key())
	return true
}

func (e *Escalator) mentionsFor(ruleName string) []string {
	if rule, ok := e.rules.Lookup(ruleName); ok {
		return rule.Mentions
	}
	if rule, ok := e.rules.Lookup("default"); ok {
		return rule.Mentions
	}
	return nil
}

// Start begins the periodic escalation sweep.
func (e *Escalator) Start(ctx context.Context, interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			escalated, err := e.Sweep(ctx)
			if err != nil {
				log.Printf("Escalator error: %v", err)
			} else if escalated > 0 {
				log.Printf("Escalator: sent %d pings", escalated)
			}
		case <-stop:
			log.Println("Escalator stopped")
			return
		}
	}
}
