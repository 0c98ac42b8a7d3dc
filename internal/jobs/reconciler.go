package jobs

import (
	"context"
	"fmt"
	"log"
	"time"

	slackapi "github.com/slack-go/slack"

	"github.com/alertdeck/alertdeck/internal/chat"
	"github.com/alertdeck/alertdeck/internal/store"
)

// Reconciler sweep schedule: an early pass shortly after startup catches
// drift accumulated while the service was down, then a slow steady cadence.
const (
	ReconcileInitialDelay = 5 * time.Minute
	ReconcileInterval     = 30 * time.Minute
)

// Reconciler walks the incident set and repairs records that no longer
// match chat reality: records whose message or channel vanished are
// deleted, records whose thread vanished lose their thread reference.
// Transient API failures leave the record alone for the next sweep.
type Reconciler struct {
	incidents store.IncidentStore
	api       chat.API
}

// NewReconciler creates a reconciler over the incident set.
func NewReconciler(incidents store.IncidentStore, api chat.API) *Reconciler {
	return &Reconciler{incidents: incidents, api: api}
}

// Sweep runs one reconciliation pass and returns how many records it
// deleted or repaired.
func (r *Reconciler) Sweep(ctx context.Context) (int, error) {
	keys, err := r.incidents.Keys(ctx)
	if err != nil {
		return 0, fmt.Errorf("list incidents: %w", err)
	}

	touched := 0
	for _, key := range keys {
		rec, err := r.incidents.Get(ctx, key)
		if err == store.ErrNotFound {
			continue
		}
		if err != nil {
			log.Printf("reconciler: load %s: %v", key, err)
			continue
		}
		if rec.State == store.StateResolved {
			// Resolved records age out through lifecycle expiry.
			continue
		}
		changed, err := r.reconcile(ctx, rec)
		if err != nil {
			log.Printf("reconciler: %s: %v", key, err)
			continue
		}
		if changed {
			touched++
		}
	}
	return touched, nil
}

func (r *Reconciler) reconcile(ctx context.Context, rec *store.IncidentRecord) (bool, error) {
	ch, err := r.api.GetConversationInfoContext(ctx, &slackapi.GetConversationInfoInput{
		ChannelID: rec.ChannelID,
	})
	if err != nil {
		if chat.IsGone(err) {
			return true, r.dropOrphan(ctx, rec)
		}
		return false, err
	}
	if ch.IsIM || ch.IsMpIM {
		// A DM cannot host the mirror; the record can never be repaired.
		return true, r.dropOrphan(ctx, rec)
	}

	resp, err := r.api.GetConversationHistoryContext(ctx, &slackapi.GetConversationHistoryParameters{
		ChannelID: rec.ChannelID,
		Latest:    rec.MessageID,
		Inclusive: true,
		Limit:     1,
	})
	if err != nil {
		if chat.IsGone(err) {
			return true, r.dropOrphan(ctx, rec)
		}
		return false, err
	}

	found := false
	for _, msg := range resp.Messages {
		if msg.Timestamp == rec.MessageID {
			found = true
			break
		}
	}
	if !found {
		return true, r.dropOrphan(ctx, rec)
	}

	if rec.ThreadID == "" {
		return false, nil
	}

	_, _, _, err = r.api.GetConversationRepliesContext(ctx, &slackapi.GetConversationRepliesParameters{
		ChannelID: rec.ChannelID,
		Timestamp: rec.ThreadID,
		Limit:     1,
	})
	if err != nil {
		if chat.IsGone(err) {
			log.Printf("reconciler: thread gone for %s, clearing reference", rec.Key())
			rec.ThreadID = ""
			return true, r.incidents.Put(ctx, rec)
		}
		return false, err
	}
	return false, nil
}

func (r *Reconciler) dropOrphan(ctx context.Context, rec *store.IncidentRecord) error {
	log.Printf("reconciler: message gone for %s, deleting orphan record", rec.Key())
	return r.incidents.Delete(ctx, rec.Key())
}

// Start runs the early pass after the initial delay, then sweeps on the
// steady interval.
func (r *Reconciler) Start(ctx context.Context, stop <-chan struct{}) {
	initial := time.NewTimer(ReconcileInitialDelay)
	defer initial.Stop()

	select {
	case <-initial.C:
		r.runSweep(ctx)
	case <-stop:
		log.Println("Reconciler stopped")
		return
	}

	ticker := time.NewTicker(ReconcileInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.runSweep(ctx)
		case <-stop:
			log.Println("Reconciler stopped")
			return
		}
	}
}

func (r *Reconciler) runSweep(ctx context.Context) {
	touched, err := r.Sweep(ctx)
	if err != nil {
		log.Printf("Reconciler error: %v", err)
	} else if touched > 0 {
		log.Printf("Reconciler: repaired %d records", touched)
	}
}
