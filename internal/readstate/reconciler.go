// Package readstate merges server-confirmed read receipts with locally
// optimistic read state.
package readstate

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/relicwavetechnologies/hrm8-candidate-messaging/internal/models"
	"github.com/relicwavetechnologies/hrm8-candidate-messaging/internal/observability"
	"github.com/relicwavetechnologies/hrm8-candidate-messaging/internal/store"
)

// ReadMarker is the REST collaborator that persists read state
// server-side. The call is idempotent.
type ReadMarker interface {
	MarkConversationRead(ctx context.Context, conversationID string) error
}

// Reconciler clears the unread badge the moment a conversation view opens
// and asks the server to persist it in the background. A failed server
// call is logged and counted but never rolled back: a briefly wrong badge
// on the next session beats a badge that flickers back in front of the
// user. Only messages present in the store at mark time are touched, so a
// message racing the in-flight request stays unread.
type Reconciler struct {
	store     *store.ConversationStore
	marker    ReadMarker
	userEmail string
	log       zerolog.Logger

	mu       sync.Mutex
	active   string
	inflight sync.WaitGroup
}

// New creates a Reconciler for the given user.
func New(st *store.ConversationStore, marker ReadMarker, userEmail string, log zerolog.Logger) *Reconciler {
	return &Reconciler{store: st, marker: marker, userEmail: userEmail, log: log}
}

// Open records conversationID as the viewed conversation and runs a read
// mark pass.
func (r *Reconciler) Open(ctx context.Context, conversationID string) {
	r.mu.Lock()
	r.active = conversationID
	r.mu.Unlock()

	r.mark(ctx, conversationID)
}

// Close stops reconciling; later messages accumulate as unread again.
func (r *Reconciler) Close() {
	r.mu.Lock()
	r.active = ""
	r.mu.Unlock()
}

// Active returns the conversation currently being reconciled, if any.
func (r *Reconciler) Active() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// HandleIncoming reconciles a live message: when it belongs to the open
// conversation and came from a counterpart, the user is looking at it, so
// it is marked read immediately.
func (r *Reconciler) HandleIncoming(ctx context.Context, msg models.Message) {
	r.mu.Lock()
	active := r.active
	r.mu.Unlock()

	if active == "" || msg.ConversationID != active || msg.SenderEmail == r.userEmail {
		return
	}
	r.mark(ctx, active)
}

// HandleLoaded reconciles a history batch: when it belongs to the open
// conversation, any unread entries it carried are marked immediately.
func (r *Reconciler) HandleLoaded(ctx context.Context, conversationID string) {
	r.mu.Lock()
	active := r.active
	r.mu.Unlock()

	if active == "" || conversationID != active {
		return
	}
	r.mark(ctx, conversationID)
}

func (r *Reconciler) mark(ctx context.Context, conversationID string) {
	changed := r.store.MarkRead(conversationID, r.userEmail)
	if changed == 0 {
		return
	}

	r.inflight.Add(1)
	go func() {
		defer r.inflight.Done()
		if err := r.marker.MarkConversationRead(ctx, conversationID); err != nil {
			// Accepted tradeoff: keep the optimistic state, surface the
			// failure through logs and metrics only.
			r.log.Warn().Err(err).Str("conversation_id", conversationID).Msg("mark-read request failed")
			observability.IncReadMarkFailure()
		}
	}()
}

// Wait blocks until all in-flight mark-read requests have settled. Used
// on shutdown and in tests.
func (r *Reconciler) Wait() {
	r.inflight.Wait()
}
