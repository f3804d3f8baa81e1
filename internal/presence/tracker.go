// Package presence tracks which counterparts are currently online.
package presence

import (
	"sync"

	"github.com/relicwavetechnologies/hrm8-candidate-messaging/internal/models"
)

// Tracker maintains the online set, keyed by user email. Entries are
// ephemeral: a transport drop invalidates the whole set, so Reset clears
// it and a fresh online_users_list snapshot repopulates it after re-auth.
type Tracker struct {
	mu     sync.RWMutex
	online map[string]models.OnlineUser
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{online: make(map[string]models.OnlineUser)}
}

// SetOnline inserts or replaces the entry for user.UserEmail.
func (t *Tracker) SetOnline(user models.OnlineUser) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.online[user.UserEmail] = user
}

// SetOffline removes the entry for email, if present.
func (t *Tracker) SetOffline(email string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.online, email)
}

// ReplaceAll installs a full presence snapshot, discarding prior state.
func (t *Tracker) ReplaceAll(users []models.OnlineUser) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.online = make(map[string]models.OnlineUser, len(users))
	for _, u := range users {
		t.online[u.UserEmail] = u
	}
}

// Reset clears the set. Called on transport disconnect, when everything
// we knew is stale.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.online = make(map[string]models.OnlineUser)
}

// IsOnline reports whether email currently has an online entry.
func (t *Tracker) IsOnline(email string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.online[email]
	return ok
}

// Online returns a snapshot of the current online set.
func (t *Tracker) Online() []models.OnlineUser {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]models.OnlineUser, 0, len(t.online))
	for _, u := range t.online {
		out = append(out, u)
	}
	return out
}
