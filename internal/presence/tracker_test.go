package presence

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/relicwavetechnologies/hrm8-candidate-messaging/internal/models"
)

func TestOnlineOfflineLifecycle(t *testing.T) {
	tr := NewTracker()

	assert.False(t, tr.IsOnline("recruiter@example.com"))

	tr.SetOnline(models.OnlineUser{UserEmail: "recruiter@example.com", UserName: "Recruiter"})
	assert.True(t, tr.IsOnline("recruiter@example.com"))

	tr.SetOffline("recruiter@example.com")
	assert.False(t, tr.IsOnline("recruiter@example.com"))
}

func TestSetOfflineUnknownUserIsNoop(t *testing.T) {
	tr := NewTracker()
	tr.SetOffline("nobody@example.com")
	assert.Empty(t, tr.Online())
}

func TestReplaceAllDiscardsPriorState(t *testing.T) {
	tr := NewTracker()
	tr.SetOnline(models.OnlineUser{UserEmail: "stale@example.com"})

	tr.ReplaceAll([]models.OnlineUser{
		{UserEmail: "a@example.com"},
		{UserEmail: "b@example.com"},
	})

	assert.False(t, tr.IsOnline("stale@example.com"))
	assert.True(t, tr.IsOnline("a@example.com"))
	assert.True(t, tr.IsOnline("b@example.com"))
	assert.Len(t, tr.Online(), 2)
}

func TestResetThenSnapshotRepopulates(t *testing.T) {
	tr := NewTracker()
	tr.SetOnline(models.OnlineUser{UserEmail: "recruiter@example.com"})

	// Transport dropped: every entry is stale until the next snapshot.
	tr.Reset()
	assert.False(t, tr.IsOnline("recruiter@example.com"))
	assert.Empty(t, tr.Online())

	tr.ReplaceAll([]models.OnlineUser{{UserEmail: "recruiter@example.com"}})
	assert.True(t, tr.IsOnline("recruiter@example.com"))
}
