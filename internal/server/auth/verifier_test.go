package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relicwavetechnologies/hrm8-candidate-messaging/internal/config"
)

func TestStaticVerifier(t *testing.T) {
	v := NewStaticVerifier(map[string]config.Identity{
		"good": {Email: "alice@example.com", Name: "Alice"},
	})

	id, err := v.Verify("good")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", id.Email)
	assert.Equal(t, "Alice", id.Name)
}

func TestStaticVerifierRejectsUnknownToken(t *testing.T) {
	v := NewStaticVerifier(map[string]config.Identity{})

	_, err := v.Verify("nope")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestStaticVerifierRejectsEmptyToken(t *testing.T) {
	v := NewStaticVerifier(map[string]config.Identity{
		"": {Email: "oops@example.com"},
	})

	_, err := v.Verify("")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
