// Package auth verifies identity tokens for the websocket handshake and
// the REST surface. Token issuance is the auth service's problem; this
// side only checks them.
package auth

import (
	"errors"

	"github.com/relicwavetechnologies/hrm8-candidate-messaging/internal/config"
)

// ErrInvalidToken is returned for unknown or empty tokens.
var ErrInvalidToken = errors.New("invalid token")

// Verifier resolves a bearer token to an identity.
type Verifier interface {
	Verify(token string) (config.Identity, error)
}

// StaticVerifier checks tokens against a fixed map, as configured via
// AUTH_TOKENS. Suitable for the development harness and tests.
type StaticVerifier struct {
	tokens map[string]config.Identity
}

// NewStaticVerifier builds a StaticVerifier from a token map.
func NewStaticVerifier(tokens map[string]config.Identity) *StaticVerifier {
	return &StaticVerifier{tokens: tokens}
}

func (v *StaticVerifier) Verify(token string) (config.Identity, error) {
	if token == "" {
		return config.Identity{}, ErrInvalidToken
	}
	id, ok := v.tokens[token]
	if !ok {
		return config.Identity{}, ErrInvalidToken
	}
	return id, nil
}
