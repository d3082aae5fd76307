// Package auth checks the shared secret trusted backend components present
// when calling the relay.
package auth

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
)

var (
	ErrMissingCredentials = errors.New("missing credentials")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// APIKeyVerifier compares a presented key against Expected in constant time.
// A zero-value verifier accepts every request.
type APIKeyVerifier struct {
	Expected string
}

func (v APIKeyVerifier) Enabled() bool {
	return v.Expected != ""
}

func (v APIKeyVerifier) Verify(apiKey string) error {
	if apiKey == "" {
		return ErrMissingCredentials
	}
	if subtle.ConstantTimeCompare([]byte(apiKey), []byte(v.Expected)) != 1 {
		return ErrInvalidCredentials
	}
	return nil
}

// VerifyRequest reads "Authorization: Bearer <key>" from r. It is a no-op
// when the verifier is disabled.
func (v APIKeyVerifier) VerifyRequest(r *http.Request) error {
	if !v.Enabled() {
		return nil
	}
	return v.Verify(BearerToken(r))
}

func BearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
