package app

import (
	"crypto/rand"
	"fmt"

	"github.com/google/uuid"
)

// newID produces a unique identifier for tenants and invitations.
func newID() string {
	return uuid.NewString()
}

// newToken produces an unguessable invitation token: 32 random bytes,
// hex-encoded. Tokens are bearer credentials, so uuid is not enough here.
func newToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("reading random bytes: %w", err)
	}
	const hex = "0123456789abcdef"
	out := make([]byte, 64)
	for i, v := range b {
		out[i*2] = hex[v>>4]
		out[i*2+1] = hex[v&0x0f]
	}
	return string(out), nil
}
