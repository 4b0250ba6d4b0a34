package pkg

import (
	"crypto/rand"
	"encoding/base64"

	"github.com/google/uuid"
)

// GenerateMatchID - generates a collision-resistant match identifier.
// A v4 UUID carries 122 random bits, enough that birthday collisions are
// negligible at any realistic table size.
func GenerateMatchID() string {
	return uuid.NewString()
}

// GeneratePlayerID - generates the identity a connection is bound to.
func GeneratePlayerID() string {
	return uuid.NewString()
}

// GenerateReconnectToken - generates the secret a disconnected player must
// present to reclaim its slot.
func GenerateReconnectToken() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "error-generating-reconnect-token"
	}

	return base64.RawURLEncoding.EncodeToString(b)
}
