// Package idgen provides ID generation utilities for the application.
// It encapsulates the ID generation implementation, making it easy to change
// the underlying ID generation strategy in the future.
package idgen

import (
	"crypto/rand"
	"encoding/base64"

	"github.com/rs/xid"
)

// NewID generates a new globally unique, sortable identifier.
// Returns a 20-character string using xid format.
func NewID() string {
	return xid.New().String()
}

// NewSubscriptionID generates a unique handle for a live-tail
// subscription. Currently an alias for NewID.
func NewSubscriptionID() string {
	return NewID()
}

// NewRequestID generates a unique ID for HTTP request tracking.
// Currently an alias for NewID.
func NewRequestID() string {
	return NewID()
}

// NewSecureSecret generates a cryptographically secure random string of
// the given length. Uses URL-safe base64 encoding. Useful for JWT secrets.
func NewSecureSecret(length int) string {
	byteLength := (length*3 + 3) / 4
	bytes := make([]byte, byteLength)

	if _, err := rand.Read(bytes); err != nil {
		// Fallback should never happen with crypto/rand, but just in case
		return "please-generate-a-secure-random-secret"
	}

	encoded := base64.URLEncoding.EncodeToString(bytes)
	if len(encoded) > length {
		encoded = encoded[:length]
	}
	return encoded
}
