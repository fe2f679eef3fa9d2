// Package auth manages account credentials: a persisted cache of short-lived
// access tokens and the refresh flow that mints them.
package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Credential identifies one account. The refresh token is a durable secret
// supplied by the user's existing login; this tool never creates or rotates
// it.
type Credential struct {
	RefreshToken string
	ProjectID    string
	Email        string
}

// CacheKey derives the stable cache key for this credential. The key
// combines the normalized email, the project id and a one-way hash of the
// refresh token, so it survives process restarts without ever placing the
// secret itself in the persisted cache file.
func (c Credential) CacheKey() string {
	sum := sha256.Sum256([]byte(c.RefreshToken + "|" + c.ProjectID))
	return strings.ToLower(strings.TrimSpace(c.Email)) + "|" + c.ProjectID + "|" + hex.EncodeToString(sum[:8])
}

// Label returns a human-readable identifier for log and report lines.
func (c Credential) Label() string {
	if c.Email != "" {
		return c.Email
	}
	return c.ProjectID
}
