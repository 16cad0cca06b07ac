// Package idgen centralizes identifier generation. The teacher stubbed this
// out with a hand-rolled UUID-shaped string (control_plane/coordination/leader.go's
// generateUUID); here it is backed by the real ecosystem library.
package idgen

import "github.com/google/uuid"

// New returns a random (v4) identifier suitable for lock metadata, chaos
// action records, and other non-content-addressed ids.
func New() string {
	return uuid.NewString()
}
