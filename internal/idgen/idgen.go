// Package idgen produces random 128-bit identifiers for jobs and accounts
// (spec.md §2: "IdGen -- produces random 128-bit job identifiers"), the way
// the teacher generates transaction ids in internal/ledger/ledger.go
// (uuid.New().String()).
package idgen

import "github.com/google/uuid"

// New returns a new random (v4) 128-bit identifier.
func New() uuid.UUID {
	return uuid.New()
}
