// Package ids generates identifiers for journal sessions and generator
// handles.
package ids

import (
	"github.com/google/uuid"
)

// Generator produces unique string identifiers.
type Generator interface {
	Generate() string
}

// UUIDv7 generates time-sortable UUIDv7 identifiers, so sessions and
// handles list in creation order.
//
// Safe for concurrent use.
type UUIDv7 struct{}

// Generate returns a new hyphenated UUIDv7. It panics if the random source
// fails.
func (UUIDv7) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}
