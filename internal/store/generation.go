package store

import "fmt"

// generationState tracks what a Generation knows about the file.
type generationState int

const (
	genUnknown generationState = iota
	genKnown
	genDeleted
)

// Generation is an opaque, comparable token for an exact on-disk file
// state. It distinguishes self-caused from foreign file changes and is
// only ever compared for equality, never ordered.
type Generation struct {
	state generationState
	dev   uint64
	ino   uint64
	size  int64
	mtime int64
}

// UnknownGeneration returns the token for a not-yet-observed file.
func UnknownGeneration() Generation { return Generation{state: genUnknown} }

// DeletedGeneration returns the token for a confirmed-absent file.
func DeletedGeneration() Generation { return Generation{state: genDeleted} }

// Known reports whether g identifies an observed on-disk file state.
func (g Generation) Known() bool { return g.state == genKnown }

// Deleted reports whether g marks the file as confirmed absent.
func (g Generation) Deleted() bool { return g.state == genDeleted }

// Equal reports whether g and o identify the same on-disk state.
// Unknown generations never equal anything, including each other, so an
// unobserved file is always treated as changed.
func (g Generation) Equal(o Generation) bool {
	if g.state == genUnknown || o.state == genUnknown {
		return false
	}
	return g == o
}

// String returns a diagnostic representation of the generation.
func (g Generation) String() string {
	switch g.state {
	case genKnown:
		return fmt.Sprintf("gen(dev=%d ino=%d size=%d mtime=%d)", g.dev, g.ino, g.size, g.mtime)
	case genDeleted:
		return "gen(deleted)"
	default:
		return "gen(unknown)"
	}
}
