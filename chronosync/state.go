package chronosync

import (
	"fmt"

	"go.uber.org/zap/zapcore"
)

// State is a versioned unit of synchronized data.
// Implementations must be values: Matches and Compare may not rely on pointer
// identity, as instances of the same state are decoded from the wire independently.
type State interface {
	// Matches returns true if both states occupy the same logical slot, e.g. the
	// same publisher, so that one of them should replace the other.
	Matches(other State) bool
	// Compare orders the state against a matching one: positive if this state is
	// newer, negative if it's older, 0 if they're the same version.
	// Comparing states that don't match returns 0.
	Compare(other State) int
	// Bytes returns the canonical serialization of the state that is fed into the
	// digest algorithm. It must not fail.
	Bytes() []byte
}

// States is a set of states with unique slots, as returned by the tree.
type States []State

// MarshalLogArray implements zapcore.ArrayMarshaler.
func (ss States) MarshalLogArray(enc zapcore.ArrayEncoder) error {
	for n, s := range ss {
		if n == 5 {
			enc.AppendString(fmt.Sprintf("...(%d more)", len(ss)-n))
			break
		}
		if m, ok := s.(fmt.Stringer); ok {
			enc.AppendString(m.String())
		} else {
			enc.AppendString(fmt.Sprintf("%x", s.Bytes()))
		}
	}
	return nil
}

// sameVersion returns true if a and b are the same version of the same slot.
func sameVersion(a, b State) bool {
	return a.Matches(b) && a.Compare(b) == 0
}

// containsVersion returns true if ss holds the same version of s.
func containsVersion(ss []State, s State) bool {
	for _, t := range ss {
		if sameVersion(s, t) {
			return true
		}
	}
	return false
}
