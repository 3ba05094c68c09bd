package chronosync

import (
	"errors"
	"fmt"
)

// ErrSyncInconsistency is matched by the errors returned from OnReceivedState when
// merging the received states doesn't bring the local set to the announced digest.
var ErrSyncInconsistency = errors.New("synchronization inconsistency")

// InconsistencyError describes a state response that didn't lead to the digest the
// peer announced. The received states are merged nonetheless.
type InconsistencyError struct {
	// Expected is the digest announced by the peer.
	Expected Digest
	// Actual is the local digest after merging the received states.
	Actual Digest
	// Received is the number of received states.
	Received int
}

func (e *InconsistencyError) Error() string {
	return fmt.Sprintf("%s: received %d states for digest %s but the local digest is %s",
		ErrSyncInconsistency, e.Received, e.Expected.ShortString(), e.Actual.ShortString())
}

func (*InconsistencyError) Is(target error) bool {
	if target == ErrSyncInconsistency {
		return true
	}
	_, ok := target.(*InconsistencyError)
	return ok
}
