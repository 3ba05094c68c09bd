package chronosync

import (
	"bytes"
	"errors"
	"fmt"
	stdhash "hash"
	"slices"

	"go.uber.org/zap"

	"github.com/spacemeshos/go-chronosync/hash"
)

// ErrInvalidHistorySize is returned when a tree is created with a non-positive history size.
var ErrInvalidHistorySize = errors.New("history size must be positive")

type entry struct {
	state State
	// key is the state serialization, computed once when the state enters the set.
	key []byte
}

// TreeOpt configures a HistoricalDigestTree.
type TreeOpt func(t *HistoricalDigestTree)

// WithTreeLogger specifies the logger for the tree.
func WithTreeLogger(logger *zap.Logger) TreeOpt {
	return func(t *HistoricalDigestTree) {
		t.logger = logger
	}
}

// HistoricalDigestTree holds the current set of states along with its digest and
// a bounded log of the past digests of the set. The log allows computing the
// difference between the current set and a past one identified by its digest:
//
//	old := tree.Digest()
//	tree.Add(s1, s2)
//	diff := tree.Complement(old) // s1, s2
//
// The digest is computed over the serialized states sorted in byte order, so peers
// that hold the same set arrive at the same digest regardless of the order the
// states were added in.
//
// HistoricalDigestTree is not safe for concurrent use.
type HistoricalDigestTree struct {
	logger  *zap.Logger
	hasher  stdhash.Hash
	empty   Digest
	current []entry
	history *history
	onEvict func(Digest)
}

// NewHistoricalDigestTree creates a tree that logs up to historySize digests,
// using the named digest algorithm (see hash.Algorithms).
func NewHistoricalDigestTree(historySize int, algorithm string, opts ...TreeOpt) (*HistoricalDigestTree, error) {
	if historySize <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidHistorySize, historySize)
	}
	newHash, err := hash.FactoryFor(algorithm)
	if err != nil {
		return nil, err
	}
	t := &HistoricalDigestTree{
		logger: zap.NewNop(),
		hasher: newHash(),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.history, err = newHistory(historySize, t.evicted)
	if err != nil {
		return nil, fmt.Errorf("create history log: %w", err)
	}
	t.empty = t.buildDigest()
	t.log(t.empty)
	return t, nil
}

func (t *HistoricalDigestTree) evicted(d Digest) {
	t.logger.Debug("digest evicted from history", zap.Stringer("digest", d))
	if t.onEvict != nil {
		t.onEvict(d)
	}
}

// Digest returns the digest of the current set of states.
func (t *HistoricalDigestTree) Digest() Digest {
	return t.history.latest
}

// Empty returns the digest of an empty set of states.
func (t *HistoricalDigestTree) Empty() Digest {
	return t.empty
}

// Add adds the states to the current set. A state replaces the state it matches
// only if it is newer; a state matching nothing is inserted. Add returns true if
// the current set has changed, in which case the new digest is logged.
func (t *HistoricalDigestTree) Add(states ...State) bool {
	changed := false
	for _, s := range states {
		changed = t.update(s) || changed
	}
	if changed {
		t.log(t.buildDigest())
	}
	return changed
}

func (t *HistoricalDigestTree) update(s State) bool {
	if s == nil {
		panic("BUG: nil state added to the digest tree")
	}
	i := t.find(s)
	if i < 0 {
		t.current = append(t.current, entry{state: s, key: s.Bytes()})
		t.logger.Debug("added state", zap.Any("state", s))
		return true
	}
	if !t.IsNewer(s, t.current[i].state) {
		t.logger.Debug("skipped stale state", zap.Any("state", s))
		return false
	}
	t.current[i] = entry{state: s, key: s.Bytes()}
	t.logger.Debug("replaced state", zap.Any("state", s))
	return true
}

// find returns the index of the current state matching s, or -1.
func (t *HistoricalDigestTree) find(s State) int {
	return slices.IndexFunc(t.current, func(e entry) bool {
		return e.state.Matches(s)
	})
}

func (t *HistoricalDigestTree) buildDigest() Digest {
	keys := make([][]byte, len(t.current))
	for i, e := range t.current {
		keys[i] = e.key
	}
	slices.SortFunc(keys, bytes.Compare)
	t.hasher.Reset()
	for _, k := range keys {
		t.hasher.Write(k)
	}
	return NewDigest(t.hasher.Sum(nil))
}

func (t *HistoricalDigestTree) log(d Digest) {
	t.history.put(d, t.All())
}

// IsNewer returns true if a is a newer version than b.
func (t *HistoricalDigestTree) IsNewer(a, b State) bool {
	return a.Compare(b) > 0
}

// IsEmpty returns true if d is the digest of an empty set of states.
func (t *HistoricalDigestTree) IsEmpty(d Digest) bool {
	return t.empty == d
}

// IsCurrent returns true if d is the digest of the current set of states.
func (t *HistoricalDigestTree) IsCurrent(d Digest) bool {
	return t.Digest() == d
}

// IsKnown returns true if d is logged in the history.
func (t *HistoricalDigestTree) IsKnown(d Digest) bool {
	return t.history.contains(d)
}

// Complement returns the current states that are not present in the set identified
// by d. If d is not known, all the current states are returned.
func (t *HistoricalDigestTree) Complement(d Digest) []State {
	past, found := t.history.get(d)
	if !found {
		return t.All()
	}
	var diff []State
	for _, e := range t.current {
		if !containsVersion(past, e.state) {
			diff = append(diff, e.state)
		}
	}
	return diff
}

// All returns a copy of the current set of states.
func (t *HistoricalDigestTree) All() []State {
	all := make([]State, len(t.current))
	for i, e := range t.current {
		all[i] = e.state
	}
	return all
}

// Len returns the number of states in the current set.
func (t *HistoricalDigestTree) Len() int {
	return len(t.current)
}

// HistoryLen returns the number of digests in the history log.
func (t *HistoricalDigestTree) HistoryLen() int {
	return t.history.len()
}

// History returns the logged digests, oldest first.
func (t *HistoricalDigestTree) History() []Digest {
	return t.history.digests()
}
