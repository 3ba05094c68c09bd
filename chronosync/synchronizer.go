package chronosync

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

type digestKind int

const (
	digestCurrent digestKind = iota
	digestEmpty
	digestUnknown
	digestKnown
)

func (k digestKind) String() string {
	switch k {
	case digestCurrent:
		return "current"
	case digestEmpty:
		return "empty"
	case digestUnknown:
		return "unknown"
	case digestKnown:
		return "known"
	default:
		return fmt.Sprintf("digestKind(%d)", int(k))
	}
}

// keys for the scheduled tasks.
type (
	syncRequestKey struct{}
	responseKey    struct{ seq uint64 }
)

// Opt configures a Synchronizer.
type Opt func(s *Synchronizer)

// WithLogger specifies the logger for the Synchronizer.
func WithLogger(logger *zap.Logger) Opt {
	return func(s *Synchronizer) {
		s.logger = logger
	}
}

// WithClock specifies the clock the delayed responses and requests are scheduled with.
func WithClock(clock clockwork.Clock) Opt {
	return func(s *Synchronizer) {
		s.clock = clock
	}
}

// WithResponseDelay specifies how long to wait before answering a stale digest and
// before re-announcing the local digest after a change.
func WithResponseDelay(d time.Duration) Opt {
	return func(s *Synchronizer) {
		s.responseDelay = d
	}
}

// WithMetrics enables metrics collection, labeled with the given name.
func WithMetrics(name string) Opt {
	return func(s *Synchronizer) {
		s.metrics = newTracker(name)
	}
}

// Synchronizer runs the synchronization protocol over a HistoricalDigestTree.
//
// It is driven by three entry points: UpdateState for local changes, and
// OnReceivedDigest and OnReceivedState for what the transport receives from peers.
// It talks to the outside world only through the Observer, IncomingPendingRequest
// and OutgoingRequestAction callbacks. The callbacks are never invoked with the
// internal lock held, so they may call back into the Synchronizer.
type Synchronizer struct {
	logger        *zap.Logger
	clock         clockwork.Clock
	responseDelay time.Duration
	metrics       *tracker
	sched         *scheduler
	// responses counts the delayed responses, each one gets its own timer.
	responses atomic.Uint64

	// mu guards the tree and the pending requests.
	mu      sync.Mutex
	tree    *HistoricalDigestTree
	pending map[Digest]IncomingPendingRequest

	cbMu      sync.RWMutex
	observers []Observer
	action    OutgoingRequestAction
}

// New creates a Synchronizer along with its tree as specified by the config.
func New(cfg Config, opts ...Opt) (*Synchronizer, error) {
	s := newSynchronizer(append([]Opt{WithResponseDelay(cfg.ResponseDelay)}, opts...))
	tree, err := NewHistoricalDigestTree(cfg.HistorySize, cfg.DigestAlgorithm,
		WithTreeLogger(s.logger.Named("tree")))
	if err != nil {
		return nil, fmt.Errorf("create digest tree: %w", err)
	}
	s.setTree(tree)
	return s, nil
}

// NewSynchronizer creates a Synchronizer over an existing tree. The tree must not be
// used directly afterwards.
func NewSynchronizer(tree *HistoricalDigestTree, opts ...Opt) *Synchronizer {
	s := newSynchronizer(opts)
	s.setTree(tree)
	return s
}

func newSynchronizer(opts []Opt) *Synchronizer {
	s := &Synchronizer{
		logger:        zap.NewNop(),
		clock:         clockwork.NewRealClock(),
		responseDelay: DefaultResponseDelay,
		pending:       make(map[Digest]IncomingPendingRequest),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.sched = newScheduler(s.clock)
	return s
}

func (s *Synchronizer) setTree(tree *HistoricalDigestTree) {
	s.tree = tree
	if s.metrics != nil {
		tree.onEvict = s.metrics.digestEvicted
	}
}

// CurrentDigest returns the digest of the local set of states.
func (s *Synchronizer) CurrentDigest() Digest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tree.Digest()
}

// CurrentStates returns a copy of the local set of states.
func (s *Synchronizer) CurrentStates() []State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tree.All()
}

// Observe registers an observer of the local set of states. Observers can't be
// unregistered.
func (s *Synchronizer) Observe(o Observer) {
	s.cbMu.Lock()
	defer s.cbMu.Unlock()
	s.observers = append(s.observers, o)
}

// StartRequesting registers the action used to announce the local digest and
// announces it right away.
func (s *Synchronizer) StartRequesting(action OutgoingRequestAction) {
	s.cbMu.Lock()
	s.action = action
	s.cbMu.Unlock()
	s.SendSyncRequest()
}

// SendSyncRequest announces the current local digest. It does nothing if
// StartRequesting wasn't called yet.
func (s *Synchronizer) SendSyncRequest() {
	s.cbMu.RLock()
	action := s.action
	s.cbMu.RUnlock()
	if action == nil {
		s.logger.Warn("no sync request action is set, was StartRequesting called?")
		return
	}
	digest := s.CurrentDigest()
	s.logger.Debug("sending sync request", zap.Stringer("digest", digest))
	s.metrics.requestSent()
	action.Request(digest)
}

// UpdateState adds a local state. If the local set changes, the observers are
// notified and every request waiting for a change is satisfied with the states it
// is missing. UpdateState returns true if the local set has changed.
func (s *Synchronizer) UpdateState(state State) bool {
	s.mu.Lock()
	old := s.tree.Digest()
	if !s.tree.Add(state) {
		s.mu.Unlock()
		s.logger.Debug("state update skipped", zap.Any("state", state))
		return false
	}
	digest := s.tree.Digest()
	complement := s.tree.Complement(old)
	// the requests are taken along with the change so that an announcement
	// racing with it is either satisfied here or classified against the new digest
	type satisfaction struct {
		request IncomingPendingRequest
		states  []State
	}
	satisfy := make([]satisfaction, 0, len(s.pending))
	for d, r := range s.pending {
		ss := complement
		if d != old {
			ss = s.tree.Complement(d)
		}
		satisfy = append(satisfy, satisfaction{request: r, states: ss})
	}
	clear(s.pending)
	s.mu.Unlock()

	s.logger.Debug("state updated",
		zap.Stringer("old", old),
		zap.Stringer("digest", digest),
		zap.Array("states", States(complement)),
		zap.Int("pending", len(satisfy)))
	s.metrics.changed(true)
	s.metrics.pending(0)
	s.notifyObservers(digest, complement)
	for _, st := range satisfy {
		st.request.Satisfy(digest, st.states)
	}
	s.metrics.pendingSatisfied(len(satisfy))
	return true
}

func (s *Synchronizer) classify(d Digest) digestKind {
	switch {
	case s.tree.IsCurrent(d):
		return digestCurrent
	case s.tree.IsEmpty(d):
		return digestEmpty
	case !s.tree.IsKnown(d):
		return digestUnknown
	default:
		return digestKnown
	}
}

// OnReceivedDigest handles a digest announced by a peer. If the digest is the local
// one, the request waits until the local set changes. Otherwise it is answered after
// the response delay: with all the local states if the digest is empty or unknown,
// or with the states added since the digest if it is a past local digest.
//
// Every stale announcement is answered on its own. A repeated announcement of the
// current digest replaces the request waiting for it.
func (s *Synchronizer) OnReceivedDigest(digest Digest, request IncomingPendingRequest) {
	s.mu.Lock()
	kind := s.classify(digest)
	if kind == digestCurrent {
		s.pending[digest] = request
		n := len(s.pending)
		s.mu.Unlock()
		s.logger.Debug("received current digest, waiting for changes", zap.Stringer("digest", digest))
		s.metrics.digestReceived(kind)
		s.metrics.pending(n)
		return
	}
	s.mu.Unlock()

	s.logger.Debug("received stale digest, scheduling response",
		zap.Stringer("digest", digest),
		zap.Stringer("kind", kind))
	s.metrics.digestReceived(kind)
	key := responseKey{seq: s.responses.Add(1)}
	s.sched.schedule(key, s.responseDelay, func() {
		s.respond(digest, request)
	})
}

// respond answers a stale digest. The digest is classified again as the local set
// may have changed since the announcement.
func (s *Synchronizer) respond(peerDigest Digest, request IncomingPendingRequest) {
	s.mu.Lock()
	var states []State
	switch kind := s.classify(peerDigest); kind {
	case digestCurrent:
		s.pending[peerDigest] = request
		s.mu.Unlock()
		s.logger.Debug("peer caught up before the response, waiting for changes",
			zap.Stringer("digest", peerDigest))
		return
	case digestEmpty, digestUnknown:
		states = s.tree.All()
	case digestKnown:
		states = s.tree.Complement(peerDigest)
	}
	digest := s.tree.Digest()
	s.mu.Unlock()

	s.logger.Debug("sending sync response",
		zap.Stringer("peer_digest", peerDigest),
		zap.Stringer("digest", digest),
		zap.Int("count", len(states)))
	s.metrics.responseSent()
	request.Satisfy(digest, states)
	s.scheduleSyncRequest()
}

// OnReceivedState merges the states a peer sent in response to our announcement.
// If the local set changes, the observers are notified with the peer digest and the
// local digest is re-announced after the response delay. If the merged set's digest
// differs from the digest the peer sent, an *InconsistencyError is returned; the
// merge is kept.
func (s *Synchronizer) OnReceivedState(digest Digest, states []State) error {
	s.mu.Lock()
	changed := s.tree.Add(states...)
	current := s.tree.Digest()
	var history []Digest
	if current != digest {
		history = s.tree.History()
	}
	s.mu.Unlock()

	s.logger.Debug("received sync response",
		zap.Stringer("digest", digest),
		zap.Array("states", States(states)),
		zap.Bool("changed", changed))
	if changed {
		s.metrics.changed(false)
		s.notifyObservers(digest, states)
		s.scheduleSyncRequest()
	}
	if current != digest {
		s.logger.Debug("merged set differs from the peer set",
			zap.Stringer("peer_digest", digest),
			zap.Stringer("digest", current),
			zap.Stringers("history", history))
		s.metrics.inconsistency()
		return &InconsistencyError{
			Expected: digest,
			Actual:   current,
			Received: len(states),
		}
	}
	return nil
}

// scheduleSyncRequest announces the local digest after the response delay, so that
// peers that received the same update don't all announce at the same time.
func (s *Synchronizer) scheduleSyncRequest() {
	s.sched.schedule(syncRequestKey{}, s.responseDelay, s.SendSyncRequest)
}

func (s *Synchronizer) notifyObservers(digest Digest, states []State) {
	s.cbMu.RLock()
	observers := s.observers
	s.cbMu.RUnlock()
	for _, o := range observers {
		o.Notify(digest, states)
	}
}

// Stop cancels the scheduled responses and announcements. Requests waiting for a
// local change are dropped.
func (s *Synchronizer) Stop() {
	s.sched.stop()
	s.mu.Lock()
	clear(s.pending)
	s.mu.Unlock()
	s.metrics.pending(0)
}
