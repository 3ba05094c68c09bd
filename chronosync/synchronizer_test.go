package chronosync

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spacemeshos/go-chronosync/hash"
)

const testDelay = 100 * time.Millisecond

type syncTestEnv struct {
	*Synchronizer
	clock clockwork.FakeClock
	ctrl  *gomock.Controller
}

func newSyncTestEnv(t *testing.T, opts ...Opt) *syncTestEnv {
	clock := clockwork.NewFakeClock()
	s, err := New(Config{
		HistorySize:     DefaultHistorySize,
		DigestAlgorithm: hash.SHA256,
		ResponseDelay:   testDelay,
	}, append([]Opt{WithLogger(zaptest.NewLogger(t)), WithClock(clock)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(s.Stop)
	return &syncTestEnv{
		Synchronizer: s,
		clock:        clock,
		ctrl:         gomock.NewController(t),
	}
}

// expectedDigest computes the digest of the given set with a fresh tree.
func expectedDigest(t *testing.T, states ...State) Digest {
	tree := newTestTree(t, DefaultHistorySize)
	tree.Add(states...)
	return tree.Digest()
}

func statesMatch(expected ...State) gomock.Matcher {
	return gomock.Cond(func(x any) bool {
		ss, ok := x.([]State)
		if !ok || len(ss) != len(expected) {
			return false
		}
		for _, s := range expected {
			if !containsVersion(ss, s) {
				return false
			}
		}
		return true
	})
}

func TestNew(t *testing.T) {
	_, err := New(Config{HistorySize: 0, DigestAlgorithm: hash.SHA256})
	require.ErrorIs(t, err, ErrInvalidHistorySize)
	_, err = New(Config{HistorySize: 1, DigestAlgorithm: "sha1"})
	require.ErrorIs(t, err, hash.ErrUnknownAlgorithm)

	s, err := New(DefaultConfig(), WithMetrics("test"))
	require.NoError(t, err)
	defer s.Stop()
	require.Equal(t, expectedDigest(t), s.CurrentDigest())
	require.Empty(t, s.CurrentStates())

	tree := newTestTree(t, 4)
	tree.Add(st(1, 1))
	s = NewSynchronizer(tree)
	defer s.Stop()
	require.Equal(t, tree.Digest(), s.CurrentDigest())
	require.Equal(t, []State{st(1, 1)}, s.CurrentStates())
}

func TestUpdateStateNotifiesObservers(t *testing.T) {
	env := newSyncTestEnv(t, WithMetrics("test"))
	obs1 := NewMockObserver(env.ctrl)
	obs2 := NewMockObserver(env.ctrl)
	env.Observe(obs1)
	env.Observe(obs2)

	d1 := expectedDigest(t, st(1, 1))
	gomock.InOrder(
		obs1.EXPECT().Notify(d1, []State{st(1, 1)}),
		obs1.EXPECT().Notify(expectedDigest(t, st(1, 2)), []State{st(1, 2)}),
	)
	obs2.EXPECT().Notify(d1, []State{st(1, 1)})
	obs2.EXPECT().Notify(expectedDigest(t, st(1, 2)), []State{st(1, 2)})

	require.True(t, env.UpdateState(st(1, 1)))
	require.Equal(t, d1, env.CurrentDigest())
	require.False(t, env.UpdateState(st(1, 1)))
	require.True(t, env.UpdateState(st(1, 2)))
	require.False(t, env.UpdateState(st(1, 1)))
	require.Equal(t, []State{st(1, 2)}, env.CurrentStates())
}

func TestPendingRequestSatisfiedOnce(t *testing.T) {
	env := newSyncTestEnv(t)
	req := NewMockIncomingPendingRequest(env.ctrl)
	env.OnReceivedDigest(env.CurrentDigest(), req)

	req.EXPECT().Satisfy(expectedDigest(t, st(1, 1)), []State{st(1, 1)}).Times(1)
	require.True(t, env.UpdateState(st(1, 1)))
	// the request is cleared once satisfied
	require.True(t, env.UpdateState(st(2, 1)))

	// current digests are never answered with a delay
	env.clock.Advance(time.Hour)
	require.Zero(t, env.sched.scheduled())
}

func TestPendingRequestLastWriterWins(t *testing.T) {
	env := newSyncTestEnv(t)
	env.UpdateState(st(1, 1))
	req1 := NewMockIncomingPendingRequest(env.ctrl)
	req2 := NewMockIncomingPendingRequest(env.ctrl)
	env.OnReceivedDigest(env.CurrentDigest(), req1)
	env.OnReceivedDigest(env.CurrentDigest(), req2)

	req2.EXPECT().Satisfy(expectedDigest(t, st(1, 1), st(2, 1)), []State{st(2, 1)})
	env.UpdateState(st(2, 1))
}

func TestReceivedDigestResponses(t *testing.T) {
	for _, tc := range []struct {
		desc     string
		digest   func(old, empty Digest) Digest
		expected []State
	}{
		{
			desc:     "empty",
			digest:   func(_, empty Digest) Digest { return empty },
			expected: []State{st(1, 1), st(2, 1), st(3, 1)},
		},
		{
			desc:     "unknown",
			digest:   func(_, _ Digest) Digest { return NewDigest([]byte("unknown")) },
			expected: []State{st(1, 1), st(2, 1), st(3, 1)},
		},
		{
			desc:     "known",
			digest:   func(old, _ Digest) Digest { return old },
			expected: []State{st(2, 1), st(3, 1)},
		},
	} {
		t.Run(tc.desc, func(t *testing.T) {
			env := newSyncTestEnv(t, WithMetrics("test"))
			empty := env.CurrentDigest()
			env.UpdateState(st(1, 1))
			old := env.CurrentDigest()
			env.UpdateState(st(2, 1))
			env.UpdateState(st(3, 1))
			current := env.CurrentDigest()

			done := make(chan int)
			req := NewMockIncomingPendingRequest(env.ctrl)
			req.EXPECT().Satisfy(current, statesMatch(tc.expected...)).Do(func(Digest, []State) {
				close(done)
			})
			env.OnReceivedDigest(tc.digest(old, empty), req)

			env.clock.Advance(testDelay - time.Millisecond)
			requireNothing(t, done)
			env.clock.Advance(time.Millisecond)
			waitFor(t, done)
		})
	}
}

func TestEvictedDigestGetsFullResponse(t *testing.T) {
	tree := newTestTree(t, 4)
	clock := clockwork.NewFakeClock()
	s := NewSynchronizer(tree, WithClock(clock), WithResponseDelay(testDelay))
	t.Cleanup(s.Stop)

	var digests []Digest
	for id := range uint64(5) {
		s.UpdateState(st(id, 1))
		digests = append(digests, s.CurrentDigest())
	}
	all := s.CurrentStates()

	ctrl := gomock.NewController(t)
	done := make(chan int)
	req := NewMockIncomingPendingRequest(ctrl)
	req.EXPECT().Satisfy(s.CurrentDigest(), statesMatch(all...)).Do(func(Digest, []State) {
		close(done)
	})
	s.OnReceivedDigest(digests[0], req)
	clock.Advance(testDelay)
	waitFor(t, done)
}

func TestDelayedResponsePerRequest(t *testing.T) {
	env := newSyncTestEnv(t)
	empty := env.CurrentDigest()
	env.UpdateState(st(1, 1))

	done1 := make(chan int, 1)
	done2 := make(chan int, 1)
	req1 := NewMockIncomingPendingRequest(env.ctrl)
	req1.EXPECT().Satisfy(env.CurrentDigest(), []State{st(1, 1)}).Do(func(Digest, []State) {
		done1 <- 1
	})
	req2 := NewMockIncomingPendingRequest(env.ctrl)
	req2.EXPECT().Satisfy(env.CurrentDigest(), []State{st(1, 1)}).Do(func(Digest, []State) {
		done2 <- 2
	})

	// two peers announcing the same digest are both answered
	env.OnReceivedDigest(empty, req1)
	env.clock.Advance(testDelay / 2)
	env.OnReceivedDigest(empty, req2)
	env.clock.Advance(testDelay / 2)
	require.Equal(t, 1, waitFor(t, done1))
	requireNothing(t, done2)
	env.clock.Advance(testDelay / 2)
	require.Equal(t, 2, waitFor(t, done2))

	env.clock.Advance(10 * testDelay)
	requireNothing(t, done1)
	requireNothing(t, done2)
}

func TestDelayedResponseComputedWhenSent(t *testing.T) {
	env := newSyncTestEnv(t)
	env.UpdateState(st(1, 1))
	old := env.CurrentDigest()
	env.UpdateState(st(2, 1))

	done := make(chan int)
	req := NewMockIncomingPendingRequest(env.ctrl)
	req.EXPECT().
		Satisfy(expectedDigest(t, st(1, 1), st(2, 2), st(3, 1)), statesMatch(st(2, 2), st(3, 1))).
		Do(func(Digest, []State) { close(done) })
	env.OnReceivedDigest(old, req)

	// updates coming in while the response is delayed are included
	env.UpdateState(st(2, 2))
	env.UpdateState(st(3, 1))
	env.clock.Advance(testDelay)
	waitFor(t, done)
}

func TestReceivedStateRoundTrip(t *testing.T) {
	a := newSyncTestEnv(t)
	a.UpdateState(st(1, 3))
	a.UpdateState(st(2, 1))
	b := newSyncTestEnv(t)

	obs := NewMockObserver(b.ctrl)
	obs.EXPECT().Notify(a.CurrentDigest(), a.CurrentStates())
	b.Observe(obs)
	require.NoError(t, b.OnReceivedState(a.CurrentDigest(), a.CurrentStates()))
	require.Equal(t, a.CurrentDigest(), b.CurrentDigest())

	// nothing new, no notification
	require.NoError(t, b.OnReceivedState(a.CurrentDigest(), a.CurrentStates()))
}

func TestReceivedStateInconsistency(t *testing.T) {
	a := newSyncTestEnv(t)
	a.UpdateState(st(1, 1))
	core, logs := observer.New(zapcore.DebugLevel)
	b := newSyncTestEnv(t, WithLogger(zap.New(zapcore.NewTee(core, zaptest.NewLogger(t).Core()))))
	b.UpdateState(st(2, 1))

	obs := NewMockObserver(b.ctrl)
	// observers get the digest announced by the peer
	obs.EXPECT().Notify(a.CurrentDigest(), a.CurrentStates())
	b.Observe(obs)

	err := b.OnReceivedState(a.CurrentDigest(), a.CurrentStates())
	require.ErrorIs(t, err, ErrSyncInconsistency)
	var inconsistency *InconsistencyError
	require.True(t, errors.As(err, &inconsistency))
	require.Equal(t, a.CurrentDigest(), inconsistency.Expected)
	require.Equal(t, b.CurrentDigest(), inconsistency.Actual)
	require.Equal(t, 1, inconsistency.Received)
	require.Contains(t, err.Error(), a.CurrentDigest().ShortString())
	// the merge is kept
	require.ElementsMatch(t, []State{st(1, 1), st(2, 1)}, b.CurrentStates())
	require.NotEqual(t, a.CurrentDigest(), b.CurrentDigest())
	entries := logs.FilterMessage("merged set differs from the peer set").All()
	require.Len(t, entries, 1)
	require.Contains(t, entries[0].ContextMap(), "history")
	require.NotErrorIs(t, errors.New("other"), ErrSyncInconsistency)
}

func TestSendSyncRequestWithoutAction(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	logger := zap.New(zapcore.NewTee(core, zaptest.NewLogger(t).Core()))
	env := newSyncTestEnv(t, WithLogger(logger))
	env.SendSyncRequest()
	require.Equal(t, 1, logs.FilterMessageSnippet("no sync request action").Len())
}

func TestSyncRequestDebounced(t *testing.T) {
	env := newSyncTestEnv(t, WithMetrics("test"))
	requests := make(chan Digest, 10)
	env.StartRequesting(RequestActionFunc(func(d Digest) { requests <- d }))
	require.Equal(t, env.CurrentDigest(), <-requests)

	require.NoError(t, env.OnReceivedState(expectedDigest(t, st(1, 1)), []State{st(1, 1)}))
	env.clock.Advance(testDelay / 2)
	require.NoError(t, env.OnReceivedState(expectedDigest(t, st(1, 1), st(2, 1)), []State{st(2, 1)}))
	env.clock.Advance(testDelay / 2)
	requireNothing(t, requests)

	env.clock.Advance(testDelay / 2)
	select {
	case d := <-requests:
		require.Equal(t, expectedDigest(t, st(1, 1), st(2, 1)), d)
	case <-time.After(5 * time.Second):
		require.FailNow(t, "no sync request sent")
	}
	env.clock.Advance(time.Hour)
	requireNothing(t, requests)
}

func TestResponseSchedulesSyncRequest(t *testing.T) {
	env := newSyncTestEnv(t)
	empty := env.CurrentDigest()
	env.UpdateState(st(1, 1))
	requests := make(chan Digest, 10)
	env.StartRequesting(RequestActionFunc(func(d Digest) { requests <- d }))
	<-requests

	responded := make(chan int)
	env.OnReceivedDigest(empty, PendingRequestFunc(func(Digest, []State) { close(responded) }))
	env.clock.Advance(testDelay)
	waitFor(t, responded)
	require.Eventually(t, func() bool { return env.sched.scheduled() == 1 }, time.Second, time.Millisecond)
	env.clock.Advance(testDelay)
	select {
	case d := <-requests:
		require.Equal(t, env.CurrentDigest(), d)
	case <-time.After(5 * time.Second):
		require.FailNow(t, "no sync request sent")
	}
}

func TestCallbacksMayReenter(t *testing.T) {
	s, err := New(DefaultConfig(), WithLogger(zaptest.NewLogger(t)), WithResponseDelay(time.Millisecond))
	require.NoError(t, err)
	t.Cleanup(s.Stop)

	var seen []Digest
	s.Observe(ObserverFunc(func(d Digest, _ []State) {
		require.Equal(t, d, s.CurrentDigest())
		seen = append(seen, d)
	}))
	satisfied := make(chan Digest, 10)
	var request IncomingPendingRequest
	request = PendingRequestFunc(func(d Digest, _ []State) {
		// a peer that received our update announces the new digest right away
		s.OnReceivedDigest(d, request)
		satisfied <- d
	})
	s.OnReceivedDigest(s.CurrentDigest(), request)

	s.UpdateState(st(1, 1))
	require.Equal(t, s.CurrentDigest(), <-satisfied)
	s.UpdateState(st(2, 1))
	require.Equal(t, s.CurrentDigest(), <-satisfied)
	require.Len(t, seen, 2)
}

func TestConcurrentUpdates(t *testing.T) {
	s, err := New(DefaultConfig(), WithResponseDelay(time.Millisecond))
	require.NoError(t, err)
	t.Cleanup(s.Stop)

	var (
		mu       sync.Mutex
		notified []State
	)
	s.Observe(ObserverFunc(func(_ Digest, ss []State) {
		mu.Lock()
		defer mu.Unlock()
		notified = append(notified, ss...)
	}))

	const workers, perWorker = 8, 50
	var wg sync.WaitGroup
	for w := range uint64(workers) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for v := range uint64(perWorker) {
				s.UpdateState(st(w, v+1))
				s.OnReceivedDigest(s.CurrentDigest(), PendingRequestFunc(func(Digest, []State) {}))
			}
		}()
	}
	wg.Wait()

	states := s.CurrentStates()
	require.Len(t, states, workers)
	for _, state := range states {
		require.EqualValues(t, perWorker, state.(testState).version)
	}
	require.Len(t, notified, workers*perWorker)
	require.Equal(t, expectedDigest(t, states...), s.CurrentDigest())
}

func TestStopCancelsScheduled(t *testing.T) {
	env := newSyncTestEnv(t)
	empty := env.CurrentDigest()
	env.UpdateState(st(1, 1))
	req := NewMockIncomingPendingRequest(env.ctrl)
	env.OnReceivedDigest(empty, req)
	env.OnReceivedDigest(env.CurrentDigest(), req)
	require.Equal(t, 1, env.sched.scheduled())

	env.Stop()
	require.Zero(t, env.sched.scheduled())
	env.clock.Advance(time.Hour)
	// pending requests are dropped
	env.UpdateState(st(2, 1))
}
