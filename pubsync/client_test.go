package pubsync

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"testing"
	"time"

	mocknet "github.com/libp2p/go-libp2p/p2p/net/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spacemeshos/go-chronosync/chronosync"
	"github.com/spacemeshos/go-chronosync/hash"
	"github.com/spacemeshos/go-chronosync/log/logtest"
	"github.com/spacemeshos/go-chronosync/p2p"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Prefix = "test"
	cfg.RequestLifetime = 200 * time.Millisecond
	cfg.StreamTimeout = 5 * time.Second
	return cfg
}

type testNode struct {
	*Client
	mu       sync.Mutex
	received []ClientState
}

func (n *testNode) notified() []ClientState {
	n.mu.Lock()
	defer n.mu.Unlock()
	return slices.Clone(n.received)
}

func startTestNodes(t *testing.T, count int, opts ...Opt) []*testNode {
	logger := logtest.New(t)
	mesh, err := mocknet.FullMeshConnected(count)
	require.NoError(t, err)
	t.Cleanup(func() { mesh.Close() })
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	nodes := make([]*testNode, count)
	for i, h := range mesh.Hosts() {
		ps, err := p2p.NewPubSub(ctx, h, p2p.DefaultPubSubConfig())
		require.NoError(t, err)
		syncer, err := chronosync.New(chronosync.Config{
			HistorySize:     chronosync.DefaultHistorySize,
			DigestAlgorithm: hash.SHA256,
			ResponseDelay:   10 * time.Millisecond,
		}, chronosync.WithLogger(logger.Named("sync")))
		require.NoError(t, err)
		cfg := testConfig()
		cfg.ClientID = uint64(i + 1)
		c, err := New(h, ps, syncer, cfg, append([]Opt{WithLogger(logger.Named(h.ID().ShortString()))}, opts...)...)
		require.NoError(t, err)
		n := &testNode{Client: c}
		c.Subscribe(func(ss []ClientState) {
			n.mu.Lock()
			defer n.mu.Unlock()
			n.received = append(n.received, ss...)
		})
		nodes[i] = n
	}
	for _, n := range nodes {
		require.NoError(t, n.Start(ctx))
		t.Cleanup(n.Stop)
	}
	return nodes
}

func requireConverged(t *testing.T, nodes []*testNode, expected []ClientState) {
	t.Helper()
	require.Eventually(t, func() bool {
		for _, n := range nodes {
			states := n.States()
			slices.SortFunc(states, func(a, b ClientState) int { return cmp.Compare(a.Client, b.Client) })
			if !slices.Equal(states, expected) {
				return false
			}
		}
		return true
	}, 10*time.Second, 10*time.Millisecond)
	digest := nodes[0].syncer.CurrentDigest()
	for _, n := range nodes[1:] {
		require.Equal(t, digest, n.syncer.CurrentDigest())
	}
}

func TestClientsConverge(t *testing.T) {
	nodes := startTestNodes(t, 3)
	require.True(t, nodes[0].Publish(1))
	require.True(t, nodes[0].Publish(2))
	require.False(t, nodes[0].Publish(2))
	require.Equal(t, ClientState{Client: 2, Message: 1}, nodes[1].PublishNext())

	requireConverged(t, nodes, []ClientState{
		{Client: 1, Message: 2},
		{Client: 2, Message: 1},
	})

	require.Equal(t, ClientState{Client: 3, Message: 1}, nodes[2].PublishNext())
	require.Equal(t, ClientState{Client: 3, Message: 2}, nodes[2].PublishNext())
	requireConverged(t, nodes, []ClientState{
		{Client: 1, Message: 2},
		{Client: 2, Message: 1},
		{Client: 3, Message: 2},
	})

	for i, n := range nodes {
		require.Equal(t, uint64(i+1), n.ClientID())
		// every node learns the latest state of every other client
		received := n.notified()
		for _, other := range n.States() {
			require.Contains(t, received, other)
		}
	}
}

func TestClientStopped(t *testing.T) {
	nodes := startTestNodes(t, 2)
	for range 5 {
		nodes[0].PublishNext()
	}
	requireConverged(t, nodes, []ClientState{{Client: 1, Message: 5}})

	nodes[1].Stop()
	require.ErrorIs(t, nodes[1].Start(context.Background()), ErrStopped)
	nodes[0].PublishNext()
	require.Never(t, func() bool {
		return nodes[1].CurrentState().Message != 0 || len(nodes[1].States()) != 1
	}, 300*time.Millisecond, 10*time.Millisecond)
}

func TestClientStartTwice(t *testing.T) {
	nodes := startTestNodes(t, 1)
	require.ErrorIs(t, nodes[0].Start(context.Background()), ErrStarted)
	require.Equal(t, ClientState{Client: 1}, nodes[0].CurrentState())
	nodes[0].Publish(7)
	require.Equal(t, ClientState{Client: 1, Message: 7}, nodes[0].CurrentState())
}

func TestClientPublishForeignState(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	logger := zap.New(zapcore.NewTee(core, zaptest.NewLogger(t).Core()))
	nodes := startTestNodes(t, 1, WithLogger(logger))
	require.True(t, nodes[0].PublishState(ClientState{Client: 99, Message: 1}))
	require.Equal(t, 1, logs.FilterMessage("publishing state of another client").Len())
	require.True(t, nodes[0].PublishState(ClientState{Client: 1, Message: 1}))
	require.Equal(t, 1, logs.FilterMessage("publishing state of another client").Len())
}

func TestClientRandomID(t *testing.T) {
	mesh, err := mocknet.FullMeshConnected(1)
	require.NoError(t, err)
	t.Cleanup(func() { mesh.Close() })
	syncer, err := chronosync.New(chronosync.DefaultConfig())
	require.NoError(t, err)
	c, err := New(mesh.Hosts()[0], nil, syncer, DefaultConfig())
	require.NoError(t, err)
	require.NotZero(t, c.ClientID())

	cfg := DefaultConfig()
	cfg.Prefix = ""
	_, err = New(mesh.Hosts()[0], nil, syncer, cfg)
	require.ErrorContains(t, err, "prefix")
}

func TestConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	require.Equal(t, "/chronosync/default", cfg.Topic())
	require.Equal(t, "/chronosync/1.0.0/default", cfg.Protocol())

	cfg.RequestLifetime = 0
	cfg.RequestRate = 0
	err := cfg.Validate()
	require.ErrorContains(t, err, "request lifetime")
	require.ErrorContains(t, err, "rate limit")
}
