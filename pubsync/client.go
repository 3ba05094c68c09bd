// Package pubsync synchronizes the messages published by a group of clients over
// libp2p, using the chronosync protocol.
//
// Every client publishes a sequence of messages numbered from 1. The synchronized
// state of a client is the number of its latest message, so that subscribers learn
// which messages of which clients they have yet to fetch.
//
// Sync requests carrying the digest of the local state are published on a gossip
// topic shared by the group. A client that holds newer states answers a request over
// a direct stream to the requester.
package pubsync

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"
	"github.com/libp2p/go-msgio"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/spacemeshos/go-chronosync/chronosync"
	"github.com/spacemeshos/go-chronosync/codec"
	"github.com/spacemeshos/go-chronosync/metrics"
)

var (
	// ErrStarted is returned when starting a client that was already started.
	ErrStarted = errors.New("client already started")
	// ErrStopped is returned when starting a client that was stopped.
	ErrStopped = errors.New("client stopped")
)

// Opt configures a Client.
type Opt func(c *Client)

// WithLogger specifies the logger for the client.
func WithLogger(logger *zap.Logger) Opt {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithClock specifies the clock for request expiration.
func WithClock(clock clockwork.Clock) Opt {
	return func(c *Client) {
		c.clock = clock
	}
}

type outstanding struct {
	digest chronosync.Digest
	at     time.Time
}

// Client publishes the states of one client and tracks the states of all the clients
// of its sync group.
type Client struct {
	logger   *zap.Logger
	clock    clockwork.Clock
	cfg      Config
	id       uint64
	host     host.Host
	ps       *pubsub.PubSub
	syncer   *chronosync.Synchronizer
	limiter  *rate.Limiter
	protocol protocol.ID

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	stopped bool
	topic   *pubsub.Topic
	sub     *pubsub.Subscription
	// waiting tracks the peers that sent a request for a digest, so that all of
	// them get the single response the synchronizer produces for the digest.
	waiting map[chronosync.Digest]map[peer.ID]time.Time
	last    outstanding
	retry   clockwork.Timer
	eg      errgroup.Group
}

// New creates a client of the sync group described by the config. The client takes
// over the synchronizer: it must not be used by another transport.
func New(
	h host.Host,
	ps *pubsub.PubSub,
	syncer *chronosync.Synchronizer,
	cfg Config,
	opts ...Opt,
) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pubsync config: %w", err)
	}
	c := &Client{
		logger:   zap.NewNop(),
		clock:    clockwork.NewRealClock(),
		cfg:      cfg,
		id:       cfg.ClientID,
		host:     h,
		ps:       ps,
		syncer:   syncer,
		limiter:  rate.NewLimiter(rate.Limit(cfg.RequestRate), cfg.RequestBurst),
		protocol: protocol.ID(cfg.Protocol()),
		waiting:  make(map[chronosync.Digest]map[peer.ID]time.Time),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.id == 0 {
		id, err := randomClientID()
		if err != nil {
			return nil, err
		}
		c.id = id
	}
	c.logger = c.logger.With(zap.String("prefix", cfg.Prefix), zap.String("client", fmt.Sprintf("%016x", c.id)))
	return c, nil
}

func randomClientID() (uint64, error) {
	var b [8]byte
	for {
		if _, err := rand.Read(b[:]); err != nil {
			return 0, fmt.Errorf("generate client id: %w", err)
		}
		if id := binary.BigEndian.Uint64(b[:]); id != 0 {
			return id, nil
		}
	}
}

// ClientID returns the id of the states published by this client.
func (c *Client) ClientID() uint64 {
	return c.id
}

// CurrentState returns the latest published state of this client.
// Message is 0 if nothing was published yet.
func (c *Client) CurrentState() ClientState {
	for _, s := range ClientStates(c.syncer.CurrentStates()) {
		if s.Client == c.id {
			return s
		}
	}
	return ClientState{Client: c.id}
}

// States returns the latest known states of all the clients of the group.
func (c *Client) States() []ClientState {
	return ClientStates(c.syncer.CurrentStates())
}

// Publish publishes the message number of this client. It returns false if the
// message isn't newer than the latest published one.
func (c *Client) Publish(message uint64) bool {
	return c.PublishState(ClientState{Client: c.id, Message: message})
}

// PublishNext publishes the message following the latest published one.
func (c *Client) PublishNext() ClientState {
	s := c.CurrentState()
	s.Message++
	c.PublishState(s)
	return s
}

// PublishState publishes a state. Publishing the state of another client is allowed,
// e.g. to restore previously synchronized states, but is most likely a mistake
// otherwise.
func (c *Client) PublishState(s ClientState) bool {
	if s.Client != c.id {
		c.logger.Warn("publishing state of another client", zap.Object("state", s))
	}
	return c.syncer.UpdateState(s)
}

// Subscribe registers a function to be called with the new states of the group.
// It's called from the goroutine that merged the states and must not block.
func (c *Client) Subscribe(fn func([]ClientState)) {
	c.syncer.Observe(chronosync.ObserverFunc(func(_ chronosync.Digest, ss []chronosync.State) {
		fn(ClientStates(ss))
	}))
}

// Start joins the sync group and starts sending sync requests.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	switch {
	case c.stopped:
		c.mu.Unlock()
		return ErrStopped
	case c.cancel != nil:
		c.mu.Unlock()
		return ErrStarted
	}
	topicName := c.cfg.Topic()
	if err := c.ps.RegisterTopicValidator(topicName, c.validate); err != nil {
		c.mu.Unlock()
		return fmt.Errorf("register validator for %s: %w", topicName, err)
	}
	topic, err := c.ps.Join(topicName)
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("join topic %s: %w", topicName, err)
	}
	sub, err := topic.Subscribe()
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("subscribe to topic %s: %w", topicName, err)
	}
	c.topic = topic
	c.sub = sub
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.host.SetStreamHandler(c.protocol, c.handleStream)
	ctx = c.ctx
	c.eg.Go(func() error {
		c.receive(ctx, sub)
		return nil
	})
	c.mu.Unlock()

	c.logger.Info("started sync client",
		zap.String("topic", topicName),
		zap.String("protocol", string(c.protocol)),
		zap.Stringer("digest", c.syncer.CurrentDigest()))
	c.syncer.StartRequesting(chronosync.RequestActionFunc(c.request))
	return nil
}

// Stop leaves the sync group and waits for the background work to finish.
// The synchronizer timers are stopped as well.
func (c *Client) Stop() {
	c.mu.Lock()
	if c.stopped || c.cancel == nil {
		c.stopped = true
		c.mu.Unlock()
		return
	}
	c.stopped = true
	c.cancel()
	if c.retry != nil {
		c.retry.Stop()
	}
	sub, topic := c.sub, c.topic
	c.mu.Unlock()

	c.host.RemoveStreamHandler(c.protocol)
	c.syncer.Stop()
	sub.Cancel()
	c.eg.Wait()
	if err := topic.Close(); err != nil {
		c.logger.Debug("failed to close topic", zap.Error(err))
	}
	if err := c.ps.UnregisterTopicValidator(c.cfg.Topic()); err != nil {
		c.logger.Debug("failed to unregister validator", zap.Error(err))
	}
	c.logger.Info("stopped sync client")
}

// request publishes a sync request for the local digest. It's the outgoing
// action of the synchronizer.
func (c *Client) request(digest chronosync.Digest) {
	data := codec.MustEncode(&SyncRequest{Digest: digest.Bytes()})
	c.mu.Lock()
	if c.stopped || c.cancel == nil {
		c.mu.Unlock()
		return
	}
	if c.retry != nil {
		c.retry.Stop()
	}
	sent := outstanding{digest: digest, at: c.clock.Now()}
	c.last = sent
	c.retry = c.clock.AfterFunc(c.cfg.RequestLifetime, func() { c.expired(sent) })
	ctx, topic := c.ctx, c.topic
	c.mu.Unlock()

	if err := topic.Publish(ctx, data); err != nil {
		c.logger.Warn("failed to publish sync request", zap.Stringer("digest", digest), zap.Error(err))
		return
	}
	requestsOut.Inc()
}

// expired sends the sync request again if nothing was sent since the expired one.
func (c *Client) expired(sent outstanding) {
	c.mu.Lock()
	current := c.last == sent && !c.stopped
	c.mu.Unlock()
	if current {
		c.logger.Debug("sync request expired", zap.Stringer("digest", sent.digest))
		c.syncer.SendSyncRequest()
	}
}

func (c *Client) validate(_ context.Context, from peer.ID, msg *pubsub.Message) pubsub.ValidationResult {
	var req SyncRequest
	if err := codec.Decode(msg.Data, &req); err != nil || len(req.Digest) == 0 {
		c.logger.Debug("malformed sync request", zap.Stringer("peer", from), zap.Error(err))
		droppedMalformed.Inc()
		return pubsub.ValidationReject
	}
	if from != c.host.ID() && !c.limiter.Allow() {
		droppedRateLimited.Inc()
		return pubsub.ValidationIgnore
	}
	msg.ValidatorData = &req
	return pubsub.ValidationAccept
}

func (c *Client) receive(ctx context.Context, sub *pubsub.Subscription) {
	for {
		msg, err := sub.Next(ctx)
		if err != nil {
			c.logger.Debug("sync request subscription closed", zap.Error(err))
			return
		}
		from := msg.GetFrom()
		if from == c.host.ID() {
			continue
		}
		req, ok := msg.ValidatorData.(*SyncRequest)
		if !ok {
			continue
		}
		requestsIn.Inc()
		c.handleRequest(from, chronosync.NewDigest(req.Digest))
	}
}

func (c *Client) handleRequest(from peer.ID, digest chronosync.Digest) {
	now := c.clock.Now()
	c.mu.Lock()
	c.pruneWaiting(now)
	peers, ok := c.waiting[digest]
	if !ok {
		peers = make(map[peer.ID]time.Time)
		c.waiting[digest] = peers
	}
	peers[from] = now
	c.mu.Unlock()

	c.logger.Debug("received sync request", zap.Stringer("peer", from), zap.Stringer("digest", digest))
	c.syncer.OnReceivedDigest(digest, chronosync.PendingRequestFunc(func(current chronosync.Digest, ss []chronosync.State) {
		c.respond(digest, current, ss)
	}))
}

// pruneWaiting drops the peers whose requests have outlived their lifetime.
func (c *Client) pruneWaiting(now time.Time) {
	for d, peers := range c.waiting {
		for p, at := range peers {
			if now.Sub(at) > c.cfg.RequestLifetime {
				delete(peers, p)
			}
		}
		if len(peers) == 0 {
			delete(c.waiting, d)
		}
	}
}

func (c *Client) respond(requested, digest chronosync.Digest, ss []chronosync.State) {
	data, err := codec.Encode(&SyncResponse{
		Requested: requested.Bytes(),
		Digest:    digest.Bytes(),
		States:    ClientStates(ss),
	})
	if err != nil {
		c.logger.Error("failed to encode sync response", zap.Error(err))
		return
	}
	now := c.clock.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	peers := c.waiting[requested]
	delete(c.waiting, requested)
	if c.stopped || c.cancel == nil {
		return
	}
	ctx := c.ctx
	for p, at := range peers {
		if now.Sub(at) > c.cfg.RequestLifetime {
			continue
		}
		c.eg.Go(func() error {
			c.send(ctx, p, data)
			return nil
		})
	}
}

func (c *Client) send(ctx context.Context, p peer.ID, data []byte) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.StreamTimeout)
	defer cancel()
	stream, err := c.host.NewStream(ctx, p, c.protocol)
	if err != nil {
		c.logger.Debug("failed to open stream", zap.Stringer("peer", p), zap.Error(err))
		droppedSendFailed.Inc()
		return
	}
	defer stream.Close()
	if err := stream.SetWriteDeadline(time.Now().Add(c.cfg.StreamTimeout)); err != nil {
		c.logger.Debug("failed to set write deadline", zap.Stringer("peer", p), zap.Error(err))
	}
	if err := msgio.NewVarintWriter(stream).WriteMsg(data); err != nil {
		c.logger.Debug("failed to send sync response", zap.Stringer("peer", p), zap.Error(err))
		droppedSendFailed.Inc()
		stream.Reset()
		return
	}
	responsesOut.Inc()
}

func (c *Client) handleStream(stream network.Stream) {
	defer stream.Close()
	from := stream.Conn().RemotePeer()
	if err := stream.SetReadDeadline(time.Now().Add(c.cfg.StreamTimeout)); err != nil {
		c.logger.Debug("failed to set read deadline", zap.Stringer("peer", from), zap.Error(err))
	}
	data, err := msgio.NewVarintReaderSize(stream, c.cfg.MaxMessageSize).ReadMsg()
	if err != nil {
		c.logger.Debug("failed to read sync response", zap.Stringer("peer", from), zap.Error(err))
		stream.Reset()
		return
	}
	var resp SyncResponse
	if err := codec.Decode(data, &resp); err != nil {
		c.logger.Debug("malformed sync response", zap.Stringer("peer", from), zap.Error(err))
		droppedMalformed.Inc()
		stream.Reset()
		return
	}
	responsesIn.Inc()
	c.handleResponse(from, &resp)
}

func (c *Client) handleResponse(from peer.ID, resp *SyncResponse) {
	requested := chronosync.NewDigest(resp.Requested)
	digest := chronosync.NewDigest(resp.Digest)
	c.mu.Lock()
	if c.last.digest == requested && !c.last.at.IsZero() {
		metrics.ReportRoundTrip(c.cfg.Prefix, c.clock.Since(c.last.at))
	}
	c.mu.Unlock()

	c.logger.Debug("received sync response",
		zap.Stringer("peer", from),
		zap.Stringer("requested", requested),
		zap.Stringer("digest", digest),
		zap.Int("states", len(resp.States)))
	err := c.syncer.OnReceivedState(digest, States(resp.States))
	switch {
	case errors.Is(err, chronosync.ErrSyncInconsistency):
		// other updates were merged meanwhile, the next request sorts it out
		c.logger.Warn("sync response did not lead to the announced digest",
			zap.Stringer("peer", from),
			zap.Error(err))
	case err != nil:
		c.logger.Error("failed to merge sync response", zap.Stringer("peer", from), zap.Error(err))
	}
}
