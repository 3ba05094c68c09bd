package p2p

import (
	"context"
	"fmt"

	pubsub "github.com/libp2p/go-libp2p-pubsub"
	pb "github.com/libp2p/go-libp2p-pubsub/pb"
	"github.com/libp2p/go-libp2p/core/host"

	"github.com/spacemeshos/go-chronosync/hash"
)

// PubSubConfig for the gossip router.
type PubSubConfig struct {
	Flood          bool `mapstructure:"flood"`
	MaxMessageSize int  `mapstructure:"max-message-size"`
	QueueSize      int  `mapstructure:"queue-size"`
}

// DefaultPubSubConfig for the gossip router.
func DefaultPubSubConfig() PubSubConfig {
	return PubSubConfig{
		Flood:          true,
		MaxMessageSize: 1 << 20,
		QueueSize:      1024,
	}
}

// NewPubSub creates the gossipsub router. Messages are signed by their author, as the
// answers to the sync requests are sent to the author directly.
func NewPubSub(ctx context.Context, h host.Host, cfg PubSubConfig) (*pubsub.PubSub, error) {
	opts := []pubsub.Option{
		pubsub.WithFloodPublish(cfg.Flood),
		pubsub.WithMessageIdFn(msgID),
		pubsub.WithMessageSignaturePolicy(pubsub.StrictSign),
	}
	if cfg.QueueSize != 0 {
		opts = append(opts,
			pubsub.WithPeerOutboundQueueSize(cfg.QueueSize),
			pubsub.WithValidateQueueSize(cfg.QueueSize))
	}
	if cfg.MaxMessageSize != 0 {
		opts = append(opts, pubsub.WithMaxMessageSize(cfg.MaxMessageSize))
	}
	ps, err := pubsub.NewGossipSub(ctx, h, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize gossipsub instance: %w", err)
	}
	return ps, nil
}

// msgID identifies messages by topic, author, sequence number and content.
// A request sent again carries a new sequence number, so it isn't dropped as seen.
func msgID(msg *pb.Message) string {
	hasher := hash.New()
	if msg.Topic != nil {
		hasher.Write([]byte(*msg.Topic))
	}
	hasher.Write(msg.From)
	hasher.Write(msg.Seqno)
	hasher.Write(msg.Data)
	return string(hasher.Sum(nil))
}
