// Package p2p sets up the libp2p host and the gossip router the sync clients run on.
package p2p

import (
	"context"
	"fmt"
	"time"

	lp2plog "github.com/ipfs/go-log/v2"
	"github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"
	"github.com/libp2p/go-libp2p/core/transport"
	"github.com/libp2p/go-libp2p/p2p/host/peerstore/pstoremem"
	"github.com/libp2p/go-libp2p/p2p/muxer/yamux"
	"github.com/libp2p/go-libp2p/p2p/net/connmgr"
	tptu "github.com/libp2p/go-libp2p/p2p/net/upgrader"
	"github.com/libp2p/go-libp2p/p2p/security/noise"
	"github.com/libp2p/go-libp2p/p2p/transport/tcp"
	ma "github.com/multiformats/go-multiaddr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
)

// DefaultConfig config.
func DefaultConfig() Config {
	return Config{
		Listen:             []string{"/ip4/0.0.0.0/tcp/7613"},
		LowPeers:           20,
		HighPeers:          40,
		GracePeersShutdown: 30 * time.Second,
		BootstrapTimeout:   10 * time.Second,
		LogLevel:           "error",
		PubSub:             DefaultPubSubConfig(),
	}
}

// Config for all things related to p2p layer.
type Config struct {
	// Network separates the nodes of different deployments: nodes that don't share
	// the network name fail the handshake.
	Network            string        `mapstructure:"network"`
	Listen             []string      `mapstructure:"listen"`
	Bootnodes          []string      `mapstructure:"bootnodes"`
	LowPeers           int           `mapstructure:"low-peers"`
	HighPeers          int           `mapstructure:"high-peers"`
	GracePeersShutdown time.Duration `mapstructure:"grace-peers-shutdown"`
	BootstrapTimeout   time.Duration `mapstructure:"bootstrap-timeout"`
	// see https://lwn.net/Articles/542629/ for reuseport explanation
	DisableReusePort bool `mapstructure:"disable-reuseport"`
	// LogLevel is the level of the libp2p internal logs.
	LogLevel string       `mapstructure:"log-level"`
	PubSub   PubSubConfig `mapstructure:"pubsub"`
}

// NewHost creates a libp2p host with the given identity, listening on the configured
// addresses. Use Bootstrap to connect it to the network.
func NewHost(logger *zap.Logger, cfg Config, key crypto.PrivKey) (host.Host, error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("parse libp2p log level: %w", err)
	}
	lp2plog.SetPrimaryCore(logger.Core())
	lp2plog.SetAllLoggers(lp2plog.LogLevel(level))

	listen := make([]ma.Multiaddr, 0, len(cfg.Listen))
	for _, addr := range cfg.Listen {
		maddr, err := ma.NewMultiaddr(addr)
		if err != nil {
			return nil, fmt.Errorf("parse listen address %q: %w", addr, err)
		}
		listen = append(listen, maddr)
	}
	cm, err := connmgr.NewConnManager(cfg.LowPeers, cfg.HighPeers, connmgr.WithGracePeriod(cfg.GracePeersShutdown))
	if err != nil {
		return nil, fmt.Errorf("p2p create conn mgr: %w", err)
	}
	ps, err := pstoremem.NewPeerstore()
	if err != nil {
		return nil, fmt.Errorf("can't create peer store: %w", err)
	}
	streamer := *yamux.DefaultTransport
	prologue := []byte(cfg.Network)
	h, err := libp2p.New(
		libp2p.Identity(key),
		libp2p.ListenAddrs(listen...),
		libp2p.UserAgent("go-chronosync"),
		libp2p.Transport(func(upgrader transport.Upgrader, rcmgr network.ResourceManager) (transport.Transport, error) {
			var opts []tcp.Option
			if cfg.DisableReusePort {
				opts = append(opts, tcp.DisableReuseport())
			}
			return tcp.NewTCPTransport(upgrader, rcmgr, opts...)
		}),
		libp2p.Security(noise.ID, func(
			id protocol.ID,
			privkey crypto.PrivKey,
			muxers []tptu.StreamMuxer,
		) (*noise.SessionTransport, error) {
			tp, err := noise.New(id, privkey, muxers)
			if err != nil {
				return nil, err
			}
			return tp.WithSessionOptions(noise.Prologue(prologue))
		}),
		libp2p.Muxer(yamux.ID, &streamer),
		libp2p.ConnectionManager(cm),
		libp2p.Peerstore(ps),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize libp2p host: %w", err)
	}
	logger.Info("local node identity",
		zap.Stringer("identity", h.ID()),
		zap.Strings("addresses", Addresses(h)))
	return h, nil
}

// Addresses returns the full addresses of the host, including its identity, in a
// form accepted as a bootnode address.
func Addresses(h host.Host) []string {
	id, err := ma.NewComponent("p2p", h.ID().String())
	if err != nil {
		panic(fmt.Sprintf("BUG: invalid peer id %s: %v", h.ID(), err))
	}
	addrs := make([]string, 0, len(h.Addrs()))
	for _, addr := range h.Addrs() {
		addrs = append(addrs, addr.Encapsulate(id).String())
	}
	return addrs
}

// Bootstrap connects the host to the configured bootnodes. It fails only if none of
// the bootnodes could be connected to.
func Bootstrap(ctx context.Context, logger *zap.Logger, h host.Host, cfg Config) error {
	if len(cfg.Bootnodes) == 0 {
		return nil
	}
	infos := make([]peer.AddrInfo, 0, len(cfg.Bootnodes))
	for _, bootnode := range cfg.Bootnodes {
		info, err := peer.AddrInfoFromString(bootnode)
		if err != nil {
			return fmt.Errorf("parse into peer.AddrInfo %s: %w", bootnode, err)
		}
		if info.ID == h.ID() {
			continue
		}
		infos = append(infos, *info)
	}
	if len(infos) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, cfg.BootstrapTimeout)
	defer cancel()
	var eg errgroup.Group
	errs := make([]error, len(infos))
	for i, info := range infos {
		eg.Go(func() error {
			errs[i] = h.Connect(ctx, info)
			if errs[i] != nil {
				logger.Warn("failed to connect to bootnode", zap.Stringer("peer", info.ID), zap.Error(errs[i]))
			} else {
				logger.Info("connected to bootnode", zap.Stringer("peer", info.ID))
			}
			return nil
		})
	}
	eg.Wait()
	for _, err := range errs {
		if err == nil {
			return nil
		}
	}
	return fmt.Errorf("no bootnode reachable out of %d: %w", len(infos), errs[0])
}
