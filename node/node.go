// Package node contains the main executable for a chronosync node.
package node

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spacemeshos/go-chronosync/chronosync"
	"github.com/spacemeshos/go-chronosync/cmd"
	"github.com/spacemeshos/go-chronosync/config"
	"github.com/spacemeshos/go-chronosync/config/presets"
	"github.com/spacemeshos/go-chronosync/hash"
	"github.com/spacemeshos/go-chronosync/log"
	"github.com/spacemeshos/go-chronosync/metrics"
	"github.com/spacemeshos/go-chronosync/p2p"
	"github.com/spacemeshos/go-chronosync/pubsync"
	"github.com/spacemeshos/go-chronosync/pubsync/statestore"
)

// Logger names.
const (
	P2PLogger     = "p2p"
	SyncLogger    = "sync"
	ClientLogger  = "pubsync"
	StoreLogger   = "store"
	MetricsLogger = "metrics"
)

// GetCommand returns the root command of the node executable.
func GetCommand() *cobra.Command {
	conf := config.DefaultConfig()
	var configPath *string
	c := &cobra.Command{
		Use:   "chronosync",
		Short: "chronosync node",
	}

	nodeCmd := &cobra.Command{
		Use:   "node",
		Short: "start node",
		RunE: func(c *cobra.Command, args []string) error {
			if err := configure(&conf, *configPath, os.Args[1:]); err != nil {
				return err
			}
			logger, err := log.New(conf.Log)
			if err != nil {
				return fmt.Errorf("create logger: %w", err)
			}
			defer logger.Sync()
			app := New(&conf, logger)

			// os.Interrupt for all systems, especially windows, syscall.SIGTERM is mainly for docker.
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			if err := app.Lock(); err != nil {
				return fmt.Errorf("getting exclusive file lock: %w", err)
			}
			defer app.Unlock()

			// Don't print usage on error from this point forward
			c.SilenceUsage = true

			if err := app.Initialize(ctx); err != nil {
				app.Cleanup()
				return fmt.Errorf("initializing app: %w", err)
			}
			// This blocks until the context is finished or until an error is produced
			err = app.Start(ctx)
			app.Cleanup()
			return err
		},
	}
	configPath = cmd.AddFlags(nodeCmd.PersistentFlags(), &conf)
	c.AddCommand(nodeCmd)

	// versionCmd returns the current version of the node.
	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Show version info",
		Run: func(c *cobra.Command, args []string) {
			fmt.Fprint(c.OutOrStdout(), cmd.Version)
			if cmd.Commit != "" {
				fmt.Fprintf(c.OutOrStdout(), "+%s", cmd.Commit)
			}
			fmt.Fprintln(c.OutOrStdout())
		},
	}
	c.AddCommand(versionCmd)
	return c
}

// configure loads the preset and the config file into conf and applies the
// command line arguments on top of them.
func configure(conf *config.Config, configPath string, args []string) error {
	preset := conf.Preset // might be set via CLI flag
	if preset == "" && configPath != "" {
		var err error
		if preset, err = config.PresetName(configPath); err != nil {
			return err
		}
	}
	loaded := config.DefaultConfig()
	if preset != "" {
		p, err := presets.Get(preset)
		if err != nil {
			return err
		}
		loaded = p
	}
	if configPath != "" {
		if err := config.Load(configPath, &loaded); err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
	}
	// a fresh flag set, so that list flags replace the loaded values instead of
	// appending to them
	flagSet := pflag.NewFlagSet("node", pflag.ContinueOnError)
	flagSet.ParseErrorsWhitelist.UnknownFlags = true
	cmd.AddFlags(flagSet, &loaded)
	if err := flagSet.Parse(args); err != nil {
		return fmt.Errorf("parsing flags: %w", err)
	}
	if err := loaded.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	*conf = loaded
	return nil
}

// App is a running chronosync node.
type App struct {
	Config   *config.Config
	log      *log.Logger
	fileLock *flock.Flock

	host    host.Host
	ps      *pubsub.PubSub
	cancel  context.CancelFunc
	syncer  *chronosync.Synchronizer
	client  *pubsync.Client
	store   *statestore.Store
	metrics *metrics.Server

	started chan struct{}
}

// New creates an App with the given config.
func New(conf *config.Config, logger *log.Logger) *App {
	return &App{
		Config:  conf,
		log:     logger,
		started: make(chan struct{}),
	}
}

// Lock locks the data directory so that only one node uses it.
func (app *App) Lock() error {
	if err := os.MkdirAll(app.Config.DataDir, 0o700); err != nil {
		return fmt.Errorf("ensure data dir exists: %w", err)
	}
	fl := flock.New(app.Config.LockPath())
	locked, err := fl.TryLock()
	if err != nil {
		return fmt.Errorf("flock %s: %w", fl.Path(), err)
	} else if !locked {
		return fmt.Errorf("only one node should be running with the data dir (locking file %s)", fl.Path())
	}
	app.fileLock = fl
	return nil
}

// Unlock unlocks the app. It is a no-op if the app is not locked.
func (app *App) Unlock() {
	if app.fileLock == nil {
		return
	}
	if err := app.fileLock.Unlock(); err != nil {
		app.log.Error("failed to unlock file", zap.String("path", app.fileLock.Path()), zap.Error(err))
	}
}

// Initialize sets up the components of the node and restores the states saved
// by the previous run. Nothing is sent to the network until Start.
func (app *App) Initialize(ctx context.Context) error {
	key, err := p2p.LoadOrCreateIdentity(app.Config.DataDir)
	if err != nil {
		return err
	}
	if app.store, err = statestore.Open(app.log.Module(StoreLogger), app.Config.StatesPath()); err != nil {
		return err
	}
	if app.host, err = p2p.NewHost(app.log.Module(P2PLogger), app.Config.P2P, key); err != nil {
		return err
	}
	ctx, app.cancel = context.WithCancel(ctx)
	if app.ps, err = p2p.NewPubSub(ctx, app.host, app.Config.P2P.PubSub); err != nil {
		return err
	}
	app.syncer, err = chronosync.New(app.Config.Sync,
		chronosync.WithLogger(app.log.Module(SyncLogger)),
		chronosync.WithMetrics(app.Config.PubSync.Prefix),
	)
	if err != nil {
		return err
	}

	restored, err := app.store.Load()
	if err != nil {
		return err
	}
	for _, s := range restored {
		app.syncer.UpdateState(s)
	}

	pcfg := app.Config.PubSync
	if pcfg.ClientID == 0 {
		pcfg.ClientID = clientID(app.host)
	}
	app.client, err = pubsync.New(app.host, app.ps, app.syncer, pcfg,
		pubsync.WithLogger(app.log.Module(ClientLogger)),
	)
	if err != nil {
		return err
	}
	app.client.Subscribe(func(states []pubsync.ClientState) {
		if _, err := app.store.Save(states); err != nil {
			app.log.Error("failed to save states", zap.Error(err))
		}
	})
	app.log.Info("initialized node",
		zap.Stringer("peer", app.host.ID()),
		zap.Strings("addresses", p2p.Addresses(app.host)),
		zap.String("client", fmt.Sprintf("%016x", app.client.ClientID())),
		zap.Int("restored", len(restored)),
	)
	return nil
}

// clientID derives a stable client id from the node identity.
func clientID(h host.Host) uint64 {
	sum := hash.Sum([]byte(h.ID()))
	return binary.BigEndian.Uint64(sum[:8])
}

// Start joins the sync group and blocks until the context is canceled or one of
// the node services fails.
func (app *App) Start(ctx context.Context) error {
	if err := app.client.Start(ctx); err != nil {
		return err
	}
	if app.Config.Metrics.Listen != "" {
		srv, err := metrics.NewServer(app.log.Module(MetricsLogger), app.Config.Metrics.Listen)
		if err != nil {
			return err
		}
		app.metrics = srv
	}
	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		if err := p2p.Bootstrap(ctx, app.log.Module(P2PLogger), app.host, app.Config.P2P); err != nil {
			// the node is still reachable by the peers that know it
			app.log.Warn("bootstrap failed", zap.Error(err))
		}
		return nil
	})
	if app.metrics != nil {
		eg.Go(func() error {
			return app.metrics.Run(ctx)
		})
	}
	if app.Config.Metrics.PushURL != "" {
		eg.Go(func() error {
			metrics.PushMetrics(ctx, app.log.Module(MetricsLogger), app.Config.Metrics.PushURL,
				app.Config.Metrics.PushPeriod, app.host.ID().String(), app.Config.PubSync.Prefix)
			return nil
		})
	}
	if app.Config.PublishInterval > 0 {
		eg.Go(func() error {
			app.publish(ctx)
			return nil
		})
	}
	close(app.started)
	<-ctx.Done()
	err := eg.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (app *App) publish(ctx context.Context) {
	ticker := time.NewTicker(app.Config.PublishInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s := app.client.PublishNext()
			app.log.Debug("published", zap.Object("state", s))
		}
	}
}

// Started is closed once the node joined the sync group.
func (app *App) Started() <-chan struct{} {
	return app.started
}

// Host returns the libp2p host of the node.
func (app *App) Host() host.Host {
	return app.host
}

// Client returns the sync client of the node.
func (app *App) Client() *pubsync.Client {
	return app.client
}

// MetricsAddr returns the address of the metrics server, or an empty string
// if it's disabled.
func (app *App) MetricsAddr() string {
	if app.metrics == nil {
		return ""
	}
	return app.metrics.Addr().String()
}

// Cleanup stops the node components. It's safe to call after a failed Initialize.
func (app *App) Cleanup() {
	if app.client != nil {
		app.client.Stop()
	}
	if app.syncer != nil {
		app.syncer.Stop()
	}
	if app.cancel != nil {
		app.cancel()
	}
	if app.host != nil {
		if err := app.host.Close(); err != nil {
			app.log.Warn("failed to close host", zap.Error(err))
		}
	}
	if app.store != nil {
		if err := app.store.Close(); err != nil {
			app.log.Warn("failed to close state store", zap.Error(err))
		}
	}
	app.log.Info("node stopped")
}
