// Package cmd holds the build information and the command line flags shared by
// the executables.
package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"

	"github.com/spacemeshos/go-chronosync/config"
	"github.com/spacemeshos/go-chronosync/config/presets"
	"github.com/spacemeshos/go-chronosync/hash"
)

var (
	// Version is the app's semantic version. Designed to be overwritten by make.
	Version string

	// Branch is the git branch used to build the App. Designed to be overwritten by make.
	Branch string

	// Commit is the git commit used to build the app. Designed to be overwritten by make.
	Commit string
)

// AddFlags adds the flags overriding the config values to the flag set.
// It returns the pointer to the config file path set by the --config flag.
func AddFlags(flagSet *pflag.FlagSet, cfg *config.Config) (configPath *string) {
	configPath = flagSet.StringP("config", "c", "", "load configuration from file")
	flagSet.StringVarP(&cfg.Preset, "preset", "p", cfg.Preset,
		fmt.Sprintf("preset overwrites default values of the config. options %+s", presets.Options()))
	flagSet.StringVarP(&cfg.DataDir, "data-dir", "d", cfg.DataDir, "data directory of the node")
	flagSet.DurationVar(&cfg.PublishInterval, "publish-interval", cfg.PublishInterval,
		"publish the next message periodically, disabled if 0")

	/** ======================== Logging Flags ========================== **/
	flagSet.StringVar(&cfg.Log.Encoder, "log-encoder", cfg.Log.Encoder, "log encoder, console or json")
	flagSet.StringVar(&cfg.Log.Level, "log-level", cfg.Log.Level, "log level of the node")
	flagSet.StringToStringVar(&cfg.Log.Modules, "log-modules", cfg.Log.Modules,
		"log level of a module, e.g. sync=debug,p2p=warn")

	/** ======================== P2P Flags ========================== **/
	flagSet.StringVar(&cfg.P2P.Network, "network", cfg.P2P.Network,
		"network name, nodes with a different name can't connect")
	flagSet.StringSliceVar(&cfg.P2P.Listen, "listen", cfg.P2P.Listen, "multiaddrs to listen on")
	flagSet.StringSliceVar(&cfg.P2P.Bootnodes, "bootnodes", cfg.P2P.Bootnodes,
		"multiaddrs of the nodes to connect to on start")
	flagSet.IntVar(&cfg.P2P.LowPeers, "low-peers", cfg.P2P.LowPeers, "low watermark for the number of connections")
	flagSet.IntVar(&cfg.P2P.HighPeers, "high-peers", cfg.P2P.HighPeers, "high watermark for the number of connections")
	flagSet.BoolVar(&cfg.P2P.PubSub.Flood, "flood", cfg.P2P.PubSub.Flood,
		"flood published sync requests to all peers")

	/** ======================== Sync Flags ========================== **/
	flagSet.IntVar(&cfg.Sync.HistorySize, "history-size", cfg.Sync.HistorySize,
		"number of digests remembered to answer stale requests with the difference")
	flagSet.StringVar(&cfg.Sync.DigestAlgorithm, "digest-algorithm", cfg.Sync.DigestAlgorithm,
		fmt.Sprintf("digest algorithm, one of %s", strings.Join(hash.Algorithms(), ", ")))
	flagSet.DurationVar(&cfg.Sync.ResponseDelay, "response-delay", cfg.Sync.ResponseDelay,
		"delay before answering a stale digest")

	/** ======================== PubSync Flags ========================== **/
	flagSet.StringVar(&cfg.PubSync.Prefix, "prefix", cfg.PubSync.Prefix, "name of the sync group")
	flagSet.Uint64Var(&cfg.PubSync.ClientID, "client-id", cfg.PubSync.ClientID,
		"id of the published states, derived from the node identity if 0")
	flagSet.DurationVar(&cfg.PubSync.RequestLifetime, "request-lifetime", cfg.PubSync.RequestLifetime,
		"time to wait for a sync response before repeating the request")

	/** ======================== Metrics Flags ========================== **/
	flagSet.StringVar(&cfg.Metrics.Listen, "metrics", cfg.Metrics.Listen, "address of the metrics server, disabled if empty")
	flagSet.StringVar(&cfg.Metrics.PushURL, "metrics-push", cfg.Metrics.PushURL, "push metrics to url")
	flagSet.DurationVar(&cfg.Metrics.PushPeriod, "metrics-push-period", cfg.Metrics.PushPeriod, "push period")
	return configPath
}
