// Package config aggregates the configuration of a synchronizing node.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/spacemeshos/go-chronosync/chronosync"
	"github.com/spacemeshos/go-chronosync/log"
	"github.com/spacemeshos/go-chronosync/p2p"
	"github.com/spacemeshos/go-chronosync/pubsync"
)

const (
	// LockFile is the name of the file locking the data directory.
	LockFile = "LOCK"
	// StatesDir is the name of the directory with the published-so-far states.
	StatesDir = "states"
)

var defaultDataDir = filepath.Join(os.Getenv("HOME"), ".chronosync")

// Config is the node configuration.
type Config struct {
	// Preset is applied before the config file.
	Preset  string `mapstructure:"preset"`
	DataDir string `mapstructure:"data-dir"`
	// PublishInterval publishes the next message of the node periodically, disabled when zero.
	PublishInterval time.Duration `mapstructure:"publish-interval"`

	Log     log.Config        `mapstructure:"logging"`
	P2P     p2p.Config        `mapstructure:"p2p"`
	Sync    chronosync.Config `mapstructure:"sync"`
	PubSync pubsync.Config    `mapstructure:"pubsync"`
	Metrics MetricsConfig     `mapstructure:"metrics"`
}

// MetricsConfig configures how the collected metrics are exposed.
type MetricsConfig struct {
	// Listen is the address of the /metrics server, disabled when empty.
	Listen     string        `mapstructure:"listen"`
	PushURL    string        `mapstructure:"push-url"`
	PushPeriod time.Duration `mapstructure:"push-period"`
}

// DefaultConfig returns the default node configuration.
func DefaultConfig() Config {
	return Config{
		DataDir: defaultDataDir,
		Log:     log.DefaultConfig(),
		P2P:     p2p.DefaultConfig(),
		Sync:    chronosync.DefaultConfig(),
		PubSync: pubsync.DefaultConfig(),
		Metrics: MetricsConfig{
			PushPeriod: time.Minute,
		},
	}
}

// LockPath returns the path of the data directory lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.DataDir, LockFile)
}

// StatesPath returns the path of the states database.
func (c *Config) StatesPath() string {
	return filepath.Join(c.DataDir, StatesDir)
}

// Validate checks the node level values. Components validate their own sections
// when they are created.
func (c *Config) Validate() error {
	var errs []error
	if c.DataDir == "" {
		errs = append(errs, errors.New("data-dir is empty"))
	}
	if c.PublishInterval < 0 {
		errs = append(errs, fmt.Errorf("publish-interval must not be negative: %v", c.PublishInterval))
	}
	if c.Metrics.PushURL != "" && c.Metrics.PushPeriod <= 0 {
		errs = append(errs, fmt.Errorf("metrics push-period must be positive: %v", c.Metrics.PushPeriod))
	}
	if err := c.PubSync.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Load reads the config file at path into cfg. Values missing in the file keep
// the values already set in cfg. The format follows the file extension
// (toml, yaml or json).
func Load(path string, cfg *Config) error {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	return unmarshal(v, cfg)
}

// PresetName returns the preset named in the config file at path, if any.
func PresetName(path string) (string, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return "", fmt.Errorf("read config file %s: %w", path, err)
	}
	return v.GetString("preset"), nil
}

func unmarshal(v *viper.Viper, cfg *Config) error {
	hook := mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
		mapstructure.TextUnmarshallerHookFunc(),
	)
	opts := []viper.DecoderConfigOption{
		viper.DecodeHook(hook),
		WithZeroFields(),
		WithIgnoreUntagged(),
		WithErrorUnused(),
	}
	if err := v.Unmarshal(cfg, opts...); err != nil {
		return fmt.Errorf("unmarshal config: %w", err)
	}
	return nil
}

func WithZeroFields() viper.DecoderConfigOption {
	return func(cfg *mapstructure.DecoderConfig) {
		cfg.ZeroFields = true
	}
}

func WithIgnoreUntagged() viper.DecoderConfigOption {
	return func(cfg *mapstructure.DecoderConfig) {
		cfg.IgnoreUntaggedFields = true
	}
}

func WithErrorUnused() viper.DecoderConfigOption {
	return func(cfg *mapstructure.DecoderConfig) {
		cfg.ErrorUnused = true
	}
}
