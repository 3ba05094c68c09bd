package pubsync

import (
	"errors"
	"fmt"
	"time"
)

// Config for the pubsync client.
type Config struct {
	// Prefix names the sync group. Clients sync with the clients of the same group only.
	Prefix string `mapstructure:"prefix"`
	// ClientID identifies the published states. A random one is used if zero.
	ClientID uint64 `mapstructure:"client-id"`
	// RequestLifetime is how long a sync request is waiting for an answer before
	// it is sent again. It also bounds how long the requests of peers are kept.
	RequestLifetime time.Duration `mapstructure:"request-lifetime"`
	StreamTimeout   time.Duration `mapstructure:"stream-timeout"`
	MaxMessageSize  int           `mapstructure:"max-message-size"`
	// RequestRate and RequestBurst limit the sync requests accepted from the peers.
	RequestRate  float64 `mapstructure:"request-rate"`
	RequestBurst int     `mapstructure:"request-burst"`
}

// DefaultConfig returns the default pubsync configuration.
func DefaultConfig() Config {
	return Config{
		Prefix:          "default",
		RequestLifetime: 10 * time.Second,
		StreamTimeout:   10 * time.Second,
		MaxMessageSize:  1 << 20,
		RequestRate:     100,
		RequestBurst:    200,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	var errs []error
	if c.Prefix == "" {
		errs = append(errs, errors.New("prefix must not be empty"))
	}
	if c.RequestLifetime <= 0 {
		errs = append(errs, fmt.Errorf("request lifetime must be positive: %v", c.RequestLifetime))
	}
	if c.StreamTimeout <= 0 {
		errs = append(errs, fmt.Errorf("stream timeout must be positive: %v", c.StreamTimeout))
	}
	if c.MaxMessageSize <= 0 {
		errs = append(errs, fmt.Errorf("max message size must be positive: %d", c.MaxMessageSize))
	}
	if c.RequestRate <= 0 || c.RequestBurst <= 0 {
		errs = append(errs, fmt.Errorf("invalid request rate limit: %v/s burst %d", c.RequestRate, c.RequestBurst))
	}
	return errors.Join(errs...)
}

// Topic returns the gossip topic the sync requests of the group are published on.
func (c Config) Topic() string {
	return "/chronosync/" + c.Prefix
}

// Protocol returns the stream protocol the sync responses of the group are sent over.
func (c Config) Protocol() string {
	return "/chronosync/1.0.0/" + c.Prefix
}
