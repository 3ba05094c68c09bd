package chronosync

import (
	"time"

	"github.com/spacemeshos/go-chronosync/hash"
)

const (
	// DefaultHistorySize is the default number of digests kept in the history log.
	DefaultHistorySize = 20
	// DefaultResponseDelay is the default delay before answering stale digests.
	// Updated information may come in while waiting.
	DefaultResponseDelay = 500 * time.Millisecond
)

// Config is the synchronizer configuration.
type Config struct {
	// HistorySize trades memory for the ability to answer stale digests with
	// only the difference instead of the whole set.
	HistorySize     int           `mapstructure:"history-size"`
	DigestAlgorithm string        `mapstructure:"digest-algorithm"`
	ResponseDelay   time.Duration `mapstructure:"response-delay"`
}

// DefaultConfig returns the default synchronizer configuration.
func DefaultConfig() Config {
	return Config{
		HistorySize:     DefaultHistorySize,
		DigestAlgorithm: hash.SHA256,
		ResponseDelay:   DefaultResponseDelay,
	}
}
