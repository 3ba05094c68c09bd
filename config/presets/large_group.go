package presets

import (
	"github.com/spacemeshos/go-chronosync/config"
	"github.com/spacemeshos/go-chronosync/hash"
)

func init() {
	register("large-group", largeGroup())
}

// largeGroup keeps more digests around so that peers falling behind
// in a busy group still get only the difference.
func largeGroup() config.Config {
	conf := config.DefaultConfig()
	conf.Sync.HistorySize = 500
	conf.Sync.DigestAlgorithm = hash.BLAKE3
	conf.P2P.LowPeers = 40
	conf.P2P.HighPeers = 80
	conf.PubSync.RequestRate = 1000
	conf.PubSync.RequestBurst = 2000
	return conf
}
