package presets

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spacemeshos/go-chronosync/config"
)

func init() {
	register("local", local())
}

// local runs a node on the loopback interface that publishes on its own,
// useful to try out several nodes on one machine.
func local() config.Config {
	conf := config.DefaultConfig()
	conf.DataDir = filepath.Join(os.TempDir(), "chronosync")
	conf.PublishInterval = 5 * time.Second

	conf.Log.Modules = map[string]string{"sync": "debug"}

	conf.P2P.Network = "local"
	conf.P2P.Listen = []string{"/ip4/127.0.0.1/tcp/0"}
	conf.P2P.LowPeers = 5
	conf.P2P.HighPeers = 10
	conf.P2P.LogLevel = "warn"

	conf.Sync.ResponseDelay = 100 * time.Millisecond

	conf.PubSync.Prefix = "local"
	conf.PubSync.RequestLifetime = 2 * time.Second
	conf.PubSync.StreamTimeout = 2 * time.Second

	conf.Metrics.Listen = "127.0.0.1:0"
	return conf
}
