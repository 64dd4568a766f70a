package kuborpc

import (
	"flag"
	"os"
	"time"

	"xdao.co/rangeproof/storage"
	"xdao.co/rangeproof/storage/registry"
)

var (
	flagAddr    string
	flagTimeout time.Duration
	flagOffline bool
	flagPin     bool
)

// EnvAddr names the environment variable holding the default RPC address.
const EnvAddr = "IPFS_API"

func init() {
	registry.MustRegister(registry.Backend{
		Name:        "kubo",
		Description: "Kubo node over the HTTP RPC API",
		Usage:       registry.UsageCLI | registry.UsageDaemon,
		RegisterFlags: func(fs *flag.FlagSet) {
			fs.StringVar(&flagAddr, "kubo-api", "", "Kubo RPC multiaddr or URL; empty uses $IPFS_API, then "+DefaultAddr+" (for --backend=kubo)")
			fs.DurationVar(&flagTimeout, "kubo-timeout", 30*time.Second, "Per-request timeout (for --backend=kubo)")
			fs.BoolVar(&flagOffline, "kubo-offline", false, "Do not let the node fetch missing blocks from the network (for --backend=kubo)")
			fs.BoolVar(&flagPin, "kubo-pin", false, "Pin blocks on put (for --backend=kubo)")
		},
		Open: func() (storage.BlockStore, func() error, error) {
			addr := flagAddr
			if addr == "" {
				addr = os.Getenv(EnvAddr)
			}
			if addr == "" {
				addr = DefaultAddr
			}
			s, err := New(addr, Options{Timeout: flagTimeout, Offline: flagOffline, Pin: flagPin})
			if err != nil {
				return nil, nil, err
			}
			return s, nil, nil
		},
	})
}
