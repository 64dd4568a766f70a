package ipfs

import (
	"flag"
	"os"

	"xdao.co/rangeproof/storage"
	"xdao.co/rangeproof/storage/registry"
)

var (
	flagBin  string
	flagPath string
	flagPin  bool
)

func init() {
	registry.MustRegister(registry.Backend{
		Name:        "ipfs",
		Description: "Local Kubo repo via the ipfs CLI (offline)",
		Usage:       registry.UsageCLI | registry.UsageDaemon,
		RegisterFlags: func(fs *flag.FlagSet) {
			fs.StringVar(&flagBin, "ipfs-bin", "ipfs", "Path to the ipfs binary (for --backend=ipfs)")
			fs.StringVar(&flagPath, "ipfs-path", "", "IPFS_PATH of the repo to use; empty uses the environment (for --backend=ipfs)")
			fs.BoolVar(&flagPin, "ipfs-pin", false, "Pin blocks on put (for --backend=ipfs)")
		},
		Open: func() (storage.BlockStore, func() error, error) {
			var env []string
			if flagPath != "" {
				env = append(os.Environ(), "IPFS_PATH="+flagPath)
			}
			return New(Options{Bin: flagBin, Env: env, Pin: flagPin}), nil, nil
		},
	})
}
