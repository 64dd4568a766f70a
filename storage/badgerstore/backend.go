package badgerstore

import (
	"flag"

	"xdao.co/rangeproof/storage"
	"xdao.co/rangeproof/storage/registry"
)

var (
	flagDir      string
	flagInMemory bool
)

func init() {
	registry.MustRegister(registry.Backend{
		Name:        "badger",
		Description: "BadgerDB block store (embedded key-value database)",
		Usage:       registry.UsageCLI | registry.UsageDaemon,
		RegisterFlags: func(fs *flag.FlagSet) {
			fs.StringVar(&flagDir, "badger-dir", "", "Badger database directory (for --backend=badger)")
			fs.BoolVar(&flagInMemory, "badger-in-memory", false, "Keep the Badger database in memory (for --backend=badger)")
		},
		Open: func() (storage.BlockStore, func() error, error) {
			s, err := Open(Options{Dir: flagDir, InMemory: flagInMemory})
			if err != nil {
				return nil, nil, err
			}
			return s, s.Close, nil
		},
	})
}
