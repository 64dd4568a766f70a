package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"xdao.co/rangeproof/storage"
	"xdao.co/rangeproof/storage/registry"
	"xdao.co/rangeproof/storage/storeconfig"

	_ "xdao.co/rangeproof/storage/badgerstore"
	_ "xdao.co/rangeproof/storage/grpcstore"
	_ "xdao.co/rangeproof/storage/ipfs"
	_ "xdao.co/rangeproof/storage/kuborpc"
	_ "xdao.co/rangeproof/storage/localfs"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "warning: .env: %v\n", err)
	}
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		printUsage(errOut)
		return 2
	}

	switch args[0] {
	case "import":
		return cmdImport(args[1:], out, errOut)
	case "cat":
		return cmdCat(args[1:], out, errOut)
	case "prove":
		return cmdProve(args[1:], out, errOut)
	case "verify":
		return cmdVerify(args[1:], out, errOut)
	case "attest":
		return cmdAttest(args[1:], out, errOut)
	case "verify-receipt":
		return cmdVerifyReceipt(args[1:], out, errOut)
	case "serve":
		return cmdServe(args[1:], out, errOut)
	case "bundle":
		return cmdBundle(args[1:], out, errOut)
	case "key":
		return cmdKey(args[1:], out, errOut)
	case "backends":
		printBackends(out)
		return 0
	case "help", "-h", "--help":
		printUsage(out)
		return 0
	default:
		fmt.Fprintf(errOut, "unknown command: %s\n\n", args[0])
		printUsage(errOut)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "rangeproof: byte-range proofs over IPFS UnixFS files")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  rangeproof import [store flags] [--chunk-size N] [--max-links N] [--raw-leaves] [--cid-version 0|1] [--layout balanced|trickle] <file>")
	fmt.Fprintln(w, "  rangeproof cat [store flags] --cid <CID> [--start N --end M] [--out <file>]")
	fmt.Fprintln(w, "  rangeproof prove [store flags] --cid <CID> --start N --end M --out <proof[.zst]> [--boundary exact|legacy] [--ignore-blocksizes] [--mode permissive|strict]")
	fmt.Fprintln(w, "  rangeproof verify [--root <CID>] [--data-out <file>] <proof>")
	fmt.Fprintln(w, "  rangeproof attest (--seed-hex <64hex> [--alg ed25519|dilithium3] | --signer <name> [--signer-role <role>] | --key-file <path>) [--hash sha3-256|sha256|sha512] --out <receipt> <proof>")
	fmt.Fprintln(w, "  rangeproof verify-receipt [--root <CID>] [--proof <proof>] [--expect-key <alg:base64>] <receipt>")
	fmt.Fprintln(w, "  rangeproof serve [store flags] [--listen host:port] [attest key flags]")
	fmt.Fprintln(w, "  rangeproof bundle export [store flags] --cid <CID> [--proof <file>...] --out <file.tar>")
	fmt.Fprintln(w, "  rangeproof bundle import [store flags] [--proofs-dir <dir>] <file.tar>")
	fmt.Fprintln(w, "  rangeproof key init --name <name> [--seed-hex <64hex>] [--alg ed25519|dilithium3] [--force]")
	fmt.Fprintln(w, "  rangeproof key derive --from <name> --role <role> [--alg ed25519|dilithium3] [--force]")
	fmt.Fprintln(w, "  rangeproof key list")
	fmt.Fprintln(w, "  rangeproof key export --name <name> [--role <role>]")
	fmt.Fprintln(w, "  rangeproof backends")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Store flags:")
	fmt.Fprintln(w, "  --backend <name>   block backend (default kubo; see 'rangeproof backends')")
	fmt.Fprintln(w, "  --config <file>    JSON or YAML store config (overrides --backend)")
	fmt.Fprintln(w, "  plus the backend's own flags, e.g. --kubo-api, --localfs-dir, --badger-dir, --grpc-target")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Notes:")
	fmt.Fprintln(w, "  - a .env file in the working directory is loaded first; IPFS_API sets the default Kubo RPC address")
	fmt.Fprintln(w, "  - ranges are half-open byte offsets [start, end) into the file content")
	fmt.Fprintln(w, "  - proof files ending in .zst are zstd-compressed")
}

type storeFlags struct {
	backend      string
	config       string
	listBackends bool
	logLevel     string
}

func (c *storeFlags) add(fs *flag.FlagSet) {
	fs.StringVar(&c.backend, "backend", "kubo", "Block backend name")
	fs.StringVar(&c.config, "config", "", "Store config file (JSON or YAML)")
	fs.BoolVar(&c.listBackends, "list-backends", false, "List supported backends and exit")
	fs.StringVar(&c.logLevel, "log-level", "warning", "Log level (debug, info, warning, error)")
	registry.RegisterFlags(fs, registry.UsageCLI)
}

func (c *storeFlags) open() (storage.BlockStore, func() error, error) {
	if c.config != "" {
		cfg, err := storeconfig.LoadFile(c.config)
		if err != nil {
			return nil, nil, err
		}
		return cfg.Open(registry.UsageCLI, "")
	}
	return registry.Open(c.backend, registry.UsageCLI)
}

func (c *storeFlags) logger(errOut io.Writer) (*logrus.Logger, error) {
	return newLogger(c.logLevel, errOut)
}

func newLogger(level string, errOut io.Writer) (*logrus.Logger, error) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	l := logrus.New()
	l.SetOutput(errOut)
	l.SetLevel(lvl)
	return l, nil
}

func printBackends(w io.Writer) {
	for _, b := range registry.List(registry.UsageCLI) {
		if b.Description == "" {
			_, _ = fmt.Fprintf(w, "%s\n", b.Name)
			continue
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\n", b.Name, b.Description)
	}
}

// withStore parses the store flags, opens the store and calls fn with it.
func withStore(fs *flag.FlagSet, sf *storeFlags, args []string, out, errOut io.Writer, fn func(storage.BlockStore) int) int {
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if sf.listBackends {
		printBackends(out)
		return 0
	}
	store, closeFn, err := sf.open()
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	if closeFn != nil {
		defer func() {
			if err := closeFn(); err != nil {
				fmt.Fprintf(errOut, "close store: %v\n", err)
			}
		}()
	}
	return fn(store)
}

type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }
func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}
