package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ipfs/go-cid"

	"xdao.co/rangeproof/cidutil"
	"xdao.co/rangeproof/dagbuild"
	"xdao.co/rangeproof/internal/prooffile"
	"xdao.co/rangeproof/proof"
	"xdao.co/rangeproof/storage"
	"xdao.co/rangeproof/storage/bundle"
)

func cmdBundle(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(errOut, "usage: rangeproof bundle export|import ...")
		return 2
	}
	switch args[0] {
	case "export":
		return cmdBundleExport(args[1:], out, errOut)
	case "import":
		return cmdBundleImport(args[1:], out, errOut)
	default:
		fmt.Fprintf(errOut, "unknown bundle subcommand: %s\n", args[0])
		return 2
	}
}

func cmdBundleExport(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("bundle export", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var sf storeFlags
	sf.add(fs)
	var roots, proofs stringList
	var outPath string
	fs.Var(&roots, "cid", "File root CID (repeatable)")
	fs.Var(&proofs, "proof", "Proof file to include (repeatable)")
	fs.StringVar(&outPath, "out", "", "Bundle output file (.tar)")

	return withStore(fs, &sf, args, out, errOut, func(store storage.BlockStore) int {
		if len(roots) == 0 || outPath == "" {
			fmt.Fprintln(errOut, "usage: rangeproof bundle export [store flags] --cid <CID> [--cid <CID>...] --out <file.tar>")
			return 2
		}
		ctx := context.Background()
		labels := map[string]cid.Cid{}
		var ids []cid.Cid
		for i, s := range roots {
			root, err := cidutil.Parse(s)
			if err != nil {
				fmt.Fprintf(errOut, "invalid --cid %q: %v\n", s, err)
				return 2
			}
			if len(roots) == 1 {
				labels["root"] = root
			} else {
				labels[fmt.Sprintf("root-%d", i)] = root
			}
			dag, err := dagbuild.Blocks(ctx, store, root)
			if err != nil {
				fmt.Fprintf(errOut, "walk %s: %v\n", root, err)
				return 1
			}
			ids = append(ids, dag...)
		}

		encoded := map[string][]byte{}
		for _, path := range proofs {
			rp, err := prooffile.ReadFile(path)
			if err != nil {
				fmt.Fprintf(errOut, "read proof: %v\n", describe(err))
				return 1
			}
			b, err := proof.Marshal(rp)
			if err != nil {
				fmt.Fprintf(errOut, "encode proof: %v\n", err)
				return 1
			}
			encoded[strings.TrimSuffix(filepath.Base(path), ".zst")] = b
		}

		f, err := os.Create(outPath)
		if err != nil {
			fmt.Fprintf(errOut, "create %s: %v\n", outPath, err)
			return 1
		}
		if err := bundle.Export(ctx, f, store, ids, bundle.ExportOptions{Labels: labels, Proofs: encoded, IncludeIndex: true}); err != nil {
			_ = f.Close()
			fmt.Fprintf(errOut, "export: %v\n", err)
			return 1
		}
		if err := f.Close(); err != nil {
			fmt.Fprintf(errOut, "close %s: %v\n", outPath, err)
			return 1
		}
		fmt.Fprintf(out, "Exported %d block(s), %d proof(s)\n", len(ids), len(encoded))
		fmt.Fprintf(out, "Stored at: %s\n", outPath)
		return 0
	})
}

func cmdBundleImport(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("bundle import", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var sf storeFlags
	sf.add(fs)
	var ignoreUnknown bool
	var proofsDir string
	fs.BoolVar(&ignoreUnknown, "ignore-unknown", false, "Skip unknown TAR entries")
	fs.StringVar(&proofsDir, "proofs-dir", "", "Write bundled proofs into this directory")

	return withStore(fs, &sf, args, out, errOut, func(store storage.BlockStore) int {
		if fs.NArg() != 1 {
			fmt.Fprintln(errOut, "usage: rangeproof bundle import [store flags] <file.tar>")
			return 2
		}
		f, err := os.Open(fs.Arg(0))
		if err != nil {
			fmt.Fprintln(errOut, err)
			return 1
		}
		defer f.Close()
		c, err := bundle.Import(context.Background(), f, store, bundle.ImportOptions{IgnoreUnknown: ignoreUnknown})
		if err != nil {
			fmt.Fprintf(errOut, "import: %v\n", describe(err))
			return 1
		}
		fmt.Fprintf(out, "Imported %d block(s), %d proof(s)\n", len(c.Blocks), len(c.Proofs))
		for name, id := range c.Labels {
			fmt.Fprintf(out, "Label %s: %s\n", name, id)
		}
		if proofsDir == "" || len(c.Proofs) == 0 {
			return 0
		}
		if err := os.MkdirAll(proofsDir, 0o755); err != nil {
			fmt.Fprintln(errOut, err)
			return 1
		}
		for name, rp := range c.Proofs {
			if err := prooffile.WriteFile(filepath.Join(proofsDir, name), rp); err != nil {
				fmt.Fprintf(errOut, "write proof %s: %v\n", name, err)
				return 1
			}
		}
		return 0
	})
}
