package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"xdao.co/rangeproof/cidutil"
	"xdao.co/rangeproof/compliance"
	"xdao.co/rangeproof/dagbuild"
	"xdao.co/rangeproof/internal/prooffile"
	"xdao.co/rangeproof/proof"
	"xdao.co/rangeproof/prover"
	"xdao.co/rangeproof/storage"
)

func cmdImport(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var sf storeFlags
	sf.add(fs)
	var opts dagbuild.Options
	var layout string
	fs.Int64Var(&opts.ChunkSize, "chunk-size", 0, "Chunk size in bytes (default 262144)")
	fs.IntVar(&opts.MaxLinks, "max-links", 0, "Maximum links per node (default 174)")
	fs.BoolVar(&opts.RawLeaves, "raw-leaves", false, "Store leaves as raw blocks")
	fs.IntVar(&opts.CIDVersion, "cid-version", 0, "CID version (0 or 1)")
	fs.StringVar(&layout, "layout", "balanced", "DAG layout (balanced or trickle)")

	return withStore(fs, &sf, args, out, errOut, func(store storage.BlockStore) int {
		if fs.NArg() != 1 {
			fmt.Fprintln(errOut, "usage: rangeproof import [flags] <file>")
			return 2
		}
		opts.Layout = dagbuild.Layout(layout)
		path := fs.Arg(0)
		f, err := os.Open(path)
		if err != nil {
			fmt.Fprintf(errOut, "open %s: %v\n", filepath.Base(path), err)
			return 1
		}
		defer f.Close()

		root, err := dagbuild.Import(context.Background(), store, f, opts)
		if err != nil {
			fmt.Fprintf(errOut, "import: %v\n", err)
			return 1
		}
		_, _ = fmt.Fprintln(out, root)
		return 0
	})
}

func cmdCat(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("cat", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var sf storeFlags
	sf.add(fs)
	var rootStr, outPath string
	var start, end uint64
	fs.StringVar(&rootStr, "cid", "", "File root CID")
	fs.Uint64Var(&start, "start", 0, "Range start")
	fs.Uint64Var(&end, "end", 0, "Range end (0 reads to the end of the file)")
	fs.StringVar(&outPath, "out", "", "Write to file instead of stdout")

	return withStore(fs, &sf, args, out, errOut, func(store storage.BlockStore) int {
		root, err := cidutil.Parse(rootStr)
		if err != nil {
			fmt.Fprintf(errOut, "invalid --cid: %v\n", err)
			return 2
		}
		ctx := context.Background()
		var b []byte
		if end == 0 && start == 0 {
			b, err = dagbuild.Cat(ctx, store, root)
		} else {
			b, err = dagbuild.ReadRange(ctx, store, root, start, end)
		}
		if err != nil {
			fmt.Fprintf(errOut, "cat: %v\n", err)
			return 1
		}
		return writeOutput(outPath, b, out, errOut)
	})
}

func cmdProve(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("prove", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var sf storeFlags
	sf.add(fs)
	var rootStr, outPath, boundary, mode string
	var start, end uint64
	var ignoreSizes bool
	fs.StringVar(&rootStr, "cid", "", "File root CID")
	fs.Uint64Var(&start, "start", 0, "Range start (inclusive)")
	fs.Uint64Var(&end, "end", 0, "Range end (exclusive)")
	fs.StringVar(&outPath, "out", "", "Proof output file (.zst compresses)")
	fs.StringVar(&boundary, "boundary", "exact", "Leaf cut arithmetic: exact or legacy")
	fs.BoolVar(&ignoreSizes, "ignore-blocksizes", false, "Fetch every child instead of skipping by UnixFS blocksizes")
	fs.StringVar(&mode, "mode", "permissive", "Compliance mode: permissive or strict")

	return withStore(fs, &sf, args, out, errOut, func(store storage.BlockStore) int {
		if outPath == "" {
			fmt.Fprintln(errOut, "missing --out")
			return 2
		}
		root, err := cidutil.Parse(rootStr)
		if err != nil {
			fmt.Fprintf(errOut, "invalid --cid: %v\n", err)
			return 2
		}
		opts := prover.Options{IgnoreBlockSizes: ignoreSizes}
		switch boundary {
		case "exact":
			opts.Boundary = prover.BoundaryExact
		case "legacy":
			opts.Boundary = prover.BoundaryLegacy
		default:
			fmt.Fprintf(errOut, "invalid --boundary: %q\n", boundary)
			return 2
		}
		m, ok := compliance.Parse(mode)
		if !ok {
			fmt.Fprintf(errOut, "invalid --mode: %q\n", mode)
			return 2
		}
		opts.Mode = m
		if opts.Logger, err = sf.logger(errOut); err != nil {
			fmt.Fprintf(errOut, "invalid --log-level: %v\n", err)
			return 2
		}

		rp, err := prover.New(store, opts).Generate(context.Background(), root, start, end)
		if err != nil {
			fmt.Fprintf(errOut, "prove: %v\n", describe(err))
			return 1
		}
		if err := prooffile.WriteFile(outPath, rp); err != nil {
			fmt.Fprintf(errOut, "write proof: %v\n", err)
			return 1
		}
		fmt.Fprintf(out, "Proof for %s [%d,%d): %d selector(s)\n", root, start, end, len(rp.Selectors))
		fmt.Fprintf(out, "Stored at: %s\n", outPath)
		return 0
	})
}

func cmdVerify(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("verify", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var rootStr, dataOut string
	fs.StringVar(&rootStr, "root", "", "Expected root CID")
	fs.StringVar(&dataOut, "data-out", "", "Write the proven bytes to this file")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: rangeproof verify [--root <CID>] [--data-out <file>] <proof>")
		return 2
	}
	rp, err := prooffile.ReadFile(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(errOut, "read proof: %v\n", describe(err))
		return 1
	}

	var res *proof.Result
	if rootStr != "" {
		root, perr := cidutil.Parse(rootStr)
		if perr != nil {
			fmt.Fprintf(errOut, "invalid --root: %v\n", perr)
			return 2
		}
		res, err = proof.VerifyRoot(rp, root)
	} else {
		res, err = proof.Verify(rp)
	}
	if err != nil {
		fmt.Fprintf(errOut, "INVALID: %v\n", describe(err))
		return 1
	}
	fmt.Fprintf(out, "VALID root=%s bytes=%d\n", res.RootHash, len(res.Data))
	if dataOut != "" {
		if err := os.WriteFile(dataOut, res.Data, 0o644); err != nil {
			fmt.Fprintf(errOut, "write data: %v\n", err)
			return 1
		}
	}
	return 0
}

func writeOutput(path string, b []byte, out, errOut io.Writer) int {
	if path == "" {
		if _, err := out.Write(b); err != nil {
			fmt.Fprintf(errOut, "write: %v\n", err)
			return 1
		}
		return 0
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		fmt.Fprintf(errOut, "write %s: %v\n", filepath.Base(path), err)
		return 1
	}
	return 0
}

// describe prefixes structured errors with their rule so scripts can grep
// for it.
func describe(err error) string {
	if id := proof.RuleID(err); id != "" {
		return fmt.Sprintf("[%s] %v", id, err)
	}
	return err.Error()
}
