package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"xdao.co/rangeproof/attest"
	"xdao.co/rangeproof/cidutil"
	"xdao.co/rangeproof/internal/prooffile"
	"xdao.co/rangeproof/keys"
)

type signerFlags struct {
	seedHex    string
	signer     string
	signerRole string
	keyFile    string
	keysDir    string
	alg        string
	hashAlg    string
}

func (s *signerFlags) add(fs *flag.FlagSet) {
	fs.StringVar(&s.seedHex, "seed-hex", "", "Signing seed as 64 hex chars")
	fs.StringVar(&s.signer, "signer", "", "Key name in the key store")
	fs.StringVar(&s.signerRole, "signer-role", "", "Derived role key of --signer")
	fs.StringVar(&s.keyFile, "key-file", "", "Path to a hex seed file")
	fs.StringVar(&s.keysDir, "keys-dir", "", "Key store directory (default ~/.xdao/rangeproof/keys)")
	fs.StringVar(&s.alg, "alg", "", "Signature algorithm for --seed-hex (default ed25519); checked against stored keys")
	fs.StringVar(&s.hashAlg, "hash", keys.HashSHA3256, "Receipt hash: sha3-256, sha256 or sha512")
}

func (s *signerFlags) configured() bool {
	return s.seedHex != "" || s.signer != "" || s.keyFile != ""
}

func (s *signerFlags) attester() (*attest.Attester, error) {
	ks, err := keys.OpenKeyStore(s.keysDir)
	if err != nil {
		return nil, err
	}
	signer, err := ks.Signer(keys.SignerRef{
		SeedHex: s.seedHex,
		KeyFile: s.keyFile,
		Name:    s.signer,
		Role:    s.signerRole,
		Alg:     s.alg,
	})
	if err != nil {
		return nil, err
	}
	if _, err := keys.Digest(s.hashAlg, nil); err != nil {
		return nil, err
	}
	return &attest.Attester{Signer: signer, HashAlg: s.hashAlg}, nil
}

func cmdAttest(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("attest", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var sf signerFlags
	sf.add(fs)
	var outPath string
	fs.StringVar(&outPath, "out", "", "Receipt output file")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 || outPath == "" {
		fmt.Fprintln(errOut, "usage: rangeproof attest (--seed-hex <64hex> | --signer <name> [--signer-role <role>] | --key-file <path>) --out <receipt> <proof>")
		return 2
	}
	if !sf.configured() {
		fmt.Fprintln(errOut, "no signer provided")
		return 2
	}
	a, err := sf.attester()
	if err != nil {
		fmt.Fprintf(errOut, "signer: %v\n", err)
		return 2
	}
	rp, err := prooffile.ReadFile(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(errOut, "read proof: %v\n", describe(err))
		return 1
	}
	r, res, err := a.Attest(rp)
	if err != nil {
		fmt.Fprintf(errOut, "attest: %v\n", describe(err))
		return 1
	}
	b, err := attest.MarshalReceipt(r)
	if err != nil {
		fmt.Fprintf(errOut, "encode receipt: %v\n", err)
		return 1
	}
	if err := os.WriteFile(outPath, b, 0o644); err != nil {
		fmt.Fprintf(errOut, "write receipt: %v\n", err)
		return 1
	}
	key, err := r.PublicKeyString()
	if err != nil {
		fmt.Fprintf(errOut, "receipt key: %v\n", err)
		return 1
	}
	fmt.Fprintf(out, "Attested root=%s bytes=%d\n", res.RootHash, len(res.Data))
	fmt.Fprintf(out, "Signer: %s\n", key)
	fmt.Fprintf(out, "Stored at: %s\n", outPath)
	return 0
}

func cmdVerifyReceipt(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("verify-receipt", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var rootStr, proofPath, expectKey string
	fs.StringVar(&rootStr, "root", "", "Require the receipt to commit to this root CID")
	fs.StringVar(&proofPath, "proof", "", "Require the receipt to be issued for this proof file")
	fs.StringVar(&expectKey, "expect-key", "", "Require this signer public key (<alg>:<base64>)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: rangeproof verify-receipt [--root <CID>] [--proof <proof>] [--expect-key <alg:base64>] <receipt>")
		return 2
	}
	b, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(errOut, "read receipt: %v\n", err)
		return 1
	}
	r, err := attest.UnmarshalReceipt(b)
	if err != nil {
		fmt.Fprintf(errOut, "INVALID: %v\n", describe(err))
		return 1
	}

	if rootStr != "" {
		root, perr := cidutil.Parse(rootStr)
		if perr != nil {
			fmt.Fprintf(errOut, "invalid --root: %v\n", perr)
			return 2
		}
		err = attest.VerifyReceiptFor(r, root)
	} else {
		err = attest.VerifyReceipt(r)
	}
	if err != nil {
		fmt.Fprintf(errOut, "INVALID: %v\n", describe(err))
		return 1
	}
	if proofPath != "" {
		rp, err := prooffile.ReadFile(proofPath)
		if err != nil {
			fmt.Fprintf(errOut, "read proof: %v\n", describe(err))
			return 1
		}
		if err := attest.CheckProof(r, rp); err != nil {
			fmt.Fprintf(errOut, "INVALID: %v\n", describe(err))
			return 1
		}
	}
	key, err := r.PublicKeyString()
	if err != nil {
		fmt.Fprintf(errOut, "INVALID: %v\n", describe(err))
		return 1
	}
	if expectKey != "" && key != expectKey {
		fmt.Fprintf(errOut, "INVALID: receipt signed by %s\n", key)
		return 1
	}
	fmt.Fprintf(out, "VALID signer=%s bytes=%d\n", key, len(r.Statement.Journal.Data))
	return 0
}
