// Package prooffile stores encoded range proofs on disk, optionally
// zstd-compressed.
package prooffile

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/zstd"

	"xdao.co/rangeproof/proof"
)

var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// Encode marshals p, compressing the result when compress is set.
func Encode(p *proof.RangeProof, compress bool) ([]byte, error) {
	b, err := proof.Marshal(p)
	if err != nil {
		return nil, err
	}
	if !compress {
		return b, nil
	}
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	out := enc.EncodeAll(b, nil)
	if err := enc.Close(); err != nil {
		return nil, errors.New("failed to close zstd encoder: " + err.Error())
	}
	return out, nil
}

// Decode accepts plain or zstd-compressed proof bytes.
func Decode(b []byte) (*proof.RangeProof, error) {
	if bytes.HasPrefix(b, zstdMagic) {
		dec, err := zstd.NewReader(bytes.NewReader(b))
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd reader: %w", err)
		}
		defer dec.Close()
		var buf bytes.Buffer
		if _, err := io.Copy(&buf, dec); err != nil {
			return nil, fmt.Errorf("failed to decompress proof: %w", err)
		}
		b = buf.Bytes()
	}
	return proof.Unmarshal(b)
}

// WriteFile encodes p to path. Paths ending in ".zst" are compressed.
func WriteFile(path string, p *proof.RangeProof) error {
	b, err := Encode(p, strings.HasSuffix(path, ".zst"))
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

func ReadFile(path string) (*proof.RangeProof, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Decode(b)
}
