// Package bundle moves a file DAG, and optionally range proofs over it,
// between stores as a deterministic TAR archive.
//
// Layout:
//
//	blocks/<cid>     raw block bytes, hash-checked against the name
//	proofs/<name>    canonical encoded range proofs
//	index.json       optional, non-authoritative metadata
package bundle

import (
	"archive/tar"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multicodec"

	"xdao.co/rangeproof/proof"
	"xdao.co/rangeproof/storage"
)

// FormatVersion is the current index.json schema version.
const FormatVersion = 2

const (
	blocksDir = "blocks/"
	proofsDir = "proofs/"
	indexName = "index.json"
)

var epoch0 = time.Unix(0, 0).UTC()

// ExportOptions controls bundle export behavior.
type ExportOptions struct {
	// Labels maps names to CIDs in index.json, e.g. "root".
	Labels map[string]cid.Cid
	// Proofs are written under proofs/<name>. Each must be a canonical
	// encoding accepted by proof.Unmarshal.
	Proofs map[string][]byte
	// IncludeIndex controls whether index.json is included.
	IncludeIndex bool
}

// Export writes a bundle containing the blocks for ids and any proofs in
// opts. Entries are sorted and TAR headers normalized, so equal inputs give
// equal bytes. Every block is checked against its CID before it is written.
func Export(ctx context.Context, w io.Writer, store storage.BlockStore, ids []cid.Cid, opts ExportOptions) (err error) {
	if store == nil {
		return errors.New("bundle: nil store")
	}

	byKey := make(map[string]cid.Cid, len(ids))
	for _, id := range ids {
		if !id.Defined() {
			return storage.ErrInvalidCID
		}
		byKey[id.String()] = id
	}

	tw := tar.NewWriter(w)
	defer func() {
		if cerr := tw.Close(); err == nil {
			err = cerr
		}
	}()

	idx := index{Version: FormatVersion}
	for _, key := range sortedKeys(byKey) {
		id := byKey[key]
		b, err := store.Get(ctx, id)
		if err != nil {
			return fmt.Errorf("bundle: %s: %w", key, err)
		}
		if err := storage.Verify(id, b); err != nil {
			return err
		}
		if err := writeEntry(tw, blocksDir+key, b); err != nil {
			return err
		}
		idx.Blocks = append(idx.Blocks, indexBlock{
			CID:   key,
			Codec: multicodec.Code(id.Type()).String(),
			Size:  len(b),
		})
	}

	for _, name := range sortedKeys(opts.Proofs) {
		if !validName(name) {
			return fmt.Errorf("bundle: invalid proof name %q", name)
		}
		b := opts.Proofs[name]
		if _, err := proof.Unmarshal(b); err != nil {
			return fmt.Errorf("bundle: proof %s: %w", name, err)
		}
		if err := writeEntry(tw, proofsDir+name, b); err != nil {
			return err
		}
		idx.Proofs = append(idx.Proofs, name)
	}

	if !opts.IncludeIndex {
		return nil
	}
	for _, name := range sortedKeys(opts.Labels) {
		v := opts.Labels[name]
		if name == "" {
			return errors.New("bundle: empty label key")
		}
		if !v.Defined() {
			return storage.ErrInvalidCID
		}
		idx.Labels = append(idx.Labels, indexLabel{Name: name, CID: v.String()})
	}
	b, err := json.Marshal(idx)
	if err != nil {
		return err
	}
	return writeEntry(tw, indexName, append(b, '\n'))
}

// ImportOptions controls bundle import behavior.
type ImportOptions struct {
	// IgnoreUnknown skips unknown TAR entries instead of failing.
	IgnoreUnknown bool
}

// Contents describes what Import read from a bundle.
type Contents struct {
	// Blocks lists the stored CIDs in bundle order.
	Blocks []cid.Cid
	// Proofs holds the decoded proofs keyed by entry name.
	Proofs map[string]*proof.RangeProof
	// Labels is taken from index.json when present.
	Labels map[string]cid.Cid
}

// Import reads a bundle from r and stores every block in store. Blocks must
// hash to the CID in their entry name; proofs must decode canonically.
// On error, Contents reports what was stored before the failure.
func Import(ctx context.Context, r io.Reader, store storage.BlockStore, opts ImportOptions) (*Contents, error) {
	if store == nil {
		return nil, errors.New("bundle: nil store")
	}

	tr := tar.NewReader(r)
	out := &Contents{Proofs: map[string]*proof.RangeProof{}, Labels: map[string]cid.Cid{}}
	seen := map[string]struct{}{}

	for {
		h, err := tr.Next()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		name := cleanTarPath(h.Name)
		if name == "" {
			return out, fmt.Errorf("bundle: invalid entry path: %q", h.Name)
		}
		if h.Typeflag != tar.TypeReg {
			if opts.IgnoreUnknown {
				continue
			}
			return out, fmt.Errorf("bundle: unexpected tar entry type: %v (%s)", h.Typeflag, name)
		}
		if _, ok := seen[name]; ok {
			return out, fmt.Errorf("bundle: duplicate entry: %s", name)
		}
		seen[name] = struct{}{}

		payload, err := io.ReadAll(tr)
		if err != nil {
			return out, err
		}

		switch {
		case name == indexName:
			if err := out.readIndex(payload); err != nil {
				return out, err
			}
		case strings.HasPrefix(name, blocksDir):
			id, derr := cid.Decode(strings.TrimPrefix(name, blocksDir))
			if derr != nil || !id.Defined() {
				return out, storage.ErrInvalidCID
			}
			if err := storage.Verify(id, payload); err != nil {
				return out, err
			}
			if err := store.Put(ctx, id, payload); err != nil {
				return out, err
			}
			out.Blocks = append(out.Blocks, id)
		case strings.HasPrefix(name, proofsDir):
			pname := strings.TrimPrefix(name, proofsDir)
			p, err := proof.Unmarshal(payload)
			if err != nil {
				return out, fmt.Errorf("bundle: proof %s: %w", pname, err)
			}
			out.Proofs[pname] = p
		default:
			if !opts.IgnoreUnknown {
				return out, fmt.Errorf("bundle: unknown entry: %s", name)
			}
		}
	}
}

func (c *Contents) readIndex(b []byte) error {
	var idx index
	if err := json.Unmarshal(b, &idx); err != nil {
		return fmt.Errorf("bundle: index.json: %w", err)
	}
	for _, l := range idx.Labels {
		id, err := cid.Decode(l.CID)
		if err != nil {
			return fmt.Errorf("bundle: index.json label %q: %w", l.Name, storage.ErrInvalidCID)
		}
		c.Labels[l.Name] = id
	}
	return nil
}

type index struct {
	Version int          `json:"version"`
	Blocks  []indexBlock `json:"blocks"`
	Proofs  []string     `json:"proofs,omitempty"`
	Labels  []indexLabel `json:"labels,omitempty"`
}

type indexBlock struct {
	CID   string `json:"cid"`
	Codec string `json:"codec"`
	Size  int    `json:"size"`
}

type indexLabel struct {
	Name string `json:"name"`
	CID  string `json:"cid"`
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func validName(name string) bool {
	return name != "" && !strings.ContainsAny(name, "/\\") && name != "." && name != ".."
}

func writeEntry(tw *tar.Writer, name string, content []byte) error {
	hdr := &tar.Header{
		Name:     name,
		Mode:     0o644,
		Size:     int64(len(content)),
		ModTime:  epoch0,
		Typeflag: tar.TypeReg,
		Format:   tar.FormatUSTAR,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	_, err := io.Copy(tw, bytes.NewReader(content))
	return err
}

func cleanTarPath(name string) string {
	name = strings.TrimSpace(name)
	name = strings.ReplaceAll(name, "\\", "/")
	name = strings.TrimPrefix(name, "./")
	name = strings.TrimPrefix(name, "/")
	if name == "" {
		return ""
	}
	for _, part := range strings.Split(name, "/") {
		if part == "" || part == "." || part == ".." {
			return ""
		}
	}
	return name
}
