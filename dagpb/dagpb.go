// Package dagpb decodes the blocks of a UnixFS file DAG.
//
// A block is interpreted according to how it was referenced: raw-codec CIDs
// name leaf blocks whose bytes are file data, dag-pb CIDs name PBNode blocks
// with ordered links and a UnixFS payload.
package dagpb

import (
	"github.com/ipfs/boxo/ipld/merkledag"
	"github.com/ipfs/boxo/ipld/unixfs"
	"github.com/ipfs/go-cid"

	"xdao.co/rangeproof/proof"
)

// Link is one ordered child reference of a dag-pb node.
type Link struct {
	// Hash is the child CID in binary form, byte-identical to what the parent
	// block stores.
	Hash []byte
	Cid  cid.Cid
	Name string
	Size uint64
}

// Node is a decoded block.
type Node struct {
	Codec   uint64
	Links   []Link
	Payload []byte
}

// IsLeaf reports whether the node has no links.
func (n *Node) IsLeaf() bool { return len(n.Links) == 0 }

// LeafPayload is the interpretation of a link-less dag-pb node's payload.
type LeafPayload struct {
	Data     []byte
	FileSize uint64
}

// DecodeNode parses raw bytes as a dag-pb node, preserving link order.
func DecodeNode(raw []byte) (*Node, error) {
	pn, err := merkledag.DecodeProtobuf(raw)
	if err != nil {
		return nil, proof.WrapError(proof.KindDecode, "RP-DEC-001", "invalid dag-pb block", err)
	}
	n := &Node{Codec: cid.DagProtobuf, Payload: pn.Data()}
	for _, l := range pn.Links() {
		if !l.Cid.Defined() {
			return nil, proof.NewError(proof.KindDecode, "RP-DEC-002", "dag-pb link without hash")
		}
		n.Links = append(n.Links, Link{
			Hash: l.Cid.Bytes(),
			Cid:  l.Cid,
			Name: l.Name,
			Size: l.Size,
		})
	}
	return n, nil
}

// DecodeBlock decodes raw according to the codec of the CID it was fetched by.
func DecodeBlock(id cid.Cid, raw []byte) (*Node, error) {
	switch id.Type() {
	case cid.Raw:
		return &Node{Codec: cid.Raw, Payload: raw}, nil
	case cid.DagProtobuf:
		return DecodeNode(raw)
	default:
		return nil, proof.Errorf(proof.KindCodec, "RP-CODEC-004", "unsupported codec 0x%x in %s", id.Type(), id)
	}
}

// DecodeLeafPayload parses a UnixFS Data message.
func DecodeLeafPayload(payload []byte) (LeafPayload, error) {
	fs, err := unixfs.FSNodeFromBytes(payload)
	if err != nil {
		return LeafPayload{}, proof.WrapError(proof.KindDecode, "RP-DEC-003", "invalid UnixFS payload", err)
	}
	return LeafPayload{Data: fs.Data(), FileSize: fs.FileSize()}, nil
}

// LeafData returns the file bytes a leaf node contributes.
func LeafData(n *Node) ([]byte, error) {
	if !n.IsLeaf() {
		return nil, proof.NewError(proof.KindInternal, "RP-DEC-004", "LeafData on a node with links")
	}
	if n.Codec == cid.Raw {
		return n.Payload, nil
	}
	lp, err := DecodeLeafPayload(n.Payload)
	if err != nil {
		return nil, err
	}
	return lp.Data, nil
}

// BlockSizes returns the UnixFS blocksizes of a branch payload: the file
// bytes under each link, in link order. Nodes without a UnixFS payload
// return nil.
func BlockSizes(payload []byte) ([]uint64, error) {
	if len(payload) == 0 {
		return nil, nil
	}
	fs, err := unixfs.FSNodeFromBytes(payload)
	if err != nil {
		return nil, proof.WrapError(proof.KindDecode, "RP-DEC-003", "invalid UnixFS payload", err)
	}
	return fs.BlockSizes(), nil
}
