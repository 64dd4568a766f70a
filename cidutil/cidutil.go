package cidutil

import (
	"fmt"
	"strings"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

// RawSHA256 returns the CIDv1 (raw + sha2-256) of data.
func RawSHA256(data []byte) (cid.Cid, error) {
	sum, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return cid.Undef, err
	}
	return cid.NewCidV1(cid.Raw, sum), nil
}

// DagPBSHA256 returns the dag-pb + sha2-256 CID of data in the requested version.
func DagPBSHA256(data []byte, version uint64) (cid.Cid, error) {
	sum, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return cid.Undef, err
	}
	switch version {
	case 0:
		return cid.NewCidV0(sum), nil
	case 1:
		return cid.NewCidV1(cid.DagProtobuf, sum), nil
	default:
		return cid.Undef, fmt.Errorf("cidutil: unsupported cid version %d", version)
	}
}

// Matches reports whether data hashes to id under id's own prefix
// (version, codec and multihash type).
func Matches(id cid.Cid, data []byte) (bool, error) {
	if !id.Defined() {
		return false, fmt.Errorf("cidutil: undefined cid")
	}
	got, err := id.Prefix().Sum(data)
	if err != nil {
		return false, err
	}
	return got.Equals(id), nil
}

// Parse decodes a CID string, accepting an optional "/ipfs/" prefix.
func Parse(s string) (cid.Cid, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "/ipfs/")
	if s == "" {
		return cid.Undef, fmt.Errorf("cidutil: empty cid")
	}
	return cid.Decode(s)
}
