package storage

import (
	"errors"

	"github.com/ipfs/go-cid"

	"xdao.co/rangeproof/cidutil"
)

var (
	ErrNotFound    = errors.New("storage: not found")
	ErrInvalidCID  = errors.New("storage: invalid cid")
	ErrCIDMismatch = errors.New("storage: cid mismatch")
	ErrImmutable   = errors.New("storage: immutable object mismatch")
)

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// Verify checks that data hashes to id under id's own prefix.
func Verify(id cid.Cid, data []byte) error {
	if !id.Defined() {
		return ErrInvalidCID
	}
	ok, err := cidutil.Matches(id, data)
	if err != nil {
		return ErrInvalidCID
	}
	if !ok {
		return ErrCIDMismatch
	}
	return nil
}
