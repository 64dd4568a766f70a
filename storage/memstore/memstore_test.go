package memstore

import (
	"testing"

	"xdao.co/rangeproof/storage"
	"xdao.co/rangeproof/storage/testkit"
)

func TestMemstore_Conformance(t *testing.T) {
	testkit.RunBlockStoreConformance(t, func(t *testing.T) storage.BlockStore {
		return New()
	})
}
