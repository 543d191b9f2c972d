package dagstore

import (
	"context"

	"github.com/ipfs/go-cid"
)

// Store is a content-addressed append store: immutable blobs in,
// hash-derived addresses out. Inserting the same bytes twice yields the same
// address.
type Store interface {
	// Put stores the blob and returns its address. The address is computed
	// by the store and may differ from a locally derived one if the store
	// re-encodes the blob.
	Put(ctx context.Context, data []byte) (cid.Cid, error)
	// Get returns the blob at the address, or ErrNotFound.
	Get(ctx context.Context, c cid.Cid) ([]byte, error)
	// Has reports whether the address is present.
	Has(ctx context.Context, c cid.Cid) (bool, error)
}

// ErrNotFound is returned when no blob exists at the requested address.
type ErrNotFound struct {
	Cid cid.Cid
}

func NewErrNotFound(c cid.Cid) ErrNotFound {
	return ErrNotFound{Cid: c}
}

func (e ErrNotFound) Error() string {
	return "no block found for cid: " + e.Cid.String()
}
