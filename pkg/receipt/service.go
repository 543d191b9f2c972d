package receipt

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/ipfs/go-cid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/jobmesh-project/jobmesh/pkg/dagstore"
	"github.com/jobmesh-project/jobmesh/pkg/models"
)

type ServiceParams struct {
	Store dagstore.Store
	Clock clock.Clock
}

// Service anchors verified receipts into a content-addressed store and keeps
// an index of which addresses were confirmed durable. A receipt's local
// address is always derivable; the index only ever records successful
// anchorings, so a store outage leaves the index untouched.
type Service struct {
	store dagstore.Store
	clock clock.Clock

	mtx      sync.RWMutex
	anchored map[string]time.Time
}

func NewService(params ServiceParams) *Service {
	if params.Clock == nil {
		params.Clock = clock.New()
	}
	return &Service{
		store:    params.Store,
		clock:    params.Clock,
		anchored: make(map[string]time.Time),
	}
}

// LocalAddress derives the receipt's content address without touching the
// store. It works even when anchoring is unavailable.
func (s *Service) LocalAddress(r models.ExecutionReceipt) (cid.Cid, error) {
	return ContentAddress(r)
}

// Anchor writes the receipt into the backing store and records the address
// in the anchored index. The receipt's ReceiptCID field is populated with
// the local address before serialization either way, so a failed anchoring
// still leaves the caller with a usable address. Re-anchoring the same
// receipt yields the same address.
func (s *Service) Anchor(ctx context.Context, r *models.ExecutionReceipt) (cid.Cid, error) {
	addr, err := ContentAddress(*r)
	if err != nil {
		return cid.Undef, err
	}
	r.ReceiptCID = addr.String()

	// Anchor the canonical form, with the address field cleared, so the
	// stored bytes hash to the address that points at them.
	canonical := *r
	canonical.ReceiptCID = ""
	data, err := models.JSONMarshalWithMax(canonical)
	if err != nil {
		return addr, errors.Wrap(err, "serializing receipt for anchoring")
	}
	stored, err := s.store.Put(ctx, data)
	if err != nil {
		return addr, errors.Wrapf(err, "anchoring receipt %s", r.ID)
	}
	if !stored.Equals(cid.Undef) && stored.String() != addr.String() {
		// The store re-encoded the blob. Its address is authoritative for
		// retrieval, so it wins.
		addr = stored
		r.ReceiptCID = stored.String()
	}

	s.mtx.Lock()
	s.anchored[addr.String()] = s.clock.Now().UTC()
	s.mtx.Unlock()

	log.Ctx(ctx).Debug().
		Str("ReceiptID", r.ID).
		Str("ReceiptCID", addr.String()).
		Msg("anchored execution receipt")
	return addr, nil
}

// IsAnchored reports whether the address was confirmed durable by a
// successful Anchor call on this node.
func (s *Service) IsAnchored(addr cid.Cid) bool {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	_, ok := s.anchored[addr.String()]
	return ok
}

// Fetch retrieves a previously anchored receipt by address.
func (s *Service) Fetch(ctx context.Context, addr cid.Cid) (models.ExecutionReceipt, error) {
	data, err := s.store.Get(ctx, addr)
	if err != nil {
		return models.ExecutionReceipt{}, err
	}
	var r models.ExecutionReceipt
	if err := models.JSONUnmarshalWithMax(data, &r); err != nil {
		return models.ExecutionReceipt{}, errors.Wrap(err, "decoding anchored receipt")
	}
	r.ReceiptCID = addr.String()
	return r, nil
}
