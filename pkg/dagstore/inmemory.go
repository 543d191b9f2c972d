package dagstore

import (
	"context"
	"sync"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

var inMemoryCidBuilder = cid.V1Builder{Codec: cid.DagJSON, MhType: multihash.SHA2_256}

// InMemoryStore is an arena-style shared map keyed by content address, used
// for tests and single-process deployments.
type InMemoryStore struct {
	blocks map[cid.Cid][]byte
	mtx    sync.RWMutex
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		blocks: make(map[cid.Cid][]byte),
	}
}

func (s *InMemoryStore) Put(_ context.Context, data []byte) (cid.Cid, error) {
	c, err := inMemoryCidBuilder.Sum(data)
	if err != nil {
		return cid.Undef, err
	}

	s.mtx.Lock()
	defer s.mtx.Unlock()
	if _, ok := s.blocks[c]; !ok {
		stored := make([]byte, len(data))
		copy(stored, data)
		s.blocks[c] = stored
	}
	return c, nil
}

func (s *InMemoryStore) Get(_ context.Context, c cid.Cid) ([]byte, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	data, ok := s.blocks[c]
	if !ok {
		return nil, NewErrNotFound(c)
	}
	result := make([]byte, len(data))
	copy(result, data)
	return result, nil
}

func (s *InMemoryStore) Has(_ context.Context, c cid.Cid) (bool, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	_, ok := s.blocks[c]
	return ok, nil
}

var _ Store = (*InMemoryStore)(nil)
