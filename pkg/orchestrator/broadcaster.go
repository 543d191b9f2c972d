package orchestrator

import (
	"sync"

	"github.com/jobmesh-project/jobmesh/pkg/models"
)

// bidStreamBuffer is how many bids a subscriber can lag behind before it
// starts missing them.
const bidStreamBuffer = 16

// bidBroadcaster fans incoming bids out to live per-job subscribers, such as
// websocket streams. Delivery is best-effort: sends never block bid intake,
// so a subscriber that stops draining misses bids rather than stalling the
// marketplace. The store remains the authoritative bid record.
type bidBroadcaster struct {
	mtx  sync.Mutex
	subs map[string]map[int]chan models.Bid
	next int
}

func newBidBroadcaster() *bidBroadcaster {
	return &bidBroadcaster{
		subs: make(map[string]map[int]chan models.Bid),
	}
}

// Subscribe returns a channel of bids for the job and a cancel function
// that must be called to release the stream.
func (b *bidBroadcaster) Subscribe(jobID string) (<-chan models.Bid, func()) {
	b.mtx.Lock()
	defer b.mtx.Unlock()

	id := b.next
	b.next++
	ch := make(chan models.Bid, bidStreamBuffer)
	if b.subs[jobID] == nil {
		b.subs[jobID] = make(map[int]chan models.Bid)
	}
	b.subs[jobID][id] = ch

	cancel := func() {
		b.mtx.Lock()
		defer b.mtx.Unlock()
		if sub, ok := b.subs[jobID][id]; ok {
			delete(b.subs[jobID], id)
			if len(b.subs[jobID]) == 0 {
				delete(b.subs, jobID)
			}
			close(sub)
		}
	}
	return ch, cancel
}

func (b *bidBroadcaster) Publish(bid models.Bid) {
	b.mtx.Lock()
	defer b.mtx.Unlock()

	for _, ch := range b.subs[bid.JobID] {
		select {
		case ch <- bid:
		default:
			// subscriber is lagging, drop
		}
	}
}
