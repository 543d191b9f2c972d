package reputation

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// CachingDirectory wraps another directory with a TTL cache so the selector
// doesn't hammer the directory once per bid. Submitting an event for a node
// invalidates its cache entry. An eviction sweep runs on a fixed-interval
// timer independent of request handling and takes the lock only per sweep,
// never across tick boundaries.
type CachingDirectory struct {
	inner Directory
	ttl   time.Duration
	clock clock.Clock

	mtx     sync.RWMutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	profile   Profile
	expiresAt time.Time
}

type CachingDirectoryParams struct {
	Inner Directory
	TTL   time.Duration
	// EvictionInterval is how often expired entries are swept out. Zero
	// disables the sweeper; lookups still treat expired entries as misses.
	EvictionInterval time.Duration
	Clock            clock.Clock
}

func NewCachingDirectory(ctx context.Context, params CachingDirectoryParams) *CachingDirectory {
	if params.Clock == nil {
		params.Clock = clock.New()
	}
	if params.TTL == 0 {
		params.TTL = time.Minute
	}
	d := &CachingDirectory{
		inner:   params.Inner,
		ttl:     params.TTL,
		clock:   params.Clock,
		entries: make(map[string]cacheEntry),
	}
	if params.EvictionInterval > 0 {
		// the ticker must exist before this returns so callers advancing a
		// mock clock cannot outrun the sweeper's registration
		ticker := d.clock.Ticker(params.EvictionInterval)
		go d.evictLoop(ctx, ticker)
	}
	return d
}

func (d *CachingDirectory) GetProfile(ctx context.Context, nodeID string) (Profile, error) {
	d.mtx.RLock()
	entry, ok := d.entries[nodeID]
	d.mtx.RUnlock()
	if ok && d.clock.Now().Before(entry.expiresAt) {
		return entry.profile, nil
	}

	profile, err := d.inner.GetProfile(ctx, nodeID)
	if err != nil {
		return Profile{}, err
	}

	d.mtx.Lock()
	d.entries[nodeID] = cacheEntry{
		profile:   profile,
		expiresAt: d.clock.Now().Add(d.ttl),
	}
	d.mtx.Unlock()
	return profile, nil
}

func (d *CachingDirectory) SubmitEvent(ctx context.Context, event UpdateEvent) error {
	if err := d.inner.SubmitEvent(ctx, event); err != nil {
		return err
	}
	d.mtx.Lock()
	delete(d.entries, event.NodeID)
	d.mtx.Unlock()
	return nil
}

func (d *CachingDirectory) evictLoop(ctx context.Context, ticker *clock.Ticker) {
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.evictExpired()
		}
	}
}

func (d *CachingDirectory) evictExpired() {
	now := d.clock.Now()
	d.mtx.Lock()
	defer d.mtx.Unlock()
	for nodeID, entry := range d.entries {
		if !now.Before(entry.expiresAt) {
			delete(d.entries, nodeID)
		}
	}
}

// cachedCount is a test hook.
func (d *CachingDirectory) cachedCount() int {
	d.mtx.RLock()
	defer d.mtx.RUnlock()
	return len(d.entries)
}

var _ Directory = (*CachingDirectory)(nil)
