package reputation

import (
	"context"
	"sync"
)

// InMemoryDirectory is a directory backed by a shared map, used for tests
// and single-node deployments.
type InMemoryDirectory struct {
	profiles map[string]Profile
	mtx      sync.RWMutex
}

func NewInMemoryDirectory() *InMemoryDirectory {
	return &InMemoryDirectory{
		profiles: make(map[string]Profile),
	}
}

// SetProfile seeds or replaces a profile wholesale, e.g. when syncing from
// an authoritative source.
func (d *InMemoryDirectory) SetProfile(profile Profile) {
	d.mtx.Lock()
	defer d.mtx.Unlock()
	profile.ComputedScore = profile.ComputeScore()
	d.profiles[profile.NodeID] = profile
}

func (d *InMemoryDirectory) GetProfile(_ context.Context, nodeID string) (Profile, error) {
	d.mtx.RLock()
	defer d.mtx.RUnlock()

	profile, ok := d.profiles[nodeID]
	if !ok {
		return Profile{}, NewErrProfileNotFound(nodeID)
	}
	return profile, nil
}

func (d *InMemoryDirectory) SubmitEvent(_ context.Context, event UpdateEvent) error {
	d.mtx.Lock()
	defer d.mtx.Unlock()

	profile, ok := d.profiles[event.NodeID]
	if !ok {
		profile = Profile{NodeID: event.NodeID}
	}
	profile.Apply(event)
	d.profiles[event.NodeID] = profile
	return nil
}

var _ Directory = (*InMemoryDirectory)(nil)
