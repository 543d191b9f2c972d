package reputation

import "context"

// Directory stores reputation profiles keyed by executor identity and
// accepts reputation-affecting event records. Implementations may be local,
// cached, or remote.
type Directory interface {
	// GetProfile returns the profile for the node, or ErrProfileNotFound.
	GetProfile(ctx context.Context, nodeID string) (Profile, error)
	// SubmitEvent records one reputation-affecting event.
	SubmitEvent(ctx context.Context, event UpdateEvent) error
}

// ErrProfileNotFound is returned when the directory has no record of the
// node. Distinct from a directory being unreachable: an unknown node may
// still be acceptable for jobs that don't gate on mana.
type ErrProfileNotFound struct {
	NodeID string
}

func NewErrProfileNotFound(nodeID string) ErrProfileNotFound {
	return ErrProfileNotFound{NodeID: nodeID}
}

func (e ErrProfileNotFound) Error() string {
	return "reputation profile not found: " + e.NodeID
}
