package models

import "fmt"

// Resources describes an amount of compute resources, either the
// requirements a job declares or the capacity an executor commits to in a
// bid. CPU is in fractional cores, the rest are bytes (or bytes per second
// for bandwidth).
type Resources struct {
	CPU       float64 `json:"CPU,omitempty"`
	Memory    uint64  `json:"Memory,omitempty"`
	Disk      uint64  `json:"Disk,omitempty"`
	Bandwidth uint64  `json:"Bandwidth,omitempty"`
}

// Covers returns true if r is at least as large as other in every dimension.
// A bid whose estimate does not cover the job's requirements is never
// selectable.
func (r Resources) Covers(other Resources) bool {
	return r.CPU >= other.CPU &&
		r.Memory >= other.Memory &&
		r.Disk >= other.Disk &&
		r.Bandwidth >= other.Bandwidth
}

func (r Resources) IsZero() bool {
	return r.CPU == 0 && r.Memory == 0 && r.Disk == 0 && r.Bandwidth == 0
}

// MatchRatio scores how tightly an offered amount fits a requirement, in
// (0, 1]. An estimate exactly matching the requirement scores 1; generous
// over-provisioning scores lower so that efficient bids are preferred.
// Dimensions the job doesn't ask for are ignored. Only meaningful when the
// offer Covers the requirement.
func (r Resources) MatchRatio(required Resources) float64 {
	var total float64
	var dims int
	if required.CPU > 0 && r.CPU > 0 {
		total += required.CPU / r.CPU
		dims++
	}
	if required.Memory > 0 && r.Memory > 0 {
		total += float64(required.Memory) / float64(r.Memory)
		dims++
	}
	if required.Disk > 0 && r.Disk > 0 {
		total += float64(required.Disk) / float64(r.Disk)
		dims++
	}
	if required.Bandwidth > 0 && r.Bandwidth > 0 {
		total += float64(required.Bandwidth) / float64(r.Bandwidth)
		dims++
	}
	if dims == 0 {
		return 1
	}
	return total / float64(dims)
}

func (r Resources) String() string {
	return fmt.Sprintf("{CPU: %v, Memory: %d, Disk: %d, Bandwidth: %d}",
		r.CPU, r.Memory, r.Disk, r.Bandwidth)
}
