package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Bid is an executor's offer to run a job. Immutable once submitted; whether
// it ultimately won is derived from the job record (the store tracks one
// winning bid per job), never stored as mutable bid state, so divergent
// views of the outcome are impossible.
type Bid struct {
	ID    string `json:"ID"`
	JobID string `json:"JobID"`

	// Bidder is the identity of the executor making the offer.
	Bidder string `json:"Bidder"`

	// Price is the token amount the bidder asks to run the job.
	Price uint64 `json:"Price"`

	// Estimate is the resource capacity the bidder commits to. Must cover
	// the job's requirements to be selectable.
	Estimate Resources `json:"Estimate"`

	// ReputationScore is an optional self-reported snapshot, used only when
	// the directory has no record of the bidder.
	ReputationScore *float64 `json:"ReputationScore,omitempty"`

	// Metadata carries optional node details (arch, region, ...).
	Metadata map[string]string `json:"Metadata,omitempty"`

	// Sequence is assigned by the job store in submission order and breaks
	// otherwise perfect ties deterministically.
	Sequence uint64 `json:"Sequence,omitempty"`

	CreateTime time.Time `json:"CreateTime,omitempty"`
}

func (b *Bid) Normalize() {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
}

func (b Bid) Validate() error {
	if b.JobID == "" {
		return errors.New("bid is missing a job ID")
	}
	if b.Bidder == "" {
		return errors.New("bid is missing a bidder identity")
	}
	if b.Estimate.IsZero() {
		return errors.New("bid is missing a resource estimate")
	}
	return nil
}
