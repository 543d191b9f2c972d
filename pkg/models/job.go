package models

import (
	"time"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
	"github.com/pkg/errors"
)

// jobCidBuilder wraps JSON bytes of a request as a versioned content
// identifier. The same builder is used for receipts so every artifact in the
// system shares one address format.
var jobCidBuilder = cid.V1Builder{Codec: cid.DagJSON, MhType: multihash.SHA2_256}

// JobRequest describes a job to be executed on the network. It is immutable
// once created: the ID is the content address of the remaining fields, so
// any mutation would orphan the ID. Everything else in the system refers to
// the job by ID only.
type JobRequest struct {
	// ID is the content hash of the rest of the request. Always excluded
	// from the bytes that are hashed.
	ID string `json:"ID,omitempty"`

	// Originator is the identity of the node that submitted the job.
	Originator string `json:"Originator"`

	// CodeRef points at the WASM module (or other bytecode) to execute,
	// typically itself a content address.
	CodeRef string `json:"CodeRef"`

	// Resources the job needs. Bids whose estimate doesn't cover these are
	// disqualified outright.
	Resources Resources `json:"Resources"`

	// RequiredMana is the minimum regenerating-credit balance a bidder must
	// hold to be eligible. Zero means no mana gating.
	RequiredMana uint64 `json:"RequiredMana,omitempty"`

	// Community scopes mana accounting for this job.
	Community string `json:"Community,omitempty"`

	// Deadline, if set, is when the job result stops being useful. Used for
	// the on-time reputation signal.
	Deadline *time.Time `json:"Deadline,omitempty"`

	// Timestamp is when the originator created the request. Part of the
	// hashed content, so resubmitting the same job later yields a new ID.
	Timestamp time.Time `json:"Timestamp"`
}

// ContentID derives the content address of the request. The ID field itself
// is cleared before hashing. Deterministic: identical content yields
// identical IDs.
func (j JobRequest) ContentID() (cid.Cid, error) {
	clone := j
	clone.ID = ""
	payload, err := JSONMarshalWithMax(clone)
	if err != nil {
		return cid.Undef, errors.Wrap(err, "serializing job request for hashing")
	}
	return jobCidBuilder.Sum(payload)
}

// Normalize fills in the derived ID field. Must be called before the request
// is stored or announced.
func (j *JobRequest) Normalize() error {
	id, err := j.ContentID()
	if err != nil {
		return err
	}
	j.ID = id.String()
	return nil
}

func (j JobRequest) Validate() error {
	if j.Originator == "" {
		return errors.New("job request is missing an originator")
	}
	if j.CodeRef == "" {
		return errors.New("job request is missing a code reference")
	}
	if j.Resources.IsZero() {
		return errors.New("job request declares no resource requirements")
	}
	if j.ID != "" {
		expected, err := j.ContentID()
		if err != nil {
			return err
		}
		if expected.String() != j.ID {
			return errors.Errorf("job request ID %s does not match content %s", j.ID, expected)
		}
	}
	return nil
}

// Job pairs an immutable request with its single mutable state record, as
// held by the job store.
type Job struct {
	Request JobRequest `json:"Request"`
	State   JobState   `json:"State"`

	Revision   uint64 `json:"Revision"`
	CreateTime int64  `json:"CreateTime"`
	ModifyTime int64  `json:"ModifyTime"`
}

func (j Job) ID() string {
	return j.Request.ID
}

func (j Job) IsTerminal() bool {
	return j.State.StateType.IsTerminal()
}
