package models

import "time"

// Transport-agnostic protocol envelopes. Versioned by name so incompatible
// changes get a new type rather than a silent schema drift.

// JobAnnouncementV1 invites executors to bid on a job.
type JobAnnouncementV1 struct {
	Job JobRequest `json:"Job"`
	// BiddingDeadline is when the originator stops accepting bids.
	BiddingDeadline time.Time `json:"BiddingDeadline"`
}

// JobInterestV1 carries an executor's bid back to the originator.
type JobInterestV1 struct {
	Bid Bid `json:"Bid"`
}

// AssignJobV1 tells the winning executor to start work.
type AssignJobV1 struct {
	JobID          string     `json:"JobID"`
	Originator     string     `json:"Originator"`
	TargetExecutor string     `json:"TargetExecutor"`
	WinningBidID   string     `json:"WinningBidID"`
	JobDetails     JobRequest `json:"JobDetails"`
}

// JobStatusUpdateV1 reports lifecycle progress from the executor.
type JobStatusUpdateV1 struct {
	JobID    string       `json:"JobID"`
	Executor string       `json:"Executor"`
	Status   JobStateType `json:"Status"`
	Reason   string       `json:"Reason,omitempty"`
}

// ExecutionReceiptAvailableV1 announces where a receipt can be fetched.
// ReceiptAddress may be the locally computed address when anchoring failed;
// Anchored tells receivers whether the address is backed by the DAG store.
type ExecutionReceiptAvailableV1 struct {
	JobID          string `json:"JobID"`
	Executor       string `json:"Executor"`
	ReceiptAddress string `json:"ReceiptAddress"`
	Anchored       bool   `json:"Anchored"`
}
