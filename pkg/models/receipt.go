package models

import "time"

// ExecutionMetrics are the resource-usage measurements an executor reports
// for one job attempt.
type ExecutionMetrics struct {
	// HostCalls is the number of host-function invocations the job made.
	HostCalls uint64 `json:"HostCalls,omitempty"`
	// IOBytes is total bytes read and written.
	IOBytes uint64 `json:"IOBytes,omitempty"`
	// WallTimeMS is wall-clock execution time in milliseconds.
	WallTimeMS uint64 `json:"WallTimeMS,omitempty"`
	// ManaCost, when present and positive, is debited from the issuer's
	// mana pool after the receipt is verified. Absent or zero means no
	// ledger write happens at all.
	ManaCost *uint64 `json:"ManaCost,omitempty"`
}

// ExecutionReceipt is the signed, content-addressed record an executor
// produces for a completed or failed job attempt. Immutable after signing.
//
// Two fields need care:
//   - Signature covers only the canonical signing payload (see
//     pkg/receipt), never itself.
//   - ReceiptCID is filled in only after content-addressing succeeds and is
//     always excluded from the bytes that are hashed or signed, so the
//     receipt can carry its own address without self-reference.
type ExecutionReceipt struct {
	ID string `json:"ID"`

	// Issuer is the executor's identity. Must be parseable into a public
	// key for Verify to succeed.
	Issuer string `json:"Issuer"`

	JobID      string `json:"JobID"`
	ProposalID string `json:"ProposalID,omitempty"`
	CodeRef    string `json:"CodeRef"`

	// Success distinguishes a completed run from a failed attempt; both
	// produce receipts.
	Success bool `json:"Success"`

	Metrics       ExecutionMetrics `json:"Metrics"`
	ResourceUsage Resources        `json:"ResourceUsage,omitempty"`

	// AnchoredRefs are content addresses of artifacts (outputs, logs) the
	// executor anchored alongside the receipt.
	AnchoredRefs []string `json:"AnchoredRefs,omitempty"`

	Timestamp time.Time `json:"Timestamp"`

	Signature []byte `json:"Signature,omitempty"`

	ReceiptCID string `json:"ReceiptCID,omitempty"`
}
