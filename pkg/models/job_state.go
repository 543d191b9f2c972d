package models

// JobStateType is the current position of a job in its lifecycle. The state
// machine is strictly monotonic: a job never returns to an earlier state.
type JobStateType int

const (
	JobStateUndefined JobStateType = iota // must be first

	// Job has been accepted by the store but bidding has not opened yet.
	JobStatePending

	// Job is announced and accepting bids.
	JobStateBidding

	// A winning bid has been chosen and the job handed to that executor.
	JobStateAssigned

	// The assigned executor reported it has started running the job.
	JobStateRunning

	// Terminal states.
	JobStateCompleted
	JobStateFailed
	JobStateCancelled

	// Bidding window closed with no acceptable bid.
	JobStateBiddingExpired
)

var jobStateNames = map[JobStateType]string{
	JobStateUndefined:      "Undefined",
	JobStatePending:        "Pending",
	JobStateBidding:        "Bidding",
	JobStateAssigned:       "Assigned",
	JobStateRunning:        "Running",
	JobStateCompleted:      "Completed",
	JobStateFailed:         "Failed",
	JobStateCancelled:      "Cancelled",
	JobStateBiddingExpired: "BiddingExpired",
}

func (s JobStateType) String() string {
	if name, ok := jobStateNames[s]; ok {
		return name
	}
	return "Undefined"
}

func (s JobStateType) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *JobStateType) UnmarshalText(text []byte) error {
	name := string(text)
	for typ, typName := range jobStateNames {
		if typName == name {
			*s = typ
			return nil
		}
	}
	*s = JobStateUndefined
	return nil
}

func ParseJobStateType(name string) (JobStateType, bool) {
	for typ, typName := range jobStateNames {
		if typName == name && typ != JobStateUndefined {
			return typ, true
		}
	}
	return JobStateUndefined, false
}

// IsTerminal returns true if no further transition out of this state is
// possible.
func (s JobStateType) IsTerminal() bool {
	switch s {
	case JobStateCompleted, JobStateFailed, JobStateCancelled, JobStateBiddingExpired:
		return true
	}
	return false
}

func (s JobStateType) IsUndefined() bool {
	return s == JobStateUndefined
}

// AcceptsBids returns true while new bids may still be recorded against the
// job. Bids submitted in any other state are rejected, not dropped.
func (s JobStateType) AcceptsBids() bool {
	return s == JobStatePending || s == JobStateBidding
}

// validTransitions encodes the forward-only lifecycle. Cancellation is
// reachable from every non-terminal state. Assigned jobs may complete
// without passing through Running: receipts and status reports travel on
// separate topics, so a verified receipt can land before the running
// report.
var validTransitions = map[JobStateType][]JobStateType{
	JobStatePending:  {JobStateBidding, JobStateCancelled},
	JobStateBidding:  {JobStateAssigned, JobStateBiddingExpired, JobStateCancelled},
	JobStateAssigned: {JobStateRunning, JobStateCompleted, JobStateFailed, JobStateCancelled},
	JobStateRunning:  {JobStateCompleted, JobStateFailed, JobStateCancelled},
}

// CanTransitionTo reports whether moving from s to next is a legal forward
// transition.
func (s JobStateType) CanTransitionTo(next JobStateType) bool {
	for _, allowed := range validTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// JobState is the single mutable record a job owns: its lifecycle position
// plus the worker it is pinned to once assigned and the reason it stopped,
// if it stopped abnormally. Readers must never observe a state/worker pair
// that never existed, so the store mutates this under one critical section.
type JobState struct {
	StateType JobStateType `json:"StateType"`
	// Worker is the executor the job is assigned to or running on. Empty
	// before assignment.
	Worker string `json:"Worker,omitempty"`
	// Reason records why a job failed or was cancelled.
	Reason string `json:"Reason,omitempty"`
}

func NewJobState(stateType JobStateType) JobState {
	return JobState{StateType: stateType}
}
