package orchestrator

import "fmt"

// ErrNoEligibleBids is returned by Assign when every recorded bid was
// disqualified.
type ErrNoEligibleBids struct {
	JobID string
}

func NewErrNoEligibleBids(jobID string) ErrNoEligibleBids {
	return ErrNoEligibleBids{JobID: jobID}
}

func (e ErrNoEligibleBids) Error() string {
	return "no eligible bids for job " + e.JobID
}

// ErrWrongExecutor rejects a message from an executor the job is not pinned
// to.
type ErrWrongExecutor struct {
	JobID    string
	Expected string
	Actual   string
}

func NewErrWrongExecutor(jobID, expected, actual string) ErrWrongExecutor {
	return ErrWrongExecutor{JobID: jobID, Expected: expected, Actual: actual}
}

func (e ErrWrongExecutor) Error() string {
	return fmt.Sprintf("job %s is pinned to executor %s, not %s", e.JobID, e.Expected, e.Actual)
}
