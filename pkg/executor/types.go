package executor

import (
	"context"
	"time"

	"github.com/jobmesh-project/jobmesh/pkg/models"
)

// ExecutionRequest carries everything an engine needs to run a unit of work.
type ExecutionRequest struct {
	JobID       string
	ExecutionID string

	// CodeRef is the content address of the program, recorded into the
	// receipt. Code holds the resolved bytes.
	CodeRef string
	Code    []byte

	// Entrypoint is the exported function to invoke. Empty means the
	// engine's default.
	Entrypoint string
	Arguments  []string

	// Limits caps the resources the execution may consume. A zero value
	// means unlimited.
	Limits  models.Resources
	Timeout time.Duration
}

// ExecutionResult reports the outcome of a run. A failed program still
// yields a result; only infrastructure faults surface as errors.
type ExecutionResult struct {
	Success bool
	// Stdout and Stderr are capped captures of the program's output.
	Stdout string
	Stderr string
	// ErrorMessage describes why Success is false, when it is.
	ErrorMessage string

	Metrics models.ExecutionMetrics
	Usage   models.Resources
}

// Engine runs programs and reports measured outcomes.
type Engine interface {
	Run(ctx context.Context, request ExecutionRequest) (ExecutionResult, error)
}
