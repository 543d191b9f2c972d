package executor

import (
	"context"

	"github.com/jobmesh-project/jobmesh/pkg/models"
)

// NoopEngineConfig overrides the canned behavior of a NoopEngine.
type NoopEngineConfig struct {
	// RunHook, if set, replaces the default behavior entirely.
	RunHook func(ctx context.Context, request ExecutionRequest) (ExecutionResult, error)
}

// NoopEngine reports success without running anything. Used in tests and as
// a placeholder engine for nodes that only coordinate.
type NoopEngine struct {
	config NoopEngineConfig
}

func NewNoopEngine() *NoopEngine {
	return &NoopEngine{}
}

func NewNoopEngineWithConfig(config NoopEngineConfig) *NoopEngine {
	return &NoopEngine{config: config}
}

func (e *NoopEngine) Run(ctx context.Context, request ExecutionRequest) (ExecutionResult, error) {
	if e.config.RunHook != nil {
		return e.config.RunHook(ctx, request)
	}
	return ExecutionResult{
		Success: true,
		Metrics: models.ExecutionMetrics{},
		Usage:   request.Limits,
	}, nil
}

var _ Engine = (*NoopEngine)(nil)
