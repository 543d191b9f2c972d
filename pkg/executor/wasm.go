package executor

import (
	"bytes"
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"github.com/tetratelabs/wazero/sys"

	"github.com/jobmesh-project/jobmesh/pkg/models"
	"github.com/jobmesh-project/jobmesh/pkg/system"
)

const (
	// wasmPageSize is fixed by the WebAssembly spec.
	wasmPageSize = 65536

	// DefaultEntrypoint is the WASI command entrypoint.
	DefaultEntrypoint = "_start"

	// maxOutputCapture caps how much stdout/stderr is retained per run.
	maxOutputCapture = 1 * 1024 * 1024
)

type WasmEngineParams struct {
	// ManaPerSecond prices wall-clock time. Zero leaves the receipt's mana
	// cost unset so no debit happens downstream.
	ManaPerSecond uint64
	Clock         clock.Clock
}

// WasmEngine runs WebAssembly programs in-process on wazero. Memory limits
// are enforced by the runtime in whole pages; timeouts through context
// cancellation.
type WasmEngine struct {
	manaPerSecond uint64
	clock         clock.Clock
}

func NewWasmEngine(params WasmEngineParams) *WasmEngine {
	if params.Clock == nil {
		params.Clock = clock.New()
	}
	return &WasmEngine{
		manaPerSecond: params.ManaPerSecond,
		clock:         params.Clock,
	}
}

func (e *WasmEngine) Run(ctx context.Context, request ExecutionRequest) (ExecutionResult, error) {
	ctx, span := system.GetTracer().Start(ctx, "pkg/executor.WasmEngine.Run")
	defer span.End()

	if len(request.Code) == 0 {
		return ExecutionResult{}, errors.New("no code to execute")
	}
	if request.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, request.Timeout)
		defer cancel()
	}

	engineConfig := wazero.NewRuntimeConfig().WithCloseOnContextDone(true)
	if request.Limits.Memory > 0 {
		pageLimit := request.Limits.Memory / wasmPageSize
		if request.Limits.Memory%wasmPageSize != 0 {
			pageLimit++
		}
		engineConfig = engineConfig.WithMemoryLimitPages(uint32(pageLimit))
	}

	runtime := wazero.NewRuntimeWithConfig(ctx, engineConfig)
	defer func() {
		if err := runtime.Close(ctx); err != nil {
			log.Ctx(ctx).Warn().Err(err).Str("ExecutionID", request.ExecutionID).
				Msg("failed to close wasm runtime")
		}
	}()

	wasi_snapshot_preview1.MustInstantiate(ctx, runtime)

	compiled, err := runtime.CompileModule(ctx, request.Code)
	if err != nil {
		return ExecutionResult{}, errors.Wrap(err, "compiling wasm module")
	}

	var stdout, stderr bytes.Buffer
	moduleConfig := wazero.NewModuleConfig().
		WithStdout(limitWriter{&stdout}).
		WithStderr(limitWriter{&stderr}).
		WithArgs(append([]string{request.ExecutionID}, request.Arguments...)...).
		WithStartFunctions() // invoke the entrypoint explicitly below

	started := e.clock.Now()
	module, err := runtime.InstantiateModule(ctx, compiled, moduleConfig)
	if err != nil {
		// A WASI program that calls proc_exit during _start surfaces here.
		return e.finish(request, started, stdout, stderr, 0, err)
	}

	entrypoint := request.Entrypoint
	if entrypoint == "" {
		entrypoint = DefaultEntrypoint
	}
	fn := module.ExportedFunction(entrypoint)
	if fn == nil {
		return ExecutionResult{}, errors.Errorf("wasm module does not export %q", entrypoint)
	}

	_, err = fn.Call(ctx)
	peakMemory := uint64(0)
	if mem := module.Memory(); mem != nil {
		peakMemory = uint64(mem.Size())
	}
	return e.finish(request, started, stdout, stderr, peakMemory, err)
}

// finish folds the call outcome into a result. A non-zero WASI exit code is
// a failed execution, not an engine error.
func (e *WasmEngine) finish(request ExecutionRequest, started time.Time,
	stdout, stderr bytes.Buffer, peakMemory uint64, callErr error) (ExecutionResult, error) {
	wallTime := e.clock.Since(started)

	result := ExecutionResult{
		Success: callErr == nil,
		Stdout:  stdout.String(),
		Stderr:  stderr.String(),
		Metrics: models.ExecutionMetrics{
			IOBytes:    uint64(stdout.Len() + stderr.Len()),
			WallTimeMS: uint64(wallTime.Milliseconds()),
		},
		Usage: models.Resources{Memory: peakMemory},
	}
	if e.manaPerSecond > 0 {
		cost := uint64(wallTime.Seconds()*float64(e.manaPerSecond)) + 1
		result.Metrics.ManaCost = &cost
	}

	if callErr != nil {
		exitErr := &sys.ExitError{}
		if errors.As(callErr, &exitErr) {
			if exitErr.ExitCode() == 0 {
				result.Success = true
			} else {
				result.ErrorMessage = exitErr.Error()
			}
			return result, nil
		}
		if errors.Is(callErr, context.DeadlineExceeded) {
			result.ErrorMessage = "execution timed out"
			return result, nil
		}
		return result, errors.Wrap(callErr, "invoking wasm entrypoint")
	}
	return result, nil
}

// limitWriter discards output beyond the capture cap instead of failing the
// guest's write.
type limitWriter struct {
	buf *bytes.Buffer
}

func (w limitWriter) Write(p []byte) (int, error) {
	remaining := maxOutputCapture - w.buf.Len()
	if remaining <= 0 {
		return len(p), nil
	}
	if len(p) > remaining {
		_, _ = w.buf.Write(p[:remaining])
		return len(p), nil
	}
	return w.buf.Write(p)
}

var _ Engine = (*WasmEngine)(nil)
