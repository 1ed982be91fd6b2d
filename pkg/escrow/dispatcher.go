package escrow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"intent-swap/pkg/swap"
)

// DefaultJobTimeout caps how long a dispatched worker may run.
const DefaultJobTimeout = 120 * time.Second

// OutputFormatJSON is the response format reported for worker output.
const OutputFormatJSON = "Json"

// Dispatcher hands a swap job to an off-chain worker. Implementations must
// eventually deliver the worker's response to the ledger's result handler.
type Dispatcher interface {
	Dispatch(ctx context.Context, requestID uint64, job swap.Job)
}

// DispatcherFunc adapts a function to the Dispatcher interface.
type DispatcherFunc func(ctx context.Context, requestID uint64, job swap.Job)

func (f DispatcherFunc) Dispatch(ctx context.Context, requestID uint64, job swap.Job) {
	f(ctx, requestID, job)
}

// ResultHandler receives the worker's response for a dispatched request.
// dispatchErr is non-nil when the worker could not be run at all.
type ResultHandler func(ctx context.Context, requestID uint64, resp *ExecutionResponse, dispatchErr error)

// ExecDispatcher runs the worker as a subprocess, writing the job to its
// stdin and reading one JSON result from its stdout.
type ExecDispatcher struct {
	Command string
	Args    []string
	Timeout time.Duration
	Handler ResultHandler
	Log     zerolog.Logger
}

// NewExecDispatcher builds a dispatcher around the given worker command.
func NewExecDispatcher(command string, args []string, handler ResultHandler, logger zerolog.Logger) *ExecDispatcher {
	return &ExecDispatcher{
		Command: command,
		Args:    args,
		Timeout: DefaultJobTimeout,
		Handler: handler,
		Log:     logger,
	}
}

// Dispatch runs the worker in the background and forwards its response to
// the handler when it finishes.
func (d *ExecDispatcher) Dispatch(ctx context.Context, requestID uint64, job swap.Job) {
	go func() {
		resp, err := d.run(ctx, requestID, job)
		d.Handler(ctx, requestID, resp, err)
	}()
}

func (d *ExecDispatcher) run(ctx context.Context, requestID uint64, job swap.Job) (*ExecutionResponse, error) {
	payload, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("failed to encode job: %w", err)
	}

	timeout := d.Timeout
	if timeout <= 0 {
		timeout = DefaultJobTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	d.Log.Info().
		Uint64("request_id", requestID).
		Str("command", d.Command).
		Msg("dispatching swap job to worker")

	cmd := exec.CommandContext(runCtx, d.Command, d.Args...)
	cmd.Stdin = bytes.NewReader(payload)
	cmd.Stderr = os.Stderr

	var stdout bytes.Buffer
	cmd.Stdout = &stdout

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("worker failed: %w", err)
	}

	data := strings.TrimSpace(stdout.String())
	return &ExecutionResponse{
		Success: true,
		Output:  &ExecutionOutput{Data: data, Format: OutputFormatJSON},
	}, nil
}
