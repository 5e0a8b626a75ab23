// Package dispatch coordinates jobs through the materialize, slot wait,
// execute and finalize phases, alone or as index-aligned batches.
package dispatch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/lensworks/mediagate/internal/domain"
	"github.com/lensworks/mediagate/internal/platform/requestid"
	"github.com/lensworks/mediagate/internal/registry"
	"github.com/lensworks/mediagate/internal/slots"
	"github.com/lensworks/mediagate/internal/staging"
	"github.com/lensworks/mediagate/internal/transformer"
)

// Runner drives one job from request to outcome. Run always returns a
// terminal JobOutcome; errors along the way become that job's Failure,
// never anyone else's.
type Runner struct {
	Registry     *registry.Registry
	Staging      staging.Store
	Materializer *staging.Materializer
	Slots        *slots.Pool
	// JobTimeout bounds one job end to end. Zero disables the
	// per-job deadline; the batch deadline still applies.
	JobTimeout time.Duration
	Logger     *slog.Logger
}

func (r *Runner) Run(ctx context.Context, req domain.Request) domain.JobOutcome {
	jobID := uuid.NewString()
	start := time.Now()
	logger := r.logger().With("job_id", requestid.Short(jobID), "operation", req.Operation)

	outcome := domain.JobOutcome{JobID: jobID, Operation: req.Operation}

	op, err := r.Registry.Resolve(req.Operation)
	if err != nil {
		return r.fail(logger, outcome, start, err, "")
	}
	outcome.MediaType = op.MediaType

	jobCtx := ctx
	cancel := func() {}
	if r.JobTimeout > 0 {
		jobCtx, cancel = context.WithTimeout(ctx, r.JobTimeout)
	}
	defer cancel()

	// Everything staged for this job is destroyed on the way out, no
	// matter how the job ends. Cleanup trouble downgrades to a warning
	// and never overturns the outcome.
	var staged []staging.Resource
	defer func() { r.cleanup(ctx, logger, staged) }()

	logger.Debug("job materializing")
	inputs, inputResources, err := r.materialize(jobCtx, op, req, jobID)
	staged = append(staged, inputResources...)
	if err != nil {
		return r.fail(logger, outcome, start, err, "")
	}

	logger.Debug("job waiting for slot")
	slot, err := r.Slots.Acquire(jobCtx)
	if err != nil {
		return r.fail(logger, outcome, start, err, "")
	}
	defer slot.Release()

	logger.Debug("job executing")
	output := r.Staging.Allocate(staging.ResourceKey("output", jobID, op.OutputExt))
	staged = append(staged, output)
	diagnostics, err := op.Transformer.Transform(jobCtx, transformer.Invocation{
		JobID:   jobID,
		Inputs:  inputs,
		Output:  output,
		Staging: r.Staging,
	})
	slot.Release()
	if err != nil {
		if jobCtx.Err() != nil {
			return r.fail(logger, outcome, start, fmt.Errorf("%w: %w", domain.ErrExecution, jobCtx.Err()), diagnostics)
		}
		return r.fail(logger, outcome, start, fmt.Errorf("%w: %v", domain.ErrExecution, err), diagnostics)
	}

	logger.Debug("job finalizing")
	finalizeCtx := context.WithoutCancel(ctx)
	info, err := r.Staging.Stat(finalizeCtx, output.Key)
	if err != nil {
		return r.fail(logger, outcome, start, fmt.Errorf("%w: transformer wrote no output", domain.ErrExecution), diagnostics)
	}
	if info.Size == 0 {
		return r.fail(logger, outcome, start, fmt.Errorf("%w: transformer wrote empty output", domain.ErrExecution), diagnostics)
	}
	data, err := r.readOutput(finalizeCtx, output.Key)
	if err != nil {
		return r.fail(logger, outcome, start, fmt.Errorf("read output: %w", err), diagnostics)
	}

	outcome.Output = data
	outcome.Elapsed = time.Since(start)
	logger.Info("job succeeded", "output_bytes", len(data), "elapsed_ms", outcome.Elapsed.Milliseconds())
	return outcome
}

// materialize stages every input role in parallel. The first failure
// cancels the rest; whatever was already staged is returned so the
// caller can clean it up.
func (r *Runner) materialize(ctx context.Context, op registry.Operation, req domain.Request, jobID string) (map[string]staging.Resource, []staging.Resource, error) {
	var mu sync.Mutex
	inputs := make(map[string]staging.Resource, len(op.InputRoles))
	var staged []staging.Resource

	refs := make(map[string]domain.ImageRef, len(op.InputRoles))
	for _, role := range op.InputRoles {
		ref, ok := req.Inputs[role]
		if !ok {
			return inputs, staged, fmt.Errorf("%w: missing input %q", domain.ErrInvalidRequest, role)
		}
		refs[role] = ref
	}

	g, gctx := errgroup.WithContext(ctx)
	for role, ref := range refs {
		g.Go(func() error {
			res, err := r.Materializer.Materialize(gctx, ref, role, jobID, op.InputExt)
			if err != nil {
				return err
			}
			mu.Lock()
			inputs[role] = res
			staged = append(staged, res)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return inputs, staged, err
	}
	return inputs, staged, nil
}

func (r *Runner) readOutput(ctx context.Context, key string) ([]byte, error) {
	rc, err := r.Staging.Open(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func (r *Runner) cleanup(ctx context.Context, logger *slog.Logger, staged []staging.Resource) {
	cleanupCtx := context.WithoutCancel(ctx)
	for _, res := range staged {
		if err := r.Staging.Remove(cleanupCtx, res.Key); err != nil {
			logger.Warn("cleanup_warning", "key", res.Key, "error", err)
		}
	}
}

func (r *Runner) fail(logger *slog.Logger, outcome domain.JobOutcome, start time.Time, err error, diagnostics string) domain.JobOutcome {
	failure := domain.FailureFromErr(err)
	failure.Diagnostics = diagnostics
	outcome.Output = nil
	outcome.Failure = failure
	outcome.Elapsed = time.Since(start)
	logger.Warn("job failed", "kind", failure.Kind, "error", err, "elapsed_ms", outcome.Elapsed.Milliseconds())
	return outcome
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}
