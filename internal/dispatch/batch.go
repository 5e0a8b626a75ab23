package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lensworks/mediagate/internal/domain"
	"github.com/lensworks/mediagate/internal/platform/requestid"
)

// Recorder persists job outcomes after a batch completes. Failures to
// record must stay invisible to callers.
type Recorder interface {
	Record(ctx context.Context, batchID string, outcomes []domain.JobOutcome)
}

// Archiver copies successful outputs to longer-lived storage.
type Archiver interface {
	Archive(ctx context.Context, outcome domain.JobOutcome)
}

// Coordinator fans a batch out to the runner and gathers outcomes in
// input order. The only call-level errors are pre-start validation
// failures; once jobs launch, every request ends in results[i].
type Coordinator struct {
	Runner *Runner
	// BatchTimeout bounds a batch's wall time. On expiry, unfinished
	// member jobs are cancelled and finish as timeout failures.
	BatchTimeout time.Duration
	Logger       *slog.Logger
	Journal      Recorder
	Archive      Archiver
}

// ValidateRequest applies everything checked before any job starts:
// request shape, operation existence and the operation's input roles.
func (c *Coordinator) ValidateRequest(req domain.Request) error {
	if err := req.Validate(); err != nil {
		return err
	}
	op, err := c.Runner.Registry.Resolve(req.Operation)
	if err != nil {
		return err
	}
	for _, role := range op.InputRoles {
		if _, ok := req.Inputs[role]; !ok {
			return fmt.Errorf("%w: operation %s requires input %q", domain.ErrInvalidRequest, op.Name, role)
		}
	}
	for role := range req.Inputs {
		if !roleAllowed(op.InputRoles, role) {
			return fmt.Errorf("%w: operation %s does not accept input %q", domain.ErrInvalidRequest, op.Name, role)
		}
	}
	return nil
}

func roleAllowed(roles []string, role string) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

func (c *Coordinator) Dispatch(ctx context.Context, reqs []domain.Request) ([]domain.JobOutcome, error) {
	if len(reqs) == 0 {
		return nil, fmt.Errorf("%w: empty batch", domain.ErrInvalidRequest)
	}
	for i, req := range reqs {
		if err := c.ValidateRequest(req); err != nil {
			return nil, fmt.Errorf("request[%d]: %w", i, err)
		}
	}

	batchID := uuid.NewString()
	logger := c.logger().With("batch_id", requestid.Short(batchID))
	logger.Info("batch dispatching", "jobs", len(reqs))

	batchCtx := ctx
	cancel := func() {}
	if c.BatchTimeout > 0 {
		batchCtx, cancel = context.WithTimeout(ctx, c.BatchTimeout)
	}
	defer cancel()

	results := make([]domain.JobOutcome, len(reqs))
	var wg sync.WaitGroup
	for i, req := range reqs {
		wg.Add(1)
		go func(i int, req domain.Request) {
			defer wg.Done()
			defer func() {
				// A panicking job must not take the batch down or
				// leave a hole in the result sequence.
				if v := recover(); v != nil {
					logger.Error("job panicked", "index", i, "panic", v)
					results[i] = domain.JobOutcome{
						JobID:     uuid.NewString(),
						Operation: req.Operation,
						Failure:   &domain.Failure{Kind: domain.FailureInternal, Message: fmt.Sprintf("panic: %v", v)},
					}
				}
			}()
			results[i] = c.Runner.Run(batchCtx, req)
		}(i, req)
	}
	wg.Wait()

	succeeded := 0
	for _, out := range results {
		if out.Succeeded() {
			succeeded++
		}
	}
	logger.Info("batch complete", "jobs", len(reqs), "succeeded", succeeded, "failed", len(reqs)-succeeded)

	c.afterDispatch(ctx, batchID, results)
	return results, nil
}

func (c *Coordinator) DispatchOne(ctx context.Context, req domain.Request) (domain.JobOutcome, error) {
	outs, err := c.Dispatch(ctx, []domain.Request{req})
	if err != nil {
		return domain.JobOutcome{}, err
	}
	return outs[0], nil
}

// afterDispatch hands finished outcomes to the journal and archive off
// the request path. Both are advisory and never affect results.
func (c *Coordinator) afterDispatch(ctx context.Context, batchID string, outcomes []domain.JobOutcome) {
	if c.Journal == nil && c.Archive == nil {
		return
	}
	bg := context.WithoutCancel(ctx)
	go func() {
		if c.Journal != nil {
			c.Journal.Record(bg, batchID, outcomes)
		}
		if c.Archive != nil {
			for _, out := range outcomes {
				if out.Succeeded() {
					c.Archive.Archive(bg, out)
				}
			}
		}
	}()
}

func (c *Coordinator) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}
