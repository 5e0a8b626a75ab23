package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/lensworks/mediagate/internal/domain"
)

type AssemblerConfig struct {
	// MaxSize flushes the window as soon as this many calls are
	// queued. MaxWait flushes whatever is queued when the oldest call
	// has waited this long. Whichever trips first wins.
	MaxSize int
	MaxWait time.Duration
}

func (c AssemblerConfig) Validate() error {
	if c.MaxSize < 1 {
		return errors.New("batch max size must be >= 1")
	}
	if c.MaxWait <= 0 {
		return errors.New("batch max wait must be positive")
	}
	return nil
}

// Assembler coalesces trickling singleton calls into shared batches.
// Flushed batches run on the assembler's base context, so one caller
// hanging up never cancels anyone else's job.
type Assembler struct {
	coord   *Coordinator
	maxSize int
	maxWait time.Duration
	base    context.Context
	logger  *slog.Logger

	mu      sync.Mutex
	pending []pendingCall
	timer   *time.Timer
}

type pendingCall struct {
	req   domain.Request
	reply chan domain.JobOutcome
}

func NewAssembler(base context.Context, coord *Coordinator, cfg AssemblerConfig, logger *slog.Logger) (*Assembler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if coord == nil {
		return nil, errors.New("coordinator is required")
	}
	if base == nil {
		base = context.Background()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Assembler{
		coord:   coord,
		maxSize: cfg.MaxSize,
		maxWait: cfg.MaxWait,
		base:    base,
		logger:  logger,
	}, nil
}

// Submit queues one request into the open window and waits for its
// outcome. Validation failures surface immediately and never occupy a
// window seat. A caller that stops waiting abandons only its own
// outcome; the job still runs with the flushed batch.
func (a *Assembler) Submit(ctx context.Context, req domain.Request) (domain.JobOutcome, error) {
	if err := a.coord.ValidateRequest(req); err != nil {
		return domain.JobOutcome{}, err
	}

	call := pendingCall{req: req, reply: make(chan domain.JobOutcome, 1)}

	a.mu.Lock()
	a.pending = append(a.pending, call)
	if len(a.pending) >= a.maxSize {
		batch := a.takeLocked()
		a.mu.Unlock()
		go a.flush(batch, "size")
	} else {
		if len(a.pending) == 1 {
			a.timer = time.AfterFunc(a.maxWait, a.flushExpired)
		}
		a.mu.Unlock()
	}

	select {
	case out := <-call.reply:
		return out, nil
	case <-ctx.Done():
		return domain.JobOutcome{}, ctx.Err()
	}
}

func (a *Assembler) flushExpired() {
	a.mu.Lock()
	batch := a.takeLocked()
	a.mu.Unlock()
	if len(batch) > 0 {
		a.flush(batch, "wait")
	}
}

func (a *Assembler) takeLocked() []pendingCall {
	batch := a.pending
	a.pending = nil
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	return batch
}

func (a *Assembler) flush(batch []pendingCall, reason string) {
	a.logger.Debug("window flushed", "jobs", len(batch), "reason", reason)

	reqs := make([]domain.Request, len(batch))
	for i, call := range batch {
		reqs[i] = call.req
	}
	outs, err := a.coord.Dispatch(a.base, reqs)
	if err != nil {
		// Per-call validation ran before enqueue, so only a
		// coordinator-level fault lands here; report it to every
		// waiter rather than dropping anyone.
		a.logger.Warn("assembled batch failed", "jobs", len(batch), "error", err)
		for _, call := range batch {
			failure := domain.FailureFromErr(err)
			call.reply <- domain.JobOutcome{Operation: call.req.Operation, Failure: failure}
		}
		return
	}
	for i, call := range batch {
		call.reply <- outs[i]
	}
}
