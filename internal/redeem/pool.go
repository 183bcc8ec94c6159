// internal/redeem/pool.go
package redeem

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime/debug"

	"github.com/redeemly/redeemd/pkg/schema"
)

// WorkerFactory builds one warmed-up worker bound to its own profile
// directory. The pool calls it once per slot at construction.
type WorkerFactory func(ctx context.Context, id int, profileDir string) (*Worker, error)

// Pool owns a fixed set of workers behind acquire/release. Invariants:
// at most Size submissions hold a worker at any instant, no worker is held
// by two submissions, and every worker returns to the available set after a
// submission completes, fails, or panics.
type Pool struct {
	size      int
	available chan *Worker
	all       []*Worker
	logger    *slog.Logger
}

// NewPool builds size workers, each under profileBase/worker_<id>. Any
// construction failure closes the workers already built and aborts: running
// short-handed is not tolerated.
func NewPool(ctx context.Context, size int, profileBase string, factory WorkerFactory, logger *slog.Logger) (*Pool, error) {
	if size <= 0 {
		return nil, fmt.Errorf("pool size must be positive (got %d)", size)
	}
	if logger == nil {
		logger = slog.Default()
	}

	p := &Pool{
		size:      size,
		available: make(chan *Worker, size),
		logger:    logger,
	}
	logger.Info("initializing worker pool", "size", size)

	for i := 1; i <= size; i++ {
		dir := filepath.Join(profileBase, fmt.Sprintf("worker_%d", i))
		w, err := factory(ctx, i, dir)
		if err != nil {
			for _, built := range p.all {
				if cerr := built.Close(ctx); cerr != nil {
					logger.Warn("close worker during aborted startup", "worker_id", built.ID, "err", cerr)
				}
			}
			return nil, fmt.Errorf("init worker %d: %w", i, err)
		}
		p.all = append(p.all, w)
		p.available <- w
		logger.Info("worker pooled", "worker_id", i, "profile_dir", dir)
	}
	return p, nil
}

func (p *Pool) Size() int { return p.size }

// Acquire blocks until a worker is free or ctx ends. The caller must hand
// the worker back with Release.
func (p *Pool) Acquire(ctx context.Context) (*Worker, error) {
	select {
	case w := <-p.available:
		return w, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Release returns a worker to the available set. Never blocks: the channel
// holds exactly Size slots and a worker is never released twice.
func (p *Pool) Release(w *Worker) {
	p.available <- w
}

// Do borrows a worker for one submission. The worker goes back to the pool
// whatever happens, including a panic inside the driver, so a failed
// submission can never shrink the pool.
func (p *Pool) Do(ctx context.Context, code schema.Code) (outcome schema.Outcome, workerID int, err error) {
	w, err := p.Acquire(ctx)
	if err != nil {
		return "", 0, fmt.Errorf("acquire worker: %w", err)
	}
	defer p.Release(w)

	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("submission panicked", "worker_id", w.ID, "code", code, "panic", r, "stack", string(debug.Stack()))
			outcome = schema.OutcomeUnknownError
			workerID = w.ID
			err = nil
		}
	}()

	// A submission already holding a worker runs to completion or to its own
	// timeouts; shutdown cancels pending acquires, not in-flight submits.
	return w.Submit(context.WithoutCancel(ctx), code), w.ID, nil
}

// Close drains every worker out of the pool and tears its session down.
// Outstanding submissions are waited for implicitly: a worker can only be
// drained once released.
func (p *Pool) Close(ctx context.Context) {
	for i := 0; i < p.size; i++ {
		select {
		case w := <-p.available:
			if err := w.Close(ctx); err != nil {
				p.logger.Warn("close worker", "worker_id", w.ID, "err", err)
			}
		case <-ctx.Done():
			p.logger.Warn("pool close interrupted", "drained", i, "size", p.size)
			return
		}
	}
	p.logger.Info("worker pool closed")
}
