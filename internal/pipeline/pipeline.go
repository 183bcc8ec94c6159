// internal/pipeline/pipeline.go
package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/redeemly/redeemd/internal/metrics"
	"github.com/redeemly/redeemd/pkg/schema"
)

// Extractor turns raw image bytes into at most one code. A non-nil error
// means the recognition engine itself failed, which is logged louder than an
// ordinary miss but handled the same way: the image is dropped.
type Extractor interface {
	Extract(ctx context.Context, payload []byte) (schema.Code, bool, error)
}

// Submitter runs one blocking redemption and reports the outcome together
// with the id of the worker that carried it.
type Submitter interface {
	Do(ctx context.Context, code schema.Code) (schema.Outcome, int, error)
}

// Recorder appends one terminal outcome to the durable log.
type Recorder interface {
	Record(code schema.Code, outcome schema.Outcome, workerID int, when time.Time)
}

// Pipeline chains the two stage loops: images are recognized sequentially,
// recognized codes are dispatched concurrently onto the worker pool.
type Pipeline struct {
	images *Queue[ImageTask]
	codes  *Queue[schema.Code]

	extractor Extractor
	pool      Submitter
	recorder  Recorder
	publish   func(schema.RedemptionDone)
	logger    *slog.Logger

	handlers sync.WaitGroup
}

// New wires the stages. publish may be nil when no result bus is configured.
func New(extractor Extractor, pool Submitter, recorder Recorder, publish func(schema.RedemptionDone), logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		images:    NewQueue[ImageTask](),
		codes:     NewQueue[schema.Code](),
		extractor: extractor,
		pool:      pool,
		recorder:  recorder,
		publish:   publish,
		logger:    logger,
	}
}

// Enqueue accepts an image from the source. Safe for concurrent callers.
func (p *Pipeline) Enqueue(task ImageTask) {
	metrics.ImagesReceived.Inc()
	p.images.Push(task)
}

// Run drives both stage loops until ctx is cancelled, then waits for
// in-flight redemption handlers to finish. Queued-but-unstarted work is
// dropped on shutdown; the durable log only ever records completed
// submissions.
func (p *Pipeline) Run(ctx context.Context) {
	var stages sync.WaitGroup
	stages.Add(2)
	go func() {
		defer stages.Done()
		p.recognitionLoop(ctx)
	}()
	go func() {
		defer stages.Done()
		p.dispatchLoop(ctx)
	}()
	stages.Wait()
	p.handlers.Wait()
}

// recognitionLoop is the single sequential consumer of the image queue.
// Recognition is fast relative to redemption, so one consumer keeps up.
func (p *Pipeline) recognitionLoop(ctx context.Context) {
	p.logger.Info("recognition stage ready")
	for {
		task, ok := p.images.Pop(ctx)
		if !ok {
			return
		}

		lag := time.Since(task.ArrivedAt)
		log := p.logger.With("task_id", task.ID, "origin", task.Origin)
		log.Info("scanning image", "lag_ms", lag.Milliseconds(), "bytes", len(task.Payload))

		start := time.Now()
		code, found, err := p.extractor.Extract(ctx, task.Payload)
		elapsed := time.Since(start)

		switch {
		case err != nil:
			// Engine failure, not a miss: alertable but never fatal to the loop.
			metrics.OCREngineErrors.Inc()
			log.Error("recognition engine failed", "err", err, "duration_ms", elapsed.Milliseconds())
		case !found:
			metrics.OCRMisses.Inc()
			log.Info("no code found", "duration_ms", elapsed.Milliseconds())
		default:
			metrics.CodesExtracted.Inc()
			log.Info("code found", "code", code, "duration_ms", elapsed.Milliseconds())
			p.codes.Push(code)
		}
	}
}

// dispatchLoop hands each code to the pool without waiting for completion,
// so submissions overlap up to pool capacity.
func (p *Pipeline) dispatchLoop(ctx context.Context) {
	p.logger.Info("dispatch stage ready")
	for {
		code, ok := p.codes.Pop(ctx)
		if !ok {
			return
		}
		p.handlers.Add(1)
		go func(code schema.Code) {
			defer p.handlers.Done()
			p.handle(ctx, code)
		}(code)
	}
}

func (p *Pipeline) handle(ctx context.Context, code schema.Code) {
	metrics.InFlight.Inc()
	defer metrics.InFlight.Dec()

	start := time.Now()
	outcome, workerID, err := p.pool.Do(ctx, code)
	if err != nil {
		// Acquire was cancelled by shutdown before a worker ran the code.
		p.logger.Warn("submission abandoned", "code", code, "err", err)
		return
	}
	elapsed := time.Since(start)

	p.logger.Info("redemption finished",
		"code", code,
		"status", outcome,
		"worker_id", workerID,
		"duration_ms", elapsed.Milliseconds(),
	)
	metrics.Redemptions.WithLabelValues(string(outcome)).Inc()

	finished := time.Now()
	p.recorder.Record(code, outcome, workerID, finished)
	if p.publish != nil {
		p.publish(schema.RedemptionDone{
			ID:         code.Compact(),
			Code:       code,
			Status:     outcome,
			WorkerID:   workerID,
			DurationMs: elapsed.Milliseconds(),
			HappenedAt: finished.Unix(),
		})
	}
}

// Shutdown closes both queues so the stage loops drain and exit.
func (p *Pipeline) Shutdown() {
	p.images.Close()
	p.codes.Close()
}
