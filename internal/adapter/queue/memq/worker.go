package memq

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/aratatotsuka/foundry-slide-html-generator/internal/adapter/observability"
	"github.com/aratatotsuka/foundry-slide-html-generator/internal/domain"
)

// Runner executes the pipeline for a single job.
type Runner interface {
	Run(ctx context.Context, jobID string) error
}

// Worker drains the queue serially and invokes the pipeline runner.
type Worker struct {
	queue  domain.JobQueue
	store  domain.JobStore
	runner Runner
}

// NewWorker constructs a worker over the given queue, store, and runner.
func NewWorker(q domain.JobQueue, store domain.JobStore, runner Runner) *Worker {
	return &Worker{queue: q, store: store, runner: runner}
}

// Run loops until ctx is cancelled. Pipeline failures are recorded on the
// job record and never abort the loop.
func (w *Worker) Run(ctx context.Context) error {
	tracer := otel.Tracer("queue.worker")
	for {
		jobID, err := w.queue.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				slog.Info("worker stopping", slog.Any("reason", err))
				return nil
			}
			return err
		}
		lg := slog.Default().With(slog.String("job_id", jobID))
		lg.Info("job dequeued")
		observability.StartProcessingJob()

		jobCtx, span := tracer.Start(ctx, "SlideJob",
			trace.WithAttributes(attribute.String("job.id", jobID)))
		runErr := w.runner.Run(jobCtx, jobID)
		span.End()

		if runErr != nil {
			if ctx.Err() != nil && errors.Is(runErr, ctx.Err()) {
				// Cooperative shutdown: leave the record non-terminal.
				lg.Info("job interrupted by shutdown")
				return nil
			}
			lg.Error("job failed", slog.Any("error", runErr))
			observability.FailJob()
			msg := runErr.Error()
			if err := w.store.Update(ctx, jobID, func(s *domain.JobState) {
				s.Status = domain.JobFailed
				s.Step = ""
				s.Error = msg
			}); err != nil {
				lg.Error("failed to record job failure", slog.Any("error", err))
			}
			continue
		}
		observability.CompleteJob()
		lg.Info("job completed")
	}
}
