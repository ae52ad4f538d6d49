package pipeline

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/A-Eye-Project-for-CSC1028/a-eye-generator/generation"
)

// Synthesizer performs the image generation for one request. Calls may be
// slow and are never made concurrently by the pipeline.
type Synthesizer interface {
	Generate(ctx context.Context, req generation.Request) error
}

// SynthesizerFunc adapts a function to Synthesizer.
type SynthesizerFunc func(ctx context.Context, req generation.Request) error

func (f SynthesizerFunc) Generate(ctx context.Context, req generation.Request) error {
	return f(ctx, req)
}

// Job is one accepted command travelling from the parse stage to the worker.
type Job struct {
	ID       string
	Request  generation.Request
	Accepted time.Time
}

// NewJob wraps req with a fresh id.
func NewJob(req generation.Request) Job {
	return Job{
		ID:       uuid.New().String(),
		Request:  req,
		Accepted: time.Now(),
	}
}

// Stats summarizes a pipeline run.
type Stats struct {
	Accepted  int64
	Rejected  int64
	Succeeded int64
	Failed    int64
}

type counters struct {
	accepted  atomic.Int64
	rejected  atomic.Int64
	succeeded atomic.Int64
	failed    atomic.Int64
}

func (c *counters) snapshot() Stats {
	return Stats{
		Accepted:  c.accepted.Load(),
		Rejected:  c.rejected.Load(),
		Succeeded: c.succeeded.Load(),
		Failed:    c.failed.Load(),
	}
}

// Worker drains a job queue one job at a time.
type Worker struct {
	synth  Synthesizer
	jobs   *Queue[Job]
	logger *zap.Logger
	stats  *counters
}

func NewWorker(synth Synthesizer, jobs *Queue[Job], logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{synth: synth, jobs: jobs, logger: logger, stats: &counters{}}
}

// Run processes jobs until the stop sentinel is dequeued. A failing job is
// logged and never stops the loop.
func (w *Worker) Run(ctx context.Context) {
	for {
		job, ok := w.jobs.Get()
		if !ok {
			w.logger.Debug("worker received stop signal")
			return
		}
		w.process(ctx, job)
	}
}

// Stats returns the worker's success and failure counts.
func (w *Worker) Stats() Stats {
	return w.stats.snapshot()
}

func (w *Worker) process(ctx context.Context, job Job) {
	log := w.logger.With(zap.String("job_id", job.ID), zap.String("image", job.Request.Image()))
	log.Info("starting job",
		zap.Int("count", job.Request.Iterations()),
		zap.Duration("queued_for", time.Since(job.Accepted)))

	start := time.Now()
	if err := w.generate(ctx, job.Request); err != nil {
		w.stats.failed.Add(1)
		log.Error("job failed", zap.Error(err), zap.Duration("elapsed", time.Since(start)))
		return
	}
	w.stats.succeeded.Add(1)
	log.Info("job completed", zap.Duration("elapsed", time.Since(start)))
}

func (w *Worker) generate(ctx context.Context, req generation.Request) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("synthesizer panicked: %v", r)
		}
	}()
	return w.synth.Generate(ctx, req)
}
