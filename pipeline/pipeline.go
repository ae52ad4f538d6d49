package pipeline

import (
	"context"
	"io"
	"sync"

	"go.uber.org/zap"
)

// Pipeline wires the input loop, parse stage and worker together.
type Pipeline struct {
	parser LineParser
	synth  Synthesizer
	logger *zap.Logger

	// Prompt and Help are passed to the InputLoop.
	Prompt string
	Help   string
}

func New(parser LineParser, synth Synthesizer, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{parser: parser, synth: synth, logger: logger, Prompt: DefaultPrompt}
}

// Run serves the console on the calling goroutine and returns once every
// accepted job has been processed.
//
// Cancelling ctx stops reading input but does not interrupt the job being
// generated: the worker runs with a context detached from ctx and drains the
// queue before Run returns.
func (p *Pipeline) Run(ctx context.Context, in io.Reader, out io.Writer) (Stats, error) {
	stats := &counters{}
	lines := NewQueue[string]()
	jobs := NewQueue[Job]()

	parse := NewParseStage(p.parser, lines, jobs, p.logger.Named("parser"))
	parse.stats = stats
	worker := NewWorker(p.synth, jobs, p.logger.Named("worker"))
	worker.stats = stats

	var parseDone, workerDone sync.WaitGroup
	parseDone.Add(1)
	go func() {
		defer parseDone.Done()
		parse.Run()
	}()
	workerDone.Add(1)
	go func() {
		defer workerDone.Done()
		worker.Run(context.WithoutCancel(ctx))
	}()

	input := &InputLoop{
		In:     in,
		Out:    out,
		Lines:  lines,
		Prompt: p.Prompt,
		Help:   p.Help,
		Logger: p.logger.Named("console"),
	}
	inputErr := input.Run(ctx)

	lines.Close()
	parseDone.Wait()

	if pending := jobs.Len(); pending > 0 {
		p.logger.Info("waiting for queued jobs to finish", zap.Int("pending", pending))
	}
	workerDone.Wait()

	s := stats.snapshot()
	p.logger.Info("pipeline stopped",
		zap.Int64("accepted", s.Accepted),
		zap.Int64("rejected", s.Rejected),
		zap.Int64("succeeded", s.Succeeded),
		zap.Int64("failed", s.Failed))
	return s, inputErr
}
