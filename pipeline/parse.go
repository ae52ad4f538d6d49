package pipeline

import (
	"errors"

	"go.uber.org/zap"

	"github.com/A-Eye-Project-for-CSC1028/a-eye-generator/command"
	"github.com/A-Eye-Project-for-CSC1028/a-eye-generator/generation"
)

// LineParser turns one console line into a request.
type LineParser interface {
	Parse(line string) (generation.Request, error)
}

// ParseStage moves lines from the input queue to the job queue, dropping
// lines that do not parse.
type ParseStage struct {
	parser LineParser
	lines  *Queue[string]
	jobs   *Queue[Job]
	logger *zap.Logger
	stats  *counters
}

func NewParseStage(parser LineParser, lines *Queue[string], jobs *Queue[Job], logger *zap.Logger) *ParseStage {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ParseStage{parser: parser, lines: lines, jobs: jobs, logger: logger, stats: &counters{}}
}

// Run handles lines until the input sentinel, then closes the job queue.
func (s *ParseStage) Run() {
	defer s.jobs.Close()

	for {
		line, ok := s.lines.Get()
		if !ok {
			return
		}
		s.handle(line)
	}
}

func (s *ParseStage) handle(line string) {
	req, err := s.parser.Parse(line)
	if err != nil {
		s.stats.rejected.Add(1)
		switch {
		case errors.Is(err, command.ErrParse):
			s.logger.Warn("command rejected", zap.Error(err))
		case errors.Is(err, generation.ErrInvalidRequest):
			s.logger.Warn("request rejected", zap.Error(err))
		default:
			s.logger.Error("command could not be handled", zap.Error(err))
		}
		return
	}

	job := NewJob(req)
	if err := s.jobs.Put(job); err != nil {
		s.stats.rejected.Add(1)
		s.logger.Error("job not queued", zap.String("job_id", job.ID), zap.Error(err))
		return
	}
	s.stats.accepted.Add(1)
	s.logger.Info("job queued",
		zap.String("job_id", job.ID),
		zap.Stringer("request", req),
		zap.Int("pending", s.jobs.Len()))
}
