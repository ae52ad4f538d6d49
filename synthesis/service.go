// Package synthesis turns generation requests into images on a ComfyUI
// server.
package synthesis

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"

	"github.com/A-Eye-Project-for-CSC1028/a-eye-generator/client"
	"github.com/A-Eye-Project-for-CSC1028/a-eye-generator/config"
	"github.com/A-Eye-Project-for-CSC1028/a-eye-generator/generation"
	"github.com/A-Eye-Project-for-CSC1028/a-eye-generator/graphapi"
)

// Runner is the part of client.ComfyClient the service needs.
type Runner interface {
	UploadFileFromPath(ctx context.Context, path string, overwrite bool, filetype client.ImageType, subfolder string) (string, error)
	QueuePromptAndProcess(ctx context.Context, prompt *graphapi.Prompt, handlers *client.MessageHandlers) error
	GetImage(ctx context.Context, output client.DataOutput) ([]byte, error)
	GetObjectInfo(ctx context.Context, nodeClass string) (*graphapi.NodeObject, error)
}

type Options struct {
	// ComfyDirectory enables local checks of inputs and models. Optional.
	ComfyDirectory string
	Checkpoint     string
	ControlNet     string
	FilePrefix     string
	// OutputDir receives a copy of every generated image. Empty leaves the
	// images in ComfyUI's output folder only.
	OutputDir string

	ShowProgress bool
	// Progress is where progress bars are drawn; defaults to os.Stderr.
	Progress io.Writer

	// Seed returns the sampler seed of each iteration; defaults to RandomSeed.
	Seed func() uint64
}

// OptionsFromConfig maps the loaded settings onto Options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		ComfyDirectory: cfg.ComfyDirectory,
		Checkpoint:     cfg.Checkpoint,
		ControlNet:     cfg.ControlNet,
		FilePrefix:     cfg.FilePrefix,
		OutputDir:      cfg.OutputDir,
		ShowProgress:   cfg.ShowProgress,
	}
}

// ComfyService implements pipeline.Synthesizer on top of a ComfyUI server.
type ComfyService struct {
	runner Runner
	opts   Options
	models *ModelLocator
	logger *zap.Logger
}

// NewComfyService validates the ComfyUI directory, when one is configured,
// and prepares the model search paths.
func NewComfyService(runner Runner, opts Options, logger *zap.Logger) (*ComfyService, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.FilePrefix == "" {
		opts.FilePrefix = config.DefaultFilePrefix
	}
	if opts.Progress == nil {
		opts.Progress = os.Stderr
	}
	if opts.Seed == nil {
		opts.Seed = RandomSeed
	}

	s := &ComfyService{runner: runner, opts: opts, logger: logger}
	if opts.ComfyDirectory == "" {
		return s, nil
	}

	if _, err := os.Stat(filepath.Join(opts.ComfyDirectory, "nodes.py")); err != nil {
		return nil, fmt.Errorf("%w: nodes.py not found in %q", ErrComfyNotFound, opts.ComfyDirectory)
	}
	extra, found := FindExtraModelPaths(opts.ComfyDirectory)
	if found {
		logger.Info("using extra model paths", zap.String("path", extra))
	} else {
		logger.Debug("no extra model paths file found")
		extra = ""
	}
	models, err := NewModelLocator(opts.ComfyDirectory, extra)
	if err != nil {
		return nil, err
	}
	s.models = models
	return s, nil
}

// Generate runs every iteration of req in turn and stops at the first
// failure. All errors are *Error.
func (s *ComfyService) Generate(ctx context.Context, req generation.Request) error {
	image, err := s.resolveImage(ctx, req.Image())
	if err != nil {
		return &Error{JobImage: req.Image(), Err: err}
	}
	if err := s.checkModels(ctx); err != nil {
		return &Error{JobImage: req.Image(), Err: err}
	}

	for i := 1; i <= req.Iterations(); i++ {
		if err := ctx.Err(); err != nil {
			return &Error{JobImage: req.Image(), Iteration: i, Err: err}
		}
		if err := s.runIteration(ctx, req, image, i); err != nil {
			return &Error{JobImage: req.Image(), Iteration: i, Err: err}
		}
	}
	return nil
}

// resolveImage returns the name LoadImage should use. Local files are
// uploaded; other names must already be in ComfyUI's input folder.
func (s *ComfyService) resolveImage(ctx context.Context, image string) (string, error) {
	if info, err := os.Stat(image); err == nil && !info.IsDir() {
		name, err := s.runner.UploadFileFromPath(ctx, image, true, client.InputImageType, "")
		if err != nil {
			return "", fmt.Errorf("uploading %s: %w", image, err)
		}
		s.logger.Debug("uploaded input image", zap.String("image", image), zap.String("name", name))
		return name, nil
	}

	if s.opts.ComfyDirectory == "" {
		// the server reports a missing file when LoadImage runs
		return image, nil
	}
	if _, err := os.Stat(filepath.Join(s.opts.ComfyDirectory, "input", filepath.FromSlash(image))); err != nil {
		return "", fmt.Errorf("%w: %q is neither a local file nor in %s", ErrInputNotFound, image,
			filepath.Join(s.opts.ComfyDirectory, "input"))
	}
	return image, nil
}

// checkModels looks for the checkpoint and ControlNet files on disk when the
// ComfyUI directory is known, and asks the server otherwise.
func (s *ComfyService) checkModels(ctx context.Context) error {
	if s.models != nil {
		if _, err := s.models.Find(KindCheckpoints, s.opts.Checkpoint); err != nil {
			return err
		}
		_, err := s.models.Find(KindControlNet, s.opts.ControlNet)
		return err
	}

	for _, m := range []struct{ class, input, name, kind string }{
		{"CheckpointLoaderSimple", "ckpt_name", s.opts.Checkpoint, KindCheckpoints},
		{"ControlNetLoader", "control_net_name", s.opts.ControlNet, KindControlNet},
	} {
		obj, err := s.runner.GetObjectInfo(ctx, m.class)
		if err != nil {
			// the server validates the prompt anyway
			s.logger.Warn("cannot list installed models", zap.String("node", m.class), zap.Error(err))
			continue
		}
		if _, ok := obj.Choices(m.input); ok && !obj.HasChoice(m.input, m.name) {
			return fmt.Errorf("%w: %s %q is not installed on the server", ErrModelNotFound, m.kind, m.name)
		}
	}
	return nil
}

func (s *ComfyService) runIteration(ctx context.Context, req generation.Request, image string, iteration int) error {
	seed := s.opts.Seed()
	prompt, err := BuildPrompt(req, GraphInputs{
		Image:      image,
		Checkpoint: s.opts.Checkpoint,
		ControlNet: s.opts.ControlNet,
		FilePrefix: s.opts.FilePrefix,
		Seed:       seed,
	})
	if err != nil {
		return err
	}

	logger := s.logger.With(
		zap.String("image", req.Image()),
		zap.Int("iteration", iteration),
		zap.Int("iterations", req.Iterations()),
		zap.Uint64("seed", seed),
	)
	logger.Info("generating image")
	start := time.Now()

	var outputs []client.DataOutput
	handlers := client.DefaultMessageHandlers(logger).
		WithDataHandler(func(msg *client.PromptMessageData) {
			outputs = append(outputs, msg.Files()...)
		})
	if s.opts.ShowProgress {
		s.attachProgress(handlers, fmt.Sprintf("%s [%d/%d]", filepath.Base(req.Image()), iteration, req.Iterations()))
	}

	if err := s.runner.QueuePromptAndProcess(ctx, prompt, handlers); err != nil {
		if errors.Is(err, client.ErrExecution) || errors.Is(err, client.ErrInterrupted) || errors.Is(err, client.ErrConnectionLost) {
			return fmt.Errorf("%w: %w", ErrExecution, err)
		}
		return err
	}

	saved, err := s.saveOutputs(ctx, outputs)
	if err != nil {
		return err
	}
	logger.Info("image generated",
		zap.Duration("duration", time.Since(start)),
		zap.Int("outputs", len(outputs)),
		zap.Strings("saved", saved))
	return nil
}

// attachProgress draws one bar per sampling run.
func (s *ComfyService) attachProgress(handlers *client.MessageHandlers, description string) {
	var bar *progressbar.ProgressBar
	finish := func() {
		if bar != nil {
			_ = bar.Finish()
			bar = nil
		}
	}
	logExecuting := handlers.OnExecuting
	handlers.OnExecuting = func(msg *client.PromptMessageExecuting) {
		finish()
		if logExecuting != nil {
			logExecuting(msg)
		}
	}
	handlers.WithProgressHandler(func(msg *client.PromptMessageProgress) {
		if bar == nil {
			bar = progressbar.NewOptions(msg.Max,
				progressbar.OptionSetWriter(s.opts.Progress),
				progressbar.OptionSetDescription(description),
				progressbar.OptionShowCount(),
				progressbar.OptionSetWidth(30),
				progressbar.OptionOnCompletion(func() { fmt.Fprintln(s.opts.Progress) }),
			)
		}
		_ = bar.Set(msg.Value)
	})
	handlers.WithCompleteHandler(finish)
}

func (s *ComfyService) saveOutputs(ctx context.Context, outputs []client.DataOutput) ([]string, error) {
	if s.opts.OutputDir == "" || len(outputs) == 0 {
		return nil, nil
	}
	if err := os.MkdirAll(s.opts.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	saved := make([]string, 0, len(outputs))
	for _, out := range outputs {
		if out.Type != string(client.OutputImageType) {
			continue
		}
		data, err := s.runner.GetImage(ctx, out)
		if err != nil {
			return saved, fmt.Errorf("downloading %s: %w", out.Filename, err)
		}
		path := filepath.Join(s.opts.OutputDir, filepath.Base(out.Filename))
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return saved, fmt.Errorf("saving %s: %w", path, err)
		}
		saved = append(saved, path)
	}
	return saved, nil
}
