package main

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/A-Eye-Project-for-CSC1028/a-eye-generator/client"
	"github.com/A-Eye-Project-for-CSC1028/a-eye-generator/command"
	"github.com/A-Eye-Project-for-CSC1028/a-eye-generator/config"
	"github.com/A-Eye-Project-for-CSC1028/a-eye-generator/logging"
	"github.com/A-Eye-Project-for-CSC1028/a-eye-generator/pipeline"
	"github.com/A-Eye-Project-for-CSC1028/a-eye-generator/synthesis"
)

const banner = "--== A-Eye Image Generation CLI ==--"

// persistent flags
var (
	configPath string
	logFile    string
	logLevel   string
	devMode    bool
)

var rootCmd = &cobra.Command{
	Use:   "aeye",
	Short: "Queue ControlNet guided image generation jobs on a ComfyUI server",
	Long: `Queue ControlNet guided image generation jobs on a ComfyUI server.

	Without a subcommand aeye reads one command per line and runs the jobs in
	order in the background. Type 'help' for the command flags and 'exit' to
	stop once every queued job has finished.

	example command:
	--image depth.png --prompt "a wooden chair in a sunlit room" --count 3`,
	SilenceUsage:  true,
	SilenceErrors: true,
	Args:          cobra.NoArgs,
	RunE:          runConsole,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Settings file (default .config in the working directory)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Rotated JSON log file (overrides LOG_FILE)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn or error (overrides LOG_LEVEL)")
	rootCmd.PersistentFlags().BoolVar(&devMode, "dev", false, "Colored debug console logging")

	initGenerate(rootCmd)
	initBoxes(rootCmd)
	initStatus(rootCmd)
	initInspect(rootCmd)
}

// app is the state every subcommand starts from.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
}

func setup(cmd *cobra.Command) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if cmd.Flags().Changed("log-file") {
		cfg.LogFile = logFile
	}
	if cmd.Flags().Changed("log-level") {
		cfg.LogLevel = logLevel
	}
	if devMode {
		cfg.Development = true
	}

	logger := logging.New(logging.Options{
		Development: cfg.Development,
		Level:       cfg.LogLevel,
		FilePath:    cfg.LogFile,
		Console:     cmd.ErrOrStderr(),
	})
	return &app{cfg: cfg, logger: logger}, nil
}

// loggedError has already been written to the log; main only sets the
// exit status for it.
type loggedError struct {
	error
}

func (e loggedError) Unwrap() error { return e.error }

// fail logs err and returns it so the process exits with status 1.
func (a *app) fail(msg string, err error) error {
	a.logger.Error(msg, zap.Error(err))
	return loggedError{fmt.Errorf("%s: %w", msg, err)}
}

func (a *app) connect(ctx context.Context) (*client.ComfyClient, error) {
	logger := a.logger.Named("comfy")
	comfy, err := client.NewComfyClient(a.cfg.BaseURL(), serverEvents(logger), logger)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, a.cfg.ConnectTimeout)
	defer cancel()
	if err := comfy.Connect(ctx); err != nil {
		return nil, err
	}
	return comfy, nil
}

// serverEvents logs queue and prompt lifecycle events at debug level.
func serverEvents(logger *zap.Logger) *client.ComfyClientCallbacks {
	return &client.ComfyClientCallbacks{
		ClientQueueCountChanged: func(_ *client.ComfyClient, n int) {
			logger.Debug("server queue changed", zap.Int("remaining", n))
		},
		QueuedItemStarted: func(_ *client.ComfyClient, qi *client.QueueItem) {
			logger.Debug("prompt started", zap.String("prompt_id", qi.PromptID))
		},
		QueuedItemDataAvailable: func(_ *client.ComfyClient, qi *client.QueueItem, data *client.PromptMessageData) {
			logger.Debug("prompt output ready", zap.String("prompt_id", qi.PromptID),
				zap.String("node_id", data.NodeID), zap.Int("files", len(data.Files())))
		},
		QueuedItemStopped: func(_ *client.ComfyClient, qi *client.QueueItem, reason client.QueuedItemStoppedReason) {
			logger.Debug("prompt stopped", zap.String("prompt_id", qi.PromptID), zap.String("reason", string(reason)))
		},
	}
}

func (a *app) synthesizer(ctx context.Context) (*synthesis.ComfyService, *client.ComfyClient, error) {
	comfy, err := a.connect(ctx)
	if err != nil {
		return nil, nil, err
	}
	svc, err := synthesis.NewComfyService(comfy, synthesis.OptionsFromConfig(a.cfg), a.logger.Named("synthesis"))
	if err != nil {
		comfy.Close()
		return nil, nil, err
	}
	return svc, comfy, nil
}

func (a *app) parser() *command.Parser {
	p := command.NewParser()
	p.Defaults.NegativePrompt = a.cfg.NegativePrompt
	return p
}

func runConsole(cmd *cobra.Command, _ []string) error {
	a, err := setup(cmd)
	if err != nil {
		return err
	}
	defer a.logger.Sync()

	out := cmd.OutOrStdout()
	color.New(color.FgHiMagenta, color.Bold).Fprintln(out, banner)

	interrupter := &serverInterrupter{logger: a.logger}
	ctx, stop := pipeline.WatchSignals(cmd.Context(), a.logger, interrupter.interrupt)
	defer stop()

	svc, comfy, err := a.synthesizer(ctx)
	if err != nil {
		return a.fail("cannot start the generator", err)
	}
	defer comfy.Close()
	interrupter.comfy.Store(comfy)

	parser := a.parser()
	p := pipeline.New(parser, svc, a.logger)
	p.Help = parser.Usage()

	stats, err := p.Run(ctx, cmd.InOrStdin(), out)
	if err != nil {
		return a.fail("console input failed", err)
	}
	fmt.Fprintf(out, "%d job(s) accepted, %d rejected, %d succeeded, %d failed\n",
		stats.Accepted, stats.Rejected, stats.Succeeded, stats.Failed)
	return nil
}
