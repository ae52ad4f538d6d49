package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/A-Eye-Project-for-CSC1028/a-eye-generator/command"
	"github.com/A-Eye-Project-for-CSC1028/a-eye-generator/pipeline"
)

// generateParser owns the grammar bound to generateCmd's flags.
var (
	generateParser  = command.NewParser()
	generateBinding *command.Binding
)

var generateCmd = &cobra.Command{
	Use:   "generate --image FILE --prompt TEXT [flags]",
	Short: "Run one generation command and exit",
	Long: `Run one generation command and exit.
	The flags are the same as those typed at the interactive console.

	examples:
	# five images from a depth map in the working directory
	aeye generate --image depth.png --prompt "a red barn at dusk"

	# two 768x512 images with fewer steps
	aeye generate --image depth.png --prompt "a red barn" --dimensions 768,512 --steps 20 --count 2`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setup(cmd)
		if err != nil {
			return err
		}
		defer a.logger.Sync()

		generateParser.Defaults.NegativePrompt = a.cfg.NegativePrompt
		req, err := generateBinding.Request()
		if err != nil {
			return err
		}

		interrupter := &serverInterrupter{logger: a.logger}
		ctx, stop := pipeline.WatchSignals(cmd.Context(), a.logger, interrupter.interrupt)
		defer stop()

		svc, comfy, err := a.synthesizer(ctx)
		if err != nil {
			return a.fail("cannot start the generator", err)
		}
		defer comfy.Close()
		interrupter.comfy.Store(comfy)

		job := pipeline.NewJob(req)
		a.logger.Info("starting job", zap.String("job_id", job.ID), zap.Stringer("request", req))
		if err := svc.Generate(ctx, req); err != nil {
			return a.fail("job failed", err)
		}
		a.logger.Info("job completed", zap.String("job_id", job.ID))
		return nil
	},
}

func initGenerate(root *cobra.Command) {
	root.AddCommand(generateCmd)
	generateBinding = generateParser.Bind(generateCmd.Flags())
}
