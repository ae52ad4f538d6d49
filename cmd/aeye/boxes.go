package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/A-Eye-Project-for-CSC1028/a-eye-generator/boxes"
)

var (
	boxesInput  string
	boxesOutput string
	boxesPreset string
)

var boxesCmd = &cobra.Command{
	Use:   "boxes",
	Short: "Draw bounding boxes on rendered images",
	Long: `Draw bounding boxes on rendered images.
	Each image in the input folder is paired with the JSON export of the same
	name and a red rectangle is drawn around the object's screen space points.
	Results keep their file name and format in the output folder.

	presets:
	drawer      images/box_input -> images/box_output
	applicator  images/input     -> images/output`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setup(cmd)
		if err != nil {
			return err
		}
		defer a.logger.Sync()

		wd, err := os.Getwd()
		if err != nil {
			return err
		}
		in, out, err := boxes.Preset(boxesPreset).Dirs(wd)
		if err != nil {
			return err
		}
		if boxesInput != "" {
			in = boxesInput
		}
		if boxesOutput != "" {
			out = boxesOutput
		}

		sum, err := boxes.Run(boxes.Options{InputDir: in, OutputDir: out}, a.logger.Named("boxes"))
		if err != nil {
			return a.fail("bounding boxes", err)
		}
		a.logger.Info("bounding boxes done",
			zap.Int("found", sum.Found),
			zap.Int("paired", sum.Paired),
			zap.Int("drawn", sum.Drawn),
			zap.Int("mismatched", sum.Mismatched),
			zap.Int("failed", sum.Failed))
		fmt.Fprintf(cmd.OutOrStdout(), "%d of %d image(s) outlined into %s\n", sum.Drawn, sum.Found, out)
		return nil
	},
}

func initBoxes(root *cobra.Command) {
	root.AddCommand(boxesCmd)
	boxesCmd.Flags().StringVar(&boxesInput, "input", "", "Folder with images and JSON exports (overrides the preset)")
	boxesCmd.Flags().StringVar(&boxesOutput, "output", "", "Folder for the outlined images (overrides the preset)")
	boxesCmd.Flags().StringVar(&boxesPreset, "preset", string(boxes.PresetDrawer), "Folder layout: drawer or applicator")
}
