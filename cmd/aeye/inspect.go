package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/A-Eye-Project-for-CSC1028/a-eye-generator/command"
	"github.com/A-Eye-Project-for-CSC1028/a-eye-generator/generation"
	"github.com/A-Eye-Project-for-CSC1028/a-eye-generator/synthesis"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect IMAGE...",
	Short: "Show the settings a generated image was made with",
	Long: `Show the settings a generated image was made with.
	ComfyUI stores the executed graph inside every PNG it saves. inspect reads
	it back and prints the values along with a console command that repeats
	the generation (with a new seed).`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setup(cmd)
		if err != nil {
			return err
		}
		defer a.logger.Sync()

		out := cmd.OutOrStdout()
		for _, path := range args {
			s, err := readSettings(path)
			if err != nil {
				return a.fail("inspecting "+path, err)
			}
			printSettings(out, path, s)
		}
		return nil
	},
}

func readSettings(path string) (*synthesis.Settings, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return synthesis.ReadSettings(f)
}

func printSettings(out io.Writer, path string, s *synthesis.Settings) {
	color.New(color.Bold).Fprintln(out, path)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "  image\t%s\n", s.Image)
	fmt.Fprintf(w, "  checkpoint\t%s\n", s.Checkpoint)
	fmt.Fprintf(w, "  controlnet\t%s\n", s.ControlNet)
	fmt.Fprintf(w, "  prompt\t%s\n", s.PositivePrompt)
	fmt.Fprintf(w, "  negative\t%s\n", s.NegativePrompt)
	fmt.Fprintf(w, "  dimensions\t%d,%d\n", s.Width, s.Height)
	fmt.Fprintf(w, "  sampler\t%s (%s)\n", s.Sampler, s.Scheduler)
	fmt.Fprintf(w, "  steps\t%d\n", s.Steps)
	fmt.Fprintf(w, "  cfg\t%g\n", s.CFG)
	fmt.Fprintf(w, "  denoise\t%g\n", s.Denoise)
	fmt.Fprintf(w, "  seed\t%d\n", s.Seed)
	_ = w.Flush()

	params := generation.Params{
		Image:          s.Image,
		PositivePrompt: s.PositivePrompt,
		Sampler:        s.Sampler,
		Scheduler:      s.Scheduler,
		Dimensions:     generation.Dimensions{Width: s.Width, Height: s.Height},
		Denoise:        s.Denoise,
		Steps:          s.Steps,
		CFG:            s.CFG,
		Iterations:     1,
	}
	fmt.Fprintf(out, "  command     %s\n", command.NewParser().Format(params))
}

func initInspect(root *cobra.Command) {
	root.AddCommand(inspectCmd)
}
