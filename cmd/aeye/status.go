package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the ComfyUI server's system stats and queue length",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setup(cmd)
		if err != nil {
			return err
		}
		defer a.logger.Sync()

		comfy, err := a.connect(cmd.Context())
		if err != nil {
			return a.fail("cannot reach ComfyUI", err)
		}
		defer comfy.Close()

		stats, err := comfy.GetSystemStats(cmd.Context())
		if err != nil {
			return a.fail("reading system stats", err)
		}
		queue, err := comfy.GetQueueExecutionInfo(cmd.Context())
		if err != nil {
			return a.fail("reading queue", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Server: %s\n", comfy.BaseURL())
		fmt.Fprintf(out, "OS: %s, Python: %s\n", stats.System.OS, stats.System.PythonVersion)
		for _, dev := range stats.Devices {
			fmt.Fprintf(out, "Device %d: %s (%s) VRAM %d/%d MiB free\n",
				dev.Index, dev.Name, dev.Type, dev.VRAM_Free>>20, dev.VRAM_Total>>20)
		}
		fmt.Fprintf(out, "Queue remaining: %d\n", queue.ExecInfo.QueueRemaining)
		return nil
	},
}

func initStatus(root *cobra.Command) {
	root.AddCommand(statusCmd)
}
