package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dj-oyu/screen-recorder/internal/dimension"
)

var planWidth, planHeight, planDensity int

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Show the recording size and bitrate for a screen",
	RunE: func(cmd *cobra.Command, args []string) error {
		m := cfg.ScreenMetrics()
		if planWidth > 0 {
			m.WidthPx = planWidth
		}
		if planHeight > 0 {
			m.HeightPx = planHeight
		}
		if planDensity > 0 {
			m.DensityDpi = planDensity
		}
		dims := cfg.Planner().Plan(m)
		fmt.Printf("screen:    %dx%d @ %d dpi\n", m.WidthPx, m.HeightPx, m.DensityDpi)
		fmt.Printf("recording: %dx%d\n", dims.WidthPx, dims.HeightPx)
		fmt.Printf("bitrate:   %d bps\n", dimension.Bitrate(dims))
		return nil
	},
}

func init() {
	planCmd.Flags().IntVar(&planWidth, "width", 0, "screen width in pixels")
	planCmd.Flags().IntVar(&planHeight, "height", 0, "screen height in pixels")
	planCmd.Flags().IntVar(&planDensity, "density", 0, "screen density in dpi")
	rootCmd.AddCommand(planCmd)
}
