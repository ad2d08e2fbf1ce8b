package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dj-oyu/screen-recorder/internal/logger"
	"github.com/dj-oyu/screen-recorder/internal/output"
	"github.com/dj-oyu/screen-recorder/internal/telemetry"
)

var verifyExpected time.Duration

var verifyCmd = &cobra.Command{
	Use:   "verify <file>...",
	Short: "Read finalized recordings back and report problems",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		v := output.NewVerifier(telemetry.New(logger.Default(), nil))
		v.Tolerance = cfg.DurationTolerance()

		failed := 0
		for _, path := range args {
			r := v.Verify(path, verifyExpected)
			status := "ok"
			if !r.OK() {
				status = strings.Join(r.Issues, ",")
				failed++
			}
			fmt.Printf("%s: %d bytes, %d ms, %d tracks: %s\n",
				path, r.Size, r.Recorded.Milliseconds(), len(r.Metadata.Tracks), status)
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d files have issues", failed, len(args))
		}
		return nil
	},
}

func init() {
	verifyCmd.Flags().DurationVar(&verifyExpected, "expected", 0, "expected duration for the skew check (0 skips it)")
	rootCmd.AddCommand(verifyCmd)
}
