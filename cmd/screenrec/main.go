package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	// capture backends register themselves
	_ "github.com/dj-oyu/screen-recorder/internal/capture/gst"
	_ "github.com/dj-oyu/screen-recorder/internal/capture/synthetic"
	"github.com/dj-oyu/screen-recorder/internal/config"
	"github.com/dj-oyu/screen-recorder/internal/logger"
)

var (
	version  = "0.1.0"
	cfgFile  string
	logLevel string
	logColor bool

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:           "screenrec",
	Short:         "Screen and system audio recorder",
	Long:          `screenrec captures the screen and the system audio mix into segmented Matroska (H.264 + AAC) files.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if cmd.Flags().Changed("log-level") {
			loaded.LogLevel = logLevel
		}
		if cmd.Flags().Changed("log-color") {
			loaded.LogColor = logColor
		}

		level, err := logger.ParseLevel(loaded.LogLevel)
		if err != nil {
			return err
		}
		logger.Init(level, os.Stderr, loaded.LogColor)
		loaded.Validate()
		cfg = loaded
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("screenrec v%s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./screenrec.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error, silent)")
	rootCmd.PersistentFlags().BoolVar(&logColor, "log-color", false, "Enable colored log output")

	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
