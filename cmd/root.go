package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/audiolibrelab/midicapture/internal/config"

	"github.com/spf13/cobra"
)

var (
	cfg          *config.Config
	cfgFile      string
	verboseLevel int
)

var rootCmd = &cobra.Command{
	Use:   "midicapture",
	Short: "Record MIDI performances with optional synchronized audio",
	Long: `MidiCapture records a live performance from a connected MIDI input
device, optionally alongside a synchronized microphone recording, and
exports the result as a JSON note document plus an audio file.

The MIDI device is connected once at startup and reused across every
recording; note timestamps are corrected so the first note anchors near
the moment recording was started, not the moment the device was opened.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		setupLogging(verboseLevel)

		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/midicapture.yaml)")
	rootCmd.PersistentFlags().IntVarP(&verboseLevel, "verbose", "v", 0, "verbose level: 0=info, 1=debug")

	rootCmd.AddCommand(recordCmd)
	rootCmd.AddCommand(devicesCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(serveCmd)
}

// setupLogging configures slog based on the verbose level.
func setupLogging(level int) {
	slogLevel := slog.LevelInfo
	if level >= 1 {
		slogLevel = slog.LevelDebug
	}

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slogLevel})
	slog.SetDefault(slog.New(handler))
}
