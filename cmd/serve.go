package cmd

import (
	"fmt"
	"log/slog"

	"github.com/audiolibrelab/midicapture/internal/audio"
	"github.com/audiolibrelab/midicapture/internal/midi"
	"github.com/audiolibrelab/midicapture/internal/server"
	"github.com/audiolibrelab/midicapture/internal/session"
	"github.com/audiolibrelab/midicapture/internal/store"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web server for remote control",
	Long: `Start the MidiCapture web server to control recording via its JSON API.
This allows you to start, stop and save recordings from another device on
the same network.

Device connections are established once at startup; a missing device shows
up as a disabled capability in the status endpoint, not as a failure.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		port, _ := cmd.Flags().GetString("port")

		prefs, err := store.Open(cfg.Output.SettingsFile)
		if err != nil {
			return fmt.Errorf("failed to open settings: %w", err)
		}

		mc := midi.New()
		defer mc.Close()
		if err := mc.Connect(cfg.Midi.Port); err != nil {
			slog.Warn("no MIDI access, recording disabled until a device appears on restart", "error", err)
		}

		var ar audio.Recorder
		rec := audio.NewRecorder(audio.Options{
			Backend:    cfg.Audio.Backend,
			Device:     cfg.Audio.Device,
			SampleRate: cfg.Audio.SampleRate,
			Format:     cfg.Audio.Format,
		})
		if err := rec.Connect(); err != nil {
			slog.Warn("no microphone access, audio recording disabled", "error", err)
		} else {
			ar = rec
			defer ar.Close()
		}

		sess := session.New(mc, ar, prefs.RecordAudio())

		srv := server.New(cfg, sess, prefs, port)
		slog.Info("MidiCapture web server starting", "port", port)
		if err := srv.Start(); err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().String("port", "8080", "port for the web server")
}
