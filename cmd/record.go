package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/audiolibrelab/midicapture/internal/audio"
	"github.com/audiolibrelab/midicapture/internal/export"
	"github.com/audiolibrelab/midicapture/internal/midi"
	"github.com/audiolibrelab/midicapture/internal/session"
	"github.com/audiolibrelab/midicapture/internal/store"

	"github.com/spf13/cobra"
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record a MIDI performance",
	Long: `Record notes from the connected MIDI input device until interrupted.
When audio recording is enabled the microphone is captured alongside the
notes. After stopping, the recording is named and exported to the output
directory.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		prefs, err := store.Open(cfg.Output.SettingsFile)
		if err != nil {
			return fmt.Errorf("failed to open settings: %w", err)
		}

		recordAudio := prefs.RecordAudio()
		if cmd.Flags().Changed("audio") {
			recordAudio, _ = cmd.Flags().GetBool("audio")
			if err := prefs.SetRecordAudio(recordAudio); err != nil {
				slog.Warn("failed to persist audio preference", "error", err)
			}
		}

		mc := midi.New()
		defer mc.Close()
		if err := mc.Connect(cfg.Midi.Port); err != nil {
			if errors.Is(err, midi.ErrDeviceUnavailable) {
				return fmt.Errorf("cannot record MIDI, no access to device: %w", err)
			}
			return fmt.Errorf("failed to connect MIDI input: %w", err)
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

		sess := session.New(mc, ar, recordAudio)
		if err := sess.Start(); err != nil {
			return err
		}

		fmt.Printf("Recording from %q", mc.PortName())
		if recordAudio && ar != nil {
			fmt.Printf(" with audio")
		}
		fmt.Println(" - press Ctrl+C to finish")

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan
		signal.Stop(sigChan)
		fmt.Println()

		result, err := sess.Stop()
		if err != nil {
			return fmt.Errorf("failed to stop recording: %w", err)
		}

		stdin := bufio.NewScanner(os.Stdin)

		if result.Empty {
			if !confirm(stdin, "No MIDI notes were recorded, save anyway? [y/N] ") {
				fmt.Println("Recording discarded.")
				return nil
			}
		}

		recording := result.Recording
		name := promptName(stdin, prefs.PreviousNames())
		if name != "" {
			recording, err = recording.WithName(name)
			if err != nil {
				return err
			}
			if err := prefs.RememberName(name); err != nil {
				slog.Warn("failed to remember recording name", "error", err)
			}
		}

		files, err := export.Write(cfg.Output.Directory, recording, result.Clip)
		if err != nil {
			return fmt.Errorf("failed to export recording: %w", err)
		}

		fmt.Printf("Saved %d note(s):\n", recording.Len())
		for _, f := range files {
			fmt.Printf("  %s\n", f)
		}
		return nil
	},
}

func init() {
	recordCmd.Flags().Bool("audio", false, "record microphone audio alongside MIDI (persisted as the new default)")
}

func confirm(stdin *bufio.Scanner, prompt string) bool {
	fmt.Print(prompt)
	if !stdin.Scan() {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(stdin.Text()))
	return answer == "y" || answer == "yes"
}

// promptName asks for the recording name, suggesting previously used
// names. An empty answer keeps the generated placeholder.
func promptName(stdin *bufio.Scanner, prevNames []string) string {
	if len(prevNames) > 0 {
		fmt.Println("Previous names:")
		for _, n := range prevNames {
			fmt.Printf("  %s\n", n)
		}
	}
	fmt.Print("Name (empty keeps the generated one): ")
	if !stdin.Scan() {
		return ""
	}
	return strings.TrimSpace(stdin.Text())
}
