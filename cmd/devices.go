package cmd

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/audiolibrelab/midicapture/internal/audio"
	"github.com/audiolibrelab/midicapture/internal/midi"

	"github.com/spf13/cobra"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List available capture devices",
	Long:  `List the MIDI input ports visible to the driver and probe microphone access.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("🎹 Capture Devices (%s)\n", runtime.GOOS)
		fmt.Printf("═══════════════════════════════════════\n\n")

		ports := midi.InputPorts()
		fmt.Printf("📋 MIDI INPUT PORTS (%d found):\n", len(ports))
		for i, port := range ports {
			marker := ""
			if cfg.Midi.Port != "" && strings.Contains(strings.ToLower(port), strings.ToLower(cfg.Midi.Port)) {
				marker = "  (configured)"
			}
			fmt.Printf("  %d. %s%s\n", i+1, port, marker)
		}
		if len(ports) == 0 {
			fmt.Printf("  none - connect a device and try again\n")
		}

		fmt.Printf("\n🎤 MICROPHONE:\n")
		rec := audio.NewRecorder(audio.Options{
			Backend:    cfg.Audio.Backend,
			Device:     cfg.Audio.Device,
			SampleRate: cfg.Audio.SampleRate,
			Format:     cfg.Audio.Format,
		})
		if err := rec.Connect(); err != nil {
			fmt.Printf("  unavailable: %v\n", err)
		} else {
			fmt.Printf("  available (backend=%s, device=%s, %d Hz, %s)\n",
				cfg.Audio.Backend, cfg.Audio.Device, cfg.Audio.SampleRate, cfg.Audio.Format)
			rec.Close()
		}

		fmt.Printf("\n💡 Select a MIDI port with midi.port in the config file (substring match).\n")
		return nil
	},
}
