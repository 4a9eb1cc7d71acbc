package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config is the resolved application configuration.
type Config struct {
	Midi   MidiConfig   `mapstructure:"midi" yaml:"midi"`
	Audio  AudioConfig  `mapstructure:"audio" yaml:"audio"`
	Output OutputConfig `mapstructure:"output" yaml:"output"`
}

type MidiConfig struct {
	// Port selects the MIDI input by substring match against the port
	// name. Empty means the first available input.
	Port string `mapstructure:"port" yaml:"port"`
}

type AudioConfig struct {
	Backend    string `mapstructure:"backend" yaml:"backend"` // "pulse", "alsa", "avfoundation", "auto"
	Device     string `mapstructure:"device" yaml:"device"`
	SampleRate int    `mapstructure:"sample_rate" yaml:"sample_rate"`
	Format     string `mapstructure:"format" yaml:"format"` // "ogg", "wav", "flac", "mp3"
}

type OutputConfig struct {
	Directory    string `mapstructure:"directory" yaml:"directory"`
	SettingsFile string `mapstructure:"settings_file" yaml:"settings_file"`
}

var defaultConfig = Config{
	Midi: MidiConfig{
		Port: "",
	},
	Audio: AudioConfig{
		Backend:    "auto",
		Device:     "default",
		SampleRate: 48000,
		Format:     "ogg",
	},
	Output: OutputConfig{
		Directory:    filepath.Join(os.Getenv("HOME"), "Music", "MidiCapture"),
		SettingsFile: filepath.Join(os.Getenv("HOME"), ".config", "midicapture-settings.yaml"),
	},
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	return os.ExpandEnv("$HOME/.config/midicapture.yaml")
}

// Load reads the configuration file, filling unset fields from the
// defaults. A missing file is not an error: the defaults apply in full.
func Load(configFile string) (*Config, error) {
	if configFile == "" {
		configFile = DefaultPath()
	}

	v := viper.New()
	v.SetConfigFile(configFile)
	v.SetEnvPrefix("MIDICAPTURE")
	v.AutomaticEnv()

	cfg := defaultConfig

	if err := v.ReadInConfig(); err != nil {
		if os.IsNotExist(err) {
			return &cfg, nil
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return &cfg, nil
		}
		return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	cfg.Output.Directory = expandPath(cfg.Output.Directory)
	cfg.Output.SettingsFile = expandPath(cfg.Output.SettingsFile)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Audio.SampleRate <= 0 {
		return fmt.Errorf("audio.sample_rate must be > 0, got %d", c.Audio.SampleRate)
	}
	switch c.Audio.Format {
	case "ogg", "wav", "flac", "mp3":
	default:
		return fmt.Errorf("audio.format must be one of ogg, wav, flac, mp3, got: %s", c.Audio.Format)
	}
	switch c.Audio.Backend {
	case "", "auto", "pulse", "alsa", "avfoundation":
	default:
		return fmt.Errorf("audio.backend must be one of auto, pulse, alsa, avfoundation, got: %s", c.Audio.Backend)
	}
	if c.Output.Directory == "" {
		return fmt.Errorf("output.directory must not be empty")
	}
	return nil
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, path[2:])
	}
	return path
}
