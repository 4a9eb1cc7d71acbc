// Package audio owns the process-wide microphone connection and buffers a
// continuous signal during an active recording window. Capture runs through
// an FFmpeg subprocess supervised by the recorder; on stop the encoded file
// becomes the session's audio artifact.
package audio

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ErrDeviceUnavailable is returned when microphone access cannot be
// acquired. Recoverable: the session degrades to MIDI-only capture.
var ErrDeviceUnavailable = errors.New("no audio input device available")

// ErrNotRecording is returned by Stop when no recording is in progress.
var ErrNotRecording = errors.New("audio capture is not recording")

// Clip is an encoded audio artifact paired with its content type.
type Clip struct {
	Data []byte
	MIME string
}

// Ext derives a file extension from the clip's MIME type,
// e.g. "audio/ogg; codecs=opus" -> "ogg".
func (c *Clip) Ext() string {
	_, sub, ok := strings.Cut(c.MIME, "/")
	if !ok {
		return "bin"
	}
	if i := strings.IndexByte(sub, ';'); i >= 0 {
		sub = sub[:i]
	}
	ext := strings.TrimSpace(sub)
	if ext == "mpeg" {
		return "mp3"
	}
	return ext
}

// Recorder is the microphone capture surface driven by the session.
type Recorder interface {
	Connect() error
	Connected() bool
	Start() error
	Stop() (*Clip, error)
	Close() error
}

// Options configures an FFmpeg recorder.
type Options struct {
	Backend    string // "pulse", "alsa" or "auto"
	Device     string // capture device name, e.g. "default"
	SampleRate int
	Format     string // "ogg", "wav", "flac" or "mp3"
}

// NewRecorder creates a microphone recorder for the resolved backend.
func NewRecorder(opts Options) Recorder {
	return &FFmpegRecorder{opts: resolveOptions(opts)}
}

func resolveOptions(opts Options) Options {
	if opts.Backend == "" || opts.Backend == "auto" {
		opts.Backend = defaultBackend()
	}
	if opts.Device == "" {
		opts.Device = "default"
	}
	if opts.SampleRate == 0 {
		opts.SampleRate = 48000
	}
	if opts.Format == "" {
		opts.Format = "ogg"
	}
	return opts
}

func defaultBackend() string {
	switch runtime.GOOS {
	case "darwin":
		return "avfoundation"
	default:
		return "pulse"
	}
}

// MIMEForFormat maps an output format to its MIME type.
func MIMEForFormat(format string) string {
	switch format {
	case "wav":
		return "audio/wav"
	case "flac":
		return "audio/flac"
	case "mp3":
		return "audio/mpeg"
	default:
		return "audio/ogg"
	}
}

// FFmpegRecorder implements Recorder by running an FFmpeg capture process
// writing to a temporary file for the duration of the recording window.
type FFmpegRecorder struct {
	opts Options

	mu        sync.Mutex
	connected bool
	cmd       *exec.Cmd
	outFile   string
	startedAt time.Time
	stderr    strings.Builder
}

// Connect verifies that FFmpeg and the configured capture backend are
// usable. No process is spawned until Start.
func (r *FFmpegRecorder) Connect() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.connected {
		return nil
	}
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return fmt.Errorf("%w: ffmpeg not found in PATH", ErrDeviceUnavailable)
	}
	r.connected = true
	slog.Info("audio input connected", "backend", r.opts.Backend, "device", r.opts.Device)
	return nil
}

// Connected reports whether microphone access has been established.
func (r *FFmpegRecorder) Connected() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.connected
}

// Start begins buffering from the moment of the call.
func (r *FFmpegRecorder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.connected {
		return ErrDeviceUnavailable
	}
	if r.cmd != nil {
		return fmt.Errorf("audio capture already recording")
	}

	outFile := filepath.Join(os.TempDir(),
		fmt.Sprintf("midicapture-%d.%s", time.Now().UnixNano(), r.opts.Format))

	cmd := exec.Command("ffmpeg",
		"-hide_banner",
		"-loglevel", "error",
		"-f", r.opts.Backend,
		"-i", r.opts.Device,
		"-ar", strconv.Itoa(r.opts.SampleRate),
		"-ac", "1",
		"-y", outFile,
	)
	r.stderr.Reset()
	cmd.Stderr = &r.stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start FFmpeg capture: %w", err)
	}

	r.cmd = cmd
	r.outFile = outFile
	r.startedAt = time.Now()

	slog.Info("audio recording started", "file", outFile, "backend", r.opts.Backend)
	return nil
}

// Stop ends buffering and returns the encoded artifact. The clip's
// duration closely matches the Start/Stop wall-clock interval; alignment
// with the MIDI stream happens at the session level, not here.
func (r *FFmpegRecorder) Stop() (*Clip, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cmd == nil {
		return nil, ErrNotRecording
	}

	// FFmpeg finalizes the container cleanly on SIGINT.
	if err := r.cmd.Process.Signal(os.Interrupt); err != nil {
		r.cmd.Process.Kill()
	}
	if err := r.cmd.Wait(); err != nil {
		// Interrupt-driven exits are expected; anything with no output
		// file is a real failure.
		slog.Debug("FFmpeg capture exited", "error", err, "stderr", r.stderr.String())
	}
	r.cmd = nil

	data, err := os.ReadFile(r.outFile)
	os.Remove(r.outFile)
	r.outFile = ""
	if err != nil {
		return nil, fmt.Errorf("failed to read captured audio: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("FFmpeg produced no audio data: %s", strings.TrimSpace(r.stderr.String()))
	}

	elapsed := time.Since(r.startedAt)
	slog.Info("audio recording stopped", "bytes", len(data), "elapsed", elapsed.Round(time.Millisecond))

	return &Clip{Data: data, MIME: MIMEForFormat(r.opts.Format)}, nil
}

// Close releases the recorder, terminating any in-flight capture process.
func (r *FFmpegRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cmd != nil {
		r.cmd.Process.Kill()
		r.cmd.Wait()
		r.cmd = nil
	}
	if r.outFile != "" {
		os.Remove(r.outFile)
		r.outFile = ""
	}
	r.connected = false
	return nil
}
