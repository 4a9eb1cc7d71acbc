// Package session orchestrates one recording lifecycle at a time: it starts
// and stops the MIDI and audio captures together, applies the start-time
// offset correction, and assembles the finished Recording artifact.
package session

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/audiolibrelab/midicapture/internal/audio"
	"github.com/audiolibrelab/midicapture/internal/notes"
)

// State is the session lifecycle state.
type State string

const (
	StateIdle      State = "IDLE"
	StateRecording State = "RECORDING"
)

// ErrMidiUnavailable is returned by Start when the mandatory MIDI capture
// has no device connection. Audio is optional; MIDI is not.
var ErrMidiUnavailable = errors.New("cannot record: MIDI device unavailable")

// NoteRecorder is the MIDI capture surface the session drives.
type NoteRecorder interface {
	Connected() bool
	ConnectedAt() time.Time
	Start() error
	Stop() (*notes.NoteSequence, error)
}

// AudioRecorder is the optional microphone capture surface.
type AudioRecorder interface {
	Connected() bool
	Start() error
	Stop() (*audio.Clip, error)
}

// Result is the terminal artifact of a session. Empty flags a capture with
// zero notes; the session never auto-discards such a take, the caller
// decides after confirming with the user.
type Result struct {
	Recording *notes.Recording
	Clip      *audio.Clip
	Empty     bool
}

// Status is the read-only observed state driving the caller's controls.
type Status struct {
	State          State  `json:"state"`
	MidiAvailable  bool   `json:"midi_available"`
	AudioAvailable bool   `json:"audio_available"`
	IsRecording    bool   `json:"is_recording"`
	RecordAudio    bool   `json:"record_audio"`
	LastError      string `json:"last_error,omitempty"`
}

// Session coordinates the two captures through an Idle -> Recording -> Idle
// lifecycle. It holds no reference to a produced Recording once Stop
// returns it.
type Session struct {
	midi  NoteRecorder
	audio AudioRecorder

	mu          sync.RWMutex
	state       State
	recordAudio bool
	startedAt   time.Time
	audioActive bool

	lastError      string
	lastErrorMutex sync.RWMutex
}

// New creates an idle session. audioRec may be nil when no microphone
// capture is configured at all.
func New(midiRec NoteRecorder, audioRec AudioRecorder, recordAudio bool) *Session {
	return &Session{
		midi:        midiRec,
		audio:       audioRec,
		state:       StateIdle,
		recordAudio: recordAudio,
	}
}

// Start begins a recording. Starting while already recording is a no-op.
// MIDI is mandatory: without a connected device the call fails and the
// session stays idle. Audio start failures degrade to MIDI-only capture.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateRecording {
		return nil
	}
	if s.midi == nil || !s.midi.Connected() {
		s.setLastError(ErrMidiUnavailable.Error())
		return ErrMidiUnavailable
	}

	s.startedAt = time.Now()
	if err := s.midi.Start(); err != nil {
		s.setLastError(fmt.Sprintf("failed to start MIDI capture: %v", err))
		return fmt.Errorf("failed to start MIDI capture: %w", err)
	}

	s.audioActive = false
	if s.recordAudio && s.audio != nil && s.audio.Connected() {
		if err := s.audio.Start(); err != nil {
			slog.Warn("audio capture failed to start, continuing MIDI-only", "error", err)
		} else {
			s.audioActive = true
		}
	}

	s.state = StateRecording
	s.clearLastError()
	slog.Info("recording started", "audio", s.audioActive)
	return nil
}

// Stop finalizes the recording and returns the assembled result. Stopping
// while idle is a no-op returning (nil, nil). The MIDI capture is stopped
// under the session lock, so a concurrent Start observes idle only once
// the capture is ready for a fresh take; the slower audio finalize runs
// outside the lock.
func (s *Session) Stop() (*Result, error) {
	s.mu.Lock()
	if s.state != StateRecording {
		s.mu.Unlock()
		return nil, nil
	}
	startedAt := s.startedAt
	audioActive := s.audioActive
	s.audioActive = false

	seq, midiErr := s.midi.Stop()
	s.state = StateIdle
	s.mu.Unlock()

	var clip *audio.Clip
	if audioActive {
		var err error
		clip, err = s.audio.Stop()
		if err != nil {
			// A failed audio finalize never costs the MIDI take.
			slog.Error("failed to stop audio capture", "error", err)
			clip = nil
		}
	}

	if midiErr != nil {
		s.setLastError(fmt.Sprintf("failed to stop MIDI capture: %v", midiErr))
		return nil, fmt.Errorf("failed to stop MIDI capture: %w", midiErr)
	}

	// The capture's timestamps are relative to device connection, which
	// typically predates the user's start by a long idle stretch. Shift
	// them so the first note anchors near the user-perceived start.
	offset := s.midi.ConnectedAt().Sub(startedAt).Seconds()
	shifted := seq.Shifted(offset)

	rec, err := notes.New(placeholderName(startedAt), time.Now(), shifted)
	if err != nil {
		s.setLastError(fmt.Sprintf("failed to assemble recording: %v", err))
		return nil, fmt.Errorf("failed to assemble recording: %w", err)
	}

	slog.Info("recording finalized",
		"notes", shifted.Len(), "offset_seconds", offset, "audio", clip != nil)

	return &Result{Recording: rec, Clip: clip, Empty: shifted.Len() == 0}, nil
}

// placeholderName labels a freshly finalized recording until the caller
// applies the user-chosen name.
func placeholderName(startedAt time.Time) string {
	return fmt.Sprintf("Unnamed %d", startedAt.UnixMilli())
}

// Status reports the observed device and lifecycle state.
func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Status{
		State:          s.state,
		MidiAvailable:  s.midi != nil && s.midi.Connected(),
		AudioAvailable: s.audio != nil && s.audio.Connected(),
		IsRecording:    s.state == StateRecording,
		RecordAudio:    s.recordAudio,
		LastError:      s.LastError(),
	}
}

// RecordAudio reports whether the next recording will include audio.
func (s *Session) RecordAudio() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.recordAudio
}

// SetRecordAudio toggles audio for future recordings. Ignored while a
// recording is in progress, mirroring the disabled toggle in the UI.
func (s *Session) SetRecordAudio(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateRecording {
		return
	}
	s.recordAudio = enabled
}

// LastError returns the last error message (thread-safe).
func (s *Session) LastError() string {
	s.lastErrorMutex.RLock()
	defer s.lastErrorMutex.RUnlock()
	return s.lastError
}

func (s *Session) setLastError(msg string) {
	s.lastErrorMutex.Lock()
	defer s.lastErrorMutex.Unlock()
	s.lastError = msg
	slog.Error("session error", "error_message", msg)
}

func (s *Session) clearLastError() {
	s.lastErrorMutex.Lock()
	defer s.lastErrorMutex.Unlock()
	s.lastError = ""
}
