package midi

import (
	"math"
	"testing"
	"time"

	"github.com/audiolibrelab/midicapture/internal/notes"
)

// newTestCapture returns a capture that behaves as if a device had been
// connected at the given moment, without touching real hardware.
func newTestCapture(t *testing.T, connectedAt time.Time) *Capture {
	t.Helper()
	c := New()
	t.Cleanup(func() { c.Close() })
	c.mu.Lock()
	c.connected = true
	c.connectedAt = connectedAt
	c.portName = "test input"
	c.mu.Unlock()
	return c
}

func mustStop(t *testing.T, c *Capture) *notes.NoteSequence {
	t.Helper()
	seq, err := c.Stop()
	if err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	return seq
}

func TestCapture_PairsOnOff(t *testing.T) {
	c := newTestCapture(t, time.Now().Add(-time.Minute))
	if err := c.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	c.Feed(Message{Kind: NoteOn, Pitch: 60, Channel: 0, Velocity: 100, Time: 1.0})
	c.Feed(Message{Kind: NoteOff, Pitch: 60, Channel: 0, Time: 1.5})
	c.Feed(Message{Kind: NoteOn, Pitch: 64, Channel: 1, Velocity: 80, Time: 1.2})
	c.Feed(Message{Kind: NoteOff, Pitch: 64, Channel: 1, Time: 2.2})

	seq := mustStop(t, c)
	got := seq.Notes()
	if len(got) != 2 {
		t.Fatalf("got %d notes, want 2", len(got))
	}

	first := got[0]
	if first.Pitch != 60 || first.Velocity != 100 || first.Channel != 0 {
		t.Errorf("first note = %+v, want pitch 60 vel 100 ch 0", first)
	}
	if math.Abs(first.Start-1.0) > 1e-9 || math.Abs(first.Duration-0.5) > 1e-9 {
		t.Errorf("first note timing = (%v, %v), want (1.0, 0.5)", first.Start, first.Duration)
	}

	second := got[1]
	if math.Abs(second.Duration-1.0) > 1e-9 {
		t.Errorf("second note duration = %v, want 1.0", second.Duration)
	}
}

func TestCapture_DuplicateNoteOnClosesPrevious(t *testing.T) {
	c := newTestCapture(t, time.Now().Add(-time.Minute))
	if err := c.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	c.Feed(Message{Kind: NoteOn, Pitch: 60, Channel: 0, Velocity: 100, Time: 1.0})
	c.Feed(Message{Kind: NoteOn, Pitch: 60, Channel: 0, Velocity: 90, Time: 1.4})
	c.Feed(Message{Kind: NoteOff, Pitch: 60, Channel: 0, Time: 2.0})

	seq := mustStop(t, c)
	got := seq.Notes()
	if len(got) != 2 {
		t.Fatalf("got %d notes, want 2 (first press must not be lost)", len(got))
	}

	if math.Abs(got[0].Start-1.0) > 1e-9 || math.Abs(got[0].Duration-0.4) > 1e-9 {
		t.Errorf("first press timing = (%v, %v), want (1.0, 0.4)", got[0].Start, got[0].Duration)
	}
	if got[0].Velocity != 100 {
		t.Errorf("first press velocity = %d, want 100", got[0].Velocity)
	}
	if math.Abs(got[1].Start-1.4) > 1e-9 || math.Abs(got[1].Duration-0.6) > 1e-9 {
		t.Errorf("second press timing = (%v, %v), want (1.4, 0.6)", got[1].Start, got[1].Duration)
	}
}

func TestCapture_OrphanNoteOffDropped(t *testing.T) {
	c := newTestCapture(t, time.Now().Add(-time.Minute))
	if err := c.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	c.Feed(Message{Kind: NoteOff, Pitch: 72, Channel: 0, Time: 0.5})
	c.Feed(Message{Kind: NoteOn, Pitch: 60, Channel: 0, Velocity: 100, Time: 1.0})
	c.Feed(Message{Kind: NoteOff, Pitch: 60, Channel: 0, Time: 1.5})

	seq := mustStop(t, c)
	if seq.Len() != 1 {
		t.Fatalf("got %d notes, want 1 (orphan note-off must not appear)", seq.Len())
	}
	if seq.Notes()[0].Pitch != 60 {
		t.Errorf("pitch = %d, want 60", seq.Notes()[0].Pitch)
	}
}

func TestCapture_PendingClosedAtStop(t *testing.T) {
	// Stop time is measured against the connection; backdate it so the
	// stop lands well after the synthetic note-on.
	c := newTestCapture(t, time.Now().Add(-10*time.Second))
	if err := c.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	c.Feed(Message{Kind: NoteOn, Pitch: 60, Channel: 0, Velocity: 100, Time: 1.0})

	seq := mustStop(t, c)
	if seq.Len() != 1 {
		t.Fatalf("got %d notes, want 1 (pending note must never be dropped)", seq.Len())
	}

	n := seq.Notes()[0]
	if n.Duration <= 0 {
		t.Errorf("duration = %v, want > 0", n.Duration)
	}
	// stop happened ~10s after connection, note-on at 1.0s.
	if math.Abs(n.Duration-9.0) > 0.5 {
		t.Errorf("duration = %v, want ~9.0", n.Duration)
	}
}

func TestCapture_StartClearsPreviousBuffer(t *testing.T) {
	c := newTestCapture(t, time.Now().Add(-time.Minute))
	if err := c.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	c.Feed(Message{Kind: NoteOn, Pitch: 60, Channel: 0, Velocity: 100, Time: 1.0})
	c.Feed(Message{Kind: NoteOff, Pitch: 60, Channel: 0, Time: 1.5})
	mustStop(t, c)

	// Second cycle must start from a clean slate.
	if err := c.Start(); err != nil {
		t.Fatalf("second Start failed: %v", err)
	}
	c.Feed(Message{Kind: NoteOn, Pitch: 62, Channel: 0, Velocity: 70, Time: 3.0})
	c.Feed(Message{Kind: NoteOff, Pitch: 62, Channel: 0, Time: 3.5})

	seq := mustStop(t, c)
	if seq.Len() != 1 {
		t.Fatalf("got %d notes, want 1", seq.Len())
	}
	if seq.Notes()[0].Pitch != 62 {
		t.Errorf("pitch = %d, want 62", seq.Notes()[0].Pitch)
	}
}

func TestCapture_MessagesIgnoredWhileIdle(t *testing.T) {
	c := newTestCapture(t, time.Now().Add(-time.Minute))

	c.Feed(Message{Kind: NoteOn, Pitch: 60, Channel: 0, Velocity: 100, Time: 0.5})
	c.Feed(Message{Kind: NoteOff, Pitch: 60, Channel: 0, Time: 0.9})

	if err := c.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	seq := mustStop(t, c)
	if seq.Len() != 0 {
		t.Errorf("got %d notes recorded outside the window, want 0", seq.Len())
	}
}

func TestCapture_CloseMidRecording(t *testing.T) {
	c := newTestCapture(t, time.Now().Add(-time.Minute))
	if err := c.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	c.Feed(Message{Kind: NoteOn, Pitch: 60, Channel: 0, Velocity: 100, Time: 1.0})

	if err := c.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if c.IsRecording() {
		t.Error("IsRecording = true after Close")
	}

	// Neither call may hang on the terminated event loop.
	if _, err := c.Stop(); err != ErrNotRecording {
		t.Errorf("Stop after Close = %v, want ErrNotRecording", err)
	}
	if err := c.Start(); err != ErrDeviceUnavailable {
		t.Errorf("Start after Close = %v, want ErrDeviceUnavailable", err)
	}
}

func TestCapture_StartStopPreconditions(t *testing.T) {
	c := New()
	t.Cleanup(func() { c.Close() })

	if err := c.Start(); err != ErrDeviceUnavailable {
		t.Errorf("Start without device = %v, want ErrDeviceUnavailable", err)
	}
	if _, err := c.Stop(); err != ErrNotRecording {
		t.Errorf("Stop while idle = %v, want ErrNotRecording", err)
	}

	c.mu.Lock()
	c.connected = true
	c.connectedAt = time.Now()
	c.mu.Unlock()

	if err := c.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	// Idempotent-safe, not an error.
	if err := c.Start(); err != nil {
		t.Errorf("second Start = %v, want nil", err)
	}
	if !c.IsRecording() {
		t.Error("IsRecording = false during recording")
	}
	mustStop(t, c)
	if c.IsRecording() {
		t.Error("IsRecording = true after stop")
	}
}
