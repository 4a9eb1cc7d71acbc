// Package midi owns the process-wide connection to a MIDI input device and
// converts its raw channel-voice message stream into note sequences. The
// device is connected once at startup and reused across every recording
// start/stop cycle.
package midi

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"

	"github.com/audiolibrelab/midicapture/internal/notes"
)

// ErrDeviceUnavailable is returned when no MIDI input device can be
// acquired. It is recoverable: the caller surfaces it as a disabled
// capability, never as a fatal condition.
var ErrDeviceUnavailable = errors.New("no MIDI input device available")

// ErrNotRecording is returned by Stop when no recording is in progress.
var ErrNotRecording = errors.New("midi capture is not recording")

// MessageKind discriminates the channel-voice messages the capture
// cares about. Everything else is ignored at the driver boundary.
type MessageKind int

const (
	NoteOn MessageKind = iota
	NoteOff
)

// Message is one channel-voice event on the capture's timeline.
// Time is in seconds relative to the device connection.
type Message struct {
	Kind     MessageKind
	Channel  uint8
	Pitch    uint8
	Velocity uint8
	Time     float64
}

// Notes still waiting for their note-off when Stop arrives are closed with
// the stop time; if that would produce a non-positive duration they get
// this fallback instead, so a finalized sequence never holds a
// zero-duration note.
const minSynthDuration = 0.001

type pendingKey struct {
	pitch   uint8
	channel uint8
}

type pendingNote struct {
	start    float64
	velocity uint8
}

type ctrlOp int

const (
	ctrlStart ctrlOp = iota
	ctrlStop
)

type ctrlReq struct {
	op    ctrlOp
	at    float64 // stop time, seconds since connection
	reply chan *notes.NoteSequence
}

// Capture converts a MIDI input's message stream into note sequences.
// All pairing state lives in a single event-processing goroutine; the
// driver callback and tests feed it through the same message channel,
// so arrival order is the only order.
type Capture struct {
	mu          sync.RWMutex
	connected   bool
	connectedAt time.Time
	portName    string
	recording   bool
	stopListen  func()

	events chan Message
	ctrl   chan ctrlReq
	done   chan struct{}
}

// New creates a capture with its event loop running but no device attached.
func New() *Capture {
	c := &Capture{
		events: make(chan Message, 256),
		ctrl:   make(chan ctrlReq),
		done:   make(chan struct{}),
	}
	go c.run()
	return c
}

// Connect acquires the MIDI input whose name contains port, or the first
// available input when port is empty. It fails with ErrDeviceUnavailable
// when no matching device is present. The connection is process-wide state:
// acquired once, reused across many recording cycles.
func (c *Capture) Connect(port string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		return nil
	}

	in, err := findInPort(port)
	if err != nil {
		return err
	}

	stop, err := gomidi.ListenTo(in, c.handleDriverMessage)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	c.connected = true
	c.connectedAt = time.Now()
	c.portName = in.String()
	c.stopListen = stop

	slog.Info("MIDI input connected", "port", c.portName)
	return nil
}

// InputPorts lists the names of the MIDI input ports currently visible
// to the driver.
func InputPorts() []string {
	ins := gomidi.GetInPorts()
	names := make([]string, len(ins))
	for i, in := range ins {
		names[i] = in.String()
	}
	return names
}

func findInPort(port string) (drivers.In, error) {
	ins := gomidi.GetInPorts()
	if len(ins) == 0 {
		return nil, ErrDeviceUnavailable
	}
	if port == "" {
		return ins[0], nil
	}
	for _, in := range ins {
		if strings.Contains(strings.ToLower(in.String()), strings.ToLower(port)) {
			return in, nil
		}
	}
	return nil, fmt.Errorf("%w: no input port matching %q", ErrDeviceUnavailable, port)
}

// handleDriverMessage runs on the driver's delivery thread. It translates
// the raw message and hands it to the event loop; timestampms is
// milliseconds since the listener was attached, i.e. since connection.
func (c *Capture) handleDriverMessage(msg gomidi.Message, timestampms int32) {
	at := float64(timestampms) / 1000.0

	var ch, key, vel uint8
	switch {
	case msg.GetNoteStart(&ch, &key, &vel):
		c.Feed(Message{Kind: NoteOn, Channel: ch, Pitch: key, Velocity: vel, Time: at})
	case msg.GetNoteEnd(&ch, &key):
		c.Feed(Message{Kind: NoteOff, Channel: ch, Pitch: key, Time: at})
	}
}

// Feed delivers one channel-voice message to the event loop. It is called
// by the driver callback; tests use it to inject synthetic streams with
// explicit timestamps.
func (c *Capture) Feed(m Message) {
	select {
	case c.events <- m:
	default:
		slog.Warn("MIDI event buffer full, dropping message",
			"pitch", m.Pitch, "channel", m.Channel)
	}
}

// Connected reports whether a device connection is established.
func (c *Capture) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// ConnectedAt returns the wall-clock time of the device connection, the
// origin of all event timestamps.
func (c *Capture) ConnectedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connectedAt
}

// PortName returns the connected input port's name.
func (c *Capture) PortName() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.portName
}

// IsRecording reports whether a recording window is open.
func (c *Capture) IsRecording() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.recording
}

// Start clears any previously buffered notes and begins accumulating
// incoming messages. Starting while already recording is a no-op.
func (c *Capture) Start() error {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return ErrDeviceUnavailable
	}
	if c.recording {
		c.mu.Unlock()
		return nil
	}
	c.recording = true
	c.mu.Unlock()

	req := ctrlReq{op: ctrlStart, reply: make(chan *notes.NoteSequence, 1)}
	select {
	case c.ctrl <- req:
		<-req.reply
	case <-c.done:
		return ErrDeviceUnavailable
	}
	return nil
}

// Stop ends the recording window and returns the accumulated sequence.
// Messages already queued when Stop is called are still processed; notes
// without a matching note-off are closed at the stop time so no note is
// ever lost (very short trailing notes may result).
func (c *Capture) Stop() (*notes.NoteSequence, error) {
	c.mu.Lock()
	if !c.recording {
		c.mu.Unlock()
		return nil, ErrNotRecording
	}
	at := time.Since(c.connectedAt).Seconds()
	c.recording = false
	c.mu.Unlock()

	req := ctrlReq{op: ctrlStop, at: at, reply: make(chan *notes.NoteSequence, 1)}
	select {
	case c.ctrl <- req:
		return <-req.reply, nil
	case <-c.done:
		return nil, ErrNotRecording
	}
}

// Close releases the device connection and terminates the event loop.
// An in-flight recording is discarded.
func (c *Capture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopListen != nil {
		c.stopListen()
		c.stopListen = nil
	}
	c.connected = false
	c.recording = false
	select {
	case <-c.done:
	default:
		close(c.done)
	}
	return nil
}

// run is the single event-processing goroutine. The pending-note map is
// loop-local, so no lock guards the pairing state.
func (c *Capture) run() {
	var (
		recording bool
		seq       *notes.NoteSequence
		pending   map[pendingKey]*pendingNote
		openOrder []pendingKey
	)

	process := func(m Message) {
		if !recording {
			return
		}
		key := pendingKey{pitch: m.Pitch, channel: m.Channel}
		switch m.Kind {
		case NoteOn:
			if prev, ok := pending[key]; ok {
				// Duplicate note-on without an intervening note-off:
				// close the running note at the new message's time so
				// neither press is lost.
				seq.Add(closeNote(key, prev, m.Time))
				delete(pending, key)
				openOrder = removeKey(openOrder, key)
			}
			pending[key] = &pendingNote{start: m.Time, velocity: m.Velocity}
			openOrder = append(openOrder, key)
		case NoteOff:
			prev, ok := pending[key]
			if !ok {
				// Orphan note-off: cannot correspond to any captured press.
				slog.Debug("dropping orphan note-off", "pitch", m.Pitch, "channel", m.Channel)
				return
			}
			seq.Add(closeNote(key, prev, m.Time))
			delete(pending, key)
			openOrder = removeKey(openOrder, key)
		}
	}

	for {
		select {
		case m := <-c.events:
			process(m)
		case req := <-c.ctrl:
			switch req.op {
			case ctrlStart:
				// Messages queued before the start request predate the
				// recording window; flush them under the old state.
				for drained := false; !drained; {
					select {
					case m := <-c.events:
						process(m)
					default:
						drained = true
					}
				}
				if !recording {
					recording = true
					seq = notes.NewNoteSequence()
					pending = make(map[pendingKey]*pendingNote)
					openOrder = openOrder[:0]
				}
				req.reply <- nil
			case ctrlStop:
				// Drain messages that arrived before the stop request so
				// they land in this recording, not the void.
				for drained := false; !drained; {
					select {
					case m := <-c.events:
						process(m)
					default:
						drained = true
					}
				}
				for _, key := range openOrder {
					seq.Add(closeNote(key, pending[key], req.at))
				}
				recording = false
				pending = nil
				openOrder = nil
				req.reply <- seq
				seq = nil
			}
		case <-c.done:
			return
		}
	}
}

func closeNote(key pendingKey, p *pendingNote, end float64) notes.Note {
	d := end - p.start
	if d <= 0 {
		d = minSynthDuration
	}
	return notes.Note{
		Pitch:    key.pitch,
		Velocity: p.velocity,
		Channel:  key.channel,
		Start:    p.start,
		Duration: d,
	}
}

func removeKey(keys []pendingKey, key pendingKey) []pendingKey {
	for i, k := range keys {
		if k == key {
			return append(keys[:i], keys[i+1:]...)
		}
	}
	return keys
}
