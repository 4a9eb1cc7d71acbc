package notes

import (
	"encoding/json"
	"fmt"
	"time"
)

// MissingFieldError reports a required Recording field that was absent
// at construction time.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("recording: missing required field %q", e.Field)
}

// TimeSpan is a half-open selection of the reference material in seconds.
// A nil *TimeSpan means the whole duration.
type TimeSpan struct {
	Start float64
	End   float64
}

// MarshalJSON serializes the span as the ordered pair [start, end].
func (t TimeSpan) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]float64{t.Start, t.End})
}

// UnmarshalJSON parses the ordered pair form.
func (t *TimeSpan) UnmarshalJSON(data []byte) error {
	var pair [2]float64
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	t.Start, t.End = pair[0], pair[1]
	return nil
}

// Recording is a finalized capture: a note sequence plus session metadata.
// A Recording is constructed once when a session finalizes and is immutable
// afterwards; Clone and WithName produce modified copies.
type Recording struct {
	name          string
	date          time.Time
	seq           *NoteSequence
	speed         float64
	selectedTrack int
	timeSelection *TimeSpan
}

// Option configures optional Recording metadata.
type Option func(*Recording)

// WithSpeed sets the relative tempo factor (default 1).
func WithSpeed(speed float64) Option {
	return func(r *Recording) { r.speed = speed }
}

// WithSelectedTrack sets the reference track index (default 0).
func WithSelectedTrack(track int) Option {
	return func(r *Recording) { r.selectedTrack = track }
}

// WithTimeSelection sets the reference time selection (default whole duration).
func WithTimeSelection(span *TimeSpan) Option {
	return func(r *Recording) { r.timeSelection = span }
}

// New creates a Recording, validating that the required fields are present.
func New(name string, date time.Time, seq *NoteSequence, opts ...Option) (*Recording, error) {
	if name == "" {
		return nil, &MissingFieldError{Field: "name"}
	}
	if date.IsZero() {
		return nil, &MissingFieldError{Field: "date"}
	}
	if seq == nil {
		return nil, &MissingFieldError{Field: "notes"}
	}

	r := &Recording{
		name:  name,
		date:  date,
		seq:   seq.Clone(),
		speed: 1,
	}
	for _, opt := range opts {
		opt(r)
	}

	if r.speed <= 0 {
		return nil, fmt.Errorf("recording: speed must be > 0, got %v", r.speed)
	}
	if r.selectedTrack < 0 {
		return nil, fmt.Errorf("recording: selected track must be >= 0, got %d", r.selectedTrack)
	}
	if r.timeSelection != nil && r.timeSelection.Start >= r.timeSelection.End {
		return nil, fmt.Errorf("recording: time selection start %v must be before end %v",
			r.timeSelection.Start, r.timeSelection.End)
	}
	return r, nil
}

// Name returns the recording's label.
func (r *Recording) Name() string { return r.name }

// Date returns the creation timestamp.
func (r *Recording) Date() time.Time { return r.date }

// Speed returns the relative tempo factor.
func (r *Recording) Speed() float64 { return r.speed }

// SelectedTrack returns the reference track index.
func (r *Recording) SelectedTrack() int { return r.selectedTrack }

// TimeSelection returns the reference time selection, or nil for the
// whole duration.
func (r *Recording) TimeSelection() *TimeSpan {
	if r.timeSelection == nil {
		return nil
	}
	span := *r.timeSelection
	return &span
}

// Len returns the number of captured notes.
func (r *Recording) Len() int { return r.seq.Len() }

// Notes returns the captured notes in insertion order.
func (r *Recording) Notes() []Note { return r.seq.Notes() }

// SortedNotes returns the captured notes in export order.
func (r *Recording) SortedNotes() []Note { return r.seq.Sorted() }

// NoteDuration returns the end time of the last-ending note.
func (r *Recording) NoteDuration() float64 { return r.seq.Duration() }

// Clone returns an independent copy of the recording.
func (r *Recording) Clone() *Recording {
	out := *r
	out.seq = r.seq.Clone()
	if r.timeSelection != nil {
		span := *r.timeSelection
		out.timeSelection = &span
	}
	return &out
}

// WithName returns a copy of the recording carrying the given name.
// The session finalizes recordings under a placeholder name; the caller
// applies the user-chosen name through this method.
func (r *Recording) WithName(name string) (*Recording, error) {
	if name == "" {
		return nil, &MissingFieldError{Field: "name"}
	}
	out := r.Clone()
	out.name = name
	return out, nil
}
