package notes

import (
	"sort"
)

// Note represents a single played pitch with resolved timing.
// Pitch and Velocity follow the MIDI convention (0-127), Start and
// Duration are seconds relative to the owning capture's time origin.
type Note struct {
	Pitch    uint8   `json:"pitch"`
	Velocity uint8   `json:"velocity"`
	Channel  uint8   `json:"channel"`
	Start    float64 `json:"start"`
	Duration float64 `json:"duration"`
}

// End returns the end time of the note in seconds.
func (n Note) End() float64 {
	return n.Start + n.Duration
}

// NoteSequence is an ordered collection of notes. At rest the notes keep
// their insertion order; Sorted provides the deterministic export ordering.
type NoteSequence struct {
	notes []Note
}

// NewNoteSequence creates a sequence containing the given notes in order.
func NewNoteSequence(ns ...Note) *NoteSequence {
	s := &NoteSequence{notes: make([]Note, len(ns))}
	copy(s.notes, ns)
	return s
}

// Add appends a note, preserving insertion order.
func (s *NoteSequence) Add(n Note) {
	s.notes = append(s.notes, n)
}

// Len returns the number of notes in the sequence.
func (s *NoteSequence) Len() int {
	return len(s.notes)
}

// Notes returns a copy of the notes in insertion order.
func (s *NoteSequence) Notes() []Note {
	out := make([]Note, len(s.notes))
	copy(out, s.notes)
	return out
}

// Sorted returns a copy of the notes sorted by start time ascending,
// ties broken by pitch ascending. Every export path uses this ordering.
func (s *NoteSequence) Sorted() []Note {
	out := s.Notes()
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Start != out[j].Start {
			return out[i].Start < out[j].Start
		}
		return out[i].Pitch < out[j].Pitch
	})
	return out
}

// Shifted returns a new sequence with every start time translated by delta
// seconds. Starts that would become negative are clamped to zero so that a
// first recorded note can anchor at t=0 instead of being discarded.
func (s *NoteSequence) Shifted(delta float64) *NoteSequence {
	out := &NoteSequence{notes: make([]Note, len(s.notes))}
	for i, n := range s.notes {
		n.Start += delta
		if n.Start < 0 {
			n.Start = 0
		}
		out.notes[i] = n
	}
	return out
}

// Duration returns the end time of the last-ending note, or 0 for an
// empty sequence.
func (s *NoteSequence) Duration() float64 {
	var max float64
	for _, n := range s.notes {
		if end := n.End(); end > max {
			max = end
		}
	}
	return max
}

// Clone returns an independent copy of the sequence.
func (s *NoteSequence) Clone() *NoteSequence {
	return NewNoteSequence(s.notes...)
}
