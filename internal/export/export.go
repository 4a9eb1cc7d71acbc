// Package export serializes a finalized recording into its on-disk
// artifact: a structured JSON document plus, when audio was recorded, a
// sibling audio file sharing the same base name.
package export

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/audiolibrelab/midicapture/internal/audio"
	"github.com/audiolibrelab/midicapture/internal/notes"
)

// Document is the serialized form of a recording artifact.
type Document struct {
	FileName           string          `json:"fileName"`
	Name               string          `json:"name"`
	Date               time.Time       `json:"date"`
	Notes              []notes.Note    `json:"notes"`
	Speed              float64         `json:"speed"`
	SelectedTrackIndex int             `json:"selectedTrackIndex"`
	TimeSelection      *notes.TimeSpan `json:"timeSelection"`
}

// FileStamp formats a timestamp for filenames: ISO 8601 with the colons
// replaced by dashes so the result is valid on every filesystem.
func FileStamp(t time.Time) string {
	return strings.ReplaceAll(t.UTC().Format("2006-01-02T15:04:05.000Z"), ":", "-")
}

// BaseName returns the shared artifact base name {name}_{stamp}.
func BaseName(rec *notes.Recording) string {
	return fmt.Sprintf("%s_%s", sanitizeName(rec.Name()), FileStamp(rec.Date()))
}

// sanitizeName strips path separators from a user-entered name.
func sanitizeName(name string) string {
	name = strings.ReplaceAll(name, string(filepath.Separator), "_")
	return strings.ReplaceAll(name, "..", "_")
}

// NewDocument builds the export document for a recording. Notes are
// emitted in the deterministic export order.
func NewDocument(rec *notes.Recording) Document {
	ns := rec.SortedNotes()
	if ns == nil {
		ns = []notes.Note{}
	}
	return Document{
		FileName:           BaseName(rec) + ".json",
		Name:               rec.Name(),
		Date:               rec.Date(),
		Notes:              ns,
		Speed:              rec.Speed(),
		SelectedTrackIndex: rec.SelectedTrack(),
		TimeSelection:      rec.TimeSelection(),
	}
}

// Write persists the recording document and, if present, the audio clip
// into dir. It returns the paths of the written files.
func Write(dir string, rec *notes.Recording, clip *audio.Clip) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	doc := NewDocument(rec)
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal recording: %w", err)
	}

	docPath := filepath.Join(dir, doc.FileName)
	if err := os.WriteFile(docPath, data, 0644); err != nil {
		return nil, fmt.Errorf("failed to write recording file: %w", err)
	}
	written := []string{docPath}

	if clip != nil {
		audioPath := filepath.Join(dir, BaseName(rec)+"."+clip.Ext())
		if err := os.WriteFile(audioPath, clip.Data, 0644); err != nil {
			return written, fmt.Errorf("failed to write audio file: %w", err)
		}
		written = append(written, audioPath)
	}

	slog.Info("recording exported", "name", rec.Name(), "files", len(written), "dir", dir)
	return written, nil
}
