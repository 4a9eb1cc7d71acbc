package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/audiolibrelab/midicapture/internal/config"
	"github.com/audiolibrelab/midicapture/internal/notes"
	"github.com/audiolibrelab/midicapture/internal/session"
	"github.com/audiolibrelab/midicapture/internal/store"
)

type fakeNoteRecorder struct {
	connected   bool
	connectedAt time.Time
	seq         *notes.NoteSequence
}

func (f *fakeNoteRecorder) Connected() bool        { return f.connected }
func (f *fakeNoteRecorder) ConnectedAt() time.Time { return f.connectedAt }
func (f *fakeNoteRecorder) Start() error           { return nil }
func (f *fakeNoteRecorder) Stop() (*notes.NoteSequence, error) {
	if f.seq == nil {
		return notes.NewNoteSequence(), nil
	}
	return f.seq, nil
}

func newTestServer(t *testing.T, mc *fakeNoteRecorder) *Server {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		Output: config.OutputConfig{
			Directory:    filepath.Join(dir, "recordings"),
			SettingsFile: filepath.Join(dir, "settings.yaml"),
		},
	}
	prefs, err := store.Open(cfg.Output.SettingsFile)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	sess := session.New(mc, nil, false)
	return New(cfg, sess, prefs, "0")
}

func doJSON(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestStatusEndpoint(t *testing.T) {
	srv := newTestServer(t, &fakeNoteRecorder{connected: true, connectedAt: time.Now()})
	h := srv.Handler()

	w := doJSON(t, h, http.MethodGet, "/api/status", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status code = %d, want 200", w.Code)
	}

	var st session.Status
	if err := json.Unmarshal(w.Body.Bytes(), &st); err != nil {
		t.Fatalf("invalid status JSON: %v", err)
	}
	if !st.MidiAvailable || st.AudioAvailable || st.IsRecording {
		t.Errorf("status = %+v, want midi only, idle", st)
	}
}

func TestStartWithoutDevice(t *testing.T) {
	srv := newTestServer(t, &fakeNoteRecorder{connected: false})
	h := srv.Handler()

	w := doJSON(t, h, http.MethodPost, "/api/record/start", "")
	if w.Code != http.StatusConflict {
		t.Errorf("start without device = %d, want 409", w.Code)
	}
}

func TestRecordSaveFlow(t *testing.T) {
	mc := &fakeNoteRecorder{
		connected:   true,
		connectedAt: time.Now(),
		seq: notes.NewNoteSequence(
			notes.Note{Pitch: 60, Velocity: 100, Start: 0.1, Duration: 0.5},
		),
	}
	srv := newTestServer(t, mc)
	h := srv.Handler()

	if w := doJSON(t, h, http.MethodPost, "/api/record/start", ""); w.Code != http.StatusOK {
		t.Fatalf("start = %d, want 200", w.Code)
	}
	w := doJSON(t, h, http.MethodPost, "/api/record/stop", "")
	if w.Code != http.StatusOK {
		t.Fatalf("stop = %d, want 200", w.Code)
	}

	var stop StopResponse
	json.Unmarshal(w.Body.Bytes(), &stop)
	if stop.NoteCount != 1 || stop.Empty {
		t.Errorf("stop response = %+v, want 1 note, not empty", stop)
	}

	w = doJSON(t, h, http.MethodPost, "/api/record/save", `{"name":"Jam"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("save = %d, want 200: %s", w.Code, w.Body.String())
	}
	var save SaveResponse
	json.Unmarshal(w.Body.Bytes(), &save)
	if len(save.Files) != 1 {
		t.Errorf("saved %d files, want 1", len(save.Files))
	}

	// The name lands in the autocomplete list.
	w = doJSON(t, h, http.MethodGet, "/api/names?q=ja", "")
	var names []string
	json.Unmarshal(w.Body.Bytes(), &names)
	if len(names) != 1 || names[0] != "Jam" {
		t.Errorf("names = %v, want [Jam]", names)
	}

	// Saving twice is rejected: the pending result was consumed.
	if w := doJSON(t, h, http.MethodPost, "/api/record/save", `{"name":"Jam"}`); w.Code != http.StatusNotFound {
		t.Errorf("second save = %d, want 404", w.Code)
	}

	// Exported file shows up in the listing.
	w = doJSON(t, h, http.MethodGet, "/api/recordings", "")
	var listing RecordingsResponse
	json.Unmarshal(w.Body.Bytes(), &listing)
	if listing.TotalCount != 1 {
		t.Errorf("recordings listed = %d, want 1", listing.TotalCount)
	}
}

func TestSaveEmptyRequiresConfirm(t *testing.T) {
	mc := &fakeNoteRecorder{connected: true, connectedAt: time.Now()}
	srv := newTestServer(t, mc)
	h := srv.Handler()

	doJSON(t, h, http.MethodPost, "/api/record/start", "")
	w := doJSON(t, h, http.MethodPost, "/api/record/stop", "")

	var stop StopResponse
	json.Unmarshal(w.Body.Bytes(), &stop)
	if !stop.Empty {
		t.Fatal("stop response not flagged empty")
	}

	if w := doJSON(t, h, http.MethodPost, "/api/record/save", `{"name":"Empty"}`); w.Code != http.StatusConflict {
		t.Errorf("unconfirmed empty save = %d, want 409", w.Code)
	}
	if w := doJSON(t, h, http.MethodPost, "/api/record/save", `{"name":"Empty","confirm":true}`); w.Code != http.StatusOK {
		t.Errorf("confirmed empty save = %d, want 200: %s", w.Code, w.Body.String())
	}
}

func TestStopWhileIdle(t *testing.T) {
	srv := newTestServer(t, &fakeNoteRecorder{connected: true, connectedAt: time.Now()})
	h := srv.Handler()

	if w := doJSON(t, h, http.MethodPost, "/api/record/stop", ""); w.Code != http.StatusConflict {
		t.Errorf("stop while idle = %d, want 409", w.Code)
	}
}

func TestSettingsEndpoints(t *testing.T) {
	srv := newTestServer(t, &fakeNoteRecorder{connected: true, connectedAt: time.Now()})
	h := srv.Handler()

	w := doJSON(t, h, http.MethodGet, "/api/settings", "")
	var settings SettingsResponse
	json.Unmarshal(w.Body.Bytes(), &settings)
	if settings.RecordAudio {
		t.Error("record_audio defaults to true, want false")
	}

	if w := doJSON(t, h, http.MethodPut, "/api/settings", `{"record_audio":true}`); w.Code != http.StatusOK {
		t.Fatalf("settings update = %d, want 200", w.Code)
	}

	w = doJSON(t, h, http.MethodGet, "/api/settings", "")
	json.Unmarshal(w.Body.Bytes(), &settings)
	if !settings.RecordAudio {
		t.Error("record_audio not persisted")
	}
}
