// Package server exposes the recording session over a small JSON API so
// the capture can be driven from another device on the network. The
// server holds the result of the last stop until it is named and saved.
package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/audiolibrelab/midicapture/internal/config"
	"github.com/audiolibrelab/midicapture/internal/export"
	"github.com/audiolibrelab/midicapture/internal/session"
	"github.com/audiolibrelab/midicapture/internal/store"
)

// Server drives a session over HTTP.
type Server struct {
	sess  *session.Session
	cfg   *config.Config
	prefs *store.Store
	port  string

	mu      sync.Mutex
	pending *session.Result
}

// StopResponse reports the outcome of a stop so the client can decide
// whether to prompt before saving an empty take.
type StopResponse struct {
	NoteCount int  `json:"note_count"`
	Empty     bool `json:"empty"`
	HasAudio  bool `json:"has_audio"`
}

// SaveRequest names the pending recording. Confirm must be set to save a
// take that captured zero notes.
type SaveRequest struct {
	Name    string `json:"name"`
	Confirm bool   `json:"confirm"`
}

// SaveResponse lists the files written by a save.
type SaveResponse struct {
	Files []string `json:"files"`
}

// SettingsResponse carries the persisted user preferences.
type SettingsResponse struct {
	RecordAudio   bool     `json:"record_audio"`
	PreviousNames []string `json:"previous_names"`
}

// SettingsRequest updates the persisted user preferences.
type SettingsRequest struct {
	RecordAudio *bool `json:"record_audio"`
}

// FileInfo describes one exported artifact on disk.
type FileInfo struct {
	Name         string    `json:"name"`
	Size         int64     `json:"size"`
	SizeHuman    string    `json:"size_human"`
	ModTime      time.Time `json:"mod_time"`
	ModTimeHuman string    `json:"mod_time_human"`
	Extension    string    `json:"extension"`
}

// RecordingsResponse lists exported artifacts.
type RecordingsResponse struct {
	Files           []FileInfo `json:"files"`
	TotalCount      int        `json:"total_count"`
	OutputDirectory string     `json:"output_directory"`
}

// GenericResponse is the success/error envelope for mutating endpoints.
type GenericResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// New creates a server around an existing session.
func New(cfg *config.Config, sess *session.Session, prefs *store.Store, port string) *Server {
	return &Server{sess: sess, cfg: cfg, prefs: prefs, port: port}
}

// Start runs the HTTP server. It blocks until the listener fails.
func (s *Server) Start() error {
	addr := ":" + s.port
	slog.Info("web server listening", "addr", addr)
	return http.ListenAndServe(addr, s.Handler())
}

// Handler builds the API routing table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("POST /api/record/start", s.handleStart)
	mux.HandleFunc("POST /api/record/stop", s.handleStop)
	mux.HandleFunc("POST /api/record/save", s.handleSave)
	mux.HandleFunc("GET /api/recordings", s.handleRecordings)
	mux.HandleFunc("GET /api/settings", s.handleGetSettings)
	mux.HandleFunc("PUT /api/settings", s.handlePutSettings)
	mux.HandleFunc("GET /api/names", s.handleNames)
	return mux
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.sess.Status())
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if err := s.sess.Start(); err != nil {
		writeJSON(w, http.StatusConflict, GenericResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, GenericResponse{Success: true, Message: "recording started"})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	result, err := s.sess.Stop()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, GenericResponse{Error: err.Error()})
		return
	}
	if result == nil {
		writeJSON(w, http.StatusConflict, GenericResponse{Error: "no recording in progress"})
		return
	}

	s.mu.Lock()
	s.pending = result
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, StopResponse{
		NoteCount: result.Recording.Len(),
		Empty:     result.Empty,
		HasAudio:  result.Clip != nil,
	})
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	var req SaveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, GenericResponse{Error: "invalid request body"})
		return
	}

	s.mu.Lock()
	result := s.pending
	s.mu.Unlock()

	if result == nil {
		writeJSON(w, http.StatusNotFound, GenericResponse{Error: "no pending recording to save"})
		return
	}
	if result.Empty && !req.Confirm {
		writeJSON(w, http.StatusConflict, GenericResponse{
			Error: "no MIDI notes were recorded; set confirm to save anyway",
		})
		return
	}

	rec := result.Recording
	if req.Name != "" {
		named, err := rec.WithName(req.Name)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, GenericResponse{Error: err.Error()})
			return
		}
		rec = named
	}

	files, err := export.Write(s.cfg.Output.Directory, rec, result.Clip)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, GenericResponse{Error: err.Error()})
		return
	}

	if req.Name != "" {
		if err := s.prefs.RememberName(req.Name); err != nil {
			slog.Warn("failed to remember recording name", "error", err)
		}
	}

	s.mu.Lock()
	s.pending = nil
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, SaveResponse{Files: files})
}

func (s *Server) handleRecordings(w http.ResponseWriter, r *http.Request) {
	dir := s.cfg.Output.Directory
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			writeJSON(w, http.StatusOK, RecordingsResponse{OutputDirectory: dir, Files: []FileInfo{}})
			return
		}
		writeJSON(w, http.StatusInternalServerError, GenericResponse{Error: err.Error()})
		return
	}

	files := []FileInfo{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			slog.Warn("failed to stat recording file", "file", entry.Name(), "error", err)
			continue
		}
		files = append(files, FileInfo{
			Name:         entry.Name(),
			Size:         info.Size(),
			SizeHuman:    formatBytes(info.Size()),
			ModTime:      info.ModTime(),
			ModTimeHuman: info.ModTime().Format("2006-01-02 15:04:05"),
			Extension:    strings.TrimPrefix(filepath.Ext(entry.Name()), "."),
		})
	}

	// Newest first.
	sort.Slice(files, func(i, j int) bool {
		return files[i].ModTime.After(files[j].ModTime)
	})

	writeJSON(w, http.StatusOK, RecordingsResponse{
		Files:           files,
		TotalCount:      len(files),
		OutputDirectory: dir,
	})
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	names := s.prefs.PreviousNames()
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, SettingsResponse{
		RecordAudio:   s.prefs.RecordAudio(),
		PreviousNames: names,
	})
}

func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	var req SettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, GenericResponse{Error: "invalid request body"})
		return
	}
	if req.RecordAudio != nil {
		if err := s.prefs.SetRecordAudio(*req.RecordAudio); err != nil {
			writeJSON(w, http.StatusInternalServerError, GenericResponse{Error: err.Error()})
			return
		}
		s.sess.SetRecordAudio(*req.RecordAudio)
	}
	writeJSON(w, http.StatusOK, GenericResponse{Success: true, Message: "settings updated"})
}

func (s *Server) handleNames(w http.ResponseWriter, r *http.Request) {
	names := store.FilterNames(s.prefs.PreviousNames(), r.URL.Query().Get("q"))
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, names)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// formatBytes formats bytes in human readable form.
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
