package fieldvoice

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/agnivade/fieldvoice/store"
)

const (
	maxUploadBytes      = 32 << 20 // multipart memory limit
	defaultProjectLimit = 100
)

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Printf("Failed to write response: %v", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

// statusForError maps domain errors to HTTP status codes. Anything
// unrecognized is treated as an upstream/store failure.
func statusForError(err error) int {
	var vErr *ValidationError
	switch {
	case errors.As(err, &vErr):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrSessionActive):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.store.ListProjects(r.Context(), defaultProjectLimit)
	if err != nil {
		s.log.Printf("List projects failed: %v", err)
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if projects == nil {
		projects = []store.Project{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"projects": projects})
}

func (s *Server) handleActiveSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.manager.ActiveSession(r.Context(), r.PathValue("techID"))
	if err != nil {
		s.writeError(w, statusForError(err), err)
		return
	}
	// sess is nil when the technician has no active session; the
	// response carries an explicit null.
	s.writeJSON(w, http.StatusOK, map[string]any{"session": sess})
}

type startSessionRequest struct {
	ProjectID   string `json:"project_id"`
	TechID      string `json:"tech_id"`
	SessionName string `json:"session_name"`
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	sess, err := s.manager.StartSession(r.Context(), req.ProjectID, req.TechID, req.SessionName)
	if err != nil {
		s.log.Printf("Start session failed: %v", err)
		status := statusForError(err)
		if status == http.StatusInternalServerError {
			status = http.StatusBadRequest
		}
		s.writeError(w, status, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"session": sess})
}

type endSessionRequest struct {
	SessionID string `json:"session_id"`
	Status    string `json:"status"`
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	var req endSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	sess, err := s.manager.EndSession(r.Context(), req.SessionID, req.Status)
	if err != nil {
		s.log.Printf("End session failed: %v", err)
		status := statusForError(err)
		if status == http.StatusInternalServerError {
			status = http.StatusBadRequest
		}
		s.writeError(w, status, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"session": sess})
}

func (s *Server) handleSessionNotes(w http.ResponseWriter, r *http.Request) {
	notes, err := s.manager.NotesForSession(r.Context(), r.PathValue("sessionID"))
	if err != nil {
		s.writeError(w, statusForError(err), err)
		return
	}
	if notes == nil {
		notes = []store.VoiceNote{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"notes": notes})
}

type saveVoiceNoteRequest struct {
	SessionID string `json:"session_id"`
	TechID    string `json:"tech_id"`
	Text      string `json:"text"`
	NoteType  string `json:"note_type"`
}

func (s *Server) handleSaveVoiceNote(w http.ResponseWriter, r *http.Request) {
	var req saveVoiceNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	note, err := s.manager.AttachVoiceNote(r.Context(), req.SessionID, req.TechID, req.Text, req.NoteType)
	if err != nil {
		s.log.Printf("Save voice note failed: %v", err)
		status := statusForError(err)
		if status == http.StatusInternalServerError {
			status = http.StatusBadRequest
		}
		s.writeError(w, status, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"note": note})
}

// handleUploadVoiceNote is the ephemeral transcription path: multipart
// audio in, transcript out. It does not persist a voice note; callers
// that want one saved go through POST /voice-notes/save.
func (s *Server) handleUploadVoiceNote(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	sessionID := r.FormValue("session_id")
	if sessionID == "" {
		s.writeError(w, http.StatusBadRequest, missingField("session_id"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, &ValidationError{Field: "file", Reason: "missing audio file"})
		return
	}
	defer file.Close()

	var filename, contentType string
	if header != nil {
		filename = header.Filename
		contentType = header.Header.Get("Content-Type")
	}

	upload, err := s.ingest.Transcribe(r.Context(), sessionID, filename, contentType, file)
	if err != nil {
		s.log.Printf("Transcription failed: %v", err)
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	s.writeJSON(w, http.StatusOK, upload)
}
