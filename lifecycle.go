package fieldvoice

import (
	"context"
	"log"

	"github.com/agnivade/fieldvoice/store"
)

// SessionManager owns the session lifecycle: a session is created
// active, accepts voice notes, and ends exactly once in a terminal
// status. It holds no record state of its own; every operation is a
// single round-trip to the store and failures propagate to the caller
// unwrapped.
type SessionManager struct {
	store store.Store
	log   *log.Logger
}

// NewSessionManager creates a manager backed by the given store.
func NewSessionManager(st store.Store, logger *log.Logger) *SessionManager {
	return &SessionManager{
		store: st,
		log:   logger,
	}
}

// StartSession creates an active session for the technician on the
// project. It returns store.ErrSessionActive if the technician already
// has an active session; the check and the insert share one store
// transaction. Two racing calls against separate store replicas remain
// a known consistency gap.
func (m *SessionManager) StartSession(ctx context.Context, projectID, techID, sessionName string) (*store.Session, error) {
	if projectID == "" {
		return nil, missingField("project_id")
	}
	if techID == "" {
		return nil, missingField("tech_id")
	}
	if sessionName == "" {
		sessionName = "Session"
	}

	sess, err := m.store.CreateSession(ctx, projectID, techID, sessionName)
	if err != nil {
		return nil, err
	}

	m.log.Printf("Started session %s for tech %s on project %s", sess.ID, techID, projectID)
	return sess, nil
}

// EndSession transitions a session to a terminal status. status
// defaults to "completed" and must be "completed" or "abandoned".
// Ending an already-ended session re-applies the update without
// erroring; store.ErrNotFound is returned for an unknown session id.
func (m *SessionManager) EndSession(ctx context.Context, sessionID, status string) (*store.Session, error) {
	if sessionID == "" {
		return nil, missingField("session_id")
	}
	if status == "" {
		status = store.StatusCompleted
	}
	if status != store.StatusCompleted && status != store.StatusAbandoned {
		return nil, &ValidationError{Field: "status", Reason: `must be "completed" or "abandoned"`}
	}

	sess, err := m.store.EndSession(ctx, sessionID, status)
	if err != nil {
		return nil, err
	}

	m.log.Printf("Ended session %s with status %s", sess.ID, sess.Status)
	return sess, nil
}

// ActiveSession returns the technician's most recently started active
// session, or nil when there is none.
func (m *SessionManager) ActiveSession(ctx context.Context, techID string) (*store.Session, error) {
	if techID == "" {
		return nil, missingField("tech_id")
	}
	return m.store.ActiveSession(ctx, techID)
}

// AttachVoiceNote appends a transcribed note to a session. The session
// may be in any status; only its existence is checked. noteType
// defaults to "internal".
func (m *SessionManager) AttachVoiceNote(ctx context.Context, sessionID, techID, transcript, noteType string) (*store.VoiceNote, error) {
	if sessionID == "" {
		return nil, missingField("session_id")
	}
	if techID == "" {
		return nil, missingField("tech_id")
	}
	if transcript == "" {
		return nil, missingField("text")
	}
	if noteType == "" {
		noteType = store.NoteInternal
	}
	switch noteType {
	case store.NoteContractor, store.NoteManager, store.NoteClient, store.NoteInternal:
	default:
		return nil, &ValidationError{Field: "note_type", Reason: "unknown note type"}
	}

	return m.store.SaveVoiceNote(ctx, sessionID, techID, transcript, noteType)
}

// NotesForSession lists a session's persisted notes in insertion order.
func (m *SessionManager) NotesForSession(ctx context.Context, sessionID string) ([]store.VoiceNote, error) {
	if sessionID == "" {
		return nil, missingField("session_id")
	}
	return m.store.NotesForSession(ctx, sessionID)
}

// CreateReport appends a report record referencing a session, a project
// and an externally stored artifact.
func (m *SessionManager) CreateReport(ctx context.Context, sessionID, projectID, reportText, storageKey string) (*store.Report, error) {
	if sessionID == "" {
		return nil, missingField("session_id")
	}
	if projectID == "" {
		return nil, missingField("project_id")
	}
	return m.store.CreateReport(ctx, sessionID, projectID, reportText, storageKey)
}
