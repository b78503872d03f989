// Package store persists projects, sessions, voice notes and reports.
// It is the only writer of durable state; everything above it treats
// the records returned here as the source of truth.
package store

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors returned by Store implementations so that callers can
// branch on error kind instead of matching message strings.
var (
	// ErrNotFound indicates the referenced record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrSessionActive indicates the technician already has a session
	// in status "active".
	ErrSessionActive = errors.New("technician already has an active session")
)

// Session status values. A session is created "active" and ends in
// exactly one of the terminal states.
const (
	StatusActive    = "active"
	StatusCompleted = "completed"
	StatusAbandoned = "abandoned"
)

// Voice note types.
const (
	NoteContractor = "contractor"
	NoteManager    = "manager"
	NoteClient     = "client"
	NoteInternal   = "internal"
)

// Project is a unit of work that sessions belong to. Immutable once
// created.
type Project struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedBy   string    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
}

// Session is a bounded unit of field work by one technician on one
// project.
type Session struct {
	ID          string     `json:"id"`
	ProjectID   string     `json:"project_id"`
	TechID      string     `json:"tech_id"`
	SessionName string     `json:"session_name"`
	Status      string     `json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	EndedAt     *time.Time `json:"ended_at,omitempty"`
	// DurationSeconds is set when the session ends.
	DurationSeconds *float64 `json:"duration_seconds,omitempty"`
}

// VoiceNote is a transcribed utterance attached to a session.
// Immutable once created.
type VoiceNote struct {
	ID              string    `json:"id"`
	SessionID       string    `json:"session_id"`
	TechID          string    `json:"tech_id"`
	TranscribedText string    `json:"transcribed_text"`
	NoteType        string    `json:"note_type"`
	CreatedAt       time.Time `json:"created_at"`
}

// Report is a generated document artifact referencing a session and a
// project, plus a pointer to an externally stored file.
type Report struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"session_id"`
	ProjectID  string    `json:"project_id"`
	ReportText string    `json:"report_text"`
	FilePath   string    `json:"file_path"`
	CreatedAt  time.Time `json:"created_at"`
}

// Store is the record store gateway. Implementations assign record
// identifiers and timestamps on insert.
type Store interface {
	CreateProject(ctx context.Context, name, description, createdBy string) (*Project, error)
	ListProjects(ctx context.Context, limit int) ([]Project, error)

	// CreateSession inserts a session with status "active". It returns
	// ErrSessionActive if the technician already has one; the check and
	// the insert run in a single transaction.
	CreateSession(ctx context.Context, projectID, techID, sessionName string) (*Session, error)

	// EndSession sets the session status and end timestamp. It returns
	// ErrNotFound if no such session exists. Ending an already-ended
	// session re-applies the update without erroring.
	EndSession(ctx context.Context, sessionID, status string) (*Session, error)

	// ActiveSession returns the most recently started active session
	// for the technician, or nil if there is none.
	ActiveSession(ctx context.Context, techID string) (*Session, error)

	// SaveVoiceNote appends a note to a session. It returns ErrNotFound
	// if the session does not exist; the session's status is not
	// checked.
	SaveVoiceNote(ctx context.Context, sessionID, techID, text, noteType string) (*VoiceNote, error)

	NotesForSession(ctx context.Context, sessionID string) ([]VoiceNote, error)

	CreateReport(ctx context.Context, sessionID, projectID, reportText, filePath string) (*Report, error)

	Close() error
}
