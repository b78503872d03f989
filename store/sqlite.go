package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	nanoid "github.com/matoous/go-nanoid/v2"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS projects (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	created_by TEXT NOT NULL,
	created_at REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	project_id TEXT NOT NULL,
	tech_id TEXT NOT NULL,
	session_name TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'active',
	started_at REAL NOT NULL,
	ended_at REAL,
	duration_seconds REAL
);

CREATE INDEX IF NOT EXISTS idx_sessions_tech_status ON sessions(tech_id, status);

CREATE TABLE IF NOT EXISTS voice_notes (
	id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL REFERENCES sessions(id),
	tech_id TEXT NOT NULL,
	transcribed_text TEXT NOT NULL,
	note_type TEXT NOT NULL DEFAULT 'internal',
	created_at REAL NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_voice_notes_session ON voice_notes(session_id);

CREATE TABLE IF NOT EXISTS reports (
	id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	project_id TEXT NOT NULL,
	report_text TEXT NOT NULL,
	file_path TEXT NOT NULL,
	created_at REAL NOT NULL
);
`

// SQLStore implements Store on top of database/sql with the sqlite
// driver.
type SQLStore struct {
	db *sql.DB
}

// Open opens (and if necessary initializes) the database at the given
// DSN. Use ":memory:" for an ephemeral store.
func Open(dsn string) (*SQLStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// The driver is single-writer; a second writer connection would
	// fail with SQLITE_BUSY under load.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &SQLStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

func newID() (string, error) {
	return nanoid.New()
}

// CreateProject inserts a new project record.
func (s *SQLStore) CreateProject(ctx context.Context, name, description, createdBy string) (*Project, error) {
	id, err := newID()
	if err != nil {
		return nil, fmt.Errorf("generate id: %w", err)
	}

	now := time.Now()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO projects (id, name, description, created_by, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, id, name, description, createdBy, unixFloat(now))
	if err != nil {
		return nil, fmt.Errorf("insert project: %w", err)
	}

	return &Project{
		ID:          id,
		Name:        name,
		Description: description,
		CreatedBy:   createdBy,
		CreatedAt:   now,
	}, nil
}

// ListProjects returns projects newest first, bounded by limit.
func (s *SQLStore) ListProjects(ctx context.Context, limit int) ([]Project, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, description, created_by, created_at
		FROM projects
		ORDER BY created_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query projects: %w", err)
	}
	defer rows.Close()

	var projects []Project
	for rows.Next() {
		var p Project
		var createdAt float64
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.CreatedBy, &createdAt); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		p.CreatedAt = timeFromUnix(createdAt)
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// CreateSession inserts an active session for the technician. The
// active-session check and the insert share one transaction, so two
// racing calls on the same store cannot both succeed.
func (s *SQLStore) CreateSession(ctx context.Context, projectID, techID, sessionName string) (*Session, error) {
	id, err := newID()
	if err != nil {
		return nil, fmt.Errorf("generate id: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var existing int
	err = tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM sessions WHERE tech_id = ? AND status = ?
	`, techID, StatusActive).Scan(&existing)
	if err != nil {
		return nil, fmt.Errorf("check active session: %w", err)
	}
	if existing > 0 {
		return nil, ErrSessionActive
	}

	now := time.Now()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO sessions (id, project_id, tech_id, session_name, status, started_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, id, projectID, techID, sessionName, StatusActive, unixFloat(now))
	if err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	return &Session{
		ID:          id,
		ProjectID:   projectID,
		TechID:      techID,
		SessionName: sessionName,
		Status:      StatusActive,
		StartedAt:   now,
	}, nil
}

// EndSession sets the terminal status, end timestamp and duration.
// Calling it again on an ended session re-applies the update.
func (s *SQLStore) EndSession(ctx context.Context, sessionID, status string) (*Session, error) {
	now := time.Now()
	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions
		SET status = ?, ended_at = ?, duration_seconds = MAX(0, ? - started_at)
		WHERE id = ?
	`, status, unixFloat(now), unixFloat(now), sessionID)
	if err != nil {
		return nil, fmt.Errorf("update session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return nil, ErrNotFound
	}

	return s.session(ctx, sessionID)
}

// ActiveSession returns the technician's active session, most recently
// started first, or nil when none exists.
func (s *SQLStore) ActiveSession(ctx context.Context, techID string) (*Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, project_id, tech_id, session_name, status, started_at, ended_at, duration_seconds
		FROM sessions
		WHERE tech_id = ? AND status = ?
		ORDER BY started_at DESC
		LIMIT 1
	`, techID, StatusActive)

	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan session: %w", err)
	}
	return sess, nil
}

func (s *SQLStore) session(ctx context.Context, sessionID string) (*Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, project_id, tech_id, session_name, status, started_at, ended_at, duration_seconds
		FROM sessions
		WHERE id = ?
	`, sessionID)

	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan session: %w", err)
	}
	return sess, nil
}

// SaveVoiceNote appends a note to an existing session. The session may
// be in any status.
func (s *SQLStore) SaveVoiceNote(ctx context.Context, sessionID, techID, text, noteType string) (*VoiceNote, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM sessions WHERE id = ?
	`, sessionID).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("check session: %w", err)
	}
	if exists == 0 {
		return nil, ErrNotFound
	}

	id, err := newID()
	if err != nil {
		return nil, fmt.Errorf("generate id: %w", err)
	}

	now := time.Now()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO voice_notes (id, session_id, tech_id, transcribed_text, note_type, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, id, sessionID, techID, text, noteType, unixFloat(now))
	if err != nil {
		return nil, fmt.Errorf("insert voice note: %w", err)
	}

	return &VoiceNote{
		ID:              id,
		SessionID:       sessionID,
		TechID:          techID,
		TranscribedText: text,
		NoteType:        noteType,
		CreatedAt:       now,
	}, nil
}

// NotesForSession returns the session's notes in insertion order.
func (s *SQLStore) NotesForSession(ctx context.Context, sessionID string) ([]VoiceNote, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, tech_id, transcribed_text, note_type, created_at
		FROM voice_notes
		WHERE session_id = ?
		ORDER BY created_at ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query voice notes: %w", err)
	}
	defer rows.Close()

	var notes []VoiceNote
	for rows.Next() {
		var n VoiceNote
		var createdAt float64
		if err := rows.Scan(&n.ID, &n.SessionID, &n.TechID, &n.TranscribedText, &n.NoteType, &createdAt); err != nil {
			return nil, fmt.Errorf("scan voice note: %w", err)
		}
		n.CreatedAt = timeFromUnix(createdAt)
		notes = append(notes, n)
	}
	return notes, rows.Err()
}

// CreateReport inserts a report record.
func (s *SQLStore) CreateReport(ctx context.Context, sessionID, projectID, reportText, filePath string) (*Report, error) {
	id, err := newID()
	if err != nil {
		return nil, fmt.Errorf("generate id: %w", err)
	}

	now := time.Now()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO reports (id, session_id, project_id, report_text, file_path, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, id, sessionID, projectID, reportText, filePath, unixFloat(now))
	if err != nil {
		return nil, fmt.Errorf("insert report: %w", err)
	}

	return &Report{
		ID:         id,
		SessionID:  sessionID,
		ProjectID:  projectID,
		ReportText: reportText,
		FilePath:   filePath,
		CreatedAt:  now,
	}, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*Session, error) {
	var sess Session
	var startedAt float64
	var endedAt, duration sql.NullFloat64

	err := row.Scan(&sess.ID, &sess.ProjectID, &sess.TechID, &sess.SessionName,
		&sess.Status, &startedAt, &endedAt, &duration)
	if err != nil {
		return nil, err
	}

	sess.StartedAt = timeFromUnix(startedAt)
	if endedAt.Valid {
		t := timeFromUnix(endedAt.Float64)
		sess.EndedAt = &t
	}
	if duration.Valid {
		d := duration.Float64
		sess.DurationSeconds = &d
	}
	return &sess, nil
}

func unixFloat(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

func timeFromUnix(ts float64) time.Time {
	sec := int64(ts)
	nsec := int64((ts - float64(sec)) * 1e9)
	return time.Unix(sec, nsec)
}
