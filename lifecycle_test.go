package fieldvoice

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agnivade/fieldvoice/store"
)

func newTestManager() (*SessionManager, *fakeStore) {
	st := newFakeStore()
	return NewSessionManager(st, testLogger()), st
}

func TestManagerStartSession(t *testing.T) {
	m, _ := newTestManager()
	ctx := context.Background()

	sess, err := m.StartSession(ctx, "proj-1", "tech-1", "Morning round")
	require.NoError(t, err)
	assert.Equal(t, "Morning round", sess.SessionName)
	assert.Equal(t, store.StatusActive, sess.Status)
}

func TestManagerStartSession_DefaultsName(t *testing.T) {
	m, _ := newTestManager()

	sess, err := m.StartSession(context.Background(), "proj-1", "tech-1", "")
	require.NoError(t, err)
	assert.Equal(t, "Session", sess.SessionName)
}

func TestManagerStartSession_Validation(t *testing.T) {
	m, _ := newTestManager()
	ctx := context.Background()

	var vErr *ValidationError

	_, err := m.StartSession(ctx, "", "tech-1", "")
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "project_id", vErr.Field)

	_, err = m.StartSession(ctx, "proj-1", "", "")
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "tech_id", vErr.Field)
}

func TestManagerStartSession_ConflictPassesThrough(t *testing.T) {
	m, _ := newTestManager()
	ctx := context.Background()

	_, err := m.StartSession(ctx, "proj-1", "tech-1", "")
	require.NoError(t, err)

	_, err = m.StartSession(ctx, "proj-2", "tech-1", "")
	assert.ErrorIs(t, err, store.ErrSessionActive)
}

func TestManagerEndSession_DefaultsCompleted(t *testing.T) {
	m, _ := newTestManager()
	ctx := context.Background()

	sess, err := m.StartSession(ctx, "proj-1", "tech-1", "")
	require.NoError(t, err)

	ended, err := m.EndSession(ctx, sess.ID, "")
	require.NoError(t, err)
	assert.Equal(t, store.StatusCompleted, ended.Status)
}

func TestManagerEndSession_RejectsBadStatus(t *testing.T) {
	m, _ := newTestManager()

	var vErr *ValidationError
	_, err := m.EndSession(context.Background(), "sess-1", "paused")
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "status", vErr.Field)
}

func TestManagerEndSession_Abandoned(t *testing.T) {
	m, _ := newTestManager()
	ctx := context.Background()

	sess, err := m.StartSession(ctx, "proj-1", "tech-1", "")
	require.NoError(t, err)

	ended, err := m.EndSession(ctx, sess.ID, store.StatusAbandoned)
	require.NoError(t, err)
	assert.Equal(t, store.StatusAbandoned, ended.Status)
}

func TestManagerActiveSession(t *testing.T) {
	m, _ := newTestManager()
	ctx := context.Background()

	sess, err := m.ActiveSession(ctx, "tech-1")
	require.NoError(t, err)
	assert.Nil(t, sess)

	_, err = m.ActiveSession(ctx, "")
	assert.Error(t, err)

	started, err := m.StartSession(ctx, "proj-1", "tech-1", "")
	require.NoError(t, err)

	sess, err = m.ActiveSession(ctx, "tech-1")
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, started.ID, sess.ID)
}

func TestManagerAttachVoiceNote(t *testing.T) {
	m, _ := newTestManager()
	ctx := context.Background()

	sess, err := m.StartSession(ctx, "proj-1", "tech-1", "")
	require.NoError(t, err)

	note, err := m.AttachVoiceNote(ctx, sess.ID, "tech-1", "Valve seated.", "")
	require.NoError(t, err)
	assert.Equal(t, store.NoteInternal, note.NoteType)
	assert.Equal(t, "Valve seated.", note.TranscribedText)

	note, err = m.AttachVoiceNote(ctx, sess.ID, "tech-1", "For the client.", store.NoteClient)
	require.NoError(t, err)
	assert.Equal(t, store.NoteClient, note.NoteType)
}

func TestManagerAttachVoiceNote_Validation(t *testing.T) {
	m, _ := newTestManager()
	ctx := context.Background()

	var vErr *ValidationError

	_, err := m.AttachVoiceNote(ctx, "", "tech-1", "text", "")
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "session_id", vErr.Field)

	_, err = m.AttachVoiceNote(ctx, "sess-1", "", "text", "")
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "tech_id", vErr.Field)

	_, err = m.AttachVoiceNote(ctx, "sess-1", "tech-1", "", "")
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "text", vErr.Field)

	_, err = m.AttachVoiceNote(ctx, "sess-1", "tech-1", "text", "secret")
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "note_type", vErr.Field)
}

func TestManagerAttachVoiceNote_UnknownSession(t *testing.T) {
	m, _ := newTestManager()

	_, err := m.AttachVoiceNote(context.Background(), "nope", "tech-1", "text", "")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestManagerNotesForSession(t *testing.T) {
	m, _ := newTestManager()
	ctx := context.Background()

	sess, err := m.StartSession(ctx, "proj-1", "tech-1", "")
	require.NoError(t, err)

	for _, text := range []string{"first", "second", "third"} {
		_, err := m.AttachVoiceNote(ctx, sess.ID, "tech-1", text, "")
		require.NoError(t, err)
	}

	notes, err := m.NotesForSession(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, notes, 3)
	assert.Equal(t, "first", notes[0].TranscribedText)
	assert.Equal(t, "third", notes[2].TranscribedText)
}

func TestManagerCreateReport(t *testing.T) {
	m, _ := newTestManager()
	ctx := context.Background()

	report, err := m.CreateReport(ctx, "sess-1", "proj-1", "Summary.", "reports/rep.pdf")
	require.NoError(t, err)
	assert.Equal(t, "sess-1", report.SessionID)
	assert.Equal(t, "reports/rep.pdf", report.FilePath)

	_, err = m.CreateReport(ctx, "", "proj-1", "", "")
	assert.Error(t, err)
	_, err = m.CreateReport(ctx, "sess-1", "", "", "")
	assert.Error(t, err)
}
