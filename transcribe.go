package fieldvoice

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/agnivade/fieldvoice/providers"
)

// NoteUpload is the transient descriptor returned by the ephemeral
// transcription path. Nothing about it is persisted; the note id is
// freshly generated per request.
type NoteUpload struct {
	NoteID      string `json:"note_id"`
	SessionID   string `json:"session_id"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	SizeBytes   int    `json:"size_bytes"`
	Transcript  string `json:"transcript"`
}

// Ingest is the note ingestion pipeline: audio bytes in, transcript
// out. It never stores the audio and never writes a voice note record;
// persisting a note is a separate, explicit call on the lifecycle
// manager.
type Ingest struct {
	transcriber providers.Transcriber
	model       string
	timeout     time.Duration
	log         *log.Logger
}

// NewIngest creates an ingestion pipeline around the given transcriber.
// timeout bounds each upstream call so a stalled speech API cannot hang
// the request.
func NewIngest(tr providers.Transcriber, model string, timeout time.Duration, logger *log.Logger) *Ingest {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Ingest{
		transcriber: tr,
		model:       model,
		timeout:     timeout,
		log:         logger,
	}
}

// Transcribe reads the audio stream, transcribes it and returns the
// transient note descriptor. A missing session id is a ValidationError;
// upstream failures surface as *providers.TranscriptionError.
func (in *Ingest) Transcribe(ctx context.Context, sessionID, filename, contentType string, audio io.Reader) (*NoteUpload, error) {
	if sessionID == "" {
		return nil, missingField("session_id")
	}

	data, err := io.ReadAll(audio)
	if err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, in.timeout)
	defer cancel()

	transcript, err := in.transcriber.Transcribe(ctx, data, providers.TranscribeOptions{
		Model:       in.model,
		ContentType: contentType,
	})
	if err != nil {
		return nil, err
	}

	in.log.Printf("Transcribed %d bytes for session %s via %s", len(data), sessionID, in.transcriber.Name())

	return &NoteUpload{
		NoteID:      uuid.NewString(),
		SessionID:   sessionID,
		Filename:    filename,
		ContentType: contentType,
		SizeBytes:   len(data),
		Transcript:  transcript,
	}, nil
}
