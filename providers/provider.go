// Package providers defines the speech-to-text gateway interfaces.
// A Transcriber handles one-shot transcription of a complete recording;
// a Provider hands out streaming Sessions for live audio. Neither owns
// any audio after the call returns.
package providers

import (
	"context"
	"fmt"
	"time"
)

// Transcriber converts a complete audio recording to text in a single
// call. Implementations must respect ctx for cancellation and deadline;
// callers bound the call with a timeout so a slow upstream cannot hang
// the request.
type Transcriber interface {
	// Name returns the provider identifier, e.g. "deepgram".
	Name() string

	// Transcribe sends the audio bytes upstream and returns the
	// transcript. Failures are reported as *TranscriptionError.
	Transcribe(ctx context.Context, audio []byte, opts TranscribeOptions) (string, error)
}

// TranscribeOptions configures a one-shot transcription request.
type TranscribeOptions struct {
	// Model is the provider model identifier (e.g. "nova-2").
	Model string

	// Language is the language code (e.g. "en-US").
	Language string

	// ContentType is the MIME type of the audio payload, if known.
	ContentType string
}

// TranscriptionError reports an upstream speech API failure.
type TranscriptionError struct {
	Provider string
	Status   int
	Message  string
	Err      error
}

func (e *TranscriptionError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s transcription failed (%d): %s", e.Provider, e.Status, e.Message)
	}
	return fmt.Sprintf("%s transcription failed: %s", e.Provider, e.Message)
}

func (e *TranscriptionError) Unwrap() error { return e.Err }

// Provider creates transcription sessions for streaming speech-to-text
// conversion. Different providers can implement this interface to
// support various speech services.
type Provider interface {
	// Name returns the name of the provider.
	Name() string

	// NewSession creates a new transcription session with the given
	// configuration. The context can be used to cancel the session
	// creation process.
	NewSession(ctx context.Context, config SessionConfig) (Session, error)
}

// Session handles streaming transcription for a single connection.
// It manages the lifecycle of audio streaming and transcription result
// retrieval.
type Session interface {
	// SendAudio sends raw audio data to the transcription service.
	// Audio data should match the format specified in SessionConfig.
	SendAudio(audioData []byte) error

	// ReceiveTranscription blocks until a transcription result is
	// available. Returns io.EOF when the session is closed and no more
	// results are available.
	ReceiveTranscription() (TranscriptionResult, error)

	// Close gracefully closes the transcription session and releases
	// resources. Readers and writers must be stopped before calling
	// Close.
	Close() error
}

// SessionConfig holds provider-agnostic configuration for streaming
// transcription sessions.
type SessionConfig struct {
	// SampleRate is the audio sample rate in Hz (e.g., 16000)
	SampleRate int

	// LanguageCode specifies the language for transcription (e.g., "en-US")
	LanguageCode string

	// InterimResults indicates whether to return interim (non-final) results
	InterimResults bool

	// Extensions allows providers to specify additional configuration
	// options specific to their implementation
	Extensions map[string]interface{}
}

// TranscriptionResult represents a transcription result with metadata.
type TranscriptionResult struct {
	// Text is the transcribed text
	Text string

	// IsFinal indicates whether this is a final result or interim
	IsFinal bool

	// Confidence is the confidence score (0.0 to 1.0) if available
	Confidence float32

	// ProviderName identifies which provider produced this result
	ProviderName string

	// ReceivedAt is when the result arrived from the provider
	ReceivedAt time.Time
}
