package deepgram

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	api "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agnivade/fieldvoice/providers"
)

func TestName(t *testing.T) {
	p := NewProvider("test-key")
	assert.Equal(t, "deepgram", p.Name())
}

func TestTranscribe(t *testing.T) {
	var gotAuth, gotContentType string
	var gotQuery map[string][]string

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotContentType = r.Header.Get("Content-Type")
		gotQuery = r.URL.Query()

		w.Write([]byte(`{
			"results": {
				"channels": [
					{"alternatives": [{"transcript": " hello world ", "confidence": 0.97}]}
				]
			}
		}`))
	}))
	defer ts.Close()

	p := NewProvider("test-key", WithBaseURL(ts.URL))
	transcript, err := p.Transcribe(context.Background(), []byte("audio"), providers.TranscribeOptions{
		Model:       "nova-2",
		ContentType: "audio/wav",
	})
	require.NoError(t, err)

	assert.Equal(t, "hello world", transcript)
	assert.Equal(t, "Token test-key", gotAuth)
	assert.Equal(t, "audio/wav", gotContentType)
	assert.Equal(t, []string{"nova-2"}, gotQuery["model"])
	assert.Equal(t, []string{"true"}, gotQuery["punctuate"])
	assert.Equal(t, []string{"true"}, gotQuery["smart_format"])
}

func TestTranscribe_DefaultModelAndContentType(t *testing.T) {
	var gotModel, gotContentType string

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotModel = r.URL.Query().Get("model")
		gotContentType = r.Header.Get("Content-Type")
		w.Write([]byte(`{"results":{"channels":[{"alternatives":[{"transcript":"ok"}]}]}}`))
	}))
	defer ts.Close()

	p := NewProvider("test-key", WithBaseURL(ts.URL), WithModel("nova-3"))
	_, err := p.Transcribe(context.Background(), []byte("audio"), providers.TranscribeOptions{})
	require.NoError(t, err)

	assert.Equal(t, "nova-3", gotModel)
	assert.Equal(t, "application/octet-stream", gotContentType)
}

func TestTranscribe_APIError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"err_code": "INVALID_AUTH", "err_msg": "Invalid credentials."}`))
	}))
	defer ts.Close()

	p := NewProvider("bad-key", WithBaseURL(ts.URL))
	_, err := p.Transcribe(context.Background(), []byte("audio"), providers.TranscribeOptions{})
	require.Error(t, err)

	var tErr *providers.TranscriptionError
	require.ErrorAs(t, err, &tErr)
	assert.Equal(t, "deepgram", tErr.Provider)
	assert.Equal(t, http.StatusUnauthorized, tErr.Status)
	assert.Contains(t, tErr.Message, "Invalid credentials")
}

func TestTranscribe_EmptyResult(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results":{"channels":[]}}`))
	}))
	defer ts.Close()

	p := NewProvider("test-key", WithBaseURL(ts.URL))
	_, err := p.Transcribe(context.Background(), []byte("audio"), providers.TranscribeOptions{})

	var tErr *providers.TranscriptionError
	require.ErrorAs(t, err, &tErr)
	assert.Contains(t, tErr.Message, "empty transcription result")
}

func TestTranscribe_ServerUnreachable(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	ts.Close()

	p := NewProvider("test-key", WithBaseURL(ts.URL))
	_, err := p.Transcribe(context.Background(), []byte("audio"), providers.TranscribeOptions{})

	var tErr *providers.TranscriptionError
	require.ErrorAs(t, err, &tErr)
	assert.Equal(t, "request failed", tErr.Message)
}

func TestProcessMessage(t *testing.T) {
	tests := []struct {
		name           string
		messageResp    *api.MessageResponse
		expectResult   bool
		expectedResult providers.TranscriptionResult
	}{
		{
			name: "final result with valid transcript",
			messageResp: &api.MessageResponse{
				IsFinal: true,
				Channel: api.Channel{
					Alternatives: []api.Alternative{
						{
							Transcript: "hello world",
							Confidence: 0.95,
						},
					},
				},
			},
			expectResult: true,
			expectedResult: providers.TranscriptionResult{
				Text:         "hello world",
				IsFinal:      true,
				Confidence:   0.95,
				ProviderName: "deepgram",
			},
		},
		{
			name: "final result with whitespace trimming",
			messageResp: &api.MessageResponse{
				IsFinal: true,
				Channel: api.Channel{
					Alternatives: []api.Alternative{
						{
							Transcript: "  hello world  ",
							Confidence: 0.9,
						},
					},
				},
			},
			expectResult: true,
			expectedResult: providers.TranscriptionResult{
				Text:         "hello world",
				IsFinal:      true,
				Confidence:   0.9,
				ProviderName: "deepgram",
			},
		},
		{
			name: "non-final result - should not return",
			messageResp: &api.MessageResponse{
				IsFinal: false,
				Channel: api.Channel{
					Alternatives: []api.Alternative{
						{
							Transcript: "hello",
							Confidence: 0.8,
						},
					},
				},
			},
			expectResult: false,
		},
		{
			name: "empty transcript - should not return",
			messageResp: &api.MessageResponse{
				IsFinal: true,
				Channel: api.Channel{
					Alternatives: []api.Alternative{
						{
							Transcript: "   ",
							Confidence: 0.8,
						},
					},
				},
			},
			expectResult: false,
		},
		{
			name: "no alternatives - should not return",
			messageResp: &api.MessageResponse{
				IsFinal: true,
				Channel: api.Channel{},
			},
			expectResult: false,
		},
	}

	session := &Session{}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := session.processMessage(tt.messageResp)

			if !tt.expectResult {
				assert.Nil(t, result)
				return
			}
			require.NotNil(t, result)
			assert.Equal(t, tt.expectedResult.Text, result.Text)
			assert.Equal(t, tt.expectedResult.IsFinal, result.IsFinal)
			assert.Equal(t, tt.expectedResult.Confidence, result.Confidence)
			assert.Equal(t, tt.expectedResult.ProviderName, result.ProviderName)
			assert.WithinDuration(t, time.Now(), result.ReceivedAt, time.Second)
		})
	}
}

// fakeWriter stands in for the SDK's websocket client.
type fakeWriter struct {
	written  [][]byte
	writeErr error
	stopped  bool
}

func (f *fakeWriter) Write(p []byte) (int, error) {
	if f.writeErr != nil {
		return 0, f.writeErr
	}
	f.written = append(f.written, append([]byte(nil), p...))
	return len(p), nil
}

func (f *fakeWriter) Stop() {
	f.stopped = true
}

func TestSessionSendAudio(t *testing.T) {
	writer := &fakeWriter{}
	session := &Session{client: writer}

	require.NoError(t, session.SendAudio([]byte{1, 2, 3}))
	require.Len(t, writer.written, 1)
	assert.Equal(t, []byte{1, 2, 3}, writer.written[0])

	writer.writeErr = errors.New("connection lost")
	assert.Error(t, session.SendAudio([]byte{4}))
}

func TestSessionReceiveTranscription(t *testing.T) {
	handler := NewChannelHandler()
	session := &Session{
		ctx:            context.Background(),
		channelHandler: handler,
	}

	handler.messageChan <- &api.MessageResponse{
		IsFinal: true,
		Channel: api.Channel{
			Alternatives: []api.Alternative{
				{Transcript: "final sentence", Confidence: 0.92},
			},
		},
	}

	result, err := session.ReceiveTranscription()
	require.NoError(t, err)
	assert.Equal(t, "final sentence", result.Text)
	assert.True(t, result.IsFinal)
}

func TestSessionReceiveTranscription_SkipsInterim(t *testing.T) {
	handler := NewChannelHandler()
	session := &Session{
		ctx:            context.Background(),
		channelHandler: handler,
	}

	handler.messageChan <- &api.MessageResponse{
		IsFinal: false,
		Channel: api.Channel{
			Alternatives: []api.Alternative{{Transcript: "partial"}},
		},
	}
	handler.messageChan <- &api.MessageResponse{
		IsFinal: true,
		Channel: api.Channel{
			Alternatives: []api.Alternative{{Transcript: "complete"}},
		},
	}

	result, err := session.ReceiveTranscription()
	require.NoError(t, err)
	assert.Equal(t, "complete", result.Text)
}

func TestSessionReceiveTranscription_Close(t *testing.T) {
	handler := NewChannelHandler()
	session := &Session{
		ctx:            context.Background(),
		channelHandler: handler,
	}

	handler.closeChan <- &api.CloseResponse{}

	_, err := session.ReceiveTranscription()
	assert.ErrorIs(t, err, io.EOF)
}

func TestSessionReceiveTranscription_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	session := &Session{
		ctx:            ctx,
		channelHandler: NewChannelHandler(),
	}

	cancel()
	_, err := session.ReceiveTranscription()
	assert.ErrorIs(t, err, io.EOF)
}

func TestSessionClose(t *testing.T) {
	writer := &fakeWriter{}
	session := &Session{client: writer}

	require.NoError(t, session.Close())
	assert.True(t, writer.stopped)
}
