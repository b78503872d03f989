package google

import (
	"errors"
	"io"
	"testing"

	"cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestName(t *testing.T) {
	p := NewProvider(nil)
	assert.Equal(t, "google", p.Name())
}

func TestTranscriptFromResponse(t *testing.T) {
	tests := []struct {
		name string
		resp *speechpb.RecognizeResponse
		want string
	}{
		{
			name: "single result",
			resp: &speechpb.RecognizeResponse{
				Results: []*speechpb.SpeechRecognitionResult{
					{
						Alternatives: []*speechpb.SpeechRecognitionAlternative{
							{Transcript: "hello world", Confidence: 0.95},
						},
					},
				},
			},
			want: "hello world",
		},
		{
			name: "multiple results joined",
			resp: &speechpb.RecognizeResponse{
				Results: []*speechpb.SpeechRecognitionResult{
					{
						Alternatives: []*speechpb.SpeechRecognitionAlternative{
							{Transcript: "first part"},
							{Transcript: "ignored alternative"},
						},
					},
					{
						Alternatives: []*speechpb.SpeechRecognitionAlternative{
							{Transcript: " second part "},
						},
					},
				},
			},
			want: "first part second part",
		},
		{
			name: "empty results",
			resp: &speechpb.RecognizeResponse{},
			want: "",
		},
		{
			name: "result without alternatives",
			resp: &speechpb.RecognizeResponse{
				Results: []*speechpb.SpeechRecognitionResult{{}},
			},
			want: "",
		},
		{
			name: "blank transcript dropped",
			resp: &speechpb.RecognizeResponse{
				Results: []*speechpb.SpeechRecognitionResult{
					{
						Alternatives: []*speechpb.SpeechRecognitionAlternative{
							{Transcript: "   "},
						},
					},
					{
						Alternatives: []*speechpb.SpeechRecognitionAlternative{
							{Transcript: "kept"},
						},
					},
				},
			},
			want: "kept",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, transcriptFromResponse(tt.resp))
		})
	}
}

// fakeStream stands in for the gRPC streaming client.
type fakeStream struct {
	sent      []*speechpb.StreamingRecognizeRequest
	sendErr   error
	responses []*speechpb.StreamingRecognizeResponse
	recvErr   error
	closed    bool
}

func (f *fakeStream) Send(req *speechpb.StreamingRecognizeRequest) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, req)
	return nil
}

func (f *fakeStream) Recv() (*speechpb.StreamingRecognizeResponse, error) {
	if len(f.responses) == 0 {
		if f.recvErr != nil {
			return nil, f.recvErr
		}
		return nil, io.EOF
	}
	resp := f.responses[0]
	f.responses = f.responses[1:]
	return resp, nil
}

func (f *fakeStream) CloseSend() error {
	f.closed = true
	return nil
}

func TestSessionSendAudio(t *testing.T) {
	stream := &fakeStream{}
	session := &Session{stream: stream}

	require.NoError(t, session.SendAudio([]byte{1, 2, 3}))
	require.Len(t, stream.sent, 1)

	audio, ok := stream.sent[0].StreamingRequest.(*speechpb.StreamingRecognizeRequest_AudioContent)
	require.True(t, ok)
	assert.Equal(t, []byte{1, 2, 3}, audio.AudioContent)

	stream.sendErr = errors.New("stream broken")
	assert.Error(t, session.SendAudio([]byte{4}))
}

func TestSessionReceiveTranscription(t *testing.T) {
	stream := &fakeStream{
		responses: []*speechpb.StreamingRecognizeResponse{
			{
				Results: []*speechpb.StreamingRecognitionResult{
					{
						IsFinal: false,
						Alternatives: []*speechpb.SpeechRecognitionAlternative{
							{Transcript: "partial"},
						},
					},
				},
			},
			{
				Results: []*speechpb.StreamingRecognitionResult{
					{
						IsFinal: true,
						Alternatives: []*speechpb.SpeechRecognitionAlternative{
							{Transcript: "complete sentence", Confidence: 0.93},
						},
					},
				},
			},
		},
	}
	session := &Session{stream: stream}

	result, err := session.ReceiveTranscription()
	require.NoError(t, err)
	assert.Equal(t, "complete sentence", result.Text)
	assert.True(t, result.IsFinal)
	assert.InDelta(t, 0.93, result.Confidence, 0.001)
	assert.Equal(t, "google", result.ProviderName)
}

func TestSessionReceiveTranscription_EOF(t *testing.T) {
	session := &Session{stream: &fakeStream{}}

	_, err := session.ReceiveTranscription()
	assert.ErrorIs(t, err, io.EOF)
}

func TestSessionReceiveTranscription_Canceled(t *testing.T) {
	stream := &fakeStream{recvErr: status.Error(codes.Canceled, "context canceled")}
	session := &Session{stream: stream}

	_, err := session.ReceiveTranscription()
	assert.ErrorIs(t, err, io.EOF)
}

func TestSessionReceiveTranscription_Error(t *testing.T) {
	stream := &fakeStream{recvErr: status.Error(codes.Unavailable, "backend down")}
	session := &Session{stream: stream}

	_, err := session.ReceiveTranscription()
	require.Error(t, err)
	assert.NotErrorIs(t, err, io.EOF)
}

func TestSessionClose(t *testing.T) {
	stream := &fakeStream{}
	session := &Session{stream: stream}

	require.NoError(t, session.Close())
	assert.True(t, stream.closed)
}
