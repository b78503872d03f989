// Package deepgram implements the speech-to-text gateway against
// Deepgram. One-shot transcription goes through the pre-recorded REST
// API; live transcription uses the SDK's WebSocket client.
package deepgram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	api "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket/interfaces"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	client "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"

	"github.com/agnivade/fieldvoice/providers"
)

const (
	providerName   = "deepgram"
	defaultBaseURL = "https://api.deepgram.com"
	defaultModel   = "nova-2"
)

// dgWriter is a local interface that wraps the methods we need
// from listenv1ws.WSCallback to enable easier testing
type dgWriter interface {
	io.Writer
	Stop()
}

// Provider implements providers.Transcriber and providers.Provider for
// Deepgram's speech-to-text API.
type Provider struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	model      string
}

// Option configures a Provider.
type Option func(*Provider)

// WithBaseURL overrides the REST API base URL. Used in tests.
func WithBaseURL(u string) Option {
	return func(p *Provider) { p.baseURL = strings.TrimSuffix(u, "/") }
}

// WithHTTPClient overrides the HTTP client used for REST calls.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.httpClient = c }
}

// WithModel sets the default transcription model.
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// NewProvider creates a new Deepgram provider with the given API key.
func NewProvider(apiKey string, opts ...Option) *Provider {
	client.InitWithDefault()

	p := &Provider{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		httpClient: http.DefaultClient,
		model:      defaultModel,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns the name of the provider.
func (p *Provider) Name() string {
	return providerName
}

type restResponse struct {
	Results struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string  `json:"transcript"`
				Confidence float64 `json:"confidence"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

type restError struct {
	ErrCode string `json:"err_code"`
	ErrMsg  string `json:"err_msg"`
}

// Transcribe sends a complete recording to the pre-recorded listen API
// and returns the transcript of the first channel.
func (p *Provider) Transcribe(ctx context.Context, audio []byte, opts providers.TranscribeOptions) (string, error) {
	model := opts.Model
	if model == "" {
		model = p.model
	}

	params := url.Values{}
	params.Set("model", model)
	params.Set("punctuate", "true")
	params.Set("smart_format", "true")
	if opts.Language != "" {
		params.Set("language", opts.Language)
	}

	reqURL := fmt.Sprintf("%s/v1/listen?%s", p.baseURL, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(audio))
	if err != nil {
		return "", &providers.TranscriptionError{Provider: providerName, Message: "create request", Err: err}
	}
	req.Header.Set("Authorization", "Token "+p.apiKey)
	contentType := opts.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", &providers.TranscriptionError{Provider: providerName, Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &providers.TranscriptionError{Provider: providerName, Message: "read response", Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr restError
		if json.Unmarshal(body, &apiErr) == nil && apiErr.ErrMsg != "" {
			return "", &providers.TranscriptionError{Provider: providerName, Status: resp.StatusCode, Message: apiErr.ErrMsg}
		}
		return "", &providers.TranscriptionError{Provider: providerName, Status: resp.StatusCode, Message: string(body)}
	}

	var parsed restResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", &providers.TranscriptionError{Provider: providerName, Message: "parse response", Err: err}
	}

	if len(parsed.Results.Channels) == 0 || len(parsed.Results.Channels[0].Alternatives) == 0 {
		return "", &providers.TranscriptionError{Provider: providerName, Message: "empty transcription result"}
	}

	return strings.TrimSpace(parsed.Results.Channels[0].Alternatives[0].Transcript), nil
}

// ChannelHandler implements the LiveMessageChan interface for receiving
// Deepgram messages.
type ChannelHandler struct {
	openChan          chan *api.OpenResponse
	messageChan       chan *api.MessageResponse
	metadataChan      chan *api.MetadataResponse
	speechStartedChan chan *api.SpeechStartedResponse
	utteranceEndChan  chan *api.UtteranceEndResponse
	closeChan         chan *api.CloseResponse
	errorChan         chan *api.ErrorResponse
	unhandledChan     chan *[]byte
}

// NewChannelHandler creates a new handler with initialized channels
func NewChannelHandler() *ChannelHandler {
	return &ChannelHandler{
		openChan:          make(chan *api.OpenResponse, 1),
		messageChan:       make(chan *api.MessageResponse, 10),
		metadataChan:      make(chan *api.MetadataResponse, 1),
		speechStartedChan: make(chan *api.SpeechStartedResponse, 1),
		utteranceEndChan:  make(chan *api.UtteranceEndResponse, 1),
		closeChan:         make(chan *api.CloseResponse, 1),
		errorChan:         make(chan *api.ErrorResponse, 1),
		unhandledChan:     make(chan *[]byte, 1),
	}
}

// GetOpen returns slice of channels for open events
func (ch *ChannelHandler) GetOpen() []*chan *api.OpenResponse {
	return []*chan *api.OpenResponse{&ch.openChan}
}

// GetMessage returns slice of channels for message events
func (ch *ChannelHandler) GetMessage() []*chan *api.MessageResponse {
	return []*chan *api.MessageResponse{&ch.messageChan}
}

// GetMetadata returns slice of channels for metadata events
func (ch *ChannelHandler) GetMetadata() []*chan *api.MetadataResponse {
	return []*chan *api.MetadataResponse{&ch.metadataChan}
}

// GetSpeechStarted returns slice of channels for speech started events
func (ch *ChannelHandler) GetSpeechStarted() []*chan *api.SpeechStartedResponse {
	return []*chan *api.SpeechStartedResponse{&ch.speechStartedChan}
}

// GetUtteranceEnd returns slice of channels for utterance end events
func (ch *ChannelHandler) GetUtteranceEnd() []*chan *api.UtteranceEndResponse {
	return []*chan *api.UtteranceEndResponse{&ch.utteranceEndChan}
}

// GetClose returns slice of channels for close events
func (ch *ChannelHandler) GetClose() []*chan *api.CloseResponse {
	return []*chan *api.CloseResponse{&ch.closeChan}
}

// GetError returns slice of channels for error events
func (ch *ChannelHandler) GetError() []*chan *api.ErrorResponse {
	return []*chan *api.ErrorResponse{&ch.errorChan}
}

// GetUnhandled returns slice of channels for unhandled events
func (ch *ChannelHandler) GetUnhandled() []*chan *[]byte {
	return []*chan *[]byte{&ch.unhandledChan}
}

// NewSession creates a new Deepgram live transcription session.
func (p *Provider) NewSession(ctx context.Context, config providers.SessionConfig) (providers.Session, error) {
	cOptions := &interfaces.ClientOptions{
		APIKey:          p.apiKey,
		EnableKeepAlive: true,
	}

	tOptions := &interfaces.LiveTranscriptionOptions{
		Model:          p.model,
		Language:       config.LanguageCode,
		Punctuate:      true,
		Encoding:       "linear16",
		Channels:       1,
		SampleRate:     config.SampleRate,
		VadEvents:      true,
		InterimResults: config.InterimResults,
		UtteranceEndMs: "1000",
	}

	channelHandler := NewChannelHandler()

	dgClient, err := client.NewWSUsingChan(ctx, "", cOptions, tOptions, channelHandler)
	if err != nil {
		return nil, err
	}

	session := &Session{
		ctx:            ctx,
		client:         dgClient,
		channelHandler: channelHandler,
	}

	if success := dgClient.Connect(); !success {
		return nil, errors.New("failed to connect to deepgram")
	}

	return session, nil
}

// Session implements the providers.Session interface for Deepgram's
// live speech-to-text API.
type Session struct {
	ctx            context.Context
	client         dgWriter
	channelHandler *ChannelHandler
}

// SendAudio sends audio data to the Deepgram stream.
func (s *Session) SendAudio(audioData []byte) error {
	_, err := s.client.Write(audioData)
	return err
}

// ReceiveTranscription receives transcription results from the Deepgram
// stream. It blocks until a final result is available or an error occurs.
func (s *Session) ReceiveTranscription() (providers.TranscriptionResult, error) {
	for {
		select {
		case msg := <-s.channelHandler.messageChan:
			if msg == nil {
				continue
			}
			result := s.processMessage(msg)
			if result != nil {
				return *result, nil
			}
		case err := <-s.channelHandler.errorChan:
			if err != nil {
				return providers.TranscriptionResult{}, fmt.Errorf("%s", err)
			}
		case <-s.channelHandler.closeChan:
			// Connection closed by Deepgram
			return providers.TranscriptionResult{}, io.EOF
		case <-s.channelHandler.openChan:
		case <-s.channelHandler.metadataChan:
		case <-s.channelHandler.speechStartedChan:
		case <-s.channelHandler.utteranceEndChan:
		case <-s.channelHandler.unhandledChan:
			// Consume events we don't act on.
		case <-s.ctx.Done():
			if s.ctx.Err() == context.Canceled {
				return providers.TranscriptionResult{}, io.EOF
			}
			return providers.TranscriptionResult{}, s.ctx.Err()
		}
	}
}

// processMessage converts a live message to a result, or nil if it
// should be skipped.
func (s *Session) processMessage(msg *api.MessageResponse) *providers.TranscriptionResult {
	if len(msg.Channel.Alternatives) == 0 {
		return nil
	}

	alternative := msg.Channel.Alternatives[0]
	sentence := strings.TrimSpace(alternative.Transcript)
	if sentence == "" {
		return nil
	}

	// Only final results cross our interface.
	if !msg.IsFinal {
		return nil
	}

	return &providers.TranscriptionResult{
		Text:         sentence,
		IsFinal:      true,
		Confidence:   float32(alternative.Confidence),
		ProviderName: providerName,
		ReceivedAt:   time.Now(),
	}
}

// Close closes the Deepgram session.
func (s *Session) Close() error {
	if s.client != nil {
		s.client.Stop()
	}

	// The channels stay open on purpose: the deepgram client may still
	// deliver in-flight messages after Stop, and closing them here
	// races with those sends.
	return nil
}
