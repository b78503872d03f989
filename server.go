// Package fieldvoice is a backend for recording transcribed voice notes
// against field-work sessions. Inbound adapters (HTTP API, Telegram
// webhook, live WebSocket) translate requests into calls on the session
// lifecycle manager, which talks to the record store and the
// speech-to-text gateways.
package fieldvoice

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/agnivade/fieldvoice/providers"
	"github.com/agnivade/fieldvoice/store"
)

// Dispatcher handles parsed chat updates. It must swallow command-level
// failures (replying to the chat instead) and only return an error for
// internal dispatch problems.
type Dispatcher interface {
	HandleUpdate(ctx context.Context, upd *Update) error
}

// ServerConfig carries the transport-level settings for the HTTP
// server.
type ServerConfig struct {
	// Addr is the listen address, e.g. ":8081".
	Addr string

	// TelegramToken is the webhook path secret. Requests whose path
	// token does not match are rejected with 401.
	TelegramToken string

	// STTModel is the transcription model for one-shot requests.
	STTModel string

	// TranscribeTimeout bounds each call to the transcription gateway.
	TranscribeTimeout time.Duration
}

type Server struct {
	srv           *http.Server
	log           *log.Logger
	store         store.Store
	manager       *SessionManager
	ingest        *Ingest
	bot           Dispatcher
	telegramToken string
	liveProviders []providers.Provider
}

// New assembles the server. transcriber serves the one-shot ingestion
// path; liveProviders (optional) serve the /ws streaming endpoint. bot
// may be nil, in which case the Telegram webhook responds 401 to
// everything.
func New(cfg ServerConfig, st store.Store, transcriber providers.Transcriber, bot Dispatcher, liveProviders ...providers.Provider) *Server {
	logger := log.New(os.Stderr, "", log.LstdFlags|log.Lshortfile)
	mux := http.NewServeMux()

	addr := cfg.Addr
	if addr == "" {
		addr = ":8081"
	}

	server := &Server{
		srv: &http.Server{
			Addr:         addr,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
			Handler:      mux,
		},
		log:           logger,
		store:         st,
		manager:       NewSessionManager(st, logger),
		ingest:        NewIngest(transcriber, cfg.STTModel, cfg.TranscribeTimeout, logger),
		bot:           bot,
		telegramToken: cfg.TelegramToken,
		liveProviders: liveProviders,
	}

	mux.HandleFunc("GET /health", server.handleHealth)
	mux.HandleFunc("GET /healthz", server.handleHealthz)
	mux.HandleFunc("GET /projects", server.handleListProjects)
	mux.HandleFunc("GET /sessions/active/{techID}", server.handleActiveSession)
	mux.HandleFunc("POST /sessions/start", server.handleStartSession)
	mux.HandleFunc("POST /sessions/end", server.handleEndSession)
	mux.HandleFunc("GET /sessions/{sessionID}/notes", server.handleSessionNotes)
	mux.HandleFunc("POST /voice-notes/save", server.handleSaveVoiceNote)
	mux.HandleFunc("POST /voice-notes", server.handleUploadVoiceNote)
	mux.HandleFunc("POST /telegram/{token}", server.handleTelegramWebhook)
	mux.HandleFunc("/ws", server.handleWebSocket)

	return server
}

// Manager exposes the session lifecycle manager, mainly so the chat
// adapter can share it with the HTTP surface.
func (s *Server) Manager() *SessionManager {
	return s.manager
}

// SetDispatcher wires the chat command adapter after construction. The
// adapter depends on the manager created here, so it cannot be built
// first.
func (s *Server) SetDispatcher(d Dispatcher) {
	s.bot = d
}

func (s *Server) Start() error {
	var wg sync.WaitGroup
	errChan := make(chan error, 1)
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.log.Printf("Starting server on %s", s.srv.Addr)
		errChan <- s.srv.ListenAndServe()
	}()

	wg.Wait()
	close(errChan)
	for err := range errChan {
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}

	return nil
}

func (s *Server) Stop() error {
	s.log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return s.srv.Shutdown(ctx)
}
