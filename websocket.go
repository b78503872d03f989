package fieldvoice

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/agnivade/fieldvoice/providers"
)

// WebSocketRequest is one inbound frame of raw audio from a live
// client.
type WebSocketRequest struct {
	Buf []byte `json:"buf"`
}

// WebSocketResponse is one final transcript sentence sent back to the
// client. Nothing sent over this surface is persisted.
type WebSocketResponse struct {
	Sentence string `json:"sentence"`
}

// WebConn pumps audio from one WebSocket connection into a live
// transcription session and transcripts back out.
type WebConn struct {
	conn    *websocket.Conn
	log     *log.Logger
	wg      sync.WaitGroup
	session providers.Session
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if len(s.liveProviders) == 0 {
		http.Error(w, "live transcription not configured", http.StatusServiceUnavailable)
		return
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  8192,
		WriteBufferSize: 8192,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	// The session outlives the upgrade request.
	config := providers.SessionConfig{
		SampleRate:     16000,
		LanguageCode:   "en-US",
		InterimResults: false,
	}
	session, err := NewSelector(context.Background(), s.liveProviders, config, s.log)
	if err != nil {
		s.log.Printf("Failed to start live transcription: %v", err)
		conn.Close()
		return
	}

	webConn := &WebConn{
		conn:    conn,
		log:     s.log,
		session: session,
	}

	webConn.Start()
}

// Start runs the reader and writer pumps and blocks until the
// connection is gone.
func (wc *WebConn) Start() {
	defer wc.conn.Close()

	wc.wg.Add(1)
	go func() {
		defer wc.wg.Done()
		wc.writer()
	}()

	wc.reader()
	wc.session.Close()
	wc.wg.Wait()
}

// reader forwards inbound audio frames to the transcription session.
func (wc *WebConn) reader() {
	for {
		_, message, err := wc.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				wc.log.Printf("WebSocket read error: %v", err)
			}
			return
		}

		var req WebSocketRequest
		if err := json.Unmarshal(message, &req); err != nil {
			wc.log.Printf("Failed to unmarshal WebSocket message: %v", err)
			continue
		}

		if err := wc.session.SendAudio(req.Buf); err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			wc.log.Printf("SendAudio error: %v", err)
		}
	}
}

// writer forwards final transcripts back to the client.
func (wc *WebConn) writer() {
	for {
		result, err := wc.session.ReceiveTranscription()
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			wc.log.Printf("ReceiveTranscription error: %v", err)
			return
		}

		response := WebSocketResponse{
			Sentence: result.Text,
		}
		if err := wc.conn.WriteJSON(response); err != nil {
			wc.log.Printf("WebSocket write error: %v", err)
			return
		}
	}
}
