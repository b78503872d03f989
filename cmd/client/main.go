// Command client records microphone audio, streams it to the live
// transcription endpoint and prints the transcript sentences it gets
// back. With -session it also persists each sentence as a voice note
// through the HTTP API.
package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	fieldvoice "github.com/agnivade/fieldvoice"
)

// dedupCapacity is how many recent sentences are kept for similarity
// checks; providers occasionally re-emit near-identical finals.
const dedupCapacity = 8

// dedupThreshold is the similarity above which a sentence is dropped.
const dedupThreshold = 0.85

type Client struct {
	conn      *websocket.Conn
	mic       *MicrophoneReader
	wg        sync.WaitGroup
	log       *log.Logger
	dedup     *MessageBuffer
	outputRaw *os.File
	bufWriter *bufio.Writer

	// note persistence, enabled when a session id is supplied
	apiURL    string
	sessionID string
	techID    string
}

func main() {
	serverURL := flag.String("url", "ws://localhost:8081/ws", "WebSocket server URL")
	apiURL := flag.String("api", "http://localhost:8081", "HTTP API base URL for saving notes")
	sessionID := flag.String("session", "", "Session id to attach notes to (optional)")
	techID := flag.String("tech", "", "Technician id for saved notes")
	outputPath := flag.String("output", "", "Output file path for transcriptions (optional)")
	flag.Parse()

	logger := log.New(os.Stderr, "", log.LstdFlags|log.Lshortfile)

	if *sessionID != "" && *techID == "" {
		logger.Println("-session requires -tech")
		return
	}

	mic, err := NewMicrophoneReader()
	if err != nil {
		logger.Printf("Failed to open microphone: %v", err)
		return
	}
	defer mic.Close()

	conn, _, err := websocket.DefaultDialer.Dial(*serverURL, nil)
	if err != nil {
		logger.Printf("WebSocket dial failed: %v", err)
		return
	}
	defer conn.Close()

	client := &Client{
		conn:      conn,
		mic:       mic,
		log:       logger,
		dedup:     NewMessageBuffer(dedupCapacity),
		apiURL:    *apiURL,
		sessionID: *sessionID,
		techID:    *techID,
	}

	if *outputPath != "" {
		outputFile, err := os.Create(*outputPath)
		if err != nil {
			logger.Printf("Failed to create output file: %v", err)
			return
		}
		defer outputFile.Close()

		client.outputRaw = outputFile
		client.bufWriter = bufio.NewWriter(outputFile)
		defer client.bufWriter.Flush()
	}

	fmt.Println("Recording... Press Ctrl+C to stop.")
	client.Start()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	client.Close()
	fmt.Println("\nDone.")
}

func (c *Client) Start() {
	c.wg.Add(2)
	go c.reader()
	go c.writer()
}

// reader handles transcript sentences coming back from the server.
func (c *Client) reader() {
	defer c.wg.Done()
	var buf bytes.Buffer

	for {
		buf.Reset()

		_, r, err := c.conn.NextReader()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Printf("WebSocket read error: %v", err)
			}
			return
		}

		if _, err := buf.ReadFrom(r); err != nil {
			c.log.Printf("Failed to read from WebSocket reader: %v", err)
			continue
		}

		var response fieldvoice.WebSocketResponse
		if err := json.Unmarshal(buf.Bytes(), &response); err != nil {
			c.log.Printf("Failed to unmarshal response: %v", err)
			continue
		}

		if c.dedup.IsSimilar(response.Sentence, dedupThreshold) {
			continue
		}
		c.dedup.Add(response.Sentence)

		timestamp := time.Now().Format("15:04:05")
		line := fmt.Sprintf("[%s] %s\n", timestamp, response.Sentence)

		fmt.Print(line)

		if c.bufWriter != nil {
			if _, err := c.bufWriter.WriteString(line); err != nil {
				c.log.Printf("Failed to write to output file: %v", err)
			} else {
				c.bufWriter.Flush()
			}
		}

		if c.sessionID != "" {
			if err := c.saveNote(response.Sentence); err != nil {
				c.log.Printf("Failed to save note: %v", err)
			}
		}
	}
}

// writer pumps microphone audio to the server.
func (c *Client) writer() {
	defer c.wg.Done()
	buf := make([]byte, framesPerBuffer*2)

	for {
		n, err := c.mic.Read(buf)
		if err != nil {
			c.log.Printf("Audio read error: %v", err)
			break
		}

		request := fieldvoice.WebSocketRequest{
			Buf: buf[:n],
		}

		if err := c.conn.WriteJSON(request); err != nil {
			if !errors.Is(err, net.ErrClosed) {
				c.log.Printf("WebSocket write error: %v", err)
			}
			return
		}
	}
}

type saveNoteRequest struct {
	SessionID string `json:"session_id"`
	TechID    string `json:"tech_id"`
	Text      string `json:"text"`
	NoteType  string `json:"note_type"`
}

// saveNote persists a transcript sentence as a voice note on the
// session.
func (c *Client) saveNote(text string) error {
	payload, err := json.Marshal(saveNoteRequest{
		SessionID: c.sessionID,
		TechID:    c.techID,
		Text:      text,
		NoteType:  "internal",
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.apiURL+"/voice-notes/save", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("save note: unexpected status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) Close() {
	c.log.Println("Closing client...")
	if c.conn != nil {
		c.conn.Close()
	}
	c.wg.Wait()
}
