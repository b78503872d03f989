package fieldvoice

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// Update is an inbound Telegram webhook update, reduced to the fields
// the chat adapter acts on. The raw payload is kept for debug logging.
type Update struct {
	UpdateID int64    `json:"update_id"`
	Message  *Message `json:"message"`

	Raw json.RawMessage `json:"-"`
}

// Message is a chat message within an update.
type Message struct {
	MessageID int64  `json:"message_id"`
	From      *User  `json:"from"`
	Chat      *Chat  `json:"chat"`
	Text      string `json:"text"`
}

// User is the sender of a message.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

// Chat is the conversation a message belongs to.
type Chat struct {
	ID int64 `json:"id"`
}

// ParseUpdate validates the shape of a webhook payload at the boundary
// instead of passing loose JSON further in.
func ParseUpdate(data []byte) (*Update, error) {
	var upd Update
	if err := json.Unmarshal(data, &upd); err != nil {
		return nil, fmt.Errorf("parse update: %w", err)
	}
	upd.Raw = data
	return &upd, nil
}

// handleTelegramWebhook relays webhook updates to the chat adapter. It
// acknowledges with 200 whenever dispatch succeeds so the messaging
// platform does not re-deliver; command-level failures are handled by
// the adapter itself with a chat reply.
func (s *Server) handleTelegramWebhook(w http.ResponseWriter, r *http.Request) {
	if s.bot == nil || s.telegramToken == "" || r.PathValue("token") != s.telegramToken {
		s.writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid token"})
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.log.Printf("Failed to read webhook body: %v", err)
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}

	upd, err := ParseUpdate(body)
	if err != nil {
		s.log.Printf("Failed to parse webhook update: %v", err)
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}

	if err := s.bot.HandleUpdate(r.Context(), upd); err != nil {
		s.log.Printf("Failed to dispatch update %d: %v", upd.UpdateID, err)
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
