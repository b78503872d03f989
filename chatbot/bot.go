// Package chatbot relays the session lifecycle through a Telegram-style
// chat surface. Commands map one-to-one onto lifecycle manager calls;
// the bot itself holds no authoritative state.
package chatbot

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"

	fieldvoice "github.com/agnivade/fieldvoice"
	"github.com/agnivade/fieldvoice/store"
)

// Lifecycle is the slice of the session lifecycle manager the bot
// needs.
type Lifecycle interface {
	StartSession(ctx context.Context, projectID, techID, sessionName string) (*store.Session, error)
	EndSession(ctx context.Context, sessionID, status string) (*store.Session, error)
	ActiveSession(ctx context.Context, techID string) (*store.Session, error)
}

// ProjectCreator creates projects for first-time chat users.
type ProjectCreator interface {
	CreateProject(ctx context.Context, name, description, createdBy string) (*store.Project, error)
}

// Sender delivers outbound replies to a chat.
type Sender interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
}

// userState is a per-user convenience cache. It is advisory only: the
// persisted session status is the source of truth, and every command
// that acts on a session re-reads it from the lifecycle manager first.
type userState struct {
	Username  string
	ProjectID string
	SessionID string
}

// Bot dispatches chat commands. Every command handler catches internal
// failures and replies with a generic message so the webhook transport
// can always acknowledge the update.
type Bot struct {
	lifecycle Lifecycle
	projects  ProjectCreator
	sender    Sender
	log       *log.Logger

	mu    sync.Mutex
	users map[int64]*userState
}

// New creates a chat command adapter.
func New(lc Lifecycle, projects ProjectCreator, sender Sender, logger *log.Logger) *Bot {
	return &Bot{
		lifecycle: lc,
		projects:  projects,
		sender:    sender,
		log:       logger,
		users:     make(map[int64]*userState),
	}
}

// HandleUpdate dispatches one webhook update. It returns an error only
// when the reply could not be delivered; command-level failures are
// reported to the chat instead.
func (b *Bot) HandleUpdate(ctx context.Context, upd *fieldvoice.Update) error {
	if upd.Message == nil || upd.Message.From == nil || upd.Message.Chat == nil {
		// Not a command-carrying message; nothing to do.
		return nil
	}

	msg := upd.Message
	command := parseCommand(msg.Text)

	switch command {
	case "/start":
		return b.startCommand(ctx, msg)
	case "/startsession":
		return b.startSessionCommand(ctx, msg)
	case "/endsession":
		return b.endSessionCommand(ctx, msg)
	case "/test":
		b.log.Printf("[TELEGRAM UPDATE] %s", upd.Raw)
		return b.sender.SendMessage(ctx, msg.Chat.ID, "Update received")
	default:
		return nil
	}
}

// parseCommand extracts the leading bot command, stripping an @botname
// suffix.
func parseCommand(text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return ""
	}
	command, _, _ := strings.Cut(fields[0], "@")
	return command
}

func techID(u *fieldvoice.User) string {
	return strconv.FormatInt(u.ID, 10)
}

// state returns a copy of the user's cached state. Webhook updates are
// dispatched from concurrent handler goroutines, so the shared entry is
// never handed out directly; writes go through setSessionID.
func (b *Bot) state(userID int64) userState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if st, ok := b.users[userID]; ok {
		return *st
	}
	return userState{}
}

func (b *Bot) setSessionID(userID int64, sessionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	st, ok := b.users[userID]
	if !ok {
		st = &userState{}
		b.users[userID] = st
	}
	st.SessionID = sessionID
}

// startCommand creates a project scoped to the invoking user.
func (b *Bot) startCommand(ctx context.Context, msg *fieldvoice.Message) error {
	username := msg.From.Username
	if username == "" {
		username = "Unknown"
	}

	project, err := b.projects.CreateProject(ctx,
		fmt.Sprintf("Project for %s", username),
		fmt.Sprintf("Telegram project for user %s", username),
		techID(msg.From))
	if err != nil {
		b.log.Printf("Error creating project: %v", err)
		return b.sender.SendMessage(ctx, msg.Chat.ID, "Error creating project. Please try again.")
	}

	b.mu.Lock()
	b.users[msg.From.ID] = &userState{Username: username, ProjectID: project.ID}
	b.mu.Unlock()

	return b.sender.SendMessage(ctx, msg.Chat.ID, fmt.Sprintf(
		"Hello %s! Welcome to Voice Notes Bot.\n\n"+
			"Project created: %s\n"+
			"Available commands:\n"+
			"/startsession - Start a new session\n"+
			"/endsession - End current session",
		username, project.Name))
}

// startSessionCommand starts a session on the user's cached project.
func (b *Bot) startSessionCommand(ctx context.Context, msg *fieldvoice.Message) error {
	st := b.state(msg.From.ID)
	if st.ProjectID == "" {
		return b.sender.SendMessage(ctx, msg.Chat.ID, "Please use /start first to create a project.")
	}

	tech := techID(msg.From)

	// The cache is only a hint; ask the store whether a session is
	// already running.
	if active, err := b.lifecycle.ActiveSession(ctx, tech); err == nil && active != nil {
		b.setSessionID(msg.From.ID, active.ID)
		return b.sender.SendMessage(ctx, msg.Chat.ID, fmt.Sprintf(
			"You already have an active session: %s", active.ID))
	}

	sessionName := fmt.Sprintf("Session for %s", st.Username)
	session, err := b.lifecycle.StartSession(ctx, st.ProjectID, tech, sessionName)
	if err != nil {
		b.log.Printf("Error starting session: %v", err)
		return b.sender.SendMessage(ctx, msg.Chat.ID, "Error starting session. Please try again.")
	}

	b.setSessionID(msg.From.ID, session.ID)

	return b.sender.SendMessage(ctx, msg.Chat.ID, fmt.Sprintf(
		"Session started!\nSession ID: %s\nYou can now record voice notes.", session.ID))
}

// endSessionCommand completes the user's running session.
func (b *Bot) endSessionCommand(ctx context.Context, msg *fieldvoice.Message) error {
	st := b.state(msg.From.ID)
	tech := techID(msg.From)

	sessionID := st.SessionID
	if sessionID == "" {
		// Cache miss; the session may have been started elsewhere (or
		// by an earlier process). Rebuild from the store.
		active, err := b.lifecycle.ActiveSession(ctx, tech)
		if err != nil {
			b.log.Printf("Error looking up active session: %v", err)
			return b.sender.SendMessage(ctx, msg.Chat.ID, "Error ending session. Please try again.")
		}
		if active == nil {
			return b.sender.SendMessage(ctx, msg.Chat.ID, "No active session found. Use /startsession first.")
		}
		sessionID = active.ID
	}

	session, err := b.lifecycle.EndSession(ctx, sessionID, store.StatusCompleted)
	if err != nil {
		b.log.Printf("Error ending session: %v", err)
		return b.sender.SendMessage(ctx, msg.Chat.ID, "Error ending session. Please try again.")
	}

	b.setSessionID(msg.From.ID, "")

	return b.sender.SendMessage(ctx, msg.Chat.ID, fmt.Sprintf(
		"Session ended successfully!\nSession ID: %s\nStatus: %s", session.ID, session.Status))
}
