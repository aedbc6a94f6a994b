package handlers

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pneumoscan-labs/pneumoscan-go-sdk/models"
	"github.com/pneumoscan-labs/pneumoscan-go-sdk/utils"
	"go.uber.org/zap"
)

const (
	assistantUnreachableFallback = "I could not reach the assistant right now. Please try again in a moment."
	assistantEmptyReplyFallback  = "I don't have a response for that. Could you rephrase your question?"
)

// ChatBackend abstracts the /chat endpoint for the session.
type ChatBackend interface {
	Send(ctx context.Context, message string) (string, error)
}

// ChatHandler keeps the conversation log. The user turn is appended
// optimistically the moment it is submitted, together with a pending
// assistant slot (the composing placeholder). The slot is resolved in
// place by ID when the reply lands, so two submissions in flight at once
// still render in submission order even if their replies complete out of
// order. Suggestion chips feed the same path.
type ChatHandler struct {
	session  *TriageSession
	backend  ChatBackend
	isActive bool

	mu    sync.Mutex
	turns []*models.ChatTurn
}

func InitChatHandler(session *TriageSession) *ChatHandler {
	session.Logger.Info("Initializing Chat Handler...")

	return &ChatHandler{
		session:  session,
		backend:  utils.NewChatClient(session.Config.Backend.BaseURL, session.Config.Backend.ChatTimeout),
		isActive: true,
	}
}

func (h *ChatHandler) Submit(text string) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return
	}

	userTurn := &models.ChatTurn{
		ID:        uuid.New().String(),
		Sender:    models.SenderUser,
		Text:      utils.SanitizeUserText(trimmed),
		Timestamp: time.Now(),
	}
	slot := &models.ChatTurn{
		ID:        uuid.New().String(),
		Sender:    models.SenderAssistant,
		Pending:   true,
		Timestamp: time.Now(),
	}

	h.mu.Lock()
	h.turns = append(h.turns, userTurn, slot)
	h.mu.Unlock()

	h.session.Broadcast("chat_turn", *userTurn)
	h.session.Broadcast("chat_composing", map[string]string{"id": slot.ID})

	go h.resolve(slot.ID, trimmed)
}

// Suggestion pre-fills the input from a chip and submits it.
func (h *ChatHandler) Suggestion(text string) {
	h.Submit(text)
}

// resolve fills the pending assistant slot. Every path ends the slot:
// server reply, empty-reply fallback, or the unreachable fallback on
// transport failure. No placeholder outlives its request.
func (h *ChatHandler) resolve(slotID, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), h.session.Config.Backend.ChatTimeout)
	defer cancel()

	var text string
	reply, err := h.backend.Send(ctx, message)
	switch {
	case err != nil:
		h.session.Logger.Error("Chat request failed", zap.Error(err))
		text = assistantUnreachableFallback
	case strings.TrimSpace(reply) == "":
		text = assistantEmptyReplyFallback
	default:
		text = utils.RenderAssistantText(reply)
	}

	var resolved models.ChatTurn
	h.mu.Lock()
	for _, turn := range h.turns {
		if turn.ID == slotID {
			turn.Pending = false
			turn.Text = text
			resolved = *turn
			break
		}
	}
	h.mu.Unlock()

	if resolved.ID == "" {
		h.session.Logger.Warn("Chat slot vanished before resolution", zap.String("slot_id", slotID))
		return
	}

	h.session.Broadcast("chat_resolved", resolved)
}

// Turns returns a snapshot of the conversation in submission order.
func (h *ChatHandler) Turns() []models.ChatTurn {
	h.mu.Lock()
	defer h.mu.Unlock()

	snapshot := make([]models.ChatTurn, len(h.turns))
	for i, turn := range h.turns {
		snapshot[i] = *turn
	}
	return snapshot
}

func (h *ChatHandler) Close() {
	h.session.Logger.Info("Closing Chat Handler")
	h.isActive = false
}
