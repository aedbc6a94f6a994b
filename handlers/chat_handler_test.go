package handlers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pneumoscan-labs/pneumoscan-go-sdk/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatTurnsStayInSubmissionOrder(t *testing.T) {
	session, surface := newTestSession(t)
	chat := session.ChatHandler

	// Hold both replies so both submissions are pending at once, then
	// release them in reverse order.
	releaseA := make(chan struct{})
	releaseB := make(chan struct{})
	chat.backend = chatBackendFunc(func(ctx context.Context, message string) (string, error) {
		switch message {
		case "A":
			<-releaseA
			return "reply A", nil
		case "B":
			<-releaseB
			return "reply B", nil
		}
		return "", nil
	})

	chat.Submit("A")
	chat.Submit("B")

	turns := chat.Turns()
	require.Len(t, turns, 4)
	assert.Equal(t, models.SenderUser, turns[0].Sender)
	assert.Equal(t, "A", turns[0].Text)
	assert.True(t, turns[1].Pending)
	assert.Equal(t, models.SenderUser, turns[2].Sender)
	assert.Equal(t, "B", turns[2].Text)
	assert.True(t, turns[3].Pending)

	// B resolves first but must land in its own slot, after A's slot.
	close(releaseB)
	require.Eventually(t, func() bool {
		return !chat.Turns()[3].Pending
	}, 2*time.Second, 10*time.Millisecond)

	turns = chat.Turns()
	assert.Equal(t, "reply B", turns[3].Text)
	assert.True(t, turns[1].Pending, "A's slot must still be composing")

	close(releaseA)
	require.Eventually(t, func() bool {
		return !chat.Turns()[1].Pending
	}, 2*time.Second, 10*time.Millisecond)

	turns = chat.Turns()
	require.Len(t, turns, 4)
	assert.Equal(t, "reply A", turns[1].Text)
	for _, turn := range turns {
		assert.False(t, turn.Pending, "no composing placeholder may survive resolution")
	}

	assert.Len(t, surface.ofType("chat_composing"), 2)
	assert.Len(t, surface.ofType("chat_resolved"), 2)
}

func TestChatTransportFailureResolvesWithFallback(t *testing.T) {
	session, surface := newTestSession(t)
	chat := session.ChatHandler
	chat.backend = chatBackendFunc(func(ctx context.Context, message string) (string, error) {
		return "", errors.New("connection refused")
	})

	chat.Submit("hello")

	require.Eventually(t, func() bool {
		turns := chat.Turns()
		return len(turns) == 2 && !turns[1].Pending
	}, 2*time.Second, 10*time.Millisecond)

	turns := chat.Turns()
	assert.Equal(t, models.SenderAssistant, turns[1].Sender)
	assert.Equal(t, assistantUnreachableFallback, turns[1].Text)

	_, resolved := surface.last("chat_resolved")
	assert.True(t, resolved)
}

func TestChatEmptyReplyUsesFallback(t *testing.T) {
	session, _ := newTestSession(t)
	chat := session.ChatHandler
	chat.backend = chatBackendFunc(func(ctx context.Context, message string) (string, error) {
		return "  ", nil
	})

	chat.Submit("hello")

	require.Eventually(t, func() bool {
		turns := chat.Turns()
		return len(turns) == 2 && !turns[1].Pending
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, assistantEmptyReplyFallback, chat.Turns()[1].Text)
}

func TestChatUserTextIsEscaped(t *testing.T) {
	session, _ := newTestSession(t)
	chat := session.ChatHandler
	chat.backend = chatBackendFunc(func(ctx context.Context, message string) (string, error) {
		// The raw text goes to the backend, escaping is display-only
		assert.Equal(t, "<b>hi</b>", message)
		return "ok", nil
	})

	chat.Submit("<b>hi</b>")

	require.Eventually(t, func() bool {
		turns := chat.Turns()
		return len(turns) == 2 && !turns[1].Pending
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, "&lt;b&gt;hi&lt;/b&gt;", chat.Turns()[0].Text)
}

func TestChatBlankSubmissionIsIgnored(t *testing.T) {
	session, surface := newTestSession(t)
	session.ChatHandler.Submit("   ")

	assert.Empty(t, session.ChatHandler.Turns())
	assert.Empty(t, surface.ofType("chat_turn"))
}

func TestSuggestionChipUsesSubmissionPath(t *testing.T) {
	session, _ := newTestSession(t)
	chat := session.ChatHandler
	chat.backend = chatBackendFunc(func(ctx context.Context, message string) (string, error) {
		return "pneumonia is a lung infection", nil
	})

	chat.Suggestion("What is pneumonia?")

	require.Eventually(t, func() bool {
		turns := chat.Turns()
		return len(turns) == 2 && !turns[1].Pending
	}, 2*time.Second, 10*time.Millisecond)

	turns := chat.Turns()
	assert.Equal(t, "What is pneumonia?", turns[0].Text)
	assert.Equal(t, "pneumonia is a lung infection", turns[1].Text)
}
