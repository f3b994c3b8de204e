package whatsapp

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wacrm/pkg/dtos"
	"github.com/wacrm/pkg/entities"
	"github.com/wacrm/pkg/state"
)

func inWorkspace(workspaceID string) context.Context {
	return state.SetCurrentWorkspace(context.Background(), workspaceID)
}

func TestServiceRequiresWorkspace(t *testing.T) {
	h := newHarness(t, testOptions())
	svc := NewService(h.manager, h.repo, h.gateway)

	_, err := svc.CreateSession(context.Background(), dtos.CreateSessionDTO{SessionName: "main"})
	assert.ErrorIs(t, err, ErrWorkspaceRequired)
	_, err = svc.ListSessions(context.Background())
	assert.ErrorIs(t, err, ErrWorkspaceRequired)
	_, err = svc.ListConversations(context.Background(), 1)
	assert.ErrorIs(t, err, ErrWorkspaceRequired)
	assert.Equal(t, 0, h.dialer.count())
}

func TestServiceGeneratesSessionID(t *testing.T) {
	h := newHarness(t, testOptions())
	svc := NewService(h.manager, h.repo, h.gateway)

	got, err := svc.CreateSession(inWorkspace("ws-1"), dtos.CreateSessionDTO{SessionName: "main"})
	require.NoError(t, err)
	assert.Len(t, got.SessionID, 36)
	assert.Equal(t, entities.SessionStatusConnecting, got.Status)
}

func TestServiceHidesOtherWorkspaces(t *testing.T) {
	h := newHarness(t, testOptions())
	svc := NewService(h.manager, h.repo, h.gateway)
	mine, theirs := inWorkspace("ws-1"), inWorkspace("ws-2")

	_, err := svc.CreateSession(mine, dtos.CreateSessionDTO{SessionID: "s1", SessionName: "main"})
	require.NoError(t, err)

	_, err = svc.GetSession(theirs, "s1")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.ErrorIs(t, svc.DisconnectSession(theirs, "s1"), ErrSessionNotFound)
	assert.ErrorIs(t, svc.DeleteSession(theirs, "s1"), ErrSessionNotFound)
	_, err = svc.ReconnectSession(theirs, "s1")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = svc.SendMessage(theirs, "s1", dtos.SendMessageDTO{PhoneNumber: "15551234567", Message: "hi"})
	assert.ErrorIs(t, err, ErrSessionNotFound)

	// claiming another workspace's id is refused rather than hijacking it
	_, err = svc.CreateSession(theirs, dtos.CreateSessionDTO{SessionID: "s1", SessionName: "main"})
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.Equal(t, 1, h.dialer.count())

	list, err := svc.ListSessions(theirs)
	require.NoError(t, err)
	assert.Empty(t, list)

	list, err = svc.ListSessions(mine)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "s1", list[0].SessionID)

	got, err := svc.GetSession(mine, "s1")
	require.NoError(t, err)
	assert.Equal(t, "main", got.SessionName)
}

func TestServiceConversations(t *testing.T) {
	h := newHarness(t, testOptions())
	svc := NewService(h.manager, h.repo, h.gateway)
	ctx := inWorkspace(testWorkspace)
	h.connect(t, "s1", testWorkspace, ownPhone)

	conn := h.dialer.last()
	in := text("IN-1", "15551234567@s.whatsapp.net", "hello from alice", false, "Alice")
	in.Timestamp = in.Timestamp.Add(2 * time.Second)
	conn.emit(MessagesEvent{Kind: BatchNotify, Messages: []InboundMessage{in}})
	h.waitFor(t, "inbound stored", func() bool {
		var n int64
		h.db.Model(&entities.Message{}).Count(&n)
		return n == 1
	})

	sent, err := svc.SendMessage(ctx, "s1", dtos.SendMessageDTO{PhoneNumber: "+1 555 123 4567", Message: "hi alice"})
	require.NoError(t, err)
	assert.Equal(t, "hi alice", sent.Text)

	page, err := svc.ListConversations(ctx, 1)
	require.NoError(t, err)
	require.Len(t, page.Conversations, 1)
	conv := page.Conversations[0]
	assert.Equal(t, "Alice", conv.Contact.Name)
	assert.Equal(t, 1, conv.UnreadCount)

	messages, err := svc.ListMessages(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	texts := []string{messages[0].Text, messages[1].Text}
	assert.ElementsMatch(t, []string{"hello from alice", "hi alice"}, texts)

	_, err = svc.ListMessages(inWorkspace("ws-2"), conv.ID)
	assert.ErrorIs(t, err, ErrConversationNotFound)
	assert.ErrorIs(t, svc.MarkConversationRead(inWorkspace("ws-2"), conv.ID), ErrConversationNotFound)

	require.NoError(t, svc.MarkConversationRead(ctx, conv.ID))
	page, err = svc.ListConversations(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, page.Conversations[0].UnreadCount)
}
