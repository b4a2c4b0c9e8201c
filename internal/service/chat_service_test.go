package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"testing"

	"github.com/fathima-sithara/messaging-service/internal/domain"
	"github.com/fathima-sithara/messaging-service/internal/protocol"
	"github.com/fathima-sithara/messaging-service/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeNotifier struct {
	mu     sync.Mutex
	online map[string]bool
	pushed map[string][]protocol.Event
}

func newFakeNotifier(online ...string) *fakeNotifier {
	n := &fakeNotifier{online: map[string]bool{}, pushed: map[string][]protocol.Event{}}
	for _, u := range online {
		n.online[u] = true
	}
	return n
}

func (n *fakeNotifier) Push(user string, ev protocol.Event) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.online[user] {
		return false
	}
	n.pushed[user] = append(n.pushed[user], ev)
	return true
}

func (n *fakeNotifier) types(user string) []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []string
	for _, ev := range n.pushed[user] {
		out = append(out, ev.Type)
	}
	return out
}

type fakePublisher struct {
	mu     sync.Mutex
	events []DomainEvent
	err    error
}

func (p *fakePublisher) Publish(_ context.Context, key string, v any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, v.(DomainEvent))
	return nil
}

type fixture struct {
	store *repository.MemoryStore
	notif *fakeNotifier
	pub   *fakePublisher
	svc   *ChatService
}

func newFixture(t *testing.T, online ...string) *fixture {
	t.Helper()
	store := repository.NewMemoryStore()
	for _, u := range []string{"alice", "bob", "carol"} {
		store.AddUser(domain.User{ID: u, Name: strings.ToUpper(u[:1]) + u[1:]})
	}
	notif := newFakeNotifier(online...)
	pub := &fakePublisher{}
	svc := NewChatService(store, store, store, notif, pub, zap.NewNop().Sugar(), Options{
		MaxContentLength: 20,
		DefaultPageSize:  50,
		MaxPageSize:      100,
	})
	return &fixture{store: store, notif: notif, pub: pub, svc: svc}
}

func TestFirstContactWithOnlineReceiver(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	ctx := context.Background()

	msg, err := f.svc.SendMessage(ctx, "alice", SendInput{ReceiverID: "bob", Content: "  hello  ", ClientRef: "r1"})
	require.NoError(t, err)
	assert.Equal(t, "hello", msg.Content)
	assert.Equal(t, domain.StatusDelivered, msg.Status)
	require.NotNil(t, msg.DeliveredAt)

	assert.Equal(t, []string{protocol.TypeMessageSent, protocol.TypeMessageDelivered}, f.notif.types("alice"))
	assert.Equal(t, []string{protocol.TypeNewMessage}, f.notif.types("bob"))
	sent := f.notif.pushed["alice"][0].Payload.(protocol.MessageSentPayload)
	assert.Equal(t, "r1", sent.ClientRef)

	conv, err := f.store.GetConversation(ctx, msg.ConversationID)
	require.NoError(t, err)
	assert.Equal(t, 1, conv.UnreadFor("bob"))
	assert.Equal(t, msg.ID, conv.LastMessageID)

	require.Len(t, f.pub.events, 2)
	assert.Equal(t, EventMessageSent, f.pub.events[0].Type)
	assert.Equal(t, EventMessageDelivered, f.pub.events[1].Type)
}

func TestOfflineReceiverStaysSent(t *testing.T) {
	f := newFixture(t, "alice")
	ctx := context.Background()

	msg, err := f.svc.SendMessage(ctx, "alice", SendInput{ReceiverID: "bob", Content: "are you there"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSent, msg.Status)
	assert.Equal(t, []string{protocol.TypeMessageSent}, f.notif.types("alice"))

	stored, err := f.store.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSent, stored.Status)

	views, err := f.svc.ListConversations(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, 1, views[0].UnreadCount)
	assert.Equal(t, "alice", views[0].Participant.ID)
	assert.Equal(t, "Alice", views[0].Participant.Name)
	require.NotNil(t, views[0].LastMessage)
	assert.Equal(t, msg.ID, views[0].LastMessage.ID)
}

func TestSendValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name string
		in   SendInput
		kind error
	}{
		{"empty content", SendInput{ReceiverID: "bob", Content: "   "}, domain.ErrInvalid},
		{"missing receiver", SendInput{Content: "hi"}, domain.ErrInvalid},
		{"too long", SendInput{ReceiverID: "bob", Content: strings.Repeat("x", 21)}, domain.ErrInvalid},
		{"self", SendInput{ReceiverID: "alice", Content: "hi"}, domain.ErrInvalid},
		{"bad type", SendInput{ReceiverID: "bob", Content: "hi", MessageType: "video"}, domain.ErrInvalid},
		{"unknown receiver", SendInput{ReceiverID: "ghost", Content: "hi"}, domain.ErrNotFound},
		{"unknown conversation", SendInput{ReceiverID: "bob", Content: "hi", ConversationID: "nope"}, domain.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.SendMessage(ctx, "alice", tt.in)
			assert.ErrorIs(t, err, tt.kind)
		})
	}

	convs, err := f.store.ListForUser(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, convs)
}

func TestSendWithExplicitConversation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.SendMessage(ctx, "alice", SendInput{ReceiverID: "bob", Content: "one"})
	require.NoError(t, err)

	second, err := f.svc.SendMessage(ctx, "bob", SendInput{ReceiverID: "alice", Content: "two", ConversationID: first.ConversationID})
	require.NoError(t, err)
	assert.Equal(t, first.ConversationID, second.ConversationID)

	_, err = f.svc.SendMessage(ctx, "carol", SendInput{ReceiverID: "bob", Content: "x", ConversationID: first.ConversationID})
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = f.svc.SendMessage(ctx, "alice", SendInput{ReceiverID: "carol", Content: "x", ConversationID: first.ConversationID})
	assert.ErrorIs(t, err, domain.ErrInvalid)
}

func TestBulkReadNotifiesSender(t *testing.T) {
	f := newFixture(t, "alice")
	ctx := context.Background()

	var convID string
	for i := 0; i < 5; i++ {
		m, err := f.svc.SendMessage(ctx, "alice", SendInput{ReceiverID: "bob", Content: fmt.Sprintf("ping %d", i)})
		require.NoError(t, err)
		convID = m.ConversationID
	}
	conv, err := f.store.GetConversation(ctx, convID)
	require.NoError(t, err)
	require.Equal(t, 5, conv.UnreadFor("bob"))

	n, err := f.svc.MarkConversationRead(ctx, "bob", convID, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)

	conv, err = f.store.GetConversation(ctx, convID)
	require.NoError(t, err)
	assert.Equal(t, 0, conv.UnreadFor("bob"))

	page, err := f.svc.ListMessages(ctx, "bob", convID, 1, 0)
	require.NoError(t, err)
	require.Len(t, page.Messages, 5)
	for _, m := range page.Messages {
		assert.Equal(t, domain.StatusRead, m.Status)
		assert.NotNil(t, m.ReadAt, m.Content)
	}

	var reads []protocol.MessagesReadPayload
	for _, ev := range f.notif.pushed["alice"] {
		if ev.Type == protocol.TypeMessagesRead {
			reads = append(reads, ev.Payload.(protocol.MessagesReadPayload))
		}
	}
	require.Len(t, reads, 1)
	assert.Equal(t, "bob", reads[0].ReadBy)
	assert.Equal(t, convID, reads[0].ConversationID)
	assert.Equal(t, int64(5), reads[0].Count)

	// nothing left to read
	n, err = f.svc.MarkConversationRead(ctx, "bob", convID, "")
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = f.svc.MarkConversationRead(ctx, "bob", convID, "carol")
	assert.ErrorIs(t, err, domain.ErrInvalid)
	_, err = f.svc.MarkConversationRead(ctx, "carol", convID, "")
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestUnauthorizedDelete(t *testing.T) {
	f := newFixture(t, "bob")
	ctx := context.Background()

	m, err := f.svc.SendMessage(ctx, "alice", SendInput{ReceiverID: "bob", Content: "oops"})
	require.NoError(t, err)

	err = f.svc.DeleteMessage(ctx, "bob", m.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)
	_, err = f.store.GetMessage(ctx, m.ID)
	require.NoError(t, err)

	require.NoError(t, f.svc.DeleteMessage(ctx, "alice", m.ID))
	_, err = f.store.GetMessage(ctx, m.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	types := f.notif.types("bob")
	assert.Equal(t, protocol.TypeMessageDeleted, types[len(types)-1])
}

func TestMarkDeliveredOnlyByReceiver(t *testing.T) {
	f := newFixture(t, "alice")
	ctx := context.Background()

	m, err := f.svc.SendMessage(ctx, "alice", SendInput{ReceiverID: "bob", Content: "hi"})
	require.NoError(t, err)
	require.Equal(t, domain.StatusSent, m.Status)

	_, err = f.svc.MarkDelivered(ctx, "alice", m.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	got, err := f.svc.MarkDelivered(ctx, "bob", m.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDelivered, got.Status)
	types := f.notif.types("alice")
	assert.Equal(t, protocol.TypeMessageDelivered, types[len(types)-1])

	// already delivered: no second notification
	before := len(f.notif.types("alice"))
	_, err = f.svc.MarkDelivered(ctx, "bob", m.ID)
	require.NoError(t, err)
	assert.Len(t, f.notif.types("alice"), before)
}

func TestListMessagesAccess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	m, err := f.svc.SendMessage(ctx, "alice", SendInput{ReceiverID: "bob", Content: "hi"})
	require.NoError(t, err)

	_, err = f.svc.ListMessages(ctx, "carol", m.ConversationID, 1, 10)
	assert.ErrorIs(t, err, domain.ErrForbidden)
	_, err = f.svc.ListMessages(ctx, "alice", "missing", 1, 10)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	page, err := f.svc.ListMessages(ctx, "alice", m.ConversationID, -3, 1000)
	require.NoError(t, err)
	assert.Equal(t, 1, page.CurrentPage)
	assert.Equal(t, 100, page.PageSize)

	_, err = f.svc.ListMessages(ctx, "alice", m.ConversationID, math.MaxInt/50+2, 50)
	assert.ErrorIs(t, err, domain.ErrInvalid)

	page, err = f.svc.ListMessages(ctx, "alice", m.ConversationID, math.MaxInt/100, 100)
	require.NoError(t, err)
	assert.Empty(t, page.Messages)
	assert.Equal(t, int64(1), page.TotalMessages)
	assert.False(t, page.HasMore)
}

func TestTyping(t *testing.T) {
	f := newFixture(t, "bob")
	ctx := context.Background()

	require.NoError(t, f.svc.Typing(ctx, "alice", "bob", true))
	require.Len(t, f.notif.pushed["bob"], 1)
	p := f.notif.pushed["bob"][0].Payload.(protocol.UserTypingPayload)
	assert.Equal(t, "alice", p.UserID)
	assert.True(t, p.IsTyping)

	// offline receiver is silently skipped
	require.NoError(t, f.svc.Typing(ctx, "bob", "carol", true))
	assert.ErrorIs(t, f.svc.Typing(ctx, "alice", "", true), domain.ErrInvalid)
}

type failingMessages struct {
	repository.MessageRepository
}

func (failingMessages) Append(context.Context, *domain.Message) (*domain.Message, error) {
	return nil, errors.New("connection reset")
}

func TestStoreFailureSurfaces(t *testing.T) {
	store := repository.NewMemoryStore()
	store.AddUser(domain.User{ID: "bob"})
	notif := newFakeNotifier("alice", "bob")
	svc := NewChatService(store, failingMessages{store}, store, notif, nil, zap.NewNop().Sugar(), Options{})

	_, err := svc.SendMessage(context.Background(), "alice", SendInput{ReceiverID: "bob", Content: "hi"})
	require.Error(t, err)
	assert.Equal(t, "internal", domain.Code(err))
	assert.Empty(t, notif.types("alice"))
	assert.Empty(t, notif.types("bob"))
}

func TestPublishFailureDoesNotFailSend(t *testing.T) {
	f := newFixture(t)
	f.pub.err = errors.New("broker down")

	_, err := f.svc.SendMessage(context.Background(), "alice", SendInput{ReceiverID: "bob", Content: "hi"})
	assert.NoError(t, err)
}
