package repository

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"

	"github.com/fathima-sithara/messaging-service/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func appendMsg(t *testing.T, s *MemoryStore, conv *domain.Conversation, from, to, content string) *domain.Message {
	t.Helper()
	m, err := s.Append(context.Background(), &domain.Message{
		ConversationID: conv.ID,
		Sender:         from,
		Receiver:       to,
		Content:        content,
	})
	require.NoError(t, err)
	require.NoError(t, s.RecordNewMessage(context.Background(), conv.ID, m, to))
	return m
}

func TestFindOrCreateConcurrentSinglePair(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	const n = 50
	ids := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, b := "alice", "bob"
			if i%2 == 1 {
				a, b = b, a
			}
			c, err := s.FindOrCreate(ctx, a, b)
			if assert.NoError(t, err) {
				ids[i] = c.ID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	convs, err := s.ListForUser(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, convs, 1)
	assert.Equal(t, [2]string{"alice", "bob"}, convs[0].Participants)
	assert.Equal(t, [2]int{0, 0}, convs[0].UnreadCounts)
}

func TestFindOrCreateRejectsSelf(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.FindOrCreate(context.Background(), "alice", "alice")
	assert.True(t, errors.Is(err, domain.ErrInvalid))
}

func TestUnreadCountsAndMarkRead(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	conv, err := s.FindOrCreate(ctx, "alice", "bob")
	require.NoError(t, err)

	var last *domain.Message
	for i := 0; i < 3; i++ {
		last = appendMsg(t, s, conv, "alice", "bob", fmt.Sprintf("m%d", i))
	}

	got, err := s.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.UnreadFor("bob"))
	assert.Equal(t, 0, got.UnreadFor("alice"))
	assert.Equal(t, last.ID, got.LastMessageID)

	require.NoError(t, s.MarkRead(ctx, conv.ID, "bob"))
	got, err = s.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.UnreadFor("bob"))

	assert.ErrorIs(t, s.MarkRead(ctx, conv.ID, "mallory"), domain.ErrForbidden)
	assert.ErrorIs(t, s.MarkRead(ctx, "missing", "bob"), domain.ErrNotFound)
}

func TestListByConversationPaging(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	conv, err := s.FindOrCreate(ctx, "alice", "bob")
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		appendMsg(t, s, conv, "alice", "bob", fmt.Sprintf("m%d", i))
	}

	page, err := s.ListByConversation(ctx, conv.ID, 1, 2)
	require.NoError(t, err)
	require.Len(t, page.Messages, 2)
	assert.Equal(t, "m3", page.Messages[0].Content)
	assert.Equal(t, "m4", page.Messages[1].Content)
	assert.Equal(t, 3, page.TotalPages)
	assert.Equal(t, int64(5), page.TotalMessages)
	assert.True(t, page.HasMore)

	page, err = s.ListByConversation(ctx, conv.ID, 3, 2)
	require.NoError(t, err)
	require.Len(t, page.Messages, 1)
	assert.Equal(t, "m0", page.Messages[0].Content)
	assert.False(t, page.HasMore)

	page, err = s.ListByConversation(ctx, conv.ID, 9, 2)
	require.NoError(t, err)
	assert.Empty(t, page.Messages)

	page, err = s.ListByConversation(ctx, conv.ID, math.MaxInt/2+2, 2)
	require.NoError(t, err)
	assert.Empty(t, page.Messages)
	assert.Equal(t, int64(5), page.TotalMessages)
}

func TestAdvanceStatusIsMonotonic(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	conv, err := s.FindOrCreate(ctx, "alice", "bob")
	require.NoError(t, err)
	m := appendMsg(t, s, conv, "alice", "bob", "hi")

	got, changed, err := s.AdvanceStatus(ctx, m.ID, domain.StatusRead)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, domain.StatusRead, got.Status)
	require.NotNil(t, got.ReadAt)

	got, changed, err = s.AdvanceStatus(ctx, m.ID, domain.StatusDelivered)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, domain.StatusRead, got.Status)
	assert.Nil(t, got.DeliveredAt)

	_, _, err = s.AdvanceStatus(ctx, "missing", domain.StatusDelivered)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMarkManyReadOnlyTouchesOneDirection(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	conv, err := s.FindOrCreate(ctx, "alice", "bob")
	require.NoError(t, err)

	var fromAlice []*domain.Message
	for i := 0; i < 3; i++ {
		fromAlice = append(fromAlice, appendMsg(t, s, conv, "alice", "bob", "a"))
	}
	fromBob := appendMsg(t, s, conv, "bob", "alice", "b")
	_, _, err = s.AdvanceStatus(ctx, fromAlice[0].ID, domain.StatusDelivered)
	require.NoError(t, err)

	n, err := s.MarkManyRead(ctx, conv.ID, "bob", "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	var readAt *domain.Message
	for _, m := range fromAlice {
		got, err := s.GetMessage(ctx, m.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusRead, got.Status)
		if readAt == nil {
			readAt = got
		} else {
			assert.Equal(t, *readAt.ReadAt, *got.ReadAt)
		}
	}
	other, err := s.GetMessage(ctx, fromBob.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSent, other.Status)

	n, err = s.MarkManyRead(ctx, conv.ID, "bob", "alice")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRemoveOnlyBySender(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	conv, err := s.FindOrCreate(ctx, "alice", "bob")
	require.NoError(t, err)
	m := appendMsg(t, s, conv, "alice", "bob", "hi")

	_, err = s.Remove(ctx, m.ID, "bob")
	assert.ErrorIs(t, err, domain.ErrForbidden)
	_, err = s.GetMessage(ctx, m.ID)
	require.NoError(t, err)

	removed, err := s.Remove(ctx, m.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, m.ID, removed.ID)

	_, err = s.GetMessage(ctx, m.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	page, err := s.ListByConversation(ctx, conv.ID, 1, 10)
	require.NoError(t, err)
	assert.Empty(t, page.Messages)

	_, err = s.Remove(ctx, m.ID, "alice")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestListForUserNewestFirst(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	first, err := s.FindOrCreate(ctx, "alice", "bob")
	require.NoError(t, err)
	second, err := s.FindOrCreate(ctx, "alice", "carol")
	require.NoError(t, err)
	_, err = s.FindOrCreate(ctx, "bob", "carol")
	require.NoError(t, err)

	appendMsg(t, s, second, "carol", "alice", "x")
	appendMsg(t, s, first, "bob", "alice", "y")

	convs, err := s.ListForUser(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, convs, 2)
	assert.Equal(t, first.ID, convs[0].ID)
	assert.Equal(t, second.ID, convs[1].ID)
}

func TestUserPresence(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	s.AddUser(domain.User{ID: "alice", Name: "Alice"})

	require.NoError(t, s.SetPresence(ctx, "alice", true, s.now()))
	u, err := s.GetUser(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, u.IsOnline)
	assert.False(t, u.LastSeen.IsZero())

	assert.ErrorIs(t, s.SetPresence(ctx, "ghost", true, s.now()), domain.ErrNotFound)

	users, err := s.GetUsers(ctx, []string{"alice", "ghost"})
	require.NoError(t, err)
	assert.Len(t, users, 1)
}
