package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/fathima-sithara/messaging-service/internal/domain"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MemoryStore is a process-local implementation of every repository. It
// backs tests and local runs without mongo.
type MemoryStore struct {
	mu       sync.RWMutex
	users    map[string]*domain.User
	convs    map[string]*domain.Conversation
	byPair   map[string]string          // pair key -> conversation id
	msgs     map[string]*domain.Message // message id -> message
	convMsgs map[string][]string        // conversation id -> message ids, append order
	now      func() time.Time
	lastAt   time.Time
}

var (
	_ ConversationRepository = (*MemoryStore)(nil)
	_ MessageRepository      = (*MemoryStore)(nil)
	_ UserRepository         = (*MemoryStore)(nil)
)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:    make(map[string]*domain.User),
		convs:    make(map[string]*domain.Conversation),
		byPair:   make(map[string]string),
		msgs:     make(map[string]*domain.Message),
		convMsgs: make(map[string][]string),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// AddUser seeds the user directory.
func (s *MemoryStore) AddUser(u domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = &u
}

func copyConv(c *domain.Conversation) *domain.Conversation {
	cp := *c
	return &cp
}

func copyMsg(m *domain.Message) *domain.Message {
	cp := *m
	return &cp
}

func (s *MemoryStore) FindOrCreate(ctx context.Context, a, b string) (*domain.Conversation, error) {
	if a == b {
		return nil, domain.Invalid("a conversation needs two distinct participants")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := domain.PairKey(a, b)
	if id, ok := s.byPair[key]; ok {
		return copyConv(s.convs[id]), nil
	}
	c := domain.NewConversation(primitive.NewObjectID().Hex(), a, b, s.now())
	s.convs[c.ID] = c
	s.byPair[key] = c.ID
	return copyConv(c), nil
}

func (s *MemoryStore) GetConversation(ctx context.Context, id string) (*domain.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.convs[id]
	if !ok {
		return nil, domain.NotFound("conversation")
	}
	return copyConv(c), nil
}

func (s *MemoryStore) ListForUser(ctx context.Context, user string) ([]*domain.Conversation, error) {
	s.mu.RLock()
	out := []*domain.Conversation{}
	for _, c := range s.convs {
		if c.Has(user) {
			out = append(out, copyConv(c))
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

func (s *MemoryStore) RecordNewMessage(ctx context.Context, convID string, msg *domain.Message, recipient string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.convs[convID]
	if !ok {
		return domain.NotFound("conversation")
	}
	slot := c.Slot(recipient)
	if slot < 0 {
		return domain.Invalid("recipient is not part of the conversation")
	}
	c.LastMessageID = msg.ID
	c.UpdatedAt = msg.CreatedAt
	c.UnreadCounts[slot]++
	return nil
}

func (s *MemoryStore) MarkRead(ctx context.Context, convID, user string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.convs[convID]
	if !ok {
		return domain.NotFound("conversation")
	}
	slot := c.Slot(user)
	if slot < 0 {
		return domain.ErrForbidden
	}
	c.UnreadCounts[slot] = 0
	return nil
}

func (s *MemoryStore) Append(ctx context.Context, m *domain.Message) (*domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.ID == "" {
		m.ID = primitive.NewObjectID().Hex()
	}
	// created_at is strictly increasing so it alone orders the log
	at := s.now()
	if !at.After(s.lastAt) {
		at = s.lastAt.Add(time.Microsecond)
	}
	s.lastAt = at
	m.CreatedAt = at
	m.Status = domain.StatusSent
	m.DeliveredAt, m.ReadAt = nil, nil
	if m.Type == "" {
		m.Type = domain.MessageText
	}
	s.msgs[m.ID] = copyMsg(m)
	s.convMsgs[m.ConversationID] = append(s.convMsgs[m.ConversationID], m.ID)
	return m, nil
}

func (s *MemoryStore) GetMessage(ctx context.Context, id string) (*domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.msgs[id]
	if !ok {
		return nil, domain.NotFound("message")
	}
	return copyMsg(m), nil
}

func (s *MemoryStore) GetMessages(ctx context.Context, ids []string) (map[string]*domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]*domain.Message, len(ids))
	for _, id := range ids {
		if m, ok := s.msgs[id]; ok {
			out[id] = copyMsg(m)
		}
	}
	return out, nil
}

func (s *MemoryStore) ListByConversation(ctx context.Context, convID string, page, pageSize int) (*domain.MessagePage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.convMsgs[convID]
	total := len(ids)

	msgs := []*domain.Message{}
	if page < 1 || pageSize < 1 || page-1 > (total-1)/pageSize {
		return domain.NewMessagePage(msgs, page, pageSize, int64(total)), nil
	}

	// pages count back from the newest message
	end := total - (page-1)*pageSize
	start := max(end-pageSize, 0)
	for i := start; i < end; i++ {
		msgs = append(msgs, copyMsg(s.msgs[ids[i]]))
	}
	return domain.NewMessagePage(msgs, page, pageSize, int64(total)), nil
}

func (s *MemoryStore) AdvanceStatus(ctx context.Context, id string, to domain.Status) (*domain.Message, bool, error) {
	if !to.Valid() {
		return nil, false, domain.Invalid("unknown status " + string(to))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.msgs[id]
	if !ok {
		return nil, false, domain.NotFound("message")
	}
	changed := m.Advance(to, s.now())
	return copyMsg(m), changed, nil
}

func (s *MemoryStore) MarkManyRead(ctx context.Context, convID, recipient, sender string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	at := s.now()
	var n int64
	for _, id := range s.convMsgs[convID] {
		m := s.msgs[id]
		if m.Sender == sender && m.Receiver == recipient && m.Advance(domain.StatusRead, at) {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) Remove(ctx context.Context, id, requester string) (*domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.msgs[id]
	if !ok {
		return nil, domain.NotFound("message")
	}
	if m.Sender != requester {
		return nil, domain.ErrForbidden
	}
	delete(s.msgs, id)
	ids := s.convMsgs[m.ConversationID]
	for i, mid := range ids {
		if mid == id {
			s.convMsgs[m.ConversationID] = append(ids[:i:i], ids[i+1:]...)
			break
		}
	}
	return m, nil
}

func (s *MemoryStore) GetUser(ctx context.Context, id string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, domain.NotFound("user")
	}
	cp := *u
	return &cp, nil
}

func (s *MemoryStore) GetUsers(ctx context.Context, ids []string) (map[string]*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]*domain.User, len(ids))
	for _, id := range ids {
		if u, ok := s.users[id]; ok {
			cp := *u
			out[id] = &cp
		}
	}
	return out, nil
}

func (s *MemoryStore) SetPresence(ctx context.Context, id string, online bool, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return domain.NotFound("user")
	}
	u.IsOnline = online
	u.LastSeen = at.UTC()
	return nil
}
