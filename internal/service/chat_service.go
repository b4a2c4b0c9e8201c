package service

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/fathima-sithara/messaging-service/internal/domain"
	"github.com/fathima-sithara/messaging-service/internal/metrics"
	"github.com/fathima-sithara/messaging-service/internal/protocol"
	"github.com/fathima-sithara/messaging-service/internal/repository"
	"go.uber.org/zap"
)

type Options struct {
	MaxContentLength int
	DefaultPageSize  int
	MaxPageSize      int
}

// ChatService holds the messaging use cases shared by the socket router
// and the HTTP handlers.
type ChatService struct {
	convs    repository.ConversationRepository
	msgs     repository.MessageRepository
	users    repository.UserRepository
	notifier Notifier
	events   EventPublisher
	log      *zap.SugaredLogger
	opts     Options
	now      func() time.Time
}

func NewChatService(
	convs repository.ConversationRepository,
	msgs repository.MessageRepository,
	users repository.UserRepository,
	notifier Notifier,
	events EventPublisher,
	log *zap.SugaredLogger,
	opts Options,
) *ChatService {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	if opts.MaxContentLength <= 0 {
		opts.MaxContentLength = 5000
	}
	if opts.DefaultPageSize <= 0 {
		opts.DefaultPageSize = 50
	}
	if opts.MaxPageSize < opts.DefaultPageSize {
		opts.MaxPageSize = opts.DefaultPageSize
	}
	return &ChatService{
		convs:    convs,
		msgs:     msgs,
		users:    users,
		notifier: notifier,
		events:   events,
		log:      log,
		opts:     opts,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

type SendInput struct {
	ReceiverID     string
	Content        string
	ConversationID string
	MessageType    string
	ClientRef      string
}

func (s *ChatService) validateSend(sender string, in *SendInput) (domain.MessageType, error) {
	in.ReceiverID = strings.TrimSpace(in.ReceiverID)
	in.Content = strings.TrimSpace(in.Content)
	switch {
	case in.ReceiverID == "":
		return "", domain.Invalid("receiver_id is required")
	case in.Content == "":
		return "", domain.Invalid("content is required")
	case utf8.RuneCountInString(in.Content) > s.opts.MaxContentLength:
		return "", domain.Invalid(fmt.Sprintf("content exceeds %d characters", s.opts.MaxContentLength))
	case in.ReceiverID == sender:
		return "", domain.Invalid("cannot send a message to yourself")
	}
	mt := domain.MessageType(in.MessageType)
	if mt == "" {
		mt = domain.MessageText
	}
	if !mt.Valid() {
		return "", domain.Invalid("message_type must be one of [text file image]")
	}
	return mt, nil
}

// SendMessage persists a message from sender and routes it. The receiver
// gets newMessage when connected, which also advances the message to
// delivered; an offline receiver only sees the unread counter move.
func (s *ChatService) SendMessage(ctx context.Context, sender string, in SendInput) (*domain.Message, error) {
	mt, err := s.validateSend(sender, &in)
	if err != nil {
		return nil, err
	}
	if _, err := s.users.GetUser(ctx, in.ReceiverID); err != nil {
		return nil, err
	}
	conv, err := s.resolveConversation(ctx, sender, in.ReceiverID, in.ConversationID)
	if err != nil {
		return nil, err
	}

	msg, err := s.msgs.Append(ctx, &domain.Message{
		ConversationID: conv.ID,
		Sender:         sender,
		Receiver:       in.ReceiverID,
		Content:        in.Content,
		Type:           mt,
	})
	if err != nil {
		return nil, fmt.Errorf("append message: %w", err)
	}
	if err := s.convs.RecordNewMessage(ctx, conv.ID, msg, in.ReceiverID); err != nil {
		return nil, fmt.Errorf("record message on conversation: %w", err)
	}
	metrics.MessagesSent.Inc()

	s.notifier.Push(sender, protocol.MessageSent(msg, in.ClientRef))
	s.publish(ctx, DomainEvent{Type: EventMessageSent, ConversationID: conv.ID, MessageID: msg.ID, Actor: sender, Message: msg, At: msg.CreatedAt})

	if s.notifier.Push(in.ReceiverID, protocol.NewMessage(msg)) {
		delivered, changed, err := s.msgs.AdvanceStatus(ctx, msg.ID, domain.StatusDelivered)
		switch {
		case err != nil:
			s.log.Warnw("advance to delivered failed", "message_id", msg.ID, "err", err)
		case changed:
			msg = delivered
			s.notifier.Push(sender, protocol.MessageDelivered(delivered))
			s.publish(ctx, DomainEvent{Type: EventMessageDelivered, ConversationID: conv.ID, MessageID: msg.ID, Actor: in.ReceiverID, At: *delivered.DeliveredAt})
		}
	}
	return msg, nil
}

func (s *ChatService) resolveConversation(ctx context.Context, sender, receiver, convID string) (*domain.Conversation, error) {
	if convID == "" {
		return s.convs.FindOrCreate(ctx, sender, receiver)
	}
	conv, err := s.convs.GetConversation(ctx, convID)
	if err != nil {
		return nil, err
	}
	if !conv.Has(sender) {
		return nil, fmt.Errorf("conversation %s: %w", convID, domain.ErrForbidden)
	}
	if !conv.Has(receiver) {
		return nil, domain.Invalid("receiver is not part of the conversation")
	}
	return conv, nil
}

// ListConversations returns user's conversations, newest activity first,
// each with the other participant's profile and user's unread count.
func (s *ChatService) ListConversations(ctx context.Context, user string) ([]domain.ConversationView, error) {
	convs, err := s.convs.ListForUser(ctx, user)
	if err != nil {
		return nil, err
	}

	others := make([]string, 0, len(convs))
	lastIDs := make([]string, 0, len(convs))
	for _, c := range convs {
		others = append(others, c.Other(user))
		if c.LastMessageID != "" {
			lastIDs = append(lastIDs, c.LastMessageID)
		}
	}
	profiles, err := s.users.GetUsers(ctx, others)
	if err != nil {
		return nil, err
	}
	lasts, err := s.msgs.GetMessages(ctx, lastIDs)
	if err != nil {
		return nil, err
	}

	out := make([]domain.ConversationView, 0, len(convs))
	for _, c := range convs {
		other := c.Other(user)
		view := domain.ConversationView{
			ID:          c.ID,
			Participant: domain.Profile{ID: other},
			UnreadCount: c.UnreadFor(user),
			UpdatedAt:   c.UpdatedAt,
		}
		if u, ok := profiles[other]; ok {
			view.Participant = u.Profile()
		}
		if m, ok := lasts[c.LastMessageID]; ok {
			view.LastMessage = m
		}
		out = append(out, view)
	}
	return out, nil
}

// ListMessages returns one page of a conversation's history to a participant.
func (s *ChatService) ListMessages(ctx context.Context, user, convID string, page, limit int) (*domain.MessagePage, error) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = s.opts.DefaultPageSize
	}
	if limit > s.opts.MaxPageSize {
		limit = s.opts.MaxPageSize
	}
	if page-1 > math.MaxInt/limit {
		return nil, domain.Invalid("page out of range")
	}
	if _, err := s.participantConversation(ctx, user, convID); err != nil {
		return nil, err
	}
	return s.msgs.ListByConversation(ctx, convID, page, limit)
}

func (s *ChatService) participantConversation(ctx context.Context, user, convID string) (*domain.Conversation, error) {
	if convID == "" {
		return nil, domain.Invalid("conversation_id is required")
	}
	conv, err := s.convs.GetConversation(ctx, convID)
	if err != nil {
		return nil, err
	}
	if !conv.Has(user) {
		return nil, fmt.Errorf("conversation %s: %w", convID, domain.ErrForbidden)
	}
	return conv, nil
}

// MarkConversationRead marks everything the other participant sent to
// reader as read and clears reader's unread counter. senderID is optional
// and, when given, must name the other participant.
func (s *ChatService) MarkConversationRead(ctx context.Context, reader, convID, senderID string) (int64, error) {
	conv, err := s.participantConversation(ctx, reader, convID)
	if err != nil {
		return 0, err
	}
	sender := conv.Other(reader)
	if senderID != "" && senderID != sender {
		return 0, domain.Invalid("sender_id is not the other participant")
	}

	n, err := s.msgs.MarkManyRead(ctx, conv.ID, reader, sender)
	if err != nil {
		return 0, fmt.Errorf("mark messages read: %w", err)
	}
	if err := s.convs.MarkRead(ctx, conv.ID, reader); err != nil {
		return n, fmt.Errorf("reset unread counter: %w", err)
	}

	s.notifier.Push(sender, protocol.MessagesRead(conv.ID, reader, n))
	s.publish(ctx, DomainEvent{Type: EventMessagesRead, ConversationID: conv.ID, Actor: reader, Count: n, At: s.now()})
	return n, nil
}

// MarkDelivered lets the receiver acknowledge a single message.
func (s *ChatService) MarkDelivered(ctx context.Context, user, msgID string) (*domain.Message, error) {
	m, err := s.msgs.GetMessage(ctx, msgID)
	if err != nil {
		return nil, err
	}
	if m.Receiver != user {
		return nil, fmt.Errorf("message %s: %w", msgID, domain.ErrForbidden)
	}
	updated, changed, err := s.msgs.AdvanceStatus(ctx, msgID, domain.StatusDelivered)
	if err != nil {
		return nil, err
	}
	if changed {
		s.notifier.Push(updated.Sender, protocol.MessageDelivered(updated))
		s.publish(ctx, DomainEvent{Type: EventMessageDelivered, ConversationID: updated.ConversationID, MessageID: updated.ID, Actor: user, At: *updated.DeliveredAt})
	}
	return updated, nil
}

// DeleteMessage hard-deletes a message its sender owns and tells the other
// participant so an open view can drop it.
func (s *ChatService) DeleteMessage(ctx context.Context, user, msgID string) error {
	removed, err := s.msgs.Remove(ctx, msgID, user)
	if err != nil {
		return err
	}
	s.notifier.Push(removed.Receiver, protocol.MessageDeleted(removed))
	s.publish(ctx, DomainEvent{Type: EventMessageDeleted, ConversationID: removed.ConversationID, MessageID: removed.ID, Actor: user, At: s.now()})
	return nil
}

// Typing relays a typing indicator. Nothing is stored.
func (s *ChatService) Typing(ctx context.Context, user, receiver string, typing bool) error {
	receiver = strings.TrimSpace(receiver)
	if receiver == "" {
		return domain.Invalid("receiver_id is required")
	}
	if receiver == user {
		return domain.Invalid("cannot send typing to yourself")
	}
	s.notifier.Push(receiver, protocol.UserTyping(user, typing))
	return nil
}

func (s *ChatService) publish(ctx context.Context, ev DomainEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, ev.ConversationID, ev); err != nil {
		s.log.Warnw("publish domain event failed", "type", ev.Type, "conversation_id", ev.ConversationID, "err", err)
	}
}
