package protocol

import (
	"time"

	"github.com/fathima-sithara/messaging-service/internal/domain"
)

type SendPayload struct {
	ReceiverID     string `json:"receiver_id" validate:"required"`
	Content        string `json:"content" validate:"required"`
	ConversationID string `json:"conversation_id,omitempty"`
	MessageType    string `json:"message_type,omitempty" validate:"omitempty,oneof=text file image"`
	ClientRef      string `json:"client_ref,omitempty" validate:"omitempty,max=64"`
}

type TypingPayload struct {
	ReceiverID string `json:"receiver_id" validate:"required"`
	IsTyping   bool   `json:"is_typing"`
}

type MarkAsReadPayload struct {
	ConversationID string `json:"conversation_id" validate:"required"`
	SenderID       string `json:"sender_id,omitempty"`
}

type MessageSentPayload struct {
	Message   *domain.Message `json:"message"`
	ClientRef string          `json:"client_ref,omitempty"`
}

type MessageDeliveredPayload struct {
	MessageID      string    `json:"message_id"`
	ConversationID string    `json:"conversation_id"`
	DeliveredAt    time.Time `json:"delivered_at"`
}

type MessagesReadPayload struct {
	ConversationID string `json:"conversation_id"`
	ReadBy         string `json:"read_by"`
	Count          int64  `json:"count"`
}

type MessageDeletedPayload struct {
	MessageID      string `json:"message_id"`
	ConversationID string `json:"conversation_id"`
}

type MessageErrorPayload struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	Event     string `json:"event,omitempty"`
	ClientRef string `json:"client_ref,omitempty"`
}

type UserTypingPayload struct {
	UserID   string `json:"user_id"`
	IsTyping bool   `json:"is_typing"`
}

type OnlineUsersPayload struct {
	Users []string `json:"users"`
}

type UserPresencePayload struct {
	UserID   string     `json:"user_id"`
	LastSeen *time.Time `json:"last_seen,omitempty"`
}

func NewMessage(m *domain.Message) Event {
	return Event{Type: TypeNewMessage, Payload: m}
}

func MessageSent(m *domain.Message, clientRef string) Event {
	return Event{Type: TypeMessageSent, Payload: MessageSentPayload{Message: m, ClientRef: clientRef}}
}

// MessageDelivered expects m to carry DeliveredAt.
func MessageDelivered(m *domain.Message) Event {
	p := MessageDeliveredPayload{MessageID: m.ID, ConversationID: m.ConversationID}
	if m.DeliveredAt != nil {
		p.DeliveredAt = *m.DeliveredAt
	}
	return Event{Type: TypeMessageDelivered, Payload: p}
}

func MessagesRead(convID, readBy string, count int64) Event {
	return Event{Type: TypeMessagesRead, Payload: MessagesReadPayload{ConversationID: convID, ReadBy: readBy, Count: count}}
}

func MessageDeleted(m *domain.Message) Event {
	return Event{Type: TypeMessageDeleted, Payload: MessageDeletedPayload{MessageID: m.ID, ConversationID: m.ConversationID}}
}

// MessageError reports a failed inbound event back to its sender.
func MessageError(event, code, msg, clientRef string) Event {
	return Event{Type: TypeMessageError, Payload: MessageErrorPayload{Error: msg, Code: code, Event: event, ClientRef: clientRef}}
}

func UserTyping(user string, typing bool) Event {
	return Event{Type: TypeUserTyping, Payload: UserTypingPayload{UserID: user, IsTyping: typing}}
}

func OnlineUsers(users []string) Event {
	if users == nil {
		users = []string{}
	}
	return Event{Type: TypeOnlineUsers, Payload: OnlineUsersPayload{Users: users}}
}

func UserOnline(user string) Event {
	return Event{Type: TypeUserOnline, Payload: UserPresencePayload{UserID: user}}
}

func UserOffline(user string, at time.Time) Event {
	return Event{Type: TypeUserOffline, Payload: UserPresencePayload{UserID: user, LastSeen: &at}}
}
