package service

import (
	"context"
	"time"

	"github.com/fathima-sithara/messaging-service/internal/domain"
	"github.com/fathima-sithara/messaging-service/internal/protocol"
)

// Notifier delivers an event to a user's live connection. It reports false
// when the user has no connection or the push was dropped.
type Notifier interface {
	Push(userID string, ev protocol.Event) bool
}

// EventPublisher ships domain events to the message bus.
type EventPublisher interface {
	Publish(ctx context.Context, key string, v any) error
}

const (
	EventMessageSent      = "message.sent"
	EventMessageDelivered = "message.delivered"
	EventMessagesRead     = "messages.read"
	EventMessageDeleted   = "message.deleted"
)

// DomainEvent is the bus record for a completed mutation, keyed by
// conversation id so one conversation's events stay ordered.
type DomainEvent struct {
	Type           string          `json:"type"`
	ConversationID string          `json:"conversation_id"`
	MessageID      string          `json:"message_id,omitempty"`
	Actor          string          `json:"actor"`
	Count          int64           `json:"count,omitempty"`
	Message        *domain.Message `json:"message,omitempty"`
	At             time.Time       `json:"at"`
}

type nopNotifier struct{}

func (nopNotifier) Push(string, protocol.Event) bool { return false }
