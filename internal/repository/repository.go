package repository

import (
	"context"
	"time"

	"github.com/fathima-sithara/messaging-service/internal/domain"
)

// ConversationRepository owns the two-party conversation records.
type ConversationRepository interface {
	// FindOrCreate returns the single conversation for the pair {a, b},
	// creating it if absent. Concurrent calls for the same pair converge.
	FindOrCreate(ctx context.Context, a, b string) (*domain.Conversation, error)
	GetConversation(ctx context.Context, id string) (*domain.Conversation, error)
	// ListForUser returns conversations containing user, newest activity first.
	ListForUser(ctx context.Context, user string) ([]*domain.Conversation, error)
	// RecordNewMessage points the conversation at msg, bumps updated_at and
	// increments recipient's unread counter.
	RecordNewMessage(ctx context.Context, convID string, msg *domain.Message, recipient string) error
	// MarkRead resets user's unread counter.
	MarkRead(ctx context.Context, convID, user string) error
}

// MessageRepository owns the per-conversation message log.
type MessageRepository interface {
	Append(ctx context.Context, msg *domain.Message) (*domain.Message, error)
	GetMessage(ctx context.Context, id string) (*domain.Message, error)
	GetMessages(ctx context.Context, ids []string) (map[string]*domain.Message, error)
	// ListByConversation pages newest first; messages within a page are oldest first.
	ListByConversation(ctx context.Context, convID string, page, pageSize int) (*domain.MessagePage, error)
	// AdvanceStatus moves a message forward. changed is false when the
	// message was already at or past the target.
	AdvanceStatus(ctx context.Context, id string, to domain.Status) (msg *domain.Message, changed bool, err error)
	// MarkManyRead marks every unread message from sender to recipient read.
	MarkManyRead(ctx context.Context, convID, recipient, sender string) (int64, error)
	// Remove hard-deletes the message if requester sent it.
	Remove(ctx context.Context, id, requester string) (*domain.Message, error)
}

// UserRepository is the read side of the user directory plus presence fields.
type UserRepository interface {
	GetUser(ctx context.Context, id string) (*domain.User, error)
	GetUsers(ctx context.Context, ids []string) (map[string]*domain.User, error)
	SetPresence(ctx context.Context, id string, online bool, at time.Time) error
}
