package domain

import "time"

type MessageType string

const (
	MessageText  MessageType = "text"
	MessageFile  MessageType = "file"
	MessageImage MessageType = "image"
)

func (t MessageType) Valid() bool {
	switch t {
	case MessageText, MessageFile, MessageImage:
		return true
	}
	return false
}

// Status is the delivery lifecycle of a message. It only ever moves forward:
// sent -> delivered -> read, with sent -> read allowed directly.
type Status string

const (
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusRead      Status = "read"
)

func (s Status) rank() int {
	switch s {
	case StatusSent:
		return 1
	case StatusDelivered:
		return 2
	case StatusRead:
		return 3
	}
	return 0
}

func (s Status) Valid() bool { return s.rank() > 0 }

// Before reports whether s strictly precedes next in the lifecycle.
func (s Status) Before(next Status) bool {
	return next.Valid() && s.rank() < next.rank()
}

// Preceding returns every status that may legally advance to s.
func (s Status) Preceding() []Status {
	var out []Status
	for _, st := range []Status{StatusSent, StatusDelivered, StatusRead} {
		if st.Before(s) {
			out = append(out, st)
		}
	}
	return out
}

type Message struct {
	ID             string      `bson:"_id" json:"id"`
	ConversationID string      `bson:"conversation_id" json:"conversation_id"`
	Sender         string      `bson:"sender" json:"sender"`
	Receiver       string      `bson:"receiver" json:"receiver"`
	Content        string      `bson:"content" json:"content"`
	Type           MessageType `bson:"message_type" json:"message_type"`
	Status         Status      `bson:"status" json:"status"`
	DeliveredAt    *time.Time  `bson:"delivered_at,omitempty" json:"delivered_at,omitempty"`
	ReadAt         *time.Time  `bson:"read_at,omitempty" json:"read_at,omitempty"`
	CreatedAt      time.Time   `bson:"created_at" json:"created_at"`
}

// Advance moves the message to next and stamps the matching timestamp.
// It reports false and leaves the message untouched when next is not ahead.
func (m *Message) Advance(next Status, at time.Time) bool {
	if !m.Status.Before(next) {
		return false
	}
	m.Status = next
	switch next {
	case StatusDelivered:
		m.DeliveredAt = &at
	case StatusRead:
		m.ReadAt = &at
	}
	return true
}

// MessagePage is one page of a conversation's history, oldest first.
type MessagePage struct {
	Messages      []*Message `json:"messages"`
	CurrentPage   int        `json:"current_page"`
	PageSize      int        `json:"page_size"`
	TotalPages    int        `json:"total_pages"`
	TotalMessages int64      `json:"total_messages"`
	HasMore       bool       `json:"has_more"`
}

// NewMessagePage fills the pagination metadata for msgs.
func NewMessagePage(msgs []*Message, page, size int, total int64) *MessagePage {
	pages := 0
	if size > 0 {
		pages = int((total + int64(size) - 1) / int64(size))
	}
	if msgs == nil {
		msgs = []*Message{}
	}
	return &MessagePage{
		Messages:      msgs,
		CurrentPage:   page,
		PageSize:      size,
		TotalPages:    pages,
		TotalMessages: total,
		HasMore:       page < pages,
	}
}
