package domain

import "time"

// Conversation is the persisted two-party container. Participants are stored
// in sorted order so PairKey and the unread slots are stable for a pair.
type Conversation struct {
	ID            string    `bson:"_id" json:"id"`
	PairKey       string    `bson:"pair_key" json:"-"`
	Participants  [2]string `bson:"participants" json:"participants"`
	UnreadCounts  [2]int    `bson:"unread_counts" json:"-"`
	LastMessageID string    `bson:"last_message_id,omitempty" json:"last_message_id,omitempty"`
	CreatedAt     time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt     time.Time `bson:"updated_at" json:"updated_at"`
}

// OrderPair returns a and b in canonical order.
func OrderPair(a, b string) (string, string) {
	if b < a {
		return b, a
	}
	return a, b
}

// PairKey is the natural key of the unordered pair {a, b}.
func PairKey(a, b string) string {
	a, b = OrderPair(a, b)
	return a + ":" + b
}

// NewConversation builds an empty conversation for the pair.
func NewConversation(id, a, b string, now time.Time) *Conversation {
	a, b = OrderPair(a, b)
	return &Conversation{
		ID:           id,
		PairKey:      a + ":" + b,
		Participants: [2]string{a, b},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// Slot returns the index of user in Participants, or -1.
func (c *Conversation) Slot(user string) int {
	for i, p := range c.Participants {
		if p == user {
			return i
		}
	}
	return -1
}

func (c *Conversation) Has(user string) bool { return c.Slot(user) >= 0 }

// Other returns the participant that is not user.
func (c *Conversation) Other(user string) string {
	switch c.Slot(user) {
	case 0:
		return c.Participants[1]
	case 1:
		return c.Participants[0]
	}
	return ""
}

// Joins reports whether the conversation is exactly the pair {a, b}.
func (c *Conversation) Joins(a, b string) bool {
	return a != b && c.Has(a) && c.Has(b)
}

func (c *Conversation) UnreadFor(user string) int {
	if i := c.Slot(user); i >= 0 {
		return c.UnreadCounts[i]
	}
	return 0
}

// ConversationView is a conversation as listed for one of its participants.
type ConversationView struct {
	ID          string    `json:"id"`
	Participant Profile   `json:"participant"`
	LastMessage *Message  `json:"last_message,omitempty"`
	UnreadCount int       `json:"unread_count"`
	UpdatedAt   time.Time `json:"updated_at"`
}
