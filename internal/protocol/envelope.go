// Package protocol defines the socket wire format: one JSON envelope per
// frame carrying an event type and its payload.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/fathima-sithara/messaging-service/internal/domain"
	"github.com/go-playground/validator/v10"
)

// Inbound event types.
const (
	TypeSend       = "send"
	TypeTyping     = "typing"
	TypeMarkAsRead = "markAsRead"
)

// Outbound event types.
const (
	TypeNewMessage       = "newMessage"
	TypeMessageSent      = "messageSent"
	TypeMessageDelivered = "messageDelivered"
	TypeMessagesRead     = "messagesRead"
	TypeMessageDeleted   = "messageDeleted"
	TypeMessageError     = "messageError"
	TypeUserTyping       = "userTyping"
	TypeOnlineUsers      = "onlineUsers"
	TypeUserOnline       = "userOnline"
	TypeUserOffline      = "userOffline"
)

// Envelope is the wire format of every frame in both directions.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Event is an outbound frame before encoding.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

func (e Event) Encode() ([]byte, error) { return json.Marshal(e) }

var validate = newValidator()

// newValidator reports fields by their json names so errors match the wire.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate runs struct tag validation and folds failures into a
// domain.ErrInvalid naming the first offending field.
func Validate(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var ve validator.ValidationErrors
	if errors.As(err, &ve) && len(ve) > 0 {
		fe := ve[0]
		field := fe.Field()
		switch fe.Tag() {
		case "required":
			return domain.Invalid(field + " is required")
		case "oneof":
			return domain.Invalid(fmt.Sprintf("%s must be one of [%s]", field, fe.Param()))
		default:
			return domain.Invalid(fmt.Sprintf("%s failed %s", field, fe.Tag()))
		}
	}
	return domain.Invalid(err.Error())
}

// Inbound is a decoded and validated client event. Exactly one of the
// payload fields is set, matching Type.
type Inbound struct {
	Type       string
	Send       *SendPayload
	Typing     *TypingPayload
	MarkAsRead *MarkAsReadPayload
}

// ClientRef returns the correlation id the client attached, if any.
func (in *Inbound) ClientRef() string {
	if in != nil && in.Send != nil {
		return in.Send.ClientRef
	}
	return ""
}

// ParseInbound decodes one client frame. Malformed JSON, unknown types and
// payloads failing validation all return a domain.ErrInvalid error; the
// returned Inbound still carries Type when it could be read.
func ParseInbound(data []byte) (*Inbound, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, domain.Invalid("malformed frame")
	}
	in := &Inbound{Type: env.Type}

	var target any
	switch env.Type {
	case TypeSend:
		in.Send = &SendPayload{}
		target = in.Send
	case TypeTyping:
		in.Typing = &TypingPayload{}
		target = in.Typing
	case TypeMarkAsRead:
		in.MarkAsRead = &MarkAsReadPayload{}
		target = in.MarkAsRead
	case "":
		return in, domain.Invalid("type is required")
	default:
		return in, domain.Invalid("unknown event type " + env.Type)
	}

	if len(env.Payload) == 0 {
		return in, domain.Invalid("payload is required")
	}
	if err := json.Unmarshal(env.Payload, target); err != nil {
		return in, domain.Invalid("malformed payload")
	}
	if err := Validate(target); err != nil {
		return in, err
	}
	return in, nil
}
