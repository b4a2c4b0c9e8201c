package ws

import (
	"context"
	"time"

	"github.com/fathima-sithara/messaging-service/internal/domain"
	"github.com/fathima-sithara/messaging-service/internal/metrics"
	"github.com/fathima-sithara/messaging-service/internal/protocol"
	"github.com/fathima-sithara/messaging-service/internal/service"
	"go.uber.org/zap"
)

// ChatUseCases is what inbound socket events can trigger.
type ChatUseCases interface {
	SendMessage(ctx context.Context, sender string, in service.SendInput) (*domain.Message, error)
	Typing(ctx context.Context, user, receiver string, typing bool) error
	MarkConversationRead(ctx context.Context, reader, convID, senderID string) (int64, error)
}

// Router decodes inbound frames and runs the matching use case. Outbound
// success events are pushed by the use cases themselves; the router only
// answers failures, with a messageError to the originating connection.
type Router struct {
	chat    ChatUseCases
	timeout time.Duration
	log     *zap.SugaredLogger
}

// defaultEventTimeout applies when NewRouter is given no positive timeout.
const defaultEventTimeout = 5 * time.Second

func NewRouter(chat ChatUseCases, timeout time.Duration, log *zap.SugaredLogger) *Router {
	if timeout <= 0 {
		timeout = defaultEventTimeout
	}
	return &Router{chat: chat, timeout: timeout, log: log}
}

func (r *Router) Dispatch(ctx context.Context, c Conn, data []byte) {
	in, err := protocol.ParseInbound(data)
	if err == nil {
		hctx, cancel := context.WithTimeout(ctx, r.timeout)
		err = r.handle(hctx, c.UserID(), in)
		cancel()
	}

	label := eventLabel(in)
	if err == nil {
		metrics.InboundEvents.WithLabelValues(label, "ok").Inc()
		return
	}
	metrics.InboundEvents.WithLabelValues(label, "error").Inc()

	code := domain.Code(err)
	msg := err.Error()
	if code == "internal" {
		r.log.Errorw("inbound event failed", "type", label, "user_id", c.UserID(), "err", err)
		msg = "internal error"
	}
	var typ string
	if in != nil {
		typ = in.Type
	}
	c.Push(protocol.MessageError(typ, code, msg, in.ClientRef()))
}

func (r *Router) handle(ctx context.Context, user string, in *protocol.Inbound) error {
	switch {
	case in.Send != nil:
		p := in.Send
		_, err := r.chat.SendMessage(ctx, user, service.SendInput{
			ReceiverID:     p.ReceiverID,
			Content:        p.Content,
			ConversationID: p.ConversationID,
			MessageType:    p.MessageType,
			ClientRef:      p.ClientRef,
		})
		return err
	case in.Typing != nil:
		return r.chat.Typing(ctx, user, in.Typing.ReceiverID, in.Typing.IsTyping)
	case in.MarkAsRead != nil:
		_, err := r.chat.MarkConversationRead(ctx, user, in.MarkAsRead.ConversationID, in.MarkAsRead.SenderID)
		return err
	}
	return domain.Invalid("empty event")
}

func eventLabel(in *protocol.Inbound) string {
	if in == nil {
		return "unknown"
	}
	switch in.Type {
	case protocol.TypeSend, protocol.TypeTyping, protocol.TypeMarkAsRead:
		return in.Type
	}
	return "unknown"
}
