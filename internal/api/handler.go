package api

import (
	"github.com/fathima-sithara/messaging-service/internal/auth"
	"github.com/fathima-sithara/messaging-service/internal/domain"
	"github.com/fathima-sithara/messaging-service/internal/protocol"
	"github.com/fathima-sithara/messaging-service/internal/repository"
	"github.com/fathima-sithara/messaging-service/internal/service"
	"github.com/fathima-sithara/messaging-service/internal/utils"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type Handler struct {
	chat     *service.ChatService
	presence PresenceReader
	users    repository.UserRepository
	log      *zap.SugaredLogger
}

func NewHandler(chat *service.ChatService, presence PresenceReader, users repository.UserRepository, log *zap.SugaredLogger) *Handler {
	return &Handler{chat: chat, presence: presence, users: users, log: log}
}

func (h *Handler) fail(c *fiber.Ctx, err error) error {
	if domain.Code(err) == "internal" {
		h.log.Errorw("request failed", "method", c.Method(), "path", c.Path(), "user_id", auth.UserID(c), "err", err)
	}
	return utils.JSONFromError(c, err)
}

type sendMessageReq struct {
	ReceiverID     string `json:"receiver_id" validate:"required"`
	Content        string `json:"content" validate:"required"`
	ConversationID string `json:"conversation_id"`
	MessageType    string `json:"message_type" validate:"omitempty,oneof=text file image"`
}

func (h *Handler) sendMessage(c *fiber.Ctx) error {
	var req sendMessageReq
	if err := c.BodyParser(&req); err != nil {
		return utils.JSONError(c, fiber.StatusBadRequest, "invalid", "invalid payload")
	}
	if err := protocol.Validate(&req); err != nil {
		return h.fail(c, err)
	}
	msg, err := h.chat.SendMessage(c.UserContext(), auth.UserID(c), service.SendInput{
		ReceiverID:     req.ReceiverID,
		Content:        req.Content,
		ConversationID: req.ConversationID,
		MessageType:    req.MessageType,
	})
	if err != nil {
		return h.fail(c, err)
	}
	return utils.JSONSuccess(c, fiber.StatusCreated, msg)
}

func (h *Handler) listConversations(c *fiber.Ctx) error {
	views, err := h.chat.ListConversations(c.UserContext(), auth.UserID(c))
	if err != nil {
		return h.fail(c, err)
	}
	return utils.JSONSuccess(c, fiber.StatusOK, views)
}

func (h *Handler) listMessages(c *fiber.Ctx) error {
	page, err := h.chat.ListMessages(c.UserContext(), auth.UserID(c),
		c.Params("conversationId"), c.QueryInt("page", 1), c.QueryInt("limit", 0))
	if err != nil {
		return h.fail(c, err)
	}
	return utils.JSONSuccess(c, fiber.StatusOK, page)
}

type markReadReq struct {
	SenderID string `json:"sender_id"`
}

func (h *Handler) markConversationRead(c *fiber.Ctx) error {
	var req markReadReq
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return utils.JSONError(c, fiber.StatusBadRequest, "invalid", "invalid payload")
		}
	}
	if req.SenderID == "" {
		req.SenderID = c.Query("sender_id")
	}
	convID := c.Params("conversationId")
	n, err := h.chat.MarkConversationRead(c.UserContext(), auth.UserID(c), convID, req.SenderID)
	if err != nil {
		return h.fail(c, err)
	}
	return utils.JSONSuccess(c, fiber.StatusOK, fiber.Map{"conversation_id": convID, "count": n})
}

func (h *Handler) markDelivered(c *fiber.Ctx) error {
	msg, err := h.chat.MarkDelivered(c.UserContext(), auth.UserID(c), c.Params("messageId"))
	if err != nil {
		return h.fail(c, err)
	}
	return utils.JSONSuccess(c, fiber.StatusOK, msg)
}

func (h *Handler) deleteMessage(c *fiber.Ctx) error {
	id := c.Params("messageId")
	if err := h.chat.DeleteMessage(c.UserContext(), auth.UserID(c), id); err != nil {
		return h.fail(c, err)
	}
	return utils.JSONSuccess(c, fiber.StatusOK, fiber.Map{"deleted": id})
}

func (h *Handler) onlineUsers(c *fiber.Ctx) error {
	return utils.JSONSuccess(c, fiber.StatusOK, fiber.Map{"users": h.presence.OnlineUsers()})
}

func (h *Handler) userPresence(c *fiber.Ctx) error {
	uid := c.Params("user_id")
	u, err := h.users.GetUser(c.UserContext(), uid)
	if err != nil {
		return h.fail(c, err)
	}
	return utils.JSONSuccess(c, fiber.StatusOK, fiber.Map{
		"user_id":   uid,
		"online":    h.presence.IsOnline(uid),
		"last_seen": u.LastSeen,
	})
}
