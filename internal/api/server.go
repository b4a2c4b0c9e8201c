package api

import (
	"errors"

	"github.com/fathima-sithara/messaging-service/internal/auth"
	"github.com/fathima-sithara/messaging-service/internal/config"
	"github.com/fathima-sithara/messaging-service/internal/metrics"
	"github.com/fathima-sithara/messaging-service/internal/repository"
	"github.com/fathima-sithara/messaging-service/internal/service"
	"github.com/fathima-sithara/messaging-service/internal/utils"
	"github.com/fathima-sithara/messaging-service/internal/ws"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// PresenceReader answers who is connected right now.
type PresenceReader interface {
	IsOnline(user string) bool
	OnlineUsers() []string
}

type Deps struct {
	Cfg      *config.Config
	Chat     *service.ChatService
	Presence PresenceReader
	Users    repository.UserRepository
	Resolver *auth.Resolver
	Gateway  *ws.Server
	Redis    *redis.Client // optional; enables per-user rate limiting
	Log      *zap.SugaredLogger
}

func NewServer(d Deps) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      d.Cfg.App.Name,
		ErrorHandler: errorHandler,
	})
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{AllowOrigins: d.Cfg.App.CORSOrigins}))
	app.Use(RequestLogger(d.Log))

	h := NewHandler(d.Chat, d.Presence, d.Users, d.Log)

	app.Get("/health", func(c *fiber.Ctx) error { return c.JSON(fiber.Map{"status": "ok"}) })
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	authn := auth.Middleware(d.Resolver, d.Log)
	guards := []fiber.Handler{authn}
	if d.Redis != nil {
		rl := NewRateLimiter(d.Redis, d.Cfg.Redis.Prefix, d.Cfg.RateLimit.Requests, d.Cfg.RateWindow, d.Log)
		guards = append(guards, rl.MiddlewareByKey(ByUser))
	}

	v1 := app.Group("/v1")
	d.Gateway.Register(v1, "/ws", authn)

	msgs := v1.Group("/messages", guards...)
	msgs.Post("/send", h.sendMessage)
	msgs.Get("/conversations", h.listConversations)
	msgs.Get("/conversation/:conversationId", h.listMessages)
	msgs.Put("/conversation/:conversationId/read", h.markConversationRead)
	msgs.Put("/message/:messageId/delivered", h.markDelivered)
	msgs.Delete("/message/:messageId", h.deleteMessage)

	presence := v1.Group("/presence", guards...)
	presence.Get("/", h.onlineUsers)
	presence.Get("/:user_id", h.userPresence)

	return app
}

func errorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return utils.JSONError(c, fe.Code, "http_error", fe.Message)
	}
	return utils.JSONFromError(c, err)
}
