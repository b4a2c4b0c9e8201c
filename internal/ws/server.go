package ws

import (
	"context"
	"time"

	"github.com/fathima-sithara/messaging-service/internal/auth"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"
)

// Server is the connection gateway: it upgrades authenticated requests,
// binds each socket to its user and pumps frames through the router.
type Server struct {
	ctx    context.Context
	hub    *Hub
	router *Router
	cfg    ClientConfig
	log    *zap.SugaredLogger
}

// NewServer ties every connection's event handling to ctx, which is
// cancelled on shutdown.
func NewServer(ctx context.Context, hub *Hub, router *Router, cfg ClientConfig, log *zap.SugaredLogger) *Server {
	return &Server{ctx: ctx, hub: hub, router: router, cfg: cfg, log: log}
}

// Register mounts the gateway at path. authn must run before the upgrade so
// an unauthenticated handshake is refused with 401 and never registered.
func (s *Server) Register(r fiber.Router, path string, authn fiber.Handler) {
	r.Get(path, upgradeRequired, authn, websocket.New(s.handle, websocket.Config{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
	}))
}

func upgradeRequired(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

func (s *Server) handle(conn *websocket.Conn) {
	uid, _ := conn.Locals(auth.LocalUserID).(string)
	if uid == "" {
		_ = conn.Close()
		return
	}

	c := NewClient(conn, uid, s.cfg, s.log)
	s.hub.Attach(s.ctx, c)

	written := make(chan struct{})
	go func() {
		defer close(written)
		c.writePump()
	}()
	c.readPump(s.ctx, s.router.Dispatch)

	// the peer is gone or the conn was superseded; the socket must not be
	// used after this handler returns, so wait for the writer
	c.Close()
	<-written

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	s.hub.Detach(ctx, c)
}
