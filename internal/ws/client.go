package ws

import (
	"context"
	"sync"
	"time"

	"github.com/fathima-sithara/messaging-service/internal/metrics"
	"github.com/fathima-sithara/messaging-service/internal/protocol"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Conn is a live, authenticated connection as seen by the hub and router.
type Conn interface {
	ID() string
	UserID() string
	// Push queues ev without blocking and reports whether it was queued.
	Push(ev protocol.Event) bool
	Close()
}

type ClientConfig struct {
	PingInterval   time.Duration
	PongWait       time.Duration
	WriteDeadline  time.Duration
	MaxMessageSize int64
	SendBuffer     int
	RateLimit      float64
	RateBurst      int
}

func (c ClientConfig) withDefaults() ClientConfig {
	if c.PingInterval <= 0 {
		c.PingInterval = 25 * time.Second
	}
	if c.PongWait <= c.PingInterval {
		c.PongWait = c.PingInterval * 2
	}
	if c.WriteDeadline <= 0 {
		c.WriteDeadline = 10 * time.Second
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = 64 * 1024
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = 256
	}
	if c.RateLimit <= 0 {
		c.RateLimit = 10
	}
	if c.RateBurst <= 0 {
		c.RateBurst = int(c.RateLimit) * 2
	}
	return c
}

// Client is a single websocket connection.
type Client struct {
	id      string
	uid     string
	ws      *websocket.Conn
	send    chan []byte
	done    chan struct{}
	once    sync.Once
	limiter *rate.Limiter
	cfg     ClientConfig
	log     *zap.SugaredLogger
}

func NewClient(conn *websocket.Conn, uid string, cfg ClientConfig, log *zap.SugaredLogger) *Client {
	cfg = cfg.withDefaults()
	return &Client{
		id:      uuid.NewString(),
		uid:     uid,
		ws:      conn,
		send:    make(chan []byte, cfg.SendBuffer),
		done:    make(chan struct{}),
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst),
		cfg:     cfg,
		log:     log,
	}
}

func (c *Client) ID() string     { return c.id }
func (c *Client) UserID() string { return c.uid }

func (c *Client) Push(ev protocol.Event) bool {
	b, err := ev.Encode()
	if err != nil {
		c.log.Errorw("encode outbound event", "type", ev.Type, "err", err)
		return false
	}
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- b:
		return true
	default:
		// slow consumer
		metrics.PushesDropped.Inc()
		return false
	}
}

// Close stops the write pump, which closes the socket and so ends the read
// pump. Safe to call more than once.
func (c *Client) Close() {
	c.once.Do(func() { close(c.done) })
}

// readPump reads frames until the peer goes away or the read deadline
// passes, handing each frame to dispatch in its own goroutine.
func (c *Client) readPump(ctx context.Context, dispatch func(ctx context.Context, c Conn, data []byte)) {
	c.ws.SetReadLimit(c.cfg.MaxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debugw("ws read closed", "user_id", c.uid, "conn_id", c.id, "err", err)
			}
			return
		}
		if !c.limiter.Allow() {
			metrics.InboundEvents.WithLabelValues("unknown", "rate_limited").Inc()
			c.Push(protocol.MessageError("", "rate_limited", "too many events", ""))
			continue
		}
		go dispatch(ctx, c, data)
	}
}

// writePump writes queued frames and pings the peer every PingInterval.
func (c *Client) writePump() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteDeadline))
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(c.cfg.WriteDeadline)); err != nil {
				return
			}
		case <-c.done:
			_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			return
		}
	}
}
