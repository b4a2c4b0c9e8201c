package ws

import (
	"context"
	"time"

	"github.com/fathima-sithara/messaging-service/internal/metrics"
	"github.com/fathima-sithara/messaging-service/internal/presence"
	"github.com/fathima-sithara/messaging-service/internal/protocol"
	"go.uber.org/zap"
)

// PresenceStore persists the online flag and last-seen time on the user.
type PresenceStore interface {
	SetPresence(ctx context.Context, id string, online bool, at time.Time) error
}

// PresenceMirror publishes presence outside the process. Optional.
type PresenceMirror interface {
	MarkOnline(ctx context.Context, user string, at time.Time) error
	MarkOffline(ctx context.Context, user string, at time.Time) error
}

// Hub owns the presence registry and routes user-addressed events to the
// user's single live connection.
type Hub struct {
	registry *presence.Registry[Conn]
	store    PresenceStore
	mirror   PresenceMirror
	log      *zap.SugaredLogger
	now      func() time.Time
}

func NewHub(store PresenceStore, mirror PresenceMirror, log *zap.SugaredLogger) *Hub {
	return &Hub{
		registry: presence.NewRegistry[Conn](),
		store:    store,
		mirror:   mirror,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Attach registers c as its user's connection, closing any connection it
// supersedes, announces the user to everyone else and sends c the current
// online snapshot.
func (h *Hub) Attach(ctx context.Context, c Conn) {
	metrics.Connections.Inc()
	uid := c.UserID()
	if prev, replaced := h.registry.Register(uid, c); replaced && prev.ID() != c.ID() {
		h.log.Infow("connection superseded", "user_id", uid, "old_conn", prev.ID(), "new_conn", c.ID())
		prev.Close()
	}

	h.Broadcast(protocol.UserOnline(uid), uid)
	c.Push(protocol.OnlineUsers(h.registry.Online()))
	h.persist(ctx, uid, true)
	h.log.Infow("user connected", "user_id", uid, "conn_id", c.ID(), "online", h.registry.Len())
}

// Detach removes c. Only the user's current connection going away takes
// them offline; a superseded connection leaves quietly.
func (h *Hub) Detach(ctx context.Context, c Conn) {
	metrics.Connections.Dec()
	uid := c.UserID()
	if !h.registry.Unregister(uid, c) {
		return
	}
	at := h.now()
	h.Broadcast(protocol.UserOffline(uid, at), uid)
	h.persist(ctx, uid, false)
	h.log.Infow("user disconnected", "user_id", uid, "conn_id", c.ID())
}

func (h *Hub) persist(ctx context.Context, uid string, online bool) {
	at := h.now()
	if h.store != nil {
		if err := h.store.SetPresence(ctx, uid, online, at); err != nil {
			h.log.Warnw("persist presence failed", "user_id", uid, "online", online, "err", err)
		}
	}
	if h.mirror == nil {
		return
	}
	var err error
	if online {
		err = h.mirror.MarkOnline(ctx, uid, at)
	} else {
		err = h.mirror.MarkOffline(ctx, uid, at)
	}
	if err != nil {
		h.log.Warnw("presence mirror failed", "user_id", uid, "online", online, "err", err)
	}
}

// Push sends ev to user's connection, reporting whether it was queued.
func (h *Hub) Push(user string, ev protocol.Event) bool {
	c, ok := h.registry.Lookup(user)
	if !ok {
		return false
	}
	return c.Push(ev)
}

// Broadcast sends ev to every connected user except except.
func (h *Hub) Broadcast(ev protocol.Event, except string) {
	h.registry.Range(func(user string, c Conn) {
		if user != except {
			c.Push(ev)
		}
	})
}

func (h *Hub) IsOnline(user string) bool {
	_, ok := h.registry.Lookup(user)
	return ok
}

func (h *Hub) OnlineUsers() []string { return h.registry.Online() }

// CloseAll closes every connection; used on shutdown.
func (h *Hub) CloseAll() {
	h.registry.Range(func(_ string, c Conn) { c.Close() })
}
