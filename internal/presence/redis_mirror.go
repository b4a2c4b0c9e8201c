package presence

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Mirror copies presence into redis so other services can read who is
// online and when a user was last seen. Keys:
//   - <prefix>:online            set of online user ids
//   - <prefix>:last_seen:<user>  unix seconds of the last connect/disconnect
type Mirror struct {
	client *redis.Client
	prefix string
}

func NewMirror(client *redis.Client, prefix string) *Mirror {
	return &Mirror{client: client, prefix: prefix}
}

func (m *Mirror) onlineKey() string { return fmt.Sprintf("%s:online", m.prefix) }

func (m *Mirror) lastSeenKey(user string) string {
	return fmt.Sprintf("%s:last_seen:%s", m.prefix, user)
}

// Reset clears the online set. The in-process registry starts empty on
// every boot, so the mirror must too.
func (m *Mirror) Reset(ctx context.Context) error {
	return m.client.Del(ctx, m.onlineKey()).Err()
}

func (m *Mirror) MarkOnline(ctx context.Context, user string, at time.Time) error {
	pipe := m.client.TxPipeline()
	pipe.SAdd(ctx, m.onlineKey(), user)
	pipe.Set(ctx, m.lastSeenKey(user), at.Unix(), 0)
	_, err := pipe.Exec(ctx)
	return err
}

func (m *Mirror) MarkOffline(ctx context.Context, user string, at time.Time) error {
	pipe := m.client.TxPipeline()
	pipe.SRem(ctx, m.onlineKey(), user)
	pipe.Set(ctx, m.lastSeenKey(user), at.Unix(), 0)
	_, err := pipe.Exec(ctx)
	return err
}
