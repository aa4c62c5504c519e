package ws

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"chat-relay/errors"
	"chat-relay/wire"
)

// Conn wraps one websocket connection as a relay channel. Writes are
// serialized through a mutex because envelopes reach a connection from many
// goroutines at once: its own read loop, other senders' relays, and call
// teardown. Each write carries a deadline, so one unresponsive peer fails its
// own sends instead of stalling everyone queued behind the mutex.
type Conn struct {
	ws          *websocket.Conn
	sendTimeout time.Duration

	writeMu sync.Mutex
	once    sync.Once
}

func newConn(ws *websocket.Conn, sendTimeout time.Duration) *Conn {
	return &Conn{ws: ws, sendTimeout: sendTimeout}
}

func (c *Conn) Send(ctx context.Context, env wire.Envelope) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrChannel, err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deadline := time.Now().Add(c.sendTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.ws.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrChannel, err)
	}
	if err := c.ws.WriteJSON(env); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrChannel, err)
	}
	return nil
}

// close is idempotent: the read loop, a write failure and server shutdown can
// all race to it.
func (c *Conn) close() {
	c.once.Do(func() {
		_ = c.ws.Close()
	})
}
