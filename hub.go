package main

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hbmusic/songd/internal/base"
	"github.com/hbmusic/songd/internal/cache"
	"github.com/hbmusic/songd/internal/syncx"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type client struct {
	conn *websocket.Conn
	send syncx.UnboundedChan[[]byte]
}

func (c *client) start() {
	go func() {
		for x := range c.send.Out() {
			_ = c.conn.WriteMessage(websocket.TextMessage, x)
		}
	}()
}

// Hub fans cache-invalidation notices out to connected players so they can
// drop their local copies too.
type Hub struct {
	mu      sync.Mutex
	clients map[*client]struct{}
}

func newHub() *Hub {
	return &Hub{clients: make(map[*client]struct{})}
}

func (h *Hub) serve(c *gin.Context) {
	wc, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		base.Log().Warn("hub: upgrade failed", zap.Error(err))
		return
	}
	defer wc.Close()

	cl := &client{
		conn: wc,
		send: syncx.NewUnboundedChan[[]byte](8),
	}
	cl.start()
	h.add(cl)

	// inbound frames are ignored; the read loop only detects disconnects
	for {
		if _, _, err := wc.ReadMessage(); err != nil {
			break
		}
	}
	h.remove(cl)
}

func (h *Hub) add(cl *client) {
	h.mu.Lock()
	h.clients[cl] = struct{}{}
	h.mu.Unlock()
}

// remove unregisters cl and closes its send channel so the pump and writer
// goroutines exit. Broadcasts hold the same lock, so nothing can send on
// the channel after the delete.
func (h *Hub) remove(cl *client) {
	h.mu.Lock()
	delete(h.clients, cl)
	h.mu.Unlock()
	close(cl.send.In())
}

func (h *Hub) BroadcastInvalidate(category string) {
	msg, _ := json.Marshal(gin.H{
		"type":     "cacheInvalidate",
		"category": category,
	})
	h.mu.Lock()
	defer h.mu.Unlock()
	for cl := range h.clients {
		cl.send.In() <- msg
	}
}

// relayInvalidations forwards pub/sub invalidation notices, including those
// published by sibling processes, to this process's websocket clients.
func relayInvalidations(ctx context.Context, rdb *redis.Client, hub *Hub) {
	sub := rdb.Subscribe(ctx, cache.InvalidateChannel)
	defer sub.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sub.Channel():
			if !ok {
				return
			}
			hub.BroadcastInvalidate(msg.Payload)
		}
	}
}
