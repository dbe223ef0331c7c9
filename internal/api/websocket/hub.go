package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	gws "github.com/gorilla/websocket"

	"quorum/internal/logging"
	"quorum/internal/model"
	"quorum/internal/service"
)

const (
	writeTimeout     = 10 * time.Second
	initialInboxSize = 20
)

// Hub streams a user's live notifications over a WebSocket.
type Hub struct {
	App      *service.App
	log      *slog.Logger
	upgrader gws.Upgrader

	mu      sync.RWMutex
	clients map[*client]struct{}
}

type client struct {
	conn    *gws.Conn
	app     *service.App
	auth    service.AuthContext
	writeMu sync.Mutex
	stop    context.CancelFunc
}

func NewHub(app *service.App, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Hub{
		App: app,
		log: logger,
		upgrader: gws.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: map[*client]struct{}{},
	}
}

// Connected reports how many sockets are open.
func (h *Hub) Connected() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	authCtx, err := h.App.Authenticate(r.Context(), r.URL.Query().Get("api_key"))
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := &client{conn: conn, app: h.App, auth: authCtx}
	h.register(c)
	defer h.unregister(c)
	defer conn.Close()

	_ = c.write(map[string]any{"type": "ack", "ok": true, "ref_id": "connected"})
	if err := c.startMailbox(); err != nil {
		h.log.Warn("mailbox subscribe failed", "user_id", authCtx.User.ID, "error", err)
		_ = c.write(map[string]any{"type": "error", "code": "SUBSCRIBE_FAILED", "message": err.Error()})
		return
	}
	for {
		_, b, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var req map[string]any
		if err := json.Unmarshal(b, &req); err != nil {
			_ = c.write(map[string]any{"type": "error", "code": "BAD_PAYLOAD", "message": "invalid JSON"})
			continue
		}
		msgType, _ := req["type"].(string)
		switch msgType {
		case "ping":
			_ = c.write(map[string]any{"type": "pong"})
		case "inbox":
			page := 1
			if v, ok := req["page"].(float64); ok && v > 0 {
				page = int(v)
			}
			if err := c.sendInbox(r.Context(), "inbox", page); err != nil {
				_ = c.write(map[string]any{"type": "error", "code": "INBOX_FAILED", "message": err.Error()})
			}
		default:
			_ = c.write(map[string]any{"type": "error", "code": "UNKNOWN_TYPE", "message": "unsupported message type"})
		}
	}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c.stop != nil {
		c.stop()
	}
	delete(h.clients, c)
}

func (c *client) write(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteJSON(v)
}

func (c *client) sendInbox(ctx context.Context, frameType string, page int) error {
	msgs, total, err := c.app.Inbox(ctx, c.auth.User.ID, page, initialInboxSize)
	if err != nil {
		return err
	}
	if msgs == nil {
		msgs = []model.PrivateMessage{}
	}
	return c.write(map[string]any{
		"type":     frameType,
		"page":     page,
		"total":    total,
		"messages": msgs,
	})
}

// startMailbox sends the inbox snapshot, then forwards live notifications
// until the socket closes.
func (c *client) startMailbox() error {
	ch, cancelSub, err := c.app.Broker.Subscribe(context.Background(), c.auth.User.ID)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.stop = func() {
		cancel()
		cancelSub()
	}
	_ = c.sendInbox(ctx, "initial_image", 1)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case n, ok := <-ch:
				if !ok {
					return
				}
				_ = c.write(map[string]any{"type": "notification", "data": n})
			}
		}
	}()
	return nil
}
