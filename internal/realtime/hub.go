// Package realtime serves the optional websocket status feed. The watch
// loop pushes each changed output record to the hub and the hub fans it out
// to connected subscribers. Clients only receive; inbound messages beyond
// pings are discarded.
package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/avelinecho/pixelpet/internal/engine"
	"github.com/avelinecho/pixelpet/internal/logging"
)

var log = logging.ForComponent(logging.CompFeed)

const (
	pingInterval  = 30 * time.Second
	readDeadline  = 60 * time.Second
	writeDeadline = 10 * time.Second
	sendBuffer    = 32
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     allowOrigin,
}

// allowOrigin admits non-browser clients (no Origin header) and browsers on
// the same host the feed is served from.
func allowOrigin(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	originURL, err := url.Parse(origin)
	if err != nil || originURL.Host == "" {
		return false
	}
	return strings.EqualFold(originURL.Host, r.Host)
}

// Hub fans output records out to websocket subscribers. Pushes are rate
// limited so bursty tool events do not flood slow clients; records dropped
// mid-burst are superseded by the next state change.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]*subscriber
	limiter     *rate.Limiter

	lastMu sync.Mutex
	last   []byte
}

type subscriber struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// NewHub creates a hub pushing at most broadcastHz records per second.
func NewHub(broadcastHz int) *Hub {
	if broadcastHz <= 0 {
		broadcastHz = 10
	}
	return &Hub{
		subscribers: make(map[string]*subscriber),
		limiter:     rate.NewLimiter(rate.Limit(broadcastHz), broadcastHz),
	}
}

// Broadcast queues an output record for every subscriber. Never blocks:
// over-rate records and full client buffers are dropped; each record
// carries absolute state, so a drop never corrupts a client.
func (h *Hub) Broadcast(out engine.Output) {
	data, err := json.Marshal(out)
	if err != nil {
		return
	}

	h.lastMu.Lock()
	h.last = data
	h.lastMu.Unlock()

	if !h.limiter.Allow() {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.subscribers {
		select {
		case sub.send <- data:
		default:
		}
	}
}

// Subscribers reports the current connection count.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// HandleWS upgrades the request and serves the feed until the client leaves.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("ws_upgrade_failed", slog.String("error", err.Error()))
		return
	}

	sub := &subscriber{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}

	h.mu.Lock()
	h.subscribers[sub.id] = sub
	h.mu.Unlock()
	log.Info("subscriber_connected", slog.String("id", sub.id))

	// New subscribers get the latest record immediately.
	h.lastMu.Lock()
	if h.last != nil {
		sub.send <- h.last
	}
	h.lastMu.Unlock()

	go h.writePump(sub)
	go h.readPump(sub)
}

func (h *Hub) readPump(sub *subscriber) {
	defer h.drop(sub)

	sub.conn.SetReadDeadline(time.Now().Add(readDeadline))
	sub.conn.SetPongHandler(func(string) error {
		sub.conn.SetReadDeadline(time.Now().Add(readDeadline))
		return nil
	})

	for {
		if _, _, err := sub.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug("ws_read_error", slog.String("id", sub.id), slog.String("error", err.Error()))
			}
			return
		}
		// Feed is one-way; inbound payloads are ignored.
	}
}

func (h *Hub) writePump(sub *subscriber) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		sub.conn.Close()
	}()

	for {
		select {
		case data, ok := <-sub.send:
			sub.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if !ok {
				sub.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := sub.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			sub.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := sub.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) drop(sub *subscriber) {
	h.mu.Lock()
	if _, ok := h.subscribers[sub.id]; ok {
		delete(h.subscribers, sub.id)
		close(sub.send)
	}
	h.mu.Unlock()
	sub.conn.Close()
	log.Info("subscriber_disconnected", slog.String("id", sub.id))
}

// Serve runs an HTTP server exposing the feed at /ws until ctx is done.
func (h *Hub) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", h.HandleWS)

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Info("feed_listening", slog.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
