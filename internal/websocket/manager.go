// Package websocket streams session patches to live preview clients.
package websocket

import (
	"context"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"

	"github.com/conneroisu/livecanvas/internal/logging"
	"github.com/conneroisu/livecanvas/internal/session"
)

const (
	sendBuffer   = 64
	writeTimeout = 10 * time.Second
	pingInterval = 54 * time.Second
)

// Options configure a Hub.
type Options struct {
	// OriginPatterns are host patterns accepted besides same-origin requests.
	OriginPatterns []string
	// MaxConnectionsPerIP caps concurrent clients per remote address; 0 disables the cap.
	MaxConnectionsPerIP int
}

// Hub manages preview connections and routes each message to the clients
// of its session.
//
// Invariants:
//   - clients and ipConnections are only touched under clientsMutex
//   - a client's done channel is closed exactly once, on removal
type Hub struct {
	clients       map[*Client]struct{}
	ipConnections map[string]int
	clientsMutex  sync.RWMutex

	broadcast  chan Message
	register   chan *Client
	unregister chan *Client

	opts   Options
	logger logging.Logger

	ctx          context.Context
	cancel       context.CancelFunc
	shutdownOnce sync.Once
	isShutdown   atomic.Bool
	wg           sync.WaitGroup
}

// NewHub creates a hub and starts its routing goroutine.
func NewHub(logger logging.Logger, opts Options) *Hub {
	if logger == nil {
		logger = logging.Nop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		clients:       make(map[*Client]struct{}),
		ipConnections: make(map[string]int),
		broadcast:     make(chan Message, 256),
		register:      make(chan *Client, 32),
		unregister:    make(chan *Client, 32),
		opts:          opts,
		logger:        logger.WithComponent("websocket"),
		ctx:           ctx,
		cancel:        cancel,
	}

	h.wg.Add(1)
	go h.runHub()

	return h
}

// HandleWebSocket upgrades a request for /ws?session=<id>[&encoding=msgpack].
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if h.isShutdown.Load() {
		http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
		return
	}

	sessionID := r.URL.Query().Get("session")
	if sessionID == "" {
		http.Error(w, "session query parameter is required", http.StatusBadRequest)
		return
	}

	encoding, err := ParseEncoding(r.URL.Query().Get("encoding"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	clientIP := getClientIP(r)
	if !h.reserveIP(clientIP) {
		h.logger.Info(r.Context(), "WebSocket connection rejected: per-address limit reached", "client_ip", clientIP)
		http.Error(w, "Too many connections", http.StatusTooManyRequests)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:  h.opts.OriginPatterns,
		CompressionMode: websocket.CompressionDisabled,
	})
	if err != nil {
		h.releaseIP(clientIP)
		h.logger.Warn(r.Context(), err, "WebSocket upgrade failed", "client_ip", clientIP)
		return
	}

	client := &Client{
		conn:      conn,
		sessionID: sessionID,
		encoding:  encoding,
		ip:        clientIP,
		send:      make(chan Message, sendBuffer),
		done:      make(chan struct{}),
	}

	select {
	case h.register <- client:
	case <-h.ctx.Done():
		h.releaseIP(clientIP)
		_ = conn.Close(websocket.StatusServiceRestart, "Server shutting down")
		return
	}

	h.wg.Add(1)
	go h.handleClient(client)
}

func (h *Hub) reserveIP(ip string) bool {
	h.clientsMutex.Lock()
	defer h.clientsMutex.Unlock()

	if h.opts.MaxConnectionsPerIP > 0 && h.ipConnections[ip] >= h.opts.MaxConnectionsPerIP {
		return false
	}
	h.ipConnections[ip]++

	return true
}

func (h *Hub) releaseIP(ip string) {
	h.clientsMutex.Lock()
	defer h.clientsMutex.Unlock()

	if h.ipConnections[ip] <= 1 {
		delete(h.ipConnections, ip)
		return
	}
	h.ipConnections[ip]--
}

// getClientIP extracts client IP from request
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return xff
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func (h *Hub) runHub() {
	defer h.wg.Done()

	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.removeClient(client)

		case message := <-h.broadcast:
			h.broadcastToClients(message)

		case <-h.ctx.Done():
			return
		}
	}
}

func (h *Hub) registerClient(client *Client) {
	h.clientsMutex.Lock()
	h.clients[client] = struct{}{}
	total := len(h.clients)
	h.clientsMutex.Unlock()

	client.send <- Message{Type: MessageConnected, SessionID: client.sessionID, Timestamp: time.Now()}

	h.logger.Debug(h.ctx, "WebSocket client connected",
		"session_id", client.sessionID,
		"encoding", client.encoding.String(),
		"clients", total)
}

// removeClient drops client from the table and signals its writer. It is
// safe to call more than once.
func (h *Hub) removeClient(client *Client) {
	h.clientsMutex.Lock()
	_, exists := h.clients[client]
	if exists {
		delete(h.clients, client)
		close(client.done)
	}
	total := len(h.clients)
	h.clientsMutex.Unlock()

	if exists {
		h.releaseIP(client.ip)
		h.logger.Debug(h.ctx, "WebSocket client disconnected", "session_id", client.sessionID, "clients", total)
	}
}

func (h *Hub) broadcastToClients(message Message) {
	h.clientsMutex.RLock()
	var targets []*Client
	for client := range h.clients {
		if client.sessionID == message.SessionID {
			targets = append(targets, client)
		}
	}
	h.clientsMutex.RUnlock()

	for _, client := range targets {
		select {
		case client.send <- message:
		default:
			h.logger.Info(h.ctx, "Dropping slow WebSocket client", "session_id", client.sessionID)
			h.removeClient(client)
		}
	}
}

func (h *Hub) handleClient(client *Client) {
	defer h.wg.Done()

	h.wg.Add(1)
	go h.writeToClient(client)

	h.readFromClient(client)

	select {
	case h.unregister <- client:
	case <-h.ctx.Done():
		h.removeClient(client)
	}
}

// readFromClient drains client frames until the connection closes. The
// preview does not send commands, so frames are discarded.
func (h *Hub) readFromClient(client *Client) {
	for {
		if _, _, err := client.conn.Read(h.ctx); err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway && h.ctx.Err() == nil {
				h.logger.Debug(h.ctx, "WebSocket read ended", "session_id", client.sessionID, "error", err.Error())
			}
			return
		}
	}
}

func (h *Hub) writeToClient(client *Client) {
	defer h.wg.Done()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	defer func() {
		_ = client.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		select {
		case message := <-client.send:
			data, err := client.encoding.encode(message)
			if err != nil {
				h.logger.Error(h.ctx, err, "Failed to encode WebSocket message", "type", message.Type)
				continue
			}

			ctx, cancel := context.WithTimeout(h.ctx, writeTimeout)
			err = client.conn.Write(ctx, client.encoding.messageType(), data)
			cancel()
			if err != nil {
				return
			}

		case <-ticker.C:
			ctx, cancel := context.WithTimeout(h.ctx, writeTimeout)
			err := client.conn.Ping(ctx)
			cancel()
			if err != nil {
				return
			}

		case <-client.done:
			return

		case <-h.ctx.Done():
			return
		}
	}
}

// Publish queues message for the clients of its session without blocking.
func (h *Hub) Publish(message Message) bool {
	if h.isShutdown.Load() {
		return false
	}

	select {
	case h.broadcast <- message:
		return true
	default:
		h.logger.Info(h.ctx, "Broadcast channel full, dropping message", "session_id", message.SessionID)
		return false
	}
}

// Forward publishes session events until events is closed or ctx is done.
func (h *Hub) Forward(ctx context.Context, events <-chan session.Event) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-events:
			if !ok {
				return nil
			}
			msg, relevant, err := MessageFromEvent(event)
			if err != nil {
				h.logger.Error(ctx, err, "Failed to convert session event", "session_id", event.SessionID)
				continue
			}
			if relevant {
				h.Publish(msg)
			}
		}
	}
}

// ConnectedClients returns the number of connected clients, optionally
// restricted to one session.
func (h *Hub) ConnectedClients(sessionID string) int {
	h.clientsMutex.RLock()
	defer h.clientsMutex.RUnlock()

	if sessionID == "" {
		return len(h.clients)
	}

	n := 0
	for client := range h.clients {
		if client.sessionID == sessionID {
			n++
		}
	}
	return n
}

// Shutdown closes every connection and waits for the hub goroutines, or
// for ctx to expire.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.shutdownOnce.Do(func() {
		h.isShutdown.Store(true)
		h.cancel()
	})

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.logger.Debug(ctx, "WebSocket hub shut down")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsShutdown reports whether Shutdown has been called.
func (h *Hub) IsShutdown() bool {
	return h.isShutdown.Load()
}
