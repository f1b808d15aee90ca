// ABOUTME: WebSocket stream of agent connection-state transitions at /api/events
// ABOUTME: One writer goroutine per client with ping/pong keepalive; slow clients drop events

package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/2389/rcon-gateway/internal/agent"
)

// Keepalive timing: the writer pings every pingPeriod and the reader drops a
// client that has not answered within pongWait.
const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// eventStream upgrades requests to websockets and forwards transitions.
type eventStream struct {
	registry *agent.Registry
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*websocket.Conn]context.CancelFunc
	closed  bool
	wg      sync.WaitGroup
}

func newEventStream(registry *agent.Registry, logger *slog.Logger) *eventStream {
	return &eventStream{
		registry: registry,
		logger:   logger.With("component", "events"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Token auth runs before the upgrade, so cross-origin browsers
			// still need a valid token.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: make(map[*websocket.Conn]context.CancelFunc),
	}
}

// ServeHTTP handles GET /api/events[?server=ip:port].
func (s *eventStream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	address := r.URL.Query().Get("server")
	if address != "" {
		if _, err := s.registry.FindAddress(address); err != nil {
			writeError(w, http.StatusNotFound, msgServerNotFound)
			return
		}
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	transitions, err := s.registry.SubscribeAddress(ctx, address)
	if err != nil || !s.register(conn, cancel) {
		cancel()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(time.Second))
		_ = conn.Close()
		return
	}

	s.logger.Info("event stream opened", "remote", r.RemoteAddr, "server", address)

	go s.readPump(conn)
	go s.writePump(ctx, conn, transitions)
}

// register tracks conn and accounts for its two pump goroutines.
func (s *eventStream) register(conn *websocket.Conn, cancel context.CancelFunc) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.clients[conn] = cancel
	s.wg.Add(2)
	return true
}

// unregister cancels the client's subscription. Safe to call twice.
func (s *eventStream) unregister(conn *websocket.Conn) {
	s.mu.Lock()
	cancel, ok := s.clients[conn]
	delete(s.clients, conn)
	s.mu.Unlock()

	if ok {
		cancel()
	}
}

// readPump discards client messages and extends the deadline on every pong.
// It returns when the client goes away, which ends the stream.
func (s *eventStream) readPump(conn *websocket.Conn) {
	defer s.wg.Done()
	defer s.unregister(conn)

	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("event stream read error", "error", err)
			}
			return
		}
	}
}

// writePump owns all writes to conn.
func (s *eventStream) writePump(ctx context.Context, conn *websocket.Conn, transitions <-chan agent.Transition) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.unregister(conn)
		_ = conn.Close()
		s.wg.Done()
	}()

	for {
		select {
		case t, ok := <-transitions:
			if !ok {
				s.closeNormally(conn)
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(t); err != nil {
				s.logger.Debug("event stream write failed", "error", err)
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-ctx.Done():
			s.closeNormally(conn)
			return
		}
	}
}

func (s *eventStream) closeNormally(conn *websocket.Conn) {
	err := conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		s.logger.Debug("event stream close failed", "error", err)
	}
}

// Len returns the number of connected clients.
func (s *eventStream) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Close ends every stream and waits for their goroutines.
func (s *eventStream) Close() {
	s.mu.Lock()
	s.closed = true
	cancels := make([]context.CancelFunc, 0, len(s.clients))
	for _, cancel := range s.clients {
		cancels = append(cancels, cancel)
	}
	s.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	s.wg.Wait()
}
